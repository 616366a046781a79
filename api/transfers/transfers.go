// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/api/utils"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/tree"
)

type Transfers struct {
	core *bridge.Core
}

func New(core *bridge.Core) *Transfers {
	return &Transfers{core: core}
}

func (t *Transfers) handleGetNetworks(w http.ResponseWriter, _ *http.Request) error {
	return utils.WriteJSON(w, t.core.Networks())
}

func (t *Transfers) handleRecordDeposit(w http.ResponseWriter, req *http.Request) error {
	networkID, err := pathUint(req, "networkID")
	if err != nil {
		return err
	}
	var record bridge.DepositRecord
	if err := utils.ParseJSON(req.Body, &record); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	index, root, err := t.core.RecordDeposit(networkID, &record, now())
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, &DepositReceipt{Index: index, Root: root})
}

func (t *Transfers) handleGetDepositRoot(w http.ResponseWriter, req *http.Request) error {
	networkID, err := pathUint(req, "networkID")
	if err != nil {
		return err
	}
	root, err := t.core.DepositRoot(networkID)
	if err != nil {
		return convertBridgeError(err)
	}
	count, err := t.core.DepositCount(networkID)
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, &RootStatus{Root: root, Count: count})
}

func (t *Transfers) handleProveDeposit(w http.ResponseWriter, req *http.Request) error {
	networkID, err := pathUint(req, "networkID")
	if err != nil {
		return err
	}
	index, err := pathUint(req, "index")
	if err != nil {
		return err
	}
	proof, err := t.core.ProveDeposit(networkID, index)
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, proof)
}

func (t *Transfers) handleRecordClaim(w http.ResponseWriter, req *http.Request) error {
	var body ClaimRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	root, err := t.core.RecordClaim(&body.Record, &body.Proof, now())
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, &ClaimReceipt{Root: root})
}

func (t *Transfers) handleGetClaimRoot(w http.ResponseWriter, req *http.Request) error {
	networkID, err := pathUint(req, "networkID")
	if err != nil {
		return err
	}
	root, err := t.core.ClaimRoot(networkID)
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, utils.M{"root": root})
}

func (t *Transfers) handleGetClaimed(w http.ResponseWriter, req *http.Request) error {
	networkID, err := pathUint(req, "networkID")
	if err != nil {
		return err
	}
	index, err := pathUint(req, "index")
	if err != nil {
		return err
	}
	claimed, err := t.core.IsClaimed(networkID, index)
	if err != nil {
		return convertBridgeError(err)
	}
	return utils.WriteJSON(w, utils.M{"claimed": claimed})
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

func pathUint(req *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(mux.Vars(req)[name], 10, 64)
	if err != nil {
		return 0, utils.BadRequest(errors.WithMessage(err, name))
	}
	return v, nil
}

func convertBridgeError(err error) error {
	var unknown *bridge.NetworkUnknownError
	switch {
	case errors.As(err, &unknown),
		errors.Is(err, bridge.ErrInvalidRecord),
		errors.Is(err, bridge.ErrInvalidClaimProof):
		return utils.BadRequest(err)
	case errors.Is(err, bridge.ErrAlreadyClaimed),
		errors.Is(err, bridge.ErrRootNotConfirmed):
		return utils.Conflict(err)
	default:
		return err
	}
}

// DepositReceipt acknowledges a recorded deposit.
type DepositReceipt struct {
	Index uint64       `json:"index"`
	Root  span.Bytes32 `json:"root"`
}

// RootStatus pairs a tree root with its leaf count.
type RootStatus struct {
	Root  span.Bytes32 `json:"root"`
	Count uint64       `json:"count"`
}

// ClaimRequest carries a claim record and the membership proof of its deposit.
type ClaimRequest struct {
	Record bridge.ClaimRecord `json:"record"`
	Proof  tree.Proof         `json:"proof"`
}

// ClaimReceipt acknowledges a recorded claim.
type ClaimReceipt struct {
	Root span.Bytes32 `json:"root"`
}

func (t *Transfers) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/networks").
		Methods(http.MethodGet).
		Name("GET /transfers/networks").
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetNetworks))
	sub.Path("/claims").
		Methods(http.MethodPost).
		Name("POST /transfers/claims").
		HandlerFunc(utils.WrapHandlerFunc(t.handleRecordClaim))
	sub.Path("/{networkID}/deposits").
		Methods(http.MethodPost).
		Name("POST /transfers/{networkID}/deposits").
		HandlerFunc(utils.WrapHandlerFunc(t.handleRecordDeposit))
	sub.Path("/{networkID}/deposits/root").
		Methods(http.MethodGet).
		Name("GET /transfers/{networkID}/deposits/root").
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetDepositRoot))
	sub.Path("/{networkID}/deposits/{index}/proof").
		Methods(http.MethodGet).
		Name("GET /transfers/{networkID}/deposits/{index}/proof").
		HandlerFunc(utils.WrapHandlerFunc(t.handleProveDeposit))
	sub.Path("/{networkID}/claims/root").
		Methods(http.MethodGet).
		Name("GET /transfers/{networkID}/claims/root").
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetClaimRoot))
	sub.Path("/{networkID}/claimed/{index}").
		Methods(http.MethodGet).
		Name("GET /transfers/{networkID}/claimed/{index}").
		HandlerFunc(utils.WrapHandlerFunc(t.handleGetClaimed))
}
