// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package attestations

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/api/utils"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/quorum"
	"github.com/spanlabs/span/span"
)

type Attestations struct {
	core *bridge.Core
}

func New(core *bridge.Core) *Attestations {
	return &Attestations{core: core}
}

func (a *Attestations) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var body SubmitRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	err := a.core.SubmitAttestation(
		body.Caller,
		body.NetworkID, body.BlockNumber,
		body.BridgeRoot, body.StateRoot,
		body.Timestamp,
		body.Validator,
		body.Signature,
	)
	if err != nil {
		return convertQuorumError(err)
	}
	return a.writeTally(w, body.NetworkID, body.BlockNumber, body.BridgeRoot)
}

func (a *Attestations) handleSubmitAggregated(w http.ResponseWriter, req *http.Request) error {
	var body AggregatedRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	err := a.core.SubmitAggregated(
		body.NetworkID, body.BlockNumber,
		body.BridgeRoot, body.StateRoot,
		body.Timestamp,
		body.Participants,
		body.AggregatedSignature, body.AggregatedPublicKey,
	)
	if err != nil {
		return convertQuorumError(err)
	}
	return a.writeTally(w, body.NetworkID, body.BlockNumber, body.BridgeRoot)
}

func (a *Attestations) handleGetTally(w http.ResponseWriter, req *http.Request) error {
	networkID, err := parseUint(mux.Vars(req)["networkID"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "networkID"))
	}
	blockNumber, err := parseUint(mux.Vars(req)["blockNumber"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "blockNumber"))
	}
	bridgeRoot, err := span.ParseBytes32(mux.Vars(req)["root"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "root"))
	}
	return a.writeTally(w, networkID, blockNumber, bridgeRoot)
}

func (a *Attestations) handleGetConfirmed(w http.ResponseWriter, req *http.Request) error {
	networkID, err := parseUint(mux.Vars(req)["networkID"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "networkID"))
	}
	bridgeRoot, err := span.ParseBytes32(mux.Vars(req)["root"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "root"))
	}
	confirmed, err := a.core.IsConfirmed(networkID, bridgeRoot)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"confirmed": confirmed})
}

func (a *Attestations) writeTally(w http.ResponseWriter, networkID, blockNumber uint64, bridgeRoot span.Bytes32) error {
	pc, err := a.core.Attestation(quorum.Key(networkID, blockNumber, bridgeRoot))
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, convertTally(pc))
}

func convertQuorumError(err error) error {
	switch {
	case errors.Is(err, quorum.ErrCallerMismatch):
		return utils.Forbidden(err)
	case errors.Is(err, quorum.ErrValidatorNotActive),
		errors.Is(err, quorum.ErrInvalidSignature),
		errors.Is(err, quorum.ErrNoParticipants),
		errors.Is(err, quorum.ErrPublicKeyMismatch):
		return utils.BadRequest(err)
	case errors.Is(err, quorum.ErrAlreadyAttested):
		return utils.Conflict(err)
	default:
		return err
	}
}

func (a *Attestations) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /attestations").
		HandlerFunc(utils.WrapHandlerFunc(a.handleSubmit))
	sub.Path("/aggregated").
		Methods(http.MethodPost).
		Name("POST /attestations/aggregated").
		HandlerFunc(utils.WrapHandlerFunc(a.handleSubmitAggregated))
	// the confirmed route must precede the tally route or "confirmed"
	// would match as a block number
	sub.Path("/{networkID}/confirmed/{root}").
		Methods(http.MethodGet).
		Name("GET /attestations/{networkID}/confirmed/{root}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetConfirmed))
	sub.Path("/{networkID}/{blockNumber:[0-9]+}/{root}").
		Methods(http.MethodGet).
		Name("GET /attestations/{networkID}/{blockNumber}/{root}").
		HandlerFunc(utils.WrapHandlerFunc(a.handleGetTally))
}
