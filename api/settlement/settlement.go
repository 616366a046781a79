// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settlement

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/api/utils"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/settle"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
)

type Settlement struct {
	core *bridge.Core
}

func New(core *bridge.Core) *Settlement {
	return &Settlement{core: core}
}

// FinalizeRequest carries a settlement proof and its public values.
type FinalizeRequest struct {
	PublicValues hexutil.Bytes `json:"publicValues"`
	Proof        hexutil.Bytes `json:"proof"`
}

// DistributeRequest names the epoch reward recipients.
type DistributeRequest struct {
	Recipients []span.Address `json:"recipients"`
}

func (s *Settlement) handleFinalize(w http.ResponseWriter, req *http.Request) error {
	var body FinalizeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	outcome, err := s.core.Finalize(body.PublicValues, body.Proof, now())
	if err != nil {
		switch {
		case errors.Is(err, settle.ErrProofRejected),
			errors.Is(err, settle.ErrBadPublicValues):
			return utils.BadRequest(err)
		default:
			return err
		}
	}
	return utils.WriteJSON(w, outcome)
}

func (s *Settlement) handleGetEpoch(w http.ResponseWriter, _ *http.Request) error {
	epoch, err := s.core.Epoch()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"epoch": epoch})
}

func (s *Settlement) handleDistribute(w http.ResponseWriter, req *http.Request) error {
	var body DistributeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if len(body.Recipients) == 0 {
		return utils.BadRequest(errors.New("recipients: empty"))
	}
	distributed, err := s.core.DistributeRewards(body.Recipients, now())
	if err != nil {
		if errors.Is(err, staker.ErrNoEligibleValidators) {
			return utils.Conflict(err)
		}
		return err
	}
	return utils.WriteJSON(w, utils.M{"distributed": distributed.String()})
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

func (s *Settlement) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/finalize").
		Methods(http.MethodPost).
		Name("POST /settlement/finalize").
		HandlerFunc(utils.WrapHandlerFunc(s.handleFinalize))
	sub.Path("/epoch").
		Methods(http.MethodGet).
		Name("GET /settlement/epoch").
		HandlerFunc(utils.WrapHandlerFunc(s.handleGetEpoch))
	sub.Path("/rewards/distribute").
		Methods(http.MethodPost).
		Name("POST /settlement/rewards/distribute").
		HandlerFunc(utils.WrapHandlerFunc(s.handleDistribute))
}
