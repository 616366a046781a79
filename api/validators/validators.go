// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validators

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/api/utils"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
)

type Validators struct {
	core *bridge.Core
}

func New(core *bridge.Core) *Validators {
	return &Validators{core: core}
}

func (v *Validators) handleGetList(w http.ResponseWriter, _ *http.Request) error {
	accounts, err := v.core.Validators()
	if err != nil {
		return err
	}
	list := make([]*Account, 0, len(accounts))
	for wallet, account := range accounts {
		list = append(list, convertAccount(wallet, account))
	}
	return utils.WriteJSON(w, list)
}

func (v *Validators) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	wallet, err := span.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	account, err := v.core.Validator(*wallet)
	if err != nil {
		return err
	}
	if account == nil {
		return utils.NotFound(errors.New("validator not registered"))
	}
	return utils.WriteJSON(w, convertAccount(*wallet, account))
}

func (v *Validators) handleGetConfig(w http.ResponseWriter, _ *http.Request) error {
	cfg, hash, err := v.core.StakingConfig()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, convertConfig(cfg, hash))
}

func (v *Validators) handleGetStats(w http.ResponseWriter, _ *http.Request) error {
	active, err := v.core.ActiveCount()
	if err != nil {
		return err
	}
	total, err := v.core.TotalStaked()
	if err != nil {
		return err
	}
	epoch, err := v.core.Epoch()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Stats{
		ActiveCount: active,
		TotalStaked: total.String(),
		Epoch:       epoch,
	})
}

func (v *Validators) handleStake(w http.ResponseWriter, req *http.Request) error {
	var body StakeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	wallet, publicKey, proof, amount, err := body.decode()
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := v.core.Stake(wallet, publicKey, proof, amount, now()); err != nil {
		return convertLedgerError(err)
	}
	account, err := v.core.Validator(wallet)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, convertAccount(wallet, account))
}

func (v *Validators) handleBeginUnstaking(w http.ResponseWriter, req *http.Request) error {
	var body UnstakeRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	wallet, amount, err := body.decode()
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := v.core.BeginUnstaking(wallet, amount, now()); err != nil {
		return convertLedgerError(err)
	}
	account, err := v.core.Validator(wallet)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, convertAccount(wallet, account))
}

func (v *Validators) handleCompleteUnstaking(w http.ResponseWriter, req *http.Request) error {
	wallet, err := span.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	payout, err := v.core.CompleteUnstaking(*wallet, now())
	if err != nil {
		return convertLedgerError(err)
	}
	return utils.WriteJSON(w, utils.M{"payout": payout.String()})
}

func (v *Validators) handleClaimRewards(w http.ResponseWriter, req *http.Request) error {
	wallet, err := span.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	payout, err := v.core.ClaimRewards(*wallet, now())
	if err != nil {
		return convertLedgerError(err)
	}
	return utils.WriteJSON(w, utils.M{"payout": payout.String()})
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

// convertLedgerError maps stake ledger errors onto http statuses.
func convertLedgerError(err error) error {
	switch {
	case errors.Is(err, staker.ErrNotRegistered):
		return utils.NotFound(err)
	case errors.Is(err, staker.ErrInvalidProof),
		errors.Is(err, staker.ErrBelowMinStake),
		errors.Is(err, staker.ErrKeyMismatch),
		errors.Is(err, staker.ErrInvalidAmount),
		errors.Is(err, staker.ErrRemainderBelowMin):
		return utils.BadRequest(err)
	case errors.Is(err, staker.ErrExitInProgress),
		errors.Is(err, staker.ErrNoExitInProgress),
		errors.Is(err, staker.ErrExitNotReady),
		errors.Is(err, staker.ErrNoRewardsToClaim),
		errors.Is(err, staker.ErrReserveExhausted):
		return utils.Conflict(err)
	default:
		return err
	}
}

func (v *Validators) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /validators").
		HandlerFunc(utils.WrapHandlerFunc(v.handleGetList))
	sub.Path("/stats").
		Methods(http.MethodGet).
		Name("GET /validators/stats").
		HandlerFunc(utils.WrapHandlerFunc(v.handleGetStats))
	sub.Path("/config").
		Methods(http.MethodGet).
		Name("GET /validators/config").
		HandlerFunc(utils.WrapHandlerFunc(v.handleGetConfig))
	sub.Path("/stake").
		Methods(http.MethodPost).
		Name("POST /validators/stake").
		HandlerFunc(utils.WrapHandlerFunc(v.handleStake))
	sub.Path("/unstake").
		Methods(http.MethodPost).
		Name("POST /validators/unstake").
		HandlerFunc(utils.WrapHandlerFunc(v.handleBeginUnstaking))
	sub.Path("/{address}").
		Methods(http.MethodGet).
		Name("GET /validators/{address}").
		HandlerFunc(utils.WrapHandlerFunc(v.handleGetAccount))
	sub.Path("/{address}/unstake/complete").
		Methods(http.MethodPost).
		Name("POST /validators/{address}/unstake/complete").
		HandlerFunc(utils.WrapHandlerFunc(v.handleCompleteUnstaking))
	sub.Path("/{address}/rewards/claim").
		Methods(http.MethodPost).
		Name("POST /validators/{address}/rewards/claim").
		HandlerFunc(utils.WrapHandlerFunc(v.handleClaimRewards))
}
