// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validators

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
)

// Account is the wire shape of a validator record.
type Account struct {
	Wallet              span.Address  `json:"wallet"`
	PublicKey           hexutil.Bytes `json:"publicKey"`
	Stake               string        `json:"stake"`
	PendingReward       string        `json:"pendingReward"`
	UnstakeAmount       string        `json:"unstakeAmount"`
	ConfigHash          span.Bytes32  `json:"configHash"`
	Status              string        `json:"status"`
	StakeTimestamp      uint64        `json:"stakeTimestamp"`
	ExitTimestamp       uint64        `json:"exitTimestamp"`
	ValidAttestations   uint64        `json:"validAttestations"`
	InvalidAttestations uint64        `json:"invalidAttestations"`
	FirstStakeEpoch     uint64        `json:"firstStakeEpoch"`
}

func convertAccount(wallet span.Address, v *staker.Validator) *Account {
	return &Account{
		Wallet:              wallet,
		PublicKey:           v.PublicKey,
		Stake:               v.Stake.String(),
		PendingReward:       v.PendingReward.String(),
		UnstakeAmount:       v.UnstakeAmount.String(),
		ConfigHash:          v.ConfigHash,
		Status:              staker.StatusName(v.Status),
		StakeTimestamp:      v.StakeTimestamp,
		ExitTimestamp:       v.ExitTimestamp,
		ValidAttestations:   v.ValidAttestations,
		InvalidAttestations: v.InvalidAttestations,
		FirstStakeEpoch:     v.FirstStakeEpoch,
	}
}

// Config is the wire shape of a staking configuration.
type Config struct {
	Hash                  span.Bytes32 `json:"hash"`
	MinStake              string       `json:"minStake"`
	MinWithdraw           string       `json:"minWithdraw"`
	UnstakeDelay          uint64       `json:"unstakeDelay"`
	CorrectProofReward    string       `json:"correctProofReward"`
	IncorrectProofPenalty string       `json:"incorrectProofPenalty"`
	MaxMissedProofs       uint32       `json:"maxMissedProofs"`
	SlashingRateBps       uint32       `json:"slashingRateBps"`
	StakingAsset          span.Bytes32 `json:"stakingAsset"`
}

func convertConfig(cfg *staker.Config, hash span.Bytes32) *Config {
	return &Config{
		Hash:                  hash,
		MinStake:              cfg.MinStake.String(),
		MinWithdraw:           cfg.MinWithdraw.String(),
		UnstakeDelay:          cfg.UnstakeDelay,
		CorrectProofReward:    cfg.CorrectProofReward.String(),
		IncorrectProofPenalty: cfg.IncorrectProofPenalty.String(),
		MaxMissedProofs:       cfg.MaxMissedProofs,
		SlashingRateBps:       cfg.SlashingRateBps,
		StakingAsset:          cfg.StakingAsset,
	}
}

// Stats summarizes the validator set.
type Stats struct {
	ActiveCount uint64 `json:"activeCount"`
	TotalStaked string `json:"totalStaked"`
	Epoch       uint64 `json:"epoch"`
}

// StakeRequest registers a validator or tops up an existing stake.
type StakeRequest struct {
	Wallet    span.Address  `json:"wallet"`
	PublicKey hexutil.Bytes `json:"publicKey"`
	Proof     hexutil.Bytes `json:"proof"`
	Amount    string        `json:"amount"`
}

func (r *StakeRequest) decode() (span.Address, []byte, []byte, *big.Int, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return span.Address{}, nil, nil, nil, err
	}
	return r.Wallet, r.PublicKey, r.Proof, amount, nil
}

// UnstakeRequest starts an exit for part or all of a stake.
type UnstakeRequest struct {
	Wallet span.Address `json:"wallet"`
	Amount string       `json:"amount"`
}

func (r *UnstakeRequest) decode() (span.Address, *big.Int, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return span.Address{}, nil, err
	}
	return r.Wallet, amount, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("amount: expected decimal string")
	}
	return amount, nil
}
