// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/spanlabs/span/span"
)

type Status = uint8

const (
	StatusInactive  = Status(iota) // jailed, or drained to reward-only
	StatusActive                   // eligible to attest and earn
	StatusUnstaking                // exit requested, delay running
)

// StatusName returns a human readable name for a validator status.
func StatusName(s Status) string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusUnstaking:
		return "unstaking"
	default:
		return "unknown"
	}
}

// Validator is a single validator account on the stake ledger.
type Validator struct {
	Wallet    span.Address // the wallet that staked and receives payouts
	PublicKey []byte       // registered BLS public key, raw G2 encoding

	Stake         *big.Int     // staked principal
	PendingReward *big.Int     // accrued, unclaimed rewards
	ConfigHash    span.Bytes32 // configuration version pinned at stake time

	Status         Status
	StakeTimestamp uint64   // unix seconds of the first stake
	ExitTimestamp  uint64   // unix seconds the pending exit matures, 0 = not exiting
	UnstakeAmount  *big.Int // amount requested for exit

	ValidAttestations   uint64 // settled correct attestations
	InvalidAttestations uint64 // settled equivocations

	FirstStakeEpoch uint64 // epoch of account creation, drives the early bonus
	RewardedEpoch   uint64 // last rewarded epoch plus one, 0 = never rewarded

	Next *span.Address `rlp:"nil"` // registry linked list
	Prev *span.Address `rlp:"nil"` // registry linked list
}

// IsEmpty returns whether the entry can be treated as empty.
func (v *Validator) IsEmpty() bool {
	return v.Wallet.IsZero()
}

// Balance returns stake plus pending reward.
func (v *Validator) Balance() *big.Int {
	return new(big.Int).Add(v.Stake, v.PendingReward)
}

// NetAttestations returns valid minus invalid attestations, floored at zero.
func (v *Validator) NetAttestations() uint64 {
	if v.InvalidAttestations >= v.ValidAttestations {
		return 0
	}
	return v.ValidAttestations - v.InvalidAttestations
}

// MeetsPerformance reports whether the validator's valid/total attestation
// ratio reaches minBps basis points. A validator with no settled attestations
// passes.
func (v *Validator) MeetsPerformance(minBps uint64) bool {
	total := v.ValidAttestations + v.InvalidAttestations
	if total == 0 {
		return true
	}
	return v.ValidAttestations*10000 >= total*minBps
}

// Config is one version of the staking terms. Versions are content-addressed
// by Hash; validators stay pinned to the version they staked under until they
// exit and restake.
type Config struct {
	MinStake              *big.Int
	MinWithdraw           *big.Int
	UnstakeDelay          uint64 // seconds
	CorrectProofReward    *big.Int
	IncorrectProofPenalty *big.Int
	MaxMissedProofs       uint32
	SlashingRateBps       uint32
	StakingAsset          span.Bytes32
}

// Hash derives the content address of the configuration.
func (c *Config) Hash() span.Bytes32 {
	encoded, err := rlp.EncodeToBytes(c)
	if err != nil {
		// all fields are RLP encodable, this cannot fail
		panic(err)
	}
	return span.Blake2b(encoded)
}

// IsEmpty returns whether the entry can be treated as empty.
func (c *Config) IsEmpty() bool {
	return c.MinStake == nil || c.MinStake.Sign() == 0
}

// DefaultConfig returns the genesis staking configuration.
func DefaultConfig() *Config {
	return &Config{
		MinStake:              new(big.Int).Set(span.InitialMinStake),
		MinWithdraw:           new(big.Int).Set(span.InitialMinWithdraw),
		UnstakeDelay:          span.InitialUnstakeDelay,
		CorrectProofReward:    new(big.Int).Set(span.InitialCorrectReward),
		IncorrectProofPenalty: new(big.Int).Set(span.InitialIncorrectPenalty),
		MaxMissedProofs:       span.InitialMaxMissedProofs,
		SlashingRateBps:       span.InitialSlashingRateBps,
		StakingAsset:          span.BytesToBytes32([]byte("native")),
	}
}
