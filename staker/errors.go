// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import "errors"

var (
	// ErrInvalidProof is returned when the BLS proof-of-possession does not
	// verify against the declared public key and the staker's wallet.
	ErrInvalidProof = errors.New("invalid proof of possession")

	// ErrBelowMinStake is returned when a first-time stake does not meet the
	// active configuration's minimum.
	ErrBelowMinStake = errors.New("stake below minimum")

	// ErrKeyMismatch is returned when a top-up declares a BLS key different
	// from the one registered on first stake.
	ErrKeyMismatch = errors.New("bls key does not match registered key")

	// ErrNotRegistered is returned when an operation targets a wallet with no
	// validator account.
	ErrNotRegistered = errors.New("validator not registered")

	// ErrInvalidAmount is returned for zero or malformed amounts, and for
	// jailed exits that are not a full exit.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrExitInProgress is returned when an exit is already pending.
	ErrExitInProgress = errors.New("exit already in progress")

	// ErrNoExitInProgress is returned by CompleteUnstaking when no exit was
	// requested.
	ErrNoExitInProgress = errors.New("no exit in progress")

	// ErrExitNotReady is returned when the unstake delay has not elapsed.
	ErrExitNotReady = errors.New("unstake delay not elapsed")

	// ErrRemainderBelowMin is returned when a partial exit would leave the
	// remaining stake below the pinned configuration's minimum.
	ErrRemainderBelowMin = errors.New("remaining stake below minimum")

	// ErrNoRewardsToClaim is returned when the pending reward balance is zero.
	ErrNoRewardsToClaim = errors.New("no rewards to claim")

	// ErrReserveExhausted is returned when the reward reserve for the staking
	// asset cannot cover a claim.
	ErrReserveExhausted = errors.New("reward reserve exhausted")

	// ErrNoEligibleValidators is returned when no distribution recipient
	// qualifies for the epoch.
	ErrNoEligibleValidators = errors.New("no eligible validators")

	// ErrSlashExceedsBalance is returned when a slash amount exceeds the
	// target's stake plus pending reward.
	ErrSlashExceedsBalance = errors.New("slash exceeds stake and reward")

	// ErrConfigUnknown is returned when a referenced configuration version is
	// not stored.
	ErrConfigUnknown = errors.New("unknown staking configuration")
)
