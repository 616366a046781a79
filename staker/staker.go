// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import (
	"bytes"
	"math/big"

	"github.com/pkg/errors"

	"github.com/spanlabs/span/bls"
	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/metrics"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/state"
)

var (
	logger = log.WithContext("pkg", "staker")

	metricStakeOps = metrics.LazyLoadCounterVec("stake_ledger_op_count", []string{"op"})
)

// Staker is the stake ledger. It owns validator accounts, configuration
// versions and the custody reserves, and is mutated only through the
// operations below.
type Staker struct {
	storage  *ledgerStorage
	registry *registry
}

// New creates a stake ledger instance bound to addr in state.
func New(addr span.Address, state *state.State) *Staker {
	store := newLedgerStorage(addr, state)
	return &Staker{
		storage:  store,
		registry: newRegistry(store),
	}
}

// Initialize stores the genesis configuration and marks it current, if no
// configuration is active yet.
func (s *Staker) Initialize() error {
	current, err := s.storage.current.Get()
	if err != nil {
		return err
	}
	if !current.IsZero() {
		return nil
	}
	hash, err := s.storage.SetConfig(DefaultConfig())
	if err != nil {
		return err
	}
	s.storage.current.Set(hash)
	logger.Info("stake ledger initialized", "config", hash)
	return nil
}

//
// Getters - no state change
//

// Get returns the validator account for wallet, or nil if not registered.
func (s *Staker) Get(wallet span.Address) (*Validator, error) {
	v, err := s.storage.GetValidator(wallet)
	if err != nil {
		return nil, err
	}
	if v.IsEmpty() {
		return nil, nil
	}
	return v, nil
}

// ActiveCount returns the number of validators with Active status.
func (s *Staker) ActiveCount() (uint64, error) {
	count, err := s.storage.activeCount.Get()
	if err != nil {
		return 0, err
	}
	return count.Uint64(), nil
}

// TotalStaked returns the sum of all validator principal.
func (s *Staker) TotalStaked() (*big.Int, error) {
	return s.storage.totalStaked.Get()
}

// All iterates every registered validator in registration order.
func (s *Staker) All(callback func(span.Address, *Validator) error) error {
	return s.registry.Iter(callback)
}

// CurrentConfig returns the active configuration version and its hash.
func (s *Staker) CurrentConfig() (*Config, span.Bytes32, error) {
	return s.storage.CurrentConfig()
}

// GetConfig returns a stored configuration version by hash.
func (s *Staker) GetConfig(hash span.Bytes32) (*Config, error) {
	return s.storage.GetConfig(hash)
}

// PrincipalReserve returns the principal custody balance for asset.
func (s *Staker) PrincipalReserve(asset span.Bytes32) (*big.Int, error) {
	return s.storage.reserve(s.storage.principalReserve, asset)
}

// RewardReserve returns the reward custody balance for asset.
func (s *Staker) RewardReserve(asset span.Bytes32) (*big.Int, error) {
	return s.storage.reserve(s.storage.rewardReserve, asset)
}

// SlashedReserve returns the slashed-funds balance for asset.
func (s *Staker) SlashedReserve(asset span.Bytes32) (*big.Int, error) {
	return s.storage.reserve(s.storage.slashedReserve, asset)
}

//
// State transitions
//

// UpgradeConfig stores a new configuration version and makes it current.
// Existing validators stay pinned to the version they staked under.
func (s *Staker) UpgradeConfig(c *Config) (span.Bytes32, error) {
	hash, err := s.storage.SetConfig(c)
	if err != nil {
		return span.Bytes32{}, err
	}
	s.storage.current.Set(hash)
	logger.Info("staking config upgraded", "config", hash)
	return hash, nil
}

// Stake creates or tops up the caller's validator account. The proof must be
// a BLS proof-of-possession of publicKey bound to the caller's wallet.
// First-time stakes must meet the current configuration's minimum and pin
// that configuration; top-ups run under the pinned version. A jailed account
// whose top-up restores the minimum becomes Active again.
func (s *Staker) Stake(caller span.Address, publicKey, proof []byte, amount *big.Int, epoch, now uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	pk, err := bls.ParsePublicKey(publicKey)
	if err != nil {
		return errors.Wrap(ErrInvalidProof, err.Error())
	}
	sig, err := bls.ParseSignature(proof)
	if err != nil {
		return errors.Wrap(ErrInvalidProof, err.Error())
	}
	ok, err := bls.VerifyPossession(pk, caller, sig)
	if err != nil {
		return errors.Wrap(err, "failed to verify possession")
	}
	if !ok {
		return ErrInvalidProof
	}

	v, err := s.storage.GetValidator(caller)
	if err != nil {
		return err
	}

	if v.IsEmpty() {
		cfg, hash, err := s.storage.CurrentConfig()
		if err != nil {
			return err
		}
		if amount.Cmp(cfg.MinStake) < 0 {
			return ErrBelowMinStake
		}

		entry := &Validator{
			Wallet:          caller,
			PublicKey:       pk.Bytes(),
			Stake:           new(big.Int).Set(amount),
			PendingReward:   new(big.Int),
			ConfigHash:      hash,
			Status:          StatusActive,
			StakeTimestamp:  now,
			UnstakeAmount:   new(big.Int),
			FirstStakeEpoch: epoch,
		}
		if _, err := s.registry.Add(caller, entry); err != nil {
			return err
		}
		if err := s.storage.activeCount.Add(bigOne); err != nil {
			return err
		}
		if err := s.storage.totalStaked.Add(amount); err != nil {
			return err
		}
		if err := s.storage.addReserve(s.storage.principalReserve, cfg.StakingAsset, amount); err != nil {
			return err
		}

		metricStakeOps().AddWithLabel(1, map[string]string{"op": "stake"})
		logger.Info("validator registered", "wallet", caller, "stake", amount)
		return nil
	}

	// top-up path
	if v.Status == StatusUnstaking {
		return ErrExitInProgress
	}
	if !bytes.Equal(v.PublicKey, pk.Bytes()) {
		return ErrKeyMismatch
	}
	cfg, err := s.storage.GetConfig(v.ConfigHash)
	if err != nil {
		return err
	}

	v.Stake = new(big.Int).Add(v.Stake, amount)
	if v.Status == StatusInactive && v.Stake.Cmp(cfg.MinStake) >= 0 {
		v.Status = StatusActive
		v.ExitTimestamp = 0
		if err := s.storage.activeCount.Add(bigOne); err != nil {
			return err
		}
		logger.Info("validator recovered from jail", "wallet", caller)
	}
	if err := s.storage.SetValidator(caller, v); err != nil {
		return err
	}
	if err := s.storage.totalStaked.Add(amount); err != nil {
		return err
	}
	if err := s.storage.addReserve(s.storage.principalReserve, cfg.StakingAsset, amount); err != nil {
		return err
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "stake"})
	logger.Debug("stake topped up", "wallet", caller, "amount", amount)
	return nil
}

// BeginUnstaking requests an exit of amount. A partial exit must leave the
// remaining stake at or above the pinned minimum. A jailed account may only
// request a full exit of stake plus pending reward, which matures
// immediately; its pending reward is converted to owed principal so the
// payout draws from a single reserve.
func (s *Staker) BeginUnstaking(caller span.Address, amount *big.Int, now uint64) error {
	v, err := s.storage.GetValidator(caller)
	if err != nil {
		return err
	}
	if v.IsEmpty() {
		return ErrNotRegistered
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cfg, err := s.storage.GetConfig(v.ConfigHash)
	if err != nil {
		return err
	}

	if v.Status == StatusInactive {
		// jailed fast exit
		total := v.Balance()
		if amount.Cmp(total) != 0 {
			return ErrInvalidAmount
		}
		if v.PendingReward.Sign() > 0 {
			if err := s.storage.subReserve(s.storage.rewardReserve, cfg.StakingAsset, v.PendingReward); err != nil {
				return errors.Wrap(ErrReserveExhausted, err.Error())
			}
			if err := s.storage.addReserve(s.storage.principalReserve, cfg.StakingAsset, v.PendingReward); err != nil {
				return err
			}
		}
		if err := s.storage.totalStaked.Sub(v.Stake); err != nil {
			return err
		}
		v.UnstakeAmount = total
		v.Stake = new(big.Int)
		v.PendingReward = new(big.Int)
		v.Status = StatusUnstaking
		v.ExitTimestamp = now
		if err := s.storage.SetValidator(caller, v); err != nil {
			return err
		}

		metricStakeOps().AddWithLabel(1, map[string]string{"op": "begin_unstaking"})
		logger.Info("jailed validator exiting", "wallet", caller, "amount", total)
		return nil
	}

	if v.ExitTimestamp != 0 || v.Status == StatusUnstaking {
		return ErrExitInProgress
	}
	if amount.Cmp(v.Stake) > 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(cfg.MinWithdraw) < 0 {
		return ErrInvalidAmount
	}
	remainder := new(big.Int).Sub(v.Stake, amount)
	if remainder.Sign() > 0 && remainder.Cmp(cfg.MinStake) < 0 {
		return ErrRemainderBelowMin
	}

	v.UnstakeAmount = new(big.Int).Set(amount)
	v.ExitTimestamp = now + cfg.UnstakeDelay
	v.Status = StatusUnstaking
	if err := s.storage.SetValidator(caller, v); err != nil {
		return err
	}
	if err := s.storage.activeCount.Sub(bigOne); err != nil {
		return err
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "begin_unstaking"})
	logger.Info("unstaking requested", "wallet", caller, "amount", amount, "matures", v.ExitTimestamp)
	return nil
}

// CompleteUnstaking pays out a matured exit. The amount is deducted from
// stake principal first, then pending reward, then any remaining principal.
// An account drained to zero stake and zero reward is deleted.
func (s *Staker) CompleteUnstaking(caller span.Address, now uint64) (*big.Int, error) {
	v, err := s.storage.GetValidator(caller)
	if err != nil {
		return nil, err
	}
	if v.IsEmpty() {
		return nil, ErrNotRegistered
	}
	if v.UnstakeAmount.Sign() == 0 {
		return nil, ErrNoExitInProgress
	}
	if now < v.ExitTimestamp {
		return nil, ErrExitNotReady
	}
	cfg, err := s.storage.GetConfig(v.ConfigHash)
	if err != nil {
		return nil, err
	}

	payout := new(big.Int).Set(v.UnstakeAmount)

	fromStake := bigMin(payout, v.Stake)
	rest := new(big.Int).Sub(payout, fromStake)
	fromReward := bigMin(rest, v.PendingReward)
	rest.Sub(rest, fromReward)
	// rest > 0 only for a jailed fast exit, whose balances were zeroed and
	// whose reward was folded into the principal reserve up front
	fromPrincipalReserve := new(big.Int).Add(fromStake, rest)

	v.Stake = new(big.Int).Sub(v.Stake, fromStake)
	v.PendingReward = new(big.Int).Sub(v.PendingReward, fromReward)

	if err := s.storage.subReserve(s.storage.principalReserve, cfg.StakingAsset, fromPrincipalReserve); err != nil {
		return nil, err
	}
	if fromReward.Sign() > 0 {
		if err := s.storage.subReserve(s.storage.rewardReserve, cfg.StakingAsset, fromReward); err != nil {
			return nil, err
		}
	}
	if fromStake.Sign() > 0 {
		if err := s.storage.totalStaked.Sub(fromStake); err != nil {
			return nil, err
		}
	}

	if v.Stake.Sign() == 0 && v.PendingReward.Sign() == 0 {
		if _, err := s.registry.Remove(caller, v); err != nil {
			return nil, err
		}
		if err := s.storage.DeleteValidator(caller); err != nil {
			return nil, err
		}
		metricStakeOps().AddWithLabel(1, map[string]string{"op": "complete_unstaking"})
		logger.Info("validator exited", "wallet", caller, "payout", payout)
		return payout, nil
	}

	v.UnstakeAmount = new(big.Int)
	v.ExitTimestamp = 0
	if v.Stake.Sign() > 0 {
		// partial exit keeps the remainder at or above the minimum
		v.Status = StatusActive
		if err := s.storage.activeCount.Add(bigOne); err != nil {
			return nil, err
		}
	} else {
		// stake fully withdrawn, unclaimed rewards keep the account alive
		v.Status = StatusInactive
	}
	if err := s.storage.SetValidator(caller, v); err != nil {
		return nil, err
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "complete_unstaking"})
	logger.Info("unstaking completed", "wallet", caller, "payout", payout)
	return payout, nil
}

// Slash deducts amount from the target, preferring stake principal over
// pending reward, and moves the deducted principal into the slashed reserve. The
// split is returned. A slash that leaves nonzero stake below the pinned
// minimum jails the validator with an immediately matured exit window.
// The settlement finalizer is the only caller.
func (s *Staker) Slash(target span.Address, amount *big.Int, now uint64) (fromStake, fromReward *big.Int, err error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	v, err := s.storage.GetValidator(target)
	if err != nil {
		return nil, nil, err
	}
	if v.IsEmpty() {
		return nil, nil, ErrNotRegistered
	}
	if amount.Cmp(v.Balance()) > 0 {
		return nil, nil, ErrSlashExceedsBalance
	}
	cfg, err := s.storage.GetConfig(v.ConfigHash)
	if err != nil {
		return nil, nil, err
	}

	fromStake = bigMin(amount, v.Stake)
	fromReward = new(big.Int).Sub(amount, fromStake)

	v.Stake = new(big.Int).Sub(v.Stake, fromStake)
	v.PendingReward = new(big.Int).Sub(v.PendingReward, fromReward)
	if v.UnstakeAmount.Cmp(v.Balance()) > 0 {
		// a pending exit cannot pay out more than what is left
		v.UnstakeAmount = v.Balance()
	}

	// Only the principal portion moves custody funds. Pending reward is an
	// unfunded liability until paid out, so slashing it just cancels the
	// liability; the reward reserve is drawn at payout time only.
	if fromStake.Sign() > 0 {
		if err := s.storage.subReserve(s.storage.principalReserve, cfg.StakingAsset, fromStake); err != nil {
			return nil, nil, err
		}
		if err := s.storage.totalStaked.Sub(fromStake); err != nil {
			return nil, nil, err
		}
		if err := s.storage.addReserve(s.storage.slashedReserve, cfg.StakingAsset, fromStake); err != nil {
			return nil, nil, err
		}
	}

	if v.Status == StatusActive && v.Stake.Cmp(cfg.MinStake) < 0 {
		v.Status = StatusInactive
		v.ExitTimestamp = now
		if err := s.storage.activeCount.Sub(bigOne); err != nil {
			return nil, nil, err
		}
		logger.Warn("validator jailed", "wallet", target, "stake", v.Stake)
	}
	if err := s.storage.SetValidator(target, v); err != nil {
		return nil, nil, err
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "slash"})
	logger.Warn("validator slashed", "wallet", target, "amount", amount, "fromStake", fromStake, "fromReward", fromReward)
	return fromStake, fromReward, nil
}

// ClaimRewards pays out the caller's pending reward from the reward reserve.
func (s *Staker) ClaimRewards(caller span.Address) (*big.Int, error) {
	v, err := s.storage.GetValidator(caller)
	if err != nil {
		return nil, err
	}
	if v.IsEmpty() {
		return nil, ErrNotRegistered
	}
	if v.PendingReward.Sign() == 0 {
		return nil, ErrNoRewardsToClaim
	}
	cfg, err := s.storage.GetConfig(v.ConfigHash)
	if err != nil {
		return nil, err
	}

	payout := new(big.Int).Set(v.PendingReward)
	reserve, err := s.storage.reserve(s.storage.rewardReserve, cfg.StakingAsset)
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(payout) < 0 {
		return nil, ErrReserveExhausted
	}
	if err := s.storage.subReserve(s.storage.rewardReserve, cfg.StakingAsset, payout); err != nil {
		return nil, err
	}

	v.PendingReward = new(big.Int)
	if err := s.storage.SetValidator(caller, v); err != nil {
		return nil, err
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "claim_rewards"})
	logger.Info("rewards claimed", "wallet", caller, "amount", payout)
	return payout, nil
}

// FundRewards credits the reward reserve for asset.
func (s *Staker) FundRewards(asset span.Bytes32, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.storage.addReserve(s.storage.rewardReserve, asset, amount)
}

// RecordAttestationResult adjusts the settled attestation counters of a
// validator. The settlement finalizer is the only caller.
func (s *Staker) RecordAttestationResult(wallet span.Address, valid bool) error {
	v, err := s.storage.GetValidator(wallet)
	if err != nil {
		return err
	}
	if v.IsEmpty() {
		return ErrNotRegistered
	}
	if valid {
		v.ValidAttestations++
	} else {
		v.InvalidAttestations++
	}
	return s.storage.SetValidator(wallet, v)
}

// CreditReward adds amount to a validator's pending reward without touching
// any reserve. The settlement finalizer uses this for correct-proof rewards.
func (s *Staker) CreditReward(wallet span.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	v, err := s.storage.GetValidator(wallet)
	if err != nil {
		return err
	}
	if v.IsEmpty() {
		return ErrNotRegistered
	}
	v.PendingReward = new(big.Int).Add(v.PendingReward, amount)
	return s.storage.SetValidator(wallet, v)
}

var bigOne = big.NewInt(1)

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
