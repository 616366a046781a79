// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import (
	"math/big"

	"github.com/spanlabs/span/span"
)

var bps = big.NewInt(10000)

// EpochPool computes the reward pool for one epoch from the total staked
// principal: an annualized base rate split across the year's epochs, damped
// by sqrt(totalStaked / dampingUnit), and clamped into
// [totalStaked / 1e6, totalStaked / 1e4].
func EpochPool(totalStaked *big.Int) *big.Int {
	if totalStaked.Sign() <= 0 {
		return new(big.Int)
	}

	pool := new(big.Int).Mul(totalStaked, new(big.Int).SetUint64(span.RewardBaseRateBps))
	pool.Div(pool, bps)
	pool.Div(pool, new(big.Int).SetUint64(span.EpochsPerYear))

	damping := new(big.Int).Div(totalStaked, span.RewardDampingUnit)
	damping.Sqrt(damping)
	if damping.Cmp(bigOne) > 0 {
		pool.Div(pool, damping)
	}

	floor := new(big.Int).Div(totalStaked, span.RewardPoolMinDivisor)
	ceiling := new(big.Int).Div(totalStaked, span.RewardPoolMaxDivisor)
	if pool.Cmp(floor) < 0 {
		pool.Set(floor)
	}
	if pool.Cmp(ceiling) > 0 {
		pool.Set(ceiling)
	}
	return pool
}

// RewardPoints computes a validator's share weight for an epoch:
// stake scaled down to whole tokens plus a weighted net attestation record.
func RewardPoints(v *Validator) *big.Int {
	points := new(big.Int).Div(v.Stake, span.PointsScalingFactor)
	net := new(big.Int).SetUint64(v.NetAttestations())
	net.Mul(net, new(big.Int).SetUint64(span.AttestationPointsWeight))
	return points.Add(points, net)
}

// EarlyBonus returns the early-participation bonus on share for a validator
// that first staked sinceEpochs ago. The bonus starts at EarlyBonusMaxBps
// and decays linearly to zero over EarlyBonusEpochs.
func EarlyBonus(share *big.Int, sinceEpochs uint64) *big.Int {
	if sinceEpochs >= span.EarlyBonusEpochs {
		return new(big.Int)
	}
	bonusBps := span.EarlyBonusMaxBps * (span.EarlyBonusEpochs - sinceEpochs) / span.EarlyBonusEpochs
	bonus := new(big.Int).Mul(share, new(big.Int).SetUint64(bonusBps))
	return bonus.Div(bonus, bps)
}

// DistributeRewards credits epoch rewards to the eligible subset of
// recipients, proportionally to their points, and returns the total amount
// credited. A recipient is skipped when it is not Active, was already
// rewarded this epoch, underperforms the minimum attestation ratio, or holds
// less than its pinned minimum stake.
func (s *Staker) DistributeRewards(recipients []span.Address, epoch uint64) (*big.Int, error) {
	totalStaked, err := s.storage.totalStaked.Get()
	if err != nil {
		return nil, err
	}
	pool := EpochPool(totalStaked)

	type candidate struct {
		wallet span.Address
		entry  *Validator
		points *big.Int
	}
	var (
		eligible    []candidate
		totalPoints = new(big.Int)
	)
	for _, wallet := range recipients {
		v, err := s.storage.GetValidator(wallet)
		if err != nil {
			return nil, err
		}
		if v.IsEmpty() || v.Status != StatusActive {
			continue
		}
		if v.RewardedEpoch == epoch+1 {
			continue
		}
		if !v.MeetsPerformance(span.MinPerformanceBps) {
			continue
		}
		cfg, err := s.storage.GetConfig(v.ConfigHash)
		if err != nil {
			return nil, err
		}
		if v.Stake.Cmp(cfg.MinStake) < 0 {
			continue
		}
		points := RewardPoints(v)
		if points.Sign() == 0 {
			continue
		}
		eligible = append(eligible, candidate{wallet, v, points})
		totalPoints.Add(totalPoints, points)
	}
	if len(eligible) == 0 || totalPoints.Sign() == 0 || pool.Sign() == 0 {
		return nil, ErrNoEligibleValidators
	}

	distributed := new(big.Int)
	for _, c := range eligible {
		share := new(big.Int).Mul(pool, c.points)
		share.Div(share, totalPoints)

		since := span.EarlyBonusEpochs
		if c.entry.FirstStakeEpoch <= epoch {
			since = epoch - c.entry.FirstStakeEpoch
		}
		share.Add(share, EarlyBonus(share, since))

		c.entry.PendingReward = new(big.Int).Add(c.entry.PendingReward, share)
		c.entry.RewardedEpoch = epoch + 1
		if err := s.storage.SetValidator(c.wallet, c.entry); err != nil {
			return nil, err
		}
		distributed.Add(distributed, share)
	}

	metricStakeOps().AddWithLabel(1, map[string]string{"op": "distribute_rewards"})
	logger.Info("epoch rewards distributed",
		"epoch", epoch, "pool", pool, "recipients", len(eligible), "distributed", distributed)
	return distributed, nil
}
