// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package span

import "math/big"

// Constants of the bridge protocol.
const (
	// TreeDepth is the fixed depth of the commitment trees.
	TreeDepth = 32

	// QuorumNumerator / QuorumDenominator define the attestation quorum
	// threshold: ceil(0.67 x active validator count).
	QuorumNumerator   uint64 = 67
	QuorumDenominator uint64 = 100

	// EpochsPerYear converts the annualized reward base rate into a
	// per-epoch pool.
	EpochsPerYear uint64 = 2190 // 4-hour epochs

	// RewardBaseRateBps is the annualized reward base rate, in basis points.
	RewardBaseRateBps uint64 = 500 // 5%

	// AttestationPointsWeight scales the net attestation record when
	// computing reward points.
	AttestationPointsWeight uint64 = 10

	// MinPerformanceBps is the minimum valid/total attestation ratio, in
	// basis points, for a validator to earn epoch rewards.
	MinPerformanceBps uint64 = 5000 // 50%

	// EarlyBonusEpochs is the window over which the early-participation
	// reward bonus linearly decays to zero.
	EarlyBonusEpochs uint64 = 100
	// EarlyBonusMaxBps is the bonus applied to a share at epoch zero of
	// participation, in basis points.
	EarlyBonusMaxBps uint64 = 1000 // 10%
)

// BLS domain separation tags. The PoP tag matches the one used by the
// on-chain stake manager so fixtures are interchangeable.
const (
	DomainProofOfPossession = "StakeManager:BN254:PoP:v1:"
	DomainAttestation       = "ValidatorManager:BN254:Attest:v1:"
)

// Reward pool bounds and damping, POC-tuned. Kept verbatim for
// compatibility with the settlement contracts.
var (
	// RewardPoolMinDivisor bounds the epoch pool from below: totalStaked / 1e6.
	RewardPoolMinDivisor = big.NewInt(1e6)
	// RewardPoolMaxDivisor bounds the epoch pool from above: totalStaked / 1e4.
	RewardPoolMaxDivisor = big.NewInt(1e4)
	// RewardDampingUnit is the unit of the sqrt damping term: sqrt(totalStaked / 1e6).
	RewardDampingUnit = big.NewInt(1e6)
	// PointsScalingFactor divides stake when computing reward points.
	PointsScalingFactor = big.NewInt(1e18)
)

// Initial staking configuration. Stored content-addressed; validators stay
// pinned to the version they staked under.
var (
	InitialMinStake              = big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))
	InitialMinWithdraw           = big.NewInt(1e18)
	InitialUnstakeDelay   uint64 = 60 * 60 * 24 * 7 // 7 days
	InitialCorrectReward         = big.NewInt(1e16)
	InitialIncorrectPenalty      = big.NewInt(0).Mul(big.NewInt(10), big.NewInt(1e18))
	InitialMaxMissedProofs uint32 = 10
	InitialSlashingRateBps uint32 = 1000 // 10%
)
