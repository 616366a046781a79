// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bridge wires the commitment trees, the stake ledger, the quorum
// engine and the settlement finalizer into one engine. Every mutating
// operation runs under a single lock with a state checkpoint, so it either
// commits in full or leaves no trace.
package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/spanlabs/span/eventdb"
	"github.com/spanlabs/span/kv"
	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/metrics"
	"github.com/spanlabs/span/quorum"
	"github.com/spanlabs/span/settle"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/storage"
	"github.com/spanlabs/span/tree"
)

var (
	logger = log.WithContext("pkg", "bridge")

	metricOps = metrics.LazyLoadCounterVec("bridge_op_count", []string{"op", "outcome"})
)

// Component addresses partition the shared state between the engine's parts.
var (
	LedgerAddress    = span.BytesToAddress([]byte("span-stake-ledger"))
	QuorumAddress    = span.BytesToAddress([]byte("span-quorum-engine"))
	FinalizerAddress = span.BytesToAddress([]byte("span-settlement"))
	BridgeAddress    = span.BytesToAddress([]byte("span-bridge-core"))
)

var (
	// ErrAlreadyClaimed is returned when the referenced deposit was claimed
	// before.
	ErrAlreadyClaimed = errors.New("deposit already claimed")

	// ErrRootNotConfirmed is returned when the claim's source root has not
	// reached quorum confirmation.
	ErrRootNotConfirmed = errors.New("source root not confirmed")

	// ErrInvalidClaimProof is returned when the membership proof does not tie
	// the claim to its source root.
	ErrInvalidClaimProof = errors.New("invalid claim proof")

	// ErrInvalidRecord is returned for malformed deposit or claim records.
	ErrInvalidRecord = errors.New("invalid record")
)

var slotClaimed = storage.NameToSlot("claimed-deposits")

// Core is the bridge engine over one state store.
type Core struct {
	mu       sync.Mutex
	state    *state.State
	networks map[uint64]Network

	ledger    *staker.Staker
	quorum    *quorum.Engine
	finalizer *settle.Finalizer

	context *storage.Context
	claimed *storage.Mapping[span.Bytes32, bool]

	events *eventdb.EventDB
}

// New creates a bridge engine over store for the configured networks.
// Settlement proofs are checked by verifier under verifyingKey. The event db
// is optional; pass nil to disable the feed.
func New(store kv.Store, cfg *Config, verifier settle.ProofVerifier, verifyingKey span.Bytes32, events *eventdb.EventDB) *Core {
	st := state.New(store)
	ledger := staker.New(LedgerAddress, st)
	context := storage.NewContext(BridgeAddress, st)

	networks := make(map[uint64]Network, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks[n.ID] = n
	}

	return &Core{
		state:     st,
		networks:  networks,
		ledger:    ledger,
		quorum:    quorum.New(QuorumAddress, st, ledger),
		finalizer: settle.New(FinalizerAddress, st, ledger, verifier, verifyingKey),
		context:   context,
		claimed:   storage.NewMapping[span.Bytes32, bool](context, slotClaimed),
		events:    events,
	}
}

// Initialize commits the genesis staking configuration.
func (c *Core) Initialize() error {
	return c.run("initialize", func() ([]*eventdb.Event, error) {
		return nil, c.ledger.Initialize()
	})
}

// run executes one mutating operation all-or-nothing: on error the state
// journal rolls back to the checkpoint, on success the journal is committed
// to the store and the collected events are appended to the feed.
func (c *Core) run(op string, fn func() ([]*eventdb.Event, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	checkpoint := c.state.NewCheckpoint()
	events, err := fn()
	if err != nil {
		c.state.RevertTo(checkpoint)
		metricOps().AddWithLabel(1, map[string]string{"op": op, "outcome": "reverted"})
		return err
	}
	if err := c.state.Stage().Commit(); err != nil {
		return err
	}
	metricOps().AddWithLabel(1, map[string]string{"op": op, "outcome": "committed"})

	if c.events != nil && len(events) > 0 {
		if err := c.events.Append(events...); err != nil {
			// the feed is observability, a write failure must not undo state
			logger.Error("failed to append events", "err", err)
		}
	}
	return nil
}

func (c *Core) network(id uint64) error {
	if _, ok := c.networks[id]; !ok {
		return &NetworkUnknownError{ID: id}
	}
	return nil
}

// Networks lists the configured networks.
func (c *Core) Networks() []Network {
	networks := make([]Network, 0, len(c.networks))
	for _, n := range c.networks {
		networks = append(networks, n)
	}
	return networks
}

func (c *Core) depositTree(networkID uint64) *tree.Tree {
	return tree.New(c.context, fmt.Sprintf("deposit-tree-%d", networkID))
}

func (c *Core) claimTree(networkID uint64) *tree.Tree {
	return tree.New(c.context, fmt.Sprintf("claim-tree-%d", networkID))
}

//
// Commitment tree operations
//

// RecordDeposit appends a deposit to sourceNetwork's deposit tree and
// returns the assigned index and the new root.
func (c *Core) RecordDeposit(sourceNetwork uint64, record *DepositRecord, now uint64) (index uint64, root span.Bytes32, err error) {
	err = c.run("record_deposit", func() ([]*eventdb.Event, error) {
		if record == nil || record.Amount == nil || record.Amount.Sign() <= 0 || record.Recipient.IsZero() {
			return nil, ErrInvalidRecord
		}
		if record.DestinationNetwork == sourceNetwork {
			return nil, ErrInvalidRecord
		}
		if err := c.network(sourceNetwork); err != nil {
			return nil, err
		}
		if err := c.network(record.DestinationNetwork); err != nil {
			return nil, err
		}

		deposits := c.depositTree(sourceNetwork)
		index, err = deposits.Count()
		if err != nil {
			return nil, err
		}
		root, err = deposits.Insert(index, record.Leaf(sourceNetwork, index))
		if err != nil {
			return nil, err
		}

		logger.Info("deposit recorded",
			"network", sourceNetwork, "index", index, "root", root, "amount", record.Amount)
		return []*eventdb.Event{{
			Type:      eventdb.TypeDeposit,
			Network:   sourceNetwork,
			Wallet:    record.Recipient,
			Amount:    record.Amount,
			Root:      root,
			Timestamp: now,
		}}, nil
	})
	return
}

// RecordClaim releases a deposit on its destination network. The claim must
// reference a quorum-confirmed source root, carry a valid membership proof of
// the deposit under that root, and be the first claim for its deposit.
func (c *Core) RecordClaim(record *ClaimRecord, proof *tree.Proof, now uint64) (root span.Bytes32, err error) {
	err = c.run("record_claim", func() ([]*eventdb.Event, error) {
		if record == nil || record.Amount == nil || record.Amount.Sign() <= 0 || proof == nil {
			return nil, ErrInvalidRecord
		}
		if record.SourceNetwork == record.DestinationNetwork {
			return nil, ErrInvalidRecord
		}
		if err := c.network(record.SourceNetwork); err != nil {
			return nil, err
		}
		if err := c.network(record.DestinationNetwork); err != nil {
			return nil, err
		}

		claimedKey := ClaimedKey(record.SourceNetwork, record.SourceDepositIndex)
		claimed, err := c.claimed.Get(claimedKey)
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, ErrAlreadyClaimed
		}

		confirmed, err := c.quorum.IsConfirmed(record.SourceNetwork, record.SourceRoot)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return nil, ErrRootNotConfirmed
		}

		leaf := record.Deposit().Leaf(record.SourceNetwork, record.SourceDepositIndex)
		if proof.Index != record.SourceDepositIndex || !proof.Existence || proof.Value != leaf {
			return nil, ErrInvalidClaimProof
		}
		if !tree.Verify(proof, record.SourceRoot) {
			return nil, ErrInvalidClaimProof
		}

		claims := c.claimTree(record.DestinationNetwork)
		index, err := claims.Count()
		if err != nil {
			return nil, err
		}
		root, err = claims.Insert(index, record.Leaf())
		if err != nil {
			return nil, err
		}
		if err := c.claimed.Set(claimedKey, true); err != nil {
			return nil, err
		}

		logger.Info("claim recorded",
			"source", record.SourceNetwork, "destination", record.DestinationNetwork,
			"depositIndex", record.SourceDepositIndex, "root", root)
		return []*eventdb.Event{{
			Type:      eventdb.TypeClaim,
			Network:   record.DestinationNetwork,
			Wallet:    record.Recipient,
			Amount:    record.Amount,
			Root:      root,
			Timestamp: now,
		}}, nil
	})
	return
}

// IsClaimed reports whether the deposit was already claimed.
func (c *Core) IsClaimed(sourceNetwork, sourceDepositIndex uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed.Get(ClaimedKey(sourceNetwork, sourceDepositIndex))
}

// DepositRoot returns the current deposit tree root of a network.
func (c *Core) DepositRoot(networkID uint64) (span.Bytes32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.network(networkID); err != nil {
		return span.Bytes32{}, err
	}
	return c.depositTree(networkID).Root()
}

// ClaimRoot returns the current claim tree root of a network.
func (c *Core) ClaimRoot(networkID uint64) (span.Bytes32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.network(networkID); err != nil {
		return span.Bytes32{}, err
	}
	return c.claimTree(networkID).Root()
}

// DepositCount returns the number of deposits recorded for a network.
func (c *Core) DepositCount(networkID uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.network(networkID); err != nil {
		return 0, err
	}
	return c.depositTree(networkID).Count()
}

// ProveDeposit builds a membership proof for a deposit leaf.
func (c *Core) ProveDeposit(networkID, index uint64) (*tree.Proof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.network(networkID); err != nil {
		return nil, err
	}
	return c.depositTree(networkID).ProveMembership(index)
}

//
// Stake ledger operations
//

// Stake stakes amount for caller under the declared BLS key.
func (c *Core) Stake(caller span.Address, publicKey, proof []byte, amount *big.Int, now uint64) error {
	return c.run("stake", func() ([]*eventdb.Event, error) {
		epoch, err := c.finalizer.Epoch()
		if err != nil {
			return nil, err
		}
		if err := c.ledger.Stake(caller, publicKey, proof, amount, epoch, now); err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeStake,
			Wallet:    caller,
			Amount:    amount,
			Timestamp: now,
		}}, nil
	})
}

// BeginUnstaking requests an exit of amount for caller.
func (c *Core) BeginUnstaking(caller span.Address, amount *big.Int, now uint64) error {
	return c.run("begin_unstaking", func() ([]*eventdb.Event, error) {
		if err := c.ledger.BeginUnstaking(caller, amount, now); err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeUnstakeRequested,
			Wallet:    caller,
			Amount:    amount,
			Timestamp: now,
		}}, nil
	})
}

// CompleteUnstaking pays out caller's matured exit.
func (c *Core) CompleteUnstaking(caller span.Address, now uint64) (payout *big.Int, err error) {
	err = c.run("complete_unstaking", func() ([]*eventdb.Event, error) {
		payout, err = c.ledger.CompleteUnstaking(caller, now)
		if err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeUnstakeCompleted,
			Wallet:    caller,
			Amount:    payout,
			Timestamp: now,
		}}, nil
	})
	return
}

// ClaimRewards pays out caller's pending rewards.
func (c *Core) ClaimRewards(caller span.Address, now uint64) (payout *big.Int, err error) {
	err = c.run("claim_rewards", func() ([]*eventdb.Event, error) {
		payout, err = c.ledger.ClaimRewards(caller)
		if err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeRewardsClaimed,
			Wallet:    caller,
			Amount:    payout,
			Timestamp: now,
		}}, nil
	})
	return
}

// FundRewards credits the reward reserve for asset.
func (c *Core) FundRewards(asset span.Bytes32, amount *big.Int) error {
	return c.run("fund_rewards", func() ([]*eventdb.Event, error) {
		return nil, c.ledger.FundRewards(asset, amount)
	})
}

// DistributeRewards credits epoch rewards to the eligible recipients at the
// current settlement epoch.
func (c *Core) DistributeRewards(recipients []span.Address, now uint64) (distributed *big.Int, err error) {
	err = c.run("distribute_rewards", func() ([]*eventdb.Event, error) {
		epoch, err := c.finalizer.Epoch()
		if err != nil {
			return nil, err
		}
		distributed, err = c.ledger.DistributeRewards(recipients, epoch)
		if err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeRewardsDistribute,
			Amount:    distributed,
			Timestamp: now,
		}}, nil
	})
	return
}

// Validator returns the account for wallet, or nil if not registered.
func (c *Core) Validator(wallet span.Address) (*staker.Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Get(wallet)
}

// Validators lists all registered validator accounts in registration order.
func (c *Core) Validators() (map[span.Address]*staker.Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	validators := make(map[span.Address]*staker.Validator)
	err := c.ledger.All(func(wallet span.Address, v *staker.Validator) error {
		validators[wallet] = v
		return nil
	})
	return validators, err
}

// ActiveCount returns the number of Active validators.
func (c *Core) ActiveCount() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.ActiveCount()
}

// TotalStaked returns the total staked principal.
func (c *Core) TotalStaked() (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.TotalStaked()
}

// StakingConfig returns the active staking configuration and its hash.
func (c *Core) StakingConfig() (*staker.Config, span.Bytes32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.CurrentConfig()
}

//
// Quorum operations
//

// SubmitAttestation records a single validator attestation.
func (c *Core) SubmitAttestation(
	caller span.Address,
	networkID, blockNumber uint64,
	bridgeRoot, stateRoot span.Bytes32,
	timestamp uint64,
	validator span.Address,
	signature []byte,
) error {
	return c.run("submit_attestation", func() ([]*eventdb.Event, error) {
		if err := c.network(networkID); err != nil {
			return nil, err
		}
		if err := c.quorum.SubmitAttestation(caller, networkID, blockNumber, bridgeRoot, stateRoot, timestamp, validator, signature); err != nil {
			return nil, err
		}
		return c.confirmationEvents(networkID, blockNumber, bridgeRoot, timestamp)
	})
}

// SubmitAggregated records an aggregated attestation for a participant set.
func (c *Core) SubmitAggregated(
	networkID, blockNumber uint64,
	bridgeRoot, stateRoot span.Bytes32,
	timestamp uint64,
	participants []span.Address,
	aggregatedSignature, aggregatedPublicKey []byte,
) error {
	return c.run("submit_aggregated", func() ([]*eventdb.Event, error) {
		if err := c.network(networkID); err != nil {
			return nil, err
		}
		if err := c.quorum.SubmitAggregated(networkID, blockNumber, bridgeRoot, stateRoot, timestamp, participants, aggregatedSignature, aggregatedPublicKey); err != nil {
			return nil, err
		}
		return c.confirmationEvents(networkID, blockNumber, bridgeRoot, timestamp)
	})
}

func (c *Core) confirmationEvents(networkID, blockNumber uint64, bridgeRoot span.Bytes32, timestamp uint64) ([]*eventdb.Event, error) {
	pc, err := c.quorum.Get(quorum.Key(networkID, blockNumber, bridgeRoot))
	if err != nil {
		return nil, err
	}
	if !pc.Confirmed {
		return nil, nil
	}
	return []*eventdb.Event{{
		Type:      eventdb.TypeRootConfirmed,
		Network:   networkID,
		Root:      bridgeRoot,
		Timestamp: timestamp,
	}}, nil
}

// IsConfirmed reports whether bridgeRoot reached quorum on networkID.
func (c *Core) IsConfirmed(networkID uint64, bridgeRoot span.Bytes32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quorum.IsConfirmed(networkID, bridgeRoot)
}

// Attestation returns the tally for an attestation key.
func (c *Core) Attestation(key span.Bytes32) (*quorum.PreConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quorum.Get(key)
}

//
// Settlement operations
//

// Finalize verifies a settlement proof and applies its verdict.
func (c *Core) Finalize(publicValues, proof []byte, now uint64) (outcome *settle.Outcome, err error) {
	err = c.run("finalize", func() ([]*eventdb.Event, error) {
		outcome, err = c.finalizer.Finalize(publicValues, proof, now)
		if err != nil {
			return nil, err
		}
		return []*eventdb.Event{{
			Type:      eventdb.TypeSettled,
			Network:   outcome.NetworkID,
			Root:      outcome.ValidBridgeRoot,
			Timestamp: now,
		}}, nil
	})
	return
}

// Epoch returns the current settlement epoch.
func (c *Core) Epoch() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizer.Epoch()
}
