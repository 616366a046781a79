// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bridge

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/bls"
	"github.com/spanlabs/span/eventdb"
	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/quorum"
	"github.com/spanlabs/span/settle"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
	"github.com/spanlabs/span/test/datagen"
	"github.com/spanlabs/span/tree"
)

var acceptAll = settle.VerifierFunc(func(_ span.Bytes32, _, _ []byte) error { return nil })

func testConfig() *Config {
	return &Config{Networks: []Network{
		{ID: 1, Name: "origin"},
		{ID: 2, Name: "remote"},
	}}
}

type testValidator struct {
	addr span.Address
	sk   *bls.SecretKey
}

func newTestCore(t *testing.T, validators int) (*Core, []*testValidator) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events, err := eventdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	core := New(db, testConfig(), acceptAll, span.BytesToBytes32([]byte("vkey")), events)
	require.NoError(t, core.Initialize())

	vals := make([]*testValidator, 0, validators)
	for i := range validators {
		v := &testValidator{
			addr: span.BytesToAddress([]byte(fmt.Sprintf("bridge-val-%d", i))),
			sk:   bls.NewSecretKeyFromSeed([]byte(fmt.Sprintf("bridge-seed-%d", i))),
		}
		proof, err := v.sk.ProvePossession(v.addr)
		require.NoError(t, err)
		require.NoError(t, core.Stake(v.addr, v.sk.PublicKey().Bytes(), proof.Bytes(), span.InitialMinStake, 0))
		vals = append(vals, v)
	}
	return core, vals
}

// confirmRoot drives bridgeRoot through quorum on networkID.
func confirmRoot(t *testing.T, core *Core, vals []*testValidator, networkID, blockNumber uint64, bridgeRoot span.Bytes32) {
	t.Helper()
	stateRoot := datagen.RandBytes32()
	timestamp := uint64(1000)
	for _, v := range vals {
		digest := bls.AttestationDigest(networkID, blockNumber, bridgeRoot, stateRoot, timestamp)
		msg := bls.AttestationMessage(v.sk.PublicKey(), v.addr, digest)
		sig, err := v.sk.Sign(msg, span.DomainAttestation)
		require.NoError(t, err)
		require.NoError(t, core.SubmitAttestation(v.addr, networkID, blockNumber, bridgeRoot, stateRoot, timestamp, v.addr, sig.Bytes()))
	}
	confirmed, err := core.IsConfirmed(networkID, bridgeRoot)
	require.NoError(t, err)
	require.True(t, confirmed)
}

func TestDepositAndClaimFlow(t *testing.T) {
	core, vals := newTestCore(t, 3)

	deposit := &DepositRecord{
		Amount:             big.NewInt(5000),
		AssetID:            span.BytesToBytes32([]byte("native")),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 2,
	}
	index, root, err := core.RecordDeposit(1, deposit, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), index)
	assert.False(t, root.IsZero())

	confirmRoot(t, core, vals, 1, 7, root)

	proof, err := core.ProveDeposit(1, index)
	require.NoError(t, err)
	require.True(t, proof.Existence)

	claim := &ClaimRecord{
		SourceDepositIndex: index,
		SourceNetwork:      1,
		SourceRoot:         root,
		Claimer:            deposit.Recipient,
		Recipient:          deposit.Recipient,
		Amount:             deposit.Amount,
		AssetID:            deposit.AssetID,
		Timestamp:          200,
		DestinationNetwork: 2,
	}
	claimRoot, err := core.RecordClaim(claim, proof, 200)
	require.NoError(t, err)
	assert.False(t, claimRoot.IsZero())

	claimed, err := core.IsClaimed(1, index)
	require.NoError(t, err)
	assert.True(t, claimed)

	// the same deposit cannot be claimed twice
	_, err = core.RecordClaim(claim, proof, 201)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimRequiresConfirmedRoot(t *testing.T) {
	core, _ := newTestCore(t, 3)

	deposit := &DepositRecord{
		Amount:             big.NewInt(100),
		AssetID:            datagen.RandBytes32(),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 2,
	}
	index, root, err := core.RecordDeposit(1, deposit, 0)
	require.NoError(t, err)

	proof, err := core.ProveDeposit(1, index)
	require.NoError(t, err)

	claim := &ClaimRecord{
		SourceDepositIndex: index,
		SourceNetwork:      1,
		SourceRoot:         root,
		Claimer:            deposit.Recipient,
		Recipient:          deposit.Recipient,
		Amount:             deposit.Amount,
		AssetID:            deposit.AssetID,
		DestinationNetwork: 2,
	}
	_, err = core.RecordClaim(claim, proof, 0)
	assert.ErrorIs(t, err, ErrRootNotConfirmed)

	// rejected claims leave no trace
	claimed, err := core.IsClaimed(1, index)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaimRejectsTamperedProof(t *testing.T) {
	core, vals := newTestCore(t, 3)

	deposit := &DepositRecord{
		Amount:             big.NewInt(100),
		AssetID:            datagen.RandBytes32(),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 2,
	}
	index, root, err := core.RecordDeposit(1, deposit, 0)
	require.NoError(t, err)
	confirmRoot(t, core, vals, 1, 3, root)

	proof, err := core.ProveDeposit(1, index)
	require.NoError(t, err)

	// inflate the amount: the reconstructed leaf no longer matches
	claim := &ClaimRecord{
		SourceDepositIndex: index,
		SourceNetwork:      1,
		SourceRoot:         root,
		Claimer:            deposit.Recipient,
		Recipient:          deposit.Recipient,
		Amount:             big.NewInt(1e9),
		AssetID:            deposit.AssetID,
		DestinationNetwork: 2,
	}
	_, err = core.RecordClaim(claim, proof, 0)
	assert.ErrorIs(t, err, ErrInvalidClaimProof)

	// tampered sibling fails root recomputation
	claim.Amount = deposit.Amount
	proof.Siblings[0] = datagen.RandBytes32()
	_, err = core.RecordClaim(claim, proof, 0)
	assert.ErrorIs(t, err, ErrInvalidClaimProof)
}

func TestUnknownNetworkRejected(t *testing.T) {
	core, _ := newTestCore(t, 1)

	deposit := &DepositRecord{
		Amount:             big.NewInt(1),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 99,
	}
	_, _, err := core.RecordDeposit(1, deposit, 0)
	var unknown *NetworkUnknownError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint64(99), unknown.ID)

	_, _, err = core.RecordDeposit(99, &DepositRecord{
		Amount:             big.NewInt(1),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 1,
	}, 0)
	require.ErrorAs(t, err, &unknown)

	_, err = core.DepositRoot(99)
	require.ErrorAs(t, err, &unknown)
}

func TestSameNetworkTransferRejected(t *testing.T) {
	core, _ := newTestCore(t, 1)

	_, _, err := core.RecordDeposit(1, &DepositRecord{
		Amount:             big.NewInt(100),
		Recipient:          datagen.RandAddress(),
		DestinationNetwork: 1,
	}, 0)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	count, err := core.DepositCount(1)
	require.NoError(t, err)
	assert.Zero(t, count)

	recipient := datagen.RandAddress()
	_, err = core.RecordClaim(&ClaimRecord{
		SourceNetwork:      2,
		SourceRoot:         datagen.RandBytes32(),
		Claimer:            recipient,
		Recipient:          recipient,
		Amount:             big.NewInt(100),
		DestinationNetwork: 2,
	}, &tree.Proof{Existence: true}, 0)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestFailedOperationLeavesNoState(t *testing.T) {
	core, vals := newTestCore(t, 3)
	v := vals[0]

	networkID, blockNumber, timestamp := uint64(1), uint64(5), uint64(50)
	bridgeRoot := datagen.RandBytes32()
	stateRoot := datagen.RandBytes32()

	digest := bls.AttestationDigest(networkID, blockNumber, bridgeRoot, stateRoot, timestamp)
	msg := bls.AttestationMessage(v.sk.PublicKey(), v.addr, digest)
	sig, err := v.sk.Sign(msg, span.DomainAttestation)
	require.NoError(t, err)

	require.NoError(t, core.SubmitAttestation(v.addr, networkID, blockNumber, bridgeRoot, stateRoot, timestamp, v.addr, sig.Bytes()))

	// the duplicate is rejected and the tally is untouched
	err = core.SubmitAttestation(v.addr, networkID, blockNumber, bridgeRoot, stateRoot, timestamp, v.addr, sig.Bytes())
	assert.ErrorIs(t, err, quorum.ErrAlreadyAttested)

	pc, err := core.Attestation(quorum.Key(networkID, blockNumber, bridgeRoot))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pc.Count)
}

func TestFinalizeAndDistribute(t *testing.T) {
	core, vals := newTestCore(t, 3)
	honest := []span.Address{vals[0].addr, vals[1].addr}
	equivocator := vals[2].addr

	publicValues, err := settle.EncodePublicValues(&settle.Outcome{
		NetworkID:       1,
		Attestors:       honest,
		Equivocators:    []span.Address{equivocator},
		ValidBridgeRoot: datagen.RandBytes32(),
	})
	require.NoError(t, err)

	outcome, err := core.Finalize(publicValues, []byte("proof"), 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), outcome.NetworkID)

	epoch, err := core.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	slashed, err := core.Validator(equivocator)
	require.NoError(t, err)
	assert.Equal(t, staker.StatusInactive, slashed.Status)
	assert.Equal(t, uint64(1), slashed.InvalidAttestations)

	all := make([]span.Address, 0, 3)
	for _, v := range vals {
		all = append(all, v.addr)
	}
	distributed, err := core.DistributeRewards(all, 600)
	require.NoError(t, err)
	assert.True(t, distributed.Sign() > 0)

	// the jailed equivocator earned nothing on top of its proof counters
	slashed, err = core.Validator(equivocator)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), slashed.RewardedEpoch)
}

func TestStakeLifecycleThroughCore(t *testing.T) {
	core, vals := newTestCore(t, 2)
	v := vals[0]

	total, err := core.TotalStaked()
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(span.InitialMinStake, big.NewInt(2)), total)

	require.NoError(t, core.BeginUnstaking(v.addr, span.InitialMinStake, 1000))

	_, err = core.CompleteUnstaking(v.addr, 1001)
	assert.ErrorIs(t, err, staker.ErrExitNotReady)

	payout, err := core.CompleteUnstaking(v.addr, 1000+span.InitialUnstakeDelay)
	require.NoError(t, err)
	assert.Equal(t, span.InitialMinStake, payout)

	account, err := core.Validator(v.addr)
	require.NoError(t, err)
	assert.Nil(t, account)

	count, err := core.ActiveCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
