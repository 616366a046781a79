// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settle

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/bls"
	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/staker"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/test/datagen"
)

var (
	ledgerAddr    = span.BytesToAddress([]byte("stake-ledger"))
	finalizerAddr = span.BytesToAddress([]byte("settlement"))
	testKey       = span.BytesToBytes32([]byte("vkey"))
)

var acceptAll = VerifierFunc(func(_ span.Bytes32, _, _ []byte) error { return nil })

func newTestFinalizer(t *testing.T, verifier ProofVerifier, validators int) (*Finalizer, *staker.Staker, []span.Address) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	ledger := staker.New(ledgerAddr, st)
	require.NoError(t, ledger.Initialize())

	wallets := make([]span.Address, 0, validators)
	for i := range validators {
		sk := bls.NewSecretKeyFromSeed([]byte(fmt.Sprintf("settle-%d", i)))
		wallet := span.BytesToAddress([]byte(fmt.Sprintf("settler-%d", i)))
		proof, err := sk.ProvePossession(wallet)
		require.NoError(t, err)
		require.NoError(t, ledger.Stake(wallet, sk.PublicKey().Bytes(), proof.Bytes(), span.InitialMinStake, 0, 0))
		wallets = append(wallets, wallet)
	}
	return New(finalizerAddr, st, ledger, verifier, testKey), ledger, wallets
}

func TestPublicValuesRoundTrip(t *testing.T) {
	outcome := &Outcome{
		NetworkID:       7,
		Attestors:       []span.Address{datagen.RandAddress(), datagen.RandAddress()},
		Equivocators:    []span.Address{datagen.RandAddress()},
		ValidBridgeRoot: datagen.RandBytes32(),
	}
	encoded, err := EncodePublicValues(outcome)
	require.NoError(t, err)

	decoded, err := DecodePublicValues(encoded)
	require.NoError(t, err)
	assert.Equal(t, outcome, decoded)

	_, err = DecodePublicValues([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrBadPublicValues)
}

func TestFinalizeRejectedProof(t *testing.T) {
	rejectAll := VerifierFunc(func(_ span.Bytes32, _, _ []byte) error {
		return errors.New("pairing check failed")
	})
	f, ledger, wallets := newTestFinalizer(t, rejectAll, 1)

	encoded, err := EncodePublicValues(&Outcome{
		NetworkID:       1,
		Equivocators:    wallets,
		ValidBridgeRoot: datagen.RandBytes32(),
	})
	require.NoError(t, err)

	_, err = f.Finalize(encoded, []byte("proof"), 0)
	assert.ErrorIs(t, err, ErrProofRejected)

	// nothing applied
	epoch, err := f.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), epoch)
	v, err := ledger.Get(wallets[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.InvalidAttestations)
}

func TestFinalizeAppliesVerdict(t *testing.T) {
	f, ledger, wallets := newTestFinalizer(t, acceptAll, 3)
	honest, equivocator := wallets[0], wallets[2]

	cfg, _, err := ledger.CurrentConfig()
	require.NoError(t, err)

	encoded, err := EncodePublicValues(&Outcome{
		NetworkID:       1,
		Attestors:       []span.Address{honest, wallets[1]},
		Equivocators:    []span.Address{equivocator},
		ValidBridgeRoot: datagen.RandBytes32(),
	})
	require.NoError(t, err)

	outcome, err := f.Finalize(encoded, []byte("proof"), 100)
	require.NoError(t, err)
	assert.Len(t, outcome.Attestors, 2)

	// honest attestors earn the counter and the proof reward
	v, err := ledger.Get(honest)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.ValidAttestations)
	assert.Equal(t, uint64(0), v.InvalidAttestations)
	assert.Equal(t, cfg.CorrectProofReward, v.PendingReward)

	// the equivocator is slashed by the pinned penalty
	v, err = ledger.Get(equivocator)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.InvalidAttestations)
	expected := new(big.Int).Sub(span.InitialMinStake, cfg.IncorrectProofPenalty)
	assert.Equal(t, expected, v.Stake)
	// and jailed, since the penalty drops it below the minimum
	assert.Equal(t, staker.StatusInactive, v.Status)

	slashed, err := ledger.SlashedReserve(cfg.StakingAsset)
	require.NoError(t, err)
	assert.Equal(t, cfg.IncorrectProofPenalty, slashed)

	epoch, err := f.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
}

func TestFinalizePenaltyCappedAtBalance(t *testing.T) {
	f, ledger, wallets := newTestFinalizer(t, acceptAll, 2)
	target := wallets[0]

	// drain most of the stake first so the penalty exceeds what is left,
	// and credit a reward no one has funded yet
	cfg, _, err := ledger.CurrentConfig()
	require.NoError(t, err)
	almostAll := new(big.Int).Sub(span.InitialMinStake, big.NewInt(1e18))
	_, _, err = ledger.Slash(target, almostAll, 0)
	require.NoError(t, err)
	reward := big.NewInt(2e15)
	require.NoError(t, ledger.CreditReward(target, reward))

	encoded, err := EncodePublicValues(&Outcome{
		NetworkID:       1,
		Equivocators:    []span.Address{target},
		ValidBridgeRoot: datagen.RandBytes32(),
	})
	require.NoError(t, err)

	_, err = f.Finalize(encoded, []byte("proof"), 10)
	require.NoError(t, err)

	// balance was 1e18 stake + 2e15 reward, below the 10e18 penalty:
	// everything is taken, including the unfunded reward
	v, err := ledger.Get(target)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Stake.Sign())
	assert.Equal(t, 0, v.PendingReward.Sign())
	assert.Equal(t, uint64(1), v.InvalidAttestations)

	// the slashed reserve holds the principal only
	slashed, err := ledger.SlashedReserve(cfg.StakingAsset)
	require.NoError(t, err)
	assert.Equal(t, span.InitialMinStake, slashed)

	epoch, err := f.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
}

func TestFinalizeUnknownWalletsSkipped(t *testing.T) {
	f, _, _ := newTestFinalizer(t, acceptAll, 1)

	encoded, err := EncodePublicValues(&Outcome{
		NetworkID:       1,
		Attestors:       []span.Address{datagen.RandAddress()},
		Equivocators:    []span.Address{datagen.RandAddress()},
		ValidBridgeRoot: datagen.RandBytes32(),
	})
	require.NoError(t, err)

	_, err = f.Finalize(encoded, []byte("proof"), 0)
	require.NoError(t, err)

	epoch, err := f.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
}

func TestEpochAdvancesOncePerFinalize(t *testing.T) {
	f, _, wallets := newTestFinalizer(t, acceptAll, 1)

	for i := range 3 {
		encoded, err := EncodePublicValues(&Outcome{
			NetworkID:       1,
			Attestors:       wallets,
			ValidBridgeRoot: datagen.RandBytes32(),
		})
		require.NoError(t, err)
		_, err = f.Finalize(encoded, []byte("proof"), uint64(i))
		require.NoError(t, err)

		epoch, err := f.Epoch()
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), epoch)
	}
}
