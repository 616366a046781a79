// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tree

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/state"
	"github.com/spanlabs/span/storage"
)

func newTestTree(t *testing.T, name string) *Tree {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)
	ctx := storage.NewContext(span.BytesToAddress([]byte("tree-test")), st)
	return New(ctx, name)
}

func TestEmptyTree(t *testing.T) {
	tr := newTestTree(t, "deposits")

	count, err := tr.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	root, err := tr.Root()
	require.NoError(t, err)
	assert.Equal(t, zeroHashes[Depth], root)

	known, err := tr.IsKnownRoot(root)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestInsertSequence(t *testing.T) {
	tr := newTestTree(t, "deposits")
	f := fuzz.NewWithSeed(1)

	var roots []span.Bytes32
	for i := uint64(0); i < 17; i++ {
		var leaf span.Bytes32
		f.Fuzz(&leaf)

		root, err := tr.Insert(i, leaf)
		require.NoError(t, err)
		roots = append(roots, root)

		got, err := tr.GetLeaf(i)
		require.NoError(t, err)
		assert.Equal(t, leaf, got)
	}

	count, err := tr.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(17), count)

	// every intermediate root stays recognizable
	for _, root := range roots {
		known, err := tr.IsKnownRoot(root)
		require.NoError(t, err)
		assert.True(t, known)
	}

	current, err := tr.Root()
	require.NoError(t, err)
	assert.Equal(t, roots[len(roots)-1], current)
}

func TestInsertRejectsBadIndex(t *testing.T) {
	tr := newTestTree(t, "deposits")

	_, err := tr.Insert(0, span.Bytes32{0x01})
	require.NoError(t, err)

	_, err = tr.Insert(0, span.Bytes32{0x02})
	var dup *DuplicateIndexError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint64(0), dup.Index)

	_, err = tr.Insert(5, span.Bytes32{0x03})
	assert.ErrorContains(t, err, "out of sequence")
}

func TestMembershipProofs(t *testing.T) {
	tr := newTestTree(t, "deposits")
	f := fuzz.NewWithSeed(2)

	const n = 9
	leaves := make([]span.Bytes32, n)
	for i := range leaves {
		f.Fuzz(&leaves[i])
	}
	root, err := tr.BatchInsert(0, leaves)
	require.NoError(t, err)

	for i := uint64(0); i < n; i++ {
		proof, err := tr.ProveMembership(i)
		require.NoError(t, err)
		assert.True(t, proof.Existence)
		assert.Equal(t, leaves[i], proof.Value)
		assert.True(t, Verify(proof, root))
	}

	// a proof for an unoccupied index shows vacancy and still folds to the root
	proof, err := tr.ProveMembership(n)
	require.NoError(t, err)
	assert.False(t, proof.Existence)
	assert.True(t, proof.Value.IsZero())
	assert.True(t, Verify(proof, root))
}

func TestZeroLeafStillExists(t *testing.T) {
	tr := newTestTree(t, "deposits")

	_, err := tr.Insert(0, span.Bytes32{})
	require.NoError(t, err)
	root, err := tr.Insert(1, span.Bytes32{0x02})
	require.NoError(t, err)

	proof, err := tr.ProveMembership(0)
	require.NoError(t, err)
	assert.True(t, proof.Existence)
	assert.True(t, proof.Value.IsZero())
	assert.True(t, Verify(proof, root))

	// past the leaf count it is a vacancy again
	proof, err = tr.ProveMembership(2)
	require.NoError(t, err)
	assert.False(t, proof.Existence)
}

func TestProofTamperDetected(t *testing.T) {
	tr := newTestTree(t, "deposits")
	_, err := tr.Insert(0, span.Bytes32{0x01})
	require.NoError(t, err)
	root, err := tr.Insert(1, span.Bytes32{0x02})
	require.NoError(t, err)

	proof, err := tr.ProveMembership(0)
	require.NoError(t, err)
	require.True(t, Verify(proof, root))

	tampered := *proof
	tampered.Value = span.Bytes32{0xff}
	assert.False(t, Verify(&tampered, root))

	tampered = *proof
	tampered.Siblings[3] = span.Bytes32{0xff}
	assert.False(t, Verify(&tampered, root))

	tampered = *proof
	tampered.Index = 1
	assert.False(t, Verify(&tampered, root))

	assert.False(t, Verify(nil, root))
}

func TestBatchInsertMatchesSequential(t *testing.T) {
	batch := newTestTree(t, "batch")
	seq := newTestTree(t, "seq")
	f := fuzz.NewWithSeed(3)

	leaves := make([]span.Bytes32, 6)
	for i := range leaves {
		f.Fuzz(&leaves[i])
	}

	batchRoot, err := batch.BatchInsert(0, leaves)
	require.NoError(t, err)

	var seqRoot span.Bytes32
	for i, leaf := range leaves {
		seqRoot, err = seq.Insert(uint64(i), leaf)
		require.NoError(t, err)
	}
	assert.Equal(t, seqRoot, batchRoot)

	// empty batch is a no-op returning the current root
	root, err := batch.BatchInsert(6, nil)
	require.NoError(t, err)
	assert.Equal(t, batchRoot, root)
}

func TestTreesAreIndependent(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)
	ctx := storage.NewContext(span.BytesToAddress([]byte("tree-test")), st)

	deposits := New(ctx, "deposit-tree-1")
	claims := New(ctx, "claim-tree-1")

	_, err = deposits.Insert(0, span.Bytes32{0x01})
	require.NoError(t, err)

	count, err := claims.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	depositRoot, err := deposits.Root()
	require.NoError(t, err)
	claimRoot, err := claims.Root()
	require.NoError(t, err)
	assert.NotEqual(t, depositRoot, claimRoot)
}
