// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/state"
)

func newTestContext(t *testing.T, name string) *Context {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewContext(span.BytesToAddress([]byte(name)), state.New(db))
}

func TestUint256(t *testing.T) {
	ctx := newTestContext(t, "uint256-test")
	counter := NewUint256(ctx, NameToSlot("counter"))

	v, err := counter.Get()
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	counter.Set(big.NewInt(10))
	require.NoError(t, counter.Add(big.NewInt(5)))
	require.NoError(t, counter.Sub(big.NewInt(3)))

	v, err = counter.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), v)

	// going below zero is refused
	assert.Error(t, counter.Sub(big.NewInt(100)))
}

func TestBytes32Slot(t *testing.T) {
	ctx := newTestContext(t, "bytes32-test")
	slot := NewBytes32(ctx, NameToSlot("current"))

	v, err := slot.Get()
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	want := span.Blake2b([]byte("value"))
	slot.Set(want)
	v, err = slot.Get()
	require.NoError(t, err)
	assert.Equal(t, want, v)
}

func TestMapping(t *testing.T) {
	ctx := newTestContext(t, "mapping-test")
	balances := NewMapping[span.Address, *big.Int](ctx, NameToSlot("balances"))

	alice := span.BytesToAddress([]byte("alice"))
	bob := span.BytesToAddress([]byte("bob"))

	// missing entries yield a fresh zero value, never nil
	v, err := balances.Get(alice)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Zero(t, v.Sign())

	require.NoError(t, balances.Set(alice, big.NewInt(100)))
	v, err = balances.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), v)

	// keys do not bleed into each other
	v, err = balances.Get(bob)
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	has, err := balances.Has(alice)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = balances.Has(bob)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, balances.Delete(alice))
	has, err = balances.Has(alice)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMappingsWithDistinctSlotsAreIndependent(t *testing.T) {
	ctx := newTestContext(t, "slots-test")
	a := NewMapping[span.Bytes32, uint64](ctx, NameToSlot("a"))
	b := NewMapping[span.Bytes32, uint64](ctx, NameToSlot("b"))

	key := span.Blake2b([]byte("shared-key"))
	require.NoError(t, a.Set(key, 7))

	v, err := b.Get(key)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestContextsAreIsolatedByAddress(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)

	first := NewUint256(NewContext(span.BytesToAddress([]byte("first")), st), NameToSlot("counter"))
	second := NewUint256(NewContext(span.BytesToAddress([]byte("second")), st), NameToSlot("counter"))

	first.Set(big.NewInt(42))
	v, err := second.Get()
	require.NoError(t, err)
	assert.Zero(t, v.Sign())
}
