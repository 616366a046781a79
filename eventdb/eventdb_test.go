// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package eventdb

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/test/datagen"
)

func newTestDB(t *testing.T) *EventDB {
	db, err := NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendAssignsSequence(t *testing.T) {
	db := newTestDB(t)

	events := []*Event{
		{Type: TypeDeposit, Network: 1, Wallet: datagen.RandAddress(), Amount: big.NewInt(100), Root: datagen.RandBytes32(), Timestamp: 10},
		{Type: TypeClaim, Network: 2, Wallet: datagen.RandAddress(), Amount: big.NewInt(200), Root: datagen.RandBytes32(), Timestamp: 20},
	}
	require.NoError(t, db.Append(events...))
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)

	got, err := db.Filter(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events[0], got[0])
	assert.Equal(t, events[1], got[1])
}

func TestFilterByTypeNetworkWallet(t *testing.T) {
	db := newTestDB(t)

	alice := datagen.RandAddress()
	bob := datagen.RandAddress()
	require.NoError(t, db.Append(
		&Event{Type: TypeDeposit, Network: 1, Wallet: alice, Amount: big.NewInt(1), Timestamp: 1},
		&Event{Type: TypeDeposit, Network: 2, Wallet: bob, Amount: big.NewInt(2), Timestamp: 2},
		&Event{Type: TypeClaim, Network: 1, Wallet: alice, Amount: big.NewInt(3), Timestamp: 3},
		&Event{Type: TypeStake, Network: 1, Wallet: bob, Amount: big.NewInt(4), Timestamp: 4},
	))

	got, err := db.Filter(context.Background(), &Filter{Types: []string{TypeDeposit}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	network := uint64(1)
	got, err = db.Filter(context.Background(), &Filter{Network: &network})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = db.Filter(context.Background(), &Filter{Wallet: &alice})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, ev := range got {
		assert.Equal(t, alice, ev.Wallet)
	}

	got, err = db.Filter(context.Background(), &Filter{Types: []string{TypeClaim, TypeStake}, Network: &network})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFilterOrderAndPaging(t *testing.T) {
	db := newTestDB(t)

	for i := range 10 {
		require.NoError(t, db.Append(&Event{
			Type:      TypeDeposit,
			Network:   1,
			Wallet:    datagen.RandAddress(),
			Amount:    big.NewInt(int64(i)),
			Timestamp: uint64(i),
		}))
	}

	got, err := db.Filter(context.Background(), &Filter{Order: DESC, Options: &Options{Offset: 0, Limit: 3}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(10), got[0].Sequence)
	assert.Equal(t, uint64(8), got[2].Sequence)

	got, err = db.Filter(context.Background(), &Filter{Options: &Options{Offset: 5, Limit: 100}})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, uint64(6), got[0].Sequence)
}

func TestRoundTripPreservesFields(t *testing.T) {
	db := newTestDB(t)

	amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	ev := &Event{
		Type:      TypeSlash,
		Network:   42,
		Wallet:    span.BytesToAddress([]byte("wallet")),
		Amount:    amount,
		Root:      span.BytesToBytes32([]byte("root")),
		Timestamp: 1234567890,
	}
	require.NoError(t, db.Append(ev))

	got, err := db.Filter(context.Background(), &Filter{Types: []string{TypeSlash}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}
