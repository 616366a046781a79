// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package span

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	addr := BytesToAddress([]byte("account1"))
	assert.False(t, addr.IsZero())
	assert.True(t, Address{}.IsZero())

	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, *parsed)

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)
	_, err = ParseAddress("zz" + addr.String()[2:])
	assert.Error(t, err)

	raw, err := json.Marshal(addr)
	require.NoError(t, err)
	var back Address
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, addr, back)
}

func TestBytes32(t *testing.T) {
	b := BytesToBytes32([]byte{1, 2, 3})
	assert.Equal(t, byte(3), b[31])
	assert.Equal(t, byte(1), b[29])

	// oversized input is cropped from the left
	long := make([]byte, 40)
	long[0] = 0xaa
	long[39] = 0xbb
	cropped := BytesToBytes32(long)
	assert.Equal(t, byte(0xbb), cropped[31])

	parsed, err := ParseBytes32(b.String())
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	_, err = ParseBytes32("0x00")
	assert.Error(t, err)

	raw, err := json.Marshal(&b)
	require.NoError(t, err)
	var back Bytes32
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, b, back)
}

func TestBlake2b(t *testing.T) {
	data := make([]byte, 128)
	_, err := rand.Read(data)
	require.NoError(t, err)

	// the one-shot path and the writer path must agree
	single := Blake2b(data)
	split := Blake2b(data[:100], data[100:])
	assert.Equal(t, single, split)

	h := NewBlake2b()
	h.Write(data)
	assert.Equal(t, single.Bytes(), h.Sum(nil))

	assert.NotEqual(t, Blake2b([]byte("a")), Blake2b([]byte("b")))
}

func TestKeccak256(t *testing.T) {
	// known vector: keccak256 of empty input
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak256().String())

	data := make([]byte, 64)
	_, err := rand.Read(data)
	require.NoError(t, err)
	assert.Equal(t, Keccak256(data), Keccak256(data[:32], data[32:]))
}
