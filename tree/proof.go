// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tree

import (
	"math/big"

	"github.com/spanlabs/span/span"
)

var bigOne = big.NewInt(1)

// Proof is an inclusion (or vacancy) proof for one index.
type Proof struct {
	Index     uint64              `json:"index"`
	Value     span.Bytes32        `json:"value"`
	Siblings  [Depth]span.Bytes32 `json:"siblings"`
	Existence bool                `json:"existence"`
}

// ProveMembership builds the proof for the given index against the current root.
func (t *Tree) ProveMembership(index uint64) (*Proof, error) {
	count, err := t.Count()
	if err != nil {
		return nil, err
	}
	value, err := t.GetLeaf(index)
	if err != nil {
		return nil, err
	}

	// Leaves are appended sequentially, so count alone decides occupancy.
	// A stored all-zero leaf is still an existing leaf.
	proof := &Proof{
		Index:     index,
		Value:     value,
		Existence: index < count,
	}

	pos := index
	for level := uint8(0); level < Depth; level++ {
		sibling, err := t.node(level, pos^1)
		if err != nil {
			return nil, err
		}
		proof.Siblings[level] = sibling
		pos >>= 1
	}
	return proof, nil
}

// Verify recomputes the root from the proof, folding siblings bottom-up and
// using the index's bit pattern to pick concatenation order at each level.
func Verify(proof *Proof, expectedRoot span.Bytes32) bool {
	if proof == nil {
		return false
	}
	cur := proof.Value
	pos := proof.Index
	for level := 0; level < Depth; level++ {
		sibling := proof.Siblings[level]
		if pos&1 == 1 {
			cur = span.Keccak256(sibling.Bytes(), cur.Bytes())
		} else {
			cur = span.Keccak256(cur.Bytes(), sibling.Bytes())
		}
		pos >>= 1
	}
	return cur == expectedRoot
}
