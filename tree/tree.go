// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tree implements the fixed-depth append-only sparse Merkle
// accumulator backing deposit and claim accounting. Node hashing is
// keccak-256 so inclusion proofs line up with EVM-side verification.
package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/storage"
)

// Depth is the number of levels between a leaf and the root.
const Depth = span.TreeDepth

// zeroHashes[i] is the hash of an empty subtree of height i.
var zeroHashes [Depth + 1]span.Bytes32

func init() {
	for i := 0; i < Depth; i++ {
		zeroHashes[i+1] = span.Keccak256(zeroHashes[i].Bytes(), zeroHashes[i].Bytes())
	}
}

// DuplicateIndexError is returned when inserting into an occupied index.
type DuplicateIndexError struct {
	Index uint64
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("tree: index %d already occupied", e.Index)
}

// nodeKey addresses one internal node: level 0 holds leaves, level Depth the root.
type nodeKey struct {
	level uint8
	pos   uint64
}

func (k nodeKey) Bytes() []byte {
	var b [9]byte
	b[0] = k.level
	binary.BigEndian.PutUint64(b[1:], k.pos)
	return b[:]
}

// Tree is one commitment tree instance. Deposit and claim trees of every
// network get distinct names, which salt their storage slots apart.
type Tree struct {
	nodes      *storage.Mapping[nodeKey, span.Bytes32]
	knownRoots *storage.Mapping[span.Bytes32, uint64]
	count      *storage.Uint256
}

// New opens the tree stored under the given name.
func New(ctx *storage.Context, name string) *Tree {
	return &Tree{
		nodes:      storage.NewMapping[nodeKey, span.Bytes32](ctx, storage.NameToSlot(name+"-nodes")),
		knownRoots: storage.NewMapping[span.Bytes32, uint64](ctx, storage.NameToSlot(name+"-roots")),
		count:      storage.NewUint256(ctx, storage.NameToSlot(name+"-count")),
	}
}

// Count returns the number of inserted leaves.
func (t *Tree) Count() (uint64, error) {
	c, err := t.count.Get()
	if err != nil {
		return 0, err
	}
	return c.Uint64(), nil
}

func (t *Tree) node(level uint8, pos uint64) (span.Bytes32, error) {
	n, err := t.nodes.Get(nodeKey{level, pos})
	if err != nil {
		return span.Bytes32{}, err
	}
	if n.IsZero() {
		return zeroHashes[level], nil
	}
	return n, nil
}

// Root returns the current root. An empty tree yields the all-zero-subtree root.
func (t *Tree) Root() (span.Bytes32, error) {
	return t.node(Depth, 0)
}

// GetLeaf returns the leaf stored at index.
func (t *Tree) GetLeaf(index uint64) (span.Bytes32, error) {
	n, err := t.nodes.Get(nodeKey{0, index})
	if err != nil {
		return span.Bytes32{}, err
	}
	return n, nil
}

// IsKnownRoot reports whether the root was ever observable on this tree.
func (t *Tree) IsKnownRoot(root span.Bytes32) (bool, error) {
	return t.knownRoots.Has(root)
}

// Insert writes the leaf at index and returns the new root.
// Indices are assigned sequentially from 0; an occupied index yields
// DuplicateIndexError, a gap is rejected outright.
func (t *Tree) Insert(index uint64, leaf span.Bytes32) (span.Bytes32, error) {
	count, err := t.Count()
	if err != nil {
		return span.Bytes32{}, err
	}
	if index < count {
		return span.Bytes32{}, &DuplicateIndexError{Index: index}
	}
	if index > count {
		return span.Bytes32{}, errors.Errorf("tree: index %d out of sequence, next is %d", index, count)
	}

	if err := t.nodes.Set(nodeKey{0, index}, leaf); err != nil {
		return span.Bytes32{}, err
	}

	cur := leaf
	pos := index
	for level := uint8(0); level < Depth; level++ {
		sibling, err := t.node(level, pos^1)
		if err != nil {
			return span.Bytes32{}, err
		}
		if pos&1 == 1 {
			cur = span.Keccak256(sibling.Bytes(), cur.Bytes())
		} else {
			cur = span.Keccak256(cur.Bytes(), sibling.Bytes())
		}
		pos >>= 1
		if err := t.nodes.Set(nodeKey{level + 1, pos}, cur); err != nil {
			return span.Bytes32{}, err
		}
	}

	if err := t.count.Add(bigOne); err != nil {
		return span.Bytes32{}, err
	}
	if err := t.knownRoots.Set(cur, index+1); err != nil {
		return span.Bytes32{}, err
	}
	return cur, nil
}

// BatchInsert appends leaves starting at startIndex, returning the final root.
func (t *Tree) BatchInsert(startIndex uint64, leaves []span.Bytes32) (span.Bytes32, error) {
	if len(leaves) == 0 {
		return t.Root()
	}
	var (
		root span.Bytes32
		err  error
	)
	for i, leaf := range leaves {
		if root, err = t.Insert(startIndex+uint64(i), leaf); err != nil {
			return span.Bytes32{}, err
		}
	}
	return root, nil
}
