// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import "github.com/spanlabs/span/span"

// Bytes32 is a wrapper for storage and retrieval of a single 32-byte word.
type Bytes32 struct {
	context *Context
	pos     span.Bytes32
}

func NewBytes32(context *Context, slot span.Bytes32) *Bytes32 {
	return &Bytes32{context: context, pos: slot}
}

func (b *Bytes32) Get() (span.Bytes32, error) {
	return b.context.state.GetStorage(b.context.address, b.pos)
}

func (b *Bytes32) Set(value span.Bytes32) {
	b.context.state.SetStorage(b.context.address, b.pos, value)
}
