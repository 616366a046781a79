// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/state"
)

// Context binds a component address to a state instance. Every component of
// the engine owns a distinct address, so their storage never collides.
type Context struct {
	address span.Address
	state   *state.State
}

func NewContext(address span.Address, state *state.State) *Context {
	return &Context{
		address: address,
		state:   state,
	}
}

func (c *Context) Address() span.Address {
	return c.address
}

func (c *Context) State() *state.State {
	return c.state
}

// NameToSlot derives a storage slot from a human readable name.
func NameToSlot(name string) span.Bytes32 {
	return span.BytesToBytes32([]byte(name))
}
