// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/spanlabs/span/kv"
	"github.com/spanlabs/span/span"
)

const cachedStorageSlots = 4096

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

type storageKey struct {
	addr span.Address
	key  span.Bytes32
}

func (k *storageKey) storeKey() []byte {
	b := make([]byte, 0, span.AddressLength+32)
	return append(append(b, k.addr[:]...), k.key[:]...)
}

// State is the component-addressed storage of the bridge engine.
// Writes are journaled in memory with checkpoint/revert semantics; nothing
// reaches the backing store until a Stage is committed.
type State struct {
	store kv.Store
	cache *lru.Cache // raw storage read cache
	rev   *revisions
}

// New create state object backed by the given store.
func New(store kv.Store) *State {
	cache, _ := lru.New(cachedStorageSlots)
	state := &State{
		store: store,
		cache: cache,
	}
	state.rev = newRevisions(state.readThrough)
	return state
}

// readThrough implements srcGetter against the kv store.
func (s *State) readThrough(key storageKey) ([]byte, error) {
	sk := key.storeKey()
	if cached, ok := s.cache.Get(string(sk)); ok {
		return cached.([]byte), nil
	}
	raw, err := s.store.Get(sk)
	if err != nil {
		if s.store.IsNotFound(err) {
			s.cache.Add(string(sk), []byte(nil))
			return nil, nil
		}
		return nil, err
	}
	s.cache.Add(string(sk), raw)
	return raw, nil
}

// GetRawStorage returns storage value in raw form.
func (s *State) GetRawStorage(addr span.Address, key span.Bytes32) ([]byte, error) {
	raw, err := s.rev.Get(storageKey{addr, key})
	if err != nil {
		return nil, &Error{err}
	}
	return raw, nil
}

// SetRawStorage set storage value in raw form.
func (s *State) SetRawStorage(addr span.Address, key span.Bytes32, raw []byte) {
	s.rev.Put(storageKey{addr, key}, raw)
}

// GetStorage returns storage value for the given key.
func (s *State) GetStorage(addr span.Address, key span.Bytes32) (span.Bytes32, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return span.Bytes32{}, err
	}
	return span.BytesToBytes32(raw), nil
}

// SetStorage set storage value for the given key.
// Zero value deletes the slot.
func (s *State) SetStorage(addr span.Address, key span.Bytes32, value span.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	trimmed := bytes.TrimLeft(value[:], "\x00")
	s.SetRawStorage(addr, key, append([]byte(nil), trimmed...))
}

// DecodeStorage get and decode storage value.
// Error returned by dec will be absorbed by State instance.
func (s *State) DecodeStorage(addr span.Address, key span.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	if err := dec(raw); err != nil {
		return &Error{err}
	}
	return nil
}

// EncodeStorage encode and set storage value.
// Error returned by enc will be absorbed by State instance.
func (s *State) EncodeStorage(addr span.Address, key span.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return &Error{err}
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// NewCheckpoint makes a checkpoint of current state.
// It returns revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.rev.Push()
}

// RevertTo revert to checkpoint specified by revision.
func (s *State) RevertTo(revision int) {
	s.rev.PopTo(revision)
}
