// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staker

import (
	"math/big"

	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/storage"
)

// registry is a doubly linked list of validator accounts, threaded through
// the Next/Prev pointers of the entries themselves. It keeps the full
// validator set iterable without an off-state index.
type registry struct {
	head    *storage.Bytes32
	tail    *storage.Bytes32
	count   *storage.Uint256
	storage *ledgerStorage
}

func newRegistry(store *ledgerStorage) *registry {
	return &registry{
		head:    storage.NewBytes32(store.context, slotRegistryHead),
		tail:    storage.NewBytes32(store.context, slotRegistryTail),
		count:   storage.NewUint256(store.context, slotRegistryCount),
		storage: store,
	}
}

func addressWord(a span.Address) span.Bytes32 {
	return span.BytesToBytes32(a.Bytes())
}

func wordAddress(w span.Bytes32) span.Address {
	return span.BytesToAddress(w.Bytes())
}

// Add appends a new validator to the tail of the registry.
func (r *registry) Add(wallet span.Address, entry *Validator) (added bool, err error) {
	defer func() {
		if err == nil && added {
			if addErr := r.count.Add(big.NewInt(1)); addErr != nil {
				err = addErr
			}
		}
	}()

	entry.Next = nil
	entry.Prev = nil

	oldTailWord, err := r.tail.Get()
	if err != nil {
		return false, err
	}
	if oldTailWord.IsZero() {
		// list is currently empty, set this entry to head & tail
		r.head.Set(addressWord(wallet))
		r.tail.Set(addressWord(wallet))
		return true, r.storage.SetValidator(wallet, entry)
	}

	oldTailAddr := wordAddress(oldTailWord)
	oldTail, err := r.storage.GetValidator(oldTailAddr)
	if err != nil {
		return false, err
	}
	oldTail.Next = &wallet
	entry.Prev = &oldTailAddr

	if err := r.storage.SetValidator(oldTailAddr, oldTail); err != nil {
		return false, err
	}
	if err := r.storage.SetValidator(wallet, entry); err != nil {
		return false, err
	}

	r.tail.Set(addressWord(wallet))

	return true, nil
}

// Remove unlinks a validator from the registry. The entry itself is left for
// the caller to update or delete.
func (r *registry) Remove(wallet span.Address, entry *Validator) (removed bool, err error) {
	defer func() {
		if err == nil && removed {
			if subErr := r.count.Sub(big.NewInt(1)); subErr != nil {
				err = subErr
			}
		}
	}()

	stored, err := r.storage.GetValidator(wallet)
	if err != nil {
		return false, err
	}
	if stored.IsEmpty() {
		return false, nil
	}

	prev := entry.Prev
	next := entry.Next

	if prev == nil || prev.IsZero() {
		if next == nil {
			r.head.Set(span.Bytes32{})
		} else {
			r.head.Set(addressWord(*next))
		}
	} else {
		prevEntry, err := r.storage.GetValidator(*prev)
		if err != nil {
			return false, err
		}
		prevEntry.Next = next
		if err := r.storage.SetValidator(*prev, prevEntry); err != nil {
			return false, err
		}
	}

	if next == nil || next.IsZero() {
		if prev == nil {
			r.tail.Set(span.Bytes32{})
		} else {
			r.tail.Set(addressWord(*prev))
		}
	} else {
		nextEntry, err := r.storage.GetValidator(*next)
		if err != nil {
			return false, err
		}
		nextEntry.Prev = prev
		if err := r.storage.SetValidator(*next, nextEntry); err != nil {
			return false, err
		}
	}

	entry.Next = nil
	entry.Prev = nil

	return true, nil
}

// Len returns the number of registered validators.
func (r *registry) Len() (*big.Int, error) {
	return r.count.Get()
}

// Iter walks the registry head to tail, calling back for each entry.
func (r *registry) Iter(callback func(span.Address, *Validator) error) error {
	ptr, err := r.head.Get()
	if err != nil {
		return err
	}
	for !ptr.IsZero() {
		wallet := wordAddress(ptr)
		entry, err := r.storage.GetValidator(wallet)
		if err != nil {
			return err
		}
		if entry.IsEmpty() {
			break
		}

		if err := callback(wallet, entry); err != nil {
			return err
		}

		if entry.Next == nil || entry.Next.IsZero() {
			break
		}
		ptr = addressWord(*entry.Next)
	}
	return nil
}
