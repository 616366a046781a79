// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

// Stage captures the cumulative changes of a state instance so they can be
// persisted in one batch.
type Stage struct {
	state   *State
	changes map[storageKey][]byte
}

// Stage makes a stage object from all changes journaled so far.
func (s *State) Stage() *Stage {
	changes := make(map[storageKey][]byte)
	s.rev.Journal(func(key storageKey, value []byte) bool {
		changes[key] = value
		return true
	})
	return &Stage{state: s, changes: changes}
}

// Commit writes the staged changes to the backing store and compacts the
// journal. The state instance stays usable afterwards.
func (s *Stage) Commit() error {
	batch := s.state.store.NewBatch()
	for key, value := range s.changes {
		sk := key.storeKey()
		if len(value) == 0 {
			if err := batch.Delete(sk); err != nil {
				return &Error{err}
			}
		} else {
			if err := batch.Put(sk, value); err != nil {
				return &Error{err}
			}
		}
	}
	if err := batch.Write(); err != nil {
		return &Error{err}
	}
	// refresh the read cache and start a fresh journal
	for key, value := range s.changes {
		s.state.cache.Add(string(key.storeKey()), value)
	}
	s.state.rev.Reset()
	return nil
}
