// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

// revisions maintains storage writes in a stack of levels.
// Each level inherits key/value of levels below it, giving the state a
// save-restore/snapshot-revert manner.
type revisions struct {
	src     srcGetter
	levels  []*level
	keyRevs map[storageKey]*intStack
}

// srcGetter reads through to the backing store.
type srcGetter func(key storageKey) (value []byte, err error)

type level struct {
	kvs     map[storageKey][]byte
	journal []*journalEntry
}

type journalEntry struct {
	Key   storageKey
	Value []byte
}

func newRevisions(src srcGetter) *revisions {
	r := &revisions{
		src:     src,
		keyRevs: make(map[storageKey]*intStack),
	}
	// base level, so Put works without an explicit checkpoint
	r.Push()
	return r
}

// Push pushes a new level on stack.
// It returns stack depth before push.
func (r *revisions) Push() int {
	r.levels = append(r.levels, &level{kvs: make(map[storageKey][]byte)})
	return len(r.levels) - 1
}

// Pop pops the level at top of stack, reverting all Put operations since the
// matching Push.
func (r *revisions) Pop() {
	top := r.levels[len(r.levels)-1]
	for key := range top.kvs {
		revs := r.keyRevs[key]
		revs.pop()
		if len(*revs) == 0 {
			delete(r.keyRevs, key)
		}
	}
	r.levels = r.levels[:len(r.levels)-1]
}

// PopTo pops levels until stack depth reaches depth.
func (r *revisions) PopTo(depth int) {
	for len(r.levels) > depth {
		r.Pop()
	}
}

// Get gets value for given key, falling back to the source when the key was
// never written.
func (r *revisions) Get(key storageKey) ([]byte, error) {
	if revs, ok := r.keyRevs[key]; ok {
		lvl := r.levels[revs.top()]
		if v, ok := lvl.kvs[key]; ok {
			return v, nil
		}
	}
	return r.src(key)
}

// Put puts key value into the level at stack top.
func (r *revisions) Put(key storageKey, value []byte) {
	top := r.levels[len(r.levels)-1]
	top.kvs[key] = value
	top.journal = append(top.journal, &journalEntry{Key: key, Value: value})

	// records key revision for fast access; repeated writes to the same key
	// within one level must record a single revision, or Pop would leave a
	// stale entry behind
	rev := len(r.levels) - 1
	if revs, ok := r.keyRevs[key]; ok {
		if revs.top() != rev {
			revs.push(rev)
		}
	} else {
		r.keyRevs[key] = &intStack{rev}
	}
}

// Journal traverses all Put operations in order. Traversal stops when cb
// returns false.
func (r *revisions) Journal(cb func(key storageKey, value []byte) bool) {
	for _, lvl := range r.levels {
		for _, entry := range lvl.journal {
			if !cb(entry.Key, entry.Value) {
				return
			}
		}
	}
}

// Reset drops all levels and starts over with an empty base level.
func (r *revisions) Reset() {
	r.levels = r.levels[:0]
	r.keyRevs = make(map[storageKey]*intStack)
	r.Push()
}

type intStack []int

func (s *intStack) pop() {
	*s = (*s)[:len(*s)-1]
}

func (s *intStack) push(v int) {
	*s = append(*s, v)
}

func (s intStack) top() int {
	return s[len(s)-1]
}
