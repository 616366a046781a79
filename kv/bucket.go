// Copyright (c) 2025 The Span developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "github.com/syndtr/goleveldb/leveldb/util"

// Bucket provides logical bucket for kv store.
type Bucket string

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{b, src}
}

type bucketStore struct {
	bucket Bucket
	src    Store
}

func (s *bucketStore) makeKey(key []byte) []byte {
	return append(append(make([]byte, 0, len(s.bucket)+len(key)), s.bucket...), key...)
}

func (s *bucketStore) Get(key []byte) ([]byte, error) {
	return s.src.Get(s.makeKey(key))
}

func (s *bucketStore) Has(key []byte) (bool, error) {
	return s.src.Has(s.makeKey(key))
}

func (s *bucketStore) IsNotFound(err error) bool {
	return s.src.IsNotFound(err)
}

func (s *bucketStore) Put(key, val []byte) error {
	return s.src.Put(s.makeKey(key), val)
}

func (s *bucketStore) Delete(key []byte) error {
	return s.src.Delete(s.makeKey(key))
}

func (s *bucketStore) NewBatch() Batch {
	return &bucketBatch{s.bucket, s.src.NewBatch()}
}

func (s *bucketStore) NewIterator(r Range) Iterator {
	start := append([]byte(s.bucket), r.Start...)
	var limit []byte
	if len(r.Limit) == 0 {
		limit = util.BytesPrefix([]byte(s.bucket)).Limit
	} else {
		limit = append([]byte(s.bucket), r.Limit...)
	}
	return &bucketIterator{s.bucket, s.src.NewIterator(Range{Start: start, Limit: limit})}
}

type bucketBatch struct {
	bucket Bucket
	src    Batch
}

func (b *bucketBatch) Put(key, val []byte) error {
	return b.src.Put(append([]byte(b.bucket), key...), val)
}

func (b *bucketBatch) Delete(key []byte) error {
	return b.src.Delete(append([]byte(b.bucket), key...))
}

func (b *bucketBatch) Len() int { return b.src.Len() }

func (b *bucketBatch) Write() error { return b.src.Write() }

type bucketIterator struct {
	bucket Bucket
	src    Iterator
}

func (i *bucketIterator) Next() bool   { return i.src.Next() }
func (i *bucketIterator) Release()     { i.src.Release() }
func (i *bucketIterator) Error() error { return i.src.Error() }

// Key strips the bucket prefix.
func (i *bucketIterator) Key() []byte { return i.src.Key()[len(i.bucket):] }

func (i *bucketIterator) Value() []byte { return i.src.Value() }
