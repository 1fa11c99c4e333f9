// Package store provides the in-memory user record store and shared
// storage primitives. PostgreSQL access lives in internal/repository;
// this package backs tests and single-node development.
package store

import (
	"hash/fnv"
	"sync"
)

// keyLockShards is the number of mutex stripes. Power of two so the
// hash can be masked instead of modded.
const keyLockShards = 64

// KeyLock provides per-key mutual exclusion via sharded mutexes.
// Two different keys may share a stripe and contend, but a given key
// always maps to the same stripe, so updates to one user's record are
// serialized while unrelated users proceed in parallel.
type KeyLock struct {
	shards [keyLockShards]sync.Mutex
}

// NewKeyLock returns a ready-to-use KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

func (k *KeyLock) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &k.shards[h.Sum32()&(keyLockShards-1)]
}

// Lock acquires the stripe for key.
func (k *KeyLock) Lock(key string) {
	k.shard(key).Lock()
}

// Unlock releases the stripe for key.
func (k *KeyLock) Unlock(key string) {
	k.shard(key).Unlock()
}
