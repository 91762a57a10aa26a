package utils

import (
	"hash/fnv"
	"sync"
)

const keyedMutexShards = 64

// KeyedMutex serializes work per key by hashing keys onto a fixed set of
// mutex shards. Two operations on the same key never run concurrently;
// operations on different keys contend only on hash collisions.
type KeyedMutex struct {
	shards [keyedMutexShards]sync.Mutex
}

// NewKeyedMutex returns a ready-to-use keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%keyedMutexShards]
}

// Lock acquires the shard owning key.
func (m *KeyedMutex) Lock(key string) {
	m.shard(key).Lock()
}

// Unlock releases the shard owning key.
func (m *KeyedMutex) Unlock(key string) {
	m.shard(key).Unlock()
}
