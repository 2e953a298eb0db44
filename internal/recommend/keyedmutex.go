// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import "sync"

// keyedMutex serializes writes per user without a global lock. Shards
// are fixed so the structure never grows with the user population.
type keyedMutex struct {
	shards [keyedMutexShards]sync.Mutex
}

const keyedMutexShards = 64

// Lock acquires the shard lock for a user.
func (km *keyedMutex) Lock(userID int64) {
	km.shards[shardIndex(userID)].Lock()
}

// Unlock releases the shard lock for a user.
func (km *keyedMutex) Unlock(userID int64) {
	km.shards[shardIndex(userID)].Unlock()
}

func shardIndex(userID int64) int {
	// fnv-1a over the 8 id bytes keeps adjacent ids apart.
	h := uint64(14695981039346656037)
	for i := 0; i < 8; i++ {
		h ^= uint64(userID>>(8*i)) & 0xff
		h *= 1099511628211
	}
	return int(h % keyedMutexShards)
}
