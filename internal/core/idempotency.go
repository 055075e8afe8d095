package core

import (
	"container/list"
	"fmt"
)

// IdempotencyChecker implements two-tier command deduplication. NATS
// redelivers commands after consumer restarts, so every command carries a
// stable key checked here before the engine applies it.
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker
}

// DBIdempotencyChecker is the interface for the event-log dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(commandType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks if a command has been processed (two-tier lookup)
func (ic *IdempotencyChecker) IsDuplicate(commandType string, idempotencyKey string) bool {
	compositeKey := fmt.Sprintf("%s:%s", commandType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(compositeKey) {
		return true
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(commandType, idempotencyKey)
		if err != nil {
			// Conservative: a DB issue must not block command processing
			return false
		}
		if isDup {
			ic.lru.Add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(commandType string, idempotencyKey string) {
	ic.lru.Add(fmt.Sprintf("%s:%s", commandType, idempotencyKey))
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe — only accessed from the single-threaded engine.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		oldest := lru.lruList.Back()
		if oldest != nil {
			lru.lruList.Remove(oldest)
			delete(lru.cache, oldest.Value.(*lruEntry).key)
			lru.evictions++
		}
	}
}

// WarmFromKeys preloads keys on startup so recently processed commands
// skip the cold-path DB lookup after a restart.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, k := range keys {
		lru.Add(k)
	}
}

// GetAllKeys returns the cached keys, oldest first, for snapshotting.
func (lru *IdempotencyLRU) GetAllKeys() []string {
	keys := make([]string, 0, lru.lruList.Len())
	for e := lru.lruList.Back(); e != nil; e = e.Prev() {
		keys = append(keys, e.Value.(*lruEntry).key)
	}
	return keys
}

// Len returns current occupancy
func (lru *IdempotencyLRU) Len() int { return lru.lruList.Len() }

// Evictions returns the lifetime eviction count
func (lru *IdempotencyLRU) Evictions() int64 { return lru.evictions }
