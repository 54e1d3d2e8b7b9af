// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"errors"
	"fmt"
)

// ErrInvalid covers malformed requests against the cache surface: an
// out-of-range seek, or an update_meta call against a missing key.
var ErrInvalid = errors.New("cache: invalid")

// Meta is the two-part metadata persisted alongside a cached body.
type Meta struct {
	Meta0 []byte
	Meta1 []byte
}

// Store is the two-tier HTTP cache storage abstraction:
// get/put/remove consult the memory tier first, then the disk tier.
type Store struct {
	memory *MemoryTier
	disk *DiskTier
}

// NewStore builds a Store over memory and disk tiers; disk is the
// authority that survives restarts.
func NewStore(memory *MemoryTier, disk *DiskTier) *Store {
	return &Store{memory: memory, disk: disk}
}

// Get consults the memory tier first, falling back to disk; a disk hit is
// re-admitted into memory.
func (s *Store) Get(key string) (Object, bool) {
	if obj, ok := s.memory.Get(key); ok {
		return obj, true
	}
	obj, ok := s.disk.Get(key)
	if ok {
		s.memory.Put(key, obj, Weight(obj.Body))
	}
	return obj, ok
}

// Put inserts into both tiers; persistence errors are fatal to the
// caller.
func (s *Store) Put(key string, obj Object) error {
	weight := Weight(obj.Body)
	if err := s.disk.Put(key, obj); err != nil {
		return err
	}
	s.memory.Put(key, obj, weight)
	return nil
}

// Remove deletes from the persistent tier and asks the memory tier to
// forget the key; the memory-tier removal is best-effort (see
// MemoryTier.Remove).
func (s *Store) Remove(key string) {
	s.disk.Remove(key)
	s.memory.Remove(key)
}

// HitHandle is returned by Lookup on a cache hit; it exposes the cached
// body, optionally narrowed by Seek.
type HitHandle struct {
	body []byte
	start int
	end int
}

// Seek narrows the handle's view to [start, min(bodyLen, end)). A nil end
// means "to the end of the body". start >= bodyLen fails with ErrInvalid.
func (h *HitHandle) Seek(start int, end *int) error {
	bodyLen := len(h.body)
	if start < 0 || start >= bodyLen {
		return fmt.Errorf("%w: seek start %d out of range [0, %d)", ErrInvalid, start, bodyLen)
	}
	stop := bodyLen
	if end != nil && *end < stop {
		stop = *end
	}
	if stop < start {
		stop = start
	}
	h.start, h.end = start, stop
	return nil
}

// Bytes returns the handle's current view of the body.
func (h *HitHandle) Bytes() []byte {
	return h.body[h.start:h.end]
}

// Lookup consults the store for cacheKey; on hit it returns the stored
// Meta plus a HitHandle over the full body.
func (s *Store) Lookup(cacheKey string) (Meta, *HitHandle, bool) {
	obj, ok := s.Get(cacheKey)
	if !ok {
		return Meta{}, nil, false
	}
	return Meta{Meta0: obj.Meta0, Meta1: obj.Meta1}, &HitHandle{body: obj.Body, start: 0, end: len(obj.Body)}, true
}

// MissHandler accumulates body bytes for a cache miss and, on Finish,
// persists the resulting CacheObject. Streaming partial
// writes are not supported: the body is buffered in full before
// persisting (a deliberate simplification ).
type MissHandler struct {
	store *Store
	cacheKey string
	meta Meta
	body []byte
}

// GetMissHandler starts accumulating a new cache entry for cacheKey.
func (s *Store) GetMissHandler(cacheKey string, meta Meta) *MissHandler {
	return &MissHandler{store: s, cacheKey: cacheKey, meta: meta}
}

// Write appends p to the accumulated body.
func (h *MissHandler) Write(p []byte) (int, error) {
	h.body = append(h.body, p...)
	return len(p), nil
}

// Finish persists the accumulated CacheObject with its computed weight.
func (h *MissHandler) Finish() error {
	return h.store.Put(h.cacheKey, Object{Meta0: h.meta.Meta0, Meta1: h.meta.Meta1, Body: h.body})
}

// Discard abandons the accumulated body without persisting anything. A
// miss handler cancelled before Finish must not poison the cache.
func (h *MissHandler) Discard() {
	h.body = nil
}

// Purge attempts to remove compactKey, reporting whether an object was
// actually removed.
func (s *Store) Purge(compactKey string) bool {
	_, existed := s.disk.Get(compactKey)
	s.Remove(compactKey)
	return existed
}

// UpdateMeta reads the object at cacheKey, replaces only its meta, and
// re-puts it with a recomputed weight. Fails with ErrInvalid when the key
// is absent.
func (s *Store) UpdateMeta(cacheKey string, newMeta Meta) error {
	obj, ok := s.Get(cacheKey)
	if !ok {
		return fmt.Errorf("%w: no meta found for key %q", ErrInvalid, cacheKey)
	}
	obj.Meta0, obj.Meta1 = newMeta.Meta0, newMeta.Meta1
	return s.Put(cacheKey, obj)
}
