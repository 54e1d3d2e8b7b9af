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

import "github.com/dgraph-io/ristretto"

// MemoryTier is the admission cache: an approximated TinyLFU structure
// with weighted entries. It absorbs hot traffic ahead of
// the persistent tier; removal through Remove is best-effort, and entries
// otherwise leave only by eviction under admission pressure.
type MemoryTier struct {
	cache *ristretto.Cache
}

// NewMemoryTier builds a weighted TinyLFU cache capped at maxCost total
// weight units.
func NewMemoryTier(maxCost int64) (*MemoryTier, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost: maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryTier{cache: c}, nil
}

// Get returns the cached object for key, if admitted and still resident.
func (m *MemoryTier) Get(key string) (Object, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return Object{}, false
	}
	obj, ok := v.(Object)
	return obj, ok
}

// Put offers key/obj to the admission policy at the given weight; a
// rejected admission is not an error, only a missed optimization.
func (m *MemoryTier) Put(key string, obj Object, weight int) {
	m.cache.Set(key, obj, int64(weight))
}

// Remove asks ristretto to delete key via Del. It is best-effort:
// ristretto applies Set and Del through internal buffers, and Remove does
// not wait for them to drain (Wait does).
func (m *MemoryTier) Remove(key string) {
	m.cache.Del(key)
}

// Wait blocks until all pending Set/Del operations have been applied;
// exposed for deterministic tests.
func (m *MemoryTier) Wait() {
	m.cache.Wait()
}
