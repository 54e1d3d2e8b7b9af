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

package backend

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/dgryski/go-rendezvous"
)

// Policy selects one backend from a healthy set for the given hash key
// (used only by the consistent-hash policy; other policies ignore it).
type Policy interface {
	Select(healthy []Backend, hashKey string) (Backend, bool)
}

// RoundRobinPolicy rotates through the healthy set, biased by weight: a
// backend with weight N appears N times in the rotation.
type RoundRobinPolicy struct {
	counter atomic.Uint64
}

func (p *RoundRobinPolicy) Select(healthy []Backend, _ string) (Backend, bool) {
	expanded := expandByWeight(healthy)
	if len(expanded) == 0 {
		return Backend{}, false
	}
	idx := p.counter.Add(1) - 1
	return expanded[idx%uint64(len(expanded))], true
}

func expandByWeight(backends []Backend) []Backend {
	var out []Backend
	for _, b := range backends {
		w := b.Weight
		if w < 1 {
			w = 1
		}
		for i := 0; i < w; i++ {
			out = append(out, b)
		}
	}
	return out
}

// RandomPolicy picks uniformly among the weight-expanded healthy set.
type RandomPolicy struct{}

func (RandomPolicy) Select(healthy []Backend, _ string) (Backend, bool) {
	expanded := expandByWeight(healthy)
	if len(expanded) == 0 {
		return Backend{}, false
	}
	return expanded[rand.IntN(len(expanded))], true
}

// ConsistentHashPolicy hashes hashKey (client IP or a configured header) to
// one of the healthy backends using rendezvous (highest random weight)
// hashing, which minimizes reassignment when the backend set changes:
// unlike modulo hashing, only backends added/removed change their mapping.
type ConsistentHashPolicy struct{}

func (ConsistentHashPolicy) Select(healthy []Backend, hashKey string) (Backend, bool) {
	if len(healthy) == 0 {
		return Backend{}, false
	}
	if hashKey == "" {
		return healthy[0], true
	}
	addrs := make([]string, len(healthy))
	byAddr := make(map[string]Backend, len(healthy))
	for i, b := range healthy {
		addrs[i] = b.Addr()
		byAddr[b.Addr()] = b
	}
	table := rendezvous.New(addrs, hashString)
	chosen := table.Lookup(hashKey)
	return byAddr[chosen], true
}

func hashString(s string) uint64 {
	return fnv1a(s)
}

// NewPolicy constructs a Policy from a configured name: round-robin,
// consistent-hash, or random.
func NewPolicy(name string) Policy {
	switch name {
	case "consistent-hash", "consistent_hash":
		return ConsistentHashPolicy{}
	case "random":
		return RandomPolicy{}
	default:
		return &RoundRobinPolicy{}
	}
}
