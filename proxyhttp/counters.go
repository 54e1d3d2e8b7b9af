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

package proxyhttp

import "sync/atomic"

// Counters holds the two per-server atomics: accepted (monotonic) and
// processing (balance). Relaxed read/modify-write is sufficient; they
// are not used as synchronization signals.
type Counters struct {
	accepted atomic.Uint64
	processing atomic.Int32
}

// Arrive records one request entering the server: accepted += 1,
// processing += 1.
func (c *Counters) Arrive() {
	c.accepted.Add(1)
	c.processing.Add(1)
}

// Done records one request leaving the server: processing -= 1.
func (c *Counters) Done() {
	c.processing.Add(-1)
}

func (c *Counters) Accepted() uint64 { return c.accepted.Load() }
func (c *Counters) Processing() int32 { return c.processing.Load() }

var _ StatsProvider = (*Counters)(nil)
