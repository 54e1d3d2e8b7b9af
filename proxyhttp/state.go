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

// Package proxyhttp implements the proxy state machine: per-request
// lifecycle across phases, the plugin chain, upstream selection, response
// assembly, and error mapping.
package proxyhttp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the per-request record exclusively owned by the state machine
// for the duration of one request. It is
// created on arrival and torn down once, after logging.
type State struct {
	ID string

	LocationName string
	ClientIP string
	UpstreamAddress string
	Reused bool
	Status int
	ResponseBodySize uint64
	StartTime time.Time

	doneMu sync.Mutex
	doneOnce bool
	onDone []func()
}

// NewState starts a new request's lifecycle.
func NewState(clientIP string) *State {
	return &State{
		ID: uuid.NewString(),
		ClientIP: clientIP,
		StartTime: time.Now(),
	}
}

// OnDone registers a cleanup callback invoked exactly once when Close
// runs — this is the hook plugin.Session.OnDone delegates to, so the
// limit plugin's inflight guard rides this teardown. The cache miss
// handler does not use it: writeUpstreamResponseCaching discards a
// partial accumulation itself.
func (s *State) OnDone(f func()) {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	if s.doneOnce {
		f()
		return
	}
	s.onDone = append(s.onDone, f)
}

// SetStatus records the first writer's status; subsequent calls are
// ignored.
func (s *State) SetStatus(code int) {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	if s.Status == 0 {
		s.Status = code
	}
}

// AddResponseBytes accumulates the response body size for logging.
func (s *State) AddResponseBytes(n uint64) {
	s.doneMu.Lock()
	s.ResponseBodySize += n
	s.doneMu.Unlock()
}

// Close runs every registered cleanup exactly once. Safe to call more
// than once; only the first call has effect. Must run on every path —
// success, error, and early short-circuit alike.
func (s *State) Close() {
	s.doneMu.Lock()
	if s.doneOnce {
		s.doneMu.Unlock()
		return
	}
	s.doneOnce = true
	callbacks := s.onDone
	s.onDone = nil
	s.doneMu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// Duration reports elapsed time since the request arrived.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}
