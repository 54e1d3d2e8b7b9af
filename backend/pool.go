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
	"context"
	"sync/atomic"
	"time"
)

// defaultKeepalivePoolSize is used when a configured pool size is <= 0.
const defaultKeepalivePoolSize = 16

// Upstream owns a named BackendSet plus one load-balancing Policy. Multiple
// locations may share one Upstream. The BackendSet is replaced atomically
// by a discovery refresh without recreating the Upstream.
type Upstream struct {
	Name string
	Policy Policy
	TLS bool
	SNI string

	set atomic.Pointer[BackendSet]

	connectTimeout time.Duration
	readTimeout time.Duration
	writeTimeout time.Duration
	idleTimeout time.Duration

	keepalivePoolSize int

	// Directory, when set, names a filesystem root served directly in
	// place of a real backend: the proxy_upstream_filter phase serves the
	// request inline and never reaches upstream_peer.
	Directory string

	// Mock, when set, is a canned response served in place of a real
	// backend, same inline-and-done semantics as Directory.
	Mock *MockResponse
}

// MockHeader is one "name: value" pair injected into a mock upstream's
// response.
type MockHeader struct {
	Name string
	Value string
}

// MockResponse is a canned response a mock upstream serves inline,
// bypassing backend selection entirely.
type MockResponse struct {
	Status int
	Body []byte
	Headers []MockHeader
}

// NewUpstream builds an Upstream around an initial BackendSet. poolSize is
// the keep-alive connection ceiling per backend; a value <= 0 uses
// defaultKeepalivePoolSize.
func NewUpstream(name string, policy Policy, initial *BackendSet, poolSize int, tls bool, sni string) *Upstream {
	if poolSize <= 0 {
		poolSize = defaultKeepalivePoolSize
	}
	u := &Upstream{
		Name: name,
		Policy: policy,
		TLS: tls,
		SNI: sni,
		keepalivePoolSize: poolSize,
	}
	u.set.Store(initial)
	return u
}

// SetDirectory wires a directory-backed inline upstream.
func (u *Upstream) SetDirectory(dir string) {
	u.Directory = dir
}

// SetMock wires a mock-backed inline upstream.
func (u *Upstream) SetMock(m *MockResponse) {
	u.Mock = m
}

// KeepalivePoolSize is the configured per-backend keep-alive connection
// ceiling, forwarded to each Peer so the caller's transport can honor it.
func (u *Upstream) KeepalivePoolSize() int {
	return u.keepalivePoolSize
}

// SetTimeouts configures per-upstream connect/read/write/idle timeouts:
// exceeding any maps to an upstream error by the caller.
func (u *Upstream) SetTimeouts(connect, read, write, idle time.Duration) {
	u.connectTimeout = connect
	u.readTimeout = read
	u.writeTimeout = write
	u.idleTimeout = idle
}

// ReplaceBackendSet atomically swaps in a freshly discovered set. Readers
// that already captured a snapshot via Snapshot are unaffected.
func (u *Upstream) ReplaceBackendSet(set *BackendSet) {
	u.set.Store(set)
}

// Snapshot returns the BackendSet pointer for one selection operation. The
// caller must drop it before any suspension point.
func (u *Upstream) Snapshot() *BackendSet {
	return u.set.Load()
}

// Peer is the selected backend plus the dial parameters needed to connect.
type Peer struct {
	Backend Backend
	TLS bool
	SNI string
	ConnectTimeout time.Duration
	ReadTimeout time.Duration
	WriteTimeout time.Duration
	IdleTimeout time.Duration

	// KeepalivePoolSize is the per-backend keep-alive connection ceiling
	// the caller's transport must honor. The proxy applies it as
	// http.Transport's MaxIdleConnsPerHost: once that many connections to
	// one backend are idle, a connection being released is closed; the
	// older idle connections are kept, not evicted in LRU order.
	KeepalivePoolSize int
}

// NewPeer selects a backend from the current snapshot using the configured
// policy. hashKey is only consulted by the consistent-hash policy. Returns
// false when no backend is available (caller surfaces HTTP 503).
func (u *Upstream) NewPeer(_ context.Context, hashKey string) (Peer, bool) {
	set := u.Snapshot()
	healthy := set.Healthy()
	if len(healthy) == 0 {
		return Peer{}, false
	}
	b, ok := u.Policy.Select(healthy, hashKey)
	if !ok {
		return Peer{}, false
	}
	return Peer{
		Backend: b,
		TLS: u.TLS,
		SNI: u.SNI,
		ConnectTimeout: u.connectTimeout,
		ReadTimeout: u.readTimeout,
		WriteTimeout: u.writeTimeout,
		IdleTimeout: u.idleTimeout,
		KeepalivePoolSize: u.keepalivePoolSize,
	}, true
}
