// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"net"
	"testing"
)

func TestParseAddressSpec(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		tls      bool
		wantHost string
		wantPort string
		wantW    int
		wantErr  bool
	}{
		{name: "host only, plaintext", addr: "10.0.0.1", wantHost: "10.0.0.1", wantPort: "80", wantW: 1},
		{name: "host only, tls", addr: "10.0.0.1", tls: true, wantHost: "10.0.0.1", wantPort: "443", wantW: 1},
		{name: "host and port", addr: "10.0.0.1:9000", wantHost: "10.0.0.1", wantPort: "9000", wantW: 1},
		{name: "host, port, weight", addr: "10.0.0.1:9000 5", wantHost: "10.0.0.1", wantPort: "9000", wantW: 5},
		{name: "host and weight, no port", addr: "10.0.0.1 3", tls: true, wantHost: "10.0.0.1", wantPort: "443", wantW: 3},
		{name: "bad weight", addr: "10.0.0.1 abc", wantErr: true},
		{name: "bad port", addr: "10.0.0.1:abc", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAddressSpec(tc.addr, tc.tls)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Host != tc.wantHost || got.Port != tc.wantPort || got.Weight != tc.wantW {
				t.Fatalf("got %+v, want host=%s port=%s weight=%d", got, tc.wantHost, tc.wantPort, tc.wantW)
			}
		})
	}
}

func TestParseAddressSpecsFailsWholeBatch(t *testing.T) {
	_, err := ParseAddressSpecs([]string{"10.0.0.1", "bad weight"}, false)
	if err == nil {
		t.Fatal("expected whole batch to fail on first bad entry")
	}
}

func TestNewBackendSetSortsByAddr(t *testing.T) {
	set := NewBackendSet([]Backend{
		{IP: net.ParseIP("10.0.0.2"), Port: 80},
		{IP: net.ParseIP("10.0.0.1"), Port: 80},
	})
	if set.Backends[0].Addr() != "10.0.0.1:80" {
		t.Fatalf("expected sorted order, got %v", set.Backends)
	}
	if !set.Ready(set.Backends[0]) {
		t.Fatal("freshly constructed backend should be marked ready")
	}
	if got := len(set.Healthy()); got != 2 {
		t.Fatalf("expected 2 healthy backends, got %d", got)
	}
}

func TestBackendHashStable(t *testing.T) {
	b := Backend{IP: net.ParseIP("10.0.0.1"), Port: 80}
	if b.Hash() != b.Hash() {
		t.Fatal("hash must be stable across calls")
	}
	other := Backend{IP: net.ParseIP("10.0.0.2"), Port: 80}
	if b.Hash() == other.Hash() {
		t.Fatal("distinct backends should not collide in this small sample")
	}
}
