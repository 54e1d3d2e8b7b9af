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
	"context"
	"fmt"
	"net"
	"strconv"
)

// StaticDiscoverer resolves its host names once, at construction, via the
// system resolver; it never refreshes. Grounded on
// discovery/common.rs::new_common_discover_backends.
type StaticDiscoverer struct {
	set *BackendSet
}

// NewStaticDiscoverer resolves addrs immediately and freezes the result.
func NewStaticDiscoverer(ctx context.Context, addrs []string, tls, ipv4Only bool) (*StaticDiscoverer, error) {
	specs, err := ParseAddressSpecs(addrs, tls)
	if err != nil {
		return nil, err
	}
	backends, err := resolveSpecs(ctx, specs, ipv4Only)
	if err != nil {
		return nil, err
	}
	return &StaticDiscoverer{set: NewBackendSet(backends)}, nil
}

// Discover always returns the set resolved at construction time.
func (d *StaticDiscoverer) Discover(context.Context) (*BackendSet, error) {
	return d.set, nil
}

func resolveSpecs(ctx context.Context, specs []AddressSpec, ipv4Only bool) ([]Backend, error) {
	var resolver net.Resolver
	var backends []Backend
	for _, spec := range specs {
		ips, err := resolver.LookupIP(ctx, "ip", spec.Host)
		if err != nil {
			// a literal address is its own resolution
			if ip := net.ParseIP(spec.Host); ip != nil {
				ips = []net.IP{ip}
			} else {
				return nil, fmt.Errorf("backend: resolve %q: %w", spec.Host, err)
			}
		}
		port, err := strconv.ParseUint(spec.Port, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("backend: invalid port %q: %w", spec.Port, err)
		}
		for _, ip := range ips {
			if ipv4Only && ip.To4() == nil {
				continue
			}
			backends = append(backends, Backend{IP: ip, Port: uint16(port), Weight: spec.Weight})
		}
	}
	return backends, nil
}
