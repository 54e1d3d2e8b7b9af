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
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edgeproxy/edgeproxy/webhook"
)

// DNSDiscoverer re-resolves its host names on every Discover call. On
// failure it emits a ServiceDiscoverFail webhook and propagates the error;
// the caller is expected to keep using its previous BackendSet. Grounded on
// discovery/dns.rs.
type DNSDiscoverer struct {
	specs    []AddressSpec
	ipv4Only bool
	logger   *zap.Logger
	sender   webhook.Sender

	// failLog throttles the warn log + webhook to at most once per minute
	// so a persistently broken resolver doesn't spam the log on every
	// periodic refresh (the caller calls Discover far more often than
	// once a minute).
	failLog *rate.Sometimes
}

// NewDNSDiscoverer builds a re-resolving discoverer over addrs.
func NewDNSDiscoverer(addrs []string, tls, ipv4Only bool, logger *zap.Logger, sender webhook.Sender) (*DNSDiscoverer, error) {
	specs, err := ParseAddressSpecs(addrs, tls)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = webhook.NewLoggingSender(logger)
	}
	return &DNSDiscoverer{
		specs:    specs,
		ipv4Only: ipv4Only,
		logger:   logger.Named("dns_discovery"),
		sender:   sender,
		failLog:  &rate.Sometimes{Interval: time.Minute},
	}, nil
}

// Discover re-resolves every host on each call.
func (d *DNSDiscoverer) Discover(ctx context.Context) (*BackendSet, error) {
	backends, err := resolveSpecs(ctx, d.specs, d.ipv4Only)
	if err != nil {
		msg := fmt.Sprintf("%v, error: %v", d.specs, err)
		d.failLog.Do(func() {
			d.logger.Warn("dns discover fail", zap.Error(err))
			d.sender.Send(webhook.Notification{
				Category: webhook.CategoryServiceDiscoverFail,
				Level:    webhook.LevelWarn,
				Msg:      msg,
			})
		})
		return nil, fmt.Errorf("backend: dns discover: %w", err)
	}
	return NewBackendSet(backends), nil
}
