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

// Package validity implements the TLS certificate validity monitor: a
// periodic background task that warns, via webhook, about certificates
// that are expired, about to expire, or not yet valid.
package validity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgeproxy/edgeproxy/webhook"
)

// Info describes one certificate's validity window, as loaded from its
// parsed PEM chain.
type Info struct {
	Name string
	NotBefore time.Time
	NotAfter time.Time
	Issuer string
}

// DefaultOffset is the warn-ahead-of-expiry window.
const DefaultOffset = 7 * 24 * time.Hour

// DefaultInterval is how often the monitor re-checks every certificate.
const DefaultInterval = 24 * time.Hour

// Source supplies the current set of certificates to check. Server
// assembly wires this to the configured listener certificates.
type Source func() []Info

// Monitor periodically checks every certificate Source returns and emits
// a webhook for each one that is invalid.
type Monitor struct {
	source Source
	offset time.Duration
	interval time.Duration
	sender webhook.Sender
	logger *zap.Logger
	now func() time.Time
}

// New builds a Monitor with the default offset and interval. Use the
// With* methods to override either for tests.
func New(source Source, sender webhook.Sender, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = webhook.NewLoggingSender(logger)
	}
	return &Monitor{
		source: source,
		offset: DefaultOffset,
		interval: DefaultInterval,
		sender: sender,
		logger: logger.Named("validity"),
		now: time.Now,
	}
}

func (m *Monitor) WithOffset(d time.Duration) *Monitor { m.offset = d; return m }
func (m *Monitor) WithInterval(d time.Duration) *Monitor { m.interval = d; return m }

// CheckOnce runs a single pass over the current certificate set, emitting
// a webhook for each invalid one. It never returns an error: a bad
// certificate is reported, not fatal.
func (m *Monitor) CheckOnce() {
	for _, info := range m.source() {
		if msg, invalid := checkValidity(info, m.offset, m.now()); invalid {
			m.logger.Warn("certificate not valid", zap.String("name", info.Name), zap.String("issuer", info.Issuer))
			m.sender.Send(webhook.Notification{
				Category: webhook.CategoryTLSValidity,
				Level: webhook.LevelWarn,
				Msg: msg,
			})
		}
	}
}

// checkValidity reports whether info is invalid at now, and the warning
// message. A certificate within offset of its NotAfter reports "will be
// expired" against NotAfter; one before its NotBefore reports "is not
// valid" against NotBefore. The two checks are distinct because they
// describe different failures and must not share a message.
func checkValidity(info Info, offset time.Duration, now time.Time) (string, bool) {
	if now.After(info.NotAfter.Add(-offset)) {
		return fmt.Sprintf("%s cert will be expired, issuer: %s, expired date: %d",
			info.Name, info.Issuer, info.NotAfter.Unix()), true
	}
	if now.Before(info.NotBefore) {
		return fmt.Sprintf("%s cert is not valid, issuer: %s, valid date: %d",
			info.Name, info.Issuer, info.NotBefore.Unix()), true
	}
	return "", false
}

// Run blocks, checking every m.interval until ctx is cancelled. Intended
// to be launched as one goroutine of the server's background errgroup.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.CheckOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckOnce()
		}
	}
}
