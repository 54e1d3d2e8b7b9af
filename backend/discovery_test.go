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
	"testing"

	"github.com/edgeproxy/edgeproxy/webhook"
)

func TestStaticDiscovererResolvesLiteralIPsOnce(t *testing.T) {
	d, err := NewStaticDiscoverer(context.Background(), []string{"10.0.0.1:9000", "10.0.0.2:9000 2"}, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(set.Backends))
	}
}

func TestStaticDiscovererRejectsBadSpec(t *testing.T) {
	if _, err := NewStaticDiscoverer(context.Background(), []string{"10.0.0.1 not-a-weight"}, false, false); err == nil {
		t.Fatal("expected an error for a malformed address spec")
	}
}

type recordingSender struct {
	notifications []webhook.Notification
}

func (r *recordingSender) Send(n webhook.Notification) {
	r.notifications = append(r.notifications, n)
}

func TestDNSDiscovererEmitsWebhookOnResolveFailure(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDNSDiscoverer([]string{"this.host.does-not-exist.invalid:9000"}, false, false, nil, sender)
	if err != nil {
		t.Fatalf("unexpected error building discoverer: %v", err)
	}
	if _, err := d.Discover(context.Background()); err == nil {
		t.Fatal("expected resolution of a nonexistent host to fail")
	}
	if len(sender.notifications) != 1 {
		t.Fatalf("expected exactly one webhook notification, got %d", len(sender.notifications))
	}
	n := sender.notifications[0]
	if n.Category != webhook.CategoryServiceDiscoverFail || n.Level != webhook.LevelWarn {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestDNSDiscovererResolvesLiteralIP(t *testing.T) {
	d, err := NewDNSDiscoverer([]string{"127.0.0.1:9000"}, false, false, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Backends) != 1 || set.Backends[0].Addr() != "127.0.0.1:9000" {
		t.Fatalf("unexpected backend set: %+v", set.Backends)
	}
}
