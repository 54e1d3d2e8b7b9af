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

package validity

import (
	"context"
	"testing"
	"time"

	"github.com/edgeproxy/edgeproxy/webhook"
)

type recordingSender struct {
	notifications []webhook.Notification
}

func (r *recordingSender) Send(n webhook.Notification) {
	r.notifications = append(r.notifications, n)
}

func TestCheckValidityNotYetValid(t *testing.T) {
	notBefore := time.Unix(2651852800, 0).UTC()
	info := Info{Name: "Pingap", NotBefore: notBefore, NotAfter: notBefore, Issuer: "pingap"}
	offset := 604800 * time.Second
	now := notBefore.Add(-offset - time.Hour)

	msg, invalid := checkValidity(info, offset, now)
	if !invalid {
		t.Fatal("expected the certificate to be reported invalid before its not_before time")
	}
	want := "Pingap cert is not valid, issuer: pingap, valid date: 2651852800"
	if msg != want {
		t.Fatalf("got %q, want %q", msg, want)
	}
}

func TestCheckValidityWithinOffsetOfExpiry(t *testing.T) {
	notAfter := time.Now().Add(3 * 24 * time.Hour)
	info := Info{Name: "svc", NotBefore: time.Now().Add(-time.Hour), NotAfter: notAfter, Issuer: "ca"}
	_, invalid := checkValidity(info, DefaultOffset, time.Now())
	if !invalid {
		t.Fatal("expected a certificate expiring within the offset window to be reported invalid")
	}
}

func TestCheckValidityWithinOffsetOfExpiryMessage(t *testing.T) {
	notAfter := time.Unix(2651852800, 0).UTC()
	info := Info{Name: "svc", NotBefore: notAfter.Add(-365 * 24 * time.Hour), NotAfter: notAfter, Issuer: "ca"}
	now := notAfter.Add(-time.Hour)

	msg, invalid := checkValidity(info, 604800*time.Second, now)
	if !invalid {
		t.Fatal("expected a certificate within the offset window of expiry to be reported invalid")
	}
	want := "svc cert will be expired, issuer: ca, expired date: 2651852800"
	if msg != want {
		t.Fatalf("got %q, want %q", msg, want)
	}
}

func TestCheckValidityHealthyCertificate(t *testing.T) {
	info := Info{
		Name:      "svc",
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		Issuer:    "ca",
	}
	_, invalid := checkValidity(info, DefaultOffset, time.Now())
	if invalid {
		t.Fatal("expected a healthy certificate to not be reported")
	}
}

func TestMonitorCheckOnceEmitsWebhookForEachInvalidCert(t *testing.T) {
	sender := &recordingSender{}
	expired := Info{Name: "expired", NotBefore: time.Now().Add(-48 * time.Hour), NotAfter: time.Now().Add(-time.Hour), Issuer: "ca"}
	healthy := Info{Name: "healthy", NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(365 * 24 * time.Hour), Issuer: "ca"}

	m := New(func() []Info { return []Info{expired, healthy} }, sender, nil)
	m.CheckOnce()

	if len(sender.notifications) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(sender.notifications))
	}
	n := sender.notifications[0]
	if n.Category != webhook.CategoryTLSValidity || n.Level != webhook.LevelWarn {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestMonitorRunStopsOnContextCancel(t *testing.T) {
	sender := &recordingSender{}
	m := New(func() []Info { return nil }, sender, nil).WithInterval(time.Millisecond)
	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() { done <- m.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected Run to return nil on cancellation, got %v", err)
	}
}
