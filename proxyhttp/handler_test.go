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

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeproxy/edgeproxy/backend"
	"github.com/edgeproxy/edgeproxy/location"
)

func TestServeDirectorySkipsUpstreamPeer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte("hello from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := &Handler{}
	r := httptest.NewRequest(http.MethodGet, "/page.html", nil)
	w := httptest.NewRecorder()
	state := NewState("1.2.3.4")

	h.serveDirectory(w, r, dir, state)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "hello from disk" {
		t.Fatalf("body = %q", w.Body.String())
	}
	if state.ResponseBodySize != uint64(len("hello from disk")) {
		t.Fatalf("ResponseBodySize = %d, want %d", state.ResponseBodySize, len("hello from disk"))
	}
}

func TestServeMockWritesCannedResponse(t *testing.T) {
	h := &Handler{}
	w := httptest.NewRecorder()
	state := NewState("1.2.3.4")

	mock := &backend.MockResponse{
		Status: http.StatusTeapot,
		Body: []byte(`{"ok":true}`),
		Headers: []backend.MockHeader{{Name: "Content-Type", Value: "application/json"}},
	}
	h.serveMock(w, mock, state)

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Fatalf("body = %q", w.Body.String())
	}
	if state.Status != http.StatusTeapot {
		t.Fatalf("state.Status = %d, want %d", state.Status, http.StatusTeapot)
	}
}

func TestServeMockDefaultsStatusToOK(t *testing.T) {
	h := &Handler{}
	w := httptest.NewRecorder()
	state := NewState("1.2.3.4")

	h.serveMock(w, &backend.MockResponse{Body: []byte("ok")}, state)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestProxyToUpstreamServesDirectoryWithoutABackend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("served inline"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := backend.NewUpstream("static", &backend.RoundRobinPolicy{}, backend.NewBackendSet(nil), 4, false, "")
	up.SetDirectory(dir)

	h := &Handler{Upstreams: map[string]*backend.Upstream{"static": up}}
	loc := &location.Location{Name: "static", UpstreamName: "static"}

	r := httptest.NewRequest(http.MethodGet, "/f.txt", nil)
	w := httptest.NewRecorder()
	state := NewState("1.2.3.4")

	h.proxyToUpstream(w, r, loc, nil, state)

	if w.Code != http.StatusOK || w.Body.String() != "served inline" {
		t.Fatalf("unexpected response: status=%d body=%q", w.Code, w.Body.String())
	}
	if state.UpstreamAddress != "" {
		t.Fatalf("expected no backend to have been selected, got %q", state.UpstreamAddress)
	}
}
