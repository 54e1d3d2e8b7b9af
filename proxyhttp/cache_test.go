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
	"strings"
	"testing"
)

func TestCacheKeyForIsFlatDespiteSlashesInPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/a/b/c?x=1", nil)
	key := cacheKeyFor(r)
	if strings.ContainsAny(key, "/\\") {
		t.Fatalf("cache key %q must not contain path separators", key)
	}
}

func TestCacheKeyForIsStableAndDistinct(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)
	b := httptest.NewRequest(http.MethodGet, "http://example.com/b", nil)
	if cacheKeyFor(a) != cacheKeyFor(httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)) {
		t.Fatal("expected the same request shape to produce the same key")
	}
	if cacheKeyFor(a) == cacheKeyFor(b) {
		t.Fatal("expected different paths to produce different keys")
	}
}
