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

package location

import "testing"

func mustCompile(t *testing.T, l *Location) *Location {
	t.Helper()
	if err := l.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return l
}

func TestLocationHostMatch(t *testing.T) {
	tests := []struct {
		name string
		host string
		req  string
		want bool
	}{
		{"empty host matches any", "", "anything.example.com", true},
		{"exact case-insensitive", "Example.com", "example.com", true},
		{"wildcard suffix matches", "*.example.com", "api.example.com", true},
		{"wildcard suffix rejects other domain", "*.example.com", "api.other.com", false},
		{"exact rejects mismatch", "example.com", "other.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := mustCompile(t, &Location{Host: tc.host, PathKind: PathPrefix, Path: "/"})
			if got := l.Matched(tc.req, "/"); got != tc.want {
				t.Fatalf("Matched(%q) = %v, want %v", tc.req, got, tc.want)
			}
		})
	}
}

func TestLocationPathMatchKinds(t *testing.T) {
	tests := []struct {
		name string
		kind PathMatchKind
		path string
		req  string
		want bool
	}{
		{"prefix hit", PathPrefix, "/api", "/api/v1/users", true},
		{"prefix miss", PathPrefix, "/api", "/other", false},
		{"exact hit", PathExact, "/healthz", "/healthz", true},
		{"exact miss trailing slash", PathExact, "/healthz", "/healthz/", false},
		{"regex hit", PathRegex, `^/users/\d+$`, "/users/42", true},
		{"regex miss", PathRegex, `^/users/\d+$`, "/users/abc", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := mustCompile(t, &Location{PathKind: tc.kind, Path: tc.path})
			if got := l.Matched("example.com", tc.req); got != tc.want {
				t.Fatalf("Matched(%q) = %v, want %v", tc.req, got, tc.want)
			}
		})
	}
}

func TestRewritePathSubstitutesAndReappendsNothingItself(t *testing.T) {
	l := mustCompile(t, &Location{
		PathKind:  PathPrefix,
		Path:      "/old",
		Rewrite:   `^/old(/.*)$`,
		RewriteTo: "/new$1",
	})
	if got := l.RewritePath("/old/resource"); got != "/new/resource" {
		t.Fatalf("got %q", got)
	}
}

func TestRewritePathKeepsOriginalOnUnusableResult(t *testing.T) {
	l := mustCompile(t, &Location{
		PathKind:  PathPrefix,
		Path:      "/old",
		Rewrite:   `^/old(.*)$`,
		RewriteTo: "not-absolute$1",
	})
	if got := l.RewritePath("/old/thing"); got != "/old/thing" {
		t.Fatalf("expected unparseable rewrite to be dropped silently, got %q", got)
	}
}

func TestRewritePathNoOpWithoutRewrite(t *testing.T) {
	l := mustCompile(t, &Location{PathKind: PathPrefix, Path: "/"})
	if got := l.RewritePath("/unchanged"); got != "/unchanged" {
		t.Fatalf("got %q", got)
	}
}

func TestTableOrdersByDescendingWeightThenInsertion(t *testing.T) {
	a := mustCompile(t, &Location{Name: "a", PathKind: PathPrefix, Path: "/", Weight: 1})
	b := mustCompile(t, &Location{Name: "b", PathKind: PathPrefix, Path: "/", Weight: 5})
	c := mustCompile(t, &Location{Name: "c", PathKind: PathPrefix, Path: "/", Weight: 5})
	table := NewTable([]*Location{a, b, c})
	got := table.Locations()
	if got[0].Name != "b" || got[1].Name != "c" || got[2].Name != "a" {
		names := []string{got[0].Name, got[1].Name, got[2].Name}
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestTableMatchFirstWins(t *testing.T) {
	specific := mustCompile(t, &Location{Name: "specific", PathKind: PathExact, Path: "/users/me", Weight: 10})
	general := mustCompile(t, &Location{Name: "general", PathKind: PathPrefix, Path: "/users", Weight: 1})
	table := NewTable([]*Location{general, specific})

	loc, ok := table.Match("example.com", "/users/me")
	if !ok || loc.Name != "specific" {
		t.Fatalf("expected specific location to win, got %+v ok=%v", loc, ok)
	}

	loc, ok = table.Match("example.com", "/users/other")
	if !ok || loc.Name != "general" {
		t.Fatalf("expected general location to win, got %+v ok=%v", loc, ok)
	}
}

func TestTableMatchNoneFound(t *testing.T) {
	table := NewTable(nil)
	if _, ok := table.Match("example.com", "/"); ok {
		t.Fatal("expected no match against an empty table")
	}
}
