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

// Package location implements the (host, path) routing table: matching,
// rewriting, and the ordered list of locations consulted by the proxy state
// machine for every request.
package location

import (
	"regexp"
	"sort"
	"strings"

	"github.com/edgeproxy/edgeproxy/plugin"
)

// HeaderRule is one "name: value" pair injected into a request or response.
type HeaderRule struct {
	Name string
	Value string
}

// PathMatchKind selects how Path is interpreted.
type PathMatchKind int

const (
	// PathPrefix matches any path sharing Path as a prefix (the default).
	PathPrefix PathMatchKind = iota
	// PathExact matches only the identical path ("=" prefix in config).
	PathExact
	// PathRegex matches via regular expression ("~" prefix in config).
	PathRegex
)

// Location is one routing rule: a (host, path) matcher owning a rewrite
// rule, header injection lists, an upstream name, and a plugin chain.
type Location struct {
	Name string

	// Host is the configured host pattern: empty matches any host; a
	// leading "*" matches any host ending in the remainder; otherwise an
	// exact, case-insensitive match is required.
	Host string

	PathKind PathMatchKind
	Path string
	pathRE *regexp.Regexp

	// Rewrite, when non-empty, is a regex substitution applied to the
	// path before forwarding; the query string is re-appended by the
	// caller. RewriteTo uses Go's regexp.ReplaceAllString syntax ("$1").
	Rewrite string
	RewriteTo string
	rewriteRE *regexp.Regexp

	UpstreamName string

	RequestHeadersAdd []HeaderRule
	ResponseHeadersAdd []HeaderRule

	// PluginChain names plugins (by configuration key) to run, in order,
	// for this location; Plugins holds the instances built from those
	// names at configuration load time (server assembly resolves one
	// from the other; the state machine only ever consults Plugins).
	PluginChain []string
	Plugins []plugin.Plugin

	// Weight orders the location list: higher weight is tried first;
	// ties keep insertion order (a stable sort over the configured list).
	Weight int

	// AcceptEncodingLevel, when >0, is forwarded to the upstream as an
	// X-Accept-Encoding-Level request header. The proxy itself neither
	// compresses nor decompresses the response body.
	AcceptEncodingLevel int
}

// Compile finalizes a Location's regex-based matchers. Must be called once
// after construction and before Matched/RewritePath are used.
func (l *Location) Compile() error {
	if l.PathKind == PathRegex && l.Path != "" {
		re, err := regexp.Compile(l.Path)
		if err != nil {
			return err
		}
		l.pathRE = re
	}
	if l.Rewrite != "" {
		re, err := regexp.Compile(l.Rewrite)
		if err != nil {
			return err
		}
		l.rewriteRE = re
	}
	return nil
}

// Matched reports whether this location handles a request for host/path,
// per host match first, then path match.
func (l *Location) Matched(host, path string) bool {
	if !l.hostMatched(host) {
		return false
	}
	return l.pathMatched(path)
}

func (l *Location) hostMatched(host string) bool {
	if l.Host == "" {
		return true
	}
	if strings.HasPrefix(l.Host, "*") {
		suffix := l.Host[1:]
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(suffix))
	}
	return strings.EqualFold(l.Host, host)
}

func (l *Location) pathMatched(path string) bool {
	switch l.PathKind {
	case PathExact:
		return path == l.Path
	case PathRegex:
		if l.pathRE == nil {
			return false
		}
		return l.pathRE.MatchString(path)
	default:
		return strings.HasPrefix(path, l.Path)
	}
}

// RewritePath applies the configured rewrite, if any. On failure to produce
// a usable path it returns the original path unchanged.
func (l *Location) RewritePath(path string) string {
	if l.rewriteRE == nil {
		return path
	}
	rewritten := l.rewriteRE.ReplaceAllString(path, l.RewriteTo)
	if rewritten == "" || !strings.HasPrefix(rewritten, "/") {
		return path
	}
	return rewritten
}

// Table is an ordered, weight-sorted list of Locations.
type Table struct {
	locations []*Location
}

// NewTable sorts locs by descending weight, stable on insertion order for
// ties.
func NewTable(locs []*Location) *Table {
	sorted := make([]*Location, len(locs))
	copy(sorted, locs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	return &Table{locations: sorted}
}

// Match returns the first location whose Matched(host, path) is true.
func (t *Table) Match(host, path string) (*Location, bool) {
	for _, l := range t.locations {
		if l.Matched(host, path) {
			return l, true
		}
	}
	return nil, false
}

// Locations exposes the sorted list, e.g. for server-assembly wiring.
func (t *Table) Locations() []*Location {
	return t.locations
}
