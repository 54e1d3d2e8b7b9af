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

// Package limit implements the inflight concurrency-limiting plugin:
// configured by a single "<prefix><key> <max>" string, it caps the number
// of requests in flight for one dimension value (a cookie, a header, a
// query parameter, or the client IP) and releases its slot exactly once
// per request via an inflight guard attached to the request's lifetime.
package limit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/edgeproxy/edgeproxy/plugin"
)

const Category = "limit"

func init() {
	plugin.Register(Category, func(raw any) (plugin.Plugin, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("limit: expected a string configuration, got %T", raw)
		}
		return New(s)
	})
}

type dimension int

const (
	dimensionIP dimension = iota
	dimensionCookie
	dimensionHeader
	dimensionQuery
)

// Plugin caps in-flight requests per dimension value at Max.
type Plugin struct {
	step plugin.Step
	dim dimension
	key string
	max int64

	mu sync.Mutex
	counters map[string]*atomic.Int64
}

// New parses "<prefix><key> <max>": '~' cookie, '>' header,
// '?' query, anything else selects client IP (key is then ignored).
func New(config string) (*Plugin, error) {
	fields := strings.Fields(config)
	if len(fields) != 2 {
		return nil, fmt.Errorf("limit: expected \"<prefix><key> <max>\", got %q", config)
	}
	max, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || max < 1 {
		return nil, fmt.Errorf("limit: invalid max %q: %w", fields[1], err)
	}

	spec := fields[0]
	p := &Plugin{
		step: plugin.StepRequest,
		max: max,
		counters: make(map[string]*atomic.Int64),
	}
	if spec == "" {
		p.dim = dimensionIP
		return p, nil
	}
	switch spec[0] {
	case '~':
		p.dim, p.key = dimensionCookie, spec[1:]
	case '>':
		p.dim, p.key = dimensionHeader, spec[1:]
	case '?':
		p.dim, p.key = dimensionQuery, spec[1:]
	default:
		p.dim = dimensionIP
	}
	if p.dim != dimensionIP && p.key == "" {
		return nil, fmt.Errorf("limit: empty key in configuration %q", config)
	}
	return p, nil
}

// WithStep overrides the declared phase; both "request" and
// "proxy_upstream" are legal.
func (p *Plugin) WithStep(step plugin.Step) *Plugin {
	p.step = step
	return p
}

func (p *Plugin) Step() plugin.Step { return p.step }
func (p *Plugin) Category() string { return Category }

func (p *Plugin) dimensionValue(ctx *plugin.Session) string {
	switch p.dim {
	case dimensionCookie:
		c, err := ctx.Request.Cookie(p.key)
		if err != nil {
			return ""
		}
		return c.Value
	case dimensionHeader:
		return ctx.Request.Header.Get(p.key)
	case dimensionQuery:
		return ctx.Request.URL.Query().Get(p.key)
	default:
		return ctx.ClientIP
	}
}

func (p *Plugin) counterFor(key string) *atomic.Int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[key]
	if !ok {
		c = &atomic.Int64{}
		p.counters[key] = c
	}
	return c
}

// Handle implements plugin.Plugin. An empty dimension value is a no-op
// (Continue); otherwise it atomically increments the dimension's counter,
// failing with 429 if the post-increment value exceeds Max, and otherwise
// registers a guard on ctx that decrements exactly once when the owning
// request is torn down.
func (p *Plugin) Handle(ctx *plugin.Session) (plugin.Result, error) {
	key := p.dimensionValue(ctx)
	if key == "" {
		return plugin.ContinueResult(), nil
	}

	counter := p.counterFor(key)
	if counter.Add(1) > p.max {
		counter.Add(-1)
		return plugin.FailResult(429, "exceed"), nil
	}

	var once sync.Once
	ctx.OnDone(func() {
		once.Do(func() { counter.Add(-1) })
	})
	return plugin.ContinueResult(), nil
}

// Count reports the current in-flight count for key, for tests and
// introspection.
func (p *Plugin) Count(key string) int64 {
	p.mu.Lock()
	c, ok := p.counters[key]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Load()
}
