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

// Package plugin defines the request-scoped plugin capability set
// implemented by the concrete plugins in plugin/limit and
// plugin/exprfilter, and registered the way Caddy registers modules: a
// small ID + constructor pair resolved at configuration load time.
package plugin

import (
	"fmt"
	"net/http"
	"sync"
)

// Step identifies the proxy-state-machine phase a plugin's Handle is
// invoked from; declaring any other phase is a
// configuration-time error.
type Step string

const (
	StepRequest Step = "request"
	StepProxyUpstream Step = "proxy_upstream"
)

// Verdict is the outcome of a single plugin invocation.
type Verdict int

const (
	// Continue proceeds to the next plugin in the chain.
	Continue Verdict = iota
	// Respond short-circuits the request with an already-built response.
	Respond
	// Fail terminates the request with an HTTP status and message.
	Fail
)

// Result is what Handle returns: the Verdict plus its payload.
type Result struct {
	Verdict Verdict

	// Response is set when Verdict == Respond.
	Response *http.Response

	// Status and Message are set when Verdict == Fail.
	Status int
	Message string
}

func ContinueResult() Result { return Result{Verdict: Continue} }

func RespondResult(resp *http.Response) Result {
	return Result{Verdict: Respond, Response: resp}
}

func FailResult(status int, message string) Result {
	return Result{Verdict: Fail, Status: status, Message: message}
}

// Session carries the per-request data a plugin needs to inspect and the
// hook it uses to attach cleanup (an inflight guard, for instance) to the
// request's lifetime.
type Session struct {
	Request *http.Request
	ClientIP string
	// OnDone registers a cleanup func invoked exactly once when the
	// owning RequestState is torn down, regardless of success, failure,
	// or cancellation.
	OnDone func(func())
}

// Plugin is the capability set every concrete plugin implements: the step
// it runs at, a category label used in logs/config, and the handler.
type Plugin interface {
	Step() Step
	Category() string
	Handle(ctx *Session) (Result, error)
}

// Factory builds a configured Plugin instance from its raw configuration
// value (the limit plugin's dimension string, the expression filter's
// predicate list, etc).
type Factory func(rawConfig any) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry = map[string]Factory{}
)

// Register adds a plugin factory under category. Intended to be called
// from each plugin package's init(), mirroring Caddy's module registry.
func Register(category string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[category] = f
}

// Build looks up category's factory and constructs a Plugin from
// rawConfig. Returns a configuration-time error if category is unknown or
// construction fails.
func Build(category string, rawConfig any) (Plugin, error) {
	registryMu.RLock()
	f, ok := registry[category]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin: unknown category %q", category)
	}
	return f(rawConfig)
}

// Chain is an ordered list of plugins sharing a step; the proxy state
// machine runs Handle on each member of the chain whose Step matches the
// current phase until one returns something other than Continue.
type Chain struct {
	plugins []Plugin
}

func NewChain(plugins []Plugin) *Chain {
	return &Chain{plugins: append([]Plugin(nil), plugins...)}
}

// Run executes every plugin in the chain whose Step matches step, in
// order, stopping at the first non-Continue verdict.
func (c *Chain) Run(step Step, ctx *Session) (Result, error) {
	for _, p := range c.plugins {
		if p.Step() != step {
			continue
		}
		res, err := p.Handle(ctx)
		if err != nil {
			return Result{}, err
		}
		if res.Verdict != Continue {
			return res, nil
		}
	}
	return ContinueResult(), nil
}
