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

// Package exprfilter implements the WAF-style expression filter plugin: a
// list of Wireshark-style predicates compiled against a fixed request
// schema with google/cel-go. If any compiled predicate evaluates true
// against the live request, the request is rejected.
package exprfilter

import (
	"fmt"
	"net/http"

	"github.com/google/cel-go/cel"

	"github.com/edgeproxy/edgeproxy/plugin"
)

const Category = "expr_filter"

func init() {
	plugin.Register(Category, func(raw any) (plugin.Plugin, error) {
		exprs, ok := rawToStrings(raw)
		if !ok {
			return nil, fmt.Errorf("exprfilter: expected a list of predicate strings, got %T", raw)
		}
		return New(exprs, 0)
	})
}

func rawToStrings(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Field names in the fixed schema.
const (
	fieldCookie = "http.cookie"
	fieldHost = "http.host"
	fieldReferer = "http.referer"
	fieldFullURI = "http.request.full_uri"
	fieldMethod = "http.request.method"
	fieldURI = "http.request.uri"
	fieldURIPath = "http.request.uri.path"
	fieldURIQuery = "http.request.uri.query"
	fieldUserAgent = "http.user_agent"
	fieldXForwardedFor = "http.x_forwarded_for"
	fieldIPSrc = "ip.src"
	fieldGeoipASNum = "ip.geoip.asnum"
	fieldGeoipCountry = "ip.geoip.country"
	fieldSSL = "ssl"
)

func schemaEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(fieldCookie, cel.StringType),
		cel.Variable(fieldHost, cel.StringType),
		cel.Variable(fieldReferer, cel.StringType),
		cel.Variable(fieldFullURI, cel.StringType),
		cel.Variable(fieldMethod, cel.StringType),
		cel.Variable(fieldURI, cel.StringType),
		cel.Variable(fieldURIPath, cel.StringType),
		cel.Variable(fieldURIQuery, cel.StringType),
		cel.Variable(fieldUserAgent, cel.StringType),
		cel.Variable(fieldXForwardedFor, cel.StringType),
		cel.Variable(fieldIPSrc, cel.StringType),
		cel.Variable(fieldGeoipASNum, cel.IntType),
		cel.Variable(fieldGeoipCountry, cel.StringType),
		cel.Variable(fieldSSL, cel.BoolType),
	)
}

// GeoLookup resolves ASN and country for a client IP. The plugin works
// without one configured (both fields read as zero values); wiring a real
// lookup is left to server assembly.
type GeoLookup func(ip string) (asn int64, country string)

// Plugin rejects requests matching any of its compiled predicates.
type Plugin struct {
	step plugin.Step
	programs []cel.Program
	forbiddenStatus int
	geo GeoLookup
}

// New compiles exprs against the fixed schema. forbiddenStatus defaults to
// 403 when 0. A compile error here is a configuration-time error and the
// configuration is rejected.
func New(exprs []string, forbiddenStatus int) (*Plugin, error) {
	if forbiddenStatus == 0 {
		forbiddenStatus = http.StatusForbidden
	}
	env, err := schemaEnv()
	if err != nil {
		return nil, fmt.Errorf("exprfilter: building CEL environment: %w", err)
	}
	p := &Plugin{
		step: plugin.StepRequest,
		forbiddenStatus: forbiddenStatus,
	}
	for _, expr := range exprs {
		checked, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("exprfilter: compiling %q: %w", expr, issues.Err())
		}
		if checked.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("exprfilter: predicate %q must return bool, got %s", expr, checked.OutputType())
		}
		prg, err := env.Program(checked, cel.EvalOptions(cel.OptOptimize))
		if err != nil {
			return nil, fmt.Errorf("exprfilter: building program for %q: %w", expr, err)
		}
		p.programs = append(p.programs, prg)
	}
	return p, nil
}

// WithStep overrides the declared phase; both "request" and
// "proxy_upstream" are legal.
func (p *Plugin) WithStep(step plugin.Step) *Plugin {
	p.step = step
	return p
}

// WithGeoLookup wires an ASN/country resolver for ip.geoip.* fields.
func (p *Plugin) WithGeoLookup(geo GeoLookup) *Plugin {
	p.geo = geo
	return p
}

func (p *Plugin) Step() plugin.Step { return p.step }
func (p *Plugin) Category() string { return Category }

// bindings builds the activation map for one request. Every field binds
// its actual value, not header presence — treating a Bytes field like
// `http.host` as a boolean "header present" flag would silently defeat
// every predicate that compares against a literal value.
func (p *Plugin) bindings(r *http.Request, clientIP string) map[string]any {
	var asn int64
	var country string
	if p.geo != nil {
		asn, country = p.geo(clientIP)
	}
	host := r.Host
	if host == "" {
		host = r.Header.Get("Host")
	}
	return map[string]any{
		fieldCookie: r.Header.Get("Cookie"),
		fieldHost: host,
		fieldReferer: r.Header.Get("Referer"),
		fieldFullURI: r.URL.String(),
		fieldMethod: r.Method,
		fieldURI: r.URL.RequestURI(),
		fieldURIPath: r.URL.Path,
		fieldURIQuery: r.URL.RawQuery,
		fieldUserAgent: r.Header.Get("User-Agent"),
		fieldXForwardedFor: r.Header.Get("X-Forwarded-For"),
		fieldIPSrc: clientIP,
		fieldGeoipASNum: asn,
		fieldGeoipCountry: country,
		fieldSSL: r.TLS != nil,
	}
}

// Handle evaluates every compiled predicate; the first match rejects the
// request with the configured forbidden status.
func (p *Plugin) Handle(ctx *plugin.Session) (plugin.Result, error) {
	vars := p.bindings(ctx.Request, ctx.ClientIP)
	for _, prg := range p.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			return plugin.Result{}, fmt.Errorf("exprfilter: evaluating predicate: %w", err)
		}
		matched, ok := out.Value().(bool)
		if ok && matched {
			return plugin.FailResult(p.forbiddenStatus, "request matched a filter rule"), nil
		}
	}
	return plugin.ContinueResult(), nil
}
