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
	"context"
	"crypto/x509"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/edgeproxy/edgeproxy/backend"
	"github.com/edgeproxy/edgeproxy/config"
	"github.com/edgeproxy/edgeproxy/location"
	"github.com/edgeproxy/edgeproxy/metrics"
	"github.com/edgeproxy/edgeproxy/plugin"
	"github.com/edgeproxy/edgeproxy/plugin/exprfilter"
	"github.com/edgeproxy/edgeproxy/plugin/limit"
	"github.com/edgeproxy/edgeproxy/validity"
	"github.com/edgeproxy/edgeproxy/webhook"
)

// discoveryRefreshInterval is how often a DNS-backed upstream re-resolves
// in the background; static upstreams never refresh.
const discoveryRefreshInterval = 30 * time.Second

// Runtime is the set of live objects Build wires up from a Document: the
// Assembly ready to Run, plus the pieces a caller may want direct access
// to (a reload diff, a test harness, a custom metrics scrape endpoint).
type Runtime struct {
	Assembly *Assembly
	Handlers map[string]*Handler
	Upstreams map[string]*backend.Upstream
	Metrics *metrics.Registry
}

// Build turns a decoded configuration document into a Runtime: one
// Upstream pool per configured upstream (with discovery and, for
// DNS-backed pools, a background refresh loop), one location.Table and
// Handler per configured server, the plugin chains named by each
// location, and a certificate-validity monitor covering every server's
// configured TLS certificate.
func Build(ctx context.Context, doc *config.Document, logger *zap.Logger, sender webhook.Sender, promReg prometheus.Registerer, version string) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = webhook.NewLoggingSender(logger)
	}

	var background []BackgroundService

	upstreams := make(map[string]*backend.Upstream, len(doc.Upstreams))
	for name, uc := range doc.Upstreams {
		up, svc, err := buildUpstream(ctx, name, uc, logger, sender)
		if err != nil {
			return nil, fmt.Errorf("proxyhttp: building upstream %q: %w", name, err)
		}
		upstreams[name] = up
		if svc.Run != nil {
			background = append(background, svc)
		}
	}

	locationsByName := make(map[string]*location.Location, len(doc.Locations))
	for name, lc := range doc.Locations {
		loc, err := buildLocation(name, lc, doc.ProxyPlugins)
		if err != nil {
			return nil, fmt.Errorf("proxyhttp: building location %q: %w", name, err)
		}
		locationsByName[name] = loc
	}

	var reg *metrics.Registry
	if promReg != nil {
		reg = metrics.NewRegistry(promReg)
	}

	handlers := make(map[string]*Handler, len(doc.Servers))
	var servers []ServerConfig
	var certSources []CertificateSource
	for name, sc := range doc.Servers {
		locs := make([]*location.Location, 0, len(sc.Locations))
		for _, locName := range sc.Locations {
			loc, ok := locationsByName[locName]
			if !ok {
				return nil, fmt.Errorf("proxyhttp: server %q references unknown location %q", name, locName)
			}
			locs = append(locs, loc)
		}

		handler := &Handler{
			ServerName: name,
			Locations: location.NewTable(locs),
			Upstreams: upstreams,
			Counters: &Counters{},
			StatsPath: sc.StatsPath,
			ErrorTemplate: doc.ErrorTemplate,
			Version: version,
			Metrics: reg,
			Logger: logger,
		}
		if sc.Admin {
			handler.AdminPrefix = sc.AdminPrefix
			if handler.AdminPrefix == "" {
				handler.AdminPrefix = "/"
			}
			user, pass := splitAuthorization(sc.Authorization)
			handler.AdminGate = &BasicAuthGate{
				Username: user,
				Password: pass,
				Prefix: handler.AdminPrefix,
				Handler: NewChiAdminRouter(version),
			}
		}
		handlers[name] = handler

		var certs []CertificateSource
		tlsEnabled := sc.TLSCertBase64 != "" && sc.TLSKeyBase64 != ""
		if tlsEnabled {
			src := CertificateSource{CertBase64: sc.TLSCertBase64, KeyBase64: sc.TLSKeyBase64}
			certs = append(certs, src)
			certSources = append(certSources, src)
		}
		servers = append(servers, ServerConfig{
			Name: name,
			Addr: sc.Addr,
			TLS: tlsEnabled,
			Certs: certs,
			ThreadSize: sc.Threads,
			Handler: handler,
		})
	}

	if len(certSources) > 0 {
		monitor := validity.New(certValiditySource(certSources), sender, logger)
		background = append(background, BackgroundService{
			Name: "cert-validity",
			Run: monitor.Run,
		})
	}

	return &Runtime{
		Assembly: &Assembly{Servers: servers, Background: background},
		Handlers: handlers,
		Upstreams: upstreams,
		Metrics: reg,
	}, nil
}

// buildUpstream resolves the initial BackendSet for uc and, for a
// DNS-discovered pool, returns a BackgroundService that keeps
// re-resolving it. A static pool resolves once and never refreshes: its
// BackgroundService is the zero value, which Build skips.
func buildUpstream(ctx context.Context, name string, uc config.UpstreamConf, logger *zap.Logger, sender webhook.Sender) (*backend.Upstream, BackgroundService, error) {
	policy := backend.NewPolicy(uc.Policy)

	var disc backend.Discoverer
	if uc.DNSDiscovery {
		d, err := backend.NewDNSDiscoverer(uc.Addrs, uc.TLS, uc.IPv4Only, logger, sender)
		if err != nil {
			return nil, BackgroundService{}, err
		}
		disc = d
	} else {
		d, err := backend.NewStaticDiscoverer(ctx, uc.Addrs, uc.TLS, uc.IPv4Only)
		if err != nil {
			return nil, BackgroundService{}, err
		}
		disc = d
	}

	initial, err := disc.Discover(ctx)
	if err != nil {
		return nil, BackgroundService{}, err
	}

	up := backend.NewUpstream(name, policy, initial, uc.KeepalivePoolSize, uc.TLS, uc.SNI)
	up.SetTimeouts(time.Duration(uc.ConnectTimeout), time.Duration(uc.ReadTimeout), time.Duration(uc.WriteTimeout), time.Duration(uc.IdleTimeout))

	if uc.Directory != "" {
		up.SetDirectory(uc.Directory)
	}
	if uc.Mock != nil {
		mock := &backend.MockResponse{Status: uc.Mock.Status, Body: []byte(uc.Mock.Data)}
		for _, raw := range uc.Mock.Headers {
			rule, err := parseHeaderRule(raw)
			if err != nil {
				return nil, BackgroundService{}, fmt.Errorf("mock headers: %w", err)
			}
			mock.Headers = append(mock.Headers, backend.MockHeader{Name: rule.Name, Value: rule.Value})
		}
		up.SetMock(mock)
	}

	if !uc.DNSDiscovery {
		return up, BackgroundService{}, nil
	}

	svc := BackgroundService{
		Name: "discovery:" + name,
		Run: func(ctx context.Context) error {
			ticker := time.NewTicker(discoveryRefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					set, err := disc.Discover(ctx)
					if err != nil {
						// already logged and notified by the discoverer;
						// the upstream keeps serving its last good set.
						continue
					}
					up.ReplaceBackendSet(set)
				}
			}
		},
	}
	return up, svc, nil
}

// buildLocation compiles one configured location, resolving its plugin
// chain names against proxyPlugins.
func buildLocation(name string, lc config.LocationConf, proxyPlugins map[string]config.PluginConf) (*location.Location, error) {
	kind, path := parsePathSpec(lc.Path)

	loc := &location.Location{
		Name: name,
		Host: lc.Host,
		PathKind: kind,
		Path: path,
		UpstreamName: lc.Upstream,
		Weight: lc.Weight,
		PluginChain: lc.PluginChain,
		AcceptEncodingLevel: parseAcceptEncoding(lc.AcceptEncoding),
	}
	loc.Rewrite, loc.RewriteTo = parseRewriteSpec(lc.Rewrite)

	for _, raw := range lc.RequestHeadersAdd {
		rule, err := parseHeaderRule(raw)
		if err != nil {
			return nil, fmt.Errorf("request_headers_add: %w", err)
		}
		loc.RequestHeadersAdd = append(loc.RequestHeadersAdd, rule)
	}
	for _, raw := range lc.ResponseHeadersAdd {
		rule, err := parseHeaderRule(raw)
		if err != nil {
			return nil, fmt.Errorf("response_headers_add: %w", err)
		}
		loc.ResponseHeadersAdd = append(loc.ResponseHeadersAdd, rule)
	}

	for _, pluginName := range lc.PluginChain {
		pc, ok := proxyPlugins[pluginName]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", pluginName)
		}
		p, err := buildPlugin(pc)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", pluginName, err)
		}
		loc.Plugins = append(loc.Plugins, p)
	}

	if err := loc.Compile(); err != nil {
		return nil, err
	}
	return loc, nil
}

// buildPlugin constructs one plugin.Plugin from its configuration entry,
// dispatching on category the same way plugin.Build resolves a factory,
// then overriding the declared step per pc.Step.
func buildPlugin(pc config.PluginConf) (plugin.Plugin, error) {
	var raw any
	switch {
	case len(pc.Values) > 0:
		raw = pc.Values
	default:
		raw = pc.Value
	}

	p, err := plugin.Build(pc.Category, raw)
	if err != nil {
		return nil, err
	}

	var step plugin.Step
	switch pc.Step {
	case "", string(plugin.StepRequest):
		step = plugin.StepRequest
	case string(plugin.StepProxyUpstream):
		step = plugin.StepProxyUpstream
	default:
		return nil, fmt.Errorf("plugin step must be %q or %q, got %q", plugin.StepRequest, plugin.StepProxyUpstream, pc.Step)
	}
	switch configured := p.(type) {
	case *limit.Plugin:
		configured.WithStep(step)
	case *exprfilter.Plugin:
		configured.WithStep(step)
	}
	return p, nil
}

// parsePathSpec interprets nginx-style location prefixes: "=" selects an
// exact match, "~" a regex match, anything else (including the empty
// string) a prefix match.
func parsePathSpec(raw string) (location.PathMatchKind, string) {
	switch {
	case strings.HasPrefix(raw, "="):
		return location.PathExact, strings.TrimPrefix(raw, "=")
	case strings.HasPrefix(raw, "~"):
		return location.PathRegex, strings.TrimPrefix(raw, "~")
	default:
		return location.PathPrefix, raw
	}
}

// parseRewriteSpec splits a "pattern => replacement" rewrite rule; a bare
// pattern with no "=>" rewrites to the empty string (deletes the matched
// portion).
func parseRewriteSpec(raw string) (pattern, replacement string) {
	if raw == "" {
		return "", ""
	}
	parts := strings.SplitN(raw, "=>", 2)
	if len(parts) == 1 {
		return strings.TrimSpace(parts[0]), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func parseHeaderRule(raw string) (location.HeaderRule, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return location.HeaderRule{}, fmt.Errorf("expected \"Name: Value\", got %q", raw)
	}
	return location.HeaderRule{Name: strings.TrimSpace(parts[0]), Value: strings.TrimSpace(parts[1])}, nil
}

func parseAcceptEncoding(raw string) int {
	if raw == "" {
		return 0
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return level
}

func splitAuthorization(raw string) (user, pass string) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return raw, ""
	}
	return parts[0], parts[1]
}

// certValiditySource parses every configured certificate's leaf once at
// startup and returns a validity.Source serving that fixed snapshot: a
// reloaded certificate is picked up on the next full Build, not
// mid-process.
func certValiditySource(srcs []CertificateSource) validity.Source {
	infos := make([]validity.Info, 0, len(srcs))
	for _, src := range srcs {
		cert, err := LoadTLSCertificate(src)
		if err != nil || len(cert.Certificate) == 0 {
			continue
		}
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			continue
		}
		infos = append(infos, validity.Info{
			Name: leaf.Subject.CommonName,
			NotBefore: leaf.NotBefore,
			NotAfter: leaf.NotAfter,
			Issuer: leaf.Issuer.CommonName,
		})
	}
	return func() []validity.Info { return infos }
}
