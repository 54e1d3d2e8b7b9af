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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgeproxy/edgeproxy/backend"
	"github.com/edgeproxy/edgeproxy/cache"
	"github.com/edgeproxy/edgeproxy/location"
	"github.com/edgeproxy/edgeproxy/metrics"
	"github.com/edgeproxy/edgeproxy/plugin"
)

// LogEntry is the per-request summary handed to the logging hook,
// invoked exactly once per request regardless of path.
type LogEntry struct {
	Status int
	ResponseBodySize uint64
	Duration time.Duration
	UpstreamAddress string
	Reused bool
	ClientIP string
	LocationName string
	Err error
}

// Handler is the proxy state machine: it owns the location table, the
// named upstream pools, and the server-wide counters, and drives every
// request through the full phase pipeline below.
type Handler struct {
	ServerName string
	Locations *location.Table
	Upstreams map[string]*backend.Upstream
	Counters *Counters
	StatsPath string
	AdminPrefix string
	AdminGate *BasicAuthGate
	ErrorTemplate string
	Version string
	Log func(LogEntry)

	// Logger, when set, receives warnings for failures that don't map to a
	// client-visible error, such as a cache write that fails after the
	// response has already been served.
	Logger *zap.Logger

	// Metrics, when set, mirrors every arrival/completion and the final
	// response status into the process-wide Prometheus collectors.
	Metrics *metrics.Registry

	// Cache, when set, fronts every GET request with the two-tier response
	// cache: a 200 response is stored on a miss and served directly on a
	// hit, bypassing the upstream entirely.
	Cache *cache.Store

	transportsMu sync.Mutex
	transports map[string]*http.Transport
}

// ServeHTTP drives the full per-request phase pipeline.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIPOf(r)
	state := NewState(clientIP)
	h.Counters.Arrive()
	if h.Metrics != nil {
		h.Metrics.Arrive(h.ServerName)
	}

	defer func() {
		h.Counters.Done()
		state.Close()
		if h.Metrics != nil {
			h.Metrics.Complete(h.ServerName)
			h.Metrics.ResponseStatus.WithLabelValues(h.ServerName, statusClass(state.Status)).Inc()
		}
		if h.Log != nil {
			h.Log(LogEntry{
				Status: state.Status,
				ResponseBodySize: state.ResponseBodySize,
				Duration: state.Duration(),
				UpstreamAddress: state.UpstreamAddress,
				Reused: state.Reused,
				ClientIP: state.ClientIP,
				LocationName: state.LocationName,
			})
		}
	}()

	// request_filter, step 1: stats endpoint.
	if h.StatsPath != "" && r.URL.Path == h.StatsPath {
		state.SetStatus(http.StatusOK)
		if err := WriteStats(w, h.Counters); err != nil {
			h.failRequest(w, state, &ProxyError{Kind: KindDownstreamIO, Message: err.Error()})
		}
		return
	}

	// request_filter, step 2: admin console delegation.
	if h.AdminGate != nil && h.AdminPrefix != "" && strings.HasPrefix(r.URL.Path, h.AdminPrefix) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.AdminGate.ServeHTTP(rec, r)
		state.SetStatus(rec.status)
		return
	}

	// request_filter, step 3: locate.
	loc, ok := h.Locations.Match(r.Host, r.URL.Path)
	if !ok {
		// A missing location maps to 500, not the more conventional 404 — left
		// as-is rather than guessing at intent.
		h.failRequest(w, state, NewPluginFailure(500, "Location not found"))
		return
	}
	state.LocationName = loc.Name

	// request_filter, step 4: rewrite + re-append query.
	newPath := loc.RewritePath(r.URL.Path)
	if newPath != r.URL.Path {
		r.URL.Path = newPath
	}

	// request_filter, step 5: forced accept-encoding level.
	if loc.AcceptEncodingLevel > 0 {
		r.Header.Set("X-Accept-Encoding-Level", fmt.Sprintf("%d", loc.AcceptEncodingLevel))
	}

	// request_filter, step 6: request-phase plugin chain.
	sess := &plugin.Session{Request: r, ClientIP: clientIP, OnDone: state.OnDone}
	if done := h.runChain(loc, plugin.StepRequest, sess, w, state); done {
		return
	}

	// proxy_upstream_filter.
	if done := h.runChain(loc, plugin.StepProxyUpstream, sess, w, state); done {
		return
	}

	h.proxyToUpstream(w, r, loc, sess, state)
}

// runChain executes loc's plugins declared for step; it writes a response
// and returns true when the chain short-circuited the request.
func (h *Handler) runChain(loc *location.Location, step plugin.Step, sess *plugin.Session, w http.ResponseWriter, state *State) bool {
	chain := plugin.NewChain(loc.Plugins)
	res, err := chain.Run(step, sess)
	if err != nil {
		h.failRequest(w, state, &ProxyError{Kind: KindInternal, Message: err.Error()})
		return true
	}
	switch res.Verdict {
	case plugin.Respond:
		h.writeUpstreamResponse(w, res.Response, state)
		return true
	case plugin.Fail:
		h.failRequest(w, state, NewPluginFailure(res.Status, res.Message))
		return true
	default:
		return false
	}
}

// proxyToUpstream implements proxy_upstream_filter's directory/mock
// short-circuit followed by upstream_peer through
// upstream_response_body_filter.
func (h *Handler) proxyToUpstream(w http.ResponseWriter, r *http.Request, loc *location.Location, sess *plugin.Session, state *State) {
	up, ok := h.Upstreams[loc.UpstreamName]
	if !ok {
		h.failRequest(w, state, NewPluginFailure(503, "No available upstream"))
		return
	}

	// proxy_upstream_filter: a directory or mock upstream is served
	// inline and the request is done without ever reaching upstream_peer.
	if up.Directory != "" {
		h.serveDirectory(w, r, up.Directory, state)
		return
	}
	if up.Mock != nil {
		h.serveMock(w, up.Mock, state)
		return
	}

	cacheable := h.Cache != nil && r.Method == http.MethodGet
	var cacheKey string
	if cacheable {
		cacheKey = cacheKeyFor(r)
		if meta, hit, ok := h.Cache.Lookup(cacheKey); ok {
			if h.Metrics != nil {
				h.Metrics.CacheHits.WithLabelValues(h.ServerName).Inc()
			}
			h.writeCacheHit(w, r, meta, hit, state)
			return
		}
		if h.Metrics != nil {
			h.Metrics.CacheMisses.WithLabelValues(h.ServerName).Inc()
		}
	}

	peer, ok := up.NewPeer(r.Context(), sess.ClientIP)
	if !ok {
		h.failRequest(w, state, NewPluginFailure(503, "No available upstream"))
		return
	}
	state.UpstreamAddress = peer.Backend.Addr()

	outReq := h.buildUpstreamRequest(r, peer, loc)
	outReq = outReq.WithContext(httptrace.WithClientTrace(outReq.Context(), &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) { state.Reused = info.Reused },
	}))

	resp, err := h.transportFor(loc.UpstreamName, peer).RoundTrip(outReq)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.UpstreamErrors.WithLabelValues(h.ServerName, loc.UpstreamName).Inc()
		}
		h.failRequest(w, state, classifyUpstreamError(r.Context(), err))
		return
	}
	defer resp.Body.Close()

	state.SetStatus(resp.StatusCode)
	for _, hdr := range loc.ResponseHeadersAdd {
		resp.Header.Set(hdr.Name, hdr.Value)
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		h.writeUpstreamResponseCaching(w, resp, state, cacheKey)
		return
	}
	h.writeUpstreamResponse(w, resp, state)
}

// buildUpstreamRequest implements upstream_request_filter.
func (h *Handler) buildUpstreamRequest(r *http.Request, peer backend.Peer, loc *location.Location) *http.Request {
	outReq := r.Clone(r.Context())
	scheme := "http"
	if peer.TLS {
		scheme = "https"
	}
	outReq.URL = &url.URL{
		Scheme: scheme,
		Host: peer.Backend.Addr(),
		Path: r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	outReq.Host = peer.SNI
	if outReq.Host == "" {
		outReq.Host = peer.Backend.Addr()
	}
	outReq.RequestURI = ""

	clientIP := clientIPOf(r)
	if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
		outReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}
	for _, hdr := range loc.RequestHeadersAdd {
		outReq.Header.Set(hdr.Name, hdr.Value)
	}
	return outReq
}

func (h *Handler) writeUpstreamResponse(w http.ResponseWriter, resp *http.Response, state *State) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	state.AddResponseBytes(uint64(n))
	if err != nil {
		// the status line is already written; nothing more to do beyond
		// logging, which the deferred hook in ServeHTTP always runs.
		_ = err
	}
}

// failRequest implements fail_to_proxy: render the HTML
// error template and disable keep-alive on the generated response.
func (h *Handler) failRequest(w http.ResponseWriter, state *State, perr *ProxyError) {
	status := StatusFor(perr)
	state.SetStatus(status)

	if perr.Kind == KindDownstreamClosed {
		// the client is already gone; writing anything would error.
		return
	}

	template := h.ErrorTemplate
	if template == "" {
		template = DefaultErrorTemplate
	}
	body := RenderErrorBody(template, h.Version, perr.Error())

	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (h *Handler) transportFor(upstreamName string, peer backend.Peer) http.RoundTripper {
	h.transportsMu.Lock()
	defer h.transportsMu.Unlock()
	if h.transports == nil {
		h.transports = make(map[string]*http.Transport)
	}
	t, ok := h.transports[upstreamName]
	if !ok {
		dialer := &net.Dialer{Timeout: peer.ConnectTimeout}
		poolSize := peer.KeepalivePoolSize
		if poolSize <= 0 {
			poolSize = 16
		}
		t = &http.Transport{
			DialContext: dialer.DialContext,
			MaxIdleConnsPerHost: poolSize,
			IdleConnTimeout: peer.IdleTimeout,
		}
		h.transports[upstreamName] = t
	}
	return t
}

// logger returns h.Logger, or a no-op logger when none was configured.
func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

// serveDirectory implements proxy_upstream_filter's directory branch: the
// request is served from a filesystem root in place of a real backend.
func (h *Handler) serveDirectory(w http.ResponseWriter, r *http.Request, dir string, state *State) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	http.FileServer(http.Dir(dir)).ServeHTTP(rec, r)
	state.SetStatus(rec.status)
	state.AddResponseBytes(rec.bytes)
}

// serveMock implements proxy_upstream_filter's mock branch: a canned
// response served without ever selecting a backend.
func (h *Handler) serveMock(w http.ResponseWriter, mock *backend.MockResponse, state *State) {
	for _, hdr := range mock.Headers {
		w.Header().Set(hdr.Name, hdr.Value)
	}
	status := mock.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	n, err := w.Write(mock.Body)
	state.SetStatus(status)
	state.AddResponseBytes(uint64(n))
	if err != nil {
		_ = err
	}
}

// classifyUpstreamError maps a RoundTrip failure to the error taxonomy:
// a cancelled/client-gone context is KindDownstreamClosed; everything
// else reaching an upstream is KindUpstream.
func classifyUpstreamError(ctx context.Context, err error) *ProxyError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &ProxyError{Kind: KindDownstreamClosed, Message: "downstream connection closed"}
	}
	return &ProxyError{Kind: KindUpstream, Message: err.Error()}
}

// statusClass buckets a status code to its hundreds digit ("2xx", "4xx",
// ...) to keep the response_status_total label cardinality bounded.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "xxx"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes uint64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += uint64(n)
	return n, err
}
