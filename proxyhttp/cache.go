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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/edgeproxy/edgeproxy/cache"
)

// cacheKeyFor builds the cache key from the method, host, and full request
// URI; only GET requests ever reach this, so the method prefix is constant
// in practice but kept for clarity at call sites. The raw string is never
// used as a filename directly — it is passed through cache.Fingerprint so
// a request path containing "/" can't turn into nested path components.
func cacheKeyFor(r *http.Request) string {
	primary := r.Method + " " + r.Host + r.URL.RequestURI()
	return cache.Fingerprint(primary, "")
}

// encodeCacheMeta packs a response's status and header for storage: Meta0
// is the decimal status code, Meta1 the JSON-encoded header map.
func encodeCacheMeta(status int, header http.Header) cache.Meta {
	h, _ := json.Marshal(header)
	return cache.Meta{Meta0: []byte(strconv.Itoa(status)), Meta1: h}
}

func decodeCacheMeta(meta cache.Meta) (int, http.Header) {
	status, err := strconv.Atoi(string(meta.Meta0))
	if err != nil {
		status = http.StatusOK
	}
	header := http.Header{}
	_ = json.Unmarshal(meta.Meta1, &header)
	return status, header
}

// writeCacheHit serves a cached object directly, honoring a Range request
// against the cached body via HitHandle.Seek.
func (h *Handler) writeCacheHit(w http.ResponseWriter, r *http.Request, meta cache.Meta, hit *cache.HitHandle, state *State) {
	status, header := decodeCacheMeta(meta)
	for k, vv := range header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}

	total := len(hit.Bytes())
	if start, end, ok := parseRange(r.Header.Get("Range"), total); ok {
		if err := hit.Seek(start, end); err != nil {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		status = http.StatusPartialContent
	}

	state.SetStatus(status)
	w.WriteHeader(status)
	n, _ := w.Write(hit.Bytes())
	state.AddResponseBytes(uint64(n))
}

// writeUpstreamResponseCaching streams resp to w while simultaneously
// accumulating it into a MissHandler; a full, uninterrupted copy persists
// the response, a short copy (client disconnect, upstream cut short)
// discards the partial accumulation instead of poisoning the cache.
func (h *Handler) writeUpstreamResponseCaching(w http.ResponseWriter, resp *http.Response, state *State, cacheKey string) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	miss := h.Cache.GetMissHandler(cacheKey, encodeCacheMeta(resp.StatusCode, resp.Header))
	n, err := io.Copy(io.MultiWriter(w, miss), resp.Body)
	state.AddResponseBytes(uint64(n))
	if err != nil {
		miss.Discard()
		return
	}
	if err := miss.Finish(); err != nil {
		h.logger().Warn("cache persist failed",
			zap.String("key", cacheKey),
			zap.Error(err),
		)
	}
}

// parseRange parses a single-range "bytes=start-end" header value against
// a body of length total. Multi-range requests and malformed values report
// ok=false, falling back to the full body.
func parseRange(header string, total int) (start int, end *int, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, nil, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, nil, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, nil, false
	}
	if parts[0] == "" {
		// suffix range "-N": last N bytes.
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return 0, nil, false
		}
		s := total - n
		if s < 0 {
			s = 0
		}
		return s, nil, true
	}
	s, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, false
	}
	if parts[1] == "" {
		return s, nil, true
	}
	e, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, false
	}
	e++ // header end is inclusive; HitHandle.Seek's end is exclusive.
	return s, &e, true
}
