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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ChiAdminRouter is the admin-prefix delegation point BasicAuthGate hands
// off to once a request clears authentication: a tiny chi.Router exposing
// process introspection. Richer admin business routes (config dump, cache
// purge, plugin state) are an external collaborator a real deployment
// mounts onto the same router.
type ChiAdminRouter struct {
	router chi.Router
	Version string
}

// NewChiAdminRouter builds the router and registers its fixed route set.
func NewChiAdminRouter(version string) *ChiAdminRouter {
	a := &ChiAdminRouter{Version: version}
	r := chi.NewRouter()
	r.Get("/health", a.handleHealth)
	r.Get("/version", a.handleVersion)
	a.router = r
	return a
}

// ServeAdmin implements AdminHandler.
func (a *ChiAdminRouter) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *ChiAdminRouter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *ChiAdminRouter) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": a.Version})
}
