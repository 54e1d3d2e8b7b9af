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
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// AdminHandler is the external collaborator the admin console delegates
// to once a request clears Basic-Auth.
type AdminHandler interface {
	ServeAdmin(w http.ResponseWriter, r *http.Request)
}

// BasicAuthGate validates Authorization: Basic against a single
// configured username/password and, on success, strips Prefix from the
// request URI before delegating to Handler.
// Comparison is constant-time via crypto/subtle, grounded on
// caddyauth.HTTPBasicAuth.Authenticate.
type BasicAuthGate struct {
	Username string
	Password string
	Realm string
	Prefix string
	Handler AdminHandler
}

// ServeHTTP implements http.Handler.
func (g *BasicAuthGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok || !g.authenticated(username, password) {
		realm := g.Realm
		if realm == "" {
			realm = "restricted"
		}
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, realm))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	r.URL.Path = strings.TrimPrefix(r.URL.Path, g.Prefix)
	if !strings.HasPrefix(r.URL.Path, "/") {
		r.URL.Path = "/" + r.URL.Path
	}
	g.Handler.ServeAdmin(w, r)
}

func (g *BasicAuthGate) authenticated(username, password string) bool {
	userOK := subtle.ConstantTimeCompare(quickHash(username), quickHash(g.Username)) == 1
	passOK := subtle.ConstantTimeCompare(quickHash(password), quickHash(g.Password)) == 1
	return userOK && passOK
}

// quickHash normalizes input length ahead of a constant-time comparison,
// grounded on caddyauth.quickHash.
func quickHash(v string) []byte {
	h := sha256.Sum256([]byte(v))
	return h[:]
}
