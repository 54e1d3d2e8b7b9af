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

import "strings"

// Kind is the error taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindIO
	KindExceed
	KindResolve
	KindUpstream
	KindDownstreamIO
	KindDownstreamClosed
	KindDownstreamOther
)

// ProxyError carries a Kind plus an optional explicit HTTP status (set
// when a plugin already chose one via Fail(status, message)).
type ProxyError struct {
	Kind Kind
	ExplicitStatus int
	Message string
}

func (e *ProxyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "proxy error"
}

// NewPluginFailure wraps a plugin's Fail(status, message) verdict.
func NewPluginFailure(status int, message string) *ProxyError {
	return &ProxyError{ExplicitStatus: status, Message: message}
}

// StatusFor implements the fail_to_proxy error-mapping table:
//
//	explicit plugin status -> that status
//	upstream error -> 502
//	downstream write/read error -> 500
//	downstream connection closed -> 499
//	other downstream (malformed, etc.) -> 400
//	internal / unclassified -> 500
func StatusFor(err *ProxyError) int {
	if err.ExplicitStatus != 0 {
		return err.ExplicitStatus
	}
	switch err.Kind {
	case KindUpstream:
		return 502
	case KindDownstreamIO:
		return 500
	case KindDownstreamClosed:
		return 499
	case KindDownstreamOther:
		return 400
	default:
		return 500
	}
}

// DefaultErrorTemplate is the HTML error body with {{version}} and
// {{content}} placeholders.
const DefaultErrorTemplate = `<!DOCTYPE html>
<html>
<head><title>Error</title></head>
<body>
<h1>An error occurred</h1>
<p>{{content}}</p>
<hr><p>edgeproxy {{version}}</p>
</body>
</html>`

// RenderErrorBody substitutes {{version}} and {{content}} in template
// with version and content.
func RenderErrorBody(template, version, content string) string {
	body := strings.ReplaceAll(template, "{{version}}", version)
	body = strings.ReplaceAll(body, "{{content}}", content)
	return body
}
