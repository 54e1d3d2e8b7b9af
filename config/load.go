// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"

	"github.com/aryann/difflib"
	"gopkg.in/yaml.v3"
)

// Load decodes a single configuration document. Fetching that document
// from a file tree or a remote source is an external collaborator.
func Load(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: decode document: %w", err)
	}
	return &doc, nil
}

// Diff renders a unified-style line diff between two raw documents, used to
// log what changed across a hot reload. An empty string means no change.
func Diff(previous, next []byte) string {
	if string(previous) == string(next) {
		return ""
	}
	recs := difflib.Diff(strings.Split(string(previous), "\n"), strings.Split(string(next), "\n"))
	var b strings.Builder
	for _, r := range recs {
		if r.Delta == difflib.Common {
			continue
		}
		fmt.Fprintf(&b, "%s\n", r.String())
	}
	return b.String()
}
