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
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
)

// StatsBody is the stats endpoint response shape.
type StatsBody struct {
	Accepted uint64 `json:"accepted"`
	Processing int32 `json:"processing"`
	Hostname string `json:"hostname"`
	PhysicalMem string `json:"physical_mem"`
	PhysicalMemMB uint64 `json:"physical_mem_mb"`
}

// StatsProvider supplies the counters a stats response reports; the
// proxy state machine's per-server atomics implement it.
type StatsProvider interface {
	Accepted() uint64
	Processing() int32
}

// WriteStats synthesizes the stats JSON body and writes it to w with
// Content-Type: application/json.
func WriteStats(w http.ResponseWriter, stats StatsProvider) error {
	hostname, _ := os.Hostname()
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	body := StatsBody{
		Accepted: stats.Accepted(),
		Processing: stats.Processing(),
		Hostname: hostname,
		PhysicalMem: humanize.Bytes(memStats.Sys),
		PhysicalMemMB: memStats.Sys / (1024 * 1024),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(body)
}
