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

// Package metrics exposes the proxy's per-server counters as Prometheus
// collectors for local scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the proxy-wide collectors registered against one
// prometheus.Registerer.
type Registry struct {
	Accepted *prometheus.CounterVec
	Processing *prometheus.GaugeVec
	CacheHits *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	ResponseStatus *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name: "accepted_total",
			Help: "Total requests accepted, per server.",
		}, []string{"server"}),
		Processing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgeproxy",
			Name: "processing",
			Help: "Requests currently in flight, per server.",
		}, []string{"server"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name: "cache_hits_total",
			Help: "Cache lookups that found an object.",
		}, []string{"server"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name: "cache_misses_total",
			Help: "Cache lookups that found nothing.",
		}, []string{"server"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name: "upstream_errors_total",
			Help: "Requests that failed to reach or complete with an upstream.",
		}, []string{"server", "upstream"}),
		ResponseStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name: "response_status_total",
			Help: "Responses sent, labeled by status code class.",
		}, []string{"server", "status"}),
	}
	reg.MustRegister(r.Accepted, r.Processing, r.CacheHits, r.CacheMisses, r.UpstreamErrors, r.ResponseStatus)
	return r
}

// Arrive records one accepted, in-flight request for server.
func (r *Registry) Arrive(server string) {
	r.Accepted.WithLabelValues(server).Inc()
	r.Processing.WithLabelValues(server).Inc()
}

// Complete records one request leaving the in-flight set.
func (r *Registry) Complete(server string) {
	r.Processing.WithLabelValues(server).Dec()
}
