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

// Package config defines the shape of the proxy's configuration document
// and a minimal single-document loader. Discovering and
// fetching that document from a file tree or a network source remains an
// external collaborator — out of scope here.
package config

// UpstreamConf describes one named backend pool.
type UpstreamConf struct {
	Addrs []string `yaml:"addrs"`
	Policy string `yaml:"policy"` // round_robin | consistent_hash | random
	HashKey string `yaml:"hash_key,omitempty"`
	KeepalivePoolSize int `yaml:"keepalive_pool_size,omitempty"`
	TLS bool `yaml:"tls,omitempty"`
	SNI string `yaml:"sni,omitempty"`
	IPv4Only bool `yaml:"ipv4_only,omitempty"`
	DNSDiscovery bool `yaml:"dns_discovery,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
	ReadTimeout Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
	IdleTimeout Duration `yaml:"idle_timeout,omitempty"`

	// Directory, when set, serves this upstream's traffic from a local
	// filesystem root instead of selecting a real backend. Mutually
	// exclusive with Mock and with Addrs-based selection.
	Directory string `yaml:"directory,omitempty"`

	// Mock, when set, serves this upstream's traffic with a canned
	// response instead of selecting a real backend.
	Mock *MockConf `yaml:"mock,omitempty"`
}

// MockConf describes a canned response for a mock upstream.
type MockConf struct {
	Status int `yaml:"status,omitempty"`
	Data string `yaml:"data,omitempty"`
	Headers []string `yaml:"headers,omitempty"`
}

// PluginConf is one entry in proxy_plugins{}.
type PluginConf struct {
	Category string `yaml:"category"`
	Step string `yaml:"step"` // request | proxy_upstream
	Value string `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
	Extra map[string]any `yaml:"extra,omitempty"`
}

// LocationConf describes one routing rule.
type LocationConf struct {
	Host string `yaml:"host,omitempty"`
	Path string `yaml:"path,omitempty"`
	Rewrite string `yaml:"rewrite,omitempty"`
	Upstream string `yaml:"upstream"`
	RequestHeadersAdd []string `yaml:"request_headers_add,omitempty"`
	ResponseHeadersAdd []string `yaml:"response_headers_add,omitempty"`
	PluginChain []string `yaml:"plugins,omitempty"`
	Weight int `yaml:"weight,omitempty"`
	AcceptEncoding string `yaml:"accept_encoding,omitempty"`
}

// ServerConf describes one listener.
type ServerConf struct {
	Addr string `yaml:"addr"`
	Locations []string `yaml:"locations,omitempty"`
	TLSCertBase64 string `yaml:"tls_cert,omitempty"`
	TLSKeyBase64 string `yaml:"tls_key,omitempty"`
	Admin bool `yaml:"admin,omitempty"`
	AdminPrefix string `yaml:"admin_prefix,omitempty"`
	Authorization string `yaml:"authorization,omitempty"`
	StatsPath string `yaml:"stats_path,omitempty"`
	Threads int `yaml:"threads,omitempty"`
}

// Document is the top-level configuration document.
type Document struct {
	Name string `yaml:"name"`
	Servers map[string]ServerConf `yaml:"servers"`
	Upstreams map[string]UpstreamConf `yaml:"upstreams"`
	Locations map[string]LocationConf `yaml:"locations"`
	ProxyPlugins map[string]PluginConf `yaml:"proxy_plugins"`
	ErrorTemplate string `yaml:"error_template,omitempty"`
	PidFile string `yaml:"pid_file,omitempty"`
	UpgradeSock string `yaml:"upgrade_sock,omitempty"`
	User string `yaml:"user,omitempty"`
	Group string `yaml:"group,omitempty"`
	Threads int `yaml:"threads,omitempty"`
	WorkStealing bool `yaml:"work_stealing,omitempty"`
	GracePeriod Duration `yaml:"grace_period,omitempty"`
	GracefulShutdownTimeout Duration `yaml:"graceful_shutdown_timeout,omitempty"`
	UpstreamKeepalivePoolSize int `yaml:"upstream_keepalive_pool_size,omitempty"`
	Webhook string `yaml:"webhook,omitempty"`
	WebhookType string `yaml:"webhook_type,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
	Sentry string `yaml:"sentry,omitempty"`
	Pyroscope string `yaml:"pyroscope,omitempty"`
}
