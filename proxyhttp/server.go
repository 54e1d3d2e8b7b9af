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
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

// CertificateSource is one server's PEM cert + key, base64-encoded the
// way the configuration document carries them.
type CertificateSource struct {
	CertBase64 string
	KeyBase64 string
}

// LoadTLSCertificate decodes and parses a base64-wrapped PEM cert/key
// pair.
func LoadTLSCertificate(src CertificateSource) (tls.Certificate, error) {
	certPEM, err := base64.StdEncoding.DecodeString(src.CertBase64)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("proxyhttp: decoding certificate: %w", err)
	}
	keyPEM, err := base64.StdEncoding.DecodeString(src.KeyBase64)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("proxyhttp: decoding key: %w", err)
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// ServerConfig describes one listener's bind address, optional TLS, and
// worker-thread count.
type ServerConfig struct {
	Name string
	Addr string
	TLS bool
	Certs []CertificateSource
	ThreadSize int
	Handler http.Handler
}

// Listen builds the net.Listener for cfg: plain TCP, or TLS with HTTP/2
// negotiation enabled via ALPN.
func Listen(cfg ServerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("proxyhttp: listen %s: %w", cfg.Addr, err)
	}
	if !cfg.TLS {
		return ln, nil
	}

	certs := make([]tls.Certificate, 0, len(cfg.Certs))
	for _, src := range cfg.Certs {
		cert, err := LoadTLSCertificate(src)
		if err != nil {
			ln.Close()
			return nil, err
		}
		certs = append(certs, cert)
	}
	tlsConfig := &tls.Config{
		Certificates: certs,
		NextProtos: []string{http2.NextProtoTLS, "http/1.1"},
	}
	return tls.NewListener(ln, tlsConfig), nil
}

// BackgroundService is a named long-running task launched alongside the
// server's listeners (the validity monitor, a DNS-discovery refresh
// loop,...).
type BackgroundService struct {
	Name string
	Run func(ctx context.Context) error
}

// Assembly owns every configured server's listener plus the background
// services that keep upstream discovery and certificate validity current.
type Assembly struct {
	Servers []ServerConfig
	Background []BackgroundService
}

// Run binds every listener and launches every background service,
// returning when ctx is cancelled or any of them fails.
func (a *Assembly) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, cfg := range a.Servers {
		cfg := cfg
		ln, err := Listen(cfg)
		if err != nil {
			return err
		}
		httpServer := &http.Server{Handler: cfg.Handler}
		if !cfg.TLS {
			// h2c would be wired here for cleartext HTTP/2; plaintext
			// deployments are expected to sit behind a TLS-terminating
			// edge in front of this listener.
			_ = http2.ConfigureServer(httpServer, &http2.Server{})
		}
		g.Go(func() error {
			return httpServer.Serve(ln)
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpServer.Close()
		})
	}

	for _, svc := range a.Background {
		svc := svc
		g.Go(func() error {
			return svc.Run(ctx)
		})
	}

	return g.Wait()
}
