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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgeproxy/edgeproxy/config"
	"github.com/edgeproxy/edgeproxy/proxyhttp"
)

func newRunCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use: "run",
		Short: "Run edgeproxy in the foreground",
		RunE: func(c *cobra.Command, args []string) error {
			path, err := c.Flags().GetString("config")
			if err != nil {
				return err
			}
			logFile, err := c.Flags().GetString("log-file")
			if err != nil {
				return err
			}
			return runServer(path, metricsAddr, logFile)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled when empty)")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use: "validate",
		Short: "Load and build the configuration document without serving traffic",
		RunE: func(c *cobra.Command, args []string) error {
			path, err := c.Flags().GetString("config")
			if err != nil {
				return err
			}
			return validateConfig(path)
		},
	}
}

func loadDocument(path string) (*config.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: reading %s: %w", path, err)
	}
	doc, err := config.Load(data)
	if err != nil {
		return nil, fmt.Errorf("cmd: loading %s: %w", path, err)
	}
	return doc, nil
}

func validateConfig(path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if _, err := proxyhttp.Build(context.Background(), doc, zap.NewNop(), nil, reg, version); err != nil {
		return fmt.Errorf("cmd: configuration %s is invalid: %w", path, err)
	}
	fmt.Printf("%s: configuration is valid (%d server(s), %d upstream(s))\n", path, len(doc.Servers), len(doc.Upstreams))
	return nil
}

func runServer(path, metricsAddr, logFile string) error {
	logger, err := newLogger(logFile)
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rt, err := proxyhttp.Build(context.Background(), doc, logger, nil, reg, version)
	if err != nil {
		return fmt.Errorf("cmd: building runtime from %s: %w", path, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsServer.Close()
		}()
	}

	logger.Info("starting edgeproxy",
		zap.String("config", path),
		zap.Int("servers", len(rt.Handlers)),
		zap.Int("upstreams", len(rt.Upstreams)),
	)
	return rt.Assembly.Run(ctx)
}
