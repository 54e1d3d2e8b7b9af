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

// Package cmd implements the edgeproxy command-line interface: a cobra
// root command plus the run and validate subcommands, and the
// container-aware GOMAXPROCS/GOMEMLIMIT tuning applied before either runs.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// version is overwritten at release build time via -ldflags; "dev" covers
// a local build.
var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use: "edgeproxy",
		Short: "A programmable reverse HTTP proxy",
		Long: `edgeproxy terminates client HTTP/1.1 and HTTP/2 connections, routes each
request to a configured location, runs it through a request-scoped plugin
chain, selects a healthy backend from a named upstream pool, and streams
the response back, optionally caching it.`,
		SilenceUsage: true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "edgeproxy.yaml", "path to the configuration document")
	root.PersistentFlags().String("log-file", "", "path to a rotated log file (stderr JSON when empty)")
	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	return root
}

// Main is the entry point cmd/edgeproxy's main() calls.
func Main() {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, _ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(
			slog.New(zapslog.NewHandler(logger.Core())),
		),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
