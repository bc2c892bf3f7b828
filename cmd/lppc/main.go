// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements lppc, the Least Privilege Policy Creator.
//
// lppc statically analyses a Terraform codebase and derives a minimal
// AWS IAM policy per deployment role configured in the code. The
// generated policies are a starting point: actions are correct but
// resources stay wildcarded, so manual review is encouraged.
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/internal/metrics"
	"github.com/kraklabs/lppc/internal/ui"
	"github.com/kraklabs/lppc/pkg/mapping"
	"github.com/kraklabs/lppc/pkg/output"
	"github.com/kraklabs/lppc/pkg/terraform"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var flags cliFlags
	var showVersion bool

	flag.BoolVarP(&flags.noColor, "no-color", "n", false, "Suppress colored output (useful for CI/CD pipelines)")
	flag.BoolVar(&flags.verbose, "verbose", false, "Enable verbose output for debugging")
	flag.StringVarP(&flags.workingDir, "working-dir", "d", "", "Working directory containing Terraform files (default: current directory)")
	flag.StringVarP(&flags.outputDir, "output-dir", "o", "", "Output directory for generated policy files (default: stdout)")
	flag.StringVarP(&flags.outputFormat, "output-format", "f", "plain", "Output format: plain, json, json-grouped, hcl, hcl-grouped")
	flag.StringVarP(&flags.mappingsURL, "mappings-url", "m", defaultMappingsURL, "URL of the git repository containing mapping files")
	flag.BoolVarP(&flags.refreshMappings, "refresh-mappings", "r", false, "Force refresh of the mapping repository")
	flag.StringVar(&flags.metricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	flag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `lppc - Least Privilege Policy Creator

Generates minimal AWS IAM policies based on static analysis of Terraform
code. For each deployment role configured via a provider's
assume_role.role_arn, lppc emits the set of IAM actions required to
manage the resources that role owns.

DISCLAIMER: The generated policies provide a starting point. Manual
review is encouraged to add resource constraints, conditions, and
account-specific refinements.

Usage:
  lppc [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Analyse the current directory, print plain action lists
  lppc

  # One IAM policy JSON file per deployer role
  lppc -d ./infra -o ./policies -f json-grouped

  # Terraform-ready jsonencode() output
  lppc -f hcl

  # Force a mapping repository refresh
  lppc --refresh-mappings

Data Storage:
  Mapping repositories are cached in ~/.lppc/<user>/<repo> and
  refreshed at most once every 24 hours.

Requirements:
  git and terraform must be available on PATH.

`)
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("lppc version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	config, err := buildConfig(flags, flag.CommandLine.Changed("mappings-url"))
	if err != nil {
		errors.FatalError(err)
	}

	initLogging(config.Verbose)
	ui.InitColors(config.NoColor)

	if config.MetricsAddr != "" {
		metrics.Serve(config.MetricsAddr, slog.Default())
	}

	if err := run(config); err != nil {
		errors.FatalError(err)
	}
}

// initLogging routes slog to stderr, debug-level under --verbose.
func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// run drives the pipeline: ensure the mapping cache, sandbox and parse
// the Terraform code, resolve permissions, and write the output.
func run(config *Config) error {
	slog.Debug("config",
		"working_dir", config.WorkingDir,
		"output_dir", config.OutputDir,
		"format", config.OutputFormat,
		"mappings_url", config.MappingsURL,
		"refresh", config.RefreshMappings,
	)

	repo, err := mapping.EnsureAvailable(config.MappingsURL, config.RefreshMappings)
	if err != nil {
		if config.Verbose {
			slog.Debug("mapping.remote_reachable", "ok", mapping.IsRemoteReachable(config.MappingsURL))
		}
		return err
	}
	slog.Debug("mapping.repo.ready", "path", repo.LocalPath, "refreshed", repo.WasRefreshed)

	executor, err := terraform.NewExecutor()
	if err != nil {
		return err
	}
	executor.ShowProgress = !config.Verbose && ui.IsTerminal(os.Stderr)

	terraformConfig, err := executor.Execute(config.WorkingDir)
	if err != nil {
		return err
	}
	if terraformConfig == nil {
		slog.Info("no Terraform files found, nothing to analyze")
		return nil
	}

	slog.Debug("parsed provider groups", "count", len(terraformConfig.ProviderGroups))
	for name, group := range terraformConfig.ProviderGroups {
		slog.Debug("group", "name", name, "blocks", len(group.Blocks))
	}

	if len(terraformConfig.UnmappedBlocks) > 0 {
		slog.Warn("blocks could not be mapped to a provider", "count", len(terraformConfig.UnmappedBlocks))
		for _, block := range terraformConfig.UnmappedBlocks {
			slog.Warn("unmapped block", "address", block.Address)
		}
	}

	if len(terraformConfig.ProviderGroups) == 0 {
		slog.Info("no AWS resources found to analyze")
		return nil
	}

	loader := mapping.NewLoader(repo)
	matcher := mapping.NewMatcher(loader)
	result, err := matcher.Resolve(terraformConfig)
	if err != nil {
		return err
	}

	writer := output.NewWriter(config.OutputFormat, config.OutputDir)
	writer.WriteMissingMappings(result)
	return writer.Write(result)
}
