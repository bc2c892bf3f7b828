// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/pkg/output"
)

// defaultMappingsURL is the canonical mapping repository.
const defaultMappingsURL = "https://github.com/bebold-jhr/lppc-aws-mappings"

// Config is the effective configuration for a run, assembled from flags
// and environment.
type Config struct {
	NoColor         bool
	Verbose         bool
	WorkingDir      string
	OutputDir       string // empty means stdout
	OutputFormat    output.Format
	MappingsURL     string
	RefreshMappings bool
	MetricsAddr     string // empty means disabled
}

// cliFlags holds raw flag values before validation.
type cliFlags struct {
	noColor         bool
	verbose         bool
	workingDir      string
	outputDir       string
	outputFormat    string
	mappingsURL     string
	refreshMappings bool
	metricsAddr     string
}

// buildConfig validates the flags into an effective Config.
//
// The working directory defaults to the current directory, must exist and
// be a directory, and is canonicalised so the sandbox planner sees a
// stable absolute path. LPPC_MAPPINGS_URL overrides the default mappings
// repository when no explicit --mappings-url was given.
func buildConfig(flags cliFlags, mappingsURLSet bool) (*Config, error) {
	workingDir := flags.workingDir
	if workingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewConfigError("Cannot determine current directory", "", "", err)
		}
		workingDir = cwd
	} else if !filepath.IsAbs(workingDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewConfigError("Cannot determine current directory", "", "", err)
		}
		workingDir = filepath.Join(cwd, workingDir)
	}

	info, err := os.Stat(workingDir)
	if err != nil {
		return nil, errors.NewConfigError(
			"Working directory does not exist",
			workingDir,
			"Pass an existing directory with --working-dir",
			err,
		)
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError(
			"Working directory is not a directory",
			workingDir,
			"",
			nil,
		)
	}

	workingDir, err = filepath.EvalSymlinks(workingDir)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot canonicalize working directory",
			fmt.Sprintf("%s: %v", flags.workingDir, err),
			"",
			err,
		)
	}

	format, err := output.ParseFormat(flags.outputFormat)
	if err != nil {
		return nil, errors.NewConfigError("Invalid output format", err.Error(), "", nil)
	}

	mappingsURL := flags.mappingsURL
	if !mappingsURLSet {
		if env := os.Getenv("LPPC_MAPPINGS_URL"); env != "" {
			mappingsURL = env
		}
	}

	return &Config{
		NoColor:         flags.noColor,
		Verbose:         flags.verbose,
		WorkingDir:      workingDir,
		OutputDir:       flags.outputDir,
		OutputFormat:    format,
		MappingsURL:     mappingsURL,
		RefreshMappings: flags.refreshMappings,
		MetricsAddr:     flags.metricsAddr,
	}, nil
}
