// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui handles terminal colour and shared CLI presentation.
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	// Header styles the group separator written between stdout sections.
	Header = color.New(color.FgCyan, color.Bold)

	// Warn styles warning blocks written to stderr.
	Warn = color.New(color.FgYellow)
)

// InitColors configures global colour output.
//
// Colour is disabled when noColor is set, when the NO_COLOR environment
// variable is present, or when stdout is not a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// IsTerminal reports whether the given file is attached to a terminal.
// Used to decide whether progress bars make sense.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
