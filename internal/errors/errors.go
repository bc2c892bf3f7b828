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

// Package errors provides categorised, user-facing errors for the lppc CLI.
//
// Every error carries a short title, a detail line, and an optional
// suggestion telling the user what to do next. FatalError renders the
// error to stderr and exits nonzero.
package errors

import (
	"errors"
	"fmt"
	"os"
)

// Category classifies an error by the subsystem that produced it.
type Category int

const (
	CategoryInternal Category = iota
	CategoryConfig
	CategoryCache
	CategoryGit
	CategoryParse
	CategoryLoad
	CategoryTerraform
	CategoryOutput
)

// String returns the category label used in log output.
func (c Category) String() string {
	switch c {
	case CategoryConfig:
		return "config"
	case CategoryCache:
		return "cache"
	case CategoryGit:
		return "git"
	case CategoryParse:
		return "parse"
	case CategoryLoad:
		return "load"
	case CategoryTerraform:
		return "terraform"
	case CategoryOutput:
		return "output"
	default:
		return "internal"
	}
}

// UserError is an error intended to be shown to the user.
type UserError struct {
	Category   Category
	Title      string // Short summary (e.g., "Cannot read configuration file")
	Detail     string // What went wrong
	Suggestion string // What the user can do about it
	Err        error  // Wrapped cause, may be nil
}

// Error renders the error as a single line suitable for stderr.
func (e *UserError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *UserError) Unwrap() error {
	return e.Err
}

func newError(cat Category, title, detail, suggestion string, err error) *UserError {
	return &UserError{
		Category:   cat,
		Title:      title,
		Detail:     detail,
		Suggestion: suggestion,
		Err:        err,
	}
}

// NewConfigError reports a bad or missing configuration value.
func NewConfigError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryConfig, title, detail, suggestion, err)
}

// NewCacheError reports a problem with the local mapping cache layout.
func NewCacheError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryCache, title, detail, suggestion, err)
}

// NewGitError reports a failed git operation.
func NewGitError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryGit, title, detail, suggestion, err)
}

// NewParseError reports invalid HCL or YAML input.
func NewParseError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryParse, title, detail, suggestion, err)
}

// NewLoadError reports a mapping file that could not be read.
func NewLoadError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryLoad, title, detail, suggestion, err)
}

// NewTerraformError reports a failed terraform subprocess.
func NewTerraformError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryTerraform, title, detail, suggestion, err)
}

// NewOutputError reports a failure while writing results.
func NewOutputError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryOutput, title, detail, suggestion, err)
}

// NewInternalError reports an unexpected condition that is likely a bug.
func NewInternalError(title, detail, suggestion string, err error) *UserError {
	return newError(CategoryInternal, title, detail, suggestion, err)
}

// FatalError prints the error to stderr and exits with status 1.
//
// UserErrors render their suggestion on a second line; plain errors are
// printed as-is behind the Error: prefix.
func FatalError(err error) {
	var ue *UserError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Error())
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Suggestion)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
