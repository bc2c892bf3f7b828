// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserErrorMessage(t *testing.T) {
	err := NewConfigError("Working directory does not exist", "/no/such/dir", "Pass an existing directory", nil)
	assert.Equal(t, "Working directory does not exist: /no/such/dir", err.Error())
}

func TestUserErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewLoadError("Cannot read mapping file", "x.yaml", "", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestUserErrorAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewGitError("Git operation failed", "boom", "", nil))

	var ue *UserError
	assert.True(t, stderrors.As(wrapped, &ue))
	assert.Equal(t, CategoryGit, ue.Category)
}

func TestCategoryStrings(t *testing.T) {
	cases := map[Category]string{
		CategoryConfig:    "config",
		CategoryCache:     "cache",
		CategoryGit:       "git",
		CategoryParse:     "parse",
		CategoryLoad:      "load",
		CategoryTerraform: "terraform",
		CategoryOutput:    "output",
		CategoryInternal:  "internal",
	}
	for cat, want := range cases {
		assert.Equal(t, want, cat.String())
	}
}
