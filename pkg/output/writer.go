// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/internal/ui"
	"github.com/kraklabs/lppc/pkg/mapping"
)

// Writer routes formatted permission results to stdout or to one file
// per group in an output directory.
type Writer struct {
	format    Format
	outputDir string // empty means stdout

	// Stdout and Stderr are overridable for tests.
	Stdout io.Writer
	Stderr io.Writer
}

// NewWriter creates a writer. An empty outputDir selects stdout mode.
func NewWriter(format Format, outputDir string) *Writer {
	return &Writer{
		format:    format,
		outputDir: outputDir,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// Write emits every group's policy. Groups are always processed in
// ascending output-name order so runs are byte-for-byte reproducible.
func (w *Writer) Write(result *mapping.Result) error {
	formatter := NewFormatter(w.format)
	if w.outputDir != "" {
		return w.writeToDirectory(result, formatter)
	}
	return w.writeToStdout(result, formatter)
}

func (w *Writer) writeToStdout(result *mapping.Result, formatter Formatter) error {
	names := sortedGroupNames(result)

	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(w.Stdout)
		}

		header := fmt.Sprintf("----------- %s -----------", name)
		fmt.Fprintln(w.Stdout, ui.Header.Sprint(header))

		perms := result.Groups[name]
		fmt.Fprintln(w.Stdout, formatter.Format(&PermissionSets{Allow: perms.Allow, Deny: perms.Deny}))
	}
	return nil
}

func (w *Writer) writeToDirectory(result *mapping.Result, formatter Formatter) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return errors.NewOutputError("Cannot create output directory", w.outputDir, "", err)
	}

	for _, name := range sortedGroupNames(result) {
		perms := result.Groups[name]

		safeName, ok := sanitizeFilename(name)
		if !ok {
			return errors.NewOutputError(
				"Invalid output name",
				fmt.Sprintf("group name %q cannot be used as a filename", name),
				"",
				nil,
			)
		}

		filePath := filepath.Join(w.outputDir, safeName+"."+formatter.Extension())

		// The sanitised name cannot traverse, but the directory itself
		// may have been swapped for a symlink between the mkdir and the
		// write. Re-check the canonical parent before writing.
		canonicalDir, err := filepath.EvalSymlinks(w.outputDir)
		if err != nil {
			canonicalDir = w.outputDir
		}
		canonicalParent, err := filepath.EvalSymlinks(filepath.Dir(filePath))
		if err != nil {
			canonicalParent = filepath.Dir(filePath)
		}
		if canonicalParent != canonicalDir && !strings.HasPrefix(canonicalParent, canonicalDir+string(filepath.Separator)) {
			return errors.NewOutputError(
				"Output path escapes output directory",
				name,
				"",
				nil,
			)
		}

		formatted := formatter.Format(&PermissionSets{Allow: perms.Allow, Deny: perms.Deny})
		if err := os.WriteFile(filePath, []byte(formatted), 0o644); err != nil {
			return errors.NewOutputError("Cannot write output file", filePath, "", err)
		}
		slog.Info("output.written", "path", filePath)
	}
	return nil
}

// WriteMissingMappings reports block types without mapping files on
// stderr, one line per unique (kind, type name).
func (w *Writer) WriteMissingMappings(result *mapping.Result) {
	if len(result.MissingMappings) == 0 {
		return
	}

	fmt.Fprintln(w.Stderr)
	fmt.Fprintln(w.Stderr, ui.Warn.Sprint("Warning: No mapping files found for the following resources:"))
	for _, missing := range result.MissingMappings {
		fmt.Fprintf(w.Stderr, "  - %s.%s (expected: %s)\n", missing.Kind, missing.TypeName, missing.ExpectedPath)
	}
	fmt.Fprintln(w.Stderr, "These resources may require manual permission review.")
	fmt.Fprintln(w.Stderr)
}

func sortedGroupNames(result *mapping.Result) []string {
	names := make([]string, 0, len(result.Groups))
	for name := range result.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sanitizeFilename makes a group name safe to use as a filename.
//
// Path separators and NUL map to underscores; surrounding whitespace and
// dots are trimmed. Names that end up empty, hidden, or still containing
// ".." are rejected.
func sanitizeFilename(name string) (string, bool) {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)

	trimmed := strings.Trim(strings.TrimSpace(sanitized), ".")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" || strings.Contains(trimmed, "..") || strings.HasPrefix(trimmed, ".") {
		return "", false
	}
	return trimmed, true
}
