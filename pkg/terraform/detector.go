// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kraklabs/lppc/internal/errors"
)

// maxTfFileSize caps .tf files at 10 MiB. Oversized files are skipped.
const maxTfFileSize = 10 * 1024 * 1024

// moduleSourceRe matches source attributes inside module blocks, across
// lines. Used only as a fallback when modules.json is unavailable.
var moduleSourceRe = regexp.MustCompile(`(?s)module\s+"[^"]+"\s*\{[^}]*?source\s*=\s*"([^"]+)"`)

// ModuleSource is one detected module source string with its classification.
type ModuleSource struct {
	Source string
	Type   ModuleSourceType
}

// NewModuleSource classifies a raw source string.
func NewModuleSource(source string) ModuleSource {
	return ModuleSource{Source: source, Type: ParseModuleSource(source)}
}

// IsLocal reports whether the source is a filesystem path.
func (s ModuleSource) IsLocal() bool {
	_, ok := s.Type.(LocalSource)
	return ok
}

// IsExternalTo reports whether a local module resolves outside the
// working directory. Resolution failures count as external; copying too
// much is safe, missing a module is not.
func (s ModuleSource) IsExternalTo(workingDir string) bool {
	local, ok := s.Type.(LocalSource)
	if !ok {
		return false
	}

	resolved, err := canonicalPath(filepath.Join(workingDir, local.Path))
	if err != nil {
		return true
	}
	workingAbs, err := canonicalPath(workingDir)
	if err != nil {
		return true
	}
	return !isDescendantOf(resolved, workingAbs)
}

// ResolvePath returns the canonical absolute path of a local module, or
// false for remote sources and unresolvable paths.
func (s ModuleSource) ResolvePath(workingDir string) (string, bool) {
	local, ok := s.Type.(LocalSource)
	if !ok {
		return "", false
	}
	resolved, err := canonicalPath(filepath.Join(workingDir, local.Path))
	if err != nil {
		return "", false
	}
	return resolved, true
}

// canonicalPath makes a path absolute and resolves symlinks.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isDescendantOf reports whether path equals base or lies beneath it.
func isDescendantOf(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

// DetectModuleSources collects every module source string in the working
// directory: from .terraform/modules/modules.json when present, otherwise
// from the .tf files via a tolerant regex scan.
func DetectModuleSources(workingDir string) ([]ModuleSource, error) {
	if sources, ok := detectFromModulesJSON(workingDir); ok {
		slog.Debug("detector.modules_json", "count", len(sources))
		return sources, nil
	}

	slog.Debug("detector.regex_fallback")
	return detectFromTfFiles(workingDir)
}

func detectFromModulesJSON(workingDir string) ([]ModuleSource, bool) {
	path := filepath.Join(workingDir, ".terraform", "modules", "modules.json")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var parsed modulesJSON
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, false
	}

	var sources []ModuleSource
	for _, m := range parsed.Modules {
		if m.Source == "" {
			continue
		}
		sources = append(sources, NewModuleSource(m.Source))
	}
	return sources, true
}

func detectFromTfFiles(workingDir string) ([]ModuleSource, error) {
	var sources []ModuleSource
	seen := make(map[string]struct{})

	err := filepath.WalkDir(workingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("detector.walk_error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".terraform" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".tf" {
			return nil
		}

		if info, err := d.Info(); err == nil && info.Size() > maxTfFileSize {
			slog.Debug("detector.skip_oversized", "path", path, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return errors.NewParseError("Cannot read Terraform file", path, "", err)
		}

		for _, match := range moduleSourceRe.FindAllSubmatch(content, -1) {
			source := string(match[1])
			if _, dup := seen[source]; dup {
				continue
			}
			seen[source] = struct{}{}
			sources = append(sources, NewModuleSource(source))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("detector.tf_files", "count", len(sources))
	return sources, nil
}

// ResolveExternalModules returns the canonical paths of local modules
// that live outside the working directory, deduplicated.
func ResolveExternalModules(workingDir string, sources []ModuleSource) ([]string, error) {
	workingAbs, err := canonicalPath(workingDir)
	if err != nil {
		return nil, errors.NewConfigError("Cannot resolve working directory", workingDir, "", err)
	}

	var external []string
	seen := make(map[string]struct{})

	for _, source := range sources {
		if !source.IsLocal() || !source.IsExternalTo(workingAbs) {
			continue
		}
		resolved, ok := source.ResolvePath(workingAbs)
		if !ok {
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		slog.Debug("detector.external_module", "path", resolved)
		external = append(external, resolved)
	}
	return external, nil
}

// FindCommonAncestor returns the deepest directory containing every path.
func FindCommonAncestor(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	ancestor := paths[0]
	for _, path := range paths[1:] {
		for !isDescendantOf(path, ancestor) {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				return ancestor
			}
			ancestor = parent
		}
	}
	return ancestor
}
