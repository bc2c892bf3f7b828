// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModuleSourceType classifies a Terraform module source string.
type ModuleSourceType interface {
	// IsRemote reports whether terraform init downloads the module
	// (git and registry sources).
	IsRemote() bool

	// Description renders the source for verbose logging.
	Description() string
}

// RootSource is the root module (empty source in modules.json).
type RootSource struct{}

func (RootSource) IsRemote() bool      { return false }
func (RootSource) Description() string { return "root" }

// LocalSource is a filesystem path.
type LocalSource struct {
	Path string
}

func (LocalSource) IsRemote() bool        { return false }
func (s LocalSource) Description() string { return "local: " + s.Path }

// RegistrySource is a Terraform Registry module.
type RegistrySource struct {
	Namespace string
	Name      string
	Provider  string
	// Registry is the registry host; empty means the public registry.
	Registry string
	// Subdir is the submodule path after "//", if any.
	Subdir string
}

func (RegistrySource) IsRemote() bool { return true }

func (s RegistrySource) Description() string {
	host := ""
	if s.Registry != "" {
		host = s.Registry + "/"
	}
	sub := ""
	if s.Subdir != "" {
		sub = "//" + s.Subdir
	}
	return fmt.Sprintf("registry: %s%s/%s/%s%s", host, s.Namespace, s.Name, s.Provider, sub)
}

// GitSource is a git repository module.
type GitSource struct {
	URL string
	// RefSpec is the branch, tag, or commit from ?ref=, if any.
	RefSpec string
	// Subdir is the path inside the repository after "//", if any.
	Subdir string
}

func (GitSource) IsRemote() bool { return true }

func (s GitSource) Description() string {
	ref := s.RefSpec
	if ref == "" {
		ref = "default"
	}
	sub := ""
	if s.Subdir != "" {
		sub = " //" + s.Subdir
	}
	return fmt.Sprintf("git: %s (ref: %s)%s", s.URL, ref, sub)
}

// ParseModuleSource classifies a module source string.
//
// Recognises empty (root), git:: prefixed URLs, github.com shorthand, and
// local paths; any other string is parsed as a registry address. Other
// Terraform source forms (git@ SSH shorthand, s3::, http archives, ...)
// are not recognised and go through the registry parser as well.
func ParseModuleSource(source string) ModuleSourceType {
	if source == "" {
		return RootSource{}
	}
	if rest, ok := strings.CutPrefix(source, "git::"); ok {
		return parseGitSource(rest)
	}
	if strings.HasPrefix(source, "github.com/") {
		return GitSource{URL: "https://" + source + ".git"}
	}
	if strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../") || strings.HasPrefix(source, "/") {
		return LocalSource{Path: source}
	}
	return parseRegistrySource(source)
}

func parseGitSource(rest string) GitSource {
	urlPart := rest
	ref := ""
	if u, query, ok := strings.Cut(rest, "?"); ok {
		urlPart = u
		for _, param := range strings.Split(query, "&") {
			if v, ok := strings.CutPrefix(param, "ref="); ok {
				ref = v
				break
			}
		}
	}

	url, subdir := splitURLAndSubdir(urlPart)
	return GitSource{URL: url, RefSpec: ref, Subdir: subdir}
}

// splitURLAndSubdir finds the "//" subdirectory delimiter, skipping the
// "://" that belongs to a URL scheme.
func splitURLAndSubdir(urlPart string) (string, string) {
	searchStart := 0
	for {
		pos := strings.Index(urlPart[searchStart:], "//")
		if pos < 0 {
			return urlPart, ""
		}
		abs := searchStart + pos
		if abs > 0 && urlPart[abs-1] == ':' {
			searchStart = abs + 2
			continue
		}
		return urlPart[:abs], urlPart[abs+2:]
	}
}

func parseRegistrySource(source string) ModuleSourceType {
	base, subdir := source, ""
	if pos := strings.Index(source, "//"); pos >= 0 && pos+2 < len(source) {
		base, subdir = source[:pos], source[pos+2:]
	}

	registry := ""
	path := base
	if strings.Contains(base, "terraform.io/") {
		before, after, _ := strings.Cut(base, "terraform.io/")
		registry = before + "terraform.io"
		path = after
	}

	components := strings.Split(path, "/")
	if len(components) < 3 {
		// Unparseable registry addresses fall back to local so they are
		// at least considered for sandbox copying.
		return LocalSource{Path: source}
	}
	return RegistrySource{
		Namespace: components[0],
		Name:      components[1],
		Provider:  components[2],
		Registry:  registry,
		Subdir:    subdir,
	}
}

// modulesJSON mirrors .terraform/modules/modules.json.
type modulesJSON struct {
	Modules []rawModuleEntry `json:"Modules"`
}

type rawModuleEntry struct {
	Key    string `json:"Key"`
	Source string `json:"Source"`
	Dir    string `json:"Dir"`
}

// ModuleEntry is one classified entry from modules.json.
type ModuleEntry struct {
	// Key locates the module in the call hierarchy ("" = root,
	// "billing.nested" = module.nested inside module.billing).
	Key string

	// Source is the raw source string, kept for logging.
	Source string

	// SourceType is the classified source.
	SourceType ModuleSourceType

	// Dir is the module code directory relative to the working dir.
	Dir string
}

// ModulesManifest indexes .terraform/modules/modules.json for module
// directory lookup during recursive parsing.
type ModulesManifest struct {
	workingDir string
	entries    []ModuleEntry
}

// LoadManifest reads the manifest from workingDir. The boolean is false
// when the file is missing or unparseable; both are normal before
// terraform init has run.
func LoadManifest(workingDir string) (*ModulesManifest, bool) {
	path := filepath.Join(workingDir, ".terraform", "modules", "modules.json")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var parsed modulesJSON
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, false
	}

	entries := make([]ModuleEntry, 0, len(parsed.Modules))
	for _, raw := range parsed.Modules {
		entries = append(entries, ModuleEntry{
			Key:        raw.Key,
			Source:     raw.Source,
			SourceType: ParseModuleSource(raw.Source),
			Dir:        raw.Dir,
		})
	}
	return &ModulesManifest{workingDir: workingDir, entries: entries}, true
}

// FindModuleDir returns the canonical directory for a module key.
//
// Canonicalisation validates the path exists; traversal inside the
// sandbox is safe because everything under it was copied there.
func (m *ModulesManifest) FindModuleDir(moduleKey string) (string, bool) {
	entry, ok := m.findEntry(moduleKey)
	if !ok {
		return "", false
	}
	joined := filepath.Join(m.workingDir, entry.Dir)
	canon, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", false
	}
	return canon, true
}

// FindEntry returns the manifest entry for a module key.
func (m *ModulesManifest) FindEntry(moduleKey string) (ModuleEntry, bool) {
	return m.findEntry(moduleKey)
}

func (m *ModulesManifest) findEntry(moduleKey string) (ModuleEntry, bool) {
	for _, e := range m.entries {
		if e.Key == moduleKey {
			return e, true
		}
	}
	return ModuleEntry{}, false
}

// RemoteModules returns the git and registry entries.
func (m *ModulesManifest) RemoteModules() []ModuleEntry {
	var remote []ModuleEntry
	for _, e := range m.entries {
		if e.SourceType.IsRemote() {
			remote = append(remote, e)
		}
	}
	return remote
}

// BuildChildKey derives the manifest key of a called module from its
// parent's key: ("", "billing") -> "billing"; ("billing", "nested") ->
// "billing.nested".
func BuildChildKey(parentKey, moduleName string) string {
	if parentKey == "" {
		return moduleName
	}
	return parentKey + "." + moduleName
}
