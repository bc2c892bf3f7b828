// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/internal/metrics"
	"github.com/kraklabs/lppc/pkg/terraform"
)

// maxYAMLFileSize caps mapping files at 1 MiB.
const maxYAMLFileSize = 1024 * 1024

var pathComponentRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// isValidPathComponent rejects provider/type names that could traverse out
// of the mappings tree or be mistaken for options.
func isValidPathComponent(s string) bool {
	return s != "" && !strings.HasPrefix(s, "-") && pathComponentRe.MatchString(s)
}

// Loader reads YAML mapping files from the cached repository, memoising
// results (both hits and misses) for the lifetime of the process.
//
// The cache is guarded by a mutex so Load can be called through a shared
// reference. The pipeline is sequential today; the lock keeps the API
// sound if a caller ever fans out per block.
type Loader struct {
	repo *Repository

	mu    sync.Mutex
	cache map[string]*ActionMapping // nil value = known missing
}

// NewLoader creates a loader for the given repository.
func NewLoader(repo *Repository) *Loader {
	return &Loader{repo: repo, cache: make(map[string]*ActionMapping)}
}

// Load returns the mapping for (provider, kind, typeName), or nil when no
// mapping file exists. Invalid path components also yield nil, with a
// warning, without touching the filesystem.
func (l *Loader) Load(provider string, kind terraform.BlockType, typeName string) (*ActionMapping, error) {
	if !isValidPathComponent(provider) || !isValidPathComponent(typeName) {
		slog.Warn("mapping.load.invalid_name", "provider", provider, "type", typeName)
		return nil, nil
	}

	cacheKey := provider + "/" + kind.String() + "/" + typeName

	l.mu.Lock()
	cached, hit := l.cache[cacheKey]
	l.mu.Unlock()
	if hit {
		slog.Debug("mapping.load.cache_hit", "key", cacheKey)
		return cached, nil
	}

	mapping, err := l.loadFromFile(provider, kind, typeName, cacheKey)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[cacheKey] = mapping
	l.mu.Unlock()

	return mapping, nil
}

func (l *Loader) loadFromFile(provider string, kind terraform.BlockType, typeName, cacheKey string) (*ActionMapping, error) {
	path := l.repo.MappingFilePath(provider, kind.String(), typeName)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("mapping.load.not_found", "key", cacheKey)
			return nil, nil
		}
		return nil, errors.NewLoadError("Cannot read mapping file", path, "", err)
	}

	if info.Size() > maxYAMLFileSize {
		return nil, errors.NewLoadError(
			"Mapping file too large",
			fmt.Sprintf("%s is %d bytes (limit %d)", path, info.Size(), maxYAMLFileSize),
			"Mapping files are capped at 1 MiB",
			nil,
		)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewLoadError("Cannot read mapping file", path, "", err)
	}

	slog.Debug("mapping.load.file", "path", path)
	metrics.MappingsLoaded.Inc()

	mapping, err := ParseMapping(content)
	if err != nil {
		return nil, errors.NewParseError("Invalid mapping file", path, "", err)
	}
	return mapping, nil
}

// ExtractProvider returns the first underscore-separated segment of a type
// name, e.g. "aws" for "aws_s3_bucket". Empty when the name starts with an
// underscore or is empty.
func ExtractProvider(typeName string) string {
	segment, _, _ := strings.Cut(typeName, "_")
	return segment
}
