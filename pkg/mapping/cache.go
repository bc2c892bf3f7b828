// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/lppc/internal/errors"
)

// cacheExpiry is how long a cached mapping repository stays fresh.
const cacheExpiry = 24 * time.Hour

// CacheManager owns the local cache directory for mapping repositories,
// typically ~/.lppc. It maps repository URLs to on-disk paths and tracks
// per-URL refresh timestamps.
type CacheManager struct {
	baseDir string
}

// NewCacheManager creates a cache manager rooted at ~/.lppc, creating the
// directory if needed.
func NewCacheManager() (*CacheManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot determine home directory",
			"the operating system did not provide a user home directory",
			"Set the HOME environment variable",
			err,
		)
	}
	return NewCacheManagerAt(filepath.Join(home, ".lppc"))
}

// NewCacheManagerAt creates a cache manager with an explicit base directory.
func NewCacheManagerAt(baseDir string) (*CacheManager, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, errors.NewCacheError(
			"Cannot create cache directory",
			baseDir,
			"Check directory permissions",
			err,
		)
	}
	return &CacheManager{baseDir: baseDir}, nil
}

// BaseDir returns the cache root directory.
func (c *CacheManager) BaseDir() string {
	return c.baseDir
}

// RepoPath returns the local path for a repository URL, e.g.
// https://github.com/bebold-jhr/lppc-aws-mappings -> ~/.lppc/bebold-jhr/lppc-aws-mappings.
func (c *CacheManager) RepoPath(url string) (string, error) {
	rel, err := ParseRepoPath(url)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.baseDir, filepath.FromSlash(rel)), nil
}

// IsCached reports whether the repository exists locally with a .git directory.
func (c *CacheManager) IsCached(url string) bool {
	path, err := c.RepoPath(url)
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// NeedsRefresh reports whether the cache is stale: the timestamp file is
// missing or its mtime is older than 24 hours.
func (c *CacheManager) NeedsRefresh(url string) bool {
	info, err := os.Stat(c.timestampPath(url))
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > cacheExpiry
}

// UpdateTimestamp records a successful refresh by writing the current UTC
// time in RFC 3339 form to the per-URL timestamp file.
func (c *CacheManager) UpdateTimestamp(url string) error {
	path := c.timestampPath(url)
	now := time.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte(now), 0o644); err != nil {
		return errors.NewCacheError(
			"Cannot write cache timestamp",
			path,
			"Check permissions on the cache directory",
			err,
		)
	}
	slog.Debug("cache.timestamp.updated", "path", path)
	return nil
}

// timestampPath returns the timestamp file path for a URL. Distinct URLs
// get distinct files via a short hash of the URL.
func (c *CacheManager) timestampPath(url string) string {
	return filepath.Join(c.baseDir, ".last_update_"+hashURL(url))
}

// hashURL returns the first 8 hex characters of the SHA-256 of the URL.
func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:4])
}

// ParseRepoPath extracts "user/repo" from a git repository URL.
//
// Supported forms:
//   - https://github.com/user/repo
//   - https://github.com/user/repo.git
//   - http://host/user/repo
//   - git@host:user/repo[.git]
func ParseRepoPath(url string) (string, error) {
	url = strings.TrimSpace(url)

	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		return parseHTTPURL(url)
	}
	if strings.HasPrefix(url, "git@") {
		return parseSSHURL(url)
	}
	return "", errors.NewCacheError(
		"Invalid repository URL",
		fmt.Sprintf("URL must start with 'https://', 'http://', or 'git@': %s", url),
		"",
		nil,
	)
}

func parseHTTPURL(url string) (string, error) {
	rest := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")

	parts := strings.Split(rest, "/")
	if len(parts) < 3 {
		return "", errors.NewCacheError(
			"Invalid repository URL",
			fmt.Sprintf("URL must contain user and repository: %s", url),
			"",
			nil,
		)
	}

	user := parts[1]
	repo := strings.TrimSuffix(parts[2], ".git")

	if err := validatePathComponent(user, url); err != nil {
		return "", err
	}
	if err := validatePathComponent(repo, url); err != nil {
		return "", err
	}
	return user + "/" + repo, nil
}

func parseSSHURL(url string) (string, error) {
	rest := strings.TrimPrefix(url, "git@")

	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", errors.NewCacheError(
			"Invalid repository URL",
			fmt.Sprintf("SSH URL missing ':' separator: %s", url),
			"",
			nil,
		)
	}

	path := strings.TrimSuffix(rest[colon+1:], ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return "", errors.NewCacheError(
			"Invalid repository URL",
			fmt.Sprintf("SSH URL must contain user/repo path: %s", url),
			"",
			nil,
		)
	}

	if err := validatePathComponent(parts[0], url); err != nil {
		return "", err
	}
	if err := validatePathComponent(parts[1], url); err != nil {
		return "", err
	}
	return parts[0] + "/" + parts[1], nil
}

// validatePathComponent rejects user/repo names that could escape the
// cache directory or be mistaken for git options.
func validatePathComponent(component, url string) error {
	invalid := func(detail string) error {
		return errors.NewCacheError("Invalid repository URL", fmt.Sprintf("%s: %s", detail, url), "", nil)
	}

	switch {
	case component == "":
		return invalid("empty path component in URL")
	case strings.Contains(component, ".."):
		return invalid("path traversal detected in URL")
	case strings.ContainsAny(component, `/\`):
		return invalid("invalid characters in URL path component")
	case strings.HasPrefix(component, "."):
		return invalid("path component cannot start with '.'")
	case strings.HasPrefix(component, "-"):
		return invalid("path component cannot start with '-'")
	}
	return nil
}
