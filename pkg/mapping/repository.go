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

// Package mapping handles the lifecycle of the external mapping repository
// and the resolution of Terraform blocks into IAM actions.
//
// The mapping repository is a git repository of YAML files, cached under
// ~/.lppc and refreshed at most once every 24 hours. Cloning and updating
// go through the system git binary so that credential helpers and proxies
// work the same way they do for the user's normal git usage.
package mapping

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/internal/metrics"
	"github.com/kraklabs/lppc/internal/ui"
)

// ErrNetworkUnreachable marks git failures caused by the network rather
// than the repository. Callers fall back to a stale cache on this error.
var ErrNetworkUnreachable = fmt.Errorf("network unreachable")

var branchNameRe = regexp.MustCompile(`^[A-Za-z0-9_/-]+$`)

// Repository is the locally cached mapping repository.
type Repository struct {
	// LocalPath is the working tree, e.g. ~/.lppc/bebold-jhr/lppc-aws-mappings.
	LocalPath string

	// URL is the remote the cache was cloned from.
	URL string

	// WasRefreshed reports whether this run cloned or updated the cache.
	WasRefreshed bool
}

// EnsureAvailable guarantees the mapping repository is present locally and
// returns it.
//
// Decision order:
//  1. forceRefresh always updates.
//  2. A missing cache is cloned.
//  3. A cache older than 24 hours is updated.
//  4. If the network is unreachable but a cache exists, the stale cache is
//     used with a warning and the timestamp is left untouched.
//  5. If the repository cannot be cloned and no cache exists, the run fails.
func EnsureAvailable(url string, forceRefresh bool) (*Repository, error) {
	cache, err := NewCacheManager()
	if err != nil {
		return nil, err
	}
	return ensureAvailable(cache, url, forceRefresh)
}

func ensureAvailable(cache *CacheManager, url string, forceRefresh bool) (*Repository, error) {
	localPath, err := cache.RepoPath(url)
	if err != nil {
		return nil, err
	}
	isCached := cache.IsCached(url)

	slog.Debug("mapping.repo", "url", url, "local_path", localPath, "cached", isCached)

	needsUpdate := true
	switch {
	case forceRefresh:
		slog.Debug("mapping.repo.refresh_forced")
	case !isCached:
		slog.Debug("mapping.repo.clone_required")
	default:
		needsUpdate = cache.NeedsRefresh(url)
		if needsUpdate {
			slog.Debug("mapping.repo.cache_expired")
		} else {
			slog.Debug("mapping.repo.cache_fresh")
		}
	}

	refreshed := false
	if needsUpdate {
		switch err := updateOrClone(localPath, url, isCached); {
		case err == nil:
			if err := cache.UpdateTimestamp(url); err != nil {
				return nil, err
			}
			refreshed = true
		case stderrors.Is(err, ErrNetworkUnreachable) && isCached:
			fmt.Fprintln(os.Stderr, ui.Warn.Sprint("Warning: cannot reach the mapping repository, using cached version. Run with --verbose for details."))
		case !isCached:
			return nil, errors.NewGitError(
				"Mapping repository not available",
				fmt.Sprintf("cannot clone %s and no cached copy exists", url),
				"Check the URL and your network connection",
				err,
			)
		default:
			return nil, err
		}
	}

	return &Repository{LocalPath: localPath, URL: url, WasRefreshed: refreshed}, nil
}

// MappingFilePath returns the path of one mapping file inside the repository.
func (r *Repository) MappingFilePath(provider, kind, typeName string) string {
	return filepath.Join(r.LocalPath, "mappings", provider, kind, typeName+".yaml")
}

func updateOrClone(localPath, url string, isCached bool) error {
	if isCached {
		slog.Info("mapping.repo.updating")
		return gitUpdate(localPath)
	}
	slog.Info("mapping.repo.cloning", "url", url)
	return gitShallowClone(url, localPath)
}

// checkGitAvailable verifies a usable git binary exists on PATH.
func checkGitAvailable() error {
	if _, err := exec.LookPath("git"); err != nil {
		return errors.NewGitError(
			"Git command not found",
			"the git binary is not on PATH",
			"Install git: https://git-scm.com/downloads",
			err,
		)
	}
	return nil
}

// validateRepoURL ensures a URL is safe to hand to git on the command line.
func validateRepoURL(url string) error {
	url = strings.TrimSpace(url)

	if strings.HasPrefix(url, "-") {
		return errors.NewGitError("Invalid repository URL", "URL cannot start with '-'", "", nil)
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "git@") {
		return errors.NewGitError(
			"Unsupported URL scheme",
			fmt.Sprintf("use https://, http://, or git@: %s", url),
			"",
			nil,
		)
	}
	if strings.Contains(url, "ext::") || strings.Contains(url, "file://") {
		return errors.NewGitError("Invalid repository URL", "potentially dangerous URL protocol detected", "", nil)
	}
	return nil
}

// isValidBranchName accepts only names safe to interpolate into git refs.
func isValidBranchName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "-") && branchNameRe.MatchString(name)
}

// runGit executes one git command and returns its stdout. On failure the
// trimmed stderr text is classified: network-looking failures come back
// wrapping ErrNetworkUnreachable.
func runGit(dir string, args ...string) (string, error) {
	metrics.GitOperations.WithLabelValues(args[0]).Inc()

	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", classifyGitError(msg)
	}
	return stdout.String(), nil
}

// classifyGitError maps a git stderr string to either a network error or
// a generic git failure.
func classifyGitError(stderr string) error {
	lower := strings.ToLower(stderr)
	networkMarkers := []string{
		"could not resolve",
		"failed to resolve",
		"network",
		"connection",
		"timed out",
		"unreachable",
		"no address",
		"dns",
		"unable to access",
	}
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrNetworkUnreachable, stderr)
		}
	}
	return errors.NewGitError("Git operation failed", stderr, "", nil)
}

// gitShallowClone clones the repository with depth=1 into targetPath,
// replacing any existing non-repository directory. A symlink at the target
// is refused rather than followed.
func gitShallowClone(url, targetPath string) error {
	if err := validateRepoURL(url); err != nil {
		return err
	}
	if err := checkGitAvailable(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o750); err != nil {
		return errors.NewCacheError("Cannot create cache directory", filepath.Dir(targetPath), "", err)
	}

	if info, err := os.Lstat(targetPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewGitError(
				"Refusing to clone over a symlink",
				targetPath,
				"Remove the symlink and retry",
				nil,
			)
		}
		slog.Debug("mapping.repo.removing_existing", "path", targetPath)
		if err := os.RemoveAll(targetPath); err != nil {
			return errors.NewCacheError("Cannot remove stale cache directory", targetPath, "", err)
		}
	}

	// "--" keeps a hostile URL from being read as an option.
	_, err := runGit("", "clone", "--depth", "1", "--single-branch", "--", url, targetPath)
	if err != nil {
		return err
	}
	slog.Info("mapping.repo.cloned")
	return nil
}

// gitUpdate refreshes an existing clone via shallow fetch plus hard reset
// to the remote default branch.
func gitUpdate(repoPath string) error {
	if err := checkGitAvailable(); err != nil {
		return err
	}
	if _, err := os.Stat(repoPath); err != nil {
		return errors.NewGitError("Repository not found", repoPath, "", err)
	}

	if _, err := runGit(repoPath, "fetch", "--depth", "1", "origin"); err != nil {
		return err
	}

	branch := "main"
	if out, err := runGit(repoPath, "symbolic-ref", "--short", "HEAD"); err == nil {
		name := strings.TrimSpace(out)
		if isValidBranchName(name) {
			branch = name
		} else {
			slog.Warn("mapping.repo.invalid_branch_name", "fallback", "main")
		}
	}

	if _, err := runGit(repoPath, "reset", "--hard", "origin/"+branch); err != nil {
		return err
	}

	if out, err := runGit(repoPath, "rev-parse", "--short", "HEAD"); err == nil {
		slog.Info("mapping.repo.updated", "commit", strings.TrimSpace(out), "branch", branch)
	} else {
		slog.Info("mapping.repo.updated", "branch", branch)
	}
	return nil
}

// IsRemoteReachable probes the remote with git ls-remote. Used only for
// verbose diagnostics; failures are reported as false, never as errors.
func IsRemoteReachable(url string) bool {
	if err := validateRepoURL(url); err != nil {
		slog.Debug("mapping.repo.probe.invalid_url", "url", url)
		return false
	}
	_, err := runGit("", "ls-remote", "--exit-code", "-h", "--", url)
	if err != nil {
		slog.Debug("mapping.repo.probe.unreachable", "err", err)
		return false
	}
	return true
}
