// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/lppc/internal/errors"
)

// directoryCopy is one directory scheduled for copying into the sandbox.
type directoryCopy struct {
	source       string // absolute source path
	destRelative string // destination relative to the sandbox root
}

// copyPlan describes how the working directory and any external local
// modules are laid out inside the sandbox so that ../-style module
// references still resolve.
type copyPlan struct {
	commonAncestor     string
	workingDirRelative string
	directories        []directoryCopy
}

// executionDir returns where terraform runs inside the sandbox.
func (p *copyPlan) executionDir(sandboxRoot string) string {
	return filepath.Join(sandboxRoot, p.workingDirRelative)
}

// Executor prepares the sandbox and drives terraform init before parsing.
//
// Everything happens in an isolated temp directory; the user's working
// directory is never modified. Parsing the HCL directly means no AWS
// credentials and no backend access are needed.
type Executor struct {
	terraformPath string

	// ShowProgress enables a progress indicator during the sandbox copy.
	ShowProgress bool
}

// NewExecutor creates an executor, verifying terraform is on PATH.
func NewExecutor() (*Executor, error) {
	path, err := exec.LookPath("terraform")
	if err != nil {
		return nil, errors.NewTerraformError(
			"Terraform is not installed or not found in PATH",
			"",
			"Install terraform: https://developer.hashicorp.com/terraform/downloads",
			err,
		)
	}
	slog.Debug("terraform.found", "path", path)
	return &Executor{terraformPath: path}, nil
}

// Execute copies the working directory (and any external local modules)
// into a fresh sandbox, runs terraform init -backend=false there, and
// parses the result. Returns nil when the directory has no .tf files.
func (e *Executor) Execute(workingDir string) (*Config, error) {
	hasFiles, err := HasTerraformFiles(workingDir)
	if err != nil {
		return nil, err
	}
	if !hasFiles {
		slog.Debug("sandbox.no_terraform_files")
		return nil, nil
	}

	sources, err := DetectModuleSources(workingDir)
	if err != nil {
		return nil, err
	}
	slog.Debug("sandbox.module_sources", "count", len(sources))

	external, err := ResolveExternalModules(workingDir, sources)
	if err != nil {
		return nil, err
	}
	slog.Debug("sandbox.external_modules", "count", len(external))

	plan, err := planCopyStructure(workingDir, external)
	if err != nil {
		return nil, err
	}

	sandboxRoot, err := os.MkdirTemp("", "lppc-")
	if err != nil {
		return nil, errors.NewTerraformError("Cannot create sandbox directory", "", "", err)
	}
	defer os.RemoveAll(sandboxRoot)

	slog.Debug("sandbox.created", "root", sandboxRoot)

	if err := e.executeCopyPlan(plan, sandboxRoot); err != nil {
		return nil, err
	}

	executionDir := plan.executionDir(sandboxRoot)

	if err := cleanTerraformState(executionDir); err != nil {
		return nil, err
	}

	logDirectoryTree(sandboxRoot, "sandbox tree")

	if err := e.init(executionDir); err != nil {
		return nil, err
	}

	manifest, _ := LoadManifest(executionDir)
	return ParseDirectory(executionDir, manifest)
}

// HasTerraformFiles reports whether dir directly contains any .tf file.
func HasTerraformFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, errors.NewConfigError("Cannot read working directory", dir, "", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ".tf" {
			return true, nil
		}
	}
	return false, nil
}

// planCopyStructure decides what to copy where. With no external modules
// the working directory maps straight onto the sandbox root; otherwise
// every directory is placed relative to the common ancestor so relative
// module paths keep working.
func planCopyStructure(workingDir string, externalModules []string) (*copyPlan, error) {
	workingAbs, err := canonicalPath(workingDir)
	if err != nil {
		return nil, errors.NewConfigError("Cannot resolve working directory", workingDir, "", err)
	}

	if len(externalModules) == 0 {
		slog.Debug("sandbox.simple_copy")
		return &copyPlan{
			commonAncestor: workingAbs,
			directories:    []directoryCopy{{source: workingAbs}},
		}, nil
	}

	all := append([]string{workingAbs}, externalModules...)
	ancestor := FindCommonAncestor(all)
	slog.Debug("sandbox.common_ancestor", "path", ancestor)

	plan := &copyPlan{commonAncestor: ancestor}

	rel, err := filepath.Rel(ancestor, workingAbs)
	if err != nil {
		return nil, errors.NewTerraformError("Cannot compute sandbox layout", workingAbs, "", err)
	}
	plan.workingDirRelative = rel
	plan.directories = append(plan.directories, directoryCopy{source: workingAbs, destRelative: rel})

	for _, module := range externalModules {
		rel, err := filepath.Rel(ancestor, module)
		if err != nil {
			return nil, errors.NewTerraformError("Cannot compute sandbox layout", module, "", err)
		}
		plan.directories = append(plan.directories, directoryCopy{source: module, destRelative: rel})
	}

	slog.Debug("sandbox.copy_plan", "directories", len(plan.directories), "working_dir", plan.workingDirRelative)
	return plan, nil
}

func (e *Executor) executeCopyPlan(plan *copyPlan, sandboxRoot string) error {
	var bar *progressbar.ProgressBar
	if e.ShowProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Preparing sandbox"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for _, dir := range plan.directories {
		dest := filepath.Join(sandboxRoot, dir.destRelative)
		slog.Debug("sandbox.copying", "from", dir.source, "to", dest)
		if err := copyTerraformFiles(dir.source, dest, bar); err != nil {
			return err
		}
	}
	return nil
}

// copyTerraformFiles copies a directory tree into the sandbox.
//
// Anything under a .terraform segment is skipped, and symlinks are not
// followed or recreated: a link could point outside the sandbox. The
// .terraform.lock.hcl file copies like any other file so provider
// versions stay pinned.
func copyTerraformFiles(src, dest string, bar *progressbar.ProgressBar) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("sandbox.walk_error", "path", path, "err", err)
			return nil
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return errors.NewTerraformError("Cannot compute relative path", path, "", relErr)
		}

		if d.IsDir() && d.Name() == ".terraform" {
			return filepath.SkipDir
		}
		if hasPathSegment(rel, ".terraform") {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			slog.Debug("sandbox.skip_symlink", "path", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dest, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.NewTerraformError("Cannot create sandbox directory", target, "", err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.NewTerraformError("Cannot create sandbox directory", filepath.Dir(target), "", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.NewTerraformError("Cannot copy file into sandbox", path, "", err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return errors.NewTerraformError("Cannot copy file into sandbox", target, "", err)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		return nil
	})
}

// hasPathSegment reports whether any segment of rel equals name.
func hasPathSegment(rel, name string) bool {
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if seg == name {
			return true
		}
	}
	return false
}

// cleanTerraformState removes any stray .terraform/ directory and state
// files from the execution directory, keeping .terraform.lock.hcl.
func cleanTerraformState(dir string) error {
	tfDir := filepath.Join(dir, ".terraform")
	if _, err := os.Stat(tfDir); err == nil {
		slog.Debug("sandbox.removing_terraform_dir", "path", tfDir)
		if err := os.RemoveAll(tfDir); err != nil {
			return errors.NewTerraformError("Cannot clean sandbox", tfDir, "", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.NewTerraformError("Cannot read sandbox directory", dir, "", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == "terraform.tfstate" || strings.HasPrefix(name, "terraform.tfstate.") {
			slog.Debug("sandbox.removing_state_file", "name", name)
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return errors.NewTerraformError("Cannot remove state file", name, "", err)
			}
		}
	}
	return nil
}

// init runs terraform init -backend=false in the execution directory,
// which downloads registry and git modules without touching any backend
// or remote state.
func (e *Executor) init(dir string) error {
	slog.Info("terraform.init", "dir", dir)

	tf, err := tfexec.NewTerraform(dir, e.terraformPath)
	if err != nil {
		return errors.NewTerraformError("Cannot start terraform", dir, "", err)
	}

	if err := tf.Init(context.Background(), tfexec.Backend(false)); err != nil {
		return errors.NewTerraformError("Terraform init failed", err.Error(), "", nil)
	}
	slog.Debug("terraform.init.done")
	return nil
}

// logDirectoryTree logs the sandbox layout in tree form. Only visible
// under --verbose.
func logDirectoryTree(root, label string) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug(label, "root", root)
	logTreeRecursive(root, "")
}

func logTreeRecursive(current, prefix string) {
	entries, err := os.ReadDir(current)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i, entry := range entries {
		last := i == len(entries)-1
		connector := "├── "
		if last {
			connector = "└── "
		}
		slog.Debug(prefix + connector + entry.Name())
		if entry.IsDir() {
			childPrefix := prefix + "│   "
			if last {
				childPrefix = prefix + "    "
			}
			logTreeRecursive(filepath.Join(current, entry.Name()), childPrefix)
		}
	}
}
