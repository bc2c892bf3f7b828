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

// Package terraform parses Terraform configurations in an isolated sandbox
// and groups AWS blocks by the deployment role that owns them.
//
// Parsing works directly on the HCL syntax tree rather than a terraform
// plan, so no AWS credentials or backend configuration are required.
package terraform

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/kraklabs/lppc/internal/errors"
	"github.com/kraklabs/lppc/internal/metrics"
)

// parsedModuleCall is a module block found during extraction, before the
// child directory has been resolved through the manifest.
type parsedModuleCall struct {
	name     string
	mappings *ProviderMappings
}

// ParseDirectory parses the .tf files directly in dir, recursing into module
// directories listed in the manifest, and returns blocks grouped by role.
// Subdirectories that the manifest does not list are not parsed.
//
// Providers are only collected from the root module; a provider block in
// a child module has no assume_role context the tool can attribute, so it
// is ignored. Each block's provider key is resolved to its root key via
// the module-call providers mappings accumulated on the way down.
func ParseDirectory(dir string, manifest *ModulesManifest) (*Config, error) {
	if manifest != nil {
		logDiscoveredModules(manifest)
	}

	providers, blocks, err := extractRecursive(dir, RootContext(), "", manifest)
	if err != nil {
		return nil, err
	}

	slog.Debug("hcl.parsed", "providers", len(providers), "blocks", len(blocks))

	return GroupByRole(providers, blocks), nil
}

func logDiscoveredModules(manifest *ModulesManifest) {
	remote := manifest.RemoteModules()
	if len(remote) == 0 {
		slog.Debug("hcl.no_remote_modules")
		return
	}
	slog.Debug("hcl.remote_modules", "count", len(remote))
	for _, entry := range remote {
		slog.Debug("hcl.remote_module", "key", entry.Key, "source", entry.SourceType.Description())
	}
}

// extractRecursive parses the .tf files directly in dir (no directory
// walk), then descends into each module call through the manifest.
func extractRecursive(dir string, context *ModuleContext, moduleKey string, manifest *ModulesManifest) ([]Provider, []Block, error) {
	var providers []Provider
	var blocks []Block
	var moduleCalls []parsedModuleCall

	files, err := collectTfFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	for _, path := range files {
		if info, err := os.Stat(path); err == nil && info.Size() > maxTfFileSize {
			slog.Warn("hcl.skip_oversized", "path", path, "size", info.Size())
			continue
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, errors.NewParseError("Cannot read Terraform file", path, "", err)
		}

		body, err := parseHCL(src, path)
		if err != nil {
			return nil, nil, err
		}
		metrics.TfFilesParsed.Inc()

		fileProviders, fileBlocks, fileCalls := extractFromBody(body, src, context)

		// Only the root module contributes providers.
		if moduleKey == "" {
			providers = append(providers, fileProviders...)
		}
		blocks = append(blocks, fileBlocks...)
		moduleCalls = append(moduleCalls, fileCalls...)
	}

	if manifest != nil {
		for _, call := range moduleCalls {
			childKey := BuildChildKey(moduleKey, call.name)
			childContext := context.Child(call.name, call.mappings)

			moduleDir, ok := manifest.FindModuleDir(childKey)
			if !ok {
				slog.Debug("hcl.module_not_in_manifest", "key", childKey)
				continue
			}
			if info, err := os.Stat(moduleDir); err != nil || !info.IsDir() {
				slog.Warn("hcl.module_dir_missing", "key", childKey, "dir", moduleDir)
				continue
			}

			slog.Debug("hcl.parsing_module", "key", childKey, "dir", moduleDir, "prefix", childContext.AddressPrefix)

			_, childBlocks, err := extractRecursive(moduleDir, childContext, childKey, manifest)
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, childBlocks...)
		}
	}

	return providers, blocks, nil
}

// collectTfFiles lists the .tf files directly in dir.
func collectTfFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewParseError("Cannot read directory", dir, "", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ".tf" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// parseHCL parses one file into its native syntax body.
func parseHCL(src []byte, filename string) (*hclsyntax.Body, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, errors.NewParseError("Invalid Terraform file", fmt.Sprintf("%s: %s", filename, diags.Error()), "", nil)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, errors.NewInternalError("Unexpected HCL body type", filename, "", nil)
	}
	return body, nil
}

// extractFromBody collects providers, AWS blocks, and module calls from
// one file body under the given module context.
func extractFromBody(body *hclsyntax.Body, src []byte, context *ModuleContext) ([]Provider, []Block, []parsedModuleCall) {
	var providers []Provider
	var blocks []Block
	var calls []parsedModuleCall

	for _, block := range body.Blocks {
		switch block.Type {
		case "provider":
			if p, ok := parseProviderBlock(block, src); ok {
				providers = append(providers, p)
			}
		case "resource":
			if b, ok := parseResourceBlock(block, BlockResource, src, context); ok {
				blocks = append(blocks, b)
			}
		case "data":
			if b, ok := parseResourceBlock(block, BlockData, src, context); ok {
				blocks = append(blocks, b)
			}
		case "ephemeral":
			if b, ok := parseResourceBlock(block, BlockEphemeral, src, context); ok {
				blocks = append(blocks, b)
			}
		case "action":
			if b, ok := parseResourceBlock(block, BlockAction, src, context); ok {
				blocks = append(blocks, b)
			}
		case "module":
			if call, ok := parseModuleCall(block); ok {
				calls = append(calls, call)
			}
		}
		// Other block types (variable, output, locals, terraform, ...)
		// carry no permission-relevant information.
	}

	return providers, blocks, calls
}

// parseProviderBlock reads an aws provider block: alias and the literal
// assume_role.role_arn text. Non-aws providers are ignored.
func parseProviderBlock(block *hclsyntax.Block, src []byte) (Provider, bool) {
	if len(block.Labels) == 0 || block.Labels[0] != "aws" {
		return Provider{}, false
	}

	alias := staticStringAttr(block.Body, "alias")
	roleARN := assumeRoleARN(block.Body, src)

	configKey := "aws"
	if alias != "" {
		configKey = "aws." + alias
	}

	slog.Debug("hcl.provider", "config_key", configKey, "role_arn", roleARN)

	return Provider{ConfigKey: configKey, Alias: alias, RoleARN: roleARN}, true
}

// assumeRoleARN finds assume_role.role_arn and renders it exactly as
// written, interpolation included.
func assumeRoleARN(body *hclsyntax.Body, src []byte) string {
	for _, block := range body.Blocks {
		if block.Type != "assume_role" {
			continue
		}
		if attr, ok := block.Body.Attributes["role_arn"]; ok {
			return renderExprText(attr.Expr, src)
		}
	}
	return ""
}

// staticStringAttr returns an attribute's value when it is a plain string
// literal, otherwise "".
func staticStringAttr(body *hclsyntax.Body, name string) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	if s, ok := staticString(attr.Expr); ok {
		return s
	}
	return ""
}

// staticString evaluates an expression when it needs no variables.
func staticString(expr hclsyntax.Expression) (string, bool) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() || val.Type() != cty.String || val.IsNull() {
		return "", false
	}
	return val.AsString(), true
}

// renderExprText renders an expression to its source text. A string
// literal evaluates to its value; anything else (templates with
// interpolation, traversals) is sliced out of the file verbatim, with
// surrounding quotes stripped so `"arn:${var.x}"` comes back as
// `arn:${var.x}`.
func renderExprText(expr hclsyntax.Expression, src []byte) string {
	if s, ok := staticString(expr); ok {
		return s
	}

	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte > rng.End.Byte {
		return ""
	}
	raw := string(src[rng.Start.Byte:rng.End.Byte])
	if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
		raw = raw[1 : len(raw)-1]
	}
	return raw
}

// parseResourceBlock reads an aws_* resource/data/ephemeral/action block,
// resolving its provider key through the module context and collecting
// its present attribute paths.
func parseResourceBlock(block *hclsyntax.Block, blockType BlockType, src []byte, context *ModuleContext) (Block, bool) {
	if len(block.Labels) < 2 {
		return Block{}, false
	}

	typeName, name := block.Labels[0], block.Labels[1]
	if !strings.HasPrefix(typeName, "aws_") {
		return Block{}, false
	}

	localKey := providerAttr(block.Body, src)
	if localKey == "" {
		localKey = "aws"
	}

	present := NewPathSet()
	collectAttributePaths(block.Body, nil, present)

	typePrefix := typeName + "." + name
	if blockType != BlockResource {
		typePrefix = blockType.String() + "." + typePrefix
	}
	address := typePrefix
	if context.AddressPrefix != "" {
		address = context.AddressPrefix + "." + typePrefix
	}

	metrics.BlocksCollected.Inc()
	slog.Debug("hcl.block", "address", address, "paths", present.Sorted())

	return Block{
		Type:              blockType,
		TypeName:          typeName,
		Name:              name,
		ProviderConfigKey: context.ResolveToRoot(localKey),
		PresentAttributes: present,
		Address:           address,
	}, true
}

// providerAttr reads the explicit provider attribute of a block. It may
// be a quoted string ("aws.dns"), a bare reference (aws.dns), or a plain
// variable; all render to the canonical dotted key.
func providerAttr(body *hclsyntax.Body, src []byte) string {
	attr, ok := body.Attributes["provider"]
	if !ok {
		return ""
	}
	switch expr := attr.Expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		return traversalToKey(expr.Traversal)
	default:
		return renderExprText(attr.Expr, src)
	}
}

// traversalToKey renders a traversal like aws.billing as a dot-joined
// key. Index and splat steps never appear in valid provider references
// and are dropped.
func traversalToKey(traversal hcl.Traversal) string {
	var parts []string
	for _, step := range traversal {
		switch t := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, t.Name)
		case hcl.TraverseAttr:
			parts = append(parts, t.Name)
		}
	}
	return strings.Join(parts, ".")
}

// collectAttributePaths records every attribute path at every depth of
// the body, including the path of each sub-block itself.
func collectAttributePaths(body *hclsyntax.Body, currentPath []string, paths *PathSet) {
	for name := range body.Attributes {
		paths.Add(append(append([]string(nil), currentPath...), name))
	}
	for _, block := range body.Blocks {
		childPath := append(append([]string(nil), currentPath...), block.Type)
		paths.Add(childPath)
		collectAttributePaths(block.Body, childPath, paths)
	}
}

// parseModuleCall reads a module block's name and providers mappings.
func parseModuleCall(block *hclsyntax.Block) (parsedModuleCall, bool) {
	if len(block.Labels) == 0 {
		return parsedModuleCall{}, false
	}
	return parsedModuleCall{
		name:     block.Labels[0],
		mappings: parseModuleProviders(block.Body),
	}, true
}

// parseModuleProviders reads the providers = { local = parent } object on
// a module call. Keys and values that are not provider references are
// skipped.
func parseModuleProviders(body *hclsyntax.Body) *ProviderMappings {
	mappings := NewProviderMappings()

	attr, ok := body.Attributes["providers"]
	if !ok {
		return mappings
	}
	obj, ok := attr.Expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return mappings
	}

	for _, item := range obj.Items {
		local, ok := providerKeyFromExpr(item.KeyExpr)
		if !ok {
			continue
		}
		parent, ok := providerKeyFromExpr(item.ValueExpr)
		if !ok {
			continue
		}
		mappings.Insert(local, parent)
	}
	return mappings
}

// providerKeyFromExpr renders an object key or value as a provider key.
// Object keys arrive wrapped in ObjectConsKeyExpr; both sides are
// ultimately traversals like aws or aws.replica.
func providerKeyFromExpr(expr hclsyntax.Expression) (string, bool) {
	if keyExpr, ok := expr.(*hclsyntax.ObjectConsKeyExpr); ok {
		expr = keyExpr.Wrapped
	}
	if st, ok := expr.(*hclsyntax.ScopeTraversalExpr); ok {
		return traversalToKey(st.Traversal), true
	}
	return "", false
}
