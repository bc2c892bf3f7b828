// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"sort"
	"strings"
)

// BlockType is the kind of Terraform block a resource declaration uses.
type BlockType string

const (
	BlockResource  BlockType = "resource"
	BlockData      BlockType = "data"
	BlockEphemeral BlockType = "ephemeral"
	BlockAction    BlockType = "action"
)

// String returns the HCL keyword for the block type.
func (b BlockType) String() string {
	return string(b)
}

// PathSet is a set of attribute paths present in a block body. A path is
// a sequence of attribute or sub-block names from the block root, e.g.
// ["vpc", "vpc_id"]. HCL identifiers cannot contain dots, so paths are
// keyed internally by their dot-joined form.
type PathSet struct {
	paths map[string]struct{}
}

// NewPathSet returns an empty path set.
func NewPathSet() *PathSet {
	return &PathSet{paths: make(map[string]struct{})}
}

// Add inserts a path into the set.
func (s *PathSet) Add(path []string) {
	s.paths[strings.Join(path, ".")] = struct{}{}
}

// Contains reports whether the exact path is present.
func (s *PathSet) Contains(path []string) bool {
	_, ok := s.paths[strings.Join(path, ".")]
	return ok
}

// Len returns the number of paths in the set.
func (s *PathSet) Len() int {
	return len(s.paths)
}

// Equal reports set equality.
func (s *PathSet) Equal(other *PathSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for k := range s.paths {
		if _, ok := other.paths[k]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the dot-joined paths in ascending order, for logging.
func (s *PathSet) Sorted() []string {
	out := make([]string, 0, len(s.paths))
	for k := range s.paths {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Block is one AWS resource, data, ephemeral, or action declaration.
type Block struct {
	// Type is the block kind (resource, data, ephemeral, action).
	Type BlockType

	// TypeName is the resource type, e.g. "aws_s3_bucket".
	TypeName string

	// Name is the block label, e.g. "this".
	Name string

	// ProviderConfigKey is the root-level provider key the block resolves
	// to, e.g. "aws" or "aws.dns".
	ProviderConfigKey string

	// PresentAttributes holds every attribute path found in the body.
	PresentAttributes *PathSet

	// Address is the full resource address including any module prefix,
	// e.g. "module.billing.aws_budgets_budget.monthly".
	Address string
}

// ProviderMappings captures the providers = { local = parent } object on a
// module call. Unmapped keys pass through unchanged (implicit inheritance).
type ProviderMappings struct {
	mappings map[string]string
}

// NewProviderMappings returns an empty mapping table.
func NewProviderMappings() *ProviderMappings {
	return &ProviderMappings{mappings: make(map[string]string)}
}

// Insert records a mapping from a module-local key to a parent key.
func (m *ProviderMappings) Insert(localKey, parentKey string) {
	m.mappings[localKey] = parentKey
}

// Resolve maps a module-local provider key to the parent's key, or returns
// the key unchanged when no mapping exists.
func (m *ProviderMappings) Resolve(localKey string) string {
	if parent, ok := m.mappings[localKey]; ok {
		return parent
	}
	return localKey
}

// HasMappings reports whether any explicit mappings were declared.
func (m *ProviderMappings) HasMappings() bool {
	return len(m.mappings) > 0
}

// Each calls fn for every (local, parent) pair.
func (m *ProviderMappings) Each(fn func(localKey, parentKey string)) {
	for local, parent := range m.mappings {
		fn(local, parent)
	}
}

// ModuleContext carries the address prefix and cumulative provider-key
// resolution for one point in the module tree. Contexts are immutable;
// Child derives a new one.
type ModuleContext struct {
	// AddressPrefix is the module path, e.g. "module.infra.module.net".
	AddressPrefix string

	providerKeyToRoot map[string]string
}

// RootContext returns the context for the root module.
func RootContext() *ModuleContext {
	return &ModuleContext{providerKeyToRoot: make(map[string]string)}
}

// Child derives the context for a called module. Each mapped local key is
// resolved through this context so the child maps straight to root keys.
func (c *ModuleContext) Child(moduleName string, mappings *ProviderMappings) *ModuleContext {
	prefix := "module." + moduleName
	if c.AddressPrefix != "" {
		prefix = c.AddressPrefix + "." + prefix
	}

	toRoot := make(map[string]string)
	mappings.Each(func(localKey, parentKey string) {
		toRoot[localKey] = c.ResolveToRoot(parentKey)
	})

	return &ModuleContext{AddressPrefix: prefix, providerKeyToRoot: toRoot}
}

// ResolveToRoot maps a module-local provider key to the root key, or
// returns it unchanged when no mapping applies.
func (c *ModuleContext) ResolveToRoot(localKey string) string {
	if root, ok := c.providerKeyToRoot[localKey]; ok {
		return root
	}
	return localKey
}

// ProviderGroup is the set of blocks deployed under one role ARN.
type ProviderGroup struct {
	// OutputName names the group in output, e.g. "NetworkDeployer".
	OutputName string

	// RoleARN is the literal role_arn text shared by the group's
	// providers; empty when the providers declare no assume_role.
	RoleARN string

	// Blocks are all blocks attributed to this group.
	Blocks []Block
}

// Config is the fully parsed Terraform configuration.
type Config struct {
	// ProviderGroups maps output name to group.
	ProviderGroups map[string]*ProviderGroup

	// UnmappedBlocks are blocks whose provider key matched no provider
	// and no default group existed to absorb them.
	UnmappedBlocks []Block
}
