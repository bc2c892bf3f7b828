// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/kraklabs/lppc/pkg/terraform"
)

// GroupPermissions is the resolved permission sets for one provider group.
// Allow and deny are independent; an action may appear in both.
type GroupPermissions struct {
	Allow map[string]struct{}
	Deny  map[string]struct{}
}

// NewGroupPermissions returns empty permission sets.
func NewGroupPermissions() *GroupPermissions {
	return &GroupPermissions{
		Allow: make(map[string]struct{}),
		Deny:  make(map[string]struct{}),
	}
}

// IsEmpty reports whether neither set holds an action.
func (g *GroupPermissions) IsEmpty() bool {
	return len(g.Allow) == 0 && len(g.Deny) == 0
}

// MissingMapping records a block type with no mapping file, once per
// (kind, type name) across the run.
type MissingMapping struct {
	Kind         terraform.BlockType
	TypeName     string
	ExpectedPath string
}

// Result is the outcome of matching an entire configuration.
type Result struct {
	// Groups maps output name to the resolved permission sets. Groups
	// that resolved to nothing are omitted.
	Groups map[string]*GroupPermissions

	// MissingMappings lists block types without mapping files, unique by
	// (kind, type name), in first-seen order.
	MissingMappings []MissingMapping
}

// Matcher resolves Terraform blocks into IAM actions via a Loader.
type Matcher struct {
	loader *Loader
}

// NewMatcher creates a matcher backed by the given loader.
func NewMatcher(loader *Loader) *Matcher {
	return &Matcher{loader: loader}
}

// Resolve walks every group in the configuration and unions the actions
// of its blocks.
//
// For each block the mapping file contributes its allow entries to the
// group's allow set, its deny entries to the deny set, and its resolved
// conditional actions to the allow set. Conditional actions never deny.
// Blocks without a mapping file are recorded once per (kind, type name).
//
// Group enumeration is sorted so repeated runs report missing mappings in
// the same order.
func (m *Matcher) Resolve(config *terraform.Config) (*Result, error) {
	result := &Result{Groups: make(map[string]*GroupPermissions)}
	seen := make(map[string]struct{})

	names := make([]string, 0, len(config.ProviderGroups))
	for name := range config.ProviderGroups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := config.ProviderGroups[name]
		perms := NewGroupPermissions()

		for _, block := range group.Blocks {
			if err := m.matchBlock(block, perms, seen, result); err != nil {
				return nil, err
			}
		}

		if !perms.IsEmpty() {
			result.Groups[name] = perms
		}
	}

	for _, block := range config.UnmappedBlocks {
		slog.Warn("matcher.unmapped_block", "address", block.Address)
	}

	return result, nil
}

func (m *Matcher) matchBlock(block terraform.Block, perms *GroupPermissions, seen map[string]struct{}, result *Result) error {
	provider := ExtractProvider(block.TypeName)
	if provider == "" {
		provider = "unknown"
	}

	mapping, err := m.loader.Load(provider, block.Type, block.TypeName)
	if err != nil {
		return err
	}

	if mapping == nil {
		typeKey := block.Type.String() + "/" + block.TypeName
		if _, dup := seen[typeKey]; !dup {
			seen[typeKey] = struct{}{}
			result.MissingMappings = append(result.MissingMappings, MissingMapping{
				Kind:     block.Type,
				TypeName: block.TypeName,
				ExpectedPath: fmt.Sprintf(
					"mappings/%s/%s/%s.yaml", provider, block.Type, block.TypeName,
				),
			})
		}
		return nil
	}

	for _, action := range mapping.Allow {
		perms.Allow[action] = struct{}{}
	}
	for _, action := range mapping.Deny {
		perms.Deny[action] = struct{}{}
	}

	conditional := mapping.Conditional.Resolve(block.PresentAttributes)
	for _, action := range conditional {
		perms.Allow[action] = struct{}{}
	}

	slog.Debug("matcher.block_resolved",
		"address", block.Address,
		"allow", len(mapping.Allow),
		"deny", len(mapping.Deny),
		"conditional", len(conditional),
	)
	return nil
}
