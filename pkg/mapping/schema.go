// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"github.com/kraklabs/lppc/pkg/terraform"
)

// ActionMapping is one parsed YAML mapping file.
type ActionMapping struct {
	// Allow actions are always required for the block type.
	Allow []string

	// Deny actions are explicitly denied for the block type.
	Deny []string

	// Conditional actions depend on attribute presence. Resolved actions
	// always land in the allow set.
	Conditional *ConditionalActions
}

// conditionalKind discriminates the ConditionalActions sum type.
type conditionalKind int

const (
	conditionalNone conditionalKind = iota
	conditionalActions
	conditionalNested
)

// ConditionalActions is a recursive trie keyed by attribute names. A node
// is either empty, a leaf holding actions, or a map of child nodes. Leaves
// contribute their actions only when every path segment down to them is
// present on the block.
type ConditionalActions struct {
	kind    conditionalKind
	actions []string
	nested  map[string]*ConditionalActions
}

// NoConditional returns the empty node.
func NoConditional() *ConditionalActions {
	return &ConditionalActions{kind: conditionalNone}
}

// ConditionalLeaf returns a leaf node holding actions.
func ConditionalLeaf(actions []string) *ConditionalActions {
	return &ConditionalActions{kind: conditionalActions, actions: actions}
}

// ConditionalNode returns a nested node with the given children.
func ConditionalNode(children map[string]*ConditionalActions) *ConditionalActions {
	return &ConditionalActions{kind: conditionalNested, nested: children}
}

// IsNone reports whether the node is empty.
func (c *ConditionalActions) IsNone() bool {
	return c == nil || c.kind == conditionalNone
}

// Resolve returns the actions whose full attribute path is present.
func (c *ConditionalActions) Resolve(present *terraform.PathSet) []string {
	return c.resolveAt(nil, present)
}

func (c *ConditionalActions) resolveAt(currentPath []string, present *terraform.PathSet) []string {
	if c == nil {
		return nil
	}

	switch c.kind {
	case conditionalActions:
		if present.Contains(currentPath) {
			return append([]string(nil), c.actions...)
		}
		return nil

	case conditionalNested:
		var result []string
		for key, child := range c.nested {
			childPath := append(append([]string(nil), currentPath...), key)
			if !present.Contains(childPath) {
				continue
			}
			result = append(result, child.resolveAt(childPath, present)...)
		}
		return result

	default:
		return nil
	}
}
