// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/lppc/internal/errors"
)

// ParseMapping parses YAML mapping file content into an ActionMapping.
//
// The document root must be a mapping. Recognised keys are "allow" and
// "deny" (sequences of strings; non-string items are skipped) and
// "conditional" (a recursive trie: sequences are leaves, mappings are
// nested nodes, null is empty). Unknown keys are ignored.
//
// The conditional structure is schema-free and nests to arbitrary depth,
// so parsing walks yaml.Node kinds instead of decoding into a struct.
func ParseMapping(content []byte) (*ActionMapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, errors.NewParseError("Invalid mapping YAML", "YAML parsing failed", "", err)
	}

	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errors.NewParseError("Invalid mapping YAML", "empty YAML document", "", nil)
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.NewParseError("Invalid mapping YAML", "root document must be a mapping", "", nil)
	}

	mapping := &ActionMapping{Conditional: NoConditional()}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			continue
		}
		switch key.Value {
		case "allow":
			mapping.Allow = stringSequence(value)
		case "deny":
			mapping.Deny = stringSequence(value)
		case "conditional":
			cond, err := parseConditional(value)
			if err != nil {
				return nil, err
			}
			mapping.Conditional = cond
		}
	}

	return mapping, nil
}

// stringSequence collects the string items of a sequence node, skipping
// anything that is not a plain string scalar.
func stringSequence(node *yaml.Node) []string {
	if node.Kind != yaml.SequenceNode {
		return nil
	}
	var out []string
	for _, item := range node.Content {
		if item.Kind == yaml.ScalarNode && item.Tag == "!!str" {
			out = append(out, item.Value)
		}
	}
	return out
}

// parseConditional walks a conditional node: a sequence becomes a leaf of
// actions, a mapping becomes a nested node (non-string keys skipped), and
// null becomes the empty node.
func parseConditional(node *yaml.Node) (*ConditionalActions, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		return ConditionalLeaf(stringSequence(node)), nil

	case yaml.MappingNode:
		children := make(map[string]*ConditionalActions)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Kind != yaml.ScalarNode || key.Tag != "!!str" {
				continue
			}
			child, err := parseConditional(value)
			if err != nil {
				return nil, err
			}
			children[key.Value] = child
		}
		return ConditionalNode(children), nil

	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return NoConditional(), nil
		}
	case 0:
		return NoConditional(), nil
	}

	return nil, errors.NewParseError(
		"Invalid mapping YAML",
		fmt.Sprintf("expected sequence or mapping in conditional, got %v", node.Kind),
		"",
		nil,
	)
}
