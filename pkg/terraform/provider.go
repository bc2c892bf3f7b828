// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"sort"
	"strings"
	"unicode"
)

// Provider is one aws provider configuration found in the root module.
type Provider struct {
	// ConfigKey is "aws" for the default provider, "aws.<alias>" otherwise.
	ConfigKey string

	// Alias is the provider alias; empty for the default provider.
	Alias string

	// RoleARN is the literal assume_role.role_arn expression text, with
	// any interpolation syntax preserved. Empty when not configured.
	RoleARN string
}

// ToPascalCase converts an alias to PascalCase.
//
// If the input contains '_' or '-', each nonempty segment is capitalised
// and the rest lowercased. A single all-lowercase word gets its first rune
// capitalised. Anything already mixed-case (e.g. "DnsAccount") is returned
// unchanged, which makes the function idempotent on PascalCase input.
func ToPascalCase(input string) string {
	if input == "" {
		return ""
	}

	if strings.ContainsAny(input, "_-") {
		var b strings.Builder
		for _, segment := range strings.FieldsFunc(input, func(r rune) bool {
			return r == '_' || r == '-'
		}) {
			runes := []rune(segment)
			b.WriteRune(unicode.ToUpper(runes[0]))
			b.WriteString(strings.ToLower(string(runes[1:])))
		}
		return b.String()
	}

	hasUpper := strings.ContainsFunc(input, unicode.IsUpper)
	if hasUpper {
		return input
	}

	runes := []rune(input)
	return string(unicode.ToUpper(runes[0])) + string(runes[1:])
}

// deployerName appends the "Deployer" suffix to a PascalCase alias,
// normalising an existing "deployer" suffix to canonical casing.
func deployerName(pascalAlias string) string {
	lower := strings.ToLower(pascalAlias)
	if strings.HasSuffix(lower, "deployer") {
		return pascalAlias[:len(pascalAlias)-len("deployer")] + "Deployer"
	}
	return pascalAlias + "Deployer"
}

// OutputName derives the output name for a single provider:
// no alias (or empty) means "DefaultDeployer", otherwise the PascalCase
// alias with a "Deployer" suffix.
func (p Provider) OutputName() string {
	if p.Alias == "" {
		return "DefaultDeployer"
	}
	return deployerName(ToPascalCase(p.Alias))
}

// DeriveGroupName names a group of providers that share one role ARN.
//
// Any aliasless provider in the group wins "DefaultDeployer"; otherwise
// the alphabetically-first alias is converted to PascalCase and suffixed.
func DeriveGroupName(providers []Provider) string {
	aliases := make([]string, 0, len(providers))
	for _, p := range providers {
		if p.Alias == "" {
			return "DefaultDeployer"
		}
		aliases = append(aliases, p.Alias)
	}
	if len(aliases) == 0 {
		return "DefaultDeployer"
	}
	sort.Strings(aliases)
	return deployerName(ToPascalCase(aliases[0]))
}

// GroupByRole groups blocks under their provider's role ARN.
//
// Providers are grouped by exact role_arn string equality, with the empty
// (unconfigured) role as its own group. Each block is assigned through its
// provider config key; a key that matches no provider falls back to the
// group owning the default "aws" key, and when no default provider exists
// either, the block is recorded as unmapped.
func GroupByRole(providers []Provider, blocks []Block) *Config {
	roleToProviders := make(map[string][]Provider)
	keyToRole := make(map[string]string)
	for _, p := range providers {
		roleToProviders[p.RoleARN] = append(roleToProviders[p.RoleARN], p)
		keyToRole[p.ConfigKey] = p.RoleARN
	}

	roleToName := make(map[string]string)
	for role, group := range roleToProviders {
		roleToName[role] = DeriveGroupName(group)
	}

	config := &Config{ProviderGroups: make(map[string]*ProviderGroup)}

	_, hasDefault := keyToRole["aws"]

	for _, block := range blocks {
		role, known := keyToRole[block.ProviderConfigKey]
		if !known {
			if !hasDefault {
				config.UnmappedBlocks = append(config.UnmappedBlocks, block)
				continue
			}
			role = keyToRole["aws"]
		}

		name := roleToName[role]
		group, ok := config.ProviderGroups[name]
		if !ok {
			group = &ProviderGroup{OutputName: name, RoleARN: role}
			config.ProviderGroups[name] = group
		}
		group.Blocks = append(group.Blocks, block)
	}

	return config
}
