// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

import (
	"encoding/json"
)

// policyDocument is an AWS IAM policy document.
type policyDocument struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

// statement is one policy statement. Resource is always the wildcard;
// narrowing to concrete ARNs is left to manual review.
type statement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

// JSONFormatter renders permission sets as an IAM policy document.
//
// Flat mode emits at most one statement per effect; grouped mode emits
// one statement per service prefix, services ascending. Deny statements
// always precede Allow statements.
type JSONFormatter struct {
	Grouped bool
}

func (f *JSONFormatter) Format(perms *PermissionSets) string {
	doc := policyDocument{
		Version:   "2012-10-17",
		Statement: buildStatements(perms, f.Grouped),
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		// The document is plain strings; marshalling cannot fail.
		panic(err)
	}
	return string(out)
}

func (f *JSONFormatter) Extension() string {
	return "json"
}

// buildStatements assembles the statement list shared by the JSON and
// HCL formatters: Deny before Allow, empty sets omitted.
func buildStatements(perms *PermissionSets, grouped bool) []statement {
	statements := []statement{}
	for _, effect := range []struct {
		name string
		set  map[string]struct{}
	}{
		{"Deny", perms.Deny},
		{"Allow", perms.Allow},
	} {
		if len(effect.set) == 0 {
			continue
		}
		if grouped {
			services, groups := groupByService(effect.set)
			for _, service := range services {
				statements = append(statements, statement{
					Effect:   effect.name,
					Action:   groups[service],
					Resource: "*",
				})
			}
		} else {
			statements = append(statements, statement{
				Effect:   effect.name,
				Action:   sortedActions(effect.set),
				Resource: "*",
			})
		}
	}
	return statements
}
