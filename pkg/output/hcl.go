// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

import (
	"fmt"
	"strings"
)

// HCLFormatter renders permission sets as a Terraform jsonencode() call,
// suitable for pasting into an aws_iam_policy or inline policy body.
//
// Statement ordering and grouping match the JSON formatter: Deny before
// Allow, services ascending in grouped mode, actions ascending within
// each statement. A single-action statement renders Action as a quoted
// string rather than a one-element list.
type HCLFormatter struct {
	Grouped bool
}

func (f *HCLFormatter) Format(perms *PermissionSets) string {
	statements := buildStatements(perms, f.Grouped)

	var blocks []string
	for _, stmt := range statements {
		blocks = append(blocks, formatStatementBlock(stmt))
	}

	content := "[]"
	if len(blocks) > 0 {
		content = "[\n" + strings.Join(blocks, ",\n") + "\n  ]"
	}

	return fmt.Sprintf("jsonencode({\n  Version = \"2012-10-17\"\n  Statement = %s\n})", content)
}

func (f *HCLFormatter) Extension() string {
	return "hcl"
}

func formatStatementBlock(stmt statement) string {
	return fmt.Sprintf(
		"    {\n      Effect   = %q\n      Action   = %s\n      Resource = \"*\"\n    }",
		stmt.Effect, formatActionList(stmt.Action),
	)
}

// formatActionList renders the Action value: a quoted string for one
// action, an HCL list literal for several.
func formatActionList(actions []string) string {
	if len(actions) == 0 {
		return "[]"
	}
	if len(actions) == 1 {
		return fmt.Sprintf("%q", actions[0])
	}

	quoted := make([]string, len(actions))
	for i, action := range actions {
		quoted[i] = fmt.Sprintf("        %q", action)
	}
	return "[\n" + strings.Join(quoted, ",\n") + "\n      ]"
}
