// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHCLWrapsJsonencode(t *testing.T) {
	f := &HCLFormatter{}
	out := f.Format(&PermissionSets{Allow: set("s3:CreateBucket"), Deny: set()})

	assert.True(t, strings.HasPrefix(out, "jsonencode({"))
	assert.True(t, strings.HasSuffix(out, "})"))
	assert.Contains(t, out, `Version = "2012-10-17"`)
	assert.Contains(t, out, `Resource = "*"`)
}

func TestHCLSingleActionRendersString(t *testing.T) {
	f := &HCLFormatter{}
	out := f.Format(&PermissionSets{Allow: set("s3:CreateBucket"), Deny: set()})

	assert.Contains(t, out, `Action   = "s3:CreateBucket"`)
}

func TestHCLMultipleActionsRenderList(t *testing.T) {
	f := &HCLFormatter{}
	out := f.Format(&PermissionSets{Allow: set("s3:CreateBucket", "s3:DeleteBucket"), Deny: set()})

	assert.Contains(t, out, `"s3:CreateBucket"`)
	assert.Contains(t, out, `"s3:DeleteBucket"`)
	assert.Contains(t, out, "[")
	// Sorted ascending.
	assert.Less(t,
		strings.Index(out, "s3:CreateBucket"),
		strings.Index(out, "s3:DeleteBucket"),
	)
}

func TestHCLDenyBeforeAllow(t *testing.T) {
	f := &HCLFormatter{}
	out := f.Format(&PermissionSets{
		Allow: set("s3:Get*"),
		Deny:  set("s3:GetObject"),
	})

	denyPos := strings.Index(out, `Effect   = "Deny"`)
	allowPos := strings.Index(out, `Effect   = "Allow"`)
	assert.GreaterOrEqual(t, denyPos, 0)
	assert.GreaterOrEqual(t, allowPos, 0)
	assert.Less(t, denyPos, allowPos)
}

func TestHCLEmptyStatementList(t *testing.T) {
	f := &HCLFormatter{}
	out := f.Format(&PermissionSets{Allow: set(), Deny: set()})
	assert.Contains(t, out, "Statement = []")
}

func TestHCLGroupedServicesAscending(t *testing.T) {
	f := &HCLFormatter{Grouped: true}
	out := f.Format(&PermissionSets{
		Allow: set("s3:CreateBucket", "ec2:RunInstances"),
		Deny:  set(),
	})

	assert.Less(t,
		strings.Index(out, "ec2:RunInstances"),
		strings.Index(out, "s3:CreateBucket"),
	)
}

func TestHCLDeterministic(t *testing.T) {
	f := &HCLFormatter{Grouped: true}
	perms := &PermissionSets{
		Allow: set("s3:CreateBucket", "ec2:RunInstances"),
		Deny:  set("s3:GetObject"),
	}
	assert.Equal(t, f.Format(perms), f.Format(perms))
}

func TestHCLExtension(t *testing.T) {
	assert.Equal(t, "hcl", (&HCLFormatter{}).Extension())
}
