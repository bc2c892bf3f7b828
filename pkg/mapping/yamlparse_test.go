// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMappingAllowOnly(t *testing.T) {
	mapping, err := ParseMapping([]byte("allow:\n  - s3:CreateBucket\n  - s3:DeleteBucket\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"s3:CreateBucket", "s3:DeleteBucket"}, mapping.Allow)
	assert.Empty(t, mapping.Deny)
	assert.True(t, mapping.Conditional.IsNone())
}

func TestParseMappingWithDeny(t *testing.T) {
	mapping, err := ParseMapping([]byte("allow:\n  - s3:Get*\n  - s3:List*\ndeny:\n  - s3:GetObject\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"s3:Get*", "s3:List*"}, mapping.Allow)
	assert.Equal(t, []string{"s3:GetObject"}, mapping.Deny)
}

func TestParseMappingWithConditional(t *testing.T) {
	mapping, err := ParseMapping([]byte(`
allow:
  - route53:CreateHostedZone
conditional:
  tags:
    - route53:ChangeTagsForResource
`))
	require.NoError(t, err)

	assert.False(t, mapping.Conditional.IsNone())
	resolved := mapping.Conditional.Resolve(pathSet([]string{"tags"}))
	assert.Equal(t, []string{"route53:ChangeTagsForResource"}, resolved)
}

func TestParseMappingNestedConditional(t *testing.T) {
	mapping, err := ParseMapping([]byte(`
conditional:
  vpc:
    vpc_id:
      - route53:AssociateVPCWithHostedZone
`))
	require.NoError(t, err)

	present := pathSet([]string{"vpc"}, []string{"vpc", "vpc_id"})
	assert.Equal(t, []string{"route53:AssociateVPCWithHostedZone"}, mapping.Conditional.Resolve(present))
}

func TestParseMappingNullConditional(t *testing.T) {
	mapping, err := ParseMapping([]byte("allow:\n  - s3:CreateBucket\nconditional:\n"))
	require.NoError(t, err)
	assert.True(t, mapping.Conditional.IsNone())
}

func TestParseMappingSkipsNonStringItems(t *testing.T) {
	mapping, err := ParseMapping([]byte("allow:\n  - s3:CreateBucket\n  - [nested, list]\n  - 42\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s3:CreateBucket"}, mapping.Allow)
}

func TestParseMappingIgnoresUnknownKeys(t *testing.T) {
	mapping, err := ParseMapping([]byte("allow:\n  - s3:CreateBucket\ncomment: reviewed 2024-01\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"s3:CreateBucket"}, mapping.Allow)
}

func TestParseMappingEmptyDocument(t *testing.T) {
	_, err := ParseMapping([]byte(""))
	assert.Error(t, err)
}

func TestParseMappingRootNotMapping(t *testing.T) {
	_, err := ParseMapping([]byte("- just\n- a\n- list\n"))
	assert.Error(t, err)
}

func TestParseMappingInvalidYAML(t *testing.T) {
	_, err := ParseMapping([]byte("{{invalid yaml"))
	assert.Error(t, err)
}

func TestParseMappingConditionalScalar(t *testing.T) {
	_, err := ParseMapping([]byte("conditional: notalistormap\n"))
	assert.Error(t, err)
}

func TestParseMappingMixedConditional(t *testing.T) {
	mapping, err := ParseMapping([]byte(`
allow:
  - s3:CreateBucket
conditional:
  tags:
    - s3:PutBucketTagging
  logging:
    target_bucket:
      - s3:PutBucketLogging
`))
	require.NoError(t, err)

	tags := mapping.Conditional.Resolve(pathSet([]string{"tags"}))
	assert.Contains(t, tags, "s3:PutBucketTagging")

	logging := mapping.Conditional.Resolve(pathSet([]string{"logging"}, []string{"logging", "target_bucket"}))
	assert.Contains(t, logging, "s3:PutBucketLogging")
}
