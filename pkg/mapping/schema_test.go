// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/lppc/pkg/terraform"
)

func pathSet(paths ...[]string) *terraform.PathSet {
	set := terraform.NewPathSet()
	for _, p := range paths {
		set.Add(p)
	}
	return set
}

func TestResolveNone(t *testing.T) {
	assert.Empty(t, NoConditional().Resolve(pathSet([]string{"tags"})))
}

func TestResolveNilReceiver(t *testing.T) {
	var c *ConditionalActions
	assert.True(t, c.IsNone())
	assert.Empty(t, c.Resolve(pathSet()))
}

func TestResolveLeafAtRoot(t *testing.T) {
	leaf := ConditionalLeaf([]string{"s3:PutBucketTagging"})

	// A root-level leaf matches the empty path.
	present := pathSet([]string{})
	assert.Equal(t, []string{"s3:PutBucketTagging"}, leaf.Resolve(present))

	assert.Empty(t, leaf.Resolve(pathSet([]string{"other"})))
}

func TestResolveSingleLevel(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"tags": ConditionalLeaf([]string{"s3:PutBucketTagging"}),
	})

	assert.Equal(t, []string{"s3:PutBucketTagging"}, cond.Resolve(pathSet([]string{"tags"})))
	assert.Empty(t, cond.Resolve(pathSet([]string{"versioning"})))
}

func TestResolveNestedRequiresFullPath(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"vpc": ConditionalNode(map[string]*ConditionalActions{
			"vpc_id": ConditionalLeaf([]string{"route53:AssociateVPCWithHostedZone"}),
		}),
	})

	both := pathSet([]string{"vpc"}, []string{"vpc", "vpc_id"})
	assert.Equal(t, []string{"route53:AssociateVPCWithHostedZone"}, cond.Resolve(both))
}

func TestResolveNestedMissingIntermediate(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"vpc": ConditionalNode(map[string]*ConditionalActions{
			"vpc_id": ConditionalLeaf([]string{"route53:AssociateVPCWithHostedZone"}),
		}),
	})

	// vpc.vpc_id present but the intermediate vpc path is not.
	onlyLeaf := pathSet([]string{"vpc", "vpc_id"})
	assert.Empty(t, cond.Resolve(onlyLeaf))
}

func TestResolveMultipleBranches(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"tags":       ConditionalLeaf([]string{"s3:PutBucketTagging"}),
		"versioning": ConditionalLeaf([]string{"s3:PutBucketVersioning"}),
	})

	resolved := cond.Resolve(pathSet([]string{"tags"}, []string{"versioning"}))
	assert.ElementsMatch(t, []string{"s3:PutBucketTagging", "s3:PutBucketVersioning"}, resolved)
}

func TestResolveDeeplyNested(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"level1": ConditionalNode(map[string]*ConditionalActions{
			"level2": ConditionalNode(map[string]*ConditionalActions{
				"level3": ConditionalLeaf([]string{"action:DeepAction"}),
			}),
		}),
	})

	present := pathSet(
		[]string{"level1"},
		[]string{"level1", "level2"},
		[]string{"level1", "level2", "level3"},
	)
	assert.Equal(t, []string{"action:DeepAction"}, cond.Resolve(present))
}

func TestResolveSiblingLeaves(t *testing.T) {
	cond := ConditionalNode(map[string]*ConditionalActions{
		"vpc": ConditionalNode(map[string]*ConditionalActions{
			"vpc_id":     ConditionalLeaf([]string{"route53:AssociateVPCWithHostedZone"}),
			"vpc_region": ConditionalLeaf([]string{"route53:DisassociateVPCFromHostedZone"}),
		}),
	})

	one := cond.Resolve(pathSet([]string{"vpc"}, []string{"vpc", "vpc_id"}))
	assert.Len(t, one, 1)

	both := cond.Resolve(pathSet(
		[]string{"vpc"},
		[]string{"vpc", "vpc_id"},
		[]string{"vpc", "vpc_region"},
	))
	assert.Len(t, both, 2)
}
