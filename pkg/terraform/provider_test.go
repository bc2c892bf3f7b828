// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package terraform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPascalCase(t *testing.T) {
	cases := map[string]string{
		"workload_network_test": "WorkloadNetworkTest",
		"my-role-name":          "MyRoleName",
		"NETWORK_DEPLOYER":      "NetworkDeployer",
		"mixed_case-example":    "MixedCaseExample",
		"double__underscore":    "DoubleUnderscore",
		"_leading":              "Leading",
		"trailing_":             "Trailing",
		"network":               "Network",
		"dns":                   "Dns",
		"NetworkDeployer":       "NetworkDeployer",
		"DnsAccount":            "DnsAccount",
		"NETWORK":               "NETWORK",
		"":                      "",
	}
	for input, want := range cases {
		assert.Equal(t, want, ToPascalCase(input), input)
	}
}

func TestToPascalCaseIdempotent(t *testing.T) {
	for _, input := range []string{"NetworkDeployer", "DnsAccount", "Network"} {
		assert.Equal(t, input, ToPascalCase(ToPascalCase(input)))
	}
}

func TestProviderOutputName(t *testing.T) {
	cases := []struct {
		alias string
		want  string
	}{
		{"", "DefaultDeployer"},
		{"network", "NetworkDeployer"},
		{"workload_network_test", "WorkloadNetworkTestDeployer"},
		{"my-application", "MyApplicationDeployer"},
		{"network_deployer", "NetworkDeployer"},
		{"NetworkDeployer", "NetworkDeployer"},
	}
	for _, c := range cases {
		p := Provider{ConfigKey: "aws", Alias: c.alias}
		assert.Equal(t, c.want, p.OutputName(), c.alias)
	}
}

func TestDeriveGroupNameAliaslessWins(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws.west", Alias: "west"},
		{ConfigKey: "aws"},
	}
	assert.Equal(t, "DefaultDeployer", DeriveGroupName(providers))
}

func TestDeriveGroupNameAlphabeticallyFirstAlias(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws.zebra", Alias: "zebra"},
		{ConfigKey: "aws.alpha", Alias: "alpha"},
	}
	assert.Equal(t, "AlphaDeployer", DeriveGroupName(providers))
}

func TestGroupByRoleSameRoleSharesGroup(t *testing.T) {
	arn := "arn:aws:iam::1:role/R"
	providers := []Provider{
		{ConfigKey: "aws", RoleARN: arn},
		{ConfigKey: "aws.west", Alias: "west", RoleARN: arn},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_s3_bucket", Name: "a", ProviderConfigKey: "aws", PresentAttributes: NewPathSet(), Address: "aws_s3_bucket.a"},
		{Type: BlockResource, TypeName: "aws_s3_bucket", Name: "b", ProviderConfigKey: "aws.west", PresentAttributes: NewPathSet(), Address: "aws_s3_bucket.b"},
	}

	config := GroupByRole(providers, blocks)

	require.Len(t, config.ProviderGroups, 1)
	group := config.ProviderGroups["DefaultDeployer"]
	require.NotNil(t, group)
	assert.Equal(t, arn, group.RoleARN)
	assert.Len(t, group.Blocks, 2)
}

func TestGroupByRoleDistinctRoles(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws.network", Alias: "network", RoleARN: "arn:aws:iam::1:role/Net"},
		{ConfigKey: "aws.dns", Alias: "dns", RoleARN: "arn:aws:iam::2:role/Dns"},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_vpc", Name: "v", ProviderConfigKey: "aws.network", PresentAttributes: NewPathSet(), Address: "aws_vpc.v"},
		{Type: BlockResource, TypeName: "aws_route53_zone", Name: "z", ProviderConfigKey: "aws.dns", PresentAttributes: NewPathSet(), Address: "aws_route53_zone.z"},
	}

	config := GroupByRole(providers, blocks)

	require.Len(t, config.ProviderGroups, 2)
	assert.Len(t, config.ProviderGroups["NetworkDeployer"].Blocks, 1)
	assert.Len(t, config.ProviderGroups["DnsDeployer"].Blocks, 1)
	assert.Equal(t, "aws_vpc.v", config.ProviderGroups["NetworkDeployer"].Blocks[0].Address)
}

func TestGroupByRoleBlockInExactlyOneGroup(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws", RoleARN: "arn:a"},
		{ConfigKey: "aws.x", Alias: "x", RoleARN: "arn:b"},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_vpc", Name: "v", ProviderConfigKey: "aws.x", PresentAttributes: NewPathSet(), Address: "aws_vpc.v"},
	}

	config := GroupByRole(providers, blocks)

	total := 0
	for _, group := range config.ProviderGroups {
		for _, b := range group.Blocks {
			if b.Address == "aws_vpc.v" {
				total++
			}
		}
	}
	assert.Equal(t, 1, total)
}

func TestGroupByRoleUnknownKeyFallsBackToDefault(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws", RoleARN: "arn:a"},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_vpc", Name: "v", ProviderConfigKey: "aws.ghost", PresentAttributes: NewPathSet(), Address: "aws_vpc.v"},
	}

	config := GroupByRole(providers, blocks)

	require.Len(t, config.ProviderGroups, 1)
	assert.Len(t, config.ProviderGroups["DefaultDeployer"].Blocks, 1)
	assert.Empty(t, config.UnmappedBlocks)
}

func TestGroupByRoleUnknownKeyWithoutDefaultIsUnmapped(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws.network", Alias: "network", RoleARN: "arn:a"},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_vpc", Name: "v", ProviderConfigKey: "aws.ghost", PresentAttributes: NewPathSet(), Address: "aws_vpc.v"},
	}

	config := GroupByRole(providers, blocks)

	assert.Empty(t, config.ProviderGroups)
	require.Len(t, config.UnmappedBlocks, 1)
	assert.Equal(t, "aws_vpc.v", config.UnmappedBlocks[0].Address)
}

func TestGroupByRoleNoRoleARNGroupsTogether(t *testing.T) {
	providers := []Provider{
		{ConfigKey: "aws"},
		{ConfigKey: "aws.extra", Alias: "extra"},
	}
	blocks := []Block{
		{Type: BlockResource, TypeName: "aws_s3_bucket", Name: "x", ProviderConfigKey: "aws", PresentAttributes: NewPathSet(), Address: "aws_s3_bucket.x"},
		{Type: BlockResource, TypeName: "aws_s3_bucket", Name: "y", ProviderConfigKey: "aws.extra", PresentAttributes: NewPathSet(), Address: "aws_s3_bucket.y"},
	}

	config := GroupByRole(providers, blocks)

	require.Len(t, config.ProviderGroups, 1)
	assert.Len(t, config.ProviderGroups["DefaultDeployer"].Blocks, 2)
}
