// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lppc/pkg/mapping"
	"github.com/kraklabs/lppc/pkg/terraform"
)

func testResult() *mapping.Result {
	compute := mapping.NewGroupPermissions()
	compute.Allow["ec2:DescribeInstances"] = struct{}{}
	compute.Allow["ec2:RunInstances"] = struct{}{}

	storage := mapping.NewGroupPermissions()
	storage.Allow["s3:CreateBucket"] = struct{}{}
	storage.Deny["s3:GetObject"] = struct{}{}

	return &mapping.Result{
		Groups: map[string]*mapping.GroupPermissions{
			"ComputeDeployer": compute,
			"StorageDeployer": storage,
		},
	}
}

func newTestWriter(format Format, outputDir string) (*Writer, *bytes.Buffer, *bytes.Buffer) {
	w := NewWriter(format, outputDir)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	w.Stdout = stdout
	w.Stderr = stderr
	return w, stdout, stderr
}

func TestWriterStdoutHeadersSorted(t *testing.T) {
	w, stdout, _ := newTestWriter(FormatPlain, "")

	require.NoError(t, w.Write(testResult()))

	out := stdout.String()
	computePos := strings.Index(out, "----------- ComputeDeployer -----------")
	storagePos := strings.Index(out, "----------- StorageDeployer -----------")
	assert.GreaterOrEqual(t, computePos, 0)
	assert.GreaterOrEqual(t, storagePos, 0)
	assert.Less(t, computePos, storagePos)
}

func TestWriterStdoutDeterministic(t *testing.T) {
	w1, stdout1, _ := newTestWriter(FormatJSONGrouped, "")
	w2, stdout2, _ := newTestWriter(FormatJSONGrouped, "")

	require.NoError(t, w1.Write(testResult()))
	require.NoError(t, w2.Write(testResult()))
	assert.Equal(t, stdout1.String(), stdout2.String())
}

func TestWriterDirectoryCreatesFilePerGroup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w, _, _ := newTestWriter(FormatJSON, dir)

	require.NoError(t, w.Write(testResult()))

	computeFile := filepath.Join(dir, "ComputeDeployer.json")
	storageFile := filepath.Join(dir, "StorageDeployer.json")
	assert.FileExists(t, computeFile)
	assert.FileExists(t, storageFile)

	content, err := os.ReadFile(storageFile)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(content, &doc))
	assert.Equal(t, "2012-10-17", doc["Version"])

	statements := doc["Statement"].([]any)
	require.Len(t, statements, 2)
	assert.Equal(t, "Deny", statements[0].(map[string]any)["Effect"])
	assert.Equal(t, "Allow", statements[1].(map[string]any)["Effect"])
}

func TestWriterDirectoryFilesHaveNoHeaders(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := newTestWriter(FormatHCL, dir)

	require.NoError(t, w.Write(testResult()))

	content, err := os.ReadFile(filepath.Join(dir, "ComputeDeployer.hcl"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "-----------")
	assert.True(t, strings.HasPrefix(string(content), "jsonencode({"))
}

func TestWriterDirectoryExtensionPerFormat(t *testing.T) {
	cases := map[Format]string{
		FormatPlain:       "txt",
		FormatJSON:        "json",
		FormatJSONGrouped: "json",
		FormatHCL:         "hcl",
		FormatHCLGrouped:  "hcl",
	}
	for format, ext := range cases {
		dir := t.TempDir()
		w, _, _ := newTestWriter(format, dir)
		require.NoError(t, w.Write(testResult()))
		assert.FileExists(t, filepath.Join(dir, "ComputeDeployer."+ext), format)
	}
}

func TestWriterRejectsTraversalGroupName(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := newTestWriter(FormatJSON, dir)

	evil := mapping.NewGroupPermissions()
	evil.Allow["s3:GetObject"] = struct{}{}
	result := &mapping.Result{Groups: map[string]*mapping.GroupPermissions{"..": evil}}

	assert.Error(t, w.Write(result))
}

func TestWriterSanitisesSeparators(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := newTestWriter(FormatJSON, dir)

	group := mapping.NewGroupPermissions()
	group.Allow["s3:GetObject"] = struct{}{}
	result := &mapping.Result{Groups: map[string]*mapping.GroupPermissions{`Foo/Bar\Baz`: group}}

	require.NoError(t, w.Write(result))
	assert.FileExists(t, filepath.Join(dir, "Foo_Bar_Baz.json"))
}

func TestWriterEmptyResultWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := newTestWriter(FormatJSON, dir)

	require.NoError(t, w.Write(&mapping.Result{Groups: map[string]*mapping.GroupPermissions{}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteMissingMappings(t *testing.T) {
	w, _, stderr := newTestWriter(FormatPlain, "")

	result := &mapping.Result{
		Groups: map[string]*mapping.GroupPermissions{},
		MissingMappings: []mapping.MissingMapping{
			{Kind: terraform.BlockResource, TypeName: "aws_unknown", ExpectedPath: "mappings/aws/resource/aws_unknown.yaml"},
		},
	}

	w.WriteMissingMappings(result)

	out := stderr.String()
	assert.Contains(t, out, "Warning: No mapping files found")
	assert.Contains(t, out, "resource.aws_unknown")
	assert.Contains(t, out, "mappings/aws/resource/aws_unknown.yaml")
}

func TestWriteMissingMappingsEmptySilent(t *testing.T) {
	w, _, stderr := newTestWriter(FormatPlain, "")
	w.WriteMissingMappings(&mapping.Result{Groups: map[string]*mapping.GroupPermissions{}})
	assert.Empty(t, stderr.String())
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"NetworkDeployer", "NetworkDeployer", true},
		{"MyRole-Deployer", "MyRole-Deployer", true},
		{"foo/bar", "foo_bar", true},
		{`foo\bar`, "foo_bar", true},
		{"../etc/passwd", "_etc_passwd", true},
		{".hidden", "hidden", true},
		{"..", "", false},
		{"foo..bar", "", false},
		{"", "", false},
		{"   ", "", false},
		{"...", "", false},
	}
	for _, c := range cases {
		got, ok := sanitizeFilename(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}
