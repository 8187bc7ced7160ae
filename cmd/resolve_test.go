package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugojosefson/polymer/pkg/manifest"
)

func setupManifests(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"build.json":     `["polymer.js", "lib/build.json", "lib/extra.yaml"]`,
		"lib/build.json": `["base.js", "../polymer.js"]`,
		"lib/extra.yaml": "- extra.js\n",
		"polymer.js":     "",
		"lib/base.js":    "",
		"lib/extra.js":   "",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	return dir
}

func TestResolveFiles(t *testing.T) {
	dir := setupManifests(t)

	tree, err := resolveFiles(filepath.Join(dir, "build.json"), resolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "polymer.js"),
		filepath.Join(dir, "lib", "base.js"),
		filepath.Join(dir, "lib", "extra.yaml"),
	}, tree.Files.Paths())

	tree, err = resolveFiles(filepath.Join(dir, "build.json"), resolveOptions{yaml: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "polymer.js"),
		filepath.Join(dir, "lib", "base.js"),
		filepath.Join(dir, "lib", "extra.js"),
	}, tree.Files.Paths())
	assert.Equal(t, 3, tree.Manifests.Len())
}

func TestResolveFiles_Check(t *testing.T) {
	dir := setupManifests(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "lib", "base.js")))

	_, err := resolveFiles(filepath.Join(dir, "build.json"), resolveOptions{yaml: true})
	assert.NoError(t, err)

	_, err = resolveFiles(filepath.Join(dir, "build.json"), resolveOptions{yaml: true, check: true})
	assert.ErrorIs(t, err, manifest.ErrNotFound)
}

func TestPrintFiles(t *testing.T) {
	files := []string{filepath.FromSlash("/src/a.js"), filepath.FromSlash("/src/b.js")}

	out := bytes.Buffer{}
	require.NoError(t, printFiles(&out, files, resolveOptions{}))
	assert.Equal(t, strings.Join(files, "\n")+"\n", out.String())

	out.Reset()
	require.NoError(t, printFiles(&out, files, resolveOptions{json: true}))

	var decoded []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, files, decoded)
}

func TestResolveCommand(t *testing.T) {
	dir := setupManifests(t)

	out := bytes.Buffer{}
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"resolve", "--json", filepath.Join(dir, "lib", "build.json")})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	var decoded []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "base.js"),
		filepath.Join(dir, "polymer.js"),
	}, decoded)
}

func TestResolveCommand_ReadsProjectConfig(t *testing.T) {
	dir := setupManifests(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "polybuild.toml"), []byte("[log]\nlevel = \"loud\"\n"), 0644))

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"resolve", filepath.Join(dir, "lib", "build.json")})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}
