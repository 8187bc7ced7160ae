package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestResolve_FlatManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"build.json": `["a.js", "lib/b.js", "../c.js"]`,
	})

	files, err := NewResolver().Resolve(filepath.Join(dir, "build.json"))
	require.NoError(t, err)

	expected := NewFileSet(
		filepath.Join(dir, "a.js"),
		filepath.Join(dir, "lib", "b.js"),
		filepath.Join(filepath.Dir(dir), "c.js"),
	)
	assert.True(t, expected.Equal(files), "got %v", files.Paths())
}

func TestResolve_NestedManifestIsRelativeToItsOwnDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"build.json":         `["boot.js", "src/lib/build.json", "polymer.js"]`,
		"src/lib/build.json": `["dom.js", "../shared.js"]`,
	})

	paths, err := Resolve(filepath.Join(dir, "build.json"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "boot.js"),
		filepath.Join(dir, "src", "lib", "dom.js"),
		filepath.Join(dir, "src", "shared.js"),
		filepath.Join(dir, "polymer.js"),
	}, paths)
}

func TestResolve_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json": `["x.js", "b.json"]`,
		"b.json": `["y.js", "x.js"]`,
	})

	files, err := NewResolver().Resolve(filepath.Join(dir, "a.json"))
	require.NoError(t, err)

	assert.Equal(t, 2, files.Len())
	assert.True(t, files.Contains(filepath.Join(dir, "x.js")))
	assert.True(t, files.Contains(filepath.Join(dir, "y.js")))
}

func TestResolve_DiamondIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"root.json":   `["left.json", "right.json"]`,
		"left.json":   `["left.js", "common.json"]`,
		"right.json":  `["common.json", "right.js"]`,
		"common.json": `["common.js"]`,
	})

	tree, err := NewResolver().ResolveTree(filepath.Join(dir, "root.json"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "left.js"),
		filepath.Join(dir, "common.js"),
		filepath.Join(dir, "right.js"),
	}, tree.Files.Paths())
	assert.Equal(t, 4, tree.Manifests.Len())
}

func TestResolve_EmptyManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"empty.json": `[]`})

	files, err := NewResolver().Resolve(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, files.Len())
}

func TestResolve_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json": `["x.js", "b.json", "z.js"]`,
		"b.json": `["y.js", "x.js"]`,
	})
	path := filepath.Join(dir, "a.json")

	resolver := NewResolver()
	first, err := resolver.Resolve(path)
	require.NoError(t, err)
	second, err := resolver.Resolve(path)
	require.NoError(t, err)
	fresh, err := NewResolver().Resolve(path)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.True(t, first.Equal(fresh))
}

func TestResolve_SelfReference(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.json": `["a.json"]`})
	path := filepath.Join(dir, "a.json")

	_, err := NewResolver().Resolve(path)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle), "expected CycleError, got %v", err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, []string{path, path}, cycle.Chain)
}

func TestResolve_MutualReference(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json": `["x.js", "b.json"]`,
		"b.json": `["y.js", "a.json"]`,
	})

	_, err := NewResolver().Resolve(filepath.Join(dir, "a.json"))

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "a.json"),
	}, cycle.Chain)
}

func TestResolve_MissingRootManifest(t *testing.T) {
	_, err := NewResolver().Resolve(filepath.Join(t.TempDir(), "missing.json"))

	var notFound *FileNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, notFound.Manifest)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve_MissingNestedManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.json": `["x.js", "gone.json"]`})

	_, err := NewResolver().Resolve(filepath.Join(dir, "a.json"))

	var notFound *FileNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, filepath.Join(dir, "gone.json"), notFound.Path)
	assert.Equal(t, filepath.Join(dir, "a.json"), notFound.Manifest)
}

func TestResolve_MissingLeafOnlyFailsWithLeafCheck(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json":     `["present.js", "absent.js"]`,
		"present.js": "",
	})
	path := filepath.Join(dir, "a.json")

	files, err := NewResolver().Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, 2, files.Len())

	_, err = NewResolver(WithLeafCheck(true)).Resolve(path)
	var notFound *FileNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, filepath.Join(dir, "absent.js"), notFound.Path)
}

func TestResolve_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `["a.js",`},
		{"object", `{"files": ["a.js"]}`},
		{"null", `null`},
		{"number entry", `["a.js", 4]`},
		{"empty file", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{"build.json": tt.content})

			_, err := NewResolver().Resolve(filepath.Join(dir, "build.json"))

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.ErrorIs(t, err, ErrParse)
			assert.Equal(t, filepath.Join(dir, "build.json"), parseErr.Path)
		})
	}
}

func TestResolve_NestedParseErrorAbortsEverything(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json": `["x.js", "b.json"]`,
		"b.json": `{}`,
	})

	files, err := NewResolver().Resolve(filepath.Join(dir, "a.json"))
	assert.Nil(t, files)
	assert.ErrorIs(t, err, ErrParse)
}

func TestResolve_YAMLManifests(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"build.yaml":     "- a.js\n- lib/build.yml\n- lib/build.json\n",
		"lib/build.yml":  "- b.js\n",
		"lib/build.json": `["c.js"]`,
	})

	files, err := NewResolver(WithSuffixes(".json", ".yaml", ".yml")).Resolve(filepath.Join(dir, "build.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.js"),
		filepath.Join(dir, "lib", "b.js"),
		filepath.Join(dir, "lib", "c.js"),
	}, files.Paths())
}

func TestResolve_ConcurrentUse(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.json": `["x.js", "b.json"]`,
		"b.json": `["y.js"]`,
		"c.json": `["b.json", "z.js"]`,
	})

	resolver := NewResolver()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, name := range []string{"a.json", "c.json"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				files, err := resolver.Resolve(filepath.Join(dir, name))
				if err == nil && files.Len() != 2 {
					err = errors.New("unexpected result for " + name)
				}
				errs <- err
			}(name)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
