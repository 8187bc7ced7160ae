package bundle

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()

	hdl, err := os.Open(path)
	require.NoError(t, err)
	defer hdl.Close()

	xzr, err := xz.NewReader(hdl)
	require.NoError(t, err)

	result := map[string]string{}
	tr := tar.NewReader(xzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		result[header.Name] = string(content)
	}

	return result
}

func TestPackDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"dist/polymer.js":     "var a = 1;",
		"dist/lib/helpers.js": "var b = 2;",
	})

	output := filepath.Join(dir, "build", "polymer.tar.xz")
	require.NoError(t, PackDir(filepath.Join(dir, "dist"), output, false))

	assert.Equal(t, map[string]string{
		"lib/":           "",
		"lib/helpers.js": "var b = 2;",
		"polymer.js":     "var a = 1;",
	}, readArchive(t, output))
}

func TestPackDir_SkipsOutputInsideSource(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.js": "a"})

	output := filepath.Join(dir, "self.tar.xz")
	require.NoError(t, PackDir(dir, output, false))

	assert.Equal(t, map[string]string{"a.js": "a"}, readArchive(t, output))
}

func TestPackDir_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := PackDir(filepath.Join(dir, "missing"), filepath.Join(dir, "out.tar.xz"), false)
	assert.Error(t, err)
}
