package bundle

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("Polymer.register('x-foo');\n", 100)
	writeFiles(t, dir, map[string]string{"bundle.js": content})

	destPath, err := CompressFile(filepath.Join(dir, "bundle.js"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle.js.br"), destPath)

	hdl, err := os.Open(destPath)
	require.NoError(t, err)
	defer hdl.Close()

	info, err := hdl.Stat()
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(content)))

	decoded, err := io.ReadAll(brotli.NewReader(hdl))
	require.NoError(t, err)
	assert.Equal(t, content, string(decoded))
}

func TestCompressFile_Missing(t *testing.T) {
	_, err := CompressFile(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}
