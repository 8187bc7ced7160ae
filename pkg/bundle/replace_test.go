package bundle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/polymer.js": "Polymer.version = 'master'; // master branch",
	})

	dest := filepath.Join(dir, "dist", "polymer-versioned.js")
	count, err := ReplaceFile(filepath.Join(dir, "src", "polymer.js"), dest, "master", "0.5.2")
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Equal(t, "Polymer.version = '0.5.2'; // 0.5.2 branch", readFile(t, dest))
	assert.Equal(t, "Polymer.version = 'master'; // master branch", readFile(t, filepath.Join(dir, "src", "polymer.js")))
}

func TestReplaceFile_NoMatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.js": "nothing here"})

	dest := filepath.Join(dir, "b.js")
	count, err := ReplaceFile(filepath.Join(dir, "a.js"), dest, "master", "1.0.0")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, "nothing here", readFile(t, dest))
}

func TestReplaceFile_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.js": "master"})

	_, err := ReplaceFile(filepath.Join(dir, "a.js"), filepath.Join(dir, "b.js"), "", "x")
	assert.Error(t, err)

	_, err = ReplaceFile(filepath.Join(dir, "missing.js"), filepath.Join(dir, "b.js"), "master", "x")
	assert.Error(t, err)
}
