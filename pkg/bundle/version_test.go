package bundle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugojosefson/polymer/pkg/buildsys"
)

func TestReadPackageVersion(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json":   `{"name": "polymer", "version": "0.5.2"}`,
		"noversion.json": `{"name": "polymer"}`,
		"invalid.json":   `{"version": "latest"}`,
		"broken.json":    `{"version": `,
	})

	version, err := ReadPackageVersion(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	assert.Equal(t, "0.5.2", version)

	for _, name := range []string{"noversion.json", "invalid.json", "broken.json", "missing.json"} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPackageVersion(filepath.Join(dir, name))
			assert.Error(t, err)
		})
	}
}

func TestDevVersion(t *testing.T) {
	tests := map[string]struct {
		version  string
		revision string
		want     string
		wantErr  bool
	}{
		"plain":        {version: "0.5.2", revision: "abc1234", want: "0.5.2-abc1234"},
		"prerelease":   {version: "1.0.0-rc.1", revision: "abc1234", want: "1.0.0-rc.1-abc1234"},
		"numeric rev":  {version: "1.0.0", revision: "1234567", want: "1.0.0-1234567"},
		"leading zero": {version: "1.0.0", revision: "0123456", want: "1.0.0-0123456"},
		"no rev":       {version: "1.0.0", revision: "", want: "1.0.0"},
		"bad rev":      {version: "1.0.0", revision: "not valid!", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := DevVersion(tt.version, tt.revision)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func gitCommand(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestGitRevision(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	dir := t.TempDir()
	gitCommand(t, dir, "init", "-q")
	gitCommand(t, dir, "-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "-q", "--allow-empty", "-m", "initial")

	logger := zerolog.Nop()
	ctx := buildsys.WithLogger(context.Background(), &logger)

	rev, err := GitRevision(ctx, dir, os.Environ())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{4,}$`), rev)
}

func TestGitRevision_NotARepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	_, err := GitRevision(context.Background(), t.TempDir(), os.Environ())
	assert.Error(t, err)
}
