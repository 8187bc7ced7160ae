package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the names passed to the "record" test action
type recorder struct {
	lock  sync.Mutex
	calls []string
}

var recorded = &recorder{}

func (r *recorder) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = nil
}

func (r *recorder) add(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) get() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string{}, r.calls...)
}

func init() {
	RegisterAction("record", func(ctx context.Context, env *ActionEnv, args ActionArgs) error {
		name, err := args.Require("name")
		if err != nil {
			return err
		}

		if args.Bool("release", false) && env.Release() {
			name += " (release)"
		}
		recorded.add(env.Expand(name))
		return nil
	})

	RegisterAction("setvar", func(ctx context.Context, env *ActionEnv, args ActionArgs) error {
		name, err := args.Require("name")
		if err != nil {
			return err
		}
		env.SetVar(name, args.Get("value", ""))
		return nil
	})

	RegisterAction("enable_release", func(ctx context.Context, env *ActionEnv, args ActionArgs) error {
		env.SetRelease()
		return nil
	})
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestNormalizePath(t *testing.T) {
	root := filepath.FromSlash("/project")
	ctx := &parserCtx{
		filepath:    filepath.Join(root, "sub", "tasks.star"),
		projectRoot: root,
	}

	tests := map[string]struct {
		parts []string
		want  string
	}{
		"relative":        {parts: []string{"src/a.js"}, want: filepath.Join(root, "sub", "src", "a.js")},
		"project root":    {parts: []string{"//build.json"}, want: filepath.Join(root, "build.json")},
		"parent":          {parts: []string{"../other"}, want: filepath.Join(root, "other")},
		"multiple parts":  {parts: []string{"//dist", "lib", "x.js"}, want: filepath.Join(root, "dist", "lib", "x.js")},
		"empty":           {parts: nil, want: filepath.Join(root, "sub")},
		"cleans the path": {parts: []string{"./a/./b/../c"}, want: filepath.Join(root, "sub", "a", "c")},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(ctx, tt.parts...))
		})
	}
}

func TestSimplifyPath(t *testing.T) {
	root := t.TempDir()
	ctx := &parserCtx{projectRoot: root}

	assert.Equal(t, "//src/a.js", simplifyPath(ctx, filepath.Join(root, "src", "a.js")))
	assert.Equal(t, filepath.Dir(root), simplifyPath(ctx, filepath.Dir(root)))
	// a sibling directory sharing the prefix is not part of the project
	assert.Equal(t, root+"-other", simplifyPath(ctx, root+"-other"))
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1", "B=2", "EMPTY="}, map[string]string{"C": "4", "B": "3"})
	assert.Equal(t, []string{"A=1", "EMPTY=", "B=3", "C=4"}, env)

	assert.Equal(t, []string{"A=1"}, mergeEnv([]string{"A=1"}, nil))
}

func TestProjectPaths(t *testing.T) {
	root := filepath.FromSlash("/project")
	paths := projectPaths{root: root, base: filepath.Join(root, "src")}

	assert.Equal(t, filepath.Join(root, "src", "a.js"), paths.resolve("a.js"))
	assert.Equal(t, filepath.Join(root, "dist", "b.js"), paths.resolve("//dist", "b.js"))
	assert.Equal(t, filepath.Join(root, "src"), paths.resolve())

	rel, ok := paths.inProject(filepath.Join(root, "src", "a.js"))
	assert.True(t, ok)
	assert.Equal(t, "src/a.js", rel)

	_, ok = paths.inProject(root)
	assert.False(t, ok)
}

func TestShellArg(t *testing.T) {
	base := t.TempDir()

	assert.Equal(t, "dist/out.js", shellArg(base, filepath.Join(base, "dist", "out.js")))
	assert.Equal(t, "../other", shellArg(base, filepath.Join(filepath.Dir(base), "other")))
	assert.Equal(t, "src/a.js", shellArg(base, filepath.Join("src", "a.js")))
}

func TestToStarlark(t *testing.T) {
	value, err := toStarlark(map[string]interface{}{
		"name":     "polymer",
		"private":  true,
		"count":    float64(3),
		"ratio":    1.5,
		"keywords": []interface{}{"web", nil},
		"nested":   map[interface{}]interface{}{"key": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"count": 3, "keywords": ("web", None), "name": "polymer", "nested": {"key": 7}, "private": True, "ratio": 1.5}`, value.String())

	_, err = toStarlark(struct{}{})
	assert.Error(t, err)

	_, err = toStarlark([]interface{}{make(chan int)})
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Logger(context.Background()).Info().Msg("dropped")
	})

	logger := zerolog.Nop()
	ctx := WithLogger(context.Background(), &logger)
	assert.Same(t, &logger, Logger(ctx))
}
