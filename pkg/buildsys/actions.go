package buildsys

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
)

// ActionFunc implements a Go-native build step. It's called once per task command.
type ActionFunc func(ctx context.Context, env *ActionEnv, args ActionArgs) error

var (
	actionLock sync.RWMutex
	actions    = map[string]ActionFunc{}
)

// RegisterAction makes fn available to task scripts as a builtin called name. The builtin
// only accepts keyword arguments and returns a value which can be used as a task command.
func RegisterAction(name string, fn ActionFunc) {
	actionLock.Lock()
	defer actionLock.Unlock()

	if _, reserved := baseBuiltins[name]; reserved {
		panic(fmt.Sprintf("action name %s conflicts with a builtin", name))
	}
	actions[name] = fn
}

func lookupAction(name string) (ActionFunc, bool) {
	actionLock.RLock()
	defer actionLock.RUnlock()

	fn, ok := actions[name]
	return fn, ok
}

func actionBuiltins() starlark.StringDict {
	actionLock.RLock()
	defer actionLock.RUnlock()

	result := make(starlark.StringDict, len(actions))
	for name := range actions {
		result[name] = starlark.NewBuiltin(name, makeAction)
	}
	return result
}

func makeAction(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, eris.Errorf("%s: only keyword arguments are supported", fn.Name())
	}

	action := TaskCmdAction{
		Kind: fn.Name(),
		Args: ActionArgs{
			Strings: map[string]string{},
			Lists:   map[string][]string{},
			Bools:   map[string]bool{},
		},
	}

	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()

		switch value := kv[1].(type) {
		case starlark.String:
			action.Args.Strings[key] = value.GoString()
		case StarlarkPath:
			action.Args.Strings[key] = string(value)
		case starlark.Bool:
			action.Args.Bools[key] = bool(value)
		case starlark.Int:
			action.Args.Strings[key] = value.String()
		case *starlark.List, starlark.Tuple:
			items, err := starlarkIterable2stringSlice(value, key)
			if err != nil {
				return nil, eris.Wrapf(err, "%s", fn.Name())
			}
			action.Args.Lists[key] = items
		case starlark.NoneType:
			// treat None like a missing argument
		default:
			return nil, eris.Errorf("%s: unsupported type %s for argument %s", fn.Name(), value.Type(), key)
		}
	}

	return action, nil
}

// ActionArgs holds the keyword arguments passed to an action builtin, grouped by type.
// Paths are stored as strings.
type ActionArgs struct {
	Strings map[string]string
	Lists   map[string][]string
	Bools   map[string]bool
}

// Get returns the value of a string argument or def if it's missing.
func (a ActionArgs) Get(name, def string) string {
	value, ok := a.Strings[name]
	if !ok {
		return def
	}
	return value
}

// Require returns the value of a string argument and fails if it's missing or empty.
func (a ActionArgs) Require(name string) (string, error) {
	value := a.Strings[name]
	if value == "" {
		return "", eris.Errorf("missing required argument %s", name)
	}
	return value, nil
}

// List returns a list argument. A single string is treated as a list with one item.
func (a ActionArgs) List(name string) []string {
	if value, ok := a.Lists[name]; ok {
		return value
	}
	if value, ok := a.Strings[name]; ok {
		return []string{value}
	}
	return nil
}

// Bool returns a boolean argument or def if it wasn't passed.
func (a ActionArgs) Bool(name string, def bool) bool {
	value, ok := a.Bools[name]
	if !ok {
		return def
	}
	return value
}

// Describe renders the arguments like a keyword argument list, sorted by name.
func (a ActionArgs) Describe() string {
	parts := make([]string, 0, len(a.Strings)+len(a.Lists)+len(a.Bools))
	for k, v := range a.Strings {
		parts = append(parts, k+"="+strconv.Quote(v))
	}
	for k, v := range a.Lists {
		quoted := make([]string, len(v))
		for idx, item := range v {
			quoted[idx] = strconv.Quote(item)
		}
		parts = append(parts, k+"=["+strings.Join(quoted, ", ")+"]")
	}
	for k, v := range a.Bools {
		if v {
			parts = append(parts, k+"=True")
		} else {
			parts = append(parts, k+"=False")
		}
	}

	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// ActionEnv gives actions access to the task they belong to and the state of the
// current run.
type ActionEnv struct {
	Task   *Task
	DryRun bool

	rctx *runtimeCtx
	log  *zerolog.Logger
}

func newActionEnv(ctx context.Context, task *Task) *ActionEnv {
	rctx := getRuntimeCtx(ctx)
	logger := log(ctx).With().Str("task", task.Short).Logger()

	return &ActionEnv{
		Task:   task,
		DryRun: rctx.dryRun,
		rctx:   rctx,
		log:    &logger,
	}
}

// Log returns a logger which tags every message with the current task
func (e *ActionEnv) Log() *zerolog.Logger {
	return e.log
}

func (e *ActionEnv) ProjectRoot() string {
	return e.rctx.projectRoot
}

// Path resolves p relative to the task's base directory. Paths starting with // are
// relative to the project root.
func (e *ActionEnv) Path(p string) string {
	paths := projectPaths{
		root: e.rctx.projectRoot,
		base: e.Task.Base,
	}
	return paths.resolve(e.Expand(p))
}

// Glob resolves a list of shell patterns relative to the task's base directory.
// Patterns that don't match anything are dropped.
func (e *ActionEnv) Glob(ctx context.Context, patterns []string) ([]string, error) {
	expanded := make([]string, len(patterns))
	for idx, item := range patterns {
		expanded[idx] = e.Expand(item)
	}
	return resolvePatternLists(ctx, e.Task.Base, expanded)
}

// Environ returns the environment the task's shell commands run with
func (e *ActionEnv) Environ() []string {
	return getTaskEnvVars(e.Task)
}

// Var returns a value set by an earlier action in the same run
func (e *ActionEnv) Var(name string) (string, bool) {
	value, ok := e.rctx.vars[name]
	return value, ok
}

func (e *ActionEnv) SetVar(name, value string) {
	e.rctx.vars[name] = value
}

var varMatcher = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand replaces {name} placeholders with the matching run variables. Unknown
// placeholders are left alone.
func (e *ActionEnv) Expand(s string) string {
	return varMatcher.ReplaceAllStringFunc(s, func(match string) string {
		value, ok := e.rctx.vars[match[1:len(match)-1]]
		if !ok {
			return match
		}
		return value
	})
}

// ExpandStrict works like Expand but fails if a placeholder has no matching variable
func (e *ActionEnv) ExpandStrict(s string) (string, error) {
	for _, match := range varMatcher.FindAllStringSubmatch(s, -1) {
		if _, ok := e.rctx.vars[match[1]]; !ok {
			return "", eris.Errorf("variable %s is not set", match[1])
		}
	}
	return e.Expand(s), nil
}

// Release reports whether the run builds a release
func (e *ActionEnv) Release() bool {
	return e.rctx.release
}

// SetRelease switches the remaining run into release mode
func (e *ActionEnv) SetRelease() {
	e.rctx.release = true
}
