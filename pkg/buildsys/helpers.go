package buildsys

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// projectPaths resolves the paths used in task scripts. Paths starting with // are relative to
// root, other relative paths are relative to base.
type projectPaths struct {
	root string
	base string
}

func (ctx *parserCtx) paths() projectPaths {
	return projectPaths{
		root: ctx.projectRoot,
		base: filepath.Dir(ctx.filepath),
	}
}

// resolve joins the given parts. Each part is resolved relative to the previous one.
func (p projectPaths) resolve(parts ...string) string {
	result := p.base

	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "//"):
			result = filepath.Join(p.root, part[2:])
		case strings.HasPrefix(part, "/"):
			// keep the drive letter on windows
			result = filepath.Join(filepath.VolumeName(result), part)
		case filepath.IsAbs(part):
			result = part
		default:
			result = filepath.Join(result, part)
		}
	}

	return filepath.Clean(result)
}

// display turns paths inside the project into the // notation used in scripts. Other paths are
// returned unchanged.
func (p projectPaths) display(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	rel, ok := p.inProject(absPath)
	if !ok {
		return path
	}
	return "//" + rel
}

func (p projectPaths) inProject(absPath string) (string, bool) {
	prefix := p.root + string(filepath.Separator)
	if !strings.HasPrefix(absPath, prefix) {
		return "", false
	}
	return filepath.ToSlash(absPath[len(prefix):]), true
}

// shellArg formats a path for the embedded shell. Absolute paths below base are made relative
// since drive letters confuse the shell on windows.
func shellArg(base, path string) string {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(base, path)
		if err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

func normalizePath(ctx *parserCtx, parts ...string) string {
	return ctx.paths().resolve(parts...)
}

func simplifyPath(ctx *parserCtx, path string) string {
	return ctx.paths().display(path)
}

func getEnvVars(ctx *parserCtx) []string {
	return mergeEnv(os.Environ(), ctx.envOverrides)
}

func getTaskEnvVars(task *Task) []string {
	return mergeEnv(os.Environ(), task.Env)
}

// envKey returns the name of a KEY=value entry. Windows treats names case-insensitively.
func envKey(entry string) string {
	key := entry
	if idx := strings.IndexByte(entry, '='); idx >= 0 {
		key = entry[:idx]
	}

	if runtime.GOOS == "windows" {
		key = strings.ToUpper(key)
	}
	return key
}

// mergeEnv replaces the entries in base which are present in overrides. The overrides are
// appended sorted by name.
func mergeEnv(base []string, overrides map[string]string) []string {
	overridden := make(map[string]bool, len(overrides))
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		overridden[envKey(name)] = true
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		if !overridden[envKey(entry)] {
			result = append(result, entry)
		}
	}

	for _, name := range names {
		result = append(result, name+"="+overrides[name])
	}
	return result
}

// toStarlark converts a document decoded from JSON or YAML into starlark values. Lists become
// tuples and maps become dicts with sorted keys. Whole numbers are returned as ints.
func toStarlark(value interface{}) (starlark.Value, error) {
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return value, nil
	case string:
		return starlark.String(value), nil
	case bool:
		return starlark.Bool(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case uint64:
		return starlark.MakeUint64(value), nil
	case float64:
		if math.Trunc(value) == value && math.Abs(value) < 1<<53 {
			return starlark.MakeInt64(int64(value)), nil
		}
		return starlark.Float(value), nil
	case time.Time:
		return starlark.String(value.Format(time.RFC3339)), nil
	case []string:
		items := make(starlark.Tuple, len(value))
		for idx, item := range value {
			items[idx] = starlark.String(item)
		}
		return items, nil
	case []interface{}:
		items := make(starlark.Tuple, len(value))
		for idx, item := range value {
			converted, err := toStarlark(item)
			if err != nil {
				return nil, eris.Wrapf(err, "item %d", idx)
			}
			items[idx] = converted
		}
		return items, nil
	case map[string]string:
		dict := starlark.NewDict(len(value))
		for _, key := range sortedKeys(value) {
			err := dict.SetKey(starlark.String(key), starlark.String(value[key]))
			if err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(value))
		for _, key := range sortedKeys(value) {
			converted, err := toStarlark(value[key])
			if err != nil {
				return nil, eris.Wrapf(err, "key %s", key)
			}

			err = dict.SetKey(starlark.String(key), converted)
			if err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[interface{}]interface{}:
		// YAML allows non-string keys
		dict := starlark.NewDict(len(value))
		for key, item := range value {
			convertedKey, err := toStarlark(key)
			if err != nil {
				return nil, err
			}

			converted, err := toStarlark(item)
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(convertedKey, converted)
			if err != nil {
				return nil, err
			}
		}
		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %T", value)
}

func sortedKeys[V any](items map[string]V) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
