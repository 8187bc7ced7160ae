package buildsys

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
	gob.Register(TaskCmdAction{})
}

// cacheVersion has to be bumped whenever the cached types change
const cacheVersion = 2

// CacheState describes the inputs a cached task list was built from
type CacheState struct {
	Options map[string]string

	// Env and PathChecks are the environment lookups and file checks the script performed
	Env        map[string]string
	PathChecks map[string]bool
	Platform   string

	// Sources are the files read by the script. The cache is stale once one of them is
	// modified.
	Sources []string
}

func currentPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// WriteCache stores a parsed task list along with the state it was built from
func WriteCache(file string, state CacheState, list TaskList) error {
	if state.Options == nil {
		state.Options = map[string]string{}
	}
	if state.Env == nil {
		state.Env = map[string]string{}
	}
	if state.PathChecks == nil {
		state.PathChecks = map[string]bool{}
	}
	if state.Sources == nil {
		state.Sources = []string{}
	}

	err := os.MkdirAll(filepath.Dir(file), 0770)
	if err != nil {
		return err
	}

	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(cacheVersion)
	if err != nil {
		return err
	}

	err = encoder.Encode(state)
	if err != nil {
		return err
	}

	return encoder.Encode(list)
}

// ReadCache returns the values stored by WriteCache
func ReadCache(file string) (CacheState, TaskList, error) {
	var state CacheState

	handle, err := os.Open(file)
	if err != nil {
		return state, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var version int
	err = decoder.Decode(&version)
	if err != nil {
		return state, nil, err
	}

	if version != cacheVersion {
		return state, nil, eris.Errorf("unsupported cache version %d", version)
	}

	err = decoder.Decode(&state)
	if err != nil {
		return state, nil, err
	}

	var result TaskList
	err = decoder.Decode(&result)
	if err != nil {
		return state, nil, err
	}

	return state, result, nil
}

func sameOptions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}

	for k, v := range a {
		other, ok := b[k]
		if !ok || other != v {
			return false
		}
	}
	return true
}

// sameEnvironment reports whether the environment still looks the way it did when state was
// recorded. It doesn't check the source files, see cacheIsFresh for that.
func sameEnvironment(state CacheState) bool {
	if state.Platform != currentPlatform() {
		return false
	}

	for key, cached := range state.Env {
		value, ok := os.LookupEnv(key)
		if !ok {
			value = envUnset
		}
		if value != cached {
			return false
		}
	}

	for check, cached := range state.PathChecks {
		kind, path := splitPathCheck(check)
		info, err := os.Stat(path)
		var result bool
		if kind == "isdir" {
			result = err == nil && info.IsDir()
		} else {
			result = err == nil && info.Mode().IsRegular()
		}

		if result != cached {
			return false
		}
	}

	return true
}

func splitPathCheck(check string) (string, string) {
	parts := strings.SplitN(check, ":", 2)
	if len(parts) < 2 {
		return "", check
	}
	return parts[0], parts[1]
}

func cacheIsFresh(file string, sources []string) (bool, error) {
	info, err := os.Stat(file)
	if err != nil {
		return false, err
	}
	cacheTime := info.ModTime()

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, err
		}

		if info.ModTime().After(cacheTime) {
			return false, nil
		}
	}

	return true, nil
}

// LoadTasks returns the tasks declared by the given script. If cacheFile is not empty, a
// cached task list is used as long as it was built with the same options, the environment
// variables and paths the script checked are unchanged and none of the files read by the
// script changed since. Otherwise the script is parsed and the cache updated. Scripts that run
// commands while being evaluated are never cached.
func LoadTasks(ctx context.Context, filename, projectRoot string, options map[string]string, cacheFile string) (TaskList, error) {
	if cacheFile != "" {
		state, list, err := ReadCache(cacheFile)
		if err == nil && sameOptions(state.Options, options) && sameEnvironment(state) {
			fresh, err := cacheIsFresh(cacheFile, state.Sources)
			if err != nil {
				log(ctx).Warn().Err(err).Msg("Failed to check task cache")
			} else if fresh {
				log(ctx).Debug().Str("path", cacheFile).Msg("Using cached tasks")
				return list, nil
			}
		} else if err != nil && !eris.Is(err, os.ErrNotExist) {
			log(ctx).Warn().Err(err).Msg("Ignoring unreadable task cache")
		}
	}

	result, err := RunScript(ctx, filename, projectRoot, options, true)
	if err != nil {
		return nil, err
	}

	if cacheFile != "" {
		if result.Volatile {
			log(ctx).Debug().Msg("Not caching tasks since the script ran commands")
			err = os.Remove(cacheFile)
			if err != nil && !eris.Is(err, os.ErrNotExist) {
				log(ctx).Warn().Err(err).Msg("Failed to remove stale task cache")
			}
			return result.Tasks, nil
		}

		err = WriteCache(cacheFile, CacheState{
			Options:    options,
			Env:        result.Env,
			PathChecks: result.PathChecks,
			Platform:   currentPlatform(),
			Sources:    result.Sources,
		}, result.Tasks)
		if err != nil {
			log(ctx).Warn().Err(err).Msg("Failed to write task cache")
		}
	}

	return result.Tasks, nil
}
