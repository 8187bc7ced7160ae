package buildsys

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

func starlarkPathArg(fnName string, value starlark.Value) (string, error) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), nil
	case StarlarkPath:
		return string(value), nil
	default:
		return "", eris.Errorf("%s: got %s, want path or string", fnName, value.Type())
	}
}

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	base := ""
	ctx := getCtx(thread)

	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()
		if key != "base" {
			return nil, eris.Errorf("unexpected keyword argument %s", key)
		}

		var err error
		base, err = starlarkPathArg(fn.Name(), kv[1])
		if err != nil {
			return nil, err
		}

		base = normalizePath(ctx, base)
	}

	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		switch value := path.(type) {
		case starlark.String:
			parts[idx] = value.GoString()
		default:
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, path.Type())
		}
	}

	normPath := normalizePath(ctx, parts...)
	if base != "" {
		var err error
		normPath, err = filepath.Rel(base, normPath)
		if err != nil {
			return nil, err
		}
	}

	return StarlarkPath(normPath), nil
}

func resolveManifest(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawPath starlark.Value
	var check bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &rawPath, "check?", &check)
	if err != nil {
		return nil, err
	}

	path, err := starlarkPathArg(fn.Name(), rawPath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	path = normalizePath(ctx, path)

	tree, err := ctx.manifests.ResolveTree(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve manifest %s", simplifyPath(ctx, path))
	}
	ctx.sources.Union(tree.Manifests)

	files := tree.Files.Paths()
	result := make(starlark.Tuple, len(files))
	for idx, file := range files {
		if check {
			_, err := os.Stat(file)
			if err != nil {
				return nil, eris.Wrapf(err, "manifest %s references missing file %s", simplifyPath(ctx, path), simplifyPath(ctx, file))
			}
		}

		result[idx] = StarlarkPath(file)
	}

	return result, nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, "%s", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, "%s", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var defaultValue starlark.Value = starlark.String("")

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	value, ok := ctx.envOverrides[key]
	if !ok {
		value, ok = ctx.lookupEnv(key)
	}
	if !ok {
		return defaultValue, nil
	}

	return starlark.String(value), nil
}

// envUnset marks variables that were looked up but not set. It can't collide with a real value
// since environment values never contain NUL bytes.
const envUnset = "\x00"

func (ctx *parserCtx) lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if ok {
		ctx.envReads[key] = value
	} else {
		ctx.envReads[key] = envUnset
	}
	return value, ok
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	envOverrides := getCtx(thread).envOverrides
	envOverrides[key] = value

	return starlark.True, nil
}

func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 {
		return nil, eris.Errorf("got %d arguments, want 1", len(args))
	}

	pathDir, err := starlarkPathArg(fn.Name(), args[0])
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	envOverrides := ctx.envOverrides
	path, ok := envOverrides["PATH"]
	if !ok {
		path, _ = ctx.lookupEnv("PATH")
	}

	envOverrides["PATH"] = normalizePath(ctx, pathDir) + string(os.PathListSeparator) + path

	return starlark.String(envOverrides["PATH"]), nil
}

func loadDataFile(ctx *parserCtx, dataFile string) (interface{}, error) {
	doc, loaded := ctx.dataCache[dataFile]
	if loaded {
		return doc, nil
	}

	content, err := os.ReadFile(dataFile)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open file %s", dataFile)
	}

	if strings.EqualFold(filepath.Ext(dataFile), ".json") {
		err = json.Unmarshal(content, &doc)
	} else {
		err = yaml.Unmarshal(content, &doc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse file %s", dataFile)
	}

	ctx.dataCache[dataFile] = doc
	ctx.sources.Add(dataFile)
	return doc, nil
}

func readData(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dataFile string
	var dataKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &dataFile, &dataKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	doc, err := loadDataFile(ctx, normalizePath(ctx, dataFile))
	if err != nil {
		return nil, err
	}

	// walk the key
	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(dataKey, ".") {
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("can't look up %s in a %v value", key, value.Kind())
		}
	}

	if !value.IsValid() {
		return defaultValue, nil
	}
	if value.Kind() == reflect.Interface && value.IsNil() {
		return defaultValue, nil
	}

	return toStarlark(value.Interface())
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	dirPath = normalizePath(ctx, dirPath)
	info, err := os.Stat(dirPath)
	result := err == nil && info.IsDir()
	ctx.pathChecks["isdir:"+dirPath] = result

	return starlark.Bool(result), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	filePath = normalizePath(ctx, filePath)
	info, err := os.Stat(filePath)
	result := err == nil && info.Mode().IsRegular()
	ctx.pathChecks["isfile:"+filePath] = result

	return starlark.Bool(result), nil
}

func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var outputFormat string
	var showError bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &outputFormat, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if outputFormat == "" {
		outputFormat = "text"
	}

	if outputFormat != "text" && outputFormat != "json" {
		return nil, eris.Errorf("unsupported format %s", outputFormat)
	}

	var shellCmd []syntax.Node
	parser := syntax.NewParser()
	ctx := getCtx(thread)
	ctx.volatile = true
	base := filepath.Dir(ctx.filepath)

	switch command := command.(type) {
	case starlark.String:
		part := TaskCmdScript{
			TaskName: fn.Name(),
			Index:    0,
			Content:  command.GoString(),
		}

		stmts, err := part.ToShellStmts(parser)
		if err != nil {
			return nil, err
		}

		shellCmd = make([]syntax.Node, len(stmts))
		for idx, stmt := range stmts {
			shellCmd[idx] = stmt
		}
	case starlark.Tuple:
		expr, err := processCmdParts(command, parser, base)
		if err != nil {
			return nil, err
		}

		shellCmd = []syntax.Node{expr}
	default:
		return nil, eris.Errorf("unexpected type %s for command parameter, only strings and tuples are valid", command.Type())
	}

	outputBuffer := strings.Builder{}
	var errOut io.Writer = os.Stderr

	if !showError {
		errOut = io.Discard
	}

	runner, err := newShellRunner(base, getEnvVars(ctx), &outputBuffer, errOut)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize runner")
	}

	for _, cmd := range shellCmd {
		err := runner.Run(ctx.ctx, cmd)
		if err != nil {
			if showError {
				log(ctx.ctx).Error().Err(err).Msg("shell error")
			}
			return starlark.False, nil
		}
	}

	if outputFormat == "json" {
		var decoded interface{}
		err = json.Unmarshal([]byte(outputBuffer.String()), &decoded)
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return toStarlark(decoded)
	}

	return starlark.String(outputBuffer.String()), nil
}
