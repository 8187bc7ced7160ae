package buildsys

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		runTasks    map[string]bool
		projectRoot string
		dryRun      bool
		release     bool
		vars        map[string]string
	}
)

// RunOptions controls a single invocation of RunTasks
type RunOptions struct {
	// DryRun only logs commands and actions without executing them
	DryRun bool
	// Force runs the requested tasks even if their outputs are up to date. Dependencies are
	// still checked.
	Force bool
	// Release starts the run in release mode
	Release bool
	// Vars are made available to actions (see ActionEnv.Var)
	Vars map[string]string
}

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func helperCommand() string {
	self, err := os.Executable()
	if err != nil {
		return "polybuild"
	}
	return self
}

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{helperCommand()}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func newShellRunner(dir string, env []string, stdout, stderr io.Writer) (*interp.Runner, error) {
	return interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
}

// Capture runs a shell command in dir and returns its standard output. Standard error is
// discarded unless the command fails, in which case it's part of the returned error.
func Capture(ctx context.Context, dir string, env []string, command string) (string, error) {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(command), "capture")
	if err != nil {
		return "", eris.Wrapf(err, "failed to parse command %s", command)
	}

	stdout := strings.Builder{}
	stderr := strings.Builder{}
	runner, err := newShellRunner(dir, env, &stdout, &stderr)
	if err != nil {
		return "", eris.Wrap(err, "failed to initialize runner")
	}

	err = runner.Run(ctx, file)
	if err != nil {
		return "", eris.Wrapf(err, "command %s failed: %s", command, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func resolvePatternLists(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	paths := projectPaths{
		root: getRuntimeCtx(ctx).projectRoot,
		base: base,
	}

	for _, item := range patterns {
		item = paths.resolve(item)
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, filepath.FromSlash(match))
			}
		}
	}
	return result, nil
}

// RunTask executes the given task
func RunTask(ctx context.Context, projectRoot, task string, tasks TaskList, opts RunOptions) error {
	return RunTasks(ctx, projectRoot, []string{task}, tasks, opts)
}

// RunTasks executes the given tasks in order. Each task runs at most once, even if
// several of the requested tasks depend on it.
func RunTasks(ctx context.Context, projectRoot string, names []string, tasks TaskList, opts RunOptions) error {
	rctx := runtimeCtx{
		projectRoot: projectRoot,
		runTasks:    make(map[string]bool),
		dryRun:      opts.DryRun,
		release:     opts.Release,
		vars:        make(map[string]string, len(opts.Vars)),
	}
	for k, v := range opts.Vars {
		rctx.vars[k] = v
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	for _, name := range names {
		taskMeta, found := tasks[name]
		if !found {
			return eris.Errorf("Task %s not found", name)
		}

		err := runTaskInternal(ctx, taskMeta, tasks, opts.Force, true)
		if err != nil {
			return err
		}
	}

	return nil
}

func runTaskInternal(ctx context.Context, task *Task, tasks TaskList, force, canSkip bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	status, ok := rctx.runTasks[task.Short]
	if ok {
		if status {
			// this task has already been run
			log(ctx).Debug().Msgf("Task %s already run", task.Short)
			return nil
		}

		return eris.Errorf("Task %s was called recursively", task.Short)
	}

	rctx.runTasks[task.Short] = false

	for _, dep := range task.Deps {
		if !rctx.runTasks[dep] {
			depTask, ok := tasks[dep]
			if !ok {
				return eris.Errorf("Task %s not found", dep)
			}

			err := runTaskInternal(ctx, depTask, tasks, false, true)
			if err != nil {
				return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Short, dep)
			}
		}
	}

	if canSkip && !force {
		skip, err := checkSkipList(ctx, task)
		if err != nil {
			return err
		}

		if !skip {
			skip, err = checkUpToDate(ctx, task)
			if err != nil {
				return err
			}
		}

		if skip {
			rctx.runTasks[task.Short] = true
			return nil
		}
	}

	// With the skip and input/output checks done, we can finally start executing
	runner, err := newShellRunner(task.Base, getTaskEnvVars(task), os.Stdout, os.Stderr)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	for _, item := range task.Cmds {
		if action, ok := item.(TaskCmdAction); ok {
			err = runAction(ctx, task, action)
			if err != nil {
				return err
			}

			if err = ctx.Err(); err != nil {
				return err
			}
			continue
		}

		stmts, err := item.ToShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}
		if stmts != nil {
			for _, stm := range stmts {
				strBuffer.Reset()
				err = printer.Print(&strBuffer, stm)
				if err != nil {
					return eris.Wrap(err, "failed to print shell statement")
				}

				log(ctx).Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(strBuffer.String())

				if !rctx.dryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return err
					}

					if runner.Exited() {
						rctx.runTasks[task.Short] = true
						return nil
					}
				}
			}
		} else {
			subTask, err := item.ToTask()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve task ref")
			}

			if subTask != nil {
				err = runTaskInternal(ctx, subTask, tasks, force, true)
				if err != nil {
					return err
				}
			} else {
				return eris.Errorf("unexpected task command %+v", item)
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	if task.Short != "" {
		rctx.runTasks[task.Short] = true
	}
	return nil
}

func runAction(ctx context.Context, task *Task, action TaskCmdAction) error {
	fn, ok := lookupAction(action.Kind)
	if !ok {
		return eris.Errorf("unknown action %s", action.Kind)
	}

	env := newActionEnv(ctx, task)
	env.Log().Info().
		Bool("action", true).
		Msg(action.String())

	if env.DryRun {
		return nil
	}

	err := fn(ctx, env, action.Args)
	if err != nil {
		return eris.Wrapf(err, "action %s failed", action.Kind)
	}
	return nil
}

func checkSkipList(ctx context.Context, task *Task) (bool, error) {
	skipList, err := resolvePatternLists(ctx, task.Base, task.SkipIfExists)
	if err != nil {
		return false, eris.Wrapf(err, "failed to resolve skipIfExists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		log(ctx).Info().
			Str("task", task.Short).
			Msg("skipped because all skip files exist")
		return true, nil
	}

	return false, nil
}

func checkUpToDate(ctx context.Context, task *Task) (bool, error) {
	var newestInput time.Time
	inputList, err := resolvePatternLists(ctx, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := resolvePatternLists(ctx, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().Sub(newestInput) > 0 {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()

	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		if err == nil {
			mt := info.ModTime()
			if mt.Sub(newestOutput) > 0 {
				newestOutput = mt
			}

			if oldestOutput.Sub(mt) > 0 {
				oldestOutput = mt
			}
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if newestOutput.Sub(newestInput) > 0 {
		log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}
