// Package cmd implements the task command for the buildsys package
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hugojosefson/polymer/pkg/buildsys"
	"github.com/hugojosefson/polymer/pkg/bundle"
	"github.com/hugojosefson/polymer/pkg/config"
)

// ErrReported is returned once a failure has already been logged
var ErrReported = eris.New("task failed")

var RootCmd = &cobra.Command{
	Use:   "task [name...] [option=value...]",
	Short: "Runs tasks declared in the nearest task script",
	Long: `This command parses the first tasks.star file it finds in the current directory or one of its parents and
executes the given tasks in order. Without task names, it lists the available tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to retrieve the current working directory")
		}

		cfg, err := config.LoadFrom(wd)
		if err != nil {
			return err
		}

		err = cfg.ApplyFlags(cmd.Flags())
		if err != nil {
			return err
		}

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		release, err := cmd.Flags().GetBool("release")
		if err != nil {
			return err
		}

		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}

		taskArgs, options := splitArgs(args)

		logger := NewLogger(cfg)
		ctx := buildsys.WithLogger(context.Background(), &logger)

		taskPath, err := FindScript(wd, cfg.Script)
		if err != nil {
			return err
		}
		projectRoot := filepath.Dir(taskPath)
		cacheDir := filepath.Join(projectRoot, cfg.Cache.Dir)

		cacheFile := ""
		if cfg.Cache.Tasks && !noCache {
			cacheFile = filepath.Join(cacheDir, "tasks.cache")
		}

		taskList, err := buildsys.LoadTasks(ctx, taskPath, projectRoot, options, cacheFile)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to parse tasks")
			return ErrReported
		}

		if len(taskArgs) == 0 {
			PrintTaskList(cmd.OutOrStdout(), taskList)
			return nil
		}

		if cfg.Cache.Minify && !noCache && !dryRun {
			cache, err := bundle.OpenMinifyCache(filepath.Join(cacheDir, "minify.db"))
			if err != nil {
				logger.Warn().Err(err).Msg("Minify cache is unavailable")
			} else {
				defer cache.Close()
				ctx = bundle.WithMinifyCache(ctx, cache)
			}
		}

		err = buildsys.RunTasks(ctx, projectRoot, taskArgs, taskList, buildsys.RunOptions{
			DryRun:  dryRun,
			Force:   force,
			Release: release || config.ReleaseMode(),
		})
		if err != nil {
			logger.Error().Err(err).Msgf("Failed tasks %s", strings.Join(taskArgs, ", "))
			return ErrReported
		}

		return nil
	},
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RootCmd.Flags().Bool("release", false, "build in release mode (same as setting the RELEASE environment variable)")
	RootCmd.Flags().Bool("no-cache", false, "ignore the task and minify caches")
}

// NewLogger builds the logger configured by cfg: colored console output by default or JSONND
// on stderr.
func NewLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = NewConsoleWriter()
	if cfg.Log.JSON {
		out = os.Stderr
	}

	return zerolog.New(out).Level(cfg.LogLevel())
}

// splitArgs separates task names from option=value pairs
func splitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	return taskArgs, options
}

// FindScript searches dir and its parents for a file called name
func FindScript(dir, name string) (string, error) {
	path := dir
	for {
		taskPath := filepath.Join(path, name)
		_, err := os.Stat(taskPath)
		if err == nil {
			return taskPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("no %s file found", name)
		}

		path = parent
	}
}

// PrintTaskList writes the names and descriptions of all visible tasks to out
func PrintTaskList(out io.Writer, taskList buildsys.TaskList) {
	names := taskList.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "No tasks declared.")
		return
	}

	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	fmt.Fprintln(out, "Available tasks:")
	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Fprintf(out, lineFmt, name+":", taskList[name].Desc)
	}
}
