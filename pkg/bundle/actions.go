package bundle

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/hugojosefson/polymer/pkg/buildsys"
	"github.com/hugojosefson/polymer/pkg/manifest"
)

func init() {
	buildsys.RegisterAction("version", versionAction)
	buildsys.RegisterAction("release_mode", releaseModeAction)
	buildsys.RegisterAction("replace", replaceAction)
	buildsys.RegisterAction("bundle", bundleAction)
	buildsys.RegisterAction("copy", copyAction)
	buildsys.RegisterAction("pack", packAction)
}

func versionAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	pkgPath := env.Path(args.Get("package", "package.json"))
	varName := args.Get("var", "version")

	version, err := ReadPackageVersion(pkgPath)
	if err != nil {
		return err
	}

	if !env.Release() {
		rev, err := GitRevision(ctx, env.Task.Base, env.Environ())
		if err != nil {
			return err
		}

		version, err = DevVersion(version, rev)
		if err != nil {
			return err
		}
	}

	env.SetVar(varName, version)
	env.Log().Info().Msgf("%s = %s", varName, version)
	return nil
}

func releaseModeAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	env.SetRelease()
	env.Log().Info().Msg("release mode enabled")
	return nil
}

func replaceAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	src, err := args.Require("src")
	if err != nil {
		return err
	}

	dest, err := args.Require("dest")
	if err != nil {
		return err
	}

	oldText, err := args.Require("old")
	if err != nil {
		return err
	}

	newText, err := env.ExpandStrict(args.Get("new", ""))
	if err != nil {
		return err
	}

	count, err := ReplaceFile(env.Path(src), env.Path(dest), env.Expand(oldText), newText)
	if err != nil {
		return err
	}

	env.Log().Debug().Msgf("replaced %d occurrences", count)
	return nil
}

func bundleAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	output, err := args.Require("output")
	if err != nil {
		return err
	}
	output = env.Path(output)

	files := manifest.NewFileSet()
	if manifestPath := args.Get("manifest", ""); manifestPath != "" {
		resolver := manifest.NewResolver(manifest.WithLeafCheck(args.Bool("check", true)))
		resolved, err := resolver.Resolve(env.Path(manifestPath))
		if err != nil {
			return err
		}

		files.Union(resolved)
	}

	inputs, err := env.Glob(ctx, args.List("inputs"))
	if err != nil {
		return err
	}
	for _, input := range inputs {
		files.Add(input)
	}

	if files.Len() == 0 {
		return eris.New("nothing to bundle; pass a manifest or inputs")
	}

	content, err := Concat(files.Paths())
	if err != nil {
		return err
	}

	if args.Bool("minify", false) {
		content, err = MinifyCached(ctx, content)
		if err != nil {
			return err
		}
	}

	err = writeFile(output, content)
	if err != nil {
		return err
	}
	env.Log().Info().Str("path", output).Msgf("wrote %d files to %s", files.Len(), output)

	if args.Bool("brotli", false) {
		_, err = CompressFile(output)
		if err != nil {
			return err
		}
	}

	return nil
}

func copyAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	dest, err := args.Require("dest")
	if err != nil {
		return err
	}

	files, err := env.Glob(ctx, args.List("files"))
	if err != nil {
		return err
	}

	if len(files) == 0 {
		env.Log().Warn().Msg("copy: no files matched")
		return nil
	}

	_, err = CopyFiles(files, env.Path(dest))
	return err
}

func packAction(ctx context.Context, env *buildsys.ActionEnv, args buildsys.ActionArgs) error {
	src, err := args.Require("src")
	if err != nil {
		return err
	}

	output, err := args.Require("output")
	if err != nil {
		return err
	}

	src = env.Path(src)
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", src)
	}
	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", src)
	}

	output = env.Path(output)
	err = PackDir(src, output, true)
	if err != nil {
		return err
	}

	env.Log().Info().Str("path", output).Msgf("packed %s into %s", filepath.Base(src), output)
	return nil
}
