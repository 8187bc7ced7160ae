package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hugojosefson/polymer/pkg/buildsys/cmd"
	"github.com/hugojosefson/polymer/pkg/config"
	"github.com/hugojosefson/polymer/pkg/manifest"
)

type resolveOptions struct {
	check    bool
	yaml     bool
	json     bool
	relative bool
}

func resolveFiles(path string, opts resolveOptions) (*manifest.Tree, error) {
	resolverOpts := []manifest.Option{manifest.WithLeafCheck(opts.check)}
	if opts.yaml {
		resolverOpts = append(resolverOpts, manifest.WithSuffixes(".json", ".yaml", ".yml"))
	}

	return manifest.NewResolver(resolverOpts...).ResolveTree(path)
}

func printFiles(out io.Writer, files []string, opts resolveOptions) error {
	if opts.relative {
		wd, err := os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to retrieve the current working directory")
		}

		relFiles := make([]string, len(files))
		for idx, file := range files {
			rel, err := filepath.Rel(wd, file)
			if err != nil {
				rel = file
			}
			relFiles[idx] = rel
		}
		files = relFiles
	}

	if opts.json {
		encoded, err := json.MarshalIndent(files, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, string(encoded))
		return err
	}

	for _, file := range files {
		_, err := fmt.Fprintln(out, file)
		if err != nil {
			return err
		}
	}
	return nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve manifest",
	Short: "Prints the source files listed by a build manifest",
	Long: `Expands a JSON manifest (and every manifest it references) into a deduplicated list of source files.
Entries ending in .json are nested manifests; everything else is a source file relative to the manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		manifestDir, err := filepath.Abs(filepath.Dir(args[0]))
		if err != nil {
			return err
		}

		cfg, err := config.LoadFrom(manifestDir)
		if err != nil {
			return err
		}

		err = cfg.ApplyFlags(c.Flags())
		if err != nil {
			return err
		}
		logger := cmd.NewLogger(cfg)

		opts := resolveOptions{}
		opts.check, err = c.Flags().GetBool("check")
		if err != nil {
			return err
		}

		opts.yaml, err = c.Flags().GetBool("yaml")
		if err != nil {
			return err
		}

		opts.json, err = c.Flags().GetBool("json")
		if err != nil {
			return err
		}

		opts.relative, err = c.Flags().GetBool("relative")
		if err != nil {
			return err
		}

		tree, err := resolveFiles(args[0], opts)
		if err != nil {
			return err
		}

		logger.Debug().
			Int("files", tree.Files.Len()).
			Int("manifests", tree.Manifests.Len()).
			Msgf("resolved %s", args[0])

		return printFiles(c.OutOrStdout(), tree.Files.Paths(), opts)
	},
}

func init() {
	resolveCmd.Flags().Bool("check", false, "fail if a listed source file doesn't exist")
	resolveCmd.Flags().Bool("yaml", false, "treat .yaml and .yml entries as manifests, too")
	resolveCmd.Flags().Bool("json", false, "print the result as a JSON array")
	resolveCmd.Flags().Bool("relative", false, "print paths relative to the current directory")

	rootCmd.AddCommand(resolveCmd)
}
