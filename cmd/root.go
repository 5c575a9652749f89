// Package cmd provides the clips command-line interface.
//
// Configuration System:
//
//	Settings come from several sources with clear precedence:
//	1. Command-line flags (--base, --port, ...) - highest priority
//	2. Individual environment variables (CLIPS_SERVER_PORT, ...)
//	3. The configuration file: --config, else CLIPS_CONFIG_FILE, else
//	   .clips.yml in the current directory - lowest priority
//
// Environment Variables:
//
//	CLIPS_CONFIG_FILE: Path to a custom configuration file
//	CLIPS_CLIPS_BASE_PATH: Where templates, styles and manifests live
//	CLIPS_SERVER_PORT: Override server port
//	And every other option following the CLIPS_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/clips/internal/config"
	"github.com/conneroisu/clips/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Render and serve pages built from clips components",
		Long: `clips renders component trees described by templates, manifests and
styles into HTML pages.

A clip is a named component type: "<name>/clip.yaml" declares its base type,
default template and default options, "<name>/<template>.tmpl" holds its
markup and "<name>/styles.css" its styles. Resources are read from a local
directory, an http(s) URL or an s3://bucket/prefix.

Quick Start:
  clips render home                 Render the home clip to stdout
  clips render home -o index.html   Render to a file
  clips watch home -o index.html    Re-render whenever resources change
  clips serve home                  Serve the page with live reload`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is .clips.yml, can also use CLIPS_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error, off)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringP("base", "b", "./clips", "clip resources: a directory, an http(s) URL or s3://bucket/prefix")
	flags.Bool("debug", false, "log style loading failures")

	cmd.AddCommand(
		newRenderCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext is Execute with a context that commands observe.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// persistentBindings map configuration keys to the persistent flags.
var persistentBindings = map[string]string{
	"log.level":       "log-level",
	"log.format":      "log-format",
	"clips.base_path": "base",
	"clips.debug":     "debug",
}

// load reads the configuration for cmd, binding the persistent flags and
// the given command flags over the file and environment values.
func (o *rootOptions) load(cmd *cobra.Command, bindings map[string]string) (*config.Config, logging.Logger, error) {
	file := o.configFile
	if file == "" {
		file = os.Getenv("CLIPS_CONFIG_FILE")
	}

	v := viper.New()
	if err := config.InitWith(v, file); err != nil {
		return nil, nil, err
	}
	for _, table := range []map[string]string{persistentBindings, bindings} {
		for key, name := range table {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, nil, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "file", used)
	}
	return cfg, logger, nil
}

// pageBindings map the page flags shared by render, watch and serve.
var pageBindings = map[string]string{
	"page.file":     "page",
	"page.target":   "target",
	"page.position": "position",
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().String("page", "", "HTML page to render into (default is a blank page)")
	cmd.Flags().StringP("target", "t", "body", "selector of the element the clip is included at")
	cmd.Flags().String("position", "end", "insertion position: start, end, before, after or replace")
}

func mergeBindings(tables ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, table := range tables {
		for k, v := range table {
			out[k] = v
		}
	}
	return out
}

// writeOutput writes the page to out, or to the command output when out is
// empty. Files are replaced atomically so readers never see a partial page.
func writeOutput(cmd *cobra.Command, out, page string) error {
	if out == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), page)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".clips-*.html")
	if err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(page + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), out)
}
