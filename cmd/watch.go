package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/clips/internal/renderer"
	"github.com/conneroisu/clips/internal/watcher"
)

type watchOptions struct {
	renderOptions
	delay time.Duration
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch [clip]",
		Short: "Re-render a clip whenever its resources change",
		Long: `Render a clip like "render", then watch the base path, the page file
and server.watch paths and render again after every batch of changes. Each
render uses a fresh runtime, so templates, manifests and styles are always
re-read.

Examples:
  clips watch home -o dist/index.html
  clips watch home --delay 300ms -o dist/index.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, root, opts)
		},
	}

	addPageFlags(cmd)
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "clip option as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the page to a file instead of stdout")
	cmd.Flags().Int("frames", 10, "maximum frames to run before output")
	cmd.Flags().DurationVar(&opts.delay, "delay", watcher.DefaultDelay, "debounce delay for file changes")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string, root *rootOptions, opts *watchOptions) error {
	cfg, logger, err := root.load(cmd, renderBindings)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Page.Clip = args[0]
	}
	options, err := renderer.ParseSet(opts.set)
	if err != nil {
		return err
	}

	paths := cfg.WatchPaths()
	if len(paths) == 0 {
		return fmt.Errorf("nothing to watch: the base path is remote and no page or server.watch paths are set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pages := renderer.NewPageRenderer(cfg, renderer.WithLogger(logger))
	render := func(ctx context.Context) error {
		result, err := pages.Render(ctx, renderer.Request{Options: options})
		if err != nil {
			return err
		}
		return writeOutput(cmd, opts.out, result.HTML)
	}

	if err := render(ctx); err != nil {
		logger.Error(ctx, err, "Render failed, waiting for changes")
	}

	fw, err := watcher.NewFileWatcher(opts.delay, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.ResourceFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoBackupFilter)
	if opts.out != "" {
		fw.AddFilter(notFile(opts.out))
	}
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		logger.Info(ctx, "Changes detected, rendering", "changes", len(events))
		return render(ctx)
	})

	for _, path := range paths {
		if err := fw.Watch(path); err != nil {
			logger.Warn(ctx, err, "Failed to watch path", "path", path)
		}
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "Watching for changes", "paths", strings.Join(paths, ", "))

	<-ctx.Done()
	return nil
}


// notFile rejects path, so writing the output does not trigger a render.
func notFile(path string) watcher.FileFilter {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return func(p string) bool {
		other, err := filepath.Abs(p)
		if err != nil {
			other = filepath.Clean(p)
		}
		return other != abs
	}
}
