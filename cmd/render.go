package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/clips/internal/renderer"
)

type renderOptions struct {
	set []string
	out string
}

var renderBindings = mergeBindings(pageBindings, map[string]string{
	"loop.max_frames": "frames",
})

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [clip]",
		Short: "Render a clip into a page",
		Long: `Render a clip into an HTML page and print it or write it to a file.

The clip is included at the target element of the page, then the frame loop
runs until attachments are confirmed and loads finish.

Examples:
  clips render home                          # Render into a blank page
  clips render card --set title=Hi --set n=3 # Pass options
  clips render nav --page index.html --target "#nav" --position replace
  clips render home -o dist/index.html       # Write to a file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, root, opts)
		},
	}

	addPageFlags(cmd)
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "clip option as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the page to a file instead of stdout")
	cmd.Flags().Int("frames", 10, "maximum frames to run before output")
	return cmd
}

func runRender(cmd *cobra.Command, args []string, root *rootOptions, opts *renderOptions) error {
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

	pages := renderer.NewPageRenderer(cfg, renderer.WithLogger(logger))
	result, err := pages.Render(cmd.Context(), renderer.Request{Options: options})
	if err != nil {
		return err
	}

	logger.Debug(cmd.Context(), "Rendered page", "clip", cfg.Page.Clip, "frames", result.Frames)
	return writeOutput(cmd, opts.out, result.HTML)
}
