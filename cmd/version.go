package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/clips/internal/version"
)

type versionOptions struct {
	format   string
	short    bool
	detailed bool
}

func newVersionCmd() *cobra.Command {
	opts := &versionOptions{}
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for clips including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  clips version               # Show version
  clips version --detailed    # Show detailed version info
  clips version --format json # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.short, "short", false, "Show short version only")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "Show detailed version information")
	return cmd
}

func runVersion(w io.Writer, opts *versionOptions) error {
	switch opts.format {
	case "json":
		return outputVersionJSON(w)
	case "text":
		switch {
		case opts.short:
			_, err := fmt.Fprintln(w, version.GetShortVersion())
			return err
		case opts.detailed:
			return outputVersionDetailed(w)
		default:
			return outputVersionDefault(w)
		}
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", opts.format)
	}
}

func outputVersionDefault(w io.Writer) error {
	info := version.GetBuildInfo()

	fmt.Fprintf(w, "clips %s", info.Version)
	if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
		fmt.Fprintf(w, " (%s)", info.GitCommit[:7])
	}
	if version.IsDirty() {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)

	if !info.BuildTime.IsZero() {
		fmt.Fprintf(w, "Built: %s\n", info.BuildTime.Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
	_, err := fmt.Fprintf(w, "Platform: %s\n", info.Platform)
	return err
}

func outputVersionDetailed(w io.Writer) error {
	fmt.Fprintln(w, version.GetDetailedVersion())
	if version.IsDirty() {
		fmt.Fprintln(w, "Working directory: dirty")
	}
	buildType := "development"
	if version.IsRelease() {
		buildType = "release"
	}
	_, err := fmt.Fprintf(w, "Build type: %s\n", buildType)
	return err
}

func outputVersionJSON(w io.Writer) error {
	info := version.GetBuildInfo()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
		"is_release": version.IsRelease(),
		"is_dirty":   version.IsDirty(),
	})
}
