// Package version reports how the clips binary was built.
//
// Release builds stamp the variables below with -ldflags, for example:
//
//	go build -ldflags "-X github.com/conneroisu/clips/internal/version.Version=v0.4.0 \
//	  -X github.com/conneroisu/clips/internal/version.GitCommit=$(git rev-parse HEAD) \
//	  -X github.com/conneroisu/clips/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unstamped builds fall back to the module and VCS data the Go toolchain
// embeds in every binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	devVersion    = "dev"
	unknownCommit = "unknown"
)

// BuildInfo contains version and build information.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	BuildUser string    `json:"build_user,omitempty"`
}

// Set at build time using -ldflags.
var (
	Version   = devVersion
	GitCommit = unknownCommit
	// BuildTime is RFC3339.
	BuildTime = "unknown"
	BuildUser = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetBuildInfo returns comprehensive build information.
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: GetBuildTime(),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		BuildUser: BuildUser,
	}
}

// GetVersion returns the stamped version, else the module version, else a
// dev version carrying the VCS revision.
func GetVersion() string {
	if Version != "" && Version != devVersion {
		return Version
	}
	info, ok := readBuildInfo()
	if !ok {
		return devVersion
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	if rev := setting(info, "vcs.revision"); len(rev) >= 7 {
		return devVersion + "-" + rev[:7]
	}
	return devVersion
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != unknownCommit {
		return GitCommit
	}
	if info, ok := readBuildInfo(); ok {
		if rev := setting(info, "vcs.revision"); rev != "" {
			return rev
		}
	}
	return unknownCommit
}

// GetBuildTime returns the build time, or the zero time when it is unknown.
func GetBuildTime() time.Time {
	if t := parseISOTime(BuildTime); !t.IsZero() {
		return t
	}
	if info, ok := readBuildInfo(); ok {
		return parseISOTime(setting(info, "vcs.time"))
	}
	return time.Time{}
}

// GetShortVersion returns a short version string suitable for display.
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()
	if commit == unknownCommit || len(commit) < 7 {
		return version
	}
	if strings.HasPrefix(version, devVersion) {
		return devVersion + "-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, commit[:7])
}

// GetDetailedVersion returns one "Key: value" line per known build fact.
func GetDetailedVersion() string {
	info := GetBuildInfo()

	parts := []string{"Version: " + info.Version}
	if info.GitCommit != unknownCommit {
		parts = append(parts, "Commit: "+info.GitCommit)
	}
	if !info.BuildTime.IsZero() {
		parts = append(parts, "Built: "+info.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts, "Go: "+info.GoVersion, "Platform: "+info.Platform)
	if info.BuildUser != "unknown" && info.BuildUser != "" {
		parts = append(parts, "User: "+info.BuildUser)
	}
	return strings.Join(parts, "\n")
}

// IsRelease reports whether this is a release build.
func IsRelease() bool {
	version := GetVersion()
	return version != devVersion && !strings.HasPrefix(version, devVersion+"-")
}

// IsDirty reports whether the working tree had uncommitted changes.
func IsDirty() bool {
	if info, ok := readBuildInfo(); ok {
		return setting(info, "vcs.modified") == "true"
	}
	return false
}

func setting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseISOTime returns the zero time for anything it cannot parse.
func parseISOTime(value string) time.Time {
	if value == "" || value == "unknown" {
		return time.Time{}
	}
	for _, format := range timeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
