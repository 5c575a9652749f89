package clips

import (
	"fmt"
	"strings"
	"time"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/internal/tmpl"
)

// Options is the free-form option bag passed through a clip's lifecycle
// hooks and exposed to templates as .Options.
type Options map[string]any

// Get returns the value for key, or nil.
func (o Options) Get(key string) any {
	return o[key]
}

// String returns the text form of the value for key.
func (o Options) String(key string) string {
	return tmpl.Stringify(o[key])
}

// With returns a copy of o with key set to v.
func (o Options) With(key string, v any) Options {
	out := make(Options, len(o)+1)
	for k, val := range o {
		out[k] = val
	}
	out[key] = v
	return out
}

// Position selects where a clip root is inserted relative to its target.
type Position string

// Insertion positions.
const (
	PositionStart   Position = "start"
	PositionEnd     Position = "end"
	PositionBefore  Position = "before"
	PositionAfter   Position = "after"
	PositionReplace Position = "replace"
)

// ParsePosition validates a position. The empty string means PositionEnd.
func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.TrimSpace(strings.ToLower(s))); p {
	case "":
		return PositionEnd, nil
	case PositionStart, PositionEnd, PositionBefore, PositionAfter, PositionReplace:
		return p, nil
	default:
		return "", cerrors.NewRangeError(cerrors.CodeInvalidPosition, fmt.Sprintf("invalid position: %s", s)).
			WithContext("position", s)
	}
}

// sibling reports whether the position inserts next to the target rather than inside it.
func (p Position) sibling() bool {
	return p == PositionBefore || p == PositionAfter || p == PositionReplace
}

// IncludeOptions configure Clip.Include.
type IncludeOptions struct {
	// Position relative to the target. Default PositionEnd.
	Position Position
	// Parent links the clip under an explicit parent instead of the
	// nearest ancestor clip of the insertion point.
	Parent *Clip
	// Options are passed to render, ready, load and update.
	Options Options
}

// Settings are the runtime's resource-loading settings.
type Settings struct {
	// BasePath locates templates, styles and manifests: a directory,
	// an http(s) URL or an s3://bucket/prefix.
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
	// Debug logs style loading failures.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// TemplatesBundled disables fetching templates; only added templates resolve.
	TemplatesBundled bool `mapstructure:"templates_bundled" yaml:"templates_bundled"`
	// StylesBundled disables fetching "<name>/styles.css" for defined types.
	StylesBundled bool `mapstructure:"styles_bundled" yaml:"styles_bundled"`
}

// StyleSink receives the styles of each defined clip type.
type StyleSink interface {
	Import(name, css string) error
}

// Metrics receives runtime instrumentation.
type Metrics interface {
	ObserveRender(template string, d time.Duration, err error)
	ClipCreated(name string)
	ClipAttached(name string)
	ClipDestroyed(name string)
	EventFired(eventType string)
	ListenerFailed(eventType string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRender(string, time.Duration, error) {}
func (nopMetrics) ClipCreated(string)                         {}
func (nopMetrics) ClipAttached(string)                        {}
func (nopMetrics) ClipDestroyed(string)                       {}
func (nopMetrics) EventFired(string)                          {}
func (nopMetrics) ListenerFailed(string)                      {}
