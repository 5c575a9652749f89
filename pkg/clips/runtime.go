// Package clips is a component framework over an HTML document tree.
//
// A Runtime holds clip types, compiled templates and the cooperative loop
// that runs deferred work. A clip renders a template (or any markup) into a
// single root element, is inserted into the document relative to a target
// element, links itself under the nearest enclosing clip and runs its
// lifecycle hooks:
//
//	rt, _ := clips.New(clips.Settings{BasePath: "./clips"})
//	card, _ := rt.Define("card", "", &clips.Proto{})
//	c, err := rt.Include(ctx, "card", body, clips.IncludeOptions{})
//	rt.Loop().Settle(10)
package clips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/internal/logging"
	"github.com/conneroisu/clips/internal/loop"
	"github.com/conneroisu/clips/internal/manifest"
	"github.com/conneroisu/clips/internal/registry"
	"github.com/conneroisu/clips/internal/source"
	"github.com/conneroisu/clips/internal/tmpl"
	"github.com/conneroisu/clips/pkg/dom"
)

// StylesFile is the stylesheet read for a defined type unless styles are bundled.
const StylesFile = "styles.css"

// maxBaseDepth bounds on-demand base resolution.
const maxBaseDepth = 32

// Runtime owns clip types and templates. It replaces any process-wide
// registry: two runtimes never share state.
type Runtime struct {
	settings  Settings
	types     *registry.Registry[*Type]
	templates *registry.Registry[*tmpl.Template]
	source    source.Source
	logger    logging.Logger
	loop      *loop.Loop
	styles    StyleSink
	tracer    trace.Tracer
	metrics   Metrics
	funcs     template.FuncMap
	assoc     *assocTable
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithSource sets the resource source, overriding Settings.BasePath.
func WithSource(src source.Source) Option {
	return func(rt *Runtime) { rt.source = src }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithLoop sets the loop deferred work runs on.
func WithLoop(l *loop.Loop) Option {
	return func(rt *Runtime) { rt.loop = l }
}

// WithStyles sets where the styles of defined types are imported.
func WithStyles(sink StyleSink) Option {
	return func(rt *Runtime) { rt.styles = sink }
}

// WithTracer sets the tracer used for render and include spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(rt *Runtime) { rt.tracer = tracer }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(rt *Runtime) {
		if m != nil {
			rt.metrics = m
		}
	}
}

// WithFuncs adds template functions. They override the built-ins.
func WithFuncs(funcs template.FuncMap) Option {
	return func(rt *Runtime) {
		for k, v := range funcs {
			rt.funcs[k] = v
		}
	}
}

// New creates a runtime.
func New(settings Settings, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		settings:  settings,
		types:     registry.New[*Type]("clip"),
		templates: registry.New[*tmpl.Template]("template"),
		logger:    logging.Nop(),
		metrics:   nopMetrics{},
		funcs:     template.FuncMap{},
		assoc:     newAssocTable(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger = rt.logger.WithComponent("clips")

	if rt.source == nil && settings.BasePath != "" {
		src, err := source.Open(settings.BasePath, source.Options{})
		if err != nil {
			return nil, fmt.Errorf("opening base path: %w", err)
		}
		rt.source = src
	}
	if rt.loop == nil {
		l, err := loop.New(loop.WithLogger(rt.logger))
		if err != nil {
			return nil, err
		}
		rt.loop = l
	}
	if rt.tracer == nil {
		rt.tracer = otel.Tracer("github.com/conneroisu/clips")
	}
	return rt, nil
}

// Settings returns the runtime settings.
func (rt *Runtime) Settings() Settings { return rt.settings }

// Loop returns the loop running deferred work.
func (rt *Runtime) Loop() *loop.Loop { return rt.loop }

// Run drives the loop until ctx ends.
func (rt *Runtime) Run(ctx context.Context) error { return rt.loop.Run(ctx) }

// Type returns a registered type.
func (rt *Runtime) Type(name string) (*Type, bool) {
	return rt.types.Get(strings.TrimSpace(name))
}

// Types returns the registered type names, sorted.
func (rt *Runtime) Types() []string { return rt.types.Names() }

// WatchTypes returns a channel receiving every type defined after the call.
func (rt *Runtime) WatchTypes() <-chan registry.Event[*Type] { return rt.types.Watch() }

// Define registers a clip type. base names an already defined type or is
// empty. Redefining a name fails and leaves the first definition in place.
func (rt *Runtime) Define(name, base string, proto *Proto) (*Type, error) {
	name, err := registry.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var baseType *Type
	if base != "" {
		trimmed := strings.TrimSpace(base)
		if trimmed == "" {
			return nil, cerrors.NewValidationError(cerrors.CodeInvalidBase, "invalid base: a clip name is required").
				WithComponent(name)
		}
		var ok bool
		baseType, ok = rt.types.Get(trimmed)
		if !ok {
			return nil, cerrors.NewValidationError(cerrors.CodeInvalidBase,
				fmt.Sprintf("invalid base: clip %q not defined", trimmed)).WithComponent(name)
		}
	}
	if proto == nil {
		return nil, cerrors.NewValidationError(cerrors.CodeInvalidProto, "invalid proto: a prototype is required").
			WithComponent(name)
	}

	t := &Type{name: name, base: baseType, proto: *proto, rt: rt}
	if err := rt.types.Register(name, t); err != nil {
		return nil, err
	}
	rt.logger.Debug(context.Background(), "Clip defined", "clip", name, "base", base)

	rt.loop.Queue(func() { rt.importStyles(t) })
	return t, nil
}

func (rt *Runtime) importStyles(t *Type) {
	if rt.styles == nil {
		return
	}
	ctx := context.Background()

	css := t.proto.Styles
	if css == "" {
		if rt.settings.StylesBundled || rt.source == nil {
			return
		}
		data, err := rt.source.Read(ctx, t.name+"/"+StylesFile)
		if err != nil {
			if rt.settings.Debug {
				rt.logger.Warn(ctx, err, "Unable to load styles", "clip", t.name)
			}
			return
		}
		css = string(data)
	}
	if err := rt.styles.Import(t.name, css); err != nil && rt.settings.Debug {
		rt.logger.Warn(ctx, err, "Unable to import styles", "clip", t.name)
	}
}

// Create instantiates a clip. A type that is not defined is loaded from
// "<name>/clip.yaml" in the source, bases included.
func (rt *Runtime) Create(ctx context.Context, name string, opts Options) (*Clip, error) {
	name = strings.TrimSpace(name)
	t, err := rt.resolveType(ctx, name, 0)
	if err != nil {
		return nil, cerrors.NewResolutionError(cerrors.CodeClipNotFound,
			fmt.Sprintf("clip %q not found", name), err).WithComponent(name)
	}

	c := newClip(rt, t)
	if err := t.Create(c, t.withDefaults(opts)); err != nil {
		return nil, err
	}
	rt.metrics.ClipCreated(t.name)
	return c, nil
}

func (rt *Runtime) resolveType(ctx context.Context, name string, depth int) (*Type, error) {
	if t, ok := rt.types.Get(name); ok {
		return t, nil
	}
	if err := registry.ValidateName(name); err != nil {
		return nil, err
	}
	if depth > maxBaseDepth {
		return nil, fmt.Errorf("base chain of %q is too deep", name)
	}
	if rt.source == nil {
		return nil, fmt.Errorf("no source configured")
	}

	data, err := rt.source.Read(ctx, manifest.Path(name))
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	if m.Base != "" {
		if _, err := rt.resolveType(ctx, m.Base, depth+1); err != nil {
			return nil, fmt.Errorf("base %q: %w", m.Base, err)
		}
	}

	t, err := rt.Define(name, m.Base, &Proto{
		Template: m.Template,
		Styles:   m.Styles,
		Defaults: m.Data,
	})
	if errors.Is(err, cerrors.ErrDuplicateClip) {
		if existing, ok := rt.types.Get(name); ok {
			return existing, nil
		}
	}
	return t, err
}

// Include creates the named clip and includes it at target.
func (rt *Runtime) Include(ctx context.Context, name string, target *html.Node, opts IncludeOptions) (*Clip, error) {
	c, err := rt.Create(ctx, name, opts.Options)
	if err != nil {
		return nil, err
	}
	opts.Options = c.typ.withDefaults(opts.Options)
	return c.Include(ctx, target, opts)
}

// Find returns the clip whose root is n.
func (rt *Runtime) Find(n *html.Node) *Clip {
	return rt.assoc.get(n)
}

// FindIn returns the clip whose root is the first element under n matching
// selector.
func (rt *Runtime) FindIn(n *html.Node, selector string) (*Clip, error) {
	el, err := dom.Query(n, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, nil
	}
	return rt.assoc.get(el), nil
}
