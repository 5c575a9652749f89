package clips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/internal/registry"
	"github.com/conneroisu/clips/internal/tmpl"
	"github.com/conneroisu/clips/pkg/dom"
)

const (
	// ClipPrefix marks an include name as a clip reference rather than a
	// sub-template: <% include "clip:card" %>.
	ClipPrefix = "clip:"
	// TemplateExt is appended to template names when reading them from the source.
	TemplateExt = ".tmpl"

	slotTag = "clip-slot"
)

// Scope is the data a template executes with.
type Scope struct {
	Clip    *Clip
	Options Options
}

type includeCall struct {
	name string
	opts Options
}

// Render executes the named template for c and resolves its includes in
// call order. The result is a fragment.
func (rt *Runtime) Render(ctx context.Context, c *Clip, name string, opts Options) (*html.Node, error) {
	ctx, span := rt.tracer.Start(ctx, "clips.render", trace.WithAttributes(
		attribute.String("template", name),
	))
	defer span.End()

	start := time.Now()
	frag, err := rt.render(ctx, c, name, opts)
	rt.metrics.ObserveRender(name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return frag, nil
}

func (rt *Runtime) render(ctx context.Context, c *Clip, name string, opts Options) (*html.Node, error) {
	t, err := rt.Template(ctx, name)
	if err != nil {
		return nil, err
	}

	var calls []includeCall
	out, err := t.Execute(Scope{Clip: c, Options: opts}, func(name string, o map[string]any) (string, error) {
		calls = append(calls, includeCall{name: name, opts: Options(o)})
		return tmpl.Slot, nil
	})
	if err != nil {
		return nil, err
	}

	frag, err := dom.ParseFragment(out)
	if err != nil {
		return nil, cerrors.NewTemplateError(cerrors.CodeTemplateExec,
			fmt.Sprintf("unable to parse output of template %q", name), err)
	}

	slots := dom.ElementsByTag(frag, slotTag)
	if len(slots) != len(calls) {
		return nil, cerrors.NewStructuralError(cerrors.CodeIncludeMismatch,
			fmt.Sprintf("includes mismatch: %d vs %d", len(slots), len(calls))).
			WithContext("template", name)
	}

	for i, call := range calls {
		if err := rt.resolve(ctx, c, slots[i], call); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

// resolve replaces one slot with the included clip or template.
func (rt *Runtime) resolve(ctx context.Context, c *Clip, slot *html.Node, call includeCall) error {
	if clipName, ok := strings.CutPrefix(call.name, ClipPrefix); ok {
		child, err := rt.Create(ctx, clipName, call.opts)
		if err != nil {
			return err
		}
		_, err = child.Include(ctx, slot, IncludeOptions{
			Position: PositionReplace,
			Parent:   c,
			Options:  child.typ.withDefaults(call.opts),
		})
		return err
	}

	sub, err := rt.Render(ctx, c, call.name, call.opts)
	if err != nil {
		return err
	}
	dom.ReplaceWith(slot, sub)
	return nil
}

// Template returns the compiled template, reading and compiling
// "<name>.tmpl" from the source on first use.
func (rt *Runtime) Template(ctx context.Context, name string) (*tmpl.Template, error) {
	if t, ok := rt.templates.Get(name); ok {
		return t, nil
	}
	if rt.settings.TemplatesBundled || rt.source == nil {
		return nil, cerrors.NewResolutionError(cerrors.CodeTemplateNotFound,
			fmt.Sprintf("template %q not found", name), nil).WithContext("template", name)
	}
	if err := registry.ValidateName(name); err != nil {
		return nil, cerrors.NewResolutionError(cerrors.CodeTemplateNotFound,
			fmt.Sprintf("template %q not found", name), err).WithContext("template", name)
	}

	src, err := rt.source.Read(ctx, name+TemplateExt)
	if err != nil {
		return nil, cerrors.NewResolutionError(cerrors.CodeTemplateNotFound,
			fmt.Sprintf("template %q not found", name), err).WithContext("template", name)
	}
	return rt.addTemplate(name, string(src))
}

// AddTemplate compiles and registers a template. Registered templates are
// used in preference to the source; a name can be added once.
func (rt *Runtime) AddTemplate(name, src string) error {
	t, err := tmpl.Compile(name, src, rt.funcs)
	if err != nil {
		return err
	}
	return rt.templates.Register(name, t)
}

func (rt *Runtime) addTemplate(name, src string) (*tmpl.Template, error) {
	t, err := tmpl.Compile(name, src, rt.funcs)
	if err != nil {
		return nil, err
	}
	if err := rt.templates.Register(name, t); err != nil {
		// Another render compiled it first.
		if existing, ok := rt.templates.Get(name); ok && errors.Is(err, cerrors.ErrDuplicateClip) {
			return existing, nil
		}
		return nil, err
	}
	rt.logger.Debug(context.Background(), "Template compiled", "template", name)
	return t, nil
}
