package clips

import (
	"context"
)

// DefaultTemplate is the template rendered by the default Render hook,
// resolved as "<clip name>/<template>".
const DefaultTemplate = "layout"

// Proto declares the behavior of a clip type. Every hook is optional: a
// missing hook delegates to the base type, and finally to the default.
type Proto struct {
	// Template is the default template name. Inherited; default "layout".
	Template string
	// Styles is inline CSS imported when the type is defined. When empty the
	// runtime tries "<name>/styles.css" from its source.
	Styles string
	// Defaults are option values applied under the options given to Create.
	// Inherited; a subtype's values win.
	Defaults Options

	// Create runs when an instance is created.
	Create func(c *Clip, opts Options) error
	// Render produces the clip content: a *html.Node element or fragment,
	// markup as string or []byte, or a templ.Component.
	Render func(ctx context.Context, c *Clip, opts Options) (any, error)
	// Ready runs synchronously after each insertion.
	Ready func(c *Clip, opts Options)
	// Load fetches data. A non-nil result is passed to Update as opts["data"].
	Load func(ctx context.Context, c *Clip, opts Options) (any, error)
	// Update refreshes the clip after a load.
	Update func(ctx context.Context, c *Clip, opts Options) error
}

// Type is a registered clip type.
type Type struct {
	name  string
	base  *Type
	proto Proto
	rt    *Runtime
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

// Base returns the base type, or nil.
func (t *Type) Base() *Type { return t.base }

// Runtime returns the runtime the type is registered in.
func (t *Type) Runtime() *Runtime { return t.rt }

// Extends reports whether t is name or derives from it.
func (t *Type) Extends(name string) bool {
	for ; t != nil; t = t.base {
		if t.name == name {
			return true
		}
	}
	return false
}

// TemplateName returns the default template name, inherited from bases.
func (t *Type) TemplateName() string {
	for ; t != nil; t = t.base {
		if t.proto.Template != "" {
			return t.proto.Template
		}
	}
	return DefaultTemplate
}

// Defaults returns the merged default options of t and its bases.
func (t *Type) Defaults() Options {
	var chain []*Type
	for ; t != nil; t = t.base {
		chain = append(chain, t)
	}
	out := Options{}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].proto.Defaults {
			out[k] = v
		}
	}
	return out
}

// withDefaults returns opts layered over the type's defaults.
func (t *Type) withDefaults(opts Options) Options {
	out := t.Defaults()
	for k, v := range opts {
		out[k] = v
	}
	return out
}

// The methods below resolve a hook starting at t: t's own hook, else the
// nearest base's, else the default. An overriding hook runs the inherited
// behavior through the base *Type returned by Define, e.g. base.Render(ctx, c, opts).

// Create runs the create hook.
func (t *Type) Create(c *Clip, opts Options) error {
	for ; t != nil; t = t.base {
		if t.proto.Create != nil {
			return t.proto.Create(c, opts)
		}
	}
	return nil
}

// Render runs the render hook. The default renders the clip's template.
func (t *Type) Render(ctx context.Context, c *Clip, opts Options) (any, error) {
	for ; t != nil; t = t.base {
		if t.proto.Render != nil {
			return t.proto.Render(ctx, c, opts)
		}
	}
	return c.rt.Render(ctx, c, c.Name()+"/"+c.typ.TemplateName(), opts)
}

// Ready runs the ready hook.
func (t *Type) Ready(c *Clip, opts Options) {
	for ; t != nil; t = t.base {
		if t.proto.Ready != nil {
			t.proto.Ready(c, opts)
			return
		}
	}
}

// Load runs the load hook. The default loads nothing.
func (t *Type) Load(ctx context.Context, c *Clip, opts Options) (any, error) {
	for ; t != nil; t = t.base {
		if t.proto.Load != nil {
			return t.proto.Load(ctx, c, opts)
		}
	}
	return nil, nil
}

// Update runs the update hook.
func (t *Type) Update(ctx context.Context, c *Clip, opts Options) error {
	for ; t != nil; t = t.base {
		if t.proto.Update != nil {
			return t.proto.Update(ctx, c, opts)
		}
	}
	return nil
}
