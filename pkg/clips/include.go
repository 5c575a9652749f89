package clips

import (
	"bytes"
	"context"
	"fmt"

	"github.com/a-h/templ"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/pkg/dom"
)

// Include renders the clip if it has no root yet, inserts the root relative
// to target and links the clip into the clip tree.
//
// The clip becomes a child of opts.Parent, or of the nearest clip owning an
// ancestor of the insertion point. Ready runs before Include returns; the
// attach event fires two frames later if the root is still connected under
// the same parent node, and the load cycle is queued on the loop.
func (c *Clip) Include(ctx context.Context, target *html.Node, opts IncludeOptions) (*Clip, error) {
	ctx, span := c.rt.tracer.Start(ctx, "clips.include", trace.WithAttributes(
		attribute.String("clip", c.Name()),
		attribute.String("position", string(opts.Position)),
	))
	defer span.End()

	if err := c.include(ctx, target, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return c, nil
}

func (c *Clip) include(ctx context.Context, target *html.Node, opts IncludeOptions) error {
	if c.Destroyed() {
		return destroyedError(c)
	}
	if !dom.IsElement(target) {
		return cerrors.NewValidationError(cerrors.CodeInvalidTarget, "invalid target: an element is required").
			WithComponent(c.Name())
	}
	pos, err := ParsePosition(string(opts.Position))
	if err != nil {
		return err
	}
	if pos.sibling() && target.Parent == nil {
		return cerrors.NewValidationError(cerrors.CodeInvalidTarget,
			fmt.Sprintf("invalid target: position %s requires a target with a parent", pos)).
			WithComponent(c.Name())
	}
	if opts.Parent != nil && c.isAncestorOf(opts.Parent) {
		return cerrors.NewValidationError(cerrors.CodeInvalidParent,
			"invalid parent: a clip cannot be linked under itself or its descendants").
			WithComponent(c.Name())
	}

	root, err := c.ensureRoot(ctx, opts.Options)
	if err != nil {
		return err
	}
	if err := insert(c, root, target, pos); err != nil {
		return err
	}

	parent := opts.Parent
	if parent == nil {
		parent = c.rt.assoc.closest(root)
		if parent != nil && c.isAncestorOf(parent) {
			parent = nil
		}
	}
	if parent != nil {
		parent.appendClip(c)
	} else {
		c.unlink()
	}

	c.typ.Ready(c, opts.Options)
	c.scheduleAttach()
	c.queueLoad(ctx, opts.Options)
	return nil
}

func (c *Clip) ensureRoot(ctx context.Context, opts Options) (*html.Node, error) {
	if root := c.Root(); root != nil {
		return root, nil
	}
	previous := c.Children()
	out, err := c.Render(ctx, opts)
	if err != nil {
		c.discardChildren(previous)
		return nil, cerrors.WrapRender(c.Name(), err)
	}
	root, err := c.rootFrom(ctx, out)
	if err != nil {
		c.discardChildren(previous)
		return nil, err
	}

	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	c.rt.assoc.set(root, c)
	return root, nil
}

// insert places root relative to target.
func insert(c *Clip, root, target *html.Node, pos Position) error {
	if pos == PositionReplace {
		switch {
		case root == target:
		case dom.Contains(root, target):
			dom.Detach(target)
		default:
			dom.ReplaceWith(target, root)
		}
		return nil
	}

	if root == target {
		if pos == PositionBefore || pos == PositionAfter {
			return nil
		}
		return cerrors.NewValidationError(cerrors.CodeInvalidTarget,
			"invalid target: cannot insert a root into itself").WithComponent(c.Name())
	}
	if dom.Contains(root, target) {
		return cerrors.NewValidationError(cerrors.CodeInvalidTarget,
			"invalid target: the target lies inside the clip root").WithComponent(c.Name())
	}

	switch pos {
	case PositionStart:
		dom.Prepend(target, root)
	case PositionBefore:
		dom.Before(target, root)
	case PositionAfter:
		dom.After(target, root)
	default:
		dom.Append(target, root)
	}
	return nil
}

// rootFrom converts render output to a single detached root element.
func (c *Clip) rootFrom(ctx context.Context, out any) (*html.Node, error) {
	var frag *html.Node
	switch v := out.(type) {
	case *html.Node:
		if v == nil {
			return nil, missingRoot(c)
		}
		if dom.IsElement(v) {
			return v, nil
		}
		if !dom.IsFragment(v) {
			return nil, cerrors.NewStructuralError(cerrors.CodeUnsupportedNode,
				"unsupported render result: an element or fragment is required").WithComponent(c.Name())
		}
		frag = v
	case string:
		return c.parseRoot(v)
	case []byte:
		return c.parseRoot(string(v))
	case templ.Component:
		var buf bytes.Buffer
		if err := v.Render(ctx, &buf); err != nil {
			return nil, cerrors.WrapRender(c.Name(), err)
		}
		return c.parseRoot(buf.String())
	case nil:
		return nil, missingRoot(c)
	default:
		return nil, cerrors.NewStructuralError(cerrors.CodeUnsupportedNode,
			fmt.Sprintf("unsupported render result %T", out)).WithComponent(c.Name())
	}
	return c.singleRoot(frag)
}

func (c *Clip) parseRoot(src string) (*html.Node, error) {
	frag, err := dom.ParseFragment(src)
	if err != nil {
		return nil, cerrors.WrapRender(c.Name(), err)
	}
	return c.singleRoot(frag)
}

// singleRoot finds the only element of frag and detaches it. Whitespace and
// comments may surround it; anything else is an error.
func (c *Clip) singleRoot(frag *html.Node) (*html.Node, error) {
	var root *html.Node
	for _, n := range dom.Children(frag) {
		switch n.Type {
		case html.ElementNode:
			if root != nil {
				return nil, cerrors.NewStructuralError(cerrors.CodeMultipleRoots,
					"multiple root elements").WithComponent(c.Name())
			}
			root = n
		case html.TextNode:
			if !dom.IsBlank(n.Data) {
				return nil, cerrors.NewStructuralError(cerrors.CodeStrayText,
					"text outside the root element").WithComponent(c.Name()).
					WithContext("text", n.Data)
			}
		case html.CommentNode:
		default:
			return nil, cerrors.NewStructuralError(cerrors.CodeUnsupportedNode,
				"unsupported node outside the root element").WithComponent(c.Name())
		}
	}
	if root == nil {
		return nil, missingRoot(c)
	}
	dom.Detach(root)
	return root, nil
}

func missingRoot(c *Clip) error {
	return cerrors.NewStructuralError(cerrors.CodeMissingRoot, "missing clip root").WithComponent(c.Name())
}
