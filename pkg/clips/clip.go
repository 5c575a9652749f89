package clips

import (
	"context"
	"sync"
	"time"

	"golang.org/x/net/html"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/internal/loop"
	"github.com/conneroisu/clips/pkg/dom"
)

// Clip is a component instance: it owns one root element once rendered,
// links to a parent clip and child clips, and dispatches events.
//
// A Clip is driven from one goroutine at a time; its deferred work runs on
// the runtime's loop.
type Clip struct {
	rt  *Runtime
	typ *Type

	mu        sync.Mutex
	root      *html.Node
	parent    *Clip
	children  []*Clip
	loadTime  time.Time
	listeners map[string][]*Listener
	attachReq loop.FrameID
	destroyed bool
}

func newClip(rt *Runtime, typ *Type) *Clip {
	return &Clip{rt: rt, typ: typ}
}

// Name returns the clip type name.
func (c *Clip) Name() string { return c.typ.name }

// Type returns the clip type.
func (c *Clip) Type() *Type { return c.typ }

// Runtime returns the runtime the clip was created by.
func (c *Clip) Runtime() *Runtime { return c.rt }

// Root returns the root element, or nil before the first include.
func (c *Clip) Root() *html.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Parent returns the parent clip, or nil.
func (c *Clip) Parent() *Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// Children returns a snapshot of the child clips in link order.
func (c *Clip) Children() []*Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Clip(nil), c.children...)
}

// ChildCount returns the number of child clips.
func (c *Clip) ChildCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

// LoadTime returns the time of the last completed load, zero before the first.
func (c *Clip) LoadTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadTime
}

// Destroyed reports whether Destroy has been called.
func (c *Clip) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Render runs the clip's render hook.
func (c *Clip) Render(ctx context.Context, opts Options) (any, error) {
	return c.typ.Render(ctx, c, opts)
}

// isAncestorOf reports whether c is other or one of its ancestors.
func (c *Clip) isAncestorOf(other *Clip) bool {
	for p := other; p != nil; p = p.Parent() {
		if p == c {
			return true
		}
	}
	return false
}

// appendClip links child under c, unlinking it from any previous parent.
func (c *Clip) appendClip(child *Clip) {
	child.mu.Lock()
	old := child.parent
	child.parent = c
	child.mu.Unlock()

	if old == c {
		return
	}
	if old != nil {
		old.removeChild(child)
	}

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()
}

// removeClip unlinks child if it is a child of c.
func (c *Clip) removeClip(child *Clip) {
	if !c.removeChild(child) {
		return
	}
	child.mu.Lock()
	if child.parent == c {
		child.parent = nil
	}
	child.mu.Unlock()
}

func (c *Clip) removeChild(child *Clip) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.children {
		if existing == child {
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			return true
		}
	}
	return false
}

// unlink detaches c from its parent.
func (c *Clip) unlink() {
	if parent := c.Parent(); parent != nil {
		parent.removeClip(c)
	}
}

// RemoveAll unlinks every child clip. Their roots stay where they are.
func (c *Clip) RemoveAll() {
	for _, child := range c.Children() {
		c.removeClip(child)
	}
}

func (c *Clip) cancelAttach() {
	c.mu.Lock()
	id := c.attachReq
	c.attachReq = 0
	c.mu.Unlock()

	if id != 0 {
		c.rt.loop.CancelFrame(id)
	}
}

// scheduleAttach fires EventAttach after two frames, provided the root is
// still connected under the same parent node at both checks.
func (c *Clip) scheduleAttach() {
	c.cancelAttach()

	root := c.Root()
	if !dom.Connected(root) {
		return
	}
	parentNode := root.Parent

	live := func() bool {
		if c.Destroyed() {
			return false
		}
		r := c.Root()
		return r != nil && dom.Connected(r) && r.Parent == parentNode
	}

	id := c.rt.loop.RequestFrame(func() {
		c.mu.Lock()
		c.attachReq = 0
		c.mu.Unlock()

		if !live() {
			return
		}
		next := c.rt.loop.RequestFrame(func() {
			c.mu.Lock()
			c.attachReq = 0
			c.mu.Unlock()

			if !live() {
				return
			}
			c.rt.metrics.ClipAttached(c.Name())
			_ = c.Fire(EventAttach, SpreadPre)
		})
		c.mu.Lock()
		c.attachReq = next
		c.mu.Unlock()
	})

	c.mu.Lock()
	c.attachReq = id
	c.mu.Unlock()
}

// AttachPending reports whether an attach confirmation is scheduled.
func (c *Clip) AttachPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachReq != 0
}

// load runs load, stamps the load time, then runs update with the loaded
// data merged into opts as "data".
func (c *Clip) load(ctx context.Context, opts Options) error {
	data, err := c.typ.Load(ctx, c, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.loadTime = time.Now()
	c.mu.Unlock()

	if data != nil {
		opts = opts.With("data", data)
	}
	return c.typ.Update(ctx, c, opts)
}

// queueLoad runs the load cycle on the loop. Failures are logged.
func (c *Clip) queueLoad(ctx context.Context, opts Options) {
	ctx = context.WithoutCancel(ctx)
	c.rt.loop.Queue(func() {
		if c.Destroyed() {
			return
		}
		if err := c.load(ctx, opts); err != nil {
			c.rt.logger.Error(ctx, err, "Unable to load clip", "clip", c.Name())
		}
	})
}

// Reload clears the clip and runs the load cycle synchronously.
func (c *Clip) Reload(ctx context.Context, opts Options) error {
	if err := c.Clear(ctx, opts); err != nil {
		return err
	}
	return c.load(ctx, opts)
}

// Clear re-renders the clip and replaces the content of its root. The root
// node and its place in the document are kept; the previous child clips
// are unlinked.
func (c *Clip) Clear(ctx context.Context, opts Options) error {
	if c.Destroyed() {
		return destroyedError(c)
	}
	root := c.Root()
	if root == nil {
		return cerrors.NewPreconditionError(cerrors.CodeRootRequired, "no root element").WithComponent(c.Name())
	}

	previous := c.Children()

	out, err := c.Render(ctx, opts)
	if err != nil {
		c.discardChildren(previous)
		return cerrors.WrapRender(c.Name(), err)
	}
	fresh, err := c.rootFrom(ctx, out)
	if err != nil {
		c.discardChildren(previous)
		return err
	}

	for _, child := range previous {
		c.removeClip(child)
	}
	dom.Detach(fresh)
	dom.ReplaceChildren(root, contentOf(fresh))
	return nil
}

// discardChildren destroys the children linked to c that are not in keep.
// Includes resolved by a render that later fails leave such children.
func (c *Clip) discardChildren(keep []*Clip) {
	kept := make(map[*Clip]bool, len(keep))
	for _, child := range keep {
		kept[child] = true
	}
	for _, child := range c.Children() {
		if !kept[child] {
			c.removeClip(child)
			child.Destroy()
		}
	}
}

// contentOf moves the children of n into a new fragment.
func contentOf(n *html.Node) *html.Node {
	frag := dom.NewFragment()
	for _, child := range dom.Children(n) {
		n.RemoveChild(child)
		frag.AppendChild(child)
	}
	return frag
}

// Destroy fires EventDestroy, cancels a pending attach, detaches the root
// from the document, unlinks the clip from its parent and children and
// drops its listeners. A destroyed clip cannot be included or cleared.
func (c *Clip) Destroy() {
	if c.Destroyed() {
		return
	}
	_ = c.Fire(EventDestroy, SpreadNone)

	c.cancelAttach()
	c.unlink()
	c.RemoveAll()

	c.mu.Lock()
	c.destroyed = true
	root := c.root
	c.listeners = nil
	c.mu.Unlock()

	if root != nil {
		dom.Detach(root)
		c.rt.assoc.remove(root)
	}
	c.rt.metrics.ClipDestroyed(c.Name())
}

func destroyedError(c *Clip) error {
	return cerrors.NewPreconditionError(cerrors.CodeDestroyed, "clip destroyed").WithComponent(c.Name())
}
