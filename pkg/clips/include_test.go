package clips

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	cerrors "github.com/conneroisu/clips/internal/errors"
	"github.com/conneroisu/clips/pkg/dom"
)

// recordingMetrics records every observation.
type recordingMetrics struct {
	mu        sync.Mutex
	renders   []string
	created   []string
	attached  []string
	destroyed []string
	fired     []string
	failed    []string
}

func (m *recordingMetrics) add(list *[]string, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*list = append(*list, v)
}

func (m *recordingMetrics) ObserveRender(template string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.add(&m.renders, template+":"+status)
}
func (m *recordingMetrics) ClipCreated(name string)        { m.add(&m.created, name) }
func (m *recordingMetrics) ClipAttached(name string)       { m.add(&m.attached, name) }
func (m *recordingMetrics) ClipDestroyed(name string)      { m.add(&m.destroyed, name) }
func (m *recordingMetrics) EventFired(eventType string)    { m.add(&m.fired, eventType) }
func (m *recordingMetrics) ListenerFailed(eventType string) { m.add(&m.failed, eventType) }

func TestIncludePositions(t *testing.T) {
	tests := []struct {
		position Position
		want     string
	}{
		{"", `<div id="t"><p>x</p><span>c</span></div>`},
		{PositionEnd, `<div id="t"><p>x</p><span>c</span></div>`},
		{PositionStart, `<div id="t"><span>c</span><p>x</p></div>`},
		{PositionBefore, `<span>c</span><div id="t"><p>x</p></div>`},
		{PositionAfter, `<div id="t"><p>x</p></div><span>c</span>`},
		{PositionReplace, `<span>c</span>`},
		{"AFTER", `<div id="t"><p>x</p></div><span>c</span>`},
	}

	for _, tt := range tests {
		t.Run(string(tt.position), func(t *testing.T) {
			doc, err := dom.Parse(`<html><head></head><body><div id="t"><p>x</p></div></body></html>`)
			require.NoError(t, err)
			rt := newRuntime(t, nil)
			_, err = rt.Define("card", "", &Proto{Render: markup(`<span>c</span>`)})
			require.NoError(t, err)

			_, err = rt.Include(context.Background(), "card", dom.ByID(doc, "t"), IncludeOptions{Position: tt.position})
			require.NoError(t, err)
			assert.Equal(t, tt.want, dom.InnerHTML(dom.Body(doc)))
		})
	}
}

func TestIncludeValidatesBeforeRendering(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	renders := 0
	_, err := rt.Define("card", "", &Proto{
		Render: func(context.Context, *Clip, Options) (any, error) {
			renders++
			return `<span>c</span>`, nil
		},
	})
	require.NoError(t, err)
	c, err := rt.Create(ctx, "card", nil)
	require.NoError(t, err)

	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	text := &html.Node{Type: html.TextNode, Data: "text"}

	tests := []struct {
		name     string
		target   *html.Node
		position Position
		sentinel error
	}{
		{"unknown position", app, "middle", ErrInvalidPosition},
		{"nil target", nil, PositionEnd, ErrInvalidTarget},
		{"text target", text, PositionEnd, ErrInvalidTarget},
		{"before parentless", detached, PositionBefore, ErrInvalidTarget},
		{"after parentless", detached, PositionAfter, ErrInvalidTarget},
		{"replace parentless", detached, PositionReplace, ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Include(ctx, tt.target, IncludeOptions{Position: tt.position})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}
	assert.Equal(t, 0, renders)
	assert.Nil(t, c.Root())

	_, err = c.Include(ctx, detached, IncludeOptions{Position: PositionStart})
	require.NoError(t, err, "start and end only need an element")
	assert.Equal(t, 1, renders)
}

func TestIncludeReplaceContainment(t *testing.T) {
	ctx := context.Background()

	t.Run("root contains target", func(t *testing.T) {
		_, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("box", "", &Proto{Render: markup(`<section><div class="slot"></div></section>`)})
		require.NoError(t, err)

		c, err := rt.Include(ctx, "box", app, IncludeOptions{})
		require.NoError(t, err)
		root := c.Root()

		inner, err := dom.Query(root, ".slot")
		require.NoError(t, err)
		_, err = c.Include(ctx, inner, IncludeOptions{Position: PositionReplace})
		require.NoError(t, err)

		assert.Same(t, app, root.Parent)
		assert.Equal(t, `<section></section>`, dom.InnerHTML(app))
	})

	t.Run("target contains root", func(t *testing.T) {
		doc, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("box", "", &Proto{Render: markup(`<section>s</section>`)})
		require.NoError(t, err)

		c, err := rt.Include(ctx, "box", app, IncludeOptions{})
		require.NoError(t, err)

		_, err = c.Include(ctx, app, IncludeOptions{Position: PositionReplace})
		require.NoError(t, err)

		assert.Nil(t, app.Parent)
		assert.Equal(t, `<section>s</section>`, dom.InnerHTML(dom.Body(doc)))
	})

	t.Run("target is root", func(t *testing.T) {
		_, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("box", "", &Proto{Render: markup(`<section>s</section>`)})
		require.NoError(t, err)

		c, err := rt.Include(ctx, "box", app, IncludeOptions{})
		require.NoError(t, err)
		root := c.Root()

		for _, pos := range []Position{PositionReplace, PositionBefore, PositionAfter} {
			_, err = c.Include(ctx, root, IncludeOptions{Position: pos})
			require.NoError(t, err, pos)
		}
		assert.Equal(t, `<section>s</section>`, dom.InnerHTML(app))

		for _, pos := range []Position{PositionStart, PositionEnd} {
			_, err = c.Include(ctx, root, IncludeOptions{Position: pos})
			assert.True(t, errors.Is(err, ErrInvalidTarget), pos)
		}
	})

	t.Run("non-replace into own subtree", func(t *testing.T) {
		_, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("box", "", &Proto{Render: markup(`<section><div class="slot"></div></section>`)})
		require.NoError(t, err)

		c, err := rt.Include(ctx, "box", app, IncludeOptions{})
		require.NoError(t, err)
		inner, err := dom.Query(c.Root(), ".slot")
		require.NoError(t, err)

		for _, pos := range []Position{PositionStart, PositionEnd, PositionBefore, PositionAfter} {
			_, err = c.Include(ctx, inner, IncludeOptions{Position: pos})
			assert.True(t, errors.Is(err, ErrInvalidTarget), pos)
		}
		assert.Equal(t, `<section><div class="slot"></div></section>`, dom.InnerHTML(app))
	})
}

func TestIncludeSingleRoot(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	element := &html.Node{Type: html.ElementNode, Data: "article"}
	component := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<em>templ</em>`)
		return err
	})

	tests := []struct {
		name     string
		out      any
		err      error
		want     string
		sentinel error
	}{
		{name: "element", out: `<p>a</p>`, want: `<p>a</p>`},
		{name: "surrounding whitespace and comments", out: "\n  <p>a</p>\n <!-- note -->\n", want: `<p>a</p>`},
		{name: "bytes", out: []byte(`<p>b</p>`), want: `<p>b</p>`},
		{name: "node", out: element, want: `<article></article>`},
		{name: "templ component", out: component, want: `<em>templ</em>`},
		{name: "multiple roots", out: `<p>a</p><p>b</p>`, sentinel: ErrMultipleRoots},
		{name: "stray text", out: `text<p>a</p>`, sentinel: ErrStrayText},
		{name: "empty", out: ``, sentinel: ErrMissingRoot},
		{name: "comment only", out: `<!-- only -->`, sentinel: ErrMissingRoot},
		{name: "nil", out: nil, sentinel: ErrMissingRoot},
		{name: "unsupported value", out: 42, sentinel: ErrUnsupportedNode},
		{name: "text node", out: &html.Node{Type: html.TextNode, Data: "x"}, sentinel: ErrUnsupportedNode},
		{name: "hook error", err: boom, sentinel: ErrRenderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, app := newDoc(t)
			rt := newRuntime(t, nil)
			_, err := rt.Define("card", "", &Proto{
				Render: func(context.Context, *Clip, Options) (any, error) { return tt.out, tt.err },
			})
			require.NoError(t, err)

			c, err := rt.Include(ctx, "card", app, IncludeOptions{})
			if tt.sentinel != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)

				var clipErr *Error
				require.True(t, errors.As(err, &clipErr))
				assert.Equal(t, "card", clipErr.Component)
				if tt.err != nil {
					assert.ErrorIs(t, err, tt.err)
				}
				assert.Equal(t, "", dom.InnerHTML(app))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dom.InnerHTML(app))
			assert.Same(t, c, rt.Find(c.Root()))
		})
	}
}

func TestIncludeRendersOnce(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	renders := 0
	_, err := rt.Define("card", "", &Proto{
		Render: func(context.Context, *Clip, Options) (any, error) {
			renders++
			return `<span>c</span>`, nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "card", app, IncludeOptions{})
	require.NoError(t, err)
	root := c.Root()

	_, err = c.Include(ctx, app, IncludeOptions{Position: PositionStart})
	require.NoError(t, err)

	assert.Equal(t, 1, renders)
	assert.Same(t, root, c.Root())
	assert.Equal(t, `<span>c</span>`, dom.InnerHTML(app))
}

func TestIncludeParentLinkage(t *testing.T) {
	ctx := context.Background()
	doc, app := newDoc(t)
	rt := newRuntime(t, nil)

	_, err := rt.Define("list", "", &Proto{Render: markup(`<ul class="list"><li class="slot"></li></ul>`)})
	require.NoError(t, err)
	_, err = rt.Define("item", "", &Proto{Render: markup(`<li>item</li>`)})
	require.NoError(t, err)

	first, err := rt.Include(ctx, "list", app, IncludeOptions{})
	require.NoError(t, err)
	second, err := rt.Include(ctx, "list", app, IncludeOptions{})
	require.NoError(t, err)
	assert.Nil(t, first.Parent(), "no enclosing clip")

	slot, err := dom.Query(first.Root(), ".slot")
	require.NoError(t, err)
	item, err := rt.Include(ctx, "item", slot, IncludeOptions{})
	require.NoError(t, err)
	assert.Same(t, first, item.Parent(), "nearest ancestor clip")
	assert.Equal(t, []*Clip{item}, first.Children())

	_, err = item.Include(ctx, second.Root(), IncludeOptions{})
	require.NoError(t, err)
	assert.Same(t, second, item.Parent())
	assert.Empty(t, first.Children(), "removed from former parent")
	assert.Equal(t, 1, second.ChildCount())

	_, err = item.Include(ctx, dom.Body(doc), IncludeOptions{Parent: first})
	require.NoError(t, err)
	assert.Same(t, first, item.Parent(), "explicit parent wins")
	assert.Zero(t, second.ChildCount())

	_, err = item.Include(ctx, dom.Body(doc), IncludeOptions{})
	require.NoError(t, err)
	assert.Nil(t, item.Parent(), "unlinked without an enclosing clip")
	assert.Zero(t, first.ChildCount())
}

func TestIncludeRejectsCyclicParent(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	_, err := rt.Define("box", "", &Proto{Render: markup(`<div class="box"></div>`)})
	require.NoError(t, err)

	outer, err := rt.Include(ctx, "box", app, IncludeOptions{})
	require.NoError(t, err)
	inner, err := rt.Include(ctx, "box", outer.Root(), IncludeOptions{})
	require.NoError(t, err)
	require.Same(t, outer, inner.Parent())

	_, err = outer.Include(ctx, app, IncludeOptions{Parent: outer})
	assert.True(t, errors.Is(err, ErrInvalidParent))

	_, err = outer.Include(ctx, app, IncludeOptions{Parent: inner})
	assert.True(t, errors.Is(err, ErrInvalidParent))
	assert.Nil(t, outer.Parent())
}

func TestIncludeReadyAndLoadCycle(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	var calls []string
	var updated Options
	_, err := rt.Define("feed", "", &Proto{
		Render: markup(`<div>feed</div>`),
		Ready:  func(c *Clip, opts Options) { calls = append(calls, "ready") },
		Load: func(ctx context.Context, c *Clip, opts Options) (any, error) {
			calls = append(calls, "load")
			return []string{"a", "b"}, nil
		},
		Update: func(ctx context.Context, c *Clip, opts Options) error {
			calls = append(calls, "update")
			updated = opts
			return nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "feed", app, IncludeOptions{Options: Options{"page": 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ready"}, calls, "load is queued")
	assert.True(t, c.LoadTime().IsZero())

	rt.Loop().Drain()
	assert.Equal(t, []string{"ready", "load", "update"}, calls)
	assert.Equal(t, Options{"page": 2, "data": []string{"a", "b"}}, updated)
	assert.False(t, c.LoadTime().IsZero())
}

func TestLoadWithoutData(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	var updated Options
	_, err := rt.Define("plain", "", &Proto{
		Render: markup(`<div>plain</div>`),
		Update: func(ctx context.Context, c *Clip, opts Options) error {
			updated = opts
			return nil
		},
	})
	require.NoError(t, err)

	_, err = rt.Include(ctx, "plain", app, IncludeOptions{Options: Options{"page": 1}})
	require.NoError(t, err)
	rt.Loop().Drain()

	assert.Equal(t, Options{"page": 1}, updated)
}

func TestLoadFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	updates := 0
	_, err := rt.Define("broken", "", &Proto{
		Render: markup(`<div>broken</div>`),
		Load: func(context.Context, *Clip, Options) (any, error) {
			return nil, errors.New("backend down")
		},
		Update: func(context.Context, *Clip, Options) error {
			updates++
			return nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "broken", app, IncludeOptions{})
	require.NoError(t, err)
	rt.Loop().Drain()

	assert.Zero(t, updates)
	assert.True(t, c.LoadTime().IsZero())
}

func TestAttachConfirmation(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	metrics := &recordingMetrics{}
	rt := newRuntime(t, nil, WithMetrics(metrics))

	_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
	require.NoError(t, err)
	c, err := rt.Create(ctx, "card", nil)
	require.NoError(t, err)

	attached := 0
	_, err = c.On(EventAttach, func(ev *Event) error {
		attached++
		assert.Same(t, c, ev.Target())
		return nil
	})
	require.NoError(t, err)

	_, err = c.Include(ctx, app, IncludeOptions{})
	require.NoError(t, err)
	assert.True(t, c.AttachPending())

	rt.Loop().Frame()
	assert.Zero(t, attached, "first frame only confirms")
	rt.Loop().Frame()
	assert.Equal(t, 1, attached)
	assert.False(t, c.AttachPending())
	assert.Equal(t, []string{"card"}, metrics.attached)

	rt.Loop().Settle(10)
	assert.Equal(t, 1, attached)
}

func TestAttachSupersededByInclude(t *testing.T) {
	ctx := context.Background()
	doc, app := newDoc(t)
	rt := newRuntime(t, nil)

	_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
	require.NoError(t, err)
	c, err := rt.Create(ctx, "card", nil)
	require.NoError(t, err)

	attached := 0
	_, err = c.On(EventAttach, func(*Event) error { attached++; return nil })
	require.NoError(t, err)

	_, err = c.Include(ctx, app, IncludeOptions{})
	require.NoError(t, err)
	rt.Loop().Frame()

	_, err = c.Include(ctx, dom.Body(doc), IncludeOptions{})
	require.NoError(t, err)
	rt.Loop().Frame()
	assert.Zero(t, attached, "the first confirmation was cancelled")

	rt.Loop().Settle(10)
	assert.Equal(t, 1, attached)
}

func TestAttachSkippedWhenStale(t *testing.T) {
	ctx := context.Background()

	t.Run("detached before confirmation", func(t *testing.T) {
		_, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
		require.NoError(t, err)
		c, err := rt.Include(ctx, "card", app, IncludeOptions{})
		require.NoError(t, err)

		attached := 0
		_, err = c.On(EventAttach, func(*Event) error { attached++; return nil })
		require.NoError(t, err)

		rt.Loop().Frame()
		dom.Detach(c.Root())
		rt.Loop().Settle(10)
		assert.Zero(t, attached)
	})

	t.Run("moved under another parent node", func(t *testing.T) {
		doc, app := newDoc(t)
		rt := newRuntime(t, nil)
		_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
		require.NoError(t, err)
		c, err := rt.Include(ctx, "card", app, IncludeOptions{})
		require.NoError(t, err)

		attached := 0
		_, err = c.On(EventAttach, func(*Event) error { attached++; return nil })
		require.NoError(t, err)

		dom.Append(dom.Body(doc), c.Root())
		rt.Loop().Settle(10)
		assert.Zero(t, attached)
	})

	t.Run("not connected", func(t *testing.T) {
		rt := newRuntime(t, nil)
		_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
		require.NoError(t, err)

		detached := &html.Node{Type: html.ElementNode, Data: "div"}
		c, err := rt.Include(ctx, "card", detached, IncludeOptions{})
		require.NoError(t, err)
		assert.False(t, c.AttachPending())
	})
}

func TestClearKeepsRoot(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	n := 0
	_, err := rt.Define("counter", "", &Proto{
		Render: func(context.Context, *Clip, Options) (any, error) {
			n++
			if n == 1 {
				return `<div class="counter"><b>1</b></div>`, nil
			}
			return `<div class="other"><i>2</i></div>`, nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "counter", app, IncludeOptions{})
	require.NoError(t, err)
	root := c.Root()

	require.NoError(t, c.Clear(ctx, nil))
	assert.Same(t, root, c.Root())
	assert.Same(t, app, root.Parent)
	assert.Equal(t, `<div class="counter"><i>2</i></div>`, dom.InnerHTML(app))
}

func TestClearRequiresRoot(t *testing.T) {
	rt := newRuntime(t, nil)
	_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
	require.NoError(t, err)
	c, err := rt.Create(context.Background(), "card", nil)
	require.NoError(t, err)

	err = c.Clear(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrRootRequired))
	assert.Equal(t, ErrorTypePrecondition, cerrors.GetErrorType(err))
}

func TestClearRenderError(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	fail := false
	_, err := rt.Define("card", "", &Proto{
		Render: func(context.Context, *Clip, Options) (any, error) {
			if fail {
				return `<p>a</p><p>b</p>`, nil
			}
			return `<div><span>ok</span></div>`, nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "card", app, IncludeOptions{})
	require.NoError(t, err)

	fail = true
	err = c.Clear(ctx, nil)
	assert.True(t, errors.Is(err, ErrMultipleRoots))
	assert.Equal(t, `<div><span>ok</span></div>`, dom.InnerHTML(app), "content untouched on failure")
}

// listRuntime defines "list", which includes an "item" clip and renders a
// second root when *fail is set.
func listRuntime(t *testing.T, fail *bool, opts ...Option) *Runtime {
	t.Helper()
	rt := newRuntime(t, nil, opts...)
	require.NoError(t, rt.AddTemplate("list/ok", `<ul><% include "clip:item" %></ul>`))
	require.NoError(t, rt.AddTemplate("list/bad", `<ul><% include "clip:item" %></ul><p>second root</p>`))

	_, err := rt.Define("item", "", &Proto{Render: markup(`<li>item</li>`)})
	require.NoError(t, err)
	_, err = rt.Define("list", "", &Proto{
		Render: func(ctx context.Context, c *Clip, opts Options) (any, error) {
			name := "list/ok"
			if *fail {
				name = "list/bad"
			}
			return c.Runtime().Render(ctx, c, name, opts)
		},
	})
	require.NoError(t, err)
	return rt
}

func TestClearRenderErrorKeepsChildren(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	fail := false
	rt := listRuntime(t, &fail)

	c, err := rt.Include(ctx, "list", app, IncludeOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, c.ChildCount())
	item := c.Children()[0]
	before := dom.InnerHTML(app)

	fail = true
	err = c.Clear(ctx, nil)
	assert.True(t, errors.Is(err, ErrMultipleRoots))
	assert.Equal(t, 1, c.ChildCount())
	assert.Same(t, item, c.Children()[0])
	assert.False(t, item.Destroyed())
	assert.Equal(t, before, dom.InnerHTML(app))
}

func TestIncludeRenderErrorLeavesNoChildren(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	metrics := &recordingMetrics{}
	fail := true
	rt := listRuntime(t, &fail, WithMetrics(metrics))

	c, err := rt.Create(ctx, "list", nil)
	require.NoError(t, err)

	attached := 0
	_, err = c.On(EventAttach, func(*Event) error { attached++; return nil })
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = c.Include(ctx, app, IncludeOptions{})
		require.True(t, errors.Is(err, ErrMultipleRoots))
		assert.Nil(t, c.Root())
		assert.Zero(t, c.ChildCount())
	}
	assert.Equal(t, []string{"item", "item"}, metrics.destroyed)

	rt.Loop().Settle(10)
	assert.Zero(t, attached)
	assert.Empty(t, dom.InnerHTML(app))

	fail = false
	_, err = c.Include(ctx, app, IncludeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.ChildCount())
}

func TestAttachPendingClearedWhenDetachedEarly(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	_, err := rt.Define("card", "", &Proto{Render: markup(`<div>card</div>`)})
	require.NoError(t, err)
	c, err := rt.Include(ctx, "card", app, IncludeOptions{})
	require.NoError(t, err)
	require.True(t, c.AttachPending())

	dom.Detach(c.Root())
	rt.Loop().Frame()
	assert.False(t, c.AttachPending())
}

func TestReloadRunsLoadCycle(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	loads, updates := 0, 0
	_, err := rt.Define("feed", "", &Proto{
		Render: markup(`<div>feed</div>`),
		Load: func(context.Context, *Clip, Options) (any, error) {
			loads++
			return loads, nil
		},
		Update: func(ctx context.Context, c *Clip, opts Options) error {
			updates++
			assert.Equal(t, loads, opts.Get("data"))
			return nil
		},
	})
	require.NoError(t, err)

	c, err := rt.Include(ctx, "feed", app, IncludeOptions{})
	require.NoError(t, err)
	rt.Loop().Drain()
	first := c.LoadTime()

	require.NoError(t, c.Reload(ctx, nil))
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, updates)
	assert.False(t, c.LoadTime().Before(first))
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	rt := newRuntime(t, nil)

	_, err := rt.Define("box", "", &Proto{Render: markup(`<div class="box"></div>`)})
	require.NoError(t, err)

	parent, err := rt.Include(ctx, "box", app, IncludeOptions{})
	require.NoError(t, err)
	a, err := rt.Include(ctx, "box", parent.Root(), IncludeOptions{})
	require.NoError(t, err)
	b, err := rt.Include(ctx, "box", parent.Root(), IncludeOptions{})
	require.NoError(t, err)
	require.Equal(t, []*Clip{a, b}, parent.Children())

	parent.RemoveAll()
	assert.Empty(t, parent.Children())
	assert.Nil(t, a.Parent())
	assert.Nil(t, b.Parent())
	assert.Same(t, parent.Root(), a.Root().Parent, "roots stay in place")
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	_, app := newDoc(t)
	metrics := &recordingMetrics{}
	rt := newRuntime(t, nil, WithMetrics(metrics))

	_, err := rt.Define("box", "", &Proto{Render: markup(`<div class="box"></div>`)})
	require.NoError(t, err)

	parent, err := rt.Include(ctx, "box", app, IncludeOptions{})
	require.NoError(t, err)
	c, err := rt.Include(ctx, "box", parent.Root(), IncludeOptions{})
	require.NoError(t, err)
	child, err := rt.Include(ctx, "box", c.Root(), IncludeOptions{})
	require.NoError(t, err)

	var events []string
	_, err = c.On(EventDestroy, func(ev *Event) error {
		events = append(events, ev.Type())
		return nil
	})
	require.NoError(t, err)
	_, err = c.On(EventAttach, func(ev *Event) error {
		events = append(events, ev.Type())
		return nil
	})
	require.NoError(t, err)

	root := c.Root()
	c.Destroy()
	c.Destroy()

	assert.Equal(t, []string{EventDestroy}, events)
	assert.True(t, c.Destroyed())
	assert.Nil(t, root.Parent)
	assert.Nil(t, rt.Find(root))
	assert.Empty(t, parent.Children())
	assert.Nil(t, child.Parent())
	assert.Zero(t, c.ListenerCount(EventAttach))
	assert.False(t, c.AttachPending())
	assert.Equal(t, []string{"box"}, metrics.destroyed)

	_, err = c.Include(ctx, app, IncludeOptions{})
	assert.True(t, errors.Is(err, ErrDestroyed))
	assert.True(t, errors.Is(c.Clear(ctx, nil), ErrDestroyed))

	rt.Loop().Settle(10)
	assert.Equal(t, []string{EventDestroy}, events)
}
