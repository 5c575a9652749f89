package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := Parse(src)
	require.NoError(t, err)
	return doc
}

func mustFragment(t *testing.T, src string) *html.Node {
	t.Helper()
	frag, err := ParseFragment(src)
	require.NoError(t, err)
	return frag
}

func TestParseFragmentAcceptsContextSensitiveMarkup(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"div", `<div class="a">x</div>`},
		{"table row", `<tr><td>cell</td></tr>`},
		{"list item", `<li>one</li>`},
		{"text", `just text`},
		{"custom element", `<clip-slot></clip-slot>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag := mustFragment(t, tt.src)
			assert.True(t, IsFragment(frag))
			assert.Equal(t, tt.src, Render(frag))
		})
	}
}

func TestConnected(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="app"></div></body></html>`)
	app := ByID(doc, "app")
	require.NotNil(t, app)
	assert.True(t, Connected(app))

	frag := mustFragment(t, `<p>x</p>`)
	assert.False(t, Connected(frag.FirstChild))

	Detach(app)
	assert.False(t, Connected(app))
	assert.False(t, Connected(nil))
}

func TestContains(t *testing.T) {
	frag := mustFragment(t, `<div><span><b>x</b></span></div><p></p>`)
	div := frag.FirstChild
	b := div.FirstChild.FirstChild

	assert.True(t, Contains(div, div))
	assert.True(t, Contains(div, b))
	assert.False(t, Contains(b, div))
	assert.False(t, Contains(div, div.NextSibling))
	assert.False(t, Contains(nil, b))
}

func TestInsertionHelpers(t *testing.T) {
	frag := mustFragment(t, `<ul><li>b</li></ul>`)
	ul := frag.FirstChild
	b := ul.FirstChild

	li := func(s string) *html.Node { return mustFragment(t, "<li>"+s+"</li>").FirstChild }

	Prepend(ul, li("a"))
	Append(ul, li("d"))
	After(b, li("c"))
	Before(b, li("a2"))

	assert.Equal(t, `<ul><li>a</li><li>a2</li><li>b</li><li>c</li><li>d</li></ul>`, Render(ul))
}

func TestInsertMovesAttachedNode(t *testing.T) {
	frag := mustFragment(t, `<div id="x"><i></i></div><div id="y"></div>`)
	x, y := frag.FirstChild, frag.FirstChild.NextSibling
	i := x.FirstChild

	Append(y, i)
	assert.Nil(t, x.FirstChild)
	assert.Equal(t, i, y.FirstChild)

	// Inserting a node next to itself is a no-op.
	After(i, i)
	Before(i, i)
	Prepend(y, i)
	assert.Equal(t, `<div id="y"><i></i></div>`, Render(y))
}

func TestInsertFragmentMovesChildren(t *testing.T) {
	host := mustFragment(t, `<div></div>`).FirstChild
	content := mustFragment(t, `<a></a>text<b></b>`)

	Append(host, content)
	assert.Equal(t, `<div><a></a>text<b></b></div>`, Render(host))
	assert.Nil(t, content.FirstChild)
}

func TestReplaceWith(t *testing.T) {
	frag := mustFragment(t, `<p>1</p><slot-x></slot-x><p>3</p>`)
	slot := frag.FirstChild.NextSibling

	ReplaceWith(slot, mustFragment(t, `<p>2a</p><p>2b</p>`))
	assert.Equal(t, `<p>1</p><p>2a</p><p>2b</p><p>3</p>`, Render(frag))
	assert.Nil(t, slot.Parent)
}

func TestReplaceChildren(t *testing.T) {
	host := mustFragment(t, `<div><old></old>text</div>`).FirstChild
	ReplaceChildren(host, mustFragment(t, `<new></new>`))
	assert.Equal(t, `<div><new></new></div>`, Render(host))
}

func TestAttrAndText(t *testing.T) {
	n := mustFragment(t, `<a href="/x">hello <b>world</b></a>`).FirstChild
	v, ok := Attr(n, "href")
	assert.True(t, ok)
	assert.Equal(t, "/x", v)

	SetAttr(n, "href", "/y")
	SetAttr(n, "title", "t")
	assert.Equal(t, `<a href="/y" title="t">hello <b>world</b></a>`, Render(n))
	assert.Equal(t, "hello world", Text(n))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(" \n\t\r\f"))
	assert.True(t, IsBlank(""))
	assert.False(t, IsBlank(" x "))
}

func TestSelectors(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<main id="main" class="page wide">
			<ul class="items"><li class="item">a</li><li class="item active" data-k="v">b</li></ul>
			<clip-slot></clip-slot>
		</main>
		<footer><li>other</li></footer>
	</body></html>`)

	tests := []struct {
		selector string
		count    int
	}{
		{"li", 3},
		{"#main", 1},
		{".item", 2},
		{"li.item.active", 1},
		{"main.page.wide", 1},
		{"ul.items li", 2},
		{"main li", 2},
		{"[data-k]", 1},
		{"[data-k=v]", 1},
		{"[data-k='w']", 0},
		{"clip-slot", 1},
		{"*", 0},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, err := QueryAll(doc, tt.selector)
			require.NoError(t, err)
			if tt.selector == "*" {
				assert.NotEmpty(t, got)
				return
			}
			assert.Len(t, got, tt.count)
		})
	}

	first, err := Query(doc, "li")
	require.NoError(t, err)
	assert.Equal(t, "a", Text(first))

	main, err := Query(doc, "#main")
	require.NoError(t, err)
	self, err := Query(main, "main")
	require.NoError(t, err)
	assert.Nil(t, self, "the root itself is not a descendant")

	// Selector groups and child combinators come with the engine.
	got, err := QueryAll(doc, "ul > li.active, footer li")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	for _, bad := range []string{"", "   ", "#", "a.", "[x", "a$b"} {
		_, err := ParseSelector(bad)
		assert.Error(t, err, "selector %q", bad)
	}
}

func TestHeadStyles(t *testing.T) {
	doc := mustParse(t, `<html><head><title>t</title></head><body></body></html>`)
	sink := NewHeadStyles(doc)

	require.NoError(t, sink.Import("card", ".card{color:red}"))
	require.NoError(t, sink.Import("card", ".ignored{}"))
	require.NoError(t, sink.Import("list", "ul{margin:0}"))

	styles, err := QueryAll(doc, "style")
	require.NoError(t, err)
	require.Len(t, styles, 1)

	id, _ := Attr(styles[0], "id")
	src, _ := Attr(styles[0], "data-source")
	assert.Equal(t, StylesID, id)
	assert.Equal(t, "clips", src)

	css := Text(styles[0])
	assert.Contains(t, css, "/* card */\n.card{color:red}")
	assert.Contains(t, css, "/* list */\nul{margin:0}")
	assert.False(t, strings.Contains(css, "ignored"))
	assert.True(t, sink.Imported("card"))
	assert.False(t, sink.Imported("nope"))

	// Style text is rendered verbatim.
	assert.Contains(t, Render(doc), "ul{margin:0}")
}
