// Package dom provides the host-document helpers used by clips: fragment
// parsing and rendering, tree surgery, containment and connectivity checks,
// and a small selector matcher.
//
// Documents and fragments are golang.org/x/net/html trees. A fragment is a
// DocumentNode whose Data is FragmentData; a node is connected when its top
// ancestor is a real document.
package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FragmentData marks a DocumentNode as a detached fragment.
const FragmentData = "#document-fragment"

// NewFragment returns an empty fragment.
func NewFragment() *html.Node {
	return &html.Node{Type: html.DocumentNode, Data: FragmentData}
}

// IsFragment reports whether n is a fragment node.
func IsFragment(n *html.Node) bool {
	return n != nil && n.Type == html.DocumentNode && n.Data == FragmentData
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Parse parses a full HTML document.
func Parse(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

// ParseFragment parses src as the content of a <template> element, so any
// markup (table rows, list items, bare text) is accepted in place.
func ParseFragment(src string) (*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
	nodes, err := html.ParseFragment(strings.NewReader(src), context)
	if err != nil {
		return nil, err
	}
	frag := NewFragment()
	for _, n := range nodes {
		frag.AppendChild(n)
	}
	return frag, nil
}

// Render serializes n. Fragments and documents render their children.
func Render(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if IsFragment(n) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			_ = html.Render(&buf, c)
		}
		return buf.String()
	}
	_ = html.Render(&buf, n)
	return buf.String()
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// Top returns the outermost ancestor of n (n itself when it has no parent).
func Top(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Connected reports whether n is attached to a document.
func Connected(n *html.Node) bool {
	top := Top(n)
	return top != nil && top.Type == html.DocumentNode && top.Data != FragmentData
}

// Contains reports whether n is a or a descendant of a.
func Contains(a, n *html.Node) bool {
	if a == nil {
		return false
	}
	for ; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Children returns the child nodes of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// ElementChildren returns the element children of n.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Prepend inserts n as the first child of parent. Fragments insert their children.
func Prepend(parent, n *html.Node) {
	InsertBefore(parent, n, parent.FirstChild)
}

// Append inserts n as the last child of parent. Fragments insert their children.
func Append(parent, n *html.Node) {
	InsertBefore(parent, n, nil)
}

// InsertBefore inserts n into parent before ref (at the end when ref is nil).
// n is detached first; a fragment contributes its children and ends up empty.
func InsertBefore(parent, n, ref *html.Node) {
	if IsFragment(n) {
		for _, c := range Children(n) {
			n.RemoveChild(c)
			parent.InsertBefore(c, ref)
		}
		return
	}
	if ref == n {
		ref = n.NextSibling
	}
	Detach(n)
	parent.InsertBefore(n, ref)
}

// Before inserts n immediately before ref. ref must have a parent.
func Before(ref, n *html.Node) {
	InsertBefore(ref.Parent, n, ref)
}

// After inserts n immediately after ref. ref must have a parent.
func After(ref, n *html.Node) {
	InsertBefore(ref.Parent, n, ref.NextSibling)
}

// ReplaceWith puts n in place of old and detaches old. old must have a parent.
func ReplaceWith(old, n *html.Node) {
	if old == n {
		return
	}
	parent := old.Parent
	next := old.NextSibling
	Detach(old)
	InsertBefore(parent, n, next)
}

// ReplaceChildren removes every child of parent and moves the children of
// frag in their place.
func ReplaceChildren(parent, frag *html.Node) {
	for _, c := range Children(parent) {
		parent.RemoveChild(c)
	}
	if frag != nil {
		InsertBefore(parent, frag, nil)
	}
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or adds the named attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// IsBlank reports whether s consists only of HTML whitespace.
func IsBlank(s string) bool {
	return strings.TrimLeft(s, " \t\n\f\r") == ""
}
