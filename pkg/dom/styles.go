package dom

import (
	"fmt"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StylesID is the id of the style element collecting clip styles.
const StylesID = "clips-styles"

// HeadStyles appends clip styles into a single <style> element in the head
// of a document. Each name is imported once.
type HeadStyles struct {
	mu   sync.Mutex
	doc  *html.Node
	seen map[string]bool
}

// NewHeadStyles creates a style sink for doc.
func NewHeadStyles(doc *html.Node) *HeadStyles {
	return &HeadStyles{doc: doc, seen: make(map[string]bool)}
}

// Import appends css under a "/* name */" banner. Repeated names are ignored.
func (h *HeadStyles) Import(name, css string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.seen[name] {
		return nil
	}

	style, err := h.styleElement()
	if err != nil {
		return err
	}

	style.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: fmt.Sprintf("\n/* %s */\n%s\n", name, css),
	})
	h.seen[name] = true
	return nil
}

// Imported reports whether styles for name have been imported.
func (h *HeadStyles) Imported(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen[name]
}

func (h *HeadStyles) styleElement() (*html.Node, error) {
	if existing := findByID(h.doc, StylesID); existing != nil {
		return existing, nil
	}

	head := Head(h.doc)
	if head == nil {
		return nil, fmt.Errorf("document has no head element")
	}
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr: []html.Attribute{
			{Key: "id", Val: StylesID},
			{Key: "data-source", Val: "clips"},
		},
	}
	head.AppendChild(style)
	return style, nil
}

// Head returns the head element of doc, or nil.
func Head(doc *html.Node) *html.Node {
	heads := ElementsByTag(doc, "head")
	if len(heads) == 0 {
		return nil
	}
	return heads[0]
}

// Body returns the body element of doc, or nil.
func Body(doc *html.Node) *html.Node {
	bodies := ElementsByTag(doc, "body")
	if len(bodies) == 0 {
		return nil
	}
	return bodies[0]
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if v, ok := Attr(n, "id"); ok && v == id {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// ByID returns the element of root with the given id, or nil.
func ByID(root *html.Node, id string) *html.Node {
	return findByID(root, id)
}
