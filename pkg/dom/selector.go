package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ParseSelector compiles a CSS selector group such as "ul.items li",
// "#main" or "a[href]".
func ParseSelector(s string) (cascadia.Selector, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty selector")
	}
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", s, err)
	}
	return sel, nil
}

// Query returns the first descendant of root matching selector, or nil.
func Query(root *html.Node, selector string) (*html.Node, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return cascadia.Query(root, sel), nil
}

// QueryAll returns every descendant of root matching selector, in document
// order.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return cascadia.QueryAll(root, sel), nil
}

// ElementsByTag returns the descendant elements of root named tag, in document order.
func ElementsByTag(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n != root && n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Walk visits root and its descendants in document order until fn returns false.
func Walk(root *html.Node, fn func(*html.Node) bool) bool {
	if root == nil {
		return true
	}
	if !fn(root) {
		return false
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}
