package clips

import (
	"sync"

	"golang.org/x/net/html"
)

// assocTable maps clip root nodes back to their clips. It holds both
// strongly: a clip lives as long as its root is registered, and an entry
// is removed when the clip is destroyed or the runtime is dropped.
type assocTable struct {
	mu      sync.Mutex
	entries map[*html.Node]*Clip
}

func newAssocTable() *assocTable {
	return &assocTable{entries: make(map[*html.Node]*Clip)}
}

func (a *assocTable) set(n *html.Node, c *Clip) {
	a.mu.Lock()
	a.entries[n] = c
	a.mu.Unlock()
}

func (a *assocTable) get(n *html.Node) *Clip {
	if n == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[n]
}

func (a *assocTable) remove(n *html.Node) {
	if n == nil {
		return
	}
	a.mu.Lock()
	delete(a.entries, n)
	a.mu.Unlock()
}

func (a *assocTable) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// closest returns the clip owning the nearest ancestor of n, or nil.
func (a *assocTable) closest(n *html.Node) *Clip {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if c := a.get(p); c != nil {
			return c
		}
	}
	return nil
}
