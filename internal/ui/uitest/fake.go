// Package uitest provides an in-memory UI tree implementing the ui port, for
// driving the harvesting core without a browser.
package uitest

import (
	"fmt"
	"sync"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// Node is a fake UI node. Children are keyed by the exact locator string the
// code under test will ask for.
type Node struct {
	Name     string
	Attrs    map[string]string
	Content  string
	Children map[ui.Locator][]*Node

	// Query, when set, is consulted before Children and lets a test compute
	// the visible nodes from external state (for example a scroll offset).
	Query func(loc ui.Locator) ([]*Node, bool)

	// Stale makes every read on this node fail with ui.ErrStale.
	Stale bool

	// OnClick runs on Click.
	OnClick func()

	mu     sync.Mutex
	clicks int
}

// New returns an empty node with the given debug name.
func New(name string) *Node {
	return &Node{Name: name, Attrs: map[string]string{}, Children: map[ui.Locator][]*Node{}}
}

// Attr sets an attribute and returns n for chaining.
func (n *Node) Attr(name, value string) *Node {
	n.Attrs[name] = value
	return n
}

// WithText sets the rendered text and returns n for chaining.
func (n *Node) WithText(s string) *Node {
	n.Content = s
	return n
}

// Add registers children under loc and returns n for chaining.
func (n *Node) Add(loc ui.Locator, children ...*Node) *Node {
	n.Children[loc] = append(n.Children[loc], children...)
	return n
}

// Clicks returns how many times the node was clicked.
func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

func (n *Node) lookup(loc ui.Locator) []*Node {
	if n.Query != nil {
		if nodes, ok := n.Query(loc); ok {
			return nodes
		}
	}
	return n.Children[loc]
}

// Find implements ui.Node.
func (n *Node) Find(loc ui.Locator) (ui.Node, error) {
	if n.Stale {
		return nil, ui.ErrStale
	}
	nodes := n.lookup(loc)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %s: %w", n.Name, loc, ui.ErrNotFound)
	}
	return nodes[0], nil
}

// FindAll implements ui.Node.
func (n *Node) FindAll(loc ui.Locator) ([]ui.Node, error) {
	if n.Stale {
		return nil, ui.ErrStale
	}
	nodes := n.lookup(loc)
	out := make([]ui.Node, len(nodes))
	for i, c := range nodes {
		out[i] = c
	}
	return out, nil
}

// Attribute implements ui.Node.
func (n *Node) Attribute(name string) (string, bool, error) {
	if n.Stale {
		return "", false, ui.ErrStale
	}
	v, ok := n.Attrs[name]
	return v, ok, nil
}

// Text implements ui.Node.
func (n *Node) Text() (string, error) {
	if n.Stale {
		return "", ui.ErrStale
	}
	return n.Content, nil
}

// Click implements ui.Node.
func (n *Node) Click() error {
	if n.Stale {
		return ui.ErrStale
	}
	n.mu.Lock()
	n.clicks++
	hook := n.OnClick
	n.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Scroller is a fake scroll container. Offsets are clamped to [0, Max].
type Scroller struct {
	*Node
	Offset int
	Max    int

	// Script, when non-empty, replaces the clamped offset: each
	// ScrollOffset call returns the next entry, repeating the last one.
	Script []int

	// Deltas records every ScrollBy call.
	Deltas []int

	reads int
}

// NewScroller returns a scroller with the given debug name and bound.
func NewScroller(name string, max int) *Scroller {
	return &Scroller{Node: New(name), Max: max}
}

// ScrollOffset implements ui.Scrollable.
func (s *Scroller) ScrollOffset() (int, error) {
	if s.Stale {
		return 0, ui.ErrStale
	}
	if len(s.Script) > 0 {
		i := s.reads
		if i >= len(s.Script) {
			i = len(s.Script) - 1
		}
		s.reads++
		return s.Script[i], nil
	}
	s.reads++
	return s.Offset, nil
}

// ScrollBy implements ui.Scrollable.
func (s *Scroller) ScrollBy(delta int) error {
	if s.Stale {
		return ui.ErrStale
	}
	s.Deltas = append(s.Deltas, delta)
	s.Offset += delta
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.Offset > s.Max {
		s.Offset = s.Max
	}
	return nil
}

// Reads returns how many times the offset was read.
func (s *Scroller) Reads() int {
	return s.reads
}
