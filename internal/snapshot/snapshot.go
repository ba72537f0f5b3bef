// Package snapshot exposes a saved HTML page through the ui port so the
// classifier and the site adapter can run offline. Snapshots are read-only:
// nodes never go stale, and clicking or scrolling is unsupported.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// Node is one element of a parsed document.
type Node struct {
	n *html.Node
}

var _ ui.Node = (*Node)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader) (*Node, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Node{n: doc}, nil
}

// ParseString parses an HTML fragment or document held in memory.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// Load parses the HTML file at path.
func Load(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Find implements ui.Node.
func (s *Node) Find(loc ui.Locator) (ui.Node, error) {
	found, err := htmlquery.Query(s.n, string(loc))
	if err != nil {
		return nil, fmt.Errorf("bad locator %s: %w", loc, err)
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", loc, ui.ErrNotFound)
	}
	return &Node{n: found}, nil
}

// FindAll implements ui.Node.
func (s *Node) FindAll(loc ui.Locator) ([]ui.Node, error) {
	found, err := htmlquery.QueryAll(s.n, string(loc))
	if err != nil {
		return nil, fmt.Errorf("bad locator %s: %w", loc, err)
	}
	out := make([]ui.Node, len(found))
	for i, n := range found {
		out[i] = &Node{n: n}
	}
	return out, nil
}

// Attribute implements ui.Node.
func (s *Node) Attribute(name string) (string, bool, error) {
	for _, a := range s.n.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// Text implements ui.Node. Whitespace runs collapse to a single space, close
// to what a browser renders.
func (s *Node) Text() (string, error) {
	return strings.Join(strings.Fields(htmlquery.InnerText(s.n)), " "), nil
}

// Click implements ui.Node.
func (s *Node) Click() error {
	return fmt.Errorf("click on snapshot: %w", ui.ErrUnsupported)
}

// HTML returns the outer HTML of the node.
func (s *Node) HTML() string {
	return htmlquery.OutputHTML(s.n, true)
}
