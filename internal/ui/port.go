// Package ui defines the narrow capability interface the harvesting core uses
// to observe and drive the messaging client. Everything the core knows about
// the page arrives through Node and Scrollable; the live browser, saved HTML
// snapshots and in-memory fakes all implement the same contract.
package ui

import (
	"errors"
	"fmt"
)

// Locator is an XPath expression. Locators starting with "./" or ".//" are
// evaluated relative to the node they are passed to.
type Locator string

var (
	// ErrNotFound is returned by Find when the locator matches nothing.
	ErrNotFound = errors.New("ui: node not found")
	// ErrStale is returned when a previously found node was invalidated
	// mid-read, typically because the virtualized list recycled it.
	ErrStale = errors.New("ui: node is stale")
	// ErrUnsupported is returned by read-only implementations for actions.
	ErrUnsupported = errors.New("ui: operation not supported")
)

// Node is a handle to one element of the client's UI tree.
type Node interface {
	// Find returns the first node matching loc, or ErrNotFound.
	Find(loc Locator) (Node, error)
	// FindAll returns every node matching loc. No match is not an error.
	FindAll(loc Locator) ([]Node, error)
	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool, error)
	// Text returns the rendered text of the node.
	Text() (string, error)
	// Click activates the node.
	Click() error
}

// Scrollable is a Node whose scroll offset can be read and adjusted.
type Scrollable interface {
	Node
	ScrollOffset() (int, error)
	ScrollBy(delta int) error
}

// IsStale reports whether err is a transience error.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// Has reports whether loc matches anything under n. Read failures count as
// absence.
func Has(n Node, loc Locator) bool {
	_, err := n.Find(loc)
	return err == nil
}

// FindText returns the text of the first node matching loc.
func FindText(n Node, loc Locator) (string, error) {
	child, err := n.Find(loc)
	if err != nil {
		return "", err
	}
	return child.Text()
}

// FindAttribute returns an attribute of the first node matching loc. A
// missing attribute is reported as ErrNotFound.
func FindAttribute(n Node, loc Locator, name string) (string, error) {
	child, err := n.Find(loc)
	if err != nil {
		return "", err
	}
	val, ok, err := child.Attribute(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("attribute %q on %s: %w", name, loc, ErrNotFound)
	}
	return val, nil
}

// AsScrollable asserts that n can be scrolled.
func AsScrollable(n Node) (Scrollable, error) {
	s, ok := n.(Scrollable)
	if !ok {
		return nil, fmt.Errorf("node %T is not scrollable: %w", n, ErrUnsupported)
	}
	return s, nil
}
