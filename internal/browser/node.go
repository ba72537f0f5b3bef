package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/ui"
)

// staleMessages are the CDP error texts seen when a remote object or DOM node
// was released between finding it and reading it.
var staleMessages = []string{
	"Cannot find context with specified id",
	"Could not find node with given id",
	"No node with given id found",
	"does not belong to the document",
	"Node is detached from document",
	"Cannot find object with id",
}

// mapErr translates rod errors into the ui error taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ui.ErrStale, err)
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && isStaleMessage(cdpErr.Message) {
		return fmt.Errorf("%w: %v", ui.ErrStale, err)
	}
	if isStaleMessage(err.Error()) {
		return fmt.Errorf("%w: %v", ui.ErrStale, err)
	}
	return err
}

func isStaleMessage(msg string) bool {
	for _, s := range staleMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// pageNode is the document root of a tab.
type pageNode struct {
	page *rod.Page
}

var _ ui.Node = (*pageNode)(nil)

func (p *pageNode) Find(loc ui.Locator) (ui.Node, error) {
	has, el, err := p.page.HasX(string(loc))
	if err != nil {
		return nil, mapErr(err)
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", loc, ui.ErrNotFound)
	}
	return &element{el: el}, nil
}

func (p *pageNode) FindAll(loc ui.Locator) ([]ui.Node, error) {
	els, err := p.page.ElementsX(string(loc))
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapAll(els), nil
}

func (p *pageNode) Attribute(string) (string, bool, error) {
	return "", false, nil
}

func (p *pageNode) Text() (string, error) {
	has, body, err := p.page.HasX("//body")
	if err != nil || !has {
		return "", mapErr(err)
	}
	text, err := body.Text()
	return text, mapErr(err)
}

func (p *pageNode) Click() error {
	return fmt.Errorf("click on document: %w", ui.ErrUnsupported)
}

// element is a live DOM element. It is Scrollable; the offset is the
// element's scrollTop.
type element struct {
	el *rod.Element
}

var _ ui.Scrollable = (*element)(nil)

func wrapAll(els rod.Elements) []ui.Node {
	out := make([]ui.Node, len(els))
	for i, el := range els {
		out[i] = &element{el: el}
	}
	return out
}

func (e *element) Find(loc ui.Locator) (ui.Node, error) {
	has, el, err := e.el.HasX(string(loc))
	if err != nil {
		return nil, mapErr(err)
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", loc, ui.ErrNotFound)
	}
	return &element{el: el}, nil
}

func (e *element) FindAll(loc ui.Locator) ([]ui.Node, error) {
	els, err := e.el.ElementsX(string(loc))
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapAll(els), nil
}

func (e *element) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, mapErr(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) Text() (string, error) {
	text, err := e.el.Text()
	return text, mapErr(err)
}

func (e *element) Click() error {
	return mapErr(e.el.Click(proto.InputMouseButtonLeft, 1))
}

func (e *element) ScrollOffset() (int, error) {
	res, err := e.el.Eval(`() => this.scrollTop`)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(res.Value.Num()), nil
}

func (e *element) ScrollBy(delta int) error {
	_, err := e.el.Eval(`(d) => { this.scrollTop += d }`, delta)
	return mapErr(err)
}

// withContext rebinds e to ctx for the duration of one interaction.
func (e *element) withContext(ctx context.Context) *rod.Element {
	return e.el.Context(ctx)
}

// asElement recovers the rod element behind a ui node created by this package.
func asElement(n ui.Node) (*element, error) {
	e, ok := n.(*element)
	if !ok {
		return nil, fmt.Errorf("node %T is not a browser element: %w", n, ui.ErrUnsupported)
	}
	return e, nil
}
