// Package rodquery adapts a live Rod page to the domquery capability.
// The adapter drives nothing: navigation, lifecycle and recycling stay
// with the embedding application. Every probe is bounded by the
// caller-supplied context.
package rodquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domresolve/domquery"
)

// Page wraps a rod page as a domquery.Capability.
type Page struct {
	page *rod.Page
}

// New wraps an existing rod page.
func New(page *rod.Page) *Page {
	return &Page{page: page}
}

// StealthPage opens a fresh stealth tab on the given browser and wraps
// it. The caller owns navigation and must close the returned rod page.
func StealthPage(b *rod.Browser) (*Page, *rod.Page, error) {
	p, err := stealth.Page(b)
	if err != nil {
		return nil, nil, fmt.Errorf("rodquery: stealth page: %w", err)
	}
	return New(p), p, nil
}

// QueryAll returns all elements matching a CSS selector.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]domquery.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("rodquery: query %q: %w", selector, err)
	}
	return wrap(els), nil
}

// QueryXPath returns all elements matching an XPath expression.
func (p *Page) QueryXPath(ctx context.Context, expr string) ([]domquery.Element, error) {
	els, err := p.page.Context(ctx).ElementsX(expr)
	if err != nil {
		return nil, fmt.Errorf("rodquery: xpath %q: %w", expr, err)
	}
	return wrap(els), nil
}

func wrap(els rod.Elements) []domquery.Element {
	out := make([]domquery.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

type element struct {
	el *rod.Element
}

func (e *element) Tag(ctx context.Context) (string, error) {
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return "", err
	}
	return strings.ToLower(node.NodeName), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	val, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (e *element) Attributes(ctx context.Context) (map[string]string, error) {
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return nil, err
	}
	// CDP flattens attributes as [name, value, name, value, ...].
	out := make(map[string]string, len(node.Attributes)/2)
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		out[node.Attributes[i]] = node.Attributes[i+1]
	}
	return out, nil
}

func (e *element) Attached(ctx context.Context) bool {
	res, err := e.el.Context(ctx).Eval(`() => document.contains(this)`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *element) Interactable(ctx context.Context) (bool, error) {
	_, err := e.el.Context(ctx).Interactable()
	if err != nil {
		// Covered, out of viewport or invisible: not an error for the
		// engine, just a non-interactable candidate.
		return false, nil
	}
	return true, nil
}

func (e *element) DOMPath(ctx context.Context) (string, error) {
	return e.el.Context(ctx).GetXPath(true)
}

func (e *element) Evaluate(ctx context.Context, js string) (string, error) {
	res, err := e.el.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
