// Package htmldoc adapts a static HTML snapshot to the domquery
// capability. CSS matching is delegated to goquery, XPath to htmlquery.
//
// Visibility and interactability are heuristic: a snapshot carries no
// layout, so the adapter inspects markup (hidden attributes, inline
// display styles, non-rendered containers) instead of geometry.
package htmldoc

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/domresolve/domquery"
)

// Doc is a parsed HTML snapshot implementing domquery.Capability.
type Doc struct {
	root *html.Node
	gq   *goquery.Document
}

// Parse builds a Doc from raw HTML.
func Parse(raw string) (*Doc, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Doc{root: root, gq: goquery.NewDocumentFromNode(root)}, nil
}

// MustParse is Parse for tests and literals; it panics on malformed
// input that html.Parse cannot recover (which in practice never happens
// for string input).
func MustParse(raw string) *Doc {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// QueryAll returns all elements matching a CSS selector in document
// order. Invalid selectors match nothing.
func (d *Doc) QueryAll(ctx context.Context, selector string) ([]domquery.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel := d.gq.Find(selector)
	out := make([]domquery.Element, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		out = append(out, &element{doc: d, node: n})
	}
	return out, nil
}

// QueryXPath returns all elements matching an XPath expression.
func (d *Doc) QueryXPath(ctx context.Context, expr string) ([]domquery.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: xpath %q: %w", expr, err)
	}
	out := make([]domquery.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &element{doc: d, node: n})
		}
	}
	return out, nil
}

type element struct {
	doc  *Doc
	node *html.Node
}

func (e *element) Tag(ctx context.Context) (string, error) {
	return strings.ToLower(e.node.Data), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "template", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *element) Attributes(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out[a.Key] = a.Val
	}
	return out, nil
}

func (e *element) Attached(ctx context.Context) bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// nonRendered are containers whose content never displays.
var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if nonRendered[n.Data] {
			return false, nil
		}
		if hiddenByAttrs(n) {
			return false, nil
		}
	}
	return true, nil
}

func hiddenByAttrs(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "type":
			if n.Data == "input" && a.Val == "hidden" {
				return true
			}
		case "style":
			s := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// interactiveTags can receive input without extra attributes.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true,
	"textarea": true, "option": true, "label": true,
}

func (e *element) Interactable(ctx context.Context) (bool, error) {
	visible, err := e.Visible(ctx)
	if err != nil || !visible {
		return false, err
	}
	if interactiveTags[e.node.Data] {
		if dis, ok, _ := e.Attribute(ctx, "disabled"); ok && dis != "false" {
			return false, nil
		}
		return true, nil
	}
	if _, ok, _ := e.Attribute(ctx, "onclick"); ok {
		return true, nil
	}
	if role, ok, _ := e.Attribute(ctx, "role"); ok {
		switch role {
		case "button", "link", "tab", "menuitem", "checkbox", "radio", "switch":
			return true, nil
		}
	}
	if ti, ok, _ := e.Attribute(ctx, "tabindex"); ok && ti != "-1" {
		return true, nil
	}
	return false, nil
}

// DOMPath returns a CSS-like path from the document root, using
// :nth-of-type indices for disambiguation.
func (e *element) DOMPath(ctx context.Context) (string, error) {
	var parts []string
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		idx := 1
		for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == n.Data {
				idx++
			}
		}
		part := n.Data
		if idx > 1 {
			part = fmt.Sprintf("%s:nth-of-type(%d)", n.Data, idx)
		}
		parts = append(parts, part)
	}
	// Reverse into root-first order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > "), nil
}

func (e *element) Evaluate(ctx context.Context, js string) (string, error) {
	return "", domquery.ErrEvaluateUnsupported
}
