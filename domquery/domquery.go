// Package domquery defines the DOM query capability the resolution
// engine consumes. The engine is agnostic to where the DOM lives:
// adapters exist for live Chrome pages (rodquery) and for static HTML
// snapshots (htmldoc).
package domquery

import (
	"context"
	"errors"
)

// ErrEvaluateUnsupported is returned by adapters that cannot run
// JavaScript against an element (static snapshots).
var ErrEvaluateUnsupported = errors.New("domquery: evaluate not supported by this capability")

// Capability is the coarse query surface strategies use to enumerate
// candidate elements. Implementations must respect ctx cancellation and
// bound their own I/O; the engine never retries a failed query.
type Capability interface {
	// QueryAll returns every element matching a CSS selector, in
	// document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// QueryXPath returns every element matching an XPath expression, in
	// document order.
	QueryXPath(ctx context.Context, expr string) ([]Element, error)
}

// Element is a handle on one DOM element. Probing methods may fail on
// live pages when the element detaches mid-flight; callers treat any
// probe error as "candidate rejected".
type Element interface {
	// Tag returns the lowercase tag name.
	Tag(ctx context.Context) (string, error)
	// Text returns the visible text content, whitespace-trimmed.
	Text(ctx context.Context) (string, error)
	// Attribute returns the value of one attribute and whether it exists.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Attributes returns all attributes.
	Attributes(ctx context.Context) (map[string]string, error)
	// Attached reports whether the element is still part of the document.
	Attached(ctx context.Context) bool
	// Visible reports whether the element is rendered.
	Visible(ctx context.Context) (bool, error)
	// Interactable reports whether the element can receive input.
	Interactable(ctx context.Context) (bool, error)
	// DOMPath returns a stable path to the element (XPath or CSS-like).
	DOMPath(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript function against the element and
	// returns the stringified result. Snapshot adapters return
	// ErrEvaluateUnsupported.
	Evaluate(ctx context.Context, js string) (string, error)
}
