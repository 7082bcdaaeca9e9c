// Package dom defines the query and manipulation facade the component
// engine renders against.
//
// The engine diffs at selector granularity: it never inspects attributes or
// text for equality, it only locates elements, clones placeholders, and
// replaces whole subtrees. This narrow contract is what the interfaces
// capture; htmldom provides the default implementation.
package dom

// Parser turns markup into an element tree.
type Parser interface {
	// Parse returns the top-level elements of the markup fragment.
	Parse(markup string) ([]Element, error)
}

// Element is one element node in a parsed tree.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() string

	// Attr returns the value of an attribute and whether it is present.
	Attr(name string) (string, bool)

	// SetAttr sets an attribute, replacing any existing value.
	SetAttr(name, value string)

	// RemoveAttr removes an attribute if present.
	RemoveAttr(name string)

	// Find returns the descendant elements matching the selector, in
	// document order. The receiving element itself is never included.
	Find(selector string) ([]Element, error)

	// Clone returns a deep copy detached from any tree.
	Clone() Element

	// Contents returns the direct child elements.
	Contents() []Element

	// Parent returns the parent element, or nil at a tree root.
	Parent() Element

	// Contains reports whether other is a descendant of this element.
	Contains(other Element) bool

	// ReplaceWith replaces this element in its parent with the given
	// elements, detaching them from any previous tree. Without a parent it
	// is a no-op.
	ReplaceWith(replacements ...Element)

	// AppendChild appends a child element, detaching it from any previous
	// tree.
	AppendChild(child Element)

	// Remove detaches this element from its parent.
	Remove()

	// HTML returns the outer markup of the element.
	HTML() string

	// Text returns the concatenated text content.
	Text() string
}
