package models

// RenderContext is everything besides the record that affects how a post
// is rendered. It is comparable so resolvers can memoize on it.
type RenderContext struct {
	IsCatalog   bool
	Highlighted PostDescriptor // zero when nothing is highlighted
	FontSize    int
	// Force bypasses any memoization inside the resolver.
	Force bool
}

// WithForce returns a copy of c with Force set.
func (c RenderContext) WithForce() RenderContext {
	c.Force = true
	return c
}

// WithHighlight returns a copy of c highlighting desc.
func (c RenderContext) WithHighlight(desc PostDescriptor) RenderContext {
	c.Highlighted = desc
	return c
}
