// Package ref implements the @ref resolution language embedded in step
// inputs, plus condition evaluation over resolved values.
//
// A ref is an @-prefixed expression resolved against the execution's
// context:
//
//	@input.customer.id     workflow input field
//	@fetch.items.0.name    output of step "fetch"
//	@item.sku              current for-each element
//	@index                 current for-each index
//
// A string that is exactly one ref substitutes the typed value (any JSON
// shape). Refs embedded in a longer string interpolate as text: objects
// render as compact JSON, null and unresolved refs render as the empty
// string, scalars render in their string form. Characters after '@' that
// do not match the grammar are preserved verbatim.
//
// Resolution is best-effort: traversal through missing keys, null, or
// primitives yields an unresolved value and records a structured
// ResolutionError. Callers see both the partially resolved value and the
// error list.
package ref
