// Package document encodes session state as a versioned block embedded in free-form text,
// and adapts last-writer-wins text editors into a compare-and-swap document store.
package document
