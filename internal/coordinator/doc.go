// Package coordinator serialises mutations of a single session.
//
// Pessimistic holds a row lock inside a store transaction for the whole read, compute and
// write cycle. Optimistic claims a versioned document with a short-lived soft lock through
// compare-and-swap and retries with backoff when it loses the race. Both return the same
// outcomes and rejections, so callers can swap one for the other per deployment.
package coordinator
