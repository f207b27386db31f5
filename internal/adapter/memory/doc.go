// Package memory provides in-process backends for single-instance deployments and tests:
// a transactional session store with per-session row locks, an atomic document store,
// and a last-writer-wins text editor.
package memory
