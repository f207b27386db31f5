// Package draft implements the roster state machine and the seeded team balancer.
//
// Every operation is a pure function from one domain.Snapshot to the next. Persisting the
// result and serialising concurrent callers is the job of the coordinator package.
package draft
