// Package app provides the application service layer.
//
// Orchestrates use cases: starting a draft, dispatching roster actions, owner moderation and the
// retention sweep. Sits between HTTP handlers and the concurrency coordinator. Depends on domain
// interfaces, not concrete backends.
package app
