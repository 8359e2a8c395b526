// Package store houses concrete implementations of core.ContextStore. The
// interfaces themselves live in the core package to centralize domain
// contracts; keeping only implementations here prevents higher level
// packages (router, report) from depending on concrete storage.
//
// Memory is safe for tests and ephemeral demo runs; SQLite is the durable
// backend matching the original deployment's schema. Add additional backends
// without changing any calling code - only the wiring layer decides which
// implementation to instantiate.
package store
