// Package core defines the domain contracts of the stallbot conversation
// engine: conversations keyed by (buyer, item), append-only message logs,
// item snapshots, the error taxonomy, and the store interfaces implemented by
// concrete backends in the store package. Higher level packages (router,
// bargain, report) depend only on these contracts so storage and model
// providers can be swapped at the wiring layer.
package core
