// Package util holds small internal helpers that have not earned a public
// API surface yet.
package util

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random UUID string used for delivery/run identifiers.
func NewID() string {
	return uuid.NewString()
}

// NewMessageID returns a lexicographically sortable ULID used as the message
// id and therefore as the dedup key for retried deliveries.
func NewMessageID() string {
	return ulid.Make().String()
}
