package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a read-only snapshot of the listing a conversation is about. It is
// fetched by the transport collaborator and treated as immutable for the
// lifetime of the conversation; mid-negotiation price changes are out of
// contract.
type Item struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	FetchedAt   time.Time       `json:"fetched_at"`
}
