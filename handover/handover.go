// Package handover tracks the per-buyer human/AI toggle. The mode is keyed by
// buyer id, not conversation: when an operator takes over, they take over all
// of that buyer's conversations at once. Mutation is serialized per buyer
// independently of the router's conversation lanes, so a buyer with two
// simultaneous conversations cannot race the flag.
package handover

import (
	"context"
	"strings"
	"sync"
	"time"

	"stallbot/core"
	"stallbot/logging"
)

type entry struct {
	mu        sync.Mutex
	mode      core.HandoverMode
	toggledAt time.Time
}

// Options configure a Controller.
type Options struct {
	// Store optionally persists toggles for restart survival.
	Store  core.ModeStore
	Logger logging.Logger
}

// Controller owns handover state. Modes default to AI on first use; there is
// no expiry, flips happen only through the configured keyword.
type Controller struct {
	keyword string
	store   core.ModeStore
	logger  logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewController creates a controller for the given toggle keyword.
func NewController(keyword string, optFns ...func(o *Options)) *Controller {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Controller{
		keyword: keyword,
		store:   opts.Store,
		logger:  opts.Logger,
		entries: make(map[string]*entry),
	}
}

// Restore loads persisted modes from the configured store, if any.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	modes, err := c.store.LoadModes(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for buyerID, mode := range modes {
		c.entries[buyerID] = &entry{mode: mode}
	}
	return nil
}

func (c *Controller) entryFor(buyerID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[buyerID]
	if !ok {
		e = &entry{mode: core.ModeAI}
		c.entries[buyerID] = e
	}
	return e
}

// IsToggle reports whether the message is exactly the toggle keyword.
func (c *Controller) IsToggle(message string) bool {
	return strings.TrimSpace(message) == c.keyword
}

// ToggleIfKeyword flips the buyer's mode when the message equals the
// configured keyword and returns the mode after processing plus whether a
// flip happened. The triggering message itself must produce no automated
// reply; the router enforces that using the returned flag.
func (c *Controller) ToggleIfKeyword(ctx context.Context, buyerID, message string) (core.HandoverMode, bool) {
	e := c.entryFor(buyerID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !c.IsToggle(message) {
		return e.mode, false
	}

	if e.mode == core.ModeAI {
		e.mode = core.ModeHuman
	} else {
		e.mode = core.ModeAI
	}
	e.toggledAt = time.Now()
	c.logger.Info("handover toggled buyer_id=%s mode=%s", buyerID, e.mode)

	if c.store != nil {
		if err := c.store.SaveMode(ctx, buyerID, e.mode, e.toggledAt); err != nil {
			// The in-memory flip already happened; persistence is best effort.
			c.logger.Warn("persisting handover mode for %s failed: %v", buyerID, err)
		}
	}
	return e.mode, true
}

// CurrentMode returns the buyer's mode, defaulting to AI.
func (c *Controller) CurrentMode(buyerID string) core.HandoverMode {
	e := c.entryFor(buyerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}
