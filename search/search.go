// Package search provides the keyword lookup collaborator the technical
// support expert uses to ground its answers. The in-memory index does a
// linear substring scan over indexed snippets (item descriptions, previously
// confirmed answers); swap in an external search service for production
// retrieval without touching the experts.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Result is a retrieved snippet with a relevance score and arbitrary metadata.
type Result struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Index is the lookup contract used by the tech expert. Implementations must
// be safe for concurrent use.
type Index interface {
	Search(ctx context.Context, itemID, query string, limit int) ([]Result, error)
	Store(ctx context.Context, itemID, content string, metadata map[string]any) error
}

type snippet struct {
	id       string
	content  string
	metadata map[string]any
}

// InMemoryIndex is a naive process-local Index.
//
// Concurrency: protected by RWMutex.
// Search: linear scan with substring matching assigning a constant score of
// 1.0 to every hit. Suitable for tests and small catalogs.
type InMemoryIndex struct {
	mu       sync.RWMutex
	snippets map[string][]snippet // itemID -> snippets
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{snippets: make(map[string][]snippet)}
}

// Store appends a snippet for an item.
func (i *InMemoryIndex) Store(_ context.Context, itemID, content string, metadata map[string]any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := fmt.Sprintf("%s_%d", itemID, len(i.snippets[itemID]))
	i.snippets[itemID] = append(i.snippets[itemID], snippet{id: id, content: content, metadata: metadata})
	return nil
}

// Search performs a substring match over the item's snippets. Results come
// back in insertion order up to limit.
func (i *InMemoryIndex) Search(_ context.Context, itemID, query string, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var results []Result
	for _, sn := range i.snippets[itemID] {
		if limit > 0 && len(results) >= limit {
			break
		}
		if query == "" || strings.Contains(sn.content, query) {
			md := make(map[string]any, len(sn.metadata))
			for k, v := range sn.metadata {
				md[k] = v
			}
			results = append(results, Result{ID: sn.id, Content: sn.content, Score: 1.0, Metadata: md})
		}
	}
	return results, nil
}

var _ Index = (*InMemoryIndex)(nil)
