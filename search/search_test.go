package search

import (
	"context"
	"testing"
)

func TestInMemoryIndex_StoreAndSearch(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	_ = idx.Store(ctx, "i1", "支持蓝牙和有线双模", map[string]any{"source": "listing"})
	_ = idx.Store(ctx, "i1", "红轴，键程适中", nil)
	_ = idx.Store(ctx, "i2", "其他商品的资料", nil)

	results, err := idx.Search(ctx, "i1", "蓝牙", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(results))
	}
	if results[0].Metadata["source"] != "listing" {
		t.Errorf("metadata lost: %+v", results[0])
	}

	// Empty query returns everything for the item, in insertion order.
	results, err = idx.Search(ctx, "i1", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(results))
	}

	results, _ = idx.Search(ctx, "i1", "", 1)
	if len(results) != 1 {
		t.Errorf("limit ignored: %d results", len(results))
	}

	results, _ = idx.Search(ctx, "unknown", "", 10)
	if len(results) != 0 {
		t.Errorf("unknown item returned %d results", len(results))
	}
}
