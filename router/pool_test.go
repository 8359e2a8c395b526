package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDispatcher_ProcessesSubmittedMessages(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.router, func(o *DispatcherOptions) {
		o.Workers = 4
		o.MaxConcurrent = 2
	})

	ctx := context.Background()
	d.Start(ctx)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		replies int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		in := Inbound{
			MessageID: fmt.Sprintf("m%d", i),
			BuyerID:   fmt.Sprintf("buyer-%d", i),
			ItemID:    "i1",
			Text:      "70元",
			Timestamp: time.Now(),
		}
		err := d.Submit(ctx, in, func(reply Reply, err error) {
			defer wg.Done()
			if err != nil {
				t.Errorf("submit callback: %v", err)
				return
			}
			if reply.Text == "" {
				t.Error("empty reply")
				return
			}
			mu.Lock()
			replies++
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()

	if replies != n {
		t.Errorf("expected %d replies, got %d", n, replies)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcher_SubmitAfterShutdownFails(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.router)

	ctx := context.Background()
	d.Start(ctx)
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	err := d.Submit(ctx, inboundMsg("m1", "hi"), func(Reply, error) {})
	if err != ErrDispatcherClosed {
		t.Errorf("expected ErrDispatcherClosed, got %v", err)
	}

	// Shutdown is idempotent.
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestDispatcher_ShutdownDrainsQueuedWork(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.router, func(o *DispatcherOptions) {
		o.Workers = 1
		o.QueueSize = 16
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		in := Inbound{
			MessageID: fmt.Sprintf("m%d", i),
			BuyerID:   "b1",
			ItemID:    "i1",
			Text:      "50元",
			Timestamp: time.Now(),
		}
		if err := d.Submit(ctx, in, func(Reply, error) { wg.Done() }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// Workers start after the queue already holds work.
	d.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	wg.Wait()
}
