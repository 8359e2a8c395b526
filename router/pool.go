package router

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"stallbot/logging"
)

// ErrDispatcherClosed is returned by Submit after Shutdown has started.
var ErrDispatcherClosed = errors.New("router: dispatcher closed")

type job struct {
	in Inbound
	fn func(Reply, error)
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	// Workers is the number of goroutines consuming the queue.
	Workers int
	// MaxConcurrent bounds simultaneous Handle calls across all workers,
	// which in practice bounds concurrent model calls.
	MaxConcurrent int64
	// QueueSize is the submit buffer. Submit blocks when it is full.
	QueueSize int
	Logger    logging.Logger
}

// Dispatcher fans inbound messages out to a fixed worker pool in front of a
// Router. Per-conversation ordering is still the Router's job; the pool only
// bounds parallelism so a traffic burst cannot open an unbounded number of
// model calls.
type Dispatcher struct {
	router *Router
	queue  chan job
	quit   chan struct{}
	sem    *semaphore.Weighted
	logger logging.Logger

	workers int
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher builds a Dispatcher over the router.
func NewDispatcher(r *Router, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		Workers:       8,
		MaxConcurrent: 32,
		QueueSize:     64,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Dispatcher{
		router:  r,
		queue:   make(chan job, opts.QueueSize),
		quit:    make(chan struct{}),
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:  opts.Logger,
		workers: opts.Workers,
	}
}

// Start launches the worker goroutines. Workers exit when ctx is canceled or
// Shutdown drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.run(ctx, j)
		case <-d.quit:
			d.drain(ctx)
			return
		}
	}
}

// drain finishes jobs already queued at shutdown without blocking on new ones.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.run(ctx, j)
		default:
			return
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		j.fn(Reply{}, err)
		return
	}
	defer d.sem.Release(1)
	reply, err := d.router.Handle(ctx, j.in)
	j.fn(reply, err)
}

// Submit enqueues one inbound message. fn is invoked exactly once from a
// worker goroutine with the outcome, core.ErrSuppressed included. Submit
// blocks while the queue is full and fails once ctx is done or the
// dispatcher is shut down.
func (d *Dispatcher) Submit(ctx context.Context, in Inbound, fn func(Reply, error)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrDispatcherClosed
	case d.queue <- job{in: in, fn: fn}:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain or ctx to
// expire, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
