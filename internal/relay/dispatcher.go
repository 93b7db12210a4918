package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("relay: dispatcher closed")

// Job is one payload to relay: a GET followed by a POST with the same
// key and value.
type Job struct {
	DeviceID string // device address, escaped by the client
	Key      string
	Value    string

	ref string // correlation id for logs
}

// Relayer is the subset of Client the dispatcher drives.
type Relayer interface {
	Get(ctx context.Context, id, key, value string) (string, error)
	Post(ctx context.Context, id, key, value string) (int, string, error)
}

// DispatcherOptions configures the dispatcher.
type DispatcherOptions struct {
	QueueSize int           // max pending jobs; oldest dropped on overflow
	PostDelay time.Duration // gap between a job's GET and POST
}

// DefaultDispatcherOptions returns sensible defaults.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		QueueSize: 16,
		PostDelay: 500 * time.Millisecond,
	}
}

// Dispatcher runs relay jobs on a single worker so that BLE callbacks never
// wait on the network. Jobs run in submission order.
type Dispatcher struct {
	relayer Relayer
	opts    DispatcherOptions

	mu     sync.Mutex
	queue  []Job
	closed bool
	wake   chan struct{}
}

// NewDispatcher creates a dispatcher backed by the given relayer.
// Panics if relayer is nil (programmer error).
func NewDispatcher(relayer Relayer, opts DispatcherOptions) *Dispatcher {
	if relayer == nil {
		panic("relay: NewDispatcher called with nil relayer")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.PostDelay < 0 {
		opts.PostDelay = 0
	}
	return &Dispatcher{
		relayer: relayer,
		opts:    opts,
		wake:    make(chan struct{}, 1),
	}
}

// Submit queues a job without blocking. When the queue is full the oldest
// pending job is dropped. Safe for concurrent use.
func (d *Dispatcher) Submit(job Job) error {
	if job.ref == "" {
		job.ref = uuid.NewString()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrQueueClosed
	}
	if len(d.queue) >= d.opts.QueueSize {
		dropped := d.queue[0]
		slog.Warn("[RELAY] queue full, dropping oldest job", "ref", dropped.ref)
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, job)
	d.mu.Unlock()

	slog.Debug("[RELAY] job queued", "ref", job.ref, "value", job.Value)
	d.signal()
	return nil
}

// Pending returns the number of queued jobs not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting jobs. Run finishes the jobs already queued and
// then returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

// Run processes jobs until ctx is cancelled or the dispatcher is closed
// and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		job, ok, closed := d.next()
		if ok {
			d.process(ctx, job)
			continue
		}
		if closed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
	}
}

// next pops the oldest job.
func (d *Dispatcher) next() (Job, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Job{}, false, d.closed
	}
	job := d.queue[0]
	d.queue = d.queue[1:]
	return job, true, d.closed
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// process runs GET, waits PostDelay, then POST. The POST is sent whether
// or not the GET succeeded.
func (d *Dispatcher) process(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	slog.Info("[RELAY] relaying", "ref", job.ref, "id", job.DeviceID, "key", job.Key, "value", job.Value)

	if _, err := d.relayer.Get(ctx, job.DeviceID, job.Key, job.Value); err != nil {
		slog.Warn("[RELAY] GET not delivered", "ref", job.ref, "error", err)
	}

	if err := sleepContext(ctx, d.opts.PostDelay); err != nil {
		slog.Warn("[RELAY] job cancelled before POST", "ref", job.ref, "error", err)
		return
	}

	if _, _, err := d.relayer.Post(ctx, job.DeviceID, job.Key, job.Value); err != nil {
		slog.Warn("[RELAY] POST not delivered", "ref", job.ref, "error", err)
	}

	slog.Debug("[RELAY] job done", "ref", job.ref, "elapsed", time.Since(start).Round(time.Millisecond))
}
