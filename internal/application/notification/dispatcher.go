package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-recovery-api/internal/domain"
)

// Dispatcher delivers messages on background workers. Callers never wait for
// delivery and never observe its failure; failures are logged only.
type Dispatcher struct {
	registry *Registry
	jobs     chan Message
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(registry *Registry, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{
		registry: registry,
		jobs:     make(chan Message, queueSize),
		timeout:  timeout,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Dispatch queues msg without blocking. It reports false when the message was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.fail(msg, fmt.Errorf("dispatcher closed"))
		return false
	}
	select {
	case d.jobs <- msg:
		return true
	default:
		d.fail(msg, fmt.Errorf("queue full"))
		return false
	}
}

// Close stops accepting messages and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.jobs {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	n, ok := d.registry.For(msg.Channel)
	if !ok {
		d.fail(msg, fmt.Errorf("no notifier for channel %q", msg.Channel))
		return
	}
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := n.Notify(ctx, msg); err != nil {
		d.fail(msg, err)
		return
	}
	slog.Info("verification code delivered", "purpose", msg.Purpose, "channel", msg.Channel, "account_id", msg.AccountID)
}

func (d *Dispatcher) fail(msg Message, err error) {
	slog.Error("verification code delivery failed",
		"purpose", msg.Purpose,
		"channel", msg.Channel,
		"account_id", msg.AccountID,
		"err", fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err),
	)
}
