package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// ComponentEvents identifies errors raised by this package.
const ComponentEvents = "events"

var (
	// ErrDispatcherStopped is returned by operations on a shut down dispatcher.
	ErrDispatcherStopped = errors.NewStd("dispatcher is stopped")
	// ErrDuplicateConsumer is returned when two consumers share a name.
	ErrDuplicateConsumer = errors.NewStd("consumer already registered")
)

// envelope is one queued item. Exactly one field is set.
type envelope struct {
	caption *Caption
	end     *SessionEnd
	barrier chan struct{}
}

// Dispatcher is an unbounded FIFO drained by one delivery goroutine.
// Publish never blocks the caller.
type Dispatcher struct {
	mu        sync.Mutex
	queue     []envelope
	consumers []Consumer
	started   bool
	stopping  bool

	wake chan struct{}
	done chan struct{}

	published      atomic.Uint64
	delivered      atomic.Uint64
	dropped        atomic.Uint64
	consumerErrors atomic.Uint64

	metrics *metrics.CaptionMetrics
	log     logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics exports queue depth and delivery counters.
func WithMetrics(m *metrics.CaptionMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// NewDispatcher creates a dispatcher. Call Start after registering consumers.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a consumer. Consumers may be added while running; they see
// events published after the call.
func (d *Dispatcher) Register(consumer Consumer) error {
	if consumer == nil {
		return errors.Newf("consumer cannot be nil").
			Component(ComponentEvents).
			Category(errors.CategoryValidation).
			Build()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return ErrDispatcherStopped
	}
	for _, existing := range d.consumers {
		if existing.Name() == consumer.Name() {
			return errors.New(fmt.Errorf("%w: %s", ErrDuplicateConsumer, consumer.Name())).
				Component(ComponentEvents).
				Category(errors.CategoryValidation).
				Context("consumer", consumer.Name()).
				Build()
		}
	}

	// Copy on write so the delivery goroutine can iterate without the lock
	consumers := make([]Consumer, len(d.consumers), len(d.consumers)+1)
	copy(consumers, d.consumers)
	d.consumers = append(consumers, consumer)

	d.log.Info("registered caption consumer",
		logger.String("consumer", consumer.Name()),
		logger.Int("total_consumers", len(d.consumers)))
	return nil
}

// Start launches the delivery goroutine. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopping {
		return
	}
	d.started = true
	go d.run()
}

// Publish queues a caption. It returns false if the dispatcher is shut down.
func (d *Dispatcher) Publish(caption Caption) bool {
	return d.enqueue(envelope{caption: &caption})
}

// PublishEnd queues a session end behind the session's captions.
func (d *Dispatcher) PublishEnd(end SessionEnd) bool {
	return d.enqueue(envelope{end: &end})
}

func (d *Dispatcher) enqueue(env envelope) bool {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		if env.barrier == nil {
			d.dropped.Add(1)
		}
		return false
	}
	d.queue = append(d.queue, env)
	depth := len(d.queue)
	d.mu.Unlock()

	if env.barrier == nil {
		d.published.Add(1)
	}
	if d.metrics != nil {
		d.metrics.SetQueueDepth(depth)
	}
	d.signal()
	return true
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flush returns once every event published before the call was delivered.
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !d.enqueue(envelope{barrier: barrier}) {
		// Shutdown drains the queue before done is closed
		select {
		case <-d.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events, delivers what is queued and stops the
// delivery goroutine.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return d.waitDone(ctx)
	}
	d.stopping = true
	started := d.started
	pending := len(d.queue)
	d.mu.Unlock()

	if !started {
		close(d.done)
		return nil
	}

	d.log.Info("shutting down caption dispatcher", logger.Int("pending", pending))
	d.signal()
	return d.waitDone(ctx)
}

func (d *Dispatcher) waitDone(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.log.Warn("caption dispatcher shutdown timed out")
		return errors.New(ctx.Err()).
			Component(ComponentEvents).
			Category(errors.CategoryTimeout).
			Context("operation", "shutdown").
			Build()
	}
}

// run delivers queued events until shutdown drains the queue.
func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			stopping := d.stopping
			d.mu.Unlock()
			if stopping {
				return
			}
			<-d.wake
			continue
		}
		env := d.queue[0]
		d.queue[0] = envelope{}
		d.queue = d.queue[1:]
		if len(d.queue) == 0 {
			d.queue = nil
		}
		depth := len(d.queue)
		consumers := d.consumers
		d.mu.Unlock()

		if d.metrics != nil {
			d.metrics.SetQueueDepth(depth)
		}

		switch {
		case env.barrier != nil:
			close(env.barrier)
		case env.caption != nil:
			d.deliverCaption(consumers, *env.caption)
		case env.end != nil:
			d.deliverEnd(consumers, *env.end)
		}
	}
}

func (d *Dispatcher) deliverCaption(consumers []Consumer, caption Caption) {
	for _, consumer := range consumers {
		d.call(consumer, func() error { return consumer.HandleCaption(caption) })
	}
	d.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDelivered()
	}
}

func (d *Dispatcher) deliverEnd(consumers []Consumer, end SessionEnd) {
	for _, consumer := range consumers {
		observer, ok := consumer.(SessionObserver)
		if !ok {
			continue
		}
		d.call(consumer, func() error { return observer.HandleSessionEnd(end) })
	}
	d.delivered.Add(1)
}

// call runs one consumer callback, recovering panics so a faulty consumer
// cannot stop delivery to the others.
func (d *Dispatcher) call(consumer Consumer, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.consumerErrors.Add(1)
			if d.metrics != nil {
				d.metrics.RecordConsumerError(consumer.Name())
			}
			d.log.Error("caption consumer panicked",
				logger.String("consumer", consumer.Name()),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
	}()

	if err := fn(); err != nil {
		d.consumerErrors.Add(1)
		if d.metrics != nil {
			d.metrics.RecordConsumerError(consumer.Name())
		}
		d.log.Warn("caption consumer failed",
			logger.String("consumer", consumer.Name()),
			logger.Error(err))
	}
}

// Stats returns current counters
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	depth := len(d.queue)
	d.mu.Unlock()

	return DispatcherStats{
		Published:      d.published.Load(),
		Delivered:      d.delivered.Load(),
		Dropped:        d.dropped.Load(),
		ConsumerErrors: d.consumerErrors.Load(),
		QueueDepth:     depth,
	}
}
