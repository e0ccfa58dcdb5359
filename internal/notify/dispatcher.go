// Package notify delivers ledger BlockAppended events to subscribers.
//
// Every subscriber owns an unbounded FIFO queue drained by a single
// goroutine, so each subscriber sees events in index order and a slow or
// failing subscriber never delays the ledger or the other subscribers.
// Failed deliveries are retried with exponential backoff, giving
// at-least-once delivery.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/chain"
)

// HandlerFunc receives one event. A non-nil error schedules a retry.
type HandlerFunc func(ctx context.Context, ev Event) error

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(subscriber string, success bool)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackoff sets the first retry delay and the cap on later delays.
// Each retry doubles the previous delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(d *Dispatcher) {
		d.initialBackoff = initial
		d.maxBackoff = max
	}
}

// WithMaxAttempts bounds delivery attempts per event. Zero, the default,
// retries until delivery succeeds or the dispatcher shuts down.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithMetricsRecorder sets the delivery outcome callback.
func WithMetricsRecorder(fn MetricsRecorder) Option {
	return func(d *Dispatcher) { d.onMetrics = fn }
}

// Dispatcher fans BlockAppended events out to subscribers. It implements
// chain.Notifier.
type Dispatcher struct {
	logger         *zap.Logger
	onMetrics      MetricsRecorder
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
}

// NewDispatcher creates a Dispatcher with no subscribers.
func NewDispatcher(logger *zap.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:         logger,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers an in-process subscriber. It only receives events
// emitted after it was added.
func (d *Dispatcher) Subscribe(name string, fn HandlerFunc) {
	d.add(name, "func", fn)
}

// AddWebhook registers an HTTP subscriber that receives signed JSON POSTs.
func (d *Dispatcher) AddWebhook(name, url, secret string) {
	d.add(name, "webhook", NewWebhook(url, secret).Deliver)
}

func (d *Dispatcher) add(name, kind string, fn HandlerFunc) {
	s := &subscriber{name: name, kind: kind, handler: fn}
	s.cond = sync.NewCond(&s.mu)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("notify: subscribe after shutdown ignored", zap.String("subscriber", name))
		return
	}
	d.subs = append(d.subs, s)
	d.wg.Add(1)
	go d.run(s)
}

// BlockAppended implements chain.Notifier. It only enqueues and never blocks
// on delivery.
func (d *Dispatcher) BlockAppended(ev chain.BlockAppended) {
	event := Event{
		ID:        uuid.New(),
		Type:      EventBlockAppended,
		Timestamp: d.now().UTC(),
		Block:     ev,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notify: event after shutdown dropped", zap.Uint64("index", ev.Index))
		return
	}
	for _, s := range d.subs {
		s.push(event)
	}
}

// Status reports every subscriber's queue depth and delivery counters.
func (d *Dispatcher) Status() []SubscriberStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]SubscriberStatus, 0, len(d.subs))
	for _, s := range d.subs {
		out = append(out, s.status())
	}
	return out
}

// Shutdown stops accepting events and waits for queued events to be
// delivered. If ctx expires first, in-flight retries are abandoned and
// ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, s := range d.subs {
		s.close()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// run drains one subscriber's queue in order.
func (d *Dispatcher) run(s *subscriber) {
	defer d.wg.Done()
	for d.ctx.Err() == nil {
		ev, ok := s.next()
		if !ok {
			return
		}
		d.deliver(s, ev)
		s.pop()
	}
}

// deliver retries one event until it succeeds, attempts run out or the
// dispatcher is cancelled.
func (d *Dispatcher) deliver(s *subscriber, ev Event) {
	delay := d.initialBackoff
	for attempt := 1; ; attempt++ {
		err := s.handler(d.ctx, ev)
		success := err == nil
		if d.onMetrics != nil {
			d.onMetrics(s.name, success)
		}
		s.record(success)
		if success {
			return
		}

		d.logger.Warn("notify: delivery failed",
			zap.String("subscriber", s.name),
			zap.Uint64("index", ev.Block.Index),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if d.maxAttempts > 0 && attempt >= d.maxAttempts {
			d.logger.Error("notify: giving up on event",
				zap.String("subscriber", s.name),
				zap.Stringer("event_id", ev.ID),
			)
			return
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-d.ctx.Done():
			t.Stop()
			return
		}
		if delay *= 2; delay > d.maxBackoff {
			delay = d.maxBackoff
		}
	}
}

type subscriber struct {
	name    string
	kind    string
	handler HandlerFunc

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	closed    bool
	delivered uint64
	failures  uint64
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.cond.Signal()
}

// next blocks until the queue has an event or is closed and empty. The
// event stays queued until pop so Status counts it as pending.
func (s *subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Event{}, false
	}
	return s.queue[0], true
}

func (s *subscriber) pop() {
	s.mu.Lock()
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *subscriber) record(success bool) {
	s.mu.Lock()
	if success {
		s.delivered++
	} else {
		s.failures++
	}
	s.mu.Unlock()
}

func (s *subscriber) status() SubscriberStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriberStatus{
		Name:      s.name,
		Kind:      s.kind,
		Pending:   len(s.queue),
		Delivered: s.delivered,
		Failures:  s.failures,
	}
}
