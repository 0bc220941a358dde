// Package capture implements the asynchronous event-capture pipeline:
// a bounded, non-blocking queue feeding a single background worker that
// batches events and ships them to the capture endpoint.
package capture

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagkit/flagkit-go/internal/telemetry"
	"github.com/flagkit/flagkit-go/internal/wire"
)

const (
	// DefaultFlushAt is the batch-size trigger (spec 4.K).
	DefaultFlushAt = 20
	// DefaultFlushInterval is the time-based flush trigger.
	DefaultFlushInterval = 30 * time.Second
	// DefaultMaxBatchSize caps how many events a single POST carries.
	DefaultMaxBatchSize = 100
	// DefaultMaxQueueSize is the backpressure limit: once the queue is
	// this full, new events are dropped rather than blocking the caller.
	DefaultMaxQueueSize = 1000
)

// Config tunes the queue's batching and backpressure behavior. Zero
// values fall back to the package defaults.
type Config struct {
	FlushAt       int
	FlushInterval time.Duration
	MaxBatchSize  int
	MaxQueueSize  int
}

func (c Config) withDefaults() Config {
	if c.FlushAt <= 0 {
		c.FlushAt = DefaultFlushAt
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	return c
}

// Sender delivers a batch of events. Implementations are expected to
// retry transient failures internally (see httpSender); Queue treats a
// returned error as a permanently failed batch and only logs it.
type Sender interface {
	Send(batch []wire.CapturedEvent) error
}

// state names the lifecycle position of the background worker, mirrored
// for observability via State().
type state int32

const (
	stateIdle state = iota
	stateAccumulating
	stateSending
	stateBackoff
	stateDraining
	stateStopped
)

// Queue is the bounded event queue and batch flusher described in spec
// 4.K. Its shape is the teacher's internal/webhook.Dispatcher: a
// buffered channel, a non-blocking Enqueue, an atomic double-close
// guard, and a single worker goroutine — generalized from one-event-at-
// a-time webhook fan-out to size/time-triggered batching.
type Queue struct {
	cfg    Config
	sender Sender
	logger zerolog.Logger

	events   chan wire.CapturedEvent
	flushNow chan chan struct{}
	done     chan struct{}
	closed   int32
	state    int32
}

// NewQueue constructs a Queue. It does not start the background worker;
// call Start for that.
func NewQueue(sender Sender, cfg Config, logger zerolog.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:      cfg,
		sender:   sender,
		logger:   logger.With().Str("component", "capture-queue").Logger(),
		events:   make(chan wire.CapturedEvent, cfg.MaxQueueSize),
		flushNow: make(chan chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background worker. Call once.
func (q *Queue) Start() {
	atomic.StoreInt32(&q.state, int32(stateIdle))
	go q.run()
}

// Enqueue offers an event to the queue without ever blocking the
// caller. If the queue is full the event is dropped and a warning is
// logged; if the queue has been closed the event is dropped silently.
func (q *Queue) Enqueue(event wire.CapturedEvent) bool {
	if atomic.LoadInt32(&q.closed) == 1 {
		return false
	}
	select {
	case q.events <- event:
		telemetry.CaptureQueueDepth.Set(float64(len(q.events)))
		return true
	default:
		q.logger.Warn().Str("event", event.Event).Msg("capture queue full, dropping event")
		telemetry.CaptureEventsDroppedTotal.Inc()
		return false
	}
}

// Flush requests an immediate flush of whatever is currently buffered
// and blocks until that flush attempt has completed. It is safe to call
// concurrently with Enqueue.
func (q *Queue) Flush() {
	if atomic.LoadInt32(&q.closed) == 1 {
		return
	}
	ack := make(chan struct{})
	select {
	case q.flushNow <- ack:
		<-ack
	case <-q.done:
	}
}

// Close stops accepting new events, flushes any remaining buffered
// events, and waits for the worker to finish draining. It is safe to
// call multiple times; only the first call has effect.
func (q *Queue) Close() {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		<-q.done
		return
	}
	atomic.StoreInt32(&q.state, int32(stateDraining))
	close(q.events)
	<-q.done
	atomic.StoreInt32(&q.state, int32(stateStopped))
}

// State reports the worker's current lifecycle position.
func (q *Queue) State() string {
	switch state(atomic.LoadInt32(&q.state)) {
	case stateIdle:
		return "idle"
	case stateAccumulating:
		return "accumulating"
	case stateSending:
		return "sending"
	case stateBackoff:
		return "backoff"
	case stateDraining:
		return "draining"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (q *Queue) run() {
	defer close(q.done)

	buffer := make([]wire.CapturedEvent, 0, q.cfg.FlushAt)
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-q.events:
			if !ok {
				q.flushBuffer(buffer)
				return
			}
			buffer = append(buffer, e)
			atomic.StoreInt32(&q.state, int32(stateAccumulating))
			if len(buffer) >= q.cfg.FlushAt {
				buffer = q.flushBuffer(buffer)
			}

		case <-ticker.C:
			buffer = q.flushBuffer(buffer)

		case ack := <-q.flushNow:
			// Pull in events already waiting in the channel so the flush
			// covers everything enqueued before Flush was called.
			for drained := false; !drained; {
				select {
				case e, ok := <-q.events:
					if ok {
						buffer = append(buffer, e)
					} else {
						drained = true
					}
				default:
					drained = true
				}
			}
			buffer = q.flushBuffer(buffer)
			close(ack)
		}
	}
}

// flushBuffer ships buffer to the sender in maxBatchSize-sized chunks
// and returns a fresh, empty buffer.
func (q *Queue) flushBuffer(buffer []wire.CapturedEvent) []wire.CapturedEvent {
	if len(buffer) == 0 {
		atomic.StoreInt32(&q.state, int32(stateIdle))
		return buffer
	}

	atomic.StoreInt32(&q.state, int32(stateSending))
	for start := 0; start < len(buffer); start += q.cfg.MaxBatchSize {
		end := start + q.cfg.MaxBatchSize
		if end > len(buffer) {
			end = len(buffer)
		}
		chunk := buffer[start:end]
		if err := q.sender.Send(chunk); err != nil {
			atomic.StoreInt32(&q.state, int32(stateBackoff))
			q.logger.Error().Err(err).Int("batch_size", len(chunk)).Msg("capture batch delivery failed, dropping batch")
		}
	}
	atomic.StoreInt32(&q.state, int32(stateIdle))
	return buffer[:0]
}
