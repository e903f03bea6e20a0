// Package notify hands reservation events to an external collaborator without blocking callers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"residia/internal/metrics"
	"residia/internal/model"
)

// EventKind names a reservation event.
type EventKind string

const (
	EventCreated       EventKind = "reservation.created"
	EventStatusUpdated EventKind = "reservation.status_updated"
)

// Event is the payload delivered to sinks.
type Event struct {
	ID            string       `json:"id"`
	Kind          EventKind    `json:"kind"`
	ReservationID int64        `json:"reservation_id"`
	CommunityID   int64        `json:"community_id"`
	AmenityID     int64        `json:"amenity_id"`
	SubjectUserID int64        `json:"subject_user_id"`
	ActorID       int64        `json:"actor_id"`
	Status        model.Status `json:"status"`
	Date          model.Date   `json:"date"`
	StartTime     model.Clock  `json:"start_time"`
	EndTime       model.Clock  `json:"end_time"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// NewEvent builds an event for the reservation in its current state.
func NewEvent(kind EventKind, r *model.Reservation, actorID int64) Event {
	return Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		ReservationID: r.ID,
		CommunityID:   r.CommunityID,
		AmenityID:     r.AmenityID,
		SubjectUserID: r.SubjectUserID,
		ActorID:       actorID,
		Status:        r.Status,
		Date:          r.Date,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		OccurredAt:    time.Now().UTC(),
	}
}

// Sink delivers a single event.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Config controls queueing and throttling.
type Config struct {
	QueueSize       int
	Workers         int
	RatePerSecond   float64
	Burst           int
	DeliveryTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:       256,
		Workers:         2,
		RatePerSecond:   20,
		Burst:           30,
		DeliveryTimeout: 5 * time.Second,
	}
}

// Dispatcher queues events and delivers them from background workers.
// Publish never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	sink    Sink
	cfg     Config
	limiter *rate.Limiter
	queue   chan Event
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Zero config values fall back to DefaultConfig.
func NewDispatcher(sink Sink, cfg Config, logger zerolog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}

	return &Dispatcher{
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		queue:   make(chan Event, cfg.QueueSize),
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Start launches the workers. They exit once Stop drains the queue or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info().Int("workers", d.cfg.Workers).Int("queue_size", d.cfg.QueueSize).Msg("notification dispatcher started")
}

// Publish enqueues an event for the reservation.
func (d *Dispatcher) Publish(_ context.Context, kind EventKind, r *model.Reservation, actorID int64) {
	d.Enqueue(NewEvent(kind, r, actorID))
}

// Enqueue adds an event without blocking.
func (d *Dispatcher) Enqueue(event Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncNotification("dropped")
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		metrics.IncNotification("dropped")
		d.logger.Warn().
			Str("event_id", event.ID).
			Str("kind", string(event.Kind)).
			Int64("reservation_id", event.ReservationID).
			Msg("notification queue full, event dropped")
		return false
	}
}

// Stop closes the queue and waits for workers to drain it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, event, id)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event, worker int) {
	if err := d.limiter.Wait(ctx); err != nil {
		metrics.IncNotification("cancelled")
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	if err := d.sink.Deliver(deliverCtx, event); err != nil {
		metrics.IncNotification("failed")
		d.logger.Error().
			Err(err).
			Int("worker", worker).
			Str("event_id", event.ID).
			Str("kind", string(event.Kind)).
			Int64("reservation_id", event.ReservationID).
			Msg("notification delivery failed")
		return
	}
	metrics.IncNotification("delivered")
}
