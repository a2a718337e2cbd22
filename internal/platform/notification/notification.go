// Package notification hands "appointment created" events to an external
// bus after the write that produced them has committed. Publishing is
// fire-and-forget from the request's point of view: failures are logged,
// never returned to the caller.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Event
// ---------------------------------------------------------------------------

// AppointmentCreated is published once per committed appointment.
type AppointmentCreated struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	TenantID      uuid.UUID `json:"tenantId"`
	PatientID     uuid.UUID `json:"patientId"`
	BranchID      uuid.UUID `json:"branchId"`
	StartAt       time.Time `json:"startAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e AppointmentCreated) logFields(ev *zerolog.Event) *zerolog.Event {
	return ev.
		Str("appointment_id", e.AppointmentID.String()).
		Str("tenant_id", e.TenantID.String()).
		Str("patient_id", e.PatientID.String()).
		Str("branch_id", e.BranchID.String()).
		Time("start_at", e.StartAt)
}

// ---------------------------------------------------------------------------
// Publishers
// ---------------------------------------------------------------------------

// Publisher delivers an event to the bus.
type Publisher interface {
	Publish(ctx context.Context, evt AppointmentCreated) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt AppointmentCreated) error {
	evt.logFields(p.logger.Info()).Msg("appointment created")
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("dispatcher closed")

type DispatcherConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher decouples publishing from the request path. Dispatch enqueues
// and returns immediately; a fixed set of workers drains the queue into the
// Publisher, each publish under its own timeout.
type Dispatcher struct {
	pub    Publisher
	cfg    DispatcherConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan AppointmentCreated
	wg     sync.WaitGroup
}

func NewDispatcher(pub Publisher, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan AppointmentCreated, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch queues evt for publishing. It never blocks: when the queue is
// full or the dispatcher is closed the event is logged and dropped, and
// false is returned.
func (d *Dispatcher) Dispatch(evt AppointmentCreated) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		evt.logFields(d.logger.Warn()).Msg("dispatcher closed, dropping notification")
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		evt.logFields(d.logger.Warn()).Msg("notification queue full, dropping notification")
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.publish(evt)
	}
}

func (d *Dispatcher) publish(evt AppointmentCreated) {
	defer func() {
		if r := recover(); r != nil {
			evt.logFields(d.logger.Error()).Interface("panic", r).Msg("notification publisher panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	defer cancel()

	if err := d.pub.Publish(ctx, evt); err != nil {
		evt.logFields(d.logger.Error()).Err(err).Msg("publish appointment created")
		return
	}
	evt.logFields(d.logger.Debug()).Msg("notification published")
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
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
