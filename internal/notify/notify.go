// Package notify fans appointment events out to external collaborators.
// Publishing never blocks the caller and never reports subscriber failures
// back to it.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-availability/internal/redis"
)

const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCancelled = "appointment.cancelled"
)

const defaultDeliveryTimeout = 5 * time.Second

type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Subscriber interface {
	Notify(ctx context.Context, ev Event) error
}

type SubscriberFunc func(ctx context.Context, ev Event) error

func (f SubscriberFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

type subscription struct {
	name string
	sub  Subscriber
}

type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, timeout: defaultDeliveryTimeout}
}

func (b *Bus) Subscribe(name string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, sub: s})
}

// Publish hands ev to every subscriber on its own goroutine and returns at once.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, s := range subs {
		b.wg.Add(1)
		go b.deliver(base, s, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("notification subscriber panicked",
				zap.String("subscriber", s.name),
				zap.String("event", ev.Type),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := s.sub.Notify(ctx, ev); err != nil {
		b.log.Warn("notification delivery failed",
			zap.String("subscriber", s.name),
			zap.String("event", ev.Type),
			zap.Stringer("appointment_id", ev.AppointmentID),
			zap.Error(err),
		)
	}
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for notifications: %w", ctx.Err())
	}
}

// LogSubscriber writes every event to log.
func LogSubscriber(log *zap.Logger) Subscriber {
	return SubscriberFunc(func(ctx context.Context, ev Event) error {
		log.Info("appointment event",
			zap.String("event", ev.Type),
			zap.Stringer("appointment_id", ev.AppointmentID),
			zap.Stringer("doctor_id", ev.DoctorID),
			zap.Stringer("patient_id", ev.PatientID),
			zap.String("date", ev.Date),
			zap.String("start_time", ev.StartTime),
		)
		return nil
	})
}

// RedisSubscriber forwards events as JSON on the publisher's channel.
func RedisSubscriber(p *redisclient.Publisher) Subscriber {
	return SubscriberFunc(func(ctx context.Context, ev Event) error {
		return p.PublishJSON(ctx, ev)
	})
}
