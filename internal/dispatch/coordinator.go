// Package dispatch runs a single dispatch pass: it loads candidate
// entities, applies enrollment transitions, evaluates every trigger and
// delivers the due ones through the dedup ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/enrollment"
	"github.com/lalithlochan/nudge/internal/ledger"
	"github.com/lalithlochan/nudge/internal/metrics"
	"github.com/lalithlochan/nudge/internal/recipient"
	"github.com/lalithlochan/nudge/internal/sender"
	"github.com/lalithlochan/nudge/internal/sns"
	"github.com/lalithlochan/nudge/internal/trigger"
)

// ErrLoad is returned when a pass cannot read from or write to the data
// store. The pass is abandoned and should be retried as a whole.
var ErrLoad = errors.New("data store unavailable")

// Store is the entity access a pass needs.
type Store interface {
	ListActiveEnrollments(ctx context.Context) ([]*db.Enrollment, error)
	ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]*db.Task, error)
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]*db.Appointment, error)
	ListPaymentsDueBetween(ctx context.Context, from, to time.Time) ([]*db.Payment, error)
	ListContacts(ctx context.Context, accountIDs []uuid.UUID) ([]*db.Contact, error)
	UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// Claimer marks a ledger key as in flight across processes.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher receives an event for every delivered trigger.
type EventPublisher interface {
	Publish(ctx context.Context, e sns.Event) (string, error)
}

// Summary counts what a pass did. Processed, Skipped and Failed count
// deliveries: one per funnel step and one per reminder recipient.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Paused    int
	Completed int
	Duration  time.Duration
}

// Coordinator runs dispatch passes.
type Coordinator struct {
	store  Store
	ledger *ledger.Ledger
	sender sender.Sender
	claims Claimer
	events EventPublisher
	loc    *time.Location
	logger *zap.Logger
	since  func(time.Time) time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClaims enables in-flight claims.
func WithClaims(c Claimer) Option {
	return func(co *Coordinator) { co.claims = c }
}

// WithEvents publishes an event for every delivered trigger.
func WithEvents(p EventPublisher) Option {
	return func(co *Coordinator) { co.events = p }
}

// WithLocation sets the zone that defines calendar days. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(co *Coordinator) {
		if loc != nil {
			co.loc = loc
		}
	}
}

// New creates a Coordinator.
func New(store Store, l *ledger.Ledger, s sender.Sender, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		ledger: l,
		sender: s,
		loc:    time.UTC,
		logger: logger,
		since:  time.Since,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type batch struct {
	enrollments  []*db.Enrollment
	tasks        []*db.Task
	appointments []*db.Appointment
	payments     []*db.Payment
	contacts     []*db.Contact
}

// RunPass runs one pass evaluated at now. Per-entity problems (malformed
// rows, send failures) are counted in the Summary and never fail the pass.
// A data store error aborts the pass with an error wrapping ErrLoad; the
// ledger stays consistent with the sends that completed before it.
func (c *Coordinator) RunPass(ctx context.Context, now time.Time) (Summary, error) {
	sum, err := c.runPass(ctx, now)
	metrics.RecordPass(err, sum.Duration)
	return sum, err
}

func (c *Coordinator) runPass(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()
	var sum Summary

	b, err := c.load(ctx, now)
	if err != nil {
		sum.Duration = c.since(start)
		return sum, err
	}

	for _, e := range b.enrollments {
		if err := c.runEnrollment(ctx, e, now, &sum); err != nil {
			sum.Duration = c.since(start)
			return sum, err
		}
	}

	dir := recipient.NewDirectory(b.contacts)
	reminders := trigger.TaskReminders(b.tasks, dir, now, c.loc)
	reminders = append(reminders, trigger.AppointmentReminders(b.appointments, dir, now, c.loc)...)
	reminders = append(reminders, trigger.PaymentReminders(b.payments, dir, now, c.loc)...)

	for _, t := range reminders {
		for _, r := range t.Recipients {
			key := ledger.Key{Kind: string(t.Kind), EntityID: t.EntityID, SubjectID: r.ID, Window: t.Window}
			if _, err := c.deliver(ctx, key, t, []string{r.Email}, now, &sum); err != nil {
				sum.Duration = c.since(start)
				return sum, err
			}
		}
	}

	sum.Duration = c.since(start)

	c.logger.Info("dispatch pass finished",
		zap.Time("at", now),
		zap.Int("enrollments", len(b.enrollments)),
		zap.Int("reminders", len(reminders)),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("paused", sum.Paused),
		zap.Int("completed", sum.Completed),
		zap.Duration("duration", sum.Duration),
	)

	return sum, nil
}

func (c *Coordinator) load(ctx context.Context, now time.Time) (*batch, error) {
	today := trigger.Today(now, c.loc)
	tomorrow := today.AddDays(1)
	paymentDay := today.AddDays(trigger.PaymentLeadDays)

	var b batch
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		b.enrollments, err = c.store.ListActiveEnrollments(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		b.tasks, err = c.store.ListTasksDueBetween(gctx, today.Start(time.UTC), tomorrow.Start(time.UTC))
		return err
	})
	g.Go(func() error {
		// A day of slack on each side; the evaluator decides in c.loc
		from := tomorrow.Start(c.loc).Add(-24 * time.Hour)
		to := tomorrow.AddDays(1).Start(c.loc).Add(24 * time.Hour)
		var err error
		b.appointments, err = c.store.ListAppointmentsBetween(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		b.payments, err = c.store.ListPaymentsDueBetween(gctx, paymentDay.Start(time.UTC), paymentDay.Start(time.UTC))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: load entities: %w", ErrLoad, err)
	}

	accounts := accountIDs(b.tasks, b.appointments, b.payments)
	if len(accounts) > 0 {
		contacts, err := c.store.ListContacts(ctx, accounts)
		if err != nil {
			return nil, fmt.Errorf("%w: load contacts: %w", ErrLoad, err)
		}
		b.contacts = contacts
	}

	return &b, nil
}

// runEnrollment applies lead-driven transitions, delivers due funnel steps
// and then checks once whether every step has been delivered.
func (c *Coordinator) runEnrollment(ctx context.Context, e *db.Enrollment, now time.Time, sum *Summary) error {
	if e == nil || e.Lead == nil || e.EnrolledAt.IsZero() {
		return nil
	}

	if ev := enrollment.EventForLead(e.Lead.Status); ev != enrollment.EventNone {
		return c.transition(ctx, e, ev, sum)
	}

	delivered, err := c.ledger.Delivered(ctx, string(trigger.KindFunnelStep), e.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	for _, t := range trigger.FunnelSteps(e, delivered, now) {
		key := ledger.Key{Kind: string(t.Kind), EntityID: e.ID, SubjectID: t.StepID}
		done, err := c.deliver(ctx, key, t, t.Addresses(), now, sum)
		if err != nil {
			return err
		}
		if done {
			delivered[t.StepID] = now
		}
	}

	if enrollment.AllDelivered(e.Steps, delivered) {
		return c.transition(ctx, e, enrollment.EventAllStepsDelivered, sum)
	}
	return nil
}

func (c *Coordinator) transition(ctx context.Context, e *db.Enrollment, ev enrollment.Event, sum *Summary) error {
	from := enrollment.Status(e.Status)
	to, changed, err := enrollment.Transition(from, ev)
	if err != nil {
		c.logger.Debug("enrollment transition ignored",
			zap.String("enrollment_id", e.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	if !changed {
		return nil
	}

	ok, err := c.store.UpdateEnrollmentStatus(ctx, e.ID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if !ok {
		// Another pass moved it first
		return nil
	}

	e.Status = string(to)
	switch to {
	case enrollment.StatusPaused:
		sum.Paused++
	case enrollment.StatusCompleted:
		sum.Completed++
	}
	metrics.RecordTransition(string(to))

	c.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", e.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Stringer("event", ev),
	)
	return nil
}

// deliver sends t to the given addresses under key unless the key is
// already recorded or claimed. The ledger is written only after a
// successful send. It reports whether the key is now recorded by this
// pass; the error is non-nil only for data store failures.
func (c *Coordinator) deliver(ctx context.Context, key ledger.Key, t trigger.Trigger, to []string, now time.Time, sum *Summary) (bool, error) {
	kind := string(t.Kind)

	seen, err := c.ledger.Has(ctx, key)
	if errors.Is(err, ledger.ErrInvalidKey) {
		c.logger.Warn("skipping trigger with malformed key", zap.String("key", key.String()))
		c.skip(kind, sum)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if seen {
		c.skip(kind, sum)
		return false, nil
	}

	claimed := false
	if c.claims != nil {
		ok, err := c.claims.Claim(ctx, key.String())
		switch {
		case err != nil:
			c.logger.Warn("claim unavailable, relying on ledger", zap.String("key", key.String()), zap.Error(err))
		case !ok:
			c.skip(kind, sum)
			return false, nil
		default:
			claimed = true
		}
	}

	msg := sender.Message{To: to, Subject: t.Subject, Body: t.Body, Tag: kind}
	if err := c.sender.Send(ctx, msg); err != nil {
		sum.Failed++
		metrics.RecordTrigger(kind, metrics.OutcomeFailed)
		c.logger.Warn("send failed",
			zap.String("key", key.String()),
			zap.Strings("to", to),
			zap.Error(err),
		)
		if claimed {
			if err := c.claims.Release(ctx, key.String()); err != nil {
				c.logger.Warn("failed to release claim", zap.String("key", key.String()), zap.Error(err))
			}
		}
		return false, nil
	}

	inserted, err := c.ledger.Record(ctx, key, now)
	if errors.Is(err, ledger.ErrInvalidKey) {
		c.logger.Warn("sent but key is malformed, not recorded", zap.String("key", key.String()))
		c.skip(kind, sum)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if !inserted {
		c.logger.Warn("sent but another pass recorded the key first", zap.String("key", key.String()))
		c.skip(kind, sum)
		return false, nil
	}

	sum.Processed++
	metrics.RecordTrigger(kind, metrics.OutcomeSent)
	c.publish(ctx, key, t, to, now)
	return true, nil
}

func (c *Coordinator) skip(kind string, sum *Summary) {
	sum.Skipped++
	metrics.RecordTrigger(kind, metrics.OutcomeSkipped)
}

func (c *Coordinator) publish(ctx context.Context, key ledger.Key, t trigger.Trigger, to []string, now time.Time) {
	if c.events == nil {
		return
	}
	_, err := c.events.Publish(ctx, sns.Event{
		Kind:       key.Kind,
		EntityID:   key.EntityID.String(),
		SubjectID:  key.SubjectID.String(),
		Window:     key.Window,
		Recipients: to,
		Subject:    t.Subject,
		FiredAt:    now,
	})
	if err != nil {
		c.logger.Warn("failed to publish trigger event", zap.String("key", key.String()), zap.Error(err))
	}
}

func accountIDs(tasks []*db.Task, appts []*db.Appointment, payments []*db.Payment) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, t := range tasks {
		if t != nil {
			add(t.AccountID)
		}
	}
	for _, a := range appts {
		if a != nil {
			add(a.AccountID)
		}
	}
	for _, p := range payments {
		if p != nil {
			add(p.AccountID)
		}
	}
	return out
}
