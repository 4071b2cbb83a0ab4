// Package trigger decides which time-driven notifications are due.
//
// Every evaluator is a pure function of entity state, the pass clock and a
// recipient directory loaded up front. Entities with missing timestamps or
// no deliverable recipients are skipped without error so one bad row never
// aborts a pass.
package trigger

import (
	"github.com/google/uuid"

	"github.com/lalithlochan/nudge/internal/recipient"
)

// Kind identifies what fired. It is part of every ledger key.
type Kind string

const (
	KindFunnelStep          Kind = "funnel_step"
	KindTaskDueToday        Kind = "task_due_today"
	KindTaskDueTomorrow     Kind = "task_due_tomorrow"
	KindAppointmentTomorrow Kind = "appointment_tomorrow"
	KindPaymentDue          Kind = "payment_due"
)

// Trigger is one due notification with its rendered message.
type Trigger struct {
	Kind Kind

	// EntityID is the enrollment, task, appointment or payment.
	EntityID uuid.UUID

	// StepID is set for funnel steps only.
	StepID uuid.UUID

	// Window scopes reminder ledger keys: the calendar day for tasks, the
	// scheduled or due date for appointments and payments. Empty for
	// funnel steps.
	Window string

	Recipients []recipient.Recipient
	Subject    string
	Body       string
}

// Addresses returns the trigger's recipient addresses.
func (t Trigger) Addresses() []string {
	return recipient.Addresses(t.Recipients)
}
