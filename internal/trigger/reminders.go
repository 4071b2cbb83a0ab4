package trigger

import (
	"time"

	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/recipient"
	"github.com/lalithlochan/nudge/internal/render"
)

// PaymentLeadDays is how far ahead of the due date payment reminders fire.
const PaymentLeadDays = 3

// TaskReminders returns reminders for client-visible, open tasks due today
// or tomorrow in loc. The window is today's date, so each recipient gets at
// most one reminder of each kind per day.
func TaskReminders(tasks []*db.Task, dir *recipient.Directory, now time.Time, loc *time.Location) []Trigger {
	today := Today(now, loc)
	tomorrow := today.AddDays(1)

	var due []Trigger
	for _, t := range tasks {
		if t == nil || t.DueDate == nil || t.DueDate.IsZero() {
			continue
		}
		if t.Status == db.TaskCompleted || !t.ClientVisible {
			continue
		}

		var kind Kind
		var subject, body string
		switch DateOf(*t.DueDate) {
		case today:
			kind, subject, body = KindTaskDueToday, taskDueTodaySubject, taskDueTodayBody
		case tomorrow:
			kind, subject, body = KindTaskDueTomorrow, taskDueTomorrowSubject, taskDueTomorrowBody
		default:
			continue
		}

		recipients := recipient.ForTask(dir, t)
		if len(recipients) == 0 {
			continue
		}

		vars := render.Vars{
			"title":    t.Title,
			"due_date": DateOf(*t.DueDate).String(),
		}
		due = append(due, Trigger{
			Kind:       kind,
			EntityID:   t.ID,
			Window:     today.String(),
			Recipients: recipients,
			Subject:    render.Render(subject, vars),
			Body:       render.Render(body, vars),
		})
	}

	return due
}

// AppointmentReminders returns reminders for appointments scheduled during
// tomorrow's calendar date in loc that are not cancelled.
func AppointmentReminders(appts []*db.Appointment, dir *recipient.Directory, now time.Time, loc *time.Location) []Trigger {
	if loc == nil {
		loc = time.UTC
	}
	tomorrow := Today(now, loc).AddDays(1)

	var due []Trigger
	for _, a := range appts {
		if a == nil || a.ScheduledAt == nil || a.ScheduledAt.IsZero() {
			continue
		}
		if a.Status == db.AppointmentCancelled {
			continue
		}

		local := a.ScheduledAt.In(loc)
		if DateOf(local) != tomorrow {
			continue
		}

		recipients := recipient.ForAppointment(dir, a)
		if len(recipients) == 0 {
			continue
		}

		suffix := ""
		if a.Location != "" {
			suffix = " (" + a.Location + ")"
		}
		vars := render.Vars{
			"title":           a.Title,
			"date":            local.Format("Mon Jan 2, 2006"),
			"time":            local.Format("15:04"),
			"location_suffix": suffix,
		}
		due = append(due, Trigger{
			Kind:       KindAppointmentTomorrow,
			EntityID:   a.ID,
			Window:     tomorrow.String(),
			Recipients: recipients,
			Subject:    render.Render(appointmentSubject, vars),
			Body:       render.Render(appointmentBody, vars),
		})
	}

	return due
}

// PaymentReminders returns reminders for unpaid payments due exactly
// PaymentLeadDays after today in loc.
func PaymentReminders(payments []*db.Payment, dir *recipient.Directory, now time.Time, loc *time.Location) []Trigger {
	target := Today(now, loc).AddDays(PaymentLeadDays)

	var due []Trigger
	for _, p := range payments {
		if p == nil || p.DueDate == nil || p.DueDate.IsZero() {
			continue
		}
		if p.Status == db.PaymentPaid {
			continue
		}
		if DateOf(*p.DueDate) != target {
			continue
		}

		recipients := recipient.ForPayment(dir, p)
		if len(recipients) == 0 {
			continue
		}

		vars := render.Vars{
			"amount":      FormatAmount(p.AmountCents, p.Currency),
			"description": p.Description,
			"due_date":    target.String(),
		}
		due = append(due, Trigger{
			Kind:       KindPaymentDue,
			EntityID:   p.ID,
			Window:     target.String(),
			Recipients: recipients,
			Subject:    render.Render(paymentSubject, vars),
			Body:       render.Render(paymentBody, vars),
		})
	}

	return due
}
