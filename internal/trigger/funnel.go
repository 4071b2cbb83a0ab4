package trigger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/recipient"
	"github.com/lalithlochan/nudge/internal/render"
)

// FunnelSteps returns a trigger for every step of the enrollment's
// campaign that is due at now and not yet in delivered. A step is due once
// the whole days elapsed since enrollment reach its delay, so a delay of 0
// is due immediately. Several overdue steps fire in the same pass, in step
// order.
func FunnelSteps(e *db.Enrollment, delivered map[uuid.UUID]time.Time, now time.Time) []Trigger {
	if e == nil || e.Lead == nil || e.EnrolledAt.IsZero() {
		return nil
	}

	recipients := recipient.ForLead(e.Lead)
	if len(recipients) == 0 {
		return nil
	}

	elapsed := DaysSince(e.EnrolledAt, now)
	if elapsed < 0 {
		return nil
	}

	steps := make([]*db.CampaignStep, 0, len(e.Steps))
	for _, s := range e.Steps {
		if s != nil {
			steps = append(steps, s)
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })

	vars := LeadVars(e.Lead)

	var due []Trigger
	for _, s := range steps {
		if s.DelayDays < 0 || elapsed < s.DelayDays {
			continue
		}
		if _, ok := delivered[s.ID]; ok {
			continue
		}
		due = append(due, Trigger{
			Kind:       KindFunnelStep,
			EntityID:   e.ID,
			StepID:     s.ID,
			Recipients: recipients,
			Subject:    render.Render(s.SubjectTemplate, vars),
			Body:       render.Render(s.BodyTemplate, vars),
		})
	}

	return due
}
