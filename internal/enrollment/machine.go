// Package enrollment models the lifecycle of a lead's drip campaign
// enrollment.
//
// State transitions:
//
//	active -> paused:     the lead was archived
//	active -> completed:  the lead converted, or every step has been delivered
//	paused, completed:    terminal; no automatic transition leaves them
package enrollment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/nudge/internal/db"
)

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusActive    Status = db.EnrollmentActive
	StatusPaused    Status = db.EnrollmentPaused
	StatusCompleted Status = db.EnrollmentCompleted
)

// Event drives a transition.
type Event int

const (
	EventNone Event = iota
	EventLeadArchived
	EventLeadConverted
	EventAllStepsDelivered
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventLeadArchived:
		return "lead_archived"
	case EventLeadConverted:
		return "lead_converted"
	case EventAllStepsDelivered:
		return "all_steps_delivered"
	default:
		return "unknown"
	}
}

// ErrTerminal is returned when an event is applied to an enrollment that
// is no longer active.
var ErrTerminal = errors.New("enrollment is not active")

// Transition returns the status that follows from applying ev to from.
// changed is false when ev leaves an active enrollment where it is.
func Transition(from Status, ev Event) (to Status, changed bool, err error) {
	switch from {
	case StatusActive:
	case StatusPaused, StatusCompleted:
		if ev == EventNone {
			return from, false, nil
		}
		return from, false, fmt.Errorf("%w: %s on %s", ErrTerminal, ev, from)
	default:
		return from, false, fmt.Errorf("unknown enrollment status %q", from)
	}

	switch ev {
	case EventLeadArchived:
		return StatusPaused, true, nil
	case EventLeadConverted, EventAllStepsDelivered:
		return StatusCompleted, true, nil
	default:
		return from, false, nil
	}
}

// EventForLead maps a lead's status to the event it implies for its
// enrollments.
func EventForLead(leadStatus string) Event {
	switch leadStatus {
	case db.LeadArchived:
		return EventLeadArchived
	case db.LeadConverted:
		return EventLeadConverted
	default:
		return EventNone
	}
}

// AllDelivered reports whether every step has an entry in delivered.
func AllDelivered(steps []*db.CampaignStep, delivered map[uuid.UUID]time.Time) bool {
	for _, s := range steps {
		if _, ok := delivered[s.ID]; !ok {
			return false
		}
	}
	return true
}
