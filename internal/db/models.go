package db

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment is a lead's membership in one drip campaign
type Enrollment struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"lead_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Joined on load
	Lead  *Lead           `json:"lead,omitempty"`
	Steps []*CampaignStep `json:"steps,omitempty"`
}

// Enrollment status constants
const (
	EnrollmentActive    = "active"
	EnrollmentPaused    = "paused"
	EnrollmentCompleted = "completed"
)

// Lead is the CRM record an enrollment points at
type Lead struct {
	ID        uuid.UUID  `json:"id"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Segment   string     `json:"segment"`
	Objective string     `json:"objective"`
	Status    string     `json:"status"`
}

// Lead status values the engine reacts to
const (
	LeadArchived  = "archived"
	LeadConverted = "converted"
)

// CampaignStep is one message template within a campaign
type CampaignStep struct {
	ID              uuid.UUID `json:"id"`
	CampaignID      uuid.UUID `json:"campaign_id"`
	StepOrder       int       `json:"step_order"`
	DelayDays       int       `json:"delay_days"`
	SubjectTemplate string    `json:"subject_template"`
	BodyTemplate    string    `json:"body_template"`
}

// Task is a client-facing to-do with an optional due date
type Task struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Title          string     `json:"title"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Status         string     `json:"status"`
	ClientVisible  bool       `json:"client_visible"`
	AssignedUserID *uuid.UUID `json:"assigned_user_id,omitempty"`
}

// Appointment is a scheduled meeting with an account
type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	Title       string     `json:"title"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Status      string     `json:"status"`
	Location    string     `json:"location"`
}

// Payment is an amount owed by an account
type Payment struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
}

// Entity status values the reminder evaluators skip on
const (
	TaskCompleted        = "completed"
	AppointmentCancelled = "cancelled"
	PaymentPaid          = "paid"
)

// Contact is a platform user that can receive account notifications
type Contact struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      *uuid.UUID `json:"account_id,omitempty"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PrimaryContact bool       `json:"primary_contact"`
	IsAdmin        bool       `json:"is_admin"`
}

// LedgerEntry records that a trigger has fired. Unique on
// (kind, entity_id, subject_id, window_key).
type LedgerEntry struct {
	Kind      string    `json:"kind"`
	EntityID  uuid.UUID `json:"entity_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	WindowKey string    `json:"window_key"`
	SentAt    time.Time `json:"sent_at"`
}
