package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository reads the entities a pass scans and persists enrollment
// transitions and ledger entries.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListActiveEnrollments returns every active enrollment joined with its
// lead and the campaign's steps ordered by step_order.
func (r *Repository) ListActiveEnrollments(ctx context.Context) ([]*Enrollment, error) {
	query := `
		SELECT
			e.id, e.lead_id, e.campaign_id, e.enrolled_at, e.status, e.updated_at,
			l.id, l.account_id, l.name, COALESCE(l.email, ''),
			COALESCE(l.segment, ''), COALESCE(l.objective, ''), l.status
		FROM enrollments e
		JOIN leads l ON l.id = e.lead_id
		WHERE e.status = 'active'
		ORDER BY e.enrolled_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*Enrollment
	campaigns := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var e Enrollment
		var l Lead
		err := rows.Scan(
			&e.ID,
			&e.LeadID,
			&e.CampaignID,
			&e.EnrolledAt,
			&e.Status,
			&e.UpdatedAt,
			&l.ID,
			&l.AccountID,
			&l.Name,
			&l.Email,
			&l.Segment,
			&l.Objective,
			&l.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Lead = &l
		enrollments = append(enrollments, &e)
		campaigns[e.CampaignID] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}

	if len(enrollments) == 0 {
		return enrollments, nil
	}

	ids := make([]uuid.UUID, 0, len(campaigns))
	for id := range campaigns {
		ids = append(ids, id)
	}

	steps, err := r.listSteps(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, e := range enrollments {
		e.Steps = steps[e.CampaignID]
	}

	return enrollments, nil
}

func (r *Repository) listSteps(ctx context.Context, campaignIDs []uuid.UUID) (map[uuid.UUID][]*CampaignStep, error) {
	query := `
		SELECT id, campaign_id, step_order, delay_days, subject_template, body_template
		FROM campaign_steps
		WHERE campaign_id = ANY($1::uuid[])
		ORDER BY campaign_id, step_order ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, uuidStrings(campaignIDs))
	if err != nil {
		return nil, fmt.Errorf("query campaign steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[uuid.UUID][]*CampaignStep)
	for rows.Next() {
		var s CampaignStep
		if err := rows.Scan(
			&s.ID,
			&s.CampaignID,
			&s.StepOrder,
			&s.DelayDays,
			&s.SubjectTemplate,
			&s.BodyTemplate,
		); err != nil {
			return nil, fmt.Errorf("scan campaign step: %w", err)
		}
		steps[s.CampaignID] = append(steps[s.CampaignID], &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign steps: %w", err)
	}

	return steps, nil
}

// ListTasksDueBetween returns open, client-visible tasks whose due date
// falls in [from, to]. Dates are compared as calendar dates.
func (r *Repository) ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]*Task, error) {
	query := `
		SELECT id, account_id, title, due_date, status, client_visible, assigned_user_id
		FROM tasks
		WHERE due_date BETWEEN $1::date AND $2::date
		  AND status <> 'completed'
		  AND client_visible
	`

	rows, err := r.db.Pool().Query(ctx, query, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Task, error) {
		var t Task
		err := row.Scan(&t.ID, &t.AccountID, &t.Title, &t.DueDate, &t.Status, &t.ClientVisible, &t.AssignedUserID)
		return &t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}

	return tasks, nil
}

// ListAppointmentsBetween returns appointments scheduled in [from, to)
func (r *Repository) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	query := `
		SELECT id, account_id, title, scheduled_at, status, COALESCE(location, '')
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		  AND status <> 'cancelled'
	`

	rows, err := r.db.Pool().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}

	appointments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Appointment, error) {
		var a Appointment
		err := row.Scan(&a.ID, &a.AccountID, &a.Title, &a.ScheduledAt, &a.Status, &a.Location)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}

	return appointments, nil
}

// ListPaymentsDueBetween returns unpaid payments whose due date falls in [from, to]
func (r *Repository) ListPaymentsDueBetween(ctx context.Context, from, to time.Time) ([]*Payment, error) {
	query := `
		SELECT id, account_id, COALESCE(description, ''), amount_cents, currency, due_date, status
		FROM payments
		WHERE due_date BETWEEN $1::date AND $2::date
		  AND status <> 'paid'
	`

	rows, err := r.db.Pool().Query(ctx, query, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}

	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.AccountID, &p.Description, &p.AmountCents, &p.Currency, &p.DueDate, &p.Status)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}

	return payments, nil
}

// ListContacts returns the users attached to the given accounts plus all
// platform administrators.
func (r *Repository) ListContacts(ctx context.Context, accountIDs []uuid.UUID) ([]*Contact, error) {
	query := `
		SELECT id, account_id, COALESCE(name, ''), COALESCE(email, ''), primary_contact, is_admin
		FROM contacts
		WHERE account_id = ANY($1::uuid[]) OR is_admin
	`

	rows, err := r.db.Pool().Query(ctx, query, uuidStrings(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}

	contacts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Contact, error) {
		var c Contact
		err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.PrimaryContact, &c.IsAdmin)
		return &c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}

	return contacts, nil
}

// UpdateEnrollmentStatus moves an enrollment from one status to another.
// It only applies when the row is still in the expected status, so two
// overlapping passes cannot both transition the same enrollment. Returns
// false when the row had already moved.
func (r *Repository) UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	query := `
		UPDATE enrollments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("failed to update enrollment status",
			zap.Error(err),
			zap.String("enrollment_id", id.String()),
		)
		return false, fmt.Errorf("update enrollment status: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// InsertLedgerEntry inserts the entry unless the same key already exists.
// Returns false, nil on a uniqueness conflict.
func (r *Repository) InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) (bool, error) {
	query := `
		INSERT INTO dispatch_ledger (kind, entity_id, subject_id, window_key, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, entity_id, subject_id, window_key) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		entry.Kind,
		entry.EntityID,
		entry.SubjectID,
		entry.WindowKey,
		entry.SentAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// LedgerEntryExists reports whether the key has already been recorded
func (r *Repository) LedgerEntryExists(ctx context.Context, kind string, entityID, subjectID uuid.UUID, window string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dispatch_ledger
			WHERE kind = $1 AND entity_id = $2 AND subject_id = $3 AND window_key = $4
		)
	`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, kind, entityID, subjectID, window).Scan(&exists); err != nil {
		return false, fmt.Errorf("query ledger entry: %w", err)
	}

	return exists, nil
}

// ListLedgerEntries returns every entry of a kind recorded for an entity
func (r *Repository) ListLedgerEntries(ctx context.Context, kind string, entityID uuid.UUID) ([]*LedgerEntry, error) {
	query := `
		SELECT kind, entity_id, subject_id, window_key, sent_at
		FROM dispatch_ledger
		WHERE kind = $1 AND entity_id = $2
	`

	rows, err := r.db.Pool().Query(ctx, query, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*LedgerEntry, error) {
		var e LedgerEntry
		err := row.Scan(&e.Kind, &e.EntityID, &e.SubjectID, &e.WindowKey, &e.SentAt)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ledger entries: %w", err)
	}

	return entries, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
