// Package ledger records which triggers have fired so that no trigger is
// delivered twice for the same key.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/db"
)

// ErrInvalidKey is returned for keys missing a kind or entity.
var ErrInvalidKey = errors.New("invalid ledger key")

// Key identifies one delivery. Funnel steps use the step as SubjectID and
// leave Window empty. Reminders use the recipient as SubjectID and a
// calendar date as Window.
type Key struct {
	Kind      string
	EntityID  uuid.UUID
	SubjectID uuid.UUID
	Window    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.EntityID, k.SubjectID, k.Window)
}

func (k Key) validate() error {
	if k.Kind == "" || k.EntityID == uuid.Nil {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k)
	}
	return nil
}

// Store persists ledger entries. Insert must be atomic with respect to the
// key: of two concurrent inserts for the same key exactly one reports
// inserted.
type Store interface {
	InsertLedgerEntry(ctx context.Context, entry *db.LedgerEntry) (bool, error)
	LedgerEntryExists(ctx context.Context, kind string, entityID, subjectID uuid.UUID, window string) (bool, error)
	ListLedgerEntries(ctx context.Context, kind string, entityID uuid.UUID) ([]*db.LedgerEntry, error)
}

// Ledger is the dedup ledger.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// New creates a ledger over store.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Has reports whether key has been recorded.
func (l *Ledger) Has(ctx context.Context, key Key) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	ok, err := l.store.LedgerEntryExists(ctx, key.Kind, key.EntityID, key.SubjectID, key.Window)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	return ok, nil
}

// Record stores key with its send time. It returns false, nil when the key
// was already present, which callers treat as a lost race rather than a
// failure.
func (l *Ledger) Record(ctx context.Context, key Key, sentAt time.Time) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}

	inserted, err := l.store.InsertLedgerEntry(ctx, &db.LedgerEntry{
		Kind:      key.Kind,
		EntityID:  key.EntityID,
		SubjectID: key.SubjectID,
		WindowKey: key.Window,
		SentAt:    sentAt,
	})
	if err != nil {
		return false, fmt.Errorf("ledger record %s: %w", key, err)
	}

	if !inserted {
		l.logger.Debug("ledger key already recorded", zap.String("key", key.String()))
	}
	return inserted, nil
}

// Delivered returns the subjects recorded for an entity under kind, keyed
// by subject with their send time. For funnel steps this is the set of
// delivered steps of an enrollment.
func (l *Ledger) Delivered(ctx context.Context, kind string, entityID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	entries, err := l.store.ListLedgerEntries(ctx, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("ledger list %s:%s: %w", kind, entityID, err)
	}

	out := make(map[uuid.UUID]time.Time, len(entries))
	for _, e := range entries {
		out[e.SubjectID] = e.SentAt
	}
	return out, nil
}
