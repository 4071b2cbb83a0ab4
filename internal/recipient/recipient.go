// Package recipient resolves who receives a trigger's message.
package recipient

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lalithlochan/nudge/internal/db"
)

// Recipient is one resolved address. ID is the contact (or lead) the
// address belongs to and is part of the reminder ledger key.
type Recipient struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// Directory is an in-memory index of the contacts loaded for a pass.
type Directory struct {
	byID      map[uuid.UUID]*db.Contact
	byAccount map[uuid.UUID][]*db.Contact
	admins    []*db.Contact
}

// NewDirectory indexes contacts by id and account.
func NewDirectory(contacts []*db.Contact) *Directory {
	d := &Directory{
		byID:      make(map[uuid.UUID]*db.Contact, len(contacts)),
		byAccount: make(map[uuid.UUID][]*db.Contact),
	}
	for _, c := range contacts {
		if c == nil {
			continue
		}
		d.byID[c.ID] = c
		if c.AccountID != nil {
			d.byAccount[*c.AccountID] = append(d.byAccount[*c.AccountID], c)
		}
		if c.IsAdmin {
			d.admins = append(d.admins, c)
		}
	}
	return d
}

// PrimaryContacts returns the account's contacts flagged as primary.
func (d *Directory) PrimaryContacts(accountID uuid.UUID) []Recipient {
	var out []Recipient
	for _, c := range d.byAccount[accountID] {
		if c.PrimaryContact {
			out = append(out, fromContact(c))
		}
	}
	return out
}

// Admins returns every platform administrator.
func (d *Directory) Admins() []Recipient {
	out := make([]Recipient, 0, len(d.admins))
	for _, c := range d.admins {
		out = append(out, fromContact(c))
	}
	return out
}

// Contact looks up a single contact by id.
func (d *Directory) Contact(id uuid.UUID) (Recipient, bool) {
	c, ok := d.byID[id]
	if !ok {
		return Recipient{}, false
	}
	return fromContact(c), true
}

// ForLead resolves the recipient of a funnel step: the lead itself.
func ForLead(lead *db.Lead) []Recipient {
	if lead == nil {
		return nil
	}
	return Dedupe([]Recipient{{ID: lead.ID, Name: lead.Name, Email: lead.Email}})
}

// ForTask resolves the account's primary contacts plus the assigned user.
func ForTask(d *Directory, task *db.Task) []Recipient {
	rs := d.PrimaryContacts(task.AccountID)
	if task.AssignedUserID != nil {
		if r, ok := d.Contact(*task.AssignedUserID); ok {
			rs = append(rs, r)
		}
	}
	return Dedupe(rs)
}

// ForAppointment resolves the account's primary contacts plus administrators.
func ForAppointment(d *Directory, appt *db.Appointment) []Recipient {
	return Dedupe(append(d.PrimaryContacts(appt.AccountID), d.Admins()...))
}

// ForPayment resolves the account's primary contacts.
func ForPayment(d *Directory, payment *db.Payment) []Recipient {
	return Dedupe(d.PrimaryContacts(payment.AccountID))
}

// Dedupe drops invalid addresses and repeated addresses (compared
// case-insensitively after trimming). The first occurrence wins.
func Dedupe(rs []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(rs))
	out := make([]Recipient, 0, len(rs))
	for _, r := range rs {
		r.Email = strings.TrimSpace(r.Email)
		if !ValidEmail(r.Email) {
			continue
		}
		key := strings.ToLower(r.Email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Addresses returns the email addresses of rs.
func Addresses(rs []Recipient) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Email
	}
	return out
}

// ValidEmail is a shallow syntax check: one @, non-empty local part and a
// dotted domain.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	return strings.Contains(parts[1], ".")
}

func fromContact(c *db.Contact) Recipient {
	return Recipient{ID: c.ID, Name: c.Name, Email: c.Email}
}
