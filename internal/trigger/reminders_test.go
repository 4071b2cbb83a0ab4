package trigger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/recipient"
)

type fixture struct {
	account  uuid.UUID
	primary  *db.Contact
	assignee *db.Contact
	admin    *db.Contact
	dir      *recipient.Directory
}

func newFixture() *fixture {
	account := uuid.New()
	f := &fixture{
		account:  account,
		primary:  &db.Contact{ID: uuid.New(), AccountID: &account, Name: "Pat", Email: "pat@client.io", PrimaryContact: true},
		assignee: &db.Contact{ID: uuid.New(), AccountID: &account, Name: "Sam", Email: "sam@client.io"},
		admin:    &db.Contact{ID: uuid.New(), Name: "Ops", Email: "ops@agency.io", IsAdmin: true},
	}
	f.dir = recipient.NewDirectory([]*db.Contact{f.primary, f.assignee, f.admin})
	return f
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTaskReminders_TodayAndTomorrow(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	today := &db.Task{ID: uuid.New(), AccountID: f.account, Title: "Sign contract", DueDate: date(2024, 6, 10), Status: "open", ClientVisible: true}
	tomorrow := &db.Task{ID: uuid.New(), AccountID: f.account, Title: "Upload logo", DueDate: date(2024, 6, 11), Status: "open", ClientVisible: true, AssignedUserID: &f.assignee.ID}
	later := &db.Task{ID: uuid.New(), AccountID: f.account, Title: "Later", DueDate: date(2024, 6, 12), Status: "open", ClientVisible: true}

	due := TaskReminders([]*db.Task{today, tomorrow, later}, f.dir, now, time.UTC)
	require.Len(t, due, 2)

	assert.Equal(t, KindTaskDueToday, due[0].Kind)
	assert.Equal(t, today.ID, due[0].EntityID)
	assert.Equal(t, "2024-06-10", due[0].Window)
	assert.Equal(t, "Due today: Sign contract", due[0].Subject)
	assert.Equal(t, []string{"pat@client.io"}, due[0].Addresses())

	assert.Equal(t, KindTaskDueTomorrow, due[1].Kind)
	assert.Equal(t, "2024-06-10", due[1].Window, "window is the pass date, not the due date")
	assert.Equal(t, []string{"pat@client.io", "sam@client.io"}, due[1].Addresses())
}

func TestTaskReminders_SkipsIneligible(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	tasks := []*db.Task{
		{ID: uuid.New(), AccountID: f.account, Title: "done", DueDate: date(2024, 6, 10), Status: db.TaskCompleted, ClientVisible: true},
		{ID: uuid.New(), AccountID: f.account, Title: "internal", DueDate: date(2024, 6, 10), Status: "open", ClientVisible: false},
		{ID: uuid.New(), AccountID: uuid.New(), Title: "no contacts", DueDate: date(2024, 6, 10), Status: "open", ClientVisible: true},
		nil,
	}

	assert.Empty(t, TaskReminders(tasks, f.dir, now, time.UTC))
}

func TestTaskReminders_NullDueDateDoesNotStopOthers(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	var tasks []*db.Task
	for i := 0; i < 9; i++ {
		tasks = append(tasks, &db.Task{ID: uuid.New(), AccountID: f.account, Title: "valid", DueDate: date(2024, 6, 10), Status: "open", ClientVisible: true})
	}
	tasks = append(tasks[:4], append([]*db.Task{{ID: uuid.New(), AccountID: f.account, Title: "no date", Status: "open", ClientVisible: true}}, tasks[4:]...)...)

	assert.Len(t, TaskReminders(tasks, f.dir, now, time.UTC), 9)
}

func TestTaskReminders_TodayFollowsLocation(t *testing.T) {
	f := newFixture()
	// 22:00 UTC on the 10th is already the 11th in Tokyo
	now := time.Date(2024, 6, 10, 22, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	task := &db.Task{ID: uuid.New(), AccountID: f.account, Title: "x", DueDate: date(2024, 6, 11), Status: "open", ClientVisible: true}

	due := TaskReminders([]*db.Task{task}, f.dir, now, tokyo)
	require.Len(t, due, 1)
	assert.Equal(t, KindTaskDueToday, due[0].Kind)
	assert.Equal(t, "2024-06-11", due[0].Window)
}

func TestAppointmentReminders(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	at := func(t time.Time) *time.Time { return &t }

	tomorrow := &db.Appointment{ID: uuid.New(), AccountID: f.account, Title: "Kickoff", ScheduledAt: at(time.Date(2024, 6, 11, 15, 30, 0, 0, time.UTC)), Status: "scheduled", Location: "Zoom"}
	cancelled := &db.Appointment{ID: uuid.New(), AccountID: f.account, Title: "Old", ScheduledAt: at(time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC)), Status: db.AppointmentCancelled}
	today := &db.Appointment{ID: uuid.New(), AccountID: f.account, Title: "Today", ScheduledAt: at(time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)), Status: "scheduled"}
	unscheduled := &db.Appointment{ID: uuid.New(), AccountID: f.account, Title: "TBD", Status: "scheduled"}

	due := AppointmentReminders([]*db.Appointment{tomorrow, cancelled, today, unscheduled}, f.dir, now, time.UTC)
	require.Len(t, due, 1)

	trig := due[0]
	assert.Equal(t, KindAppointmentTomorrow, trig.Kind)
	assert.Equal(t, tomorrow.ID, trig.EntityID)
	assert.Equal(t, "2024-06-11", trig.Window)
	assert.Equal(t, "Appointment tomorrow: Kickoff", trig.Subject)
	assert.Contains(t, trig.Body, "15:30")
	assert.Contains(t, trig.Body, "(Zoom)")
	assert.Equal(t, []string{"pat@client.io", "ops@agency.io"}, trig.Addresses())
}

func TestAppointmentReminders_ConvertsToLocation(t *testing.T) {
	f := newFixture()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	// 02:00 UTC on the 12th is 22:00 on the 11th in New York
	at := time.Date(2024, 6, 12, 2, 0, 0, 0, time.UTC)
	appt := &db.Appointment{ID: uuid.New(), AccountID: f.account, Title: "Late call", ScheduledAt: &at, Status: "scheduled"}

	assert.Empty(t, AppointmentReminders([]*db.Appointment{appt}, f.dir, now, time.UTC))
	due := AppointmentReminders([]*db.Appointment{appt}, f.dir, now, ny)
	require.Len(t, due, 1)
	assert.Contains(t, due[0].Body, "22:00")
}

func TestPaymentReminders(t *testing.T) {
	f := newFixture()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	dueIn3 := &db.Payment{ID: uuid.New(), AccountID: f.account, Description: "Retainer", AmountCents: 125050, Currency: "USD", DueDate: date(2024, 6, 13), Status: "pending"}
	dueIn2 := &db.Payment{ID: uuid.New(), AccountID: f.account, AmountCents: 100, DueDate: date(2024, 6, 12), Status: "pending"}
	paid := &db.Payment{ID: uuid.New(), AccountID: f.account, AmountCents: 100, DueDate: date(2024, 6, 13), Status: db.PaymentPaid}
	undated := &db.Payment{ID: uuid.New(), AccountID: f.account, AmountCents: 100, Status: "pending"}

	due := PaymentReminders([]*db.Payment{dueIn3, dueIn2, paid, undated}, f.dir, now, time.UTC)
	require.Len(t, due, 1)
	assert.Equal(t, KindPaymentDue, due[0].Kind)
	assert.Equal(t, dueIn3.ID, due[0].EntityID)
	assert.Equal(t, "2024-06-13", due[0].Window)
	assert.Equal(t, "A payment of 1250.50 USD for \"Retainer\" is due on 2024-06-13.", due[0].Body)
	assert.Equal(t, []string{"pat@client.io"}, due[0].Addresses())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1250.50 USD", FormatAmount(125050, "USD"))
	assert.Equal(t, "0.05", FormatAmount(5, ""))
	assert.Equal(t, "-3.00 EUR", FormatAmount(-300, "EUR"))
}
