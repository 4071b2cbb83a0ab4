package trigger

import (
	"fmt"

	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/render"
)

// Reminder templates. Placeholders are filled by render.Render.
const (
	taskDueTodaySubject = "Due today: {{title}}"
	taskDueTodayBody    = "Reminder: the task \"{{title}}\" is due today ({{due_date}}). Please complete it as soon as possible."

	taskDueTomorrowSubject = "Due tomorrow: {{title}}"
	taskDueTomorrowBody    = "Heads up: the task \"{{title}}\" is due tomorrow ({{due_date}})."

	appointmentSubject = "Appointment tomorrow: {{title}}"
	appointmentBody    = "You have an appointment \"{{title}}\" tomorrow, {{date}} at {{time}}{{location_suffix}}."

	paymentSubject = "Payment due in 3 days"
	paymentBody    = "A payment of {{amount}} for \"{{description}}\" is due on {{due_date}}."
)

// LeadVars returns the placeholders available to campaign step templates.
func LeadVars(lead *db.Lead) render.Vars {
	if lead == nil {
		return nil
	}
	return render.Vars{
		"name":      lead.Name,
		"email":     lead.Email,
		"segment":   lead.Segment,
		"objective": lead.Objective,
	}
}

// FormatAmount renders an amount in minor units, e.g. 125050 USD -> "1250.50 USD".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}
