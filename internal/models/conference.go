package models

import "time"

// Conference is owned by the profile of its organizer.
type Conference struct {
	Key                  ConferenceKey `json:"websafe_key"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	City                 string        `json:"city"`
	Topics               []string      `json:"topics"`
	OrganizerUserID      string        `json:"organizer_user_id"`
	OrganizerDisplayName string        `json:"organizer_display_name"`
	StartDate            *time.Time    `json:"start_date,omitempty"`
	EndDate              *time.Time    `json:"end_date,omitempty"`
	Month                int           `json:"month"`
	MaxAttendees         int           `json:"max_attendees"`
	SeatsAvailable       int           `json:"seats_available"`
	SessionKeys          []string      `json:"session_keys"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// MonthOf returns the calendar month of t, or 0 when t is nil.
func MonthOf(t *time.Time) int {
	if t == nil {
		return 0
	}
	return int(t.Month())
}
