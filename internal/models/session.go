package models

import "time"

// TypeOfSession classifies a session.
type TypeOfSession string

const (
	SessionNotSpecified TypeOfSession = "NOT_SPECIFIED"
	SessionWorkshop     TypeOfSession = "WORKSHOP"
	SessionLecture      TypeOfSession = "LECTURE"
	SessionKeynote      TypeOfSession = "KEYNOTE"
)

// Valid reports whether t is a known session type.
func (t TypeOfSession) Valid() bool {
	switch t {
	case SessionNotSpecified, SessionWorkshop, SessionLecture, SessionKeynote:
		return true
	}
	return false
}

// Session is a talk or workshop inside a conference.
type Session struct {
	Key             SessionKey    `json:"websafe_key"`
	ConferenceKey   ConferenceKey `json:"conference_key"`
	Name            string        `json:"name"`
	Highlights      string        `json:"highlights"`
	Speaker         string        `json:"speaker"`
	DurationMinutes int64         `json:"duration_minutes"`
	TypeOfSession   TypeOfSession `json:"type_of_session"`
	Date            *time.Time    `json:"date,omitempty"`
	StartTime       string        `json:"start_time"`
	CreatedAt       time.Time     `json:"created_at"`
}

// SessionFilter narrows a conference's session listing. Empty fields match everything.
type SessionFilter struct {
	Type    TypeOfSession
	Speaker string
}
