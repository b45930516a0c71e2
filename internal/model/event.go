package model

import (
	"strings"
	"time"
)

// EventType categorizes calendar events.
type EventType string

const (
	EventMeeting     EventType = "meeting"
	EventPersonal    EventType = "personal"
	EventBreak       EventType = "break"
	EventTravel      EventType = "travel"
	EventAppointment EventType = "appointment"
	EventDeadline    EventType = "deadline"
)

// IsValidEventType checks if an event type string is valid.
func IsValidEventType(t EventType) bool {
	switch t {
	case EventMeeting, EventPersonal, EventBreak, EventTravel, EventAppointment, EventDeadline:
		return true
	default:
		return false
	}
}

// Event sources.
const (
	SourceLocal  = "local"
	SourceGoogle = "google"
)

// Event is a fixed block of busy time. The scheduler only reads events.
type Event struct {
	ID     string    `json:"id" yaml:"id"`
	Name   string    `json:"name" yaml:"name"`
	Type   EventType `json:"type" yaml:"type"`
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	AllDay bool      `json:"all_day,omitempty" yaml:"all_day,omitempty"`
	Active bool      `json:"active" yaml:"active"`
	Source string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Validate checks the field constraints enforced for stored events.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(e.Name) == "" {
		return ValidationError{Field: "name", Reason: "is required"}
	}
	if !IsValidEventType(e.Type) {
		return ValidationError{Field: "type", Reason: "must be meeting, personal, break, travel, appointment, or deadline"}
	}
	if e.Start.IsZero() || !e.End.After(e.Start) {
		return ValidationError{Field: "end", Reason: "end time must be after start time"}
	}
	return nil
}

// Client owns projects and defines the timezone work is scheduled in.
type Client struct {
	ID          string `json:"id" yaml:"id"`
	CompanyName string `json:"company_name" yaml:"company_name"`
	TimeZone    string `json:"time_zone" yaml:"time_zone"`
}

// Project groups tasks for a client.
type Project struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	ClientID string  `json:"client_id" yaml:"client_id"`
	Client   *Client `json:"client,omitempty" yaml:"-"`
}
