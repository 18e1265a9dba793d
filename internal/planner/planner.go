// Package planner defines the personal scheduling layer a user places on
// top of their Moodle data: study blocks and custom events, weekly time
// blocks, starred assignments, per-course metadata, and preferences.
package planner

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("planner: record not found")
	// ErrInvalidInput is returned for validation failures.
	ErrInvalidInput = errors.New("planner: invalid input")
)

// CustomEvent is a user-created calendar entry, optionally linked to a
// Moodle assignment (study blocks carry the link).
type CustomEvent struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"-"`
	CourseID           *int64     `json:"courseId,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	EventType          string     `json:"eventType"`
	StartAt            time.Time  `json:"startAt"`
	EndAt              time.Time  `json:"endAt"`
	AllDay             bool       `json:"allDay"`
	Color              string     `json:"color,omitempty"`
	RecurrenceRule     string     `json:"recurrenceRule,omitempty"`
	MoodleAssignmentID *string    `json:"moodleAssignmentId,omitempty"`
	ReminderOffsetMin  *int       `json:"reminderOffsetMin,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// TimeBlock is a recurring weekly block (class, work, sleep) or a
// specific-date block when SpecificDate is set.
type TimeBlock struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	Title          string     `json:"title"`
	BlockType      string     `json:"blockType"`
	DayOfWeek      *int       `json:"dayOfWeek,omitempty"`
	StartTime      string     `json:"startTime"`
	EndTime        string     `json:"endTime"`
	SpecificDate   *time.Time `json:"specificDate,omitempty"`
	RecurrenceRule string     `json:"recurrenceRule,omitempty"`
	Color          string     `json:"color,omitempty"`
	Location       string     `json:"location,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// StarredAssignment marks a Moodle assignment the user pinned.
type StarredAssignment struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"-"`
	MoodleAssignmentID string    `json:"moodleAssignmentId"`
	CreatedAt          time.Time `json:"createdAt"`
}

// CourseMetadata holds the user's own notes about one course.
type CourseMetadata struct {
	UserID         string    `json:"-"`
	CourseID       int64     `json:"courseId"`
	CourseName     string    `json:"courseName,omitempty"`
	CustomImageURL string    `json:"customImageUrl,omitempty"`
	InstructorName string    `json:"instructorName,omitempty"`
	OfficeHours    string    `json:"officeHours,omitempty"`
	ExternalURL    string    `json:"externalUrl,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// EventOverride is a per-event display patch applied in the calendar UI.
type EventOverride struct {
	Color  *string `json:"color,omitempty"`
	Title  *string `json:"title,omitempty"`
	Hidden *bool   `json:"hidden,omitempty"`
}

// Preferences groups calendar and UI settings for one user.
type Preferences struct {
	CourseColors   map[string]string        `json:"courseColors"`
	EventOverrides map[string]EventOverride `json:"eventOverrides"`
	DefaultView    string                   `json:"defaultView"`
	ShowPastEvents bool                     `json:"showPastEvents"`
}

// DefaultPreferences matches what the UI assumes before a user changes
// anything.
func DefaultPreferences() Preferences {
	return Preferences{
		CourseColors:   map[string]string{},
		EventOverrides: map[string]EventOverride{},
		DefaultView:    "dayGridMonth",
		ShowPastEvents: true,
	}
}

// Reminder is the outbox entry written alongside a custom event that
// requested one. RemindAt is StartAt minus the reminder offset.
type Reminder struct {
	EventID  string
	UserID   string
	Title    string
	RemindAt time.Time
	StartAt  time.Time
	CourseID *int64
}
