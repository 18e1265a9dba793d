// Package events defines the event payloads published to Kafka.
package events

import "time"

// ReminderDue is emitted when a custom event's reminder time is reached.
type ReminderDue struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	CourseID *int64    `json:"course_id,omitempty"`
	StartAt  time.Time `json:"start_at"`
	RemindAt time.Time `json:"remind_at"`
}
