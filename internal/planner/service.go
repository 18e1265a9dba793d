package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations for planner data. The
// Postgres implementation also records reminder outbox rows transactionally
// with the event they belong to.
type Repository interface {
	ListCustomEvents(ctx context.Context, userID string, assignmentID *string) ([]CustomEvent, error)
	GetCustomEvent(ctx context.Context, userID, id string) (*CustomEvent, error)
	CreateCustomEvent(ctx context.Context, event CustomEvent, reminder *Reminder) error
	UpdateCustomEvent(ctx context.Context, event CustomEvent, reminder *Reminder) error
	DeleteCustomEvent(ctx context.Context, userID, id string) error

	ListTimeBlocks(ctx context.Context, userID string, dayOfWeek *int, blockType string) ([]TimeBlock, error)
	GetTimeBlock(ctx context.Context, userID, id string) (*TimeBlock, error)
	CreateTimeBlock(ctx context.Context, block TimeBlock) error
	UpdateTimeBlock(ctx context.Context, block TimeBlock) error
	DeleteTimeBlock(ctx context.Context, userID, id string) error

	ListStarred(ctx context.Context, userID string) ([]StarredAssignment, error)
	Star(ctx context.Context, star StarredAssignment) (bool, error)
	Unstar(ctx context.Context, userID, moodleAssignmentID string) error

	ListCourseMetadata(ctx context.Context, userID string) ([]CourseMetadata, error)
	GetCourseMetadata(ctx context.Context, userID string, courseID int64) (*CourseMetadata, error)
	UpsertCourseMetadata(ctx context.Context, metadata CourseMetadata) error

	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs Preferences) error

	ListEventsBetween(ctx context.Context, userID string, from, to time.Time) ([]CustomEvent, error)
}

// Service validates and orchestrates planner workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListCustomEvents returns the user's events, optionally filtered to those
// linked to one Moodle assignment.
func (s *Service) ListCustomEvents(ctx context.Context, userID string, assignmentID *string) ([]CustomEvent, error) {
	return s.repo.ListCustomEvents(ctx, userID, assignmentID)
}

// GetCustomEvent fetches one event owned by the user.
func (s *Service) GetCustomEvent(ctx context.Context, userID, id string) (*CustomEvent, error) {
	event, err := s.repo.GetCustomEvent(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}
	return event, nil
}

// CreateCustomEvent validates and persists a new event, recording a
// reminder outbox row when the event requests one.
func (s *Service) CreateCustomEvent(ctx context.Context, event CustomEvent) (*CustomEvent, error) {
	if err := validateCustomEvent(event); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	event.ID = uuid.NewString()
	if event.EventType == "" {
		event.EventType = "study"
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.repo.CreateCustomEvent(ctx, event, reminderFor(event)); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateCustomEvent validates and replaces an existing event. A changed
// reminder offset re-enqueues the reminder.
func (s *Service) UpdateCustomEvent(ctx context.Context, event CustomEvent) (*CustomEvent, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := validateCustomEvent(event); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCustomEvent(ctx, event.UserID, event.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateCustomEvent(ctx, event, reminderFor(event)); err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteCustomEvent removes an event owned by the user.
func (s *Service) DeleteCustomEvent(ctx context.Context, userID, id string) error {
	return s.repo.DeleteCustomEvent(ctx, userID, id)
}

// ListTimeBlocks returns the user's time blocks with optional filters.
func (s *Service) ListTimeBlocks(ctx context.Context, userID string, dayOfWeek *int, blockType string) ([]TimeBlock, error) {
	if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
		return nil, fmt.Errorf("%w: dayOfWeek must be 0-6", ErrInvalidInput)
	}
	return s.repo.ListTimeBlocks(ctx, userID, dayOfWeek, blockType)
}

// GetTimeBlock fetches one block owned by the user.
func (s *Service) GetTimeBlock(ctx context.Context, userID, id string) (*TimeBlock, error) {
	block, err := s.repo.GetTimeBlock(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrNotFound
	}
	return block, nil
}

// CreateTimeBlock validates and persists a new block.
func (s *Service) CreateTimeBlock(ctx context.Context, block TimeBlock) (*TimeBlock, error) {
	if err := validateTimeBlock(block); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	block.ID = uuid.NewString()
	block.CreatedAt = now
	block.UpdatedAt = now
	if err := s.repo.CreateTimeBlock(ctx, block); err != nil {
		return nil, err
	}
	return &block, nil
}

// UpdateTimeBlock validates and replaces an existing block.
func (s *Service) UpdateTimeBlock(ctx context.Context, block TimeBlock) (*TimeBlock, error) {
	if block.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := validateTimeBlock(block); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetTimeBlock(ctx, block.UserID, block.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	block.CreatedAt = existing.CreatedAt
	block.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateTimeBlock(ctx, block); err != nil {
		return nil, err
	}
	return &block, nil
}

// DeleteTimeBlock removes a block owned by the user.
func (s *Service) DeleteTimeBlock(ctx context.Context, userID, id string) error {
	return s.repo.DeleteTimeBlock(ctx, userID, id)
}

// ListStarred returns the user's starred assignments, newest first.
func (s *Service) ListStarred(ctx context.Context, userID string) ([]StarredAssignment, error) {
	return s.repo.ListStarred(ctx, userID)
}

// Star pins an assignment. Repeated stars of the same assignment are
// idempotent; the second return reports whether a row was created.
func (s *Service) Star(ctx context.Context, userID, moodleAssignmentID string) (*StarredAssignment, bool, error) {
	if strings.TrimSpace(moodleAssignmentID) == "" {
		return nil, false, fmt.Errorf("%w: moodleAssignmentId is required", ErrInvalidInput)
	}
	star := StarredAssignment{
		ID:                 uuid.NewString(),
		UserID:             userID,
		MoodleAssignmentID: moodleAssignmentID,
		CreatedAt:          time.Now().UTC(),
	}
	created, err := s.repo.Star(ctx, star)
	if err != nil {
		return nil, false, err
	}
	return &star, created, nil
}

// Unstar removes a pin.
func (s *Service) Unstar(ctx context.Context, userID, moodleAssignmentID string) error {
	return s.repo.Unstar(ctx, userID, moodleAssignmentID)
}

// ListCourseMetadata returns all per-course notes for the user.
func (s *Service) ListCourseMetadata(ctx context.Context, userID string) ([]CourseMetadata, error) {
	return s.repo.ListCourseMetadata(ctx, userID)
}

// GetCourseMetadata fetches one course's notes.
func (s *Service) GetCourseMetadata(ctx context.Context, userID string, courseID int64) (*CourseMetadata, error) {
	metadata, err := s.repo.GetCourseMetadata(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, ErrNotFound
	}
	return metadata, nil
}

// UpsertCourseMetadata creates or replaces the user's notes for a course.
func (s *Service) UpsertCourseMetadata(ctx context.Context, metadata CourseMetadata) (*CourseMetadata, error) {
	if metadata.CourseID == 0 {
		return nil, fmt.Errorf("%w: courseId is required", ErrInvalidInput)
	}
	metadata.UpdatedAt = time.Now().UTC()
	if metadata.CreatedAt.IsZero() {
		metadata.CreatedAt = metadata.UpdatedAt
	}
	if err := s.repo.UpsertCourseMetadata(ctx, metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// GetPreferences returns the user's preferences, materializing defaults
// on first read.
func (s *Service) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if prefs == nil {
		defaults := DefaultPreferences()
		if err := s.repo.SavePreferences(ctx, userID, defaults); err != nil {
			return Preferences{}, err
		}
		return defaults, nil
	}
	return *prefs, nil
}

// SetCourseColor stores a course color preference and returns the updated
// preference set.
func (s *Service) SetCourseColor(ctx context.Context, userID, courseID, color string) (Preferences, error) {
	if strings.TrimSpace(courseID) == "" || strings.TrimSpace(color) == "" {
		return Preferences{}, fmt.Errorf("%w: courseId and color are required", ErrInvalidInput)
	}
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	prefs.CourseColors[courseID] = color
	if err := s.repo.SavePreferences(ctx, userID, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// SetEventOverride merges a display patch for one calendar event id and
// returns the updated preference set.
func (s *Service) SetEventOverride(ctx context.Context, userID, eventID string, patch EventOverride) (Preferences, error) {
	if strings.TrimSpace(eventID) == "" {
		return Preferences{}, fmt.Errorf("%w: eventId is required", ErrInvalidInput)
	}
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	current := prefs.EventOverrides[eventID]
	if patch.Color != nil {
		current.Color = patch.Color
	}
	if patch.Title != nil {
		current.Title = patch.Title
	}
	if patch.Hidden != nil {
		current.Hidden = patch.Hidden
	}
	prefs.EventOverrides[eventID] = current
	if err := s.repo.SavePreferences(ctx, userID, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// EventsBetween returns the user's custom events overlapping [from, to).
func (s *Service) EventsBetween(ctx context.Context, userID string, from, to time.Time) ([]CustomEvent, error) {
	return s.repo.ListEventsBetween(ctx, userID, from, to)
}

func validateCustomEvent(event CustomEvent) error {
	if strings.TrimSpace(event.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if event.StartAt.IsZero() || event.EndAt.IsZero() {
		return fmt.Errorf("%w: startAt and endAt are required", ErrInvalidInput)
	}
	if !event.EndAt.After(event.StartAt) {
		return fmt.Errorf("%w: endAt must be after startAt", ErrInvalidInput)
	}
	if event.ReminderOffsetMin != nil && *event.ReminderOffsetMin < 0 {
		return fmt.Errorf("%w: reminderOffsetMin must be >= 0", ErrInvalidInput)
	}
	return nil
}

func validateTimeBlock(block TimeBlock) error {
	if strings.TrimSpace(block.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(block.BlockType) == "" {
		return fmt.Errorf("%w: blockType is required", ErrInvalidInput)
	}
	if block.DayOfWeek == nil && block.SpecificDate == nil {
		return fmt.Errorf("%w: dayOfWeek or specificDate is required", ErrInvalidInput)
	}
	if block.DayOfWeek != nil && (*block.DayOfWeek < 0 || *block.DayOfWeek > 6) {
		return fmt.Errorf("%w: dayOfWeek must be 0-6", ErrInvalidInput)
	}
	if block.StartTime == "" || block.EndTime == "" {
		return fmt.Errorf("%w: startTime and endTime are required", ErrInvalidInput)
	}
	return nil
}

func reminderFor(event CustomEvent) *Reminder {
	if event.ReminderOffsetMin == nil {
		return nil
	}
	return &Reminder{
		EventID:  event.ID,
		UserID:   event.UserID,
		Title:    event.Title,
		RemindAt: event.StartAt.Add(-time.Duration(*event.ReminderOffsetMin) * time.Minute),
		StartAt:  event.StartAt,
		CourseID: event.CourseID,
	}
}
