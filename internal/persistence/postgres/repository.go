// Package postgres provides pgx-backed persistence for planner data and
// the reminder outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CCU-Computing/490-project-mycalendar/internal/events"
	"github.com/CCU-Computing/490-project-mycalendar/internal/planner"
)

// Repository implements planner.Repository on PostgreSQL.
type Repository struct {
	pool          *pgxpool.Pool
	reminderTopic string
}

// NewRepository constructs a Repository. reminderTopic is the Kafka topic
// recorded on outbox rows.
func NewRepository(pool *pgxpool.Pool, reminderTopic string) *Repository {
	return &Repository{pool: pool, reminderTopic: reminderTopic}
}

const customEventColumns = `event_id, user_id, course_id, title, description, event_type,
        start_at, end_at, all_day, color, recurrence_rule, moodle_assignment_id,
        reminder_offset_min, created_at, updated_at`

// ListCustomEvents returns the user's events ordered by start time.
func (r *Repository) ListCustomEvents(ctx context.Context, userID string, assignmentID *string) ([]planner.CustomEvent, error) {
	query := `SELECT ` + customEventColumns + ` FROM custom_events WHERE user_id=$1`
	args := []any{userID}
	if assignmentID != nil {
		query += ` AND moodle_assignment_id=$2`
		args = append(args, *assignmentID)
	}
	query += ` ORDER BY start_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomEvents(rows)
}

// GetCustomEvent returns one event, or nil when absent or owned by
// another user.
func (r *Repository) GetCustomEvent(ctx context.Context, userID, id string) (*planner.CustomEvent, error) {
	query := `SELECT ` + customEventColumns + ` FROM custom_events WHERE event_id=$1 AND user_id=$2`
	rows, err := r.pool.Query(ctx, query, id, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := scanCustomEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// CreateCustomEvent persists the event and its reminder outbox row in one
// transaction.
func (r *Repository) CreateCustomEvent(ctx context.Context, event planner.CustomEvent, reminder *planner.Reminder) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertEvent = `INSERT INTO custom_events (` + customEventColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = tx.Exec(ctx, insertEvent,
		event.ID, event.UserID, event.CourseID, event.Title, event.Description,
		event.EventType, event.StartAt, event.EndAt, event.AllDay, event.Color,
		event.RecurrenceRule, event.MoodleAssignmentID, event.ReminderOffsetMin,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.enqueueReminder(ctx, tx, reminder); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateCustomEvent replaces the event and re-enqueues its pending
// reminder in one transaction.
func (r *Repository) UpdateCustomEvent(ctx context.Context, event planner.CustomEvent, reminder *planner.Reminder) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const update = `UPDATE custom_events SET course_id=$3, title=$4, description=$5,
        event_type=$6, start_at=$7, end_at=$8, all_day=$9, color=$10,
        recurrence_rule=$11, moodle_assignment_id=$12, reminder_offset_min=$13, updated_at=$14
        WHERE event_id=$1 AND user_id=$2`
	tag, err := tx.Exec(ctx, update,
		event.ID, event.UserID, event.CourseID, event.Title, event.Description,
		event.EventType, event.StartAt, event.EndAt, event.AllDay, event.Color,
		event.RecurrenceRule, event.MoodleAssignmentID, event.ReminderOffsetMin,
		event.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = planner.ErrNotFound
		return err
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM reminder_outbox WHERE source_event_id=$1 AND published_at IS NULL`,
		event.ID,
	); err != nil {
		return err
	}
	if err = r.enqueueReminder(ctx, tx, reminder); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteCustomEvent removes the event and any pending reminder.
func (r *Repository) DeleteCustomEvent(ctx context.Context, userID, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM custom_events WHERE event_id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = planner.ErrNotFound
		return err
	}
	if _, err = tx.Exec(ctx,
		`DELETE FROM reminder_outbox WHERE source_event_id=$1 AND published_at IS NULL`, id,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEventsBetween returns events overlapping [from, to).
func (r *Repository) ListEventsBetween(ctx context.Context, userID string, from, to time.Time) ([]planner.CustomEvent, error) {
	query := `SELECT ` + customEventColumns + ` FROM custom_events
        WHERE user_id=$1 AND start_at < $3 AND end_at >= $2
        ORDER BY start_at ASC`
	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomEvents(rows)
}

func (r *Repository) enqueueReminder(ctx context.Context, tx pgx.Tx, reminder *planner.Reminder) error {
	if reminder == nil {
		return nil
	}
	payload, err := json.Marshal(events.ReminderDue{
		EventID:  reminder.EventID,
		UserID:   reminder.UserID,
		Title:    reminder.Title,
		CourseID: reminder.CourseID,
		StartAt:  reminder.StartAt,
		RemindAt: reminder.RemindAt,
	})
	if err != nil {
		return err
	}
	const insert = `INSERT INTO reminder_outbox (source_event_id, user_id, topic, partition_key, payload, remind_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = tx.Exec(ctx, insert,
		reminder.EventID, reminder.UserID, r.reminderTopic, reminder.UserID,
		payload, reminder.RemindAt,
	)
	return err
}

const timeBlockColumns = `block_id, user_id, title, block_type, day_of_week, start_time,
        end_time, specific_date, recurrence_rule, color, location, notes, created_at, updated_at`

// ListTimeBlocks returns the user's blocks with optional day/type filters.
func (r *Repository) ListTimeBlocks(ctx context.Context, userID string, dayOfWeek *int, blockType string) ([]planner.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM time_blocks WHERE user_id=$1`
	args := []any{userID}
	if dayOfWeek != nil {
		args = append(args, *dayOfWeek)
		query += ` AND day_of_week=$2`
	}
	if blockType != "" {
		args = append(args, blockType)
		query += ` AND block_type=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY day_of_week ASC NULLS LAST, start_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimeBlocks(rows)
}

// GetTimeBlock returns one block, or nil when absent.
func (r *Repository) GetTimeBlock(ctx context.Context, userID, id string) (*planner.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM time_blocks WHERE block_id=$1 AND user_id=$2`
	rows, err := r.pool.Query(ctx, query, id, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list, err := scanTimeBlocks(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// CreateTimeBlock persists a new block.
func (r *Repository) CreateTimeBlock(ctx context.Context, block planner.TimeBlock) error {
	const insert = `INSERT INTO time_blocks (` + timeBlockColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.pool.Exec(ctx, insert,
		block.ID, block.UserID, block.Title, block.BlockType, block.DayOfWeek,
		block.StartTime, block.EndTime, block.SpecificDate, block.RecurrenceRule,
		block.Color, block.Location, block.Notes, block.CreatedAt, block.UpdatedAt,
	)
	return err
}

// UpdateTimeBlock replaces an existing block.
func (r *Repository) UpdateTimeBlock(ctx context.Context, block planner.TimeBlock) error {
	const update = `UPDATE time_blocks SET title=$3, block_type=$4, day_of_week=$5,
        start_time=$6, end_time=$7, specific_date=$8, recurrence_rule=$9,
        color=$10, location=$11, notes=$12, updated_at=$13
        WHERE block_id=$1 AND user_id=$2`
	tag, err := r.pool.Exec(ctx, update,
		block.ID, block.UserID, block.Title, block.BlockType, block.DayOfWeek,
		block.StartTime, block.EndTime, block.SpecificDate, block.RecurrenceRule,
		block.Color, block.Location, block.Notes, block.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return planner.ErrNotFound
	}
	return nil
}

// DeleteTimeBlock removes a block.
func (r *Repository) DeleteTimeBlock(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM time_blocks WHERE block_id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return planner.ErrNotFound
	}
	return nil
}

// ListStarred returns starred assignments newest first.
func (r *Repository) ListStarred(ctx context.Context, userID string) ([]planner.StarredAssignment, error) {
	const query = `SELECT star_id, user_id, moodle_assignment_id, created_at
        FROM starred_assignments WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planner.StarredAssignment
	for rows.Next() {
		var star planner.StarredAssignment
		if err := rows.Scan(&star.ID, &star.UserID, &star.MoodleAssignmentID, &star.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, star)
	}
	return out, rows.Err()
}

// Star inserts a pin; a duplicate is a no-op and reports created=false.
func (r *Repository) Star(ctx context.Context, star planner.StarredAssignment) (bool, error) {
	const insert = `INSERT INTO starred_assignments (star_id, user_id, moodle_assignment_id, created_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, moodle_assignment_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, insert, star.ID, star.UserID, star.MoodleAssignmentID, star.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Unstar removes a pin.
func (r *Repository) Unstar(ctx context.Context, userID, moodleAssignmentID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM starred_assignments WHERE user_id=$1 AND moodle_assignment_id=$2`,
		userID, moodleAssignmentID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return planner.ErrNotFound
	}
	return nil
}

const courseMetadataColumns = `user_id, course_id, course_name, custom_image_url,
        instructor_name, office_hours, external_url, notes, created_at, updated_at`

// ListCourseMetadata returns all of the user's course notes.
func (r *Repository) ListCourseMetadata(ctx context.Context, userID string) ([]planner.CourseMetadata, error) {
	query := `SELECT ` + courseMetadataColumns + ` FROM course_metadata WHERE user_id=$1 ORDER BY course_id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planner.CourseMetadata
	for rows.Next() {
		md, err := scanCourseMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

// GetCourseMetadata returns one course's notes, or nil when absent.
func (r *Repository) GetCourseMetadata(ctx context.Context, userID string, courseID int64) (*planner.CourseMetadata, error) {
	query := `SELECT ` + courseMetadataColumns + ` FROM course_metadata WHERE user_id=$1 AND course_id=$2`
	rows, err := r.pool.Query(ctx, query, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	md, err := scanCourseMetadata(rows)
	if err != nil {
		return nil, err
	}
	return &md, rows.Err()
}

// UpsertCourseMetadata creates or replaces the user's notes for a course.
func (r *Repository) UpsertCourseMetadata(ctx context.Context, md planner.CourseMetadata) error {
	const upsert = `INSERT INTO course_metadata (` + courseMetadataColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id, course_id) DO UPDATE SET
            course_name=EXCLUDED.course_name,
            custom_image_url=EXCLUDED.custom_image_url,
            instructor_name=EXCLUDED.instructor_name,
            office_hours=EXCLUDED.office_hours,
            external_url=EXCLUDED.external_url,
            notes=EXCLUDED.notes,
            updated_at=EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, upsert,
		md.UserID, md.CourseID, md.CourseName, md.CustomImageURL, md.InstructorName,
		md.OfficeHours, md.ExternalURL, md.Notes, md.CreatedAt, md.UpdatedAt,
	)
	return err
}

// GetPreferences returns the stored preference blob, or nil on first use.
func (r *Repository) GetPreferences(ctx context.Context, userID string) (*planner.Preferences, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT prefs FROM user_prefs WHERE user_id=$1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var prefs planner.Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, err
	}
	if prefs.CourseColors == nil {
		prefs.CourseColors = map[string]string{}
	}
	if prefs.EventOverrides == nil {
		prefs.EventOverrides = map[string]planner.EventOverride{}
	}
	return &prefs, nil
}

// SavePreferences stores the preference blob.
func (r *Repository) SavePreferences(ctx context.Context, userID string, prefs planner.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	const upsert = `INSERT INTO user_prefs (user_id, prefs, updated_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id) DO UPDATE SET prefs=EXCLUDED.prefs, updated_at=EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, upsert, userID, raw, time.Now().UTC())
	return err
}

func scanCustomEvents(rows pgx.Rows) ([]planner.CustomEvent, error) {
	var out []planner.CustomEvent
	for rows.Next() {
		var event planner.CustomEvent
		if err := rows.Scan(
			&event.ID, &event.UserID, &event.CourseID, &event.Title, &event.Description,
			&event.EventType, &event.StartAt, &event.EndAt, &event.AllDay, &event.Color,
			&event.RecurrenceRule, &event.MoodleAssignmentID, &event.ReminderOffsetMin,
			&event.CreatedAt, &event.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func scanTimeBlocks(rows pgx.Rows) ([]planner.TimeBlock, error) {
	var out []planner.TimeBlock
	for rows.Next() {
		var block planner.TimeBlock
		if err := rows.Scan(
			&block.ID, &block.UserID, &block.Title, &block.BlockType, &block.DayOfWeek,
			&block.StartTime, &block.EndTime, &block.SpecificDate, &block.RecurrenceRule,
			&block.Color, &block.Location, &block.Notes, &block.CreatedAt, &block.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, rows.Err()
}

func scanCourseMetadata(rows pgx.Rows) (planner.CourseMetadata, error) {
	var md planner.CourseMetadata
	err := rows.Scan(
		&md.UserID, &md.CourseID, &md.CourseName, &md.CustomImageURL, &md.InstructorName,
		&md.OfficeHours, &md.ExternalURL, &md.Notes, &md.CreatedAt, &md.UpdatedAt,
	)
	return md, err
}
