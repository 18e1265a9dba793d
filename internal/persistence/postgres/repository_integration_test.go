//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/CCU-Computing/490-project-mycalendar/internal/planner"
)

func testEvent(userID string) planner.CustomEvent {
	start := time.Date(2026, time.September, 10, 14, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Microsecond)
	return planner.CustomEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     "Study session",
		EventType: "study",
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCustomEventLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	event := testEvent("u1")
	require.NoError(t, repo.CreateCustomEvent(ctx, event, nil))

	got, err := repo.GetCustomEvent(ctx, "u1", event.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, event.Title, got.Title)
	require.True(t, got.StartAt.Equal(event.StartAt))

	// Ownership scoping: another user cannot see or delete the event.
	other, err := repo.GetCustomEvent(ctx, "u2", event.ID)
	require.NoError(t, err)
	require.Nil(t, other)
	require.ErrorIs(t, repo.DeleteCustomEvent(ctx, "u2", event.ID), planner.ErrNotFound)

	event.Title = "Renamed session"
	event.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdateCustomEvent(ctx, event, nil))

	got, err = repo.GetCustomEvent(ctx, "u1", event.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed session", got.Title)

	require.NoError(t, repo.DeleteCustomEvent(ctx, "u1", event.ID))
	gone, err := repo.GetCustomEvent(ctx, "u1", event.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestReminderOutboxWrittenTransactionally(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	event := testEvent("u1")
	offset := 30
	event.ReminderOffsetMin = &offset
	reminder := &planner.Reminder{
		EventID:  event.ID,
		UserID:   event.UserID,
		Title:    event.Title,
		RemindAt: event.StartAt.Add(-30 * time.Minute),
		StartAt:  event.StartAt,
	}
	require.NoError(t, repo.CreateCustomEvent(ctx, event, reminder))

	var (
		topic   string
		payload []byte
	)
	err := pool.QueryRow(ctx,
		`SELECT topic, payload FROM reminder_outbox WHERE source_event_id=$1 AND published_at IS NULL`,
		event.ID,
	).Scan(&topic, &payload)
	require.NoError(t, err)
	require.Equal(t, "reminder_events", topic)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, event.ID, decoded["event_id"])
	require.Equal(t, "u1", decoded["user_id"])

	// Updating without a reminder drops the pending row.
	event.ReminderOffsetMin = nil
	event.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdateCustomEvent(ctx, event, nil))

	var pending int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reminder_outbox WHERE source_event_id=$1 AND published_at IS NULL`,
		event.ID,
	).Scan(&pending))
	require.Zero(t, pending)
}

func TestListEventsBetween(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	inside := testEvent("u1")
	require.NoError(t, repo.CreateCustomEvent(ctx, inside, nil))

	outside := testEvent("u1")
	outside.StartAt = inside.StartAt.AddDate(0, 1, 0)
	outside.EndAt = outside.StartAt.Add(time.Hour)
	require.NoError(t, repo.CreateCustomEvent(ctx, outside, nil))

	from := inside.StartAt.Add(-time.Hour)
	to := inside.StartAt.Add(2 * time.Hour)
	list, err := repo.ListEventsBetween(ctx, "u1", from, to)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, inside.ID, list[0].ID)
}

func TestStarConflictIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	star := planner.StarredAssignment{
		ID:                 uuid.NewString(),
		UserID:             "u1",
		MoodleAssignmentID: "31",
		CreatedAt:          time.Now().UTC(),
	}
	created, err := repo.Star(ctx, star)
	require.NoError(t, err)
	require.True(t, created)

	star.ID = uuid.NewString()
	created, err = repo.Star(ctx, star)
	require.NoError(t, err)
	require.False(t, created)

	list, err := repo.ListStarred(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Unstar(ctx, "u1", "31"))
	list, err = repo.ListStarred(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPreferencesUpsert(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	prefs, err := repo.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, prefs)

	saved := planner.DefaultPreferences()
	saved.CourseColors["101"] = "#00ff00"
	require.NoError(t, repo.SavePreferences(ctx, "u1", saved))

	prefs, err = repo.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	require.Equal(t, "#00ff00", prefs.CourseColors["101"])

	saved.DefaultView = "timeGridWeek"
	require.NoError(t, repo.SavePreferences(ctx, "u1", saved))

	prefs, err = repo.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "timeGridWeek", prefs.DefaultView)
}

func TestCourseMetadataUpsert(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewRepository(pool, "reminder_events")

	now := time.Now().UTC().Truncate(time.Microsecond)
	metadata := planner.CourseMetadata{
		UserID:         "u1",
		CourseID:       101,
		InstructorName: "Dr. Smith",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.UpsertCourseMetadata(ctx, metadata))

	metadata.InstructorName = "Dr. Jones"
	metadata.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpsertCourseMetadata(ctx, metadata))

	got, err := repo.GetCourseMetadata(ctx, "u1", 101)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Dr. Jones", got.InstructorName)

	list, err := repo.ListCourseMetadata(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("mycalendar"),
		postgrescontainer.WithUsername("mycalendar"),
		postgrescontainer.WithPassword("mycalendar"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		if _, execErr := pool.Exec(ctx, string(contents)); execErr != nil {
			require.NoErrorf(t, execErr, "execute migration %s", file)
		}
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(filename), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = errors.New("database not ready")
			}
			return err
		}
		time.Sleep(time.Second)
	}
}
