package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CCU-Computing/490-project-mycalendar/internal/moodle"
)

// fakeBackend serves canned Moodle payloads and counts upstream calls.
type fakeBackend struct {
	mu sync.Mutex

	siteInfo   moodle.SiteInfo
	courses    []moodle.CourseRecord
	assigns    []moodle.CourseAssignments
	quizzes    []moodle.QuizRecord
	gradebooks map[int64]moodle.GradeItemsSnapshot

	siteInfoErr error
	coursesErr  error
	assignsErr  error
	quizzesErr  error
	gradesErr   error

	siteInfoCalls int
	coursesCalls  int
	assignsCalls  int
	quizzesCalls  int
	gradesCalls   map[int64]int
}

func (f *fakeBackend) GetSiteInfo(ctx context.Context, token string) (moodle.SiteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.siteInfoCalls++
	return f.siteInfo, f.siteInfoErr
}

func (f *fakeBackend) GetInProgressCourses(ctx context.Context, token string, limit, offset int) ([]moodle.CourseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coursesCalls++
	return f.courses, f.coursesErr
}

func (f *fakeBackend) GetAssignments(ctx context.Context, token string, courseIDs []int64) ([]moodle.CourseAssignments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignsCalls++
	return f.assigns, f.assignsErr
}

func (f *fakeBackend) GetQuizzes(ctx context.Context, token string, courseIDs []int64) ([]moodle.QuizRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizzesCalls++
	return f.quizzes, f.quizzesErr
}

func (f *fakeBackend) GetUserGradeItems(ctx context.Context, token string, courseID, userID int64) (moodle.GradeItemsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gradesCalls == nil {
		f.gradesCalls = make(map[int64]int)
	}
	f.gradesCalls[courseID]++
	if f.gradesErr != nil {
		return moodle.GradeItemsSnapshot{}, f.gradesErr
	}
	return f.gradebooks[courseID], nil
}

func newTestBackend() *fakeBackend {
	return &fakeBackend{
		siteInfo: moodle.SiteInfo{UserID: 5, SiteName: "Coastal Moodle", FullName: "Pat Doe", Username: "pdoe"},
		courses: []moodle.CourseRecord{
			{ID: 101, FullName: "Data Structures", StartDate: 1693000000, Visible: 1},
			{ID: 202, FullName: "Operating Systems", Visible: 1},
		},
		gradebooks: map[int64]moodle.GradeItemsSnapshot{},
	}
}

func newTestSession() *Session {
	return &Session{ID: "sess-1", MoodleToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestBootstrapCachesIdentity(t *testing.T) {
	backend := newTestBackend()
	svc := NewService(backend, 0)
	sess := newTestSession()

	first, err := svc.Bootstrap(context.Background(), "tok", sess)
	require.NoError(t, err)
	require.Equal(t, int64(5), first.UserID)
	require.Equal(t, "Pat Doe", first.UserName)
	require.Len(t, first.Courses, 2)

	second, err := svc.Bootstrap(context.Background(), "tok", sess)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, 1, backend.siteInfoCalls)
	require.Equal(t, 1, backend.coursesCalls)
}

func TestBootstrapRetriesFailedSlot(t *testing.T) {
	backend := newTestBackend()
	backend.coursesErr = errors.New("boom")
	svc := NewService(backend, 0)
	sess := newTestSession()

	_, err := svc.Bootstrap(context.Background(), "tok", sess)
	require.Error(t, err)

	// Identity landed; only the course list is refetched.
	backend.coursesErr = nil
	ident, err := svc.Bootstrap(context.Background(), "tok", sess)
	require.NoError(t, err)
	require.Len(t, ident.Courses, 2)
	require.Equal(t, 1, backend.siteInfoCalls)
	require.Equal(t, 2, backend.coursesCalls)
}

func TestBootstrapFallsBackToUsername(t *testing.T) {
	backend := newTestBackend()
	backend.siteInfo.FullName = ""
	svc := NewService(backend, 0)

	ident, err := svc.Bootstrap(context.Background(), "tok", newTestSession())
	require.NoError(t, err)
	require.Equal(t, "pdoe", ident.UserName)
}

func TestCourseCardsGradeSelection(t *testing.T) {
	backend := newTestBackend()
	progress := 62.5
	backend.courses[0].Progress = &progress
	backend.courses[0].HasProgress = true
	backend.gradebooks[101] = moodle.GradeItemsSnapshot{UserGrades: []moodle.UserGrades{{
		CourseID: 101,
		GradeItems: []moodle.GradeItem{
			{ItemType: "course", GradeFormatted: "88.00", PercentageFormatted: "91.20 %"},
		},
	}}}
	// Course 202's gradebook carries no course-total line at all.
	backend.gradebooks[202] = moodle.GradeItemsSnapshot{UserGrades: []moodle.UserGrades{{
		CourseID:   202,
		GradeItems: []moodle.GradeItem{{ItemType: "mod", ItemModule: "quiz", ItemInstance: 9}},
	}}}

	svc := NewService(backend, 2)
	cards, err := svc.CourseCards(context.Background(), "tok", newTestSession())
	require.NoError(t, err)
	require.Len(t, cards, 2)

	// Output preserves course-list order despite concurrent fetches.
	require.Equal(t, int64(101), cards[0].ID)
	require.Equal(t, int64(202), cards[1].ID)

	require.NotNil(t, cards[0].Grade)
	require.Equal(t, "91.20 %", *cards[0].Grade)
	require.NotNil(t, cards[0].Progress)
	require.Equal(t, 62.5, *cards[0].Progress)
	require.NotNil(t, cards[0].StartDate)

	require.Nil(t, cards[1].Grade)
	require.Nil(t, cards[1].Progress)
	require.Nil(t, cards[1].StartDate)
}

func workFixture(backend *fakeBackend) {
	backend.assigns = []moodle.CourseAssignments{
		{CourseID: 101, Assignments: []moodle.AssignmentRecord{
			{ID: 31, CMID: 310, Course: 101, Name: "Homework 1", DueDate: 1700600000, CutoffDate: 1700700000},
			{ID: 32, CMID: 320, Course: 101, Name: "No deadline", DueDate: 0},
		}},
		{CourseID: 202, Assignments: []moodle.AssignmentRecord{}},
	}
	backend.quizzes = []moodle.QuizRecord{
		{ID: 7, Course: 101, Name: "Quiz 1", TimeOpen: 1700000000, TimeClose: 1700600000},
	}
	backend.gradebooks[202] = moodle.GradeItemsSnapshot{UserGrades: []moodle.UserGrades{{
		CourseID: 202,
		GradeItems: []moodle.GradeItem{
			{ItemName: "Lab report", ItemType: "mod", ItemModule: "assign", ItemInstance: 41, CMID: 410},
			{ItemName: "", ItemType: "mod", ItemModule: "assign", ItemInstance: 42},
			{ItemName: "Midterm", ItemType: "mod", ItemModule: "quiz", ItemInstance: 9},
			{ItemName: "Course total", ItemType: "course", GradeFormatted: "77.00"},
		},
	}}}
}

func TestWorkItemsSynthesizesFallback(t *testing.T) {
	backend := newTestBackend()
	workFixture(backend)

	svc := NewService(backend, 2)
	work, err := svc.WorkItemsByCourse(context.Background(), "tok", newTestSession())
	require.NoError(t, err)
	require.Len(t, work, 2)

	course101 := work[0]
	require.Equal(t, int64(101), course101.CourseID)
	require.Len(t, course101.Assignments, 2)
	require.NotNil(t, course101.Assignments[0].DueAt)
	require.Equal(t, int64(1700600000), *course101.Assignments[0].DueAt)
	// A zero upstream timestamp means "not set".
	require.Nil(t, course101.Assignments[1].DueAt)
	require.Len(t, course101.Quizzes, 1)
	require.Equal(t, int64(1700000000), *course101.Quizzes[0].OpenAt)

	course202 := work[1]
	require.Equal(t, int64(202), course202.CourseID)
	require.Len(t, course202.Assignments, 2)
	require.NotNil(t, course202.Quizzes)
	require.Empty(t, course202.Quizzes)
	for _, item := range course202.Assignments {
		require.Equal(t, KindAssign, item.Kind)
		require.Nil(t, item.DueAt)
	}
	require.Equal(t, int64(41), course202.Assignments[0].ID)
	require.Equal(t, "Lab report", course202.Assignments[0].Name)
	require.Equal(t, "Assignment", course202.Assignments[1].Name)

	// The gradebook fallback only ran for the empty course.
	require.Equal(t, 1, backend.gradesCalls[202])
	require.Zero(t, backend.gradesCalls[101])
}

func TestWorkItemsNoFallbackWhenPopulated(t *testing.T) {
	backend := newTestBackend()
	workFixture(backend)
	backend.assigns[1].Assignments = []moodle.AssignmentRecord{
		{ID: 50, Course: 202, Name: "Project", DueDate: 1701000000},
	}

	svc := NewService(backend, 2)
	work, err := svc.WorkItemsByCourse(context.Background(), "tok", newTestSession())
	require.NoError(t, err)
	require.Len(t, work[1].Assignments, 1)
	require.Equal(t, "Project", work[1].Assignments[0].Name)
	require.Empty(t, backend.gradesCalls)
}

func TestWorkItemsPropagatesQuizFailure(t *testing.T) {
	backend := newTestBackend()
	workFixture(backend)
	backend.quizzesErr = &moodle.TransportError{Status: 502, Body: "bad gateway"}

	svc := NewService(backend, 2)
	_, err := svc.WorkItemsByCourse(context.Background(), "tok", newTestSession())

	var transportErr *moodle.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestDueCalendarDropsUndatedAndSorts(t *testing.T) {
	backend := newTestBackend()
	workFixture(backend)

	svc := NewService(backend, 2)
	events, err := svc.DueCalendar(context.Background(), "tok", newTestSession())
	require.NoError(t, err)

	// Course 101 contributes one dated assignment and one dated quiz; the
	// undated assignment and every synthesized item are dropped.
	require.Len(t, events, 2)

	// Equal timestamps keep assignment-before-quiz traversal order.
	require.Equal(t, "assign:31", events[0].ID)
	require.Equal(t, KindAssign, events[0].Kind)
	require.Equal(t, "quiz:7", events[1].ID)
	require.Equal(t, KindQuiz, events[1].Kind)
	require.Equal(t, events[0].DueAt, events[1].DueAt)

	seen := map[string]struct{}{}
	for _, event := range events {
		_, dup := seen[event.ID]
		require.False(t, dup, "duplicate event id %s", event.ID)
		seen[event.ID] = struct{}{}
	}
}

func TestForEachStopsOnFirstError(t *testing.T) {
	svc := NewService(newTestBackend(), 1)

	boom := errors.New("boom")
	var calls int
	var mu sync.Mutex
	err := svc.forEach(context.Background(), 8, func(ctx context.Context, i int) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if i == 1 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.Less(t, calls, 8)
}

func TestForEachHonorsParentCancellation(t *testing.T) {
	svc := NewService(newTestBackend(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.forEach(ctx, 4, func(ctx context.Context, i int) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
