// Package aggregator combines Moodle course, assignment, quiz, and
// gradebook data into the dashboard's derived views: course cards,
// per-course work lists, and the due-date calendar.
package aggregator

import (
	"context"
	"sort"
	"sync"

	"github.com/CCU-Computing/490-project-mycalendar/internal/moodle"
	"github.com/CCU-Computing/490-project-mycalendar/internal/observability"
)

// Backend captures the Moodle web-service calls the aggregator depends on.
// *moodle.Client satisfies it.
type Backend interface {
	GetSiteInfo(ctx context.Context, token string) (moodle.SiteInfo, error)
	GetInProgressCourses(ctx context.Context, token string, limit, offset int) ([]moodle.CourseRecord, error)
	GetAssignments(ctx context.Context, token string, courseIDs []int64) ([]moodle.CourseAssignments, error)
	GetQuizzes(ctx context.Context, token string, courseIDs []int64) ([]moodle.QuizRecord, error)
	GetUserGradeItems(ctx context.Context, token string, courseID, userID int64) (moodle.GradeItemsSnapshot, error)
}

const defaultFanOut = 4

// Service orchestrates the aggregation views. All entry points accept the
// caller's Moodle token and session and trigger bootstrap on first use.
type Service struct {
	backend Backend
	fanOut  int
}

// NewService constructs a Service. fanOut bounds the number of concurrent
// per-course upstream fetches.
func NewService(backend Backend, fanOut int) *Service {
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}
	return &Service{backend: backend, fanOut: fanOut}
}

// Bootstrap ensures the session carries the caller's identity and course
// list. The first call per session performs up to two upstream calls;
// later calls are pure cache reads. Identity and course-list population
// are independent: a failure leaves that slot empty for retry.
func (s *Service) Bootstrap(ctx context.Context, token string, sess *Session) (Identity, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.userID == 0 {
		info, err := s.backend.GetSiteInfo(ctx, token)
		if err != nil {
			return Identity{}, err
		}
		sess.userID = info.UserID
		sess.siteName = info.SiteName
		sess.userName = info.FullName
		if sess.userName == "" {
			sess.userName = info.Username
		}
	}

	if sess.courses == nil {
		records, err := s.backend.GetInProgressCourses(ctx, token, 0, 0)
		if err != nil {
			return Identity{}, err
		}
		courses := make([]Course, 0, len(records))
		for _, rec := range records {
			courses = append(courses, normalizeCourse(rec))
		}
		sess.courses = courses
	}

	return Identity{
		UserID:   sess.userID,
		UserName: sess.userName,
		SiteName: sess.siteName,
		Courses:  sess.courses,
	}, nil
}

// CourseCards builds one summary card per enrolled course, combining
// course metadata with the course-total grade. Grade fetches run as a
// bounded fan-out; the output preserves course-list order.
func (s *Service) CourseCards(ctx context.Context, token string, sess *Session) ([]CourseCard, error) {
	ident, err := s.Bootstrap(ctx, token, sess)
	if err != nil {
		return nil, err
	}

	cards := make([]CourseCard, len(ident.Courses))
	err = s.forEach(ctx, len(ident.Courses), func(ctx context.Context, i int) error {
		course := ident.Courses[i]
		snapshot, err := s.backend.GetUserGradeItems(ctx, token, course.ID, ident.UserID)
		if err != nil {
			return err
		}
		var progress *float64
		if course.HasProgress {
			progress = course.Progress
		}
		cards[i] = CourseCard{
			ID:        course.ID,
			Name:      course.FullName,
			Image:     course.CourseImage,
			StartDate: course.StartDate,
			EndDate:   course.EndDate,
			Progress:  progress,
			Grade:     courseTotalGrade(snapshot),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// WorkItemsByCourse builds the assignment and quiz lists for every
// enrolled course, synthesizing pseudo-assignments from gradebook lines
// for any course whose assignment response is empty. The result preserves
// course-list order.
func (s *Service) WorkItemsByCourse(ctx context.Context, token string, sess *Session) ([]CourseWork, error) {
	ident, err := s.Bootstrap(ctx, token, sess)
	if err != nil {
		return nil, err
	}
	courseIDs := make([]int64, len(ident.Courses))
	for i, course := range ident.Courses {
		courseIDs[i] = course.ID
	}

	assignRows, quizRows, err := s.fetchWork(ctx, token, courseIDs)
	if err != nil {
		return nil, err
	}
	assignsByCourse := indexAssignments(assignRows)
	quizzesByCourse := indexQuizzes(quizRows)

	// Fallback pass: fetch gradebooks only for courses whose assignment
	// list came back literally empty.
	var fallbackIDs []int64
	for _, id := range courseIDs {
		if len(assignsByCourse[id]) == 0 {
			fallbackIDs = append(fallbackIDs, id)
		}
	}
	synth := make(map[int64][]WorkItem, len(fallbackIDs))
	var synthMu sync.Mutex
	err = s.forEach(ctx, len(fallbackIDs), func(ctx context.Context, i int) error {
		courseID := fallbackIDs[i]
		snapshot, err := s.backend.GetUserGradeItems(ctx, token, courseID, ident.UserID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{}, len(assignsByCourse[courseID]))
		for _, item := range assignsByCourse[courseID] {
			existing[item.ID] = struct{}{}
		}
		items := synthesizeAssignments(snapshot, courseID, existing)
		synthMu.Lock()
		synth[courseID] = items
		synthMu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]CourseWork, 0, len(courseIDs))
	for _, id := range courseIDs {
		assigns := assignsByCourse[id]
		assigns = append(assigns, synth[id]...)
		if assigns == nil {
			assigns = []WorkItem{}
		}
		quizzes := quizzesByCourse[id]
		if quizzes == nil {
			quizzes = []WorkItem{}
		}
		out = append(out, CourseWork{CourseID: id, Assignments: assigns, Quizzes: quizzes})
	}
	observability.RecordFallbackSynthesis(countItems(synth))
	return out, nil
}

// DueCalendar flattens the per-course work lists into one chronologically
// sorted list of dated events. Items without a due date are dropped; the
// sort is stable, so equal timestamps keep traversal order (assignments
// before quizzes within a course, courses in list order).
func (s *Service) DueCalendar(ctx context.Context, token string, sess *Session) ([]CalendarEvent, error) {
	work, err := s.WorkItemsByCourse(ctx, token, sess)
	if err != nil {
		return nil, err
	}

	events := []CalendarEvent{}
	for _, course := range work {
		for _, item := range course.Assignments {
			if item.DueAt != nil {
				events = append(events, CalendarEvent{
					ID:       EventID(KindAssign, item.ID),
					CourseID: course.CourseID,
					Title:    item.Name,
					Kind:     KindAssign,
					DueAt:    *item.DueAt,
				})
			}
		}
		for _, item := range course.Quizzes {
			if item.DueAt != nil {
				events = append(events, CalendarEvent{
					ID:       EventID(KindQuiz, item.ID),
					CourseID: course.CourseID,
					Title:    item.Name,
					Kind:     KindQuiz,
					DueAt:    *item.DueAt,
				})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DueAt < events[j].DueAt
	})
	return events, nil
}

// fetchWork runs the assignments and quizzes calls concurrently; either
// failure cancels the other and aborts the pair.
func (s *Service) fetchWork(ctx context.Context, token string, courseIDs []int64) ([]moodle.CourseAssignments, []moodle.QuizRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		assignRows []moodle.CourseAssignments
		quizRows   []moodle.QuizRecord
		assignErr  error
		quizErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		assignRows, assignErr = s.backend.GetAssignments(ctx, token, courseIDs)
		if assignErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		quizRows, quizErr = s.backend.GetQuizzes(ctx, token, courseIDs)
		if quizErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if assignErr != nil {
		return nil, nil, assignErr
	}
	if quizErr != nil {
		return nil, nil, quizErr
	}
	return assignRows, quizRows, nil
}

// forEach runs fn for indexes [0, n) with at most fanOut concurrent
// executions. The first error cancels the remainder and is returned.
func (s *Service) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, s.fanOut)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, i); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// Our own cancel only fires on error, so a non-nil Err here means the
	// parent context was canceled.
	return ctx.Err()
}

func normalizeCourse(rec moodle.CourseRecord) Course {
	return Course{
		ID:          rec.ID,
		FullName:    rec.FullName,
		ShortName:   rec.ShortName,
		StartDate:   nonZero(rec.StartDate),
		EndDate:     nonZero(rec.EndDate),
		Progress:    rec.Progress,
		HasProgress: rec.HasProgress,
		CourseImage: rec.CourseImage,
		Summary:     rec.Summary,
		Visible:     rec.Visible != 0,
	}
}

func indexAssignments(rows []moodle.CourseAssignments) map[int64][]WorkItem {
	byCourse := make(map[int64][]WorkItem, len(rows))
	for _, course := range rows {
		items := make([]WorkItem, 0, len(course.Assignments))
		for _, rec := range course.Assignments {
			items = append(items, WorkItem{
				Kind:     KindAssign,
				ID:       rec.ID,
				CMID:     nonZero(rec.CMID),
				CourseID: rec.Course,
				Name:     rec.Name,
				DueAt:    nonZero(rec.DueDate),
				CutoffAt: nonZero(rec.CutoffDate),
			})
		}
		byCourse[course.CourseID] = items
	}
	return byCourse
}

func indexQuizzes(rows []moodle.QuizRecord) map[int64][]WorkItem {
	byCourse := make(map[int64][]WorkItem)
	for _, rec := range rows {
		byCourse[rec.Course] = append(byCourse[rec.Course], WorkItem{
			Kind:     KindQuiz,
			ID:       rec.ID,
			CourseID: rec.Course,
			Name:     rec.Name,
			DueAt:    nonZero(rec.TimeClose),
			OpenAt:   nonZero(rec.TimeOpen),
		})
	}
	return byCourse
}

// synthesizeAssignments manufactures pseudo-assignments from
// assignment-module gradebook lines. The gradebook carries no due dates,
// so every synthesized item has a nil DueAt. existing holds assignment
// ids already known from mod_assign so a future partial-merge caller can
// reuse this without duplicating items.
func synthesizeAssignments(snapshot moodle.GradeItemsSnapshot, courseID int64, existing map[int64]struct{}) []WorkItem {
	var items []WorkItem
	for _, line := range snapshot.Items() {
		if line.ItemType != "mod" || line.ItemModule != "assign" {
			continue
		}
		if _, ok := existing[line.ItemInstance]; ok {
			continue
		}
		name := line.ItemName
		if name == "" {
			name = "Assignment"
		}
		id := courseID
		if upstream := snapshot.CourseID(); upstream != 0 {
			id = upstream
		}
		items = append(items, WorkItem{
			Kind:     KindAssign,
			ID:       line.ItemInstance,
			CMID:     nonZero(line.CMID),
			CourseID: id,
			Name:     name,
		})
	}
	return items
}

// courseTotalGrade extracts the course-total line, preferring the
// pre-formatted percentage over the raw formatted grade.
func courseTotalGrade(snapshot moodle.GradeItemsSnapshot) *string {
	for _, line := range snapshot.Items() {
		if line.ItemType != "course" {
			continue
		}
		if line.PercentageFormatted != "" {
			grade := line.PercentageFormatted
			return &grade
		}
		if line.GradeFormatted != "" {
			grade := line.GradeFormatted
			return &grade
		}
		return nil
	}
	observability.RecordMissingCourseTotal()
	return nil
}

func countItems(byCourse map[int64][]WorkItem) int {
	total := 0
	for _, items := range byCourse {
		total += len(items)
	}
	return total
}

func nonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
