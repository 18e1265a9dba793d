package aggregator

import "fmt"

// ItemKind discriminates the two work-item variants. Assignment and quiz
// ids may collide across kinds, so consumers must key on (kind, id).
type ItemKind string

const (
	KindAssign ItemKind = "assign"
	KindQuiz   ItemKind = "quiz"
)

// Course is the normalized view of one enrollment, cached per session.
type Course struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"fullname"`
	ShortName   string   `json:"shortname"`
	StartDate   *int64   `json:"startdate"`
	EndDate     *int64   `json:"enddate"`
	Progress    *float64 `json:"progress"`
	HasProgress bool     `json:"hasprogress"`
	CourseImage string   `json:"courseimage,omitempty"`
	Summary     string   `json:"summary"`
	Visible     bool     `json:"visible"`
}

// WorkItem is one assignment or quiz. A nil DueAt means the upstream
// record carried no due date (or the zero "unset" sentinel).
type WorkItem struct {
	Kind     ItemKind `json:"kind"`
	ID       int64    `json:"id"`
	CMID     *int64   `json:"cmid,omitempty"`
	CourseID int64    `json:"courseId"`
	Name     string   `json:"name"`
	DueAt    *int64   `json:"dueAt"`
	CutoffAt *int64   `json:"cutoffAt,omitempty"`
	OpenAt   *int64   `json:"openAt,omitempty"`
}

// CourseWork groups one course's assignments and quizzes.
type CourseWork struct {
	CourseID    int64      `json:"courseId"`
	Assignments []WorkItem `json:"assignments"`
	Quizzes     []WorkItem `json:"quizzes"`
}

// CourseCard is the dashboard summary for one course.
type CourseCard struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Image     string   `json:"image,omitempty"`
	StartDate *int64   `json:"startdate"`
	EndDate   *int64   `json:"enddate"`
	Progress  *float64 `json:"progress"`
	Grade     *string  `json:"grade"`
}

// CalendarEvent is one dated entry of the due calendar. ID is the
// "<kind>:<itemId>" composite, unique across the whole list.
type CalendarEvent struct {
	ID       string   `json:"id"`
	CourseID int64    `json:"courseId"`
	Title    string   `json:"title"`
	Kind     ItemKind `json:"type"`
	DueAt    int64    `json:"dueAt"`
}

// Identity is the session-cached result of a bootstrap.
type Identity struct {
	UserID   int64    `json:"userid"`
	UserName string   `json:"username"`
	SiteName string   `json:"sitename"`
	Courses  []Course `json:"courses"`
}

// EventID builds the composite calendar id for a work item.
func EventID(kind ItemKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}
