package moodle

// SiteInfo carries the identity fields returned by
// core_webservice_get_site_info.
type SiteInfo struct {
	UserID   int64  `json:"userid"`
	SiteName string `json:"sitename"`
	FullName string `json:"fullname"`
	Username string `json:"username"`
}

// CourseRecord is one enrollment as returned by the timeline
// classification endpoint.
type CourseRecord struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"fullname"`
	ShortName   string   `json:"shortname"`
	StartDate   int64    `json:"startdate"`
	EndDate     int64    `json:"enddate"`
	Progress    *float64 `json:"progress"`
	HasProgress bool     `json:"hasprogress"`
	CourseImage string   `json:"courseimage"`
	Summary     string   `json:"summary"`
	Visible     int      `json:"visible"`
}

// AssignmentRecord is one raw assignment from mod_assign_get_assignments.
type AssignmentRecord struct {
	ID         int64  `json:"id"`
	CMID       int64  `json:"cmid"`
	Course     int64  `json:"course"`
	Name       string `json:"name"`
	DueDate    int64  `json:"duedate"`
	CutoffDate int64  `json:"cutoffdate"`
}

// CourseAssignments groups the assignments of one course, preserving the
// upstream response nesting.
type CourseAssignments struct {
	CourseID    int64              `json:"id"`
	Assignments []AssignmentRecord `json:"assignments"`
}

// QuizRecord is one quiz, normalized from either upstream response shape.
// Course is always populated, even for the nested courses[].quizzes[]
// shape where the raw record omits it.
type QuizRecord struct {
	ID        int64  `json:"id"`
	Course    int64  `json:"course"`
	Name      string `json:"name"`
	TimeOpen  int64  `json:"timeopen"`
	TimeClose int64  `json:"timeclose"`
}

// GradeItem is one gradebook line from gradereport_user_get_grade_items.
type GradeItem struct {
	ItemName            string   `json:"itemname"`
	ItemType            string   `json:"itemtype"`
	ItemModule          string   `json:"itemmodule"`
	ItemInstance        int64    `json:"iteminstance"`
	CMID                int64    `json:"cmid"`
	GradeRaw            *float64 `json:"graderaw"`
	GradeMax            *float64 `json:"grademax"`
	GradeFormatted      string   `json:"gradeformatted"`
	PercentageFormatted string   `json:"percentageformatted"`
}

// UserGrades is one user's gradebook snapshot for one course.
type UserGrades struct {
	CourseID   int64       `json:"courseid"`
	UserID     int64       `json:"userid"`
	GradeItems []GradeItem `json:"gradeitems"`
}

// GradeItemsSnapshot is the full gradereport_user_get_grade_items payload.
type GradeItemsSnapshot struct {
	UserGrades []UserGrades `json:"usergrades"`
}

// Items returns the grade lines of the first (only) user block, or nil.
func (s GradeItemsSnapshot) Items() []GradeItem {
	if len(s.UserGrades) == 0 {
		return nil
	}
	return s.UserGrades[0].GradeItems
}

// CourseID returns the course id of the first user block, or zero.
func (s GradeItemsSnapshot) CourseID() int64 {
	if len(s.UserGrades) == 0 {
		return 0
	}
	return s.UserGrades[0].CourseID
}
