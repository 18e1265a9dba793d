package moodle

import (
	"context"
	"encoding/json"
	"fmt"
)

// Web-service function names consumed by this application.
const (
	fnSiteInfo   = "core_webservice_get_site_info"
	fnCourses    = "core_course_get_enrolled_courses_by_timeline_classification"
	fnAssigns    = "mod_assign_get_assignments"
	fnQuizzes    = "mod_quiz_get_quizzes_by_courses"
	fnGradeItems = "gradereport_user_get_grade_items"
)

// GetSiteInfo returns the caller's site and user identity.
func (c *Client) GetSiteInfo(ctx context.Context, token string) (SiteInfo, error) {
	body, err := c.call(ctx, token, fnSiteInfo, nil)
	if err != nil {
		return SiteInfo{}, err
	}
	var info SiteInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return SiteInfo{}, decodeErr(fnSiteInfo, err)
	}
	return info, nil
}

// GetInProgressCourses returns the caller's in-progress enrollments.
// A limit of zero means unbounded.
func (c *Client) GetInProgressCourses(ctx context.Context, token string, limit, offset int) ([]CourseRecord, error) {
	body, err := c.call(ctx, token, fnCourses, Params{
		"classification": "inprogress",
		"limit":          limit,
		"offset":         offset,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Courses []CourseRecord `json:"courses"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeErr(fnCourses, err)
	}
	return resp.Courses, nil
}

// GetAssignments fetches assignments for the given courses in one call.
// The course filter is omitted entirely when courseIDs is empty; upstream
// treats an empty filter as "all courses", so callers should always pass
// the known enrollment set.
func (c *Client) GetAssignments(ctx context.Context, token string, courseIDs []int64) ([]CourseAssignments, error) {
	params := Params{}
	if len(courseIDs) > 0 {
		params["courseids"] = courseIDs
	}
	body, err := c.call(ctx, token, fnAssigns, params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Courses []CourseAssignments `json:"courses"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeErr(fnAssigns, err)
	}
	return resp.Courses, nil
}

// GetQuizzes fetches quizzes for the given courses in one call. Depending
// on the Moodle version the payload is either a flat quizzes list or
// nested under courses[].quizzes[]; both decode into the same []QuizRecord
// here so no shape handling leaks past this boundary.
func (c *Client) GetQuizzes(ctx context.Context, token string, courseIDs []int64) ([]QuizRecord, error) {
	params := Params{}
	if len(courseIDs) > 0 {
		params["courseids"] = courseIDs
	}
	body, err := c.call(ctx, token, fnQuizzes, params)
	if err != nil {
		return nil, err
	}
	quizzes, err := decodeQuizzes(body)
	if err != nil {
		return nil, decodeErr(fnQuizzes, err)
	}
	return quizzes, nil
}

func decodeQuizzes(body []byte) ([]QuizRecord, error) {
	var resp struct {
		Quizzes []QuizRecord `json:"quizzes"`
		Courses []struct {
			ID      int64        `json:"id"`
			Quizzes []QuizRecord `json:"quizzes"`
		} `json:"courses"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Quizzes != nil {
		return resp.Quizzes, nil
	}
	var out []QuizRecord
	for _, course := range resp.Courses {
		for _, quiz := range course.Quizzes {
			quiz.Course = course.ID
			out = append(out, quiz)
		}
	}
	return out, nil
}

// GetUserGradeItems returns one user's per-item gradebook snapshot for a
// single course.
func (c *Client) GetUserGradeItems(ctx context.Context, token string, courseID, userID int64) (GradeItemsSnapshot, error) {
	body, err := c.call(ctx, token, fnGradeItems, Params{
		"courseid": courseID,
		"userid":   userID,
	})
	if err != nil {
		return GradeItemsSnapshot{}, err
	}
	var snapshot GradeItemsSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return GradeItemsSnapshot{}, decodeErr(fnGradeItems, err)
	}
	return snapshot, nil
}

func decodeErr(wsfunction string, err error) error {
	return &TransportError{Err: fmt.Errorf("decode %s response: %w", wsfunction, err)}
}
