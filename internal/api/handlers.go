// Package api exposes the HTTP handlers for the mycalendar backend.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CCU-Computing/490-project-mycalendar/internal/aggregator"
	"github.com/CCU-Computing/490-project-mycalendar/internal/auth"
	"github.com/CCU-Computing/490-project-mycalendar/internal/moodle"
	"github.com/CCU-Computing/490-project-mycalendar/internal/planner"
)

// Handler coordinates HTTP requests with the aggregator and planner services.
type Handler struct {
	agg      *aggregator.Service
	sessions *aggregator.Store
	planner  *planner.Service
	authCfg  auth.Config
}

// NewHandler builds a Handler.
func NewHandler(agg *aggregator.Service, sessions *aggregator.Store, plannerSvc *planner.Service, authCfg auth.Config) *Handler {
	return &Handler{agg: agg, sessions: sessions, planner: plannerSvc, authCfg: authCfg}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/session", h.session)
	mux.HandleFunc("/v1/me", h.me)
	mux.HandleFunc("/v1/courses", h.courses)
	mux.HandleFunc("/v1/calendar", h.calendar)
	mux.HandleFunc("/v1/work", h.work)
	mux.HandleFunc("/v1/custom-events", h.customEvents)
	mux.HandleFunc("/v1/custom-events/", h.customEventByID)
	mux.HandleFunc("/v1/time-blocks", h.timeBlocks)
	mux.HandleFunc("/v1/time-blocks/", h.timeBlockByID)
	mux.HandleFunc("/v1/starred", h.starred)
	mux.HandleFunc("/v1/starred/", h.starredByID)
	mux.HandleFunc("/v1/course-metadata", h.courseMetadata)
	mux.HandleFunc("/v1/course-metadata/", h.courseMetadataByID)
	mux.HandleFunc("/v1/prefs", h.prefs)
	mux.HandleFunc("/v1/prefs/course-color", h.prefsCourseColor)
	mux.HandleFunc("/v1/prefs/event-override", h.prefsEventOverride)
	mux.HandleFunc("/v1/focus/today", h.focusToday)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ---- session ----

// LoginRequest is the payload for POST /v1/session.
type LoginRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// LoginResponse returns the signed session token and bootstrap identity.
type LoginResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
	Me    MeView `json:"me"`
}

// MeView describes the authenticated caller.
type MeView struct {
	Name     string `json:"name"`
	UserID   int64  `json:"userid"`
	SiteName string `json:"sitename"`
	UserName string `json:"username"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.login(w, r)
	case http.MethodDelete:
		h.logout(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "token is required")
		return
	}
	name := req.Name
	if name == "" {
		name = "Student"
	}

	sess := h.sessions.Create(name, req.Token)
	ident, err := h.agg.Bootstrap(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		h.sessions.Delete(sess.ID)
		var upstream *moodle.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, http.StatusUnauthorized, "unauthorized", upstream.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	subject := strconv.FormatInt(ident.UserID, 10)
	token, err := auth.Issue(h.authCfg, sess.ID, subject, name)
	if err != nil {
		h.sessions.Delete(sess.ID)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.authCfg.TTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{
		OK:    true,
		Token: token,
		Me: MeView{
			Name:     name,
			UserID:   ident.UserID,
			SiteName: ident.SiteName,
			UserName: ident.UserName,
		},
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if ok {
		h.sessions.Delete(claims.SessionID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolve returns the live session and the planner user id for the request.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*aggregator.Session, string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
		return nil, "", false
	}
	sess, ok := h.sessions.Get(claims.SessionID)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "session expired")
		return nil, "", false
	}
	return sess, claims.Subject, true
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	ident, err := h.agg.Bootstrap(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MeView{
		Name:     sess.DisplayName,
		UserID:   ident.UserID,
		SiteName: ident.SiteName,
		UserName: ident.UserName,
	})
}

// ---- aggregation views ----

func (h *Handler) courses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	cards, err := h.agg.CourseCards(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": cards})
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	events, err := h.agg.DueCalendar(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) work(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	work, err := h.agg.WorkItemsByCourse(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if raw := r.URL.Query().Get("course_id"); raw != "" {
		courseID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid course_id")
			return
		}
		for _, course := range work {
			if course.CourseID == courseID {
				writeJSON(w, http.StatusOK, course)
				return
			}
		}
		writeJSON(w, http.StatusOK, aggregator.CourseWork{
			CourseID:    courseID,
			Assignments: []aggregator.WorkItem{},
			Quizzes:     []aggregator.WorkItem{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": work})
}

// ---- custom events ----

// CustomEventRequest is the payload for creating or updating an event.
type CustomEventRequest struct {
	CourseID           *int64     `json:"courseId"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	EventType          string     `json:"eventType"`
	StartAt            time.Time  `json:"startAt"`
	EndAt              time.Time  `json:"endAt"`
	AllDay             bool       `json:"allDay"`
	Color              string     `json:"color"`
	RecurrenceRule     string     `json:"recurrenceRule"`
	MoodleAssignmentID *string    `json:"moodleAssignmentId"`
	ReminderOffsetMin  *int       `json:"reminderOffsetMin"`
}

func (req CustomEventRequest) toDomain(userID string) planner.CustomEvent {
	return planner.CustomEvent{
		UserID:             userID,
		CourseID:           req.CourseID,
		Title:              req.Title,
		Description:        req.Description,
		EventType:          req.EventType,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		AllDay:             req.AllDay,
		Color:              req.Color,
		RecurrenceRule:     req.RecurrenceRule,
		MoodleAssignmentID: req.MoodleAssignmentID,
		ReminderOffsetMin:  req.ReminderOffsetMin,
	}
}

func (h *Handler) customEvents(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		var assignmentID *string
		if raw := r.URL.Query().Get("moodleAssignmentId"); raw != "" {
			assignmentID = &raw
		}
		list, err := h.planner.ListCustomEvents(r.Context(), userID, assignmentID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if list == nil {
			list = []planner.CustomEvent{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": list})
	case http.MethodPost:
		var req CustomEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		event, err := h.planner.CreateCustomEvent(r.Context(), req.toDomain(userID))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"event": event})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) customEventByID(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/custom-events/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing event id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		event, err := h.planner.GetCustomEvent(r.Context(), userID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"event": event})
	case http.MethodPut:
		var req CustomEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		event := req.toDomain(userID)
		event.ID = id
		updated, err := h.planner.UpdateCustomEvent(r.Context(), event)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"event": updated})
	case http.MethodDelete:
		if err := h.planner.DeleteCustomEvent(r.Context(), userID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// ---- time blocks ----

// TimeBlockRequest is the payload for creating or updating a block.
type TimeBlockRequest struct {
	Title          string     `json:"title"`
	BlockType      string     `json:"blockType"`
	DayOfWeek      *int       `json:"dayOfWeek"`
	StartTime      string     `json:"startTime"`
	EndTime        string     `json:"endTime"`
	SpecificDate   *time.Time `json:"specificDate"`
	RecurrenceRule string     `json:"recurrenceRule"`
	Color          string     `json:"color"`
	Location       string     `json:"location"`
	Notes          string     `json:"notes"`
}

func (req TimeBlockRequest) toDomain(userID string) planner.TimeBlock {
	return planner.TimeBlock{
		UserID:         userID,
		Title:          req.Title,
		BlockType:      req.BlockType,
		DayOfWeek:      req.DayOfWeek,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		SpecificDate:   req.SpecificDate,
		RecurrenceRule: req.RecurrenceRule,
		Color:          req.Color,
		Location:       req.Location,
		Notes:          req.Notes,
	}
}

func (h *Handler) timeBlocks(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		var dayOfWeek *int
		if raw := r.URL.Query().Get("dayOfWeek"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_failed", "invalid dayOfWeek")
				return
			}
			dayOfWeek = &parsed
		}
		list, err := h.planner.ListTimeBlocks(r.Context(), userID, dayOfWeek, r.URL.Query().Get("blockType"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if list == nil {
			list = []planner.TimeBlock{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"blocks": list})
	case http.MethodPost:
		var req TimeBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		block, err := h.planner.CreateTimeBlock(r.Context(), req.toDomain(userID))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"block": block})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) timeBlockByID(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/time-blocks/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing block id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		block, err := h.planner.GetTimeBlock(r.Context(), userID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"block": block})
	case http.MethodPut:
		var req TimeBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		block := req.toDomain(userID)
		block.ID = id
		updated, err := h.planner.UpdateTimeBlock(r.Context(), block)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"block": updated})
	case http.MethodDelete:
		if err := h.planner.DeleteTimeBlock(r.Context(), userID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// ---- starred assignments ----

func (h *Handler) starred(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.planner.ListStarred(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if list == nil {
			list = []planner.StarredAssignment{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"starred": list})
	case http.MethodPost:
		var req struct {
			MoodleAssignmentID string `json:"moodleAssignmentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		star, created, err := h.planner.Star(r.Context(), userID, req.MoodleAssignmentID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{"starred": star, "created": created})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) starredByID(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	assignmentID := strings.TrimPrefix(r.URL.Path, "/v1/starred/")
	if assignmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing assignment id")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if err := h.planner.Unstar(r.Context(), userID, assignmentID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---- course metadata ----

// CourseMetadataRequest is the payload for PUT /v1/course-metadata/{courseID}.
type CourseMetadataRequest struct {
	CourseName     string `json:"courseName"`
	CustomImageURL string `json:"customImageUrl"`
	InstructorName string `json:"instructorName"`
	OfficeHours    string `json:"officeHours"`
	ExternalURL    string `json:"externalUrl"`
	Notes          string `json:"notes"`
}

func (h *Handler) courseMetadata(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	list, err := h.planner.ListCourseMetadata(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []planner.CourseMetadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metadata": list})
}

func (h *Handler) courseMetadataByID(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/v1/course-metadata/")
	courseID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid course id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		metadata, err := h.planner.GetCourseMetadata(r.Context(), userID, courseID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"metadata": metadata})
	case http.MethodPut:
		var req CourseMetadataRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		metadata, err := h.planner.UpsertCourseMetadata(r.Context(), planner.CourseMetadata{
			UserID:         userID,
			CourseID:       courseID,
			CourseName:     req.CourseName,
			CustomImageURL: req.CustomImageURL,
			InstructorName: req.InstructorName,
			OfficeHours:    req.OfficeHours,
			ExternalURL:    req.ExternalURL,
			Notes:          req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"metadata": metadata})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// ---- preferences ----

func (h *Handler) prefs(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	prefs, err := h.planner.GetPreferences(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) prefsCourseColor(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	var req struct {
		CourseID string `json:"courseId"`
		Color    string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	prefs, err := h.planner.SetCourseColor(r.Context(), userID, req.CourseID, req.Color)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) prefsEventOverride(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	var req struct {
		EventID string                `json:"eventId"`
		Patch   planner.EventOverride `json:"patch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	prefs, err := h.planner.SetEventOverride(r.Context(), userID, req.EventID, req.Patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// ---- focus mode ----

// FocusItem is one dated Moodle item due today.
type FocusItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	DueAt    int64  `json:"dueAt"`
	CourseID int64  `json:"courseId"`
}

// FocusTodayResponse combines today's Moodle deadlines with the user's
// planner events.
type FocusTodayResponse struct {
	MoodleItems []FocusItem           `json:"moodleItems"`
	StudyBlocks []planner.CustomEvent `json:"studyBlocks"`
	Degraded    bool                  `json:"degraded"`
}

func (h *Handler) focusToday(w http.ResponseWriter, r *http.Request) {
	sess, userID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp := FocusTodayResponse{MoodleItems: []FocusItem{}, StudyBlocks: []planner.CustomEvent{}}

	// A Moodle outage degrades focus mode to planner data only.
	events, err := h.agg.DueCalendar(r.Context(), sess.MoodleToken, sess)
	if err != nil {
		log.Printf("focus: moodle fetch failed, serving planner data only: %v", err)
		resp.Degraded = true
	} else {
		for _, event := range events {
			if event.DueAt >= dayStart.Unix() && event.DueAt < dayEnd.Unix() {
				resp.MoodleItems = append(resp.MoodleItems, FocusItem{
					ID:       event.ID,
					Title:    event.Title,
					Type:     string(event.Kind),
					DueAt:    event.DueAt,
					CourseID: event.CourseID,
				})
			}
		}
	}

	blocks, err := h.planner.EventsBetween(r.Context(), userID, dayStart, dayEnd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if blocks != nil {
		resp.StudyBlocks = blocks
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- helpers ----

// writeDomainError maps planner and Moodle errors onto HTTP statuses.
// The core aggregation layer never performs this mapping itself.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		configErr    *moodle.ConfigurationError
		transportErr *moodle.TransportError
		upstreamErr  *moodle.UpstreamError
	)
	switch {
	case errors.Is(err, planner.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, planner.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &configErr):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &upstreamErr):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	case errors.As(err, &transportErr):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
