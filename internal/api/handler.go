// Package api exposes the service over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	domerrors "github.com/atom-api/atom/internal/errors"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/service"
	"github.com/atom-api/atom/internal/substitution"
	"github.com/atom-api/atom/internal/timetable"
)

// Service is what the handlers need from the service layer.
type Service interface {
	GetDirectory(ctx context.Context) (timetable.Directory, error)
	GetTimetable(ctx context.Context, identifier string, q service.TimetableQuery) (*timetable.Timetable, error)
	GetSubstitutions(ctx context.Context, identifier string, q service.SubstitutionQuery) (substitution.Substitutions, error)
}

// Endpoint names used as metric labels.
const (
	endpointDirectory     = "directory"
	endpointTimetable     = "timetable"
	endpointSubstitutions = "substitutions"
)

// Handler serves the public endpoints.
type Handler struct {
	svc     Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new API handler.
func NewHandler(svc Service, log *logger.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		svc:     svc,
		logger:  log.WithModule("api"),
		metrics: m,
	}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/directory", h.directory)
	r.GET("/timetable", h.timetable)
	r.GET("/substitutions", h.substitutions)
}

// directory serves GET /directory?sections=&teachers=&rooms=. Without any
// flag every list is returned; otherwise only the lists flagged true.
func (h *Handler) directory(c *gin.Context) {
	start := time.Now()

	var flags [3]*bool
	for i, name := range []string{"sections", "teachers", "rooms"} {
		v, err := optionalBool(c, name)
		if err != nil {
			h.badRequest(c, endpointDirectory, start, err.Error())
			return
		}
		flags[i] = v
	}

	dir, err := h.svc.GetDirectory(c.Request.Context())
	if err != nil {
		h.fail(c, endpointDirectory, start, err)
		return
	}

	all := flags[0] == nil && flags[1] == nil && flags[2] == nil
	body := gin.H{}
	if all || isTrue(flags[0]) {
		body["sections"] = dir.Sections
	}
	if all || isTrue(flags[1]) {
		body["teachers"] = dir.Teachers
	}
	if all || isTrue(flags[2]) {
		body["rooms"] = dir.Rooms
	}
	h.ok(c, endpointDirectory, start, body)
}

// timetable serves GET /timetable?id=&groups=&short=&religion=&health=.
func (h *Handler) timetable(c *gin.Context) {
	start := time.Now()

	subjects, err := subjectFlags(c)
	if err != nil {
		h.badRequest(c, endpointTimetable, start, err.Error())
		return
	}
	q := service.TimetableQuery{
		Groups:   queryList(c, "groups"),
		Subjects: subjects,
	}
	if short := strings.TrimSpace(c.Query("short")); short != "" {
		q.ShortDay = &short
	}

	tt, err := h.svc.GetTimetable(c.Request.Context(), c.Query("id"), q)
	if err != nil {
		h.fail(c, endpointTimetable, start, err)
		return
	}
	h.ok(c, endpointTimetable, start, tt)
}

// substitutions serves GET /substitutions?id=&groups=&religion=&health=.
func (h *Handler) substitutions(c *gin.Context) {
	start := time.Now()

	subjects, err := subjectFlags(c)
	if err != nil {
		h.badRequest(c, endpointSubstitutions, start, err.Error())
		return
	}

	result, err := h.svc.GetSubstitutions(c.Request.Context(), c.Query("id"), service.SubstitutionQuery{
		Groups:   queryList(c, "groups"),
		Subjects: subjects,
	})
	if err != nil {
		h.fail(c, endpointSubstitutions, start, err)
		return
	}
	h.ok(c, endpointSubstitutions, start, result)
}

func (h *Handler) ok(c *gin.Context, endpoint string, start time.Time, body any) {
	c.JSON(http.StatusOK, body)
	h.metrics.RecordAPIRequest(endpoint, strconv.Itoa(http.StatusOK), time.Since(start).Seconds())
}

func (h *Handler) badRequest(c *gin.Context, endpoint string, start time.Time, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
	h.metrics.RecordAPIRequest(endpoint, strconv.Itoa(http.StatusBadRequest), time.Since(start).Seconds())
}

// fail writes the status mapped from err. The cause of internal errors stays
// in the logs; clients only see the wrapped user message.
func (h *Handler) fail(c *gin.Context, endpoint string, start time.Time, err error) {
	status := StatusFor(err)
	detail := domerrors.GetUserMessage(err)
	if status == http.StatusInternalServerError && !domerrors.IsMissingConfiguration(err) {
		h.logger.WithError(err).WithField("endpoint", endpoint).ErrorContext(c.Request.Context(), "Unexpected service error")
		detail = "unexpected server error"
	}
	c.JSON(status, gin.H{"detail": detail})
	h.metrics.RecordAPIRequest(endpoint, strconv.Itoa(status), time.Since(start).Seconds())
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case domerrors.IsInvalidIdentifier(err):
		return http.StatusBadRequest
	case domerrors.IsMissingConfiguration(err):
		return http.StatusInternalServerError
	case domerrors.IsInternal(err):
		return http.StatusBadGateway
	case domerrors.IsSourceUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func subjectFlags(c *gin.Context) (map[string]bool, error) {
	religion, err := optionalBool(c, "religion")
	if err != nil {
		return nil, err
	}
	health, err := optionalBool(c, "health")
	if err != nil {
		return nil, err
	}
	return service.SubjectFlags(religion, health), nil
}

// optionalBool reads a boolean query parameter; absent or empty means nil.
func optionalBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, &paramError{name: name, value: raw}
	}
	return &v, nil
}

// queryList accepts both repeated parameters (groups=1/2&groups=j1) and a
// comma-separated value (groups=1/2,j1).
func queryList(c *gin.Context, name string) []string {
	var items []string
	for _, raw := range c.QueryArray(name) {
		for item := range strings.SplitSeq(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

func isTrue(v *bool) bool {
	return v != nil && *v
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid boolean for " + e.name + ": " + strconv.Quote(e.value)
}
