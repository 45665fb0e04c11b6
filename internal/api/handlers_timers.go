package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/services"
)

// timerResponse adds scheduling information to a timer status.
type timerResponse struct {
	services.TimerStatus
	NextRun *time.Time `json:"next_run,omitempty"`
}

type createTimerRequest struct {
	Name       string     `json:"name" binding:"required"`
	DurationMS int64      `json:"duration_ms"`
	Duration   string     `json:"duration"` // Go duration string, e.g. "1m30s"
	Continue   bool       `json:"continue"`
	BeginTime  *time.Time `json:"begin_time"`
	BeginCron  string     `json:"begin_cron"`
	NotifyURL  string     `json:"notify_url"`
}

func (req createTimerRequest) definition() (services.TimerDefinition, error) {
	def := services.TimerDefinition{
		Name:      req.Name,
		Duration:  time.Duration(req.DurationMS) * time.Millisecond,
		Continue:  req.Continue,
		BeginCron: req.BeginCron,
		NotifyURL: req.NotifyURL,
	}
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			return def, fmt.Errorf("invalid duration %q", req.Duration)
		}
		def.Duration = d
	}
	if req.BeginTime != nil {
		def.BeginTime = *req.BeginTime
	}
	return def, nil
}

func (s *RESTServer) withNextRun(status services.TimerStatus) timerResponse {
	resp := timerResponse{TimerStatus: status}
	if s.scheduler != nil {
		if next, ok := s.scheduler.NextRun(status.ID); ok {
			resp.NextRun = &next
		}
	}
	return resp
}

func (s *RESTServer) listTimers(c *gin.Context) {
	statuses := s.registry.List()
	timers := make([]timerResponse, 0, len(statuses))
	for _, st := range statuses {
		timers = append(timers, s.withNextRun(st))
	}
	c.JSON(http.StatusOK, gin.H{"data": timers, "total": len(timers)})
}

func (s *RESTServer) createTimer(c *gin.Context) {
	var req createTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	def, err := req.definition()
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	status, err := s.registry.Create(def)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.withNextRun(status))
}

func (s *RESTServer) getTimer(c *gin.Context) {
	status, err := s.registry.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.withNextRun(status))
}

func (s *RESTServer) deleteTimer(c *gin.Context) {
	if err := s.registry.Delete(c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// controlTimer wraps one registry operation. Operations that do not apply to
// the timer's state are no-ops and still answer 200 with the current status.
func (s *RESTServer) controlTimer(op func(id string) (services.TimerStatus, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := op(c.Param("id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.withNextRun(status))
	}
}

func (s *RESTServer) getTimerEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.registry.Get(id); err != nil {
		respondServiceError(c, err)
		return
	}

	p := ParsePagination(c, DefaultPaginationConfig())
	events, err := s.repo.ListEventsPage(id, p.Limit, p.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	total, err := s.repo.CountEvents(id)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       events,
		"pagination": NewPaginationResponse(p, total),
	})
}
