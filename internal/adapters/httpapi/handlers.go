package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/phishdefender/phishdefender/internal/core"
)

type listEmailsResponse struct {
	Emails   []*core.Email `json:"emails"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func (s *Server) listEmails(c echo.Context) error {
	filter, err := emailFilterFromQuery(c)
	if err != nil {
		return writeError(c, err)
	}

	emails, total, err := s.service.ListEmails(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	if emails == nil {
		emails = []*core.Email{}
	}
	return c.JSON(http.StatusOK, listEmailsResponse{
		Emails:   emails,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (s *Server) getEmail(c echo.Context) error {
	email, err := s.service.GetEmail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, email)
}

func (s *Server) getEmailAudit(c echo.Context) error {
	entries, err := s.service.GetEmailAudit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []*core.AuditEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

type overrideRequest struct {
	Category core.Category `json:"category"`
	Reason   string        `json:"reason"`
	Analyst  string        `json:"analyst"`
}

func (s *Server) overrideEmail(c echo.Context) error {
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, core.ValidationErrorf("invalid request body: %v", err))
	}

	email, err := s.service.Override(c.Request().Context(), c.Param("id"), req.Analyst, req.Category, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, email)
}

type bulkReviewRequest struct {
	EmailIDs []string `json:"email_ids"`
	Analyst  string   `json:"analyst"`
}

func (s *Server) bulkReview(c echo.Context) error {
	var req bulkReviewRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, core.ValidationErrorf("invalid request body: %v", err))
	}

	reviewed, err := s.service.BulkReview(c.Request().Context(), req.EmailIDs, req.Analyst)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"reviewed": reviewed})
}

func (s *Server) listAudit(c echo.Context) error {
	filter := core.AuditFilter{
		Actor:    c.QueryParam("actor"),
		Action:   core.AuditAction(c.QueryParam("action")),
		Page:     intParam(c, "page", 1),
		PageSize: intParam(c, "page_size", 50),
	}
	entries, total, err := s.service.ListAudit(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []*core.AuditEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries":   entries,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (s *Server) getSettings(c echo.Context) error {
	settings, err := s.service.GetSettings(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

type thresholdsRequest struct {
	HighThreshold float64 `json:"high_threshold"`
	LowThreshold  float64 `json:"low_threshold"`
}

func (s *Server) updateThresholds(c echo.Context) error {
	var req thresholdsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, core.ValidationErrorf("invalid request body: %v", err))
	}

	settings, err := s.service.UpdateThresholds(c.Request().Context(), req.HighThreshold, req.LowThreshold)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

type notificationsRequest struct {
	HighMaliciousSpike *bool `json:"notify_high_malicious_spike"`
	JobFailure         *bool `json:"notify_job_failure"`
	DailyDigest        *bool `json:"notify_daily_digest"`
}

func (s *Server) updateNotifications(c echo.Context) error {
	var req notificationsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, core.ValidationErrorf("invalid request body: %v", err))
	}

	settings, err := s.service.UpdateNotifications(c.Request().Context(), core.NotificationUpdate{
		HighMaliciousSpike: req.HighMaliciousSpike,
		JobFailure:         req.JobFailure,
		DailyDigest:        req.DailyDigest,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) listRules(c echo.Context) error {
	rules, err := s.service.ListRules(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if rules == nil {
		rules = []*core.CustomRule{}
	}
	return c.JSON(http.StatusOK, map[string]any{"rules": rules})
}

type createRuleRequest struct {
	Type          core.RuleType `json:"type"`
	Value         string        `json:"value"`
	ForceCategory core.Category `json:"force_category"`
	CreatedBy     string        `json:"created_by"`
}

func (s *Server) createRule(c echo.Context) error {
	var req createRuleRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, core.ValidationErrorf("invalid request body: %v", err))
	}

	rule, err := s.service.CreateRule(c.Request().Context(), req.Type, req.Value, req.ForceCategory, req.CreatedBy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (s *Server) deleteRule(c echo.Context) error {
	if err := s.service.DeleteRule(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMailboxes(c echo.Context) error {
	cursors, err := s.service.ListMailboxes(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if cursors == nil {
		cursors = []*core.MailboxCursor{}
	}
	return c.JSON(http.StatusOK, map[string]any{"mailboxes": cursors})
}

func (s *Server) pauseJob(c echo.Context) error {
	status, accepted, err := s.controller.Pause(c.Request().Context(), actorParam(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": accepted, "status": status})
}

func (s *Server) resumeJob(c echo.Context) error {
	status, accepted, err := s.controller.Resume(c.Request().Context(), actorParam(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"accepted": accepted, "status": status})
}

func (s *Server) triggerJob(c echo.Context) error {
	status, accepted, err := s.controller.Trigger(c.Request().Context(), actorParam(c))
	if err != nil {
		return writeError(c, err)
	}
	code := http.StatusOK
	if !accepted {
		code = http.StatusConflict
	}
	return c.JSON(code, map[string]any{"accepted": accepted, "status": status})
}

func (s *Server) jobStatus(c echo.Context) error {
	status, err := s.controller.GetStatus(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func emailFilterFromQuery(c echo.Context) (core.EmailFilter, error) {
	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return core.EmailFilter{}, err
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return core.EmailFilter{}, err
	}
	return core.EmailFilter{
		Category: core.Category(c.QueryParam("category")),
		Status:   core.ReviewStatus(c.QueryParam("status")),
		Search:   c.QueryParam("search"),
		From:     from,
		To:       to,
		Page:     intParam(c, "page", 1),
		PageSize: intParam(c, "page_size", 50),
	}, nil
}

func intParam(c echo.Context, name string, fallback int) int {
	value := c.QueryParam(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func actorParam(c echo.Context) string {
	return c.QueryParam("actor")
}
