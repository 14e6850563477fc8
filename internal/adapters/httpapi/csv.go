package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/phishdefender/phishdefender/internal/core"
)

// Export page size. Exports walk the listing page by page so a large
// queue never loads into memory at once.
const exportPageSize = 200

func (s *Server) exportEmailsCSV(c echo.Context) error {
	filter, err := emailFilterFromQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	filter.Page = 1
	filter.PageSize = exportPageSize

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=emails-%s.csv", time.Now().UTC().Format("20060102-150405")))
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{
		"id", "message_id", "mailbox", "sender", "subject", "received_at",
		"ai_category", "confidence_score", "analyst_category", "review_status",
		"reviewed_by", "reviewed_at", "reasoning",
	}); err != nil {
		return err
	}

	for {
		emails, _, err := s.service.ListEmails(c.Request().Context(), filter)
		if err != nil {
			return err
		}
		for _, email := range emails {
			reviewedAt := ""
			if email.ReviewedAt != nil {
				reviewedAt = email.ReviewedAt.UTC().Format(time.RFC3339)
			}
			if err := w.Write([]string{
				email.ID,
				email.MessageID,
				email.MailboxAddress,
				email.Sender,
				email.Subject,
				email.ReceivedAt.UTC().Format(time.RFC3339),
				string(email.AICategory),
				fmt.Sprintf("%.4f", email.ConfidenceScore),
				string(email.AnalystCategory),
				string(email.ReviewStatus),
				email.ReviewedBy,
				reviewedAt,
				strings.Join(email.Reasoning, "; "),
			}); err != nil {
				return err
			}
		}
		if len(emails) < filter.PageSize {
			break
		}
		filter.Page++
	}

	w.Flush()
	return w.Error()
}

func (s *Server) exportAuditCSV(c echo.Context) error {
	filter := core.AuditFilter{
		Actor:    c.QueryParam("actor"),
		Action:   core.AuditAction(c.QueryParam("action")),
		Page:     1,
		PageSize: exportPageSize,
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=audit-log-%s.csv", time.Now().UTC().Format("20060102-150405")))
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{
		"id", "timestamp", "actor", "action", "email_id",
		"previous_category", "new_category", "detail",
	}); err != nil {
		return err
	}

	for {
		entries, _, err := s.service.ListAudit(c.Request().Context(), filter)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := w.Write([]string{
				entry.ID,
				entry.Timestamp.UTC().Format(time.RFC3339),
				entry.Actor,
				string(entry.Action),
				entry.EmailID,
				string(entry.PreviousCategory),
				string(entry.NewCategory),
				entry.Detail,
			}); err != nil {
				return err
			}
		}
		if len(entries) < filter.PageSize {
			break
		}
		filter.Page++
	}

	w.Flush()
	return w.Error()
}
