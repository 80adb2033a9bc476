package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/invigilo/invigilo/internal/repository"
	"github.com/rs/zerolog/log"
)

// SaveCheatingLog upserts one violation report into the per-(examId, email)
// aggregate. The body may carry any subset of the count fields plus a single
// evidence object or a list; unknown and non-numeric fields are ignored.
func (h *Handler) SaveCheatingLog(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	examID, _ := body["examId"].(string)
	email, _ := body["email"].(string)
	username, _ := body["username"].(string)
	if examID == "" || email == "" || username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "examId, email, username are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	delta := models.ParseCountFields(body)
	evidence := parseScreenshots(body["screenshots"])

	saved, err := h.logs.Record(c.Request.Context(), examID, email, username, delta, evidence)
	if err != nil {
		log.Error().Err(err).Str("examId", examID).Str("email", email).Msg("Failed to record cheating log")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to save cheating log",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, saved)
}

// parseScreenshots normalizes the screenshots field: a single evidence
// object or an array, entries missing url/type are dropped.
func parseScreenshots(raw interface{}) []models.Evidence {
	toEvidence := func(v interface{}) (models.Evidence, bool) {
		m, ok := v.(map[string]interface{})
		if !ok {
			return models.Evidence{}, false
		}
		e := models.Evidence{}
		e.URL, _ = m["url"].(string)
		e.Type, _ = m["type"].(string)
		if e.URL == "" || e.Type == "" {
			return models.Evidence{}, false
		}
		if ts, ok := m["detectedAt"].(string); ok {
			e.DetectedAt = parseTimestamp(ts)
		}
		if conf, ok := m["confidence"].(float64); ok {
			e.Confidence = conf
		}
		return e, true
	}

	switch v := raw.(type) {
	case []interface{}:
		var out []models.Evidence
		for _, item := range v {
			if e, ok := toEvidence(item); ok {
				out = append(out, e)
			}
		}
		return out
	case map[string]interface{}:
		if e, ok := toEvidence(v); ok {
			return []models.Evidence{e}
		}
	}
	return nil
}

// ListCheatingLogs returns all logs for an exam, newest-updated first.
func (h *Handler) ListCheatingLogs(c *gin.Context) {
	examID := c.Param("examId")

	logs, err := h.logs.ListByExam(c.Request.Context(), examID)
	if err != nil {
		log.Error().Err(err).Str("examId", examID).Msg("Failed to list cheating logs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to fetch cheating logs",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(logs),
		"logs":  logs,
	})
}

// DetailedCheatingLogs returns the logs plus the folded analytics view.
func (h *Handler) DetailedCheatingLogs(c *gin.Context) {
	examID := c.Param("examId")

	logs, err := h.logs.ListByExam(c.Request.Context(), examID)
	if err != nil {
		log.Error().Err(err).Str("examId", examID).Msg("Failed to list cheating logs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to fetch cheating logs",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":      logs,
		"analytics": repository.Analytics(logs),
	})
}
