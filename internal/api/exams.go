package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/invigilo/invigilo/internal/session"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

func parseTimestamp(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// findExam loads an exam or writes the 404 response.
func (h *Handler) findExam(c *gin.Context, examID string) (*models.Exam, bool) {
	exam, err := h.exams.FindByExamID(c.Request.Context(), examID)
	if err != nil {
		log.Error().Err(err).Str("examId", examID).Msg("Failed to load exam")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to load exam",
			Code:  "INTERNAL_ERROR",
		})
		return nil, false
	}
	if exam == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Exam not found",
			Code:  "EXAM_NOT_FOUND",
		})
		return nil, false
	}
	return exam, true
}

// ListExams returns every exam with its requiresCode flag; codes stay
// server-side.
func (h *Handler) ListExams(c *gin.Context) {
	exams, err := h.exams.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list exams")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to fetch exams",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, exams)
}

type createExamRequest struct {
	ExamName       string    `json:"examName" binding:"required"`
	TotalQuestions int       `json:"totalQuestions" binding:"required"`
	Duration       int       `json:"duration" binding:"required"`
	LiveDate       time.Time `json:"liveDate" binding:"required"`
	DeadDate       time.Time `json:"deadDate" binding:"required"`
	ExamCode       string    `json:"examCode"` // empty = public exam
}

// CreateExam registers a new exam with a generated examId.
func (h *Handler) CreateExam(c *gin.Context) {
	var req createExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid exam data",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	user, _ := CurrentUser(c)
	exam := &models.Exam{
		ExamID:         uuid.New().String(),
		ExamName:       req.ExamName,
		TotalQuestions: req.TotalQuestions,
		Duration:       req.Duration,
		LiveDate:       req.LiveDate,
		DeadDate:       req.DeadDate,
		ExamCode:       req.ExamCode,
		TeacherID:      user.ID,
	}

	if err := h.exams.Insert(c.Request.Context(), exam); err != nil {
		log.Error().Err(err).Msg("Failed to create exam")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create exam",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// DeleteExam removes an exam; only its creator may delete it.
func (h *Handler) DeleteExam(c *gin.Context) {
	examID := c.Param("examId")

	exam, ok := h.findExam(c, examID)
	if !ok {
		return
	}

	user, _ := CurrentUser(c)
	if exam.TeacherID != "" && exam.TeacherID != user.ID {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "Not authorized to delete this exam",
			Code:  "FORBIDDEN",
		})
		return
	}

	if err := h.exams.Delete(c.Request.Context(), examID); err != nil && err != mongo.ErrNoDocuments {
		log.Error().Err(err).Str("examId", examID).Msg("Failed to delete exam")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to delete exam",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exam deleted successfully"})
}

type verifyCodeRequest struct {
	ExamCode string `json:"examCode"`
}

// VerifyExamCode checks an access code. Empty stored code means the exam is
// public and always valid.
func (h *Handler) VerifyExamCode(c *gin.Context) {
	exam, ok := h.findExam(c, c.Param("examId"))
	if !ok {
		return
	}

	var req verifyCodeRequest
	_ = c.ShouldBindJSON(&req) // absent body behaves like an empty code

	if err := session.VerifyCode(exam, req.ExamCode); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Invalid exam code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "Access granted"})
}

// GetQuestions is the session gate: it enforces the exam window and the
// one-attempt rule, creating or resuming the attempt as a side effect of an
// authorized request.
func (h *Handler) GetQuestions(c *gin.Context) {
	exam, ok := h.findExam(c, c.Param("examId"))
	if !ok {
		return
	}

	user, _ := CurrentUser(c)
	_, err := h.tracker.Authorize(c.Request.Context(), exam, user.ID, time.Now())
	switch {
	case errors.Is(err, session.ErrExamNotStarted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "startsAt": exam.LiveDate})
		return
	case errors.Is(err, session.ErrExamEnded):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "endedAt": exam.DeadDate})
		return
	case errors.Is(err, session.ErrAlreadyCompleted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("examId", exam.ExamID).Msg("Session gate failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to authorize exam access",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	questions, err := h.questions.ListByExam(c.Request.Context(), exam.ExamID)
	if err != nil {
		log.Error().Err(err).Str("examId", exam.ExamID).Msg("Failed to list questions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to fetch questions",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, questions)
}

// SubmitExam completes the attempt and tears down the session pipeline.
func (h *Handler) SubmitExam(c *gin.Context) {
	examID := c.Param("examId")
	user, _ := CurrentUser(c)

	_, err := h.tracker.Submit(c.Request.Context(), examID, user.ID, time.Now())
	if errors.Is(err, session.ErrAlreadyCompleted) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("examId", examID).Str("userId", user.ID).Msg("Failed to submit exam")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to submit exam",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	// Final flush of any pending violation deltas for this session.
	h.sessions.EndSession(examID, user.Email)

	c.JSON(http.StatusOK, gin.H{"message": "Exam submitted"})
}
