package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/rs/zerolog/log"
)

type createQuestionRequest struct {
	ExamID   string          `json:"examId" binding:"required"`
	Question string          `json:"question" binding:"required"`
	Options  []models.Option `json:"options" binding:"required"`
}

// CreateQuestion adds one question to an exam.
func (h *Handler) CreateQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid question data",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	question := &models.Question{
		ExamID:   strings.TrimSpace(req.ExamID),
		Question: req.Question,
		Options:  req.Options,
	}

	if err := h.questions.Insert(c.Request.Context(), question); err != nil {
		log.Error().Err(err).Str("examId", req.ExamID).Msg("Failed to create question")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create question",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusCreated, question)
}

type bulkQuestionsRequest struct {
	ExamID    string `json:"examId" binding:"required"`
	Questions []struct {
		Question string          `json:"question" binding:"required"`
		Options  []models.Option `json:"options" binding:"required"`
	} `json:"questions" binding:"required,min=1"`
}

// CreateBulkQuestions adds a batch of questions to an exam in one call.
func (h *Handler) CreateBulkQuestions(c *gin.Context) {
	var req bulkQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Questions array is required and must not be empty",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	examID := strings.TrimSpace(req.ExamID)
	questions := make([]*models.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, &models.Question{
			ExamID:   examID,
			Question: q.Question,
			Options:  q.Options,
		})
	}

	if err := h.questions.InsertMany(c.Request.Context(), questions); err != nil {
		log.Error().Err(err).Str("examId", examID).Msg("Failed to create questions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create questions",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Questions created successfully",
		"count":     len(questions),
		"questions": questions,
	})
}

// LiveFeed upgrades to a WebSocket and streams the exam's violation events
// to a teacher dashboard until the connection closes.
func (h *Handler) LiveFeed(c *gin.Context) {
	examID := c.Param("examId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("examId", examID).Msg("WebSocket upgrade failed")
		return
	}

	h.hub.Subscribe(examID, conn)
}
