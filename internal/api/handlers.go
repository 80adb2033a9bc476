package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/invigilo/invigilo/internal/config"
	"github.com/invigilo/invigilo/internal/detect"
	"github.com/invigilo/invigilo/internal/live"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/invigilo/invigilo/internal/session"
)

// CheatingLogStore is the aggregator surface the API depends on.
type CheatingLogStore interface {
	Record(ctx context.Context, examID, email, username string, delta map[models.ViolationType]int, evidence []models.Evidence) (*models.CheatingLog, error)
	ListByExam(ctx context.Context, examID string) ([]*models.CheatingLog, error)
}

// ExamStore is the exam persistence surface the API depends on.
type ExamStore interface {
	Insert(ctx context.Context, exam *models.Exam) error
	FindByExamID(ctx context.Context, examID string) (*models.Exam, error)
	List(ctx context.Context) ([]*models.Exam, error)
	Delete(ctx context.Context, examID string) error
}

// QuestionStore is the question persistence surface the API depends on.
type QuestionStore interface {
	Insert(ctx context.Context, question *models.Question) error
	InsertMany(ctx context.Context, questions []*models.Question) error
	ListByExam(ctx context.Context, examID string) ([]*models.Question, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	cfg       *config.Config
	logs      CheatingLogStore
	exams     ExamStore
	questions QuestionStore
	tracker   *session.Tracker
	sessions  *detect.Manager
	hub       *live.Hub
	upgrader  websocket.Upgrader
}

// NewHandler creates a new handler
func NewHandler(
	cfg *config.Config,
	logs CheatingLogStore,
	exams ExamStore,
	questions QuestionStore,
	tracker *session.Tracker,
	sessions *detect.Manager,
	hub *live.Hub,
) *Handler {
	return &Handler{
		cfg:       cfg,
		logs:      logs,
		exams:     exams,
		questions: questions,
		tracker:   tracker,
		sessions:  sessions,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS layer; dashboards may be
			// served from a separate host.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"activeSessions": h.sessions.ActiveSessions(),
	})
}
