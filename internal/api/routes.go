package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo/internal/config"
	"github.com/invigilo/invigilo/internal/detect"
	"github.com/invigilo/invigilo/internal/live"
	"github.com/invigilo/invigilo/internal/session"
)

func SetupRoutes(
	cfg *config.Config,
	logs CheatingLogStore,
	exams ExamStore,
	questions QuestionStore,
	tracker *session.Tracker,
	sessions *detect.Manager,
	hub *live.Hub,
) *gin.Engine {
	router := gin.Default()

	handler := NewHandler(cfg, logs, exams, questions, tracker, sessions, hub)
	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/cheatingLogs", handler.SaveCheatingLog)
		api.GET("/cheatingLogs/:examId", handler.ListCheatingLogs)
		api.GET("/cheatingLogs/detailed/:examId", handler.DetailedCheatingLogs)

		api.GET("/exam/questions/:examId", handler.GetQuestions)
		api.POST("/exam/:examId/submit", handler.SubmitExam)
		api.POST("/exam/:examId/verify-code", handler.VerifyExamCode)
		api.GET("/exam/live/:examId", handler.LiveFeed)

		api.GET("/exams", handler.ListExams)
		api.POST("/exams", RequireRole("teacher"), handler.CreateExam)
		api.DELETE("/exams/:examId", RequireRole("teacher"), handler.DeleteExam)

		api.POST("/questions", RequireRole("teacher"), handler.CreateQuestion)
		api.POST("/questions/bulk", RequireRole("teacher"), handler.CreateBulkQuestions)
	}

	return router
}
