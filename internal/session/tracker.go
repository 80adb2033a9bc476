package session

import (
	"context"
	"errors"
	"time"

	"github.com/invigilo/invigilo/internal/models"
	"github.com/invigilo/invigilo/internal/repository"
	"github.com/rs/zerolog/log"
)

// Gate failure reasons. These are hard, user-visible rejections returned
// synchronously; they are never retried automatically.
var (
	ErrExamNotStarted   = errors.New("exam not started yet")
	ErrExamEnded        = errors.New("exam has ended")
	ErrAlreadyCompleted = errors.New("you have already completed this exam")
	ErrInvalidCode      = errors.New("invalid exam code")
)

// AttemptStore is the slice of the attempt repository the tracker needs.
type AttemptStore interface {
	Find(ctx context.Context, examID, userID string) (*models.ExamAttempt, error)
	Start(ctx context.Context, examID, userID string, now time.Time) (*models.ExamAttempt, error)
	Complete(ctx context.Context, examID, userID string, now time.Time) (*models.ExamAttempt, error)
}

// Tracker enforces the exam time window and one-attempt-per-user semantics
// that gate question access.
type Tracker struct {
	attempts AttemptStore
}

func NewTracker(attempts AttemptStore) *Tracker {
	return &Tracker{attempts: attempts}
}

// Authorize applies the session gate for a question-list request: the exam
// window is checked against wall-clock time first (it overrides any attempt
// state), a completed attempt rejects, a started attempt resumes, and no
// attempt creates one atomically.
func (t *Tracker) Authorize(ctx context.Context, exam *models.Exam, userID string, now time.Time) (*models.ExamAttempt, error) {
	if now.Before(exam.LiveDate) {
		return nil, ErrExamNotStarted
	}
	if now.After(exam.DeadDate) {
		return nil, ErrExamEnded
	}

	attempt, err := t.attempts.Find(ctx, exam.ExamID, userID)
	if err != nil {
		return nil, err
	}

	if attempt.Completed() {
		return nil, ErrAlreadyCompleted
	}
	if attempt != nil {
		return attempt, nil // resume
	}

	attempt, err = t.attempts.Start(ctx, exam.ExamID, userID, now)
	if err != nil {
		return nil, err
	}
	// A lost creation race may hand back a completed attempt.
	if attempt.Completed() {
		return nil, ErrAlreadyCompleted
	}

	log.Info().Str("examId", exam.ExamID).Str("userId", userID).Msg("Exam attempt started")
	return attempt, nil
}

// Submit moves a started attempt to its terminal completed state. The
// stored completion time is set exactly once; repeat submissions report
// ErrAlreadyCompleted.
func (t *Tracker) Submit(ctx context.Context, examID, userID string, now time.Time) (*models.ExamAttempt, error) {
	attempt, err := t.attempts.Complete(ctx, examID, userID, now)
	if errors.Is(err, repository.ErrAttemptCompleted) {
		return attempt, ErrAlreadyCompleted
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("examId", examID).Str("userId", userID).Msg("Exam attempt completed")
	return attempt, nil
}

// VerifyCode checks an access code against the exam's stored code with an
// exact, case-sensitive comparison. An empty stored code means the exam is
// public and every code is accepted.
func VerifyCode(exam *models.Exam, code string) error {
	if exam.ExamCode == "" {
		return nil
	}
	if exam.ExamCode != code {
		return ErrInvalidCode
	}
	return nil
}
