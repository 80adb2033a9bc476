package models

import "time"

// Exam carries the scheduling window that gates question access. The window
// [LiveDate, DeadDate] is evaluated against wall-clock time at request time.
type Exam struct {
	ExamID         string    `bson:"examId" json:"examId"`
	ExamName       string    `bson:"examName" json:"examName"`
	TotalQuestions int       `bson:"totalQuestions" json:"totalQuestions"`
	Duration       int       `bson:"duration" json:"duration"` // minutes
	LiveDate       time.Time `bson:"liveDate" json:"liveDate"`
	DeadDate       time.Time `bson:"deadDate" json:"deadDate"`
	ExamCode       string    `bson:"examCode" json:"-"` // empty = public
	TeacherID      string    `bson:"teacherId,omitempty" json:"teacherId,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`

	// RequiresCode is derived for listings; the code itself never leaves
	// the server.
	RequiresCode bool `bson:"-" json:"requiresCode"`
}

// Question belongs to one exam.
type Question struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	ExamID    string    `bson:"examId" json:"examId"`
	Question  string    `bson:"question" json:"question"`
	Options   []Option  `bson:"options" json:"options"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Option is one answer choice.
type Option struct {
	Text      string `bson:"text" json:"text"`
	IsCorrect bool   `bson:"isCorrect" json:"isCorrect"`
}

// ExamAttempt records one user's single permitted engagement with an exam.
// At most one attempt ever exists per (examId, userId); CompletedAt is set
// exactly once and never cleared.
type ExamAttempt struct {
	ExamID      string     `bson:"examId" json:"examId"`
	UserID      string     `bson:"userId" json:"userId"`
	StartedAt   time.Time  `bson:"startedAt" json:"startedAt"`
	CompletedAt *time.Time `bson:"completedAt" json:"completedAt"`
}

// Completed reports whether the attempt reached its terminal state.
func (a *ExamAttempt) Completed() bool {
	return a != nil && a.CompletedAt != nil
}
