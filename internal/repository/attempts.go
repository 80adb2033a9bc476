package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invigilo/invigilo/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const attemptsCollection = "exam_attempts"

// ErrAttemptCompleted is returned when a completion is requested for an
// attempt whose completedAt is already set; the stored value is immutable.
var ErrAttemptCompleted = errors.New("attempt already completed")

// AttemptRepository persists the one-attempt-per-(examId, userId) records.
// Uniqueness is enforced by the storage layer index, so a race between two
// concurrent first requests cannot produce two attempts.
type AttemptRepository struct {
	mongoRepo *MongoRepository
}

func NewAttemptRepository(mongoRepo *MongoRepository) *AttemptRepository {
	return &AttemptRepository{
		mongoRepo: mongoRepo,
	}
}

// Find returns the attempt for (examId, userId), or nil when none exists.
func (r *AttemptRepository) Find(ctx context.Context, examID, userID string) (*models.ExamAttempt, error) {
	filter := bson.M{"examId": examID, "userId": userID}

	var attempt models.ExamAttempt
	err := r.mongoRepo.FindOne(ctx, attemptsCollection, filter).Decode(&attempt)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attempt: %w", err)
	}

	return &attempt, nil
}

// Start creates the attempt record. When a concurrent creator won the race,
// the existing attempt is returned instead; the conflict is "already
// started", not an error.
func (r *AttemptRepository) Start(ctx context.Context, examID, userID string, now time.Time) (*models.ExamAttempt, error) {
	attempt := &models.ExamAttempt{
		ExamID:    examID,
		UserID:    userID,
		StartedAt: now,
	}

	err := r.mongoRepo.InsertOne(ctx, attemptsCollection, attempt)
	if mongo.IsDuplicateKeyError(err) {
		existing, findErr := r.Find(ctx, examID, userID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("attempt vanished after duplicate-key conflict")
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	return attempt, nil
}

// Complete sets completedAt exactly once. The conditional filter only
// matches while completedAt is still null, so a repeat call can never move
// the timestamp.
func (r *AttemptRepository) Complete(ctx context.Context, examID, userID string, now time.Time) (*models.ExamAttempt, error) {
	filter := bson.M{"examId": examID, "userId": userID, "completedAt": nil}
	update := bson.M{"$set": bson.M{"completedAt": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var attempt models.ExamAttempt
	err := r.mongoRepo.FindOneAndUpdate(ctx, attemptsCollection, filter, update, opts).Decode(&attempt)
	if err == mongo.ErrNoDocuments {
		existing, findErr := r.Find(ctx, examID, userID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("no attempt to complete for exam %s", examID)
		}
		return existing, ErrAttemptCompleted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete attempt: %w", err)
	}

	return &attempt, nil
}
