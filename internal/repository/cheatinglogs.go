package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/invigilo/invigilo/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cheatingLogsCollection = "cheating_logs"

// CheatingLogRepository is the violation aggregator: one document per
// (examId, email), merged by a single atomic upsert so concurrent reports
// for the same session never lose an increment.
type CheatingLogRepository struct {
	mongoRepo *MongoRepository
}

func NewCheatingLogRepository(mongoRepo *MongoRepository) *CheatingLogRepository {
	return &CheatingLogRepository{
		mongoRepo: mongoRepo,
	}
}

// buildRecordUpdate assembles the upsert document: identity fields seeded on
// insert only, per-type increments for the present deltas (non-positive
// deltas are dropped, counts never decrease), and an order-preserving
// evidence append.
func buildRecordUpdate(examID, email, username string, delta map[models.ViolationType]int, evidence []models.Evidence, now time.Time) bson.M {
	update := bson.M{
		"$setOnInsert": bson.M{
			"examId":    examID,
			"email":     email,
			"username":  username,
			"createdAt": now,
		},
		"$set": bson.M{"updatedAt": now},
	}

	inc := bson.M{}
	for _, t := range models.ViolationTypes {
		if n, ok := delta[t]; ok && n > 0 {
			inc[t.CountField()] = n
		}
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	if len(evidence) > 0 {
		update["$push"] = bson.M{"screenshots": bson.M{"$each": evidence}}
	}

	return update
}

// Record merges one violation report into the per-(examId, email) aggregate
// and returns the post-update document. Increment and append happen in one
// document-level operation, which makes writes for the same key linearizable
// without any application locking.
func (r *CheatingLogRepository) Record(ctx context.Context, examID, email, username string, delta map[models.ViolationType]int, evidence []models.Evidence) (*models.CheatingLog, error) {
	filter := bson.M{"examId": examID, "email": email}
	update := buildRecordUpdate(examID, email, username, delta, evidence, time.Now())
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var logDoc models.CheatingLog
	err := r.mongoRepo.FindOneAndUpdate(ctx, cheatingLogsCollection, filter, update, opts).Decode(&logDoc)
	if mongo.IsDuplicateKeyError(err) {
		// Two first reports raced on the upsert; the document exists now,
		// so a single retry takes the plain update path.
		err = r.mongoRepo.FindOneAndUpdate(ctx, cheatingLogsCollection, filter, update, opts).Decode(&logDoc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record cheating log: %w", err)
	}

	return &logDoc, nil
}

// ListByExam returns every log for an exam, newest-updated first.
func (r *CheatingLogRepository) ListByExam(ctx context.Context, examID string) ([]*models.CheatingLog, error) {
	filter := bson.M{"examId": examID}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := r.mongoRepo.FindMany(ctx, cheatingLogsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find cheating logs: %w", err)
	}
	defer cursor.Close(ctx)

	logs := []*models.CheatingLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode cheating logs: %w", err)
	}

	return logs, nil
}

// Analytics folds all counts across an exam's logs into the total-violation
// figure. Pure derivation, no stored state.
func Analytics(logs []*models.CheatingLog) models.LogAnalytics {
	total := 0
	for _, l := range logs {
		total += l.TotalViolations()
	}
	return models.LogAnalytics{
		TotalLogs:       len(logs),
		TotalViolations: total,
	}
}
