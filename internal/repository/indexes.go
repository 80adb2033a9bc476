package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique indexes the engine's invariants rest on:
// one cheating log per (examId, email), one attempt per (examId, userId),
// and unique exam ids. Run once at startup.
func EnsureIndexes(ctx context.Context, repo *MongoRepository) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string]mongo.IndexModel{
		cheatingLogsCollection: {
			Keys:    bson.D{{Key: "examId", Value: 1}, {Key: "email", Value: 1}},
			Options: unique,
		},
		attemptsCollection: {
			Keys:    bson.D{{Key: "examId", Value: 1}, {Key: "userId", Value: 1}},
			Options: unique,
		},
		examsCollection: {
			Keys:    bson.D{{Key: "examId", Value: 1}},
			Options: unique,
		},
	}

	for collection, model := range indexes {
		if _, err := repo.GetCollection(collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", collection, err)
		}
	}

	return nil
}
