package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/invigilo/invigilo/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	examsCollection     = "exams"
	questionsCollection = "questions"
)

type ExamRepository struct {
	mongoRepo *MongoRepository
}

func NewExamRepository(mongoRepo *MongoRepository) *ExamRepository {
	return &ExamRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *ExamRepository) Insert(ctx context.Context, exam *models.Exam) error {
	exam.CreatedAt = time.Now()
	if err := r.mongoRepo.InsertOne(ctx, examsCollection, exam); err != nil {
		return fmt.Errorf("failed to insert exam: %w", err)
	}
	return nil
}

func (r *ExamRepository) FindByExamID(ctx context.Context, examID string) (*models.Exam, error) {
	filter := bson.M{"examId": strings.TrimSpace(examID)}

	var exam models.Exam
	err := r.mongoRepo.FindOne(ctx, examsCollection, filter).Decode(&exam)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find exam: %w", err)
	}

	return &exam, nil
}

// List returns every exam with the requiresCode flag derived; the stored
// code itself never leaves the repository.
func (r *ExamRepository) List(ctx context.Context) ([]*models.Exam, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.mongoRepo.FindMany(ctx, examsCollection, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find exams: %w", err)
	}
	defer cursor.Close(ctx)

	exams := []*models.Exam{}
	if err := cursor.All(ctx, &exams); err != nil {
		return nil, fmt.Errorf("failed to decode exams: %w", err)
	}

	for _, exam := range exams {
		exam.RequiresCode = strings.TrimSpace(exam.ExamCode) != ""
	}

	return exams, nil
}

func (r *ExamRepository) Delete(ctx context.Context, examID string) error {
	deleted, err := r.mongoRepo.DeleteOne(ctx, examsCollection, bson.M{"examId": examID})
	if err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}
	if deleted == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

type QuestionRepository struct {
	mongoRepo *MongoRepository
}

func NewQuestionRepository(mongoRepo *MongoRepository) *QuestionRepository {
	return &QuestionRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *QuestionRepository) Insert(ctx context.Context, question *models.Question) error {
	question.CreatedAt = time.Now()
	if err := r.mongoRepo.InsertOne(ctx, questionsCollection, question); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

func (r *QuestionRepository) InsertMany(ctx context.Context, questions []*models.Question) error {
	now := time.Now()
	docs := make([]interface{}, 0, len(questions))
	for _, q := range questions {
		q.CreatedAt = now
		docs = append(docs, q)
	}
	if err := r.mongoRepo.InsertMany(ctx, questionsCollection, docs); err != nil {
		return fmt.Errorf("failed to insert questions: %w", err)
	}
	return nil
}

func (r *QuestionRepository) ListByExam(ctx context.Context, examID string) ([]*models.Question, error) {
	filter := bson.M{"examId": strings.TrimSpace(examID)}

	cursor, err := r.mongoRepo.FindMany(ctx, questionsCollection, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find questions: %w", err)
	}
	defer cursor.Close(ctx)

	questions := []*models.Question{}
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	return questions, nil
}
