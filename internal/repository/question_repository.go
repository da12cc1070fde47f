package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// questionRepository implements QuestionRepository on pgxpool.
type questionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository(pool *pgxpool.Pool) QuestionRepository {
	return &questionRepository{pool: pool}
}

// Create inserts a new question.
func (r *questionRepository) Create(ctx context.Context, question domain.Question) (domain.Question, error) {
	payloadJSON, err := question.PayloadJSON()
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	attributesJSON, err := question.AttributesJSON()
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to marshal attributes: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO questions (id, code, subject, topic, payload, attributes, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		question.ID,
		question.Code,
		question.Subject,
		question.Topic,
		payloadJSON,
		attributesJSON,
		string(question.State),
		question.CreatedAt,
		question.UpdatedAt,
	)
	if err := row.Scan(&question.ID, &question.CreatedAt, &question.UpdatedAt); err != nil {
		return domain.Question{}, fmt.Errorf("failed to create question: %w", err)
	}

	return question, nil
}

// GetByID retrieves a question by id.
func (r *questionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Question, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, code, subject, topic, payload, attributes, state, created_at, updated_at
		 FROM questions
		 WHERE id = $1`,
		id,
	)

	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, ErrNotFound
		}
		return domain.Question{}, fmt.Errorf("failed to get question: %w", err)
	}

	return question, nil
}

// CodeExists reports whether any question already carries the identity code.
func (r *questionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check question code: %w", err)
	}
	return exists, nil
}

// CountByClassification counts questions sharing a subject/topic pair. The
// running count feeds identity code generation.
func (r *questionRepository) CountByClassification(ctx context.Context, subject, topic int) (int64, error) {
	var count int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM questions WHERE subject = $1 AND topic = $2`,
		subject,
		topic,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions by classification: %w", err)
	}
	return count, nil
}

// List returns questions matching the filter ordered by code.
func (r *questionRepository) List(ctx context.Context, filter QuestionFilter) ([]domain.Question, error) {
	query := `SELECT id, code, subject, topic, payload, attributes, state, created_at, updated_at
		 FROM questions`
	args := []any{}
	conditions := []string{}

	if filter.Subject != nil {
		args = append(args, *filter.Subject)
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.Topic != nil {
		args = append(args, *filter.Topic)
		conditions = append(conditions, fmt.Sprintf("topic = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY code"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		question, scanErr := scanQuestion(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan question: %w", scanErr)
		}
		questions = append(questions, question)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", rowsErr)
	}

	return questions, nil
}

// DeleteByIDs bulk deletes questions and returns the rows that were actually
// removed.
func (r *questionRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]DeletedQuestion, error) {
	if len(ids) == 0 {
		return []DeletedQuestion{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`DELETE FROM questions WHERE id = ANY($1) RETURNING id, code`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete questions: %w", err)
	}
	defer rows.Close()

	deleted := []DeletedQuestion{}
	for rows.Next() {
		var row DeletedQuestion
		if scanErr := rows.Scan(&row.ID, &row.Code); scanErr != nil {
			return nil, fmt.Errorf("failed to scan deleted question: %w", scanErr)
		}
		deleted = append(deleted, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate deleted questions: %w", rowsErr)
	}

	return deleted, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		question       domain.Question
		payloadJSON    []byte
		attributesJSON []byte
		state          string
	)
	if err := row.Scan(
		&question.ID,
		&question.Code,
		&question.Subject,
		&question.Topic,
		&payloadJSON,
		&attributesJSON,
		&state,
		&question.CreatedAt,
		&question.UpdatedAt,
	); err != nil {
		return domain.Question{}, err
	}

	question.State = domain.QuestionState(state)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &question.Payload); err != nil {
			return domain.Question{}, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &question.Attributes); err != nil {
			return domain.Question{}, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}

	return question, nil
}
