package progress

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the progress, attempt and event tables if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply progress schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, key Key, snap Snapshot) error {
	if err := key.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	snap = snap.Clone()
	answers, err := json.Marshal(snap.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	viewed := snap.SolutionViewed
	if viewed == nil {
		viewed = []string{}
	}
	viewedJSON, err := json.Marshal(viewed)
	if err != nil {
		return fmt.Errorf("marshal solution_viewed: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO exam_progress (user_id, instance_id, answers, question_index, solution_viewed, saved_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, $6)
		 ON CONFLICT (user_id, instance_id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     question_index = EXCLUDED.question_index,
		     solution_viewed = EXCLUDED.solution_viewed,
		     saved_at = EXCLUDED.saved_at`,
		key.UserID,
		key.InstanceID,
		string(answers),
		snap.QuestionIndex,
		string(viewedJSON),
		savedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadProgress(ctx context.Context, key Key) (Snapshot, bool, error) {
	if err := key.Validate(); err != nil {
		return Snapshot{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var snap Snapshot
	var answers, viewed []byte
	err := s.pool.QueryRow(ctx,
		`SELECT answers, question_index, solution_viewed, saved_at
		 FROM exam_progress
		 WHERE user_id = $1 AND instance_id = $2`,
		key.UserID,
		key.InstanceID,
	).Scan(&answers, &snap.QuestionIndex, &viewed, &snap.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("load progress: %w", err)
	}

	if err := json.Unmarshal(answers, &snap.Answers); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode answers: %w", err)
	}
	if len(viewed) > 0 {
		if err := json.Unmarshal(viewed, &snap.SolutionViewed); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode solution_viewed: %w", err)
		}
	}
	if snap.Answers == nil {
		snap.Answers = map[string]string{}
	}
	return snap, true, nil
}

func (s *PostgresStore) ResetProgress(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM exam_progress WHERE user_id = $1 AND instance_id = $2`,
		key.UserID,
		key.InstanceID,
	); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAttemptResult(ctx context.Context, key Key, attempt int, rec AttemptRecord) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if attempt < 1 {
		return fmt.Errorf("attempt number must be positive, got %d", attempt)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	outcomes := rec.Outcomes
	if outcomes == nil {
		outcomes = map[string]string{}
	}
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	submittedAt := rec.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO attempt_results (user_id, instance_id, attempt_number, total, score, passed, passing_percent, outcomes, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		 ON CONFLICT (user_id, instance_id, attempt_number) DO NOTHING`,
		key.UserID,
		key.InstanceID,
		attempt,
		rec.Total,
		rec.Score,
		rec.Passed,
		rec.PassingPercent,
		string(outcomesJSON),
		submittedAt,
	); err != nil {
		return fmt.Errorf("insert attempt result: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM exam_progress WHERE user_id = $1 AND instance_id = $2`,
		key.UserID,
		key.InstanceID,
	); err != nil {
		return fmt.Errorf("clear superseded progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attempt tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextAttemptNumber(ctx context.Context, key Key) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var next int
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) + 1
		 FROM attempt_results
		 WHERE user_id = $1 AND instance_id = $2`,
		key.UserID,
		key.InstanceID,
	).Scan(&next); err != nil {
		return 0, fmt.Errorf("next attempt number: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Attempts(ctx context.Context, key Key) ([]AttemptRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT attempt_number, total, score, passed, passing_percent, outcomes, submitted_at
		 FROM attempt_results
		 WHERE user_id = $1 AND instance_id = $2
		 ORDER BY attempt_number ASC`,
		key.UserID,
		key.InstanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var outcomes []byte
		if err := rows.Scan(
			&rec.AttemptNumber,
			&rec.Total,
			&rec.Score,
			&rec.Passed,
			&rec.PassingPercent,
			&outcomes,
			&rec.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(outcomes, &rec.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
