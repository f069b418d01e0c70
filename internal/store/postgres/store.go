package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/store"
)

// Compile-time interface checks.
var (
	_ store.SessionStore  = (*Store)(nil)
	_ store.TemplateStore = (*Store)(nil)
)

// Store is the PostgreSQL-backed session store. All operations are safe for
// concurrent use; the pool handles connection management.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// and runs [Migrate] to ensure the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess *interview.Session) error {
	transcript, err := json.Marshal(sess.Transcript)
	if err != nil {
		return fmt.Errorf("postgres store: marshal transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO interview_sessions
			(id, user_id, template_id, role, seniority, status, transcript,
			 feedback_status, feedback_error, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sess.ID, sess.UserID, sess.TemplateID, sess.Role, sess.Seniority, string(sess.Status), transcript,
		string(sess.FeedbackStatus), sess.FeedbackError, sess.StartedAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

const sessionColumns = `
	id, user_id, template_id, role, seniority, status, transcript,
	feedback_status, feedback_error, feedback,
	feedback_requested_at, feedback_processing_at, feedback_completed_at,
	started_at, ended_at, created_at, updated_at`

// scanSession reads one full session row.
func scanSession(row pgx.Row) (*interview.Session, error) {
	var (
		sess           interview.Session
		status         string
		feedbackStatus string
		transcriptJSON []byte
		feedbackJSON   []byte
		requestedAt    *time.Time
		processingAt   *time.Time
		completedAt    *time.Time
		endedAt        *time.Time
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.TemplateID, &sess.Role, &sess.Seniority, &status, &transcriptJSON,
		&feedbackStatus, &sess.FeedbackError, &feedbackJSON,
		&requestedAt, &processingAt, &completedAt,
		&sess.StartedAt, &endedAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: scan session: %w", err)
	}

	sess.Status = interview.Status(status)
	sess.FeedbackStatus = interview.FeedbackStatus(feedbackStatus)
	if requestedAt != nil {
		sess.FeedbackRequestedAt = *requestedAt
	}
	if processingAt != nil {
		sess.FeedbackProcessingAt = *processingAt
	}
	if completedAt != nil {
		sess.FeedbackCompletedAt = *completedAt
	}
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &sess.Transcript); err != nil {
			return nil, fmt.Errorf("postgres store: decode transcript: %w", err)
		}
	}
	if len(feedbackJSON) > 0 {
		var fb interview.Feedback
		if err := json.Unmarshal(feedbackJSON, &fb); err != nil {
			return nil, fmt.Errorf("postgres store: decode feedback: %w", err)
		}
		sess.Feedback = &fb
	}
	return &sess, nil
}

// getOwned fetches a session checking ownership, optionally inside a
// transaction with a row lock.
func getOwned(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, userID, id uuid.UUID, forUpdate bool) (*interview.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sess, err := scanSession(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, store.ErrNotOwner
	}
	return sess, nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, userID, id uuid.UUID) (*interview.Session, error) {
	return getOwned(ctx, s.pool, userID, id, false)
}

// FinishSession implements [store.SessionStore].
func (s *Store) FinishSession(ctx context.Context, userID, id uuid.UUID, transcript []interview.TranscriptEntry, endedAt time.Time) error {
	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("postgres store: marshal transcript: %w", err)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := getOwned(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if sess.Status == interview.StatusFinished {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE interview_sessions
			SET status = $2, transcript = $3, ended_at = $4, updated_at = now()
			WHERE id = $1`,
			id, string(interview.StatusFinished), data, endedAt)
		if err != nil {
			return fmt.Errorf("postgres store: finish session: %w", err)
		}
		return nil
	})
}

// QueueFeedback implements [store.SessionStore].
func (s *Store) QueueFeedback(ctx context.Context, userID, id uuid.UUID) (interview.FeedbackStatus, error) {
	var result interview.FeedbackStatus
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := getOwned(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		result = sess.FeedbackStatus
		if sess.FeedbackStatus != interview.FeedbackIdle {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE interview_sessions
			SET feedback_status = $2, feedback_requested_at = now(), updated_at = now()
			WHERE id = $1`,
			id, string(interview.FeedbackPending))
		if err != nil {
			return fmt.Errorf("postgres store: queue feedback: %w", err)
		}
		result = interview.FeedbackPending
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// ClaimFeedback implements [store.SessionStore]. The row lock taken by
// SELECT FOR UPDATE serialises concurrent claims: only the first sees
// pending or failed, everyone queued behind it sees processing.
func (s *Store) ClaimFeedback(ctx context.Context, userID, id uuid.UUID) (store.ClaimOutcome, *interview.Session, error) {
	var (
		outcome  store.ClaimOutcome
		snapshot *interview.Session
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := getOwned(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}

		switch sess.FeedbackStatus {
		case interview.FeedbackProcessing:
			outcome = store.ClaimAlreadyProcessing
			return nil
		case interview.FeedbackCompleted:
			outcome = store.ClaimAlreadyCompleted
			return nil
		case interview.FeedbackIdle:
			outcome = store.ClaimNotQueued
			return nil
		}

		if !sess.HasTranscript() {
			outcome = store.ClaimNoTranscript
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE interview_sessions
			SET feedback_status = $2, feedback_error = '',
			    feedback_processing_at = now(), updated_at = now()
			WHERE id = $1`,
			id, string(interview.FeedbackProcessing))
		if err != nil {
			return fmt.Errorf("postgres store: claim feedback: %w", err)
		}

		sess.FeedbackStatus = interview.FeedbackProcessing
		sess.FeedbackError = ""
		sess.FeedbackProcessingAt = time.Now()
		outcome = store.ClaimGranted
		snapshot = sess
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return outcome, snapshot, nil
}

// CompleteFeedback implements [store.SessionStore].
func (s *Store) CompleteFeedback(ctx context.Context, id uuid.UUID, fb *interview.Feedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("postgres store: marshal feedback: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE interview_sessions
		SET feedback_status = $2, feedback = $3, feedback_error = '',
		    feedback_completed_at = now(), updated_at = now()
		WHERE id = $1 AND feedback_status = $4`,
		id, string(interview.FeedbackCompleted), data, string(interview.FeedbackProcessing))
	if err != nil {
		return fmt.Errorf("postgres store: complete feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, s.pool, id)
	}
	return nil
}

// FailFeedback implements [store.SessionStore].
func (s *Store) FailFeedback(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE interview_sessions
		SET feedback_status = $2, feedback_error = $3, updated_at = now()
		WHERE id = $1 AND feedback_status = $4`,
		id, string(interview.FeedbackFailed), message, string(interview.FeedbackProcessing))
	if err != nil {
		return fmt.Errorf("postgres store: fail feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, s.pool, id)
	}
	return nil
}

// transitionError distinguishes a missing row from a state machine violation
// after a guarded UPDATE matched nothing.
func transitionError(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) error {
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM interview_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres store: check session: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

// FeedbackStatus implements [store.SessionStore].
func (s *Store) FeedbackStatus(ctx context.Context, userID, id uuid.UUID) (store.StatusView, error) {
	var (
		ownerID        uuid.UUID
		status         string
		feedbackStatus string
		feedbackError  string
		entryCount     int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, status, feedback_status, feedback_error,
		       jsonb_array_length(transcript)
		FROM interview_sessions WHERE id = $1`, id).
		Scan(&ownerID, &status, &feedbackStatus, &feedbackError, &entryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StatusView{}, store.ErrNotFound
		}
		return store.StatusView{}, fmt.Errorf("postgres store: feedback status: %w", err)
	}
	if ownerID != userID {
		return store.StatusView{}, store.ErrNotOwner
	}
	return store.StatusView{
		SessionStatus:  interview.Status(status),
		FeedbackStatus: interview.FeedbackStatus(feedbackStatus),
		FeedbackError:  feedbackError,
		HasTranscript:  entryCount > 0,
	}, nil
}

// GetFeedback implements [store.SessionStore].
func (s *Store) GetFeedback(ctx context.Context, userID, id uuid.UUID) (*interview.Feedback, error) {
	sess, err := getOwned(ctx, s.pool, userID, id, false)
	if err != nil {
		return nil, err
	}
	if sess.Feedback == nil {
		return nil, store.ErrNotFound
	}
	return sess.Feedback, nil
}

// CreateTemplate implements [store.TemplateStore].
func (s *Store) CreateTemplate(ctx context.Context, t *interview.Template) error {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return fmt.Errorf("postgres store: marshal questions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO interview_templates
			(id, name, role, seniority, persona, questions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.Role, t.Seniority, t.Persona, questions, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create template: %w", err)
	}
	return nil
}

const templateColumns = `id, name, role, seniority, persona, questions, created_at`

// scanTemplate reads one template row.
func scanTemplate(row pgx.Row) (*interview.Template, error) {
	var (
		t             interview.Template
		questionsJSON []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Role, &t.Seniority, &t.Persona, &questionsJSON, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: scan template: %w", err)
	}
	if len(questionsJSON) > 0 {
		if err := json.Unmarshal(questionsJSON, &t.Questions); err != nil {
			return nil, fmt.Errorf("postgres store: decode questions: %w", err)
		}
	}
	return &t, nil
}

// GetTemplate implements [store.TemplateStore].
func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*interview.Template, error) {
	return scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM interview_templates WHERE id = $1`, id))
}

// ListTemplates implements [store.TemplateStore].
func (s *Store) ListTemplates(ctx context.Context) ([]*interview.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM interview_templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list templates: %w", err)
	}
	defer rows.Close()

	var out []*interview.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list templates: %w", err)
	}
	return out, nil
}

// inTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit tx: %w", err)
	}
	return nil
}
