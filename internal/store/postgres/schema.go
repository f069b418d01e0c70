// Package postgres provides the PostgreSQL-backed [store.SessionStore].
//
// The feedback claim is made exactly-once with a row lock: the claim
// transaction SELECTs the session FOR UPDATE, inspects its status, and only
// then moves it to processing. Concurrent claimers block on the lock and see
// the post-claim status when they get their turn, so at most one is granted.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id               UUID         PRIMARY KEY,
    user_id          UUID         NOT NULL,
    template_id      UUID,
    role             TEXT         NOT NULL,
    seniority        TEXT         NOT NULL DEFAULT '',
    status           TEXT         NOT NULL DEFAULT 'active',
    transcript       JSONB        NOT NULL DEFAULT '[]',
    feedback_status  TEXT         NOT NULL DEFAULT 'idle',
    feedback_error   TEXT         NOT NULL DEFAULT '',
    feedback         JSONB,
    feedback_requested_at  TIMESTAMPTZ,
    feedback_processing_at TIMESTAMPTZ,
    feedback_completed_at  TIMESTAMPTZ,
    started_at       TIMESTAMPTZ  NOT NULL,
    ended_at         TIMESTAMPTZ,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_user_id
    ON interview_sessions (user_id);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_feedback_status
    ON interview_sessions (feedback_status);
`

const ddlTemplates = `
CREATE TABLE IF NOT EXISTS interview_templates (
    id          UUID         PRIMARY KEY,
    name        TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    seniority   TEXT         NOT NULL DEFAULT '',
    persona     TEXT         NOT NULL DEFAULT '',
    questions   JSONB        NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures all required tables exist. It is idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlSessions, ddlTemplates} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
