// Package store defines persistence for interview sessions and the
// transactional claim that makes feedback generation exactly-once.
//
// Two implementations exist: [MemStore] for tests and single-node
// deployments, and the postgres subpackage for production. Both must honour
// the same claim semantics: for any session, at most one caller ever receives
// [ClaimGranted] while the session is pending or failed, no matter how many
// claim concurrently.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/interview"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound means no session with that ID exists.
	ErrNotFound = errors.New("store: session not found")

	// ErrNotOwner means the session exists but belongs to another user.
	ErrNotOwner = errors.New("store: session not owned by user")

	// ErrInvalidTransition means the requested status change is not permitted
	// by the feedback state machine.
	ErrInvalidTransition = errors.New("store: invalid feedback transition")
)

// ClaimOutcome is the result of a feedback claim attempt. Exactly one caller
// gets [ClaimGranted]; everyone else learns why not without changing state.
type ClaimOutcome string

const (
	// ClaimGranted means the caller now owns generation: the session moved to
	// processing and any previous failure message was cleared.
	ClaimGranted ClaimOutcome = "granted"

	// ClaimNotQueued means feedback was never queued for this session.
	ClaimNotQueued ClaimOutcome = "not_queued"

	// ClaimAlreadyProcessing means another worker holds the claim.
	ClaimAlreadyProcessing ClaimOutcome = "already_processing"

	// ClaimAlreadyCompleted means a scorecard already exists.
	ClaimAlreadyCompleted ClaimOutcome = "already_completed"

	// ClaimNoTranscript means the session captured no dialogue; the session
	// is left untouched so nothing ever processes an empty interview.
	ClaimNoTranscript ClaimOutcome = "no_transcript"
)

// StatusView is the polling snapshot of a session's feedback workflow.
type StatusView struct {
	SessionStatus  interview.Status
	FeedbackStatus interview.FeedbackStatus
	FeedbackError  string
	HasTranscript  bool
}

// SessionStore persists interview sessions and drives the feedback state
// machine. Implementations must be safe for concurrent use.
type SessionStore interface {
	// CreateSession inserts a new session. The caller fills ID, UserID, Role
	// and timestamps.
	CreateSession(ctx context.Context, s *interview.Session) error

	// GetSession returns the session with the given ID if it belongs to
	// userID. Returns ErrNotFound or ErrNotOwner otherwise.
	GetSession(ctx context.Context, userID, id uuid.UUID) (*interview.Session, error)

	// FinishSession freezes the transcript and marks the session finished.
	// Finishing an already finished session overwrites nothing and succeeds.
	FinishSession(ctx context.Context, userID, id uuid.UUID, transcript []interview.TranscriptEntry, endedAt time.Time) error

	// QueueFeedback moves idle to pending and reports the resulting status.
	// Any other current status is returned unchanged: queueing is idempotent
	// and never disturbs work in flight.
	QueueFeedback(ctx context.Context, userID, id uuid.UUID) (interview.FeedbackStatus, error)

	// ClaimFeedback atomically attempts to take ownership of generation.
	// pending or failed sessions with a transcript move to processing with
	// FeedbackError cleared and the caller gets ClaimGranted plus a snapshot
	// of the session; every other state maps to a non-granted outcome with a
	// nil session. Concurrent claims on the same session grant exactly once.
	ClaimFeedback(ctx context.Context, userID, id uuid.UUID) (ClaimOutcome, *interview.Session, error)

	// CompleteFeedback stores the scorecard and moves processing to
	// completed. Returns ErrInvalidTransition if the session is not
	// processing.
	CompleteFeedback(ctx context.Context, id uuid.UUID, fb *interview.Feedback) error

	// FailFeedback records the failure message and moves processing to
	// failed. Returns ErrInvalidTransition if the session is not processing.
	FailFeedback(ctx context.Context, id uuid.UUID, message string) error

	// FeedbackStatus returns the polling view of the session.
	FeedbackStatus(ctx context.Context, userID, id uuid.UUID) (StatusView, error)

	// GetFeedback returns the stored scorecard, or ErrNotFound if the
	// session has none yet.
	GetFeedback(ctx context.Context, userID, id uuid.UUID) (*interview.Feedback, error)
}

// TemplateStore persists reusable interview templates. Templates are shared
// across users; only sessions are owner-scoped.
type TemplateStore interface {
	// CreateTemplate inserts a new template. The caller fills ID and
	// CreatedAt.
	CreateTemplate(ctx context.Context, t *interview.Template) error

	// GetTemplate returns the template with the given ID, or ErrNotFound.
	GetTemplate(ctx context.Context, id uuid.UUID) (*interview.Template, error)

	// ListTemplates returns all templates ordered by creation time.
	ListTemplates(ctx context.Context) ([]*interview.Template, error)
}
