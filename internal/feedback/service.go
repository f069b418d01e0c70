// Package feedback drives the scorecard generation workflow: queueing a
// finished interview, claiming it exactly once, and grading its transcript in
// the background.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/resilience"
	"github.com/oratioapp/oratio/internal/store"
	"github.com/oratioapp/oratio/pkg/provider/score"
)

// DefaultGenerationTimeout bounds one background generation run, retries
// included.
const DefaultGenerationTimeout = 2 * time.Minute

// Service orchestrates the feedback lifecycle on top of a [store.SessionStore]
// and a grading [score.Provider]. It is safe for concurrent use.
type Service struct {
	store    store.SessionStore
	provider score.Provider
	model    string

	retry      resilience.RetryConfig
	genTimeout time.Duration
	metrics    *observe.Metrics

	wg sync.WaitGroup
}

// Option configures a [Service].
type Option func(*Service)

// WithRetry overrides the retry policy used around the grading call.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithGenerationTimeout overrides [DefaultGenerationTimeout].
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.genTimeout = d
		}
	}
}

// NewService creates a feedback service. The model name is recorded on every
// generated scorecard for provenance.
func NewService(st store.SessionStore, provider score.Provider, model string, opts ...Option) *Service {
	s := &Service{
		store:      st,
		provider:   provider,
		model:      model,
		retry:      resilience.RetryConfig{Attempts: 3, BaseDelay: time.Second},
		genTimeout: DefaultGenerationTimeout,
		metrics:    observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueueRequest finishes an interview and asks for feedback on it.
type QueueRequest struct {
	UserID      uuid.UUID
	InterviewID uuid.UUID

	// Transcript is the frozen dialogue from the live session. It is
	// normalized before storage; a submission whose entries all normalize
	// away is rejected. A transcript that was empty to begin with is staged
	// but never graded.
	Transcript []interview.TranscriptEntry

	// EndedAt is when the live session ended.
	EndedAt time.Time
}

// QueueResult reports what queueing did.
type QueueResult struct {
	// Queued is false when a scorecard already exists and the request was
	// answered from it.
	Queued bool                     `json:"queued"`
	Status interview.FeedbackStatus `json:"status"`
	Reused bool                     `json:"reused,omitempty"`
}

// Queue finishes the session, stores its transcript and moves feedback to
// pending. It never calls the grading model. If feedback already completed,
// the existing scorecard is reused and nothing changes.
func (s *Service) Queue(ctx context.Context, req QueueRequest) (QueueResult, error) {
	transcript := interview.NormalizeTranscript(req.Transcript)
	if len(req.Transcript) > 0 {
		// Submitting entries that normalize to nothing is a caller error,
		// distinct from a live session that captured no dialogue at all.
		if err := interview.ValidateTranscript(transcript); err != nil {
			return QueueResult{}, err
		}
	}

	view, err := s.store.FeedbackStatus(ctx, req.UserID, req.InterviewID)
	if err != nil {
		return QueueResult{}, err
	}
	if view.FeedbackStatus == interview.FeedbackCompleted {
		return QueueResult{Queued: false, Status: interview.FeedbackCompleted, Reused: true}, nil
	}

	endedAt := req.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	if err := s.store.FinishSession(ctx, req.UserID, req.InterviewID, transcript, endedAt); err != nil {
		return QueueResult{}, err
	}

	status, err := s.store.QueueFeedback(ctx, req.UserID, req.InterviewID)
	if err != nil {
		return QueueResult{}, err
	}
	return QueueResult{Queued: true, Status: status}, nil
}

// Process attempts to claim generation for the session. When the claim is
// granted, grading runs in a detached background goroutine so it survives the
// request that triggered it; the claim outcome is returned immediately.
func (s *Service) Process(ctx context.Context, userID, interviewID uuid.UUID) (store.ClaimOutcome, error) {
	outcome, snapshot, err := s.store.ClaimFeedback(ctx, userID, interviewID)
	if err != nil {
		return "", err
	}
	if outcome != store.ClaimGranted {
		return outcome, nil
	}

	s.wg.Go(func() {
		genCtx, cancel := context.WithTimeout(context.Background(), s.genTimeout)
		defer cancel()
		s.generate(genCtx, snapshot)
	})
	return outcome, nil
}

// Wait blocks until all in-flight generation goroutines finish. Used during
// shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// generate grades one claimed session and persists the outcome. Persistence
// sits outside the retry loop: retries cover only the model call, and a
// completed card is written exactly once.
func (s *Service) generate(ctx context.Context, sess *interview.Session) {
	log := slog.With("interview_id", sess.ID)
	started := time.Now()

	req := score.Request{
		Role:       sess.Role,
		Seniority:  sess.Seniority,
		Transcript: FormatTranscript(sess.Transcript),
		Duration:   interviewDuration(sess),
	}

	var card *score.Card
	attempts := 0
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		attempts++
		var scoreErr error
		card, scoreErr = s.provider.Score(ctx, req)
		status := "ok"
		if scoreErr != nil {
			status = "error"
		}
		s.metrics.RecordScoreRequest(ctx, s.model, status)
		return scoreErr
	})
	if attempts > 1 {
		s.metrics.GenerationRetries.Add(ctx, int64(attempts-1))
	}
	s.metrics.GenerationDuration.Record(ctx, time.Since(started).Seconds())

	// Persist on a fresh context so a timed-out generation can still record
	// its outcome.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		log.Error("feedback generation failed", "error", err, "elapsed", time.Since(started))
		if failErr := s.store.FailFeedback(persistCtx, sess.ID, err.Error()); failErr != nil {
			// Best effort. The session stays processing until someone looks.
			log.Error("recording generation failure failed", "error", failErr)
		}
		return
	}

	fb := &interview.Feedback{
		Card:        *card,
		Model:       s.model,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.CompleteFeedback(persistCtx, sess.ID, fb); err != nil {
		log.Error("storing scorecard failed", "error", err)
		return
	}
	log.Info("feedback generated",
		"total_score", card.Total,
		"recommendation", card.Recommendation,
		"elapsed", time.Since(started))
}

// Status returns the polling view of the feedback workflow. When the stored
// status lags behind an existing scorecard, the view is reconciled to
// completed so pollers never wait on finished work.
func (s *Service) Status(ctx context.Context, userID, interviewID uuid.UUID) (store.StatusView, error) {
	view, err := s.store.FeedbackStatus(ctx, userID, interviewID)
	if err != nil {
		return store.StatusView{}, err
	}

	if view.FeedbackStatus == interview.FeedbackProcessing {
		if _, fbErr := s.store.GetFeedback(ctx, userID, interviewID); fbErr == nil {
			view.FeedbackStatus = interview.FeedbackCompleted
			view.FeedbackError = ""
		}
	}
	return view, nil
}

// FormatTranscript renders a transcript as the flat dialogue script the
// grading prompt expects, one "Speaker: text" line per utterance.
func FormatTranscript(entries []interview.TranscriptEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", speakerLabel(e.Speaker), e.Text)
	}
	return b.String()
}

func speakerLabel(speaker string) string {
	switch speaker {
	case interview.SpeakerInterviewer:
		return "Interviewer"
	case interview.SpeakerCandidate:
		return "Candidate"
	default:
		return speaker
	}
}

func interviewDuration(sess *interview.Session) time.Duration {
	if sess.EndedAt.IsZero() || sess.EndedAt.Before(sess.StartedAt) {
		return 0
	}
	return sess.EndedAt.Sub(sess.StartedAt)
}
