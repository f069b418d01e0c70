package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/resilience"
	"github.com/oratioapp/oratio/internal/store"
	"github.com/oratioapp/oratio/pkg/provider/score"
	scoremock "github.com/oratioapp/oratio/pkg/provider/score/mock"
)

var errModel = errors.New("model unavailable")

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond})
}

func seedSession(t *testing.T, st *store.MemStore, userID uuid.UUID) uuid.UUID {
	t.Helper()
	sess := &interview.Session{
		ID:             uuid.New(),
		UserID:         userID,
		Role:           "Backend Engineer",
		Seniority:      "Senior",
		Status:         interview.StatusActive,
		FeedbackStatus: interview.FeedbackIdle,
		StartedAt:      time.Now().Add(-20 * time.Minute),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess.ID
}

func sampleTranscript() []interview.TranscriptEntry {
	return []interview.TranscriptEntry{
		{Speaker: interview.SpeakerInterviewer, Text: "Tell me about yourself."},
		{Speaker: interview.SpeakerCandidate, Text: "I build Go services."},
	}
}

func TestService_Queue(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{Card: scoremock.ValidCard()}, "test-model")
	userID := uuid.New()
	id := seedSession(t, st, userID)

	res, err := svc.Queue(context.Background(), QueueRequest{
		UserID:      userID,
		InterviewID: id,
		Transcript:  sampleTranscript(),
		EndedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if !res.Queued || res.Status != interview.FeedbackPending {
		t.Fatalf("result = %+v, want queued pending", res)
	}

	sess, _ := st.GetSession(context.Background(), userID, id)
	if sess.Status != interview.StatusFinished {
		t.Errorf("session status = %v, want finished", sess.Status)
	}
	if len(sess.Transcript) != 2 {
		t.Errorf("transcript entries = %d, want 2", len(sess.Transcript))
	}
}

func TestService_Queue_NormalizesTranscript(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{}, "test-model")
	userID := uuid.New()
	id := seedSession(t, st, userID)

	_, err := svc.Queue(context.Background(), QueueRequest{
		UserID:      userID,
		InterviewID: id,
		Transcript: []interview.TranscriptEntry{
			{Speaker: interview.SpeakerCandidate, Text: "  spaced   out\ttext  "},
			{Speaker: interview.SpeakerInterviewer, Text: "   "},
		},
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	sess, _ := st.GetSession(context.Background(), userID, id)
	if len(sess.Transcript) != 1 {
		t.Fatalf("entries = %d, want 1 (blank dropped)", len(sess.Transcript))
	}
	if sess.Transcript[0].Text != "spaced out text" {
		t.Errorf("text = %q, want collapsed whitespace", sess.Transcript[0].Text)
	}
}

func TestService_Queue_RejectsInvalidTranscript(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{}, "test-model")
	userID := uuid.New()
	id := seedSession(t, st, userID)

	_, err := svc.Queue(context.Background(), QueueRequest{
		UserID:      userID,
		InterviewID: id,
		Transcript: []interview.TranscriptEntry{
			{Speaker: "narrator", Text: "unknown speaker"},
		},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestService_Queue_RejectsWhitespaceOnlyTranscript(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{}, "test-model")
	userID := uuid.New()
	id := seedSession(t, st, userID)

	_, err := svc.Queue(context.Background(), QueueRequest{
		UserID:      userID,
		InterviewID: id,
		Transcript: []interview.TranscriptEntry{
			{Speaker: interview.SpeakerCandidate, Text: "   "},
			{Speaker: interview.SpeakerInterviewer, Text: "\t\n"},
		},
	})
	if err == nil {
		t.Fatal("expected validation error for transcript that normalizes to nothing")
	}

	// The rejected submission must leave the session untouched.
	sess, _ := st.GetSession(context.Background(), userID, id)
	if sess.Status != interview.StatusActive || sess.FeedbackStatus != interview.FeedbackIdle {
		t.Errorf("session moved to %v/%v despite rejection", sess.Status, sess.FeedbackStatus)
	}
}

func TestService_Queue_StagesEmptyLiveSession(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{}, "test-model")
	userID := uuid.New()
	id := seedSession(t, st, userID)

	// No entries at all means the live session captured no dialogue. That
	// stays queueable; the claim answers no_transcript later.
	res, err := svc.Queue(context.Background(), QueueRequest{
		UserID:      userID,
		InterviewID: id,
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if !res.Queued || res.Status != interview.FeedbackPending {
		t.Fatalf("result = %+v, want queued pending", res)
	}

	outcome, err := svc.Process(context.Background(), userID, id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome != store.ClaimNoTranscript {
		t.Errorf("outcome = %v, want no_transcript", outcome)
	}
}

func TestService_Queue_ReusesCompletedFeedback(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{Card: scoremock.ValidCard()}, "test-model", fastRetry())
	userID := uuid.New()
	id := seedSession(t, st, userID)

	ctx := context.Background()
	if _, err := svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript()}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, err := svc.Process(ctx, userID, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	svc.Wait()

	res, err := svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript()})
	if err != nil {
		t.Fatalf("re-queue: %v", err)
	}
	if res.Queued || !res.Reused || res.Status != interview.FeedbackCompleted {
		t.Errorf("result = %+v, want reused completed", res)
	}
}

func TestService_Process_GeneratesScorecard(t *testing.T) {
	st := store.NewMemStore()
	provider := &scoremock.Provider{Card: scoremock.ValidCard()}
	svc := NewService(st, provider, "test-model", fastRetry())
	userID := uuid.New()
	id := seedSession(t, st, userID)

	ctx := context.Background()
	svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript(), EndedAt: time.Now()})

	outcome, err := svc.Process(ctx, userID, id)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome != store.ClaimGranted {
		t.Fatalf("outcome = %v, want granted", outcome)
	}
	svc.Wait()

	fb, err := st.GetFeedback(ctx, userID, id)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	if fb.Model != "test-model" {
		t.Errorf("model = %q, want test-model", fb.Model)
	}
	if fb.Card.Total != scoremock.ValidCard().Total {
		t.Errorf("total = %d, want %d", fb.Card.Total, scoremock.ValidCard().Total)
	}

	if len(provider.ScoreCalls) != 1 {
		t.Fatalf("score calls = %d, want 1", len(provider.ScoreCalls))
	}
	req := provider.ScoreCalls[0]
	if req.Role != "Backend Engineer" || req.Seniority != "Senior" {
		t.Errorf("request role/seniority = %q/%q", req.Role, req.Seniority)
	}
	if !strings.Contains(req.Transcript, "Interviewer: Tell me about yourself.") {
		t.Errorf("transcript script missing interviewer line: %q", req.Transcript)
	}
	if req.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", req.Duration)
	}
}

func TestService_Process_FailureMarksFailed(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{ScoreErr: errModel}, "test-model", fastRetry())
	userID := uuid.New()
	id := seedSession(t, st, userID)

	ctx := context.Background()
	svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript()})

	if outcome, _ := svc.Process(ctx, userID, id); outcome != store.ClaimGranted {
		t.Fatalf("outcome = %v", outcome)
	}
	svc.Wait()

	view, _ := svc.Status(ctx, userID, id)
	if view.FeedbackStatus != interview.FeedbackFailed {
		t.Fatalf("status = %v, want failed", view.FeedbackStatus)
	}
	if !strings.Contains(view.FeedbackError, "model unavailable") {
		t.Errorf("error = %q, want cause recorded", view.FeedbackError)
	}
}

func TestService_Process_RetriesTransientFailures(t *testing.T) {
	st := store.NewMemStore()
	calls := 0
	provider := &scoremock.Provider{
		ScoreFunc: func(context.Context, score.Request) (*score.Card, error) {
			calls++
			if calls < 3 {
				return nil, errModel
			}
			return scoremock.ValidCard(), nil
		},
	}
	svc := NewService(st, provider, "test-model", fastRetry())
	userID := uuid.New()
	id := seedSession(t, st, userID)

	ctx := context.Background()
	svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript()})
	svc.Process(ctx, userID, id)
	svc.Wait()

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	view, _ := svc.Status(ctx, userID, id)
	if view.FeedbackStatus != interview.FeedbackCompleted {
		t.Errorf("status = %v, want completed", view.FeedbackStatus)
	}
}

func TestService_Process_FailedSessionReclaimable(t *testing.T) {
	st := store.NewMemStore()
	provider := &scoremock.Provider{ScoreErr: errModel}
	svc := NewService(st, provider, "test-model", fastRetry())
	userID := uuid.New()
	id := seedSession(t, st, userID)

	ctx := context.Background()
	svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id, Transcript: sampleTranscript()})
	svc.Process(ctx, userID, id)
	svc.Wait()

	// Provider recovers; the failed session can be processed again.
	provider.ScoreErr = nil
	provider.Card = scoremock.ValidCard()

	outcome, err := svc.Process(ctx, userID, id)
	if err != nil || outcome != store.ClaimGranted {
		t.Fatalf("reclaim = %v, %v; want granted", outcome, err)
	}
	svc.Wait()

	view, _ := svc.Status(ctx, userID, id)
	if view.FeedbackStatus != interview.FeedbackCompleted {
		t.Errorf("status = %v, want completed", view.FeedbackStatus)
	}
}

func TestService_Process_NonGrantedOutcomes(t *testing.T) {
	st := store.NewMemStore()
	provider := &scoremock.Provider{Card: scoremock.ValidCard()}
	svc := NewService(st, provider, "test-model", fastRetry())
	userID := uuid.New()
	ctx := context.Background()

	t.Run("not queued", func(t *testing.T) {
		id := seedSession(t, st, userID)
		outcome, err := svc.Process(ctx, userID, id)
		if err != nil || outcome != store.ClaimNotQueued {
			t.Errorf("outcome = %v, %v", outcome, err)
		}
	})

	t.Run("no transcript never reaches the model", func(t *testing.T) {
		id := seedSession(t, st, userID)
		svc.Queue(ctx, QueueRequest{UserID: userID, InterviewID: id})
		before := provider.CallCount()

		outcome, err := svc.Process(ctx, userID, id)
		if err != nil || outcome != store.ClaimNoTranscript {
			t.Fatalf("outcome = %v, %v", outcome, err)
		}
		svc.Wait()
		if provider.CallCount() != before {
			t.Error("model was called for an empty interview")
		}
	})
}

func TestService_Process_UnknownSession(t *testing.T) {
	st := store.NewMemStore()
	svc := NewService(st, &scoremock.Provider{}, "test-model")

	_, err := svc.Process(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// staleStore reports processing while already holding a scorecard, the shape
// a crashed worker leaves behind.
type staleStore struct {
	store.SessionStore
	fb *interview.Feedback
}

func (s *staleStore) FeedbackStatus(context.Context, uuid.UUID, uuid.UUID) (store.StatusView, error) {
	return store.StatusView{
		SessionStatus:  interview.StatusFinished,
		FeedbackStatus: interview.FeedbackProcessing,
		HasTranscript:  true,
	}, nil
}

func (s *staleStore) GetFeedback(context.Context, uuid.UUID, uuid.UUID) (*interview.Feedback, error) {
	return s.fb, nil
}

func TestService_Status_ReconcilesStaleProcessing(t *testing.T) {
	st := &staleStore{
		SessionStore: store.NewMemStore(),
		fb:           &interview.Feedback{Card: *scoremock.ValidCard(), GeneratedAt: time.Now()},
	}
	svc := NewService(st, &scoremock.Provider{}, "test-model")

	view, err := svc.Status(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.FeedbackStatus != interview.FeedbackCompleted {
		t.Errorf("status = %v, want completed (reconciled)", view.FeedbackStatus)
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript(sampleTranscript())
	want := "Interviewer: Tell me about yourself.\nCandidate: I build Go services."
	if got != want {
		t.Errorf("script = %q, want %q", got, want)
	}

	if FormatTranscript(nil) != "" {
		t.Error("empty transcript should render empty script")
	}
}
