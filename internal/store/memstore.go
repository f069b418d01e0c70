package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/interview"
)

// Compile-time interface checks.
var (
	_ SessionStore  = (*MemStore)(nil)
	_ TemplateStore = (*MemStore)(nil)
)

// MemStore is an in-memory SessionStore guarded by a single mutex. The mutex
// is what makes the claim atomic: checking the current status and moving to
// processing happen under one critical section, so concurrent claims on the
// same session serialise and exactly one is granted.
type MemStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*interview.Session
	templates map[uuid.UUID]*interview.Template
	order     []uuid.UUID // template insertion order
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:  make(map[uuid.UUID]*interview.Session),
		templates: make(map[uuid.UUID]*interview.Template),
	}
}

// CreateSession implements [SessionStore].
func (m *MemStore) CreateSession(_ context.Context, s *interview.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneSession(s)
	m.sessions[cp.ID] = cp
	return nil
}

// getLocked fetches and ownership-checks a session. Must hold m.mu.
func (m *MemStore) getLocked(userID, id uuid.UUID) (*interview.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.UserID != userID {
		return nil, ErrNotOwner
	}
	return s, nil
}

// GetSession implements [SessionStore].
func (m *MemStore) GetSession(_ context.Context, userID, id uuid.UUID) (*interview.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

// FinishSession implements [SessionStore].
func (m *MemStore) FinishSession(_ context.Context, userID, id uuid.UUID, transcript []interview.TranscriptEntry, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return err
	}
	if s.Status == interview.StatusFinished {
		return nil
	}
	s.Status = interview.StatusFinished
	s.Transcript = append([]interview.TranscriptEntry(nil), transcript...)
	s.EndedAt = endedAt
	s.UpdatedAt = time.Now()
	return nil
}

// QueueFeedback implements [SessionStore].
func (m *MemStore) QueueFeedback(_ context.Context, userID, id uuid.UUID) (interview.FeedbackStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return "", err
	}
	if s.FeedbackStatus == interview.FeedbackIdle {
		s.FeedbackStatus = interview.FeedbackPending
		s.FeedbackRequestedAt = time.Now()
		s.UpdatedAt = s.FeedbackRequestedAt
	}
	return s.FeedbackStatus, nil
}

// ClaimFeedback implements [SessionStore].
func (m *MemStore) ClaimFeedback(_ context.Context, userID, id uuid.UUID) (ClaimOutcome, *interview.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return "", nil, err
	}

	switch s.FeedbackStatus {
	case interview.FeedbackProcessing:
		return ClaimAlreadyProcessing, nil, nil
	case interview.FeedbackCompleted:
		return ClaimAlreadyCompleted, nil, nil
	case interview.FeedbackIdle:
		return ClaimNotQueued, nil, nil
	}

	// pending or failed from here on.
	if !s.HasTranscript() {
		return ClaimNoTranscript, nil, nil
	}

	s.FeedbackStatus = interview.FeedbackProcessing
	s.FeedbackError = ""
	s.FeedbackProcessingAt = time.Now()
	s.UpdatedAt = s.FeedbackProcessingAt
	return ClaimGranted, cloneSession(s), nil
}

// CompleteFeedback implements [SessionStore].
func (m *MemStore) CompleteFeedback(_ context.Context, id uuid.UUID, fb *interview.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.FeedbackStatus != interview.FeedbackProcessing {
		return ErrInvalidTransition
	}
	cp := *fb
	s.Feedback = &cp
	s.FeedbackStatus = interview.FeedbackCompleted
	s.FeedbackError = ""
	s.FeedbackCompletedAt = time.Now()
	s.UpdatedAt = s.FeedbackCompletedAt
	return nil
}

// FailFeedback implements [SessionStore].
func (m *MemStore) FailFeedback(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.FeedbackStatus != interview.FeedbackProcessing {
		return ErrInvalidTransition
	}
	s.FeedbackStatus = interview.FeedbackFailed
	s.FeedbackError = message
	s.UpdatedAt = time.Now()
	return nil
}

// FeedbackStatus implements [SessionStore].
func (m *MemStore) FeedbackStatus(_ context.Context, userID, id uuid.UUID) (StatusView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		SessionStatus:  s.Status,
		FeedbackStatus: s.FeedbackStatus,
		FeedbackError:  s.FeedbackError,
		HasTranscript:  s.HasTranscript(),
	}, nil
}

// GetFeedback implements [SessionStore].
func (m *MemStore) GetFeedback(_ context.Context, userID, id uuid.UUID) (*interview.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getLocked(userID, id)
	if err != nil {
		return nil, err
	}
	if s.Feedback == nil {
		return nil, ErrNotFound
	}
	cp := *s.Feedback
	return &cp, nil
}

// CreateTemplate implements [TemplateStore].
func (m *MemStore) CreateTemplate(_ context.Context, t *interview.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneTemplate(t)
	m.templates[cp.ID] = cp
	m.order = append(m.order, cp.ID)
	return nil
}

// GetTemplate implements [TemplateStore].
func (m *MemStore) GetTemplate(_ context.Context, id uuid.UUID) (*interview.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTemplate(t), nil
}

// ListTemplates implements [TemplateStore].
func (m *MemStore) ListTemplates(_ context.Context) ([]*interview.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*interview.Template, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneTemplate(m.templates[id]))
	}
	return out, nil
}

func cloneTemplate(t *interview.Template) *interview.Template {
	cp := *t
	cp.Questions = append([]string(nil), t.Questions...)
	return &cp
}

// cloneSession deep-copies a session so callers never share memory with the
// store's internal state.
func cloneSession(s *interview.Session) *interview.Session {
	cp := *s
	cp.Transcript = append([]interview.TranscriptEntry(nil), s.Transcript...)
	if s.TemplateID != nil {
		id := *s.TemplateID
		cp.TemplateID = &id
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		cp.Feedback = &fb
	}
	return &cp
}
