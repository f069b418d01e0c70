package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/auth"
	"github.com/oratioapp/oratio/internal/feedback"
	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/store"
)

// maxBodyBytes caps request bodies. Transcripts dominate; 300 entries of
// 2000 chars fit comfortably.
const maxBodyBytes = 2 << 20

type createTemplateRequest struct {
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Seniority string   `json:"seniority"`
	Persona   string   `json:"persona"`
	Questions []string `json:"questions"`
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tmpl := &interview.Template{
		ID:        uuid.New(),
		Name:      req.Name,
		Role:      req.Role,
		Seniority: req.Seniority,
		Persona:   req.Persona,
		Questions: req.Questions,
		CreatedAt: time.Now().UTC(),
	}
	if err := tmpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := s.templates.CreateTemplate(r.Context(), tmpl); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, tmpl)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	tmpls, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if tmpls == nil {
		tmpls = []*interview.Template{}
	}
	writeData(w, http.StatusOK, tmpls)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	tmpl, err := s.templates.GetTemplate(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "template not found")
			return
		}
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tmpl)
}

type createInterviewRequest struct {
	// TemplateID creates the session from a stored template; role and
	// seniority are inherited and need not be supplied.
	TemplateID *uuid.UUID `json:"template_id"`

	Role      string `json:"role"`
	Seniority string `json:"seniority"`
}

func (s *Server) createInterview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req createInterviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.TemplateID != nil {
		tmpl, err := s.templates.GetTemplate(r.Context(), *req.TemplateID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, CodeNotFound, "template not found")
				return
			}
			s.storeError(w, r, err)
			return
		}
		if req.Role == "" {
			req.Role = tmpl.Role
		}
		if req.Seniority == "" {
			req.Seniority = tmpl.Seniority
		}
	}
	if req.Role == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "role or template_id is required")
		return
	}

	now := time.Now().UTC()
	sess := &interview.Session{
		ID:             uuid.New(),
		UserID:         userID,
		TemplateID:     req.TemplateID,
		Role:           req.Role,
		Seniority:      req.Seniority,
		Status:         interview.StatusActive,
		FeedbackStatus: interview.FeedbackIdle,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sess)
}

func (s *Server) getInterview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sess, err := s.store.GetSession(r.Context(), userID, id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

type queueFeedbackRequest struct {
	Transcript []interview.TranscriptEntry `json:"transcript"`
	EndedAt    time.Time                   `json:"ended_at"`
}

func (s *Server) queueFeedback(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req queueFeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.feedback.Queue(r.Context(), feedback.QueueRequest{
		UserID:      userID,
		InterviewID: id,
		Transcript:  req.Transcript,
		EndedAt:     req.EndedAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
			s.storeError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	status := http.StatusAccepted
	if res.Reused {
		status = http.StatusOK
	}
	writeData(w, status, res)
}

type processResponse struct {
	Outcome store.ClaimOutcome       `json:"outcome"`
	Status  interview.FeedbackStatus `json:"status"`
	Reused  bool                     `json:"reused,omitempty"`
}

func (s *Server) processFeedback(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	outcome, err := s.feedback.Process(r.Context(), userID, id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.metrics.RecordClaim(r.Context(), string(outcome))

	switch outcome {
	case store.ClaimGranted, store.ClaimAlreadyProcessing:
		writeData(w, http.StatusAccepted, processResponse{
			Outcome: outcome,
			Status:  interview.FeedbackProcessing,
		})
	case store.ClaimAlreadyCompleted:
		writeData(w, http.StatusOK, processResponse{
			Outcome: outcome,
			Status:  interview.FeedbackCompleted,
			Reused:  true,
		})
	case store.ClaimNoTranscript:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "interview has no transcript")
	case store.ClaimNotQueued:
		writeError(w, http.StatusConflict, CodeConflict, "feedback has not been queued")
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, "unexpected claim outcome")
	}
}

type statusResponse struct {
	SessionStatus  interview.Status         `json:"session_status"`
	FeedbackStatus interview.FeedbackStatus `json:"feedback_status"`
	FeedbackError  string                   `json:"feedback_error,omitempty"`
	HasTranscript  bool                     `json:"has_transcript"`
}

func (s *Server) feedbackStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := s.feedback.Status(r.Context(), userID, id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, statusResponse{
		SessionStatus:  view.SessionStatus,
		FeedbackStatus: view.FeedbackStatus,
		FeedbackError:  view.FeedbackError,
		HasTranscript:  view.HasTranscript,
	})
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	fb, err := s.store.GetFeedback(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "no feedback for this interview yet")
			return
		}
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, fb)
}

type liveTokenRequest struct {
	// InterviewID, when set, has the server render the interviewer
	// instructions for that session into the response.
	InterviewID *uuid.UUID `json:"interview_id"`
}

type liveTokenResponse struct {
	// ProviderToken is the ephemeral client secret for connecting directly
	// to the realtime voice provider.
	ProviderToken     string    `json:"provider_token"`
	ProviderExpiresAt time.Time `json:"provider_expires_at"`

	// SessionToken is the single-use Oratio credential presented when
	// starting the live session. Each token starts at most one session.
	SessionToken string `json:"session_token"`

	// Instructions is the system prompt for the live interviewer, derived
	// from the interview's role and template. Empty when no interview_id
	// was supplied.
	Instructions string `json:"instructions,omitempty"`
}

// liveInstructions renders the interviewer prompt for a session, folding in
// the persona and questions of its template when it has one.
func (s *Server) liveInstructions(r *http.Request, userID, interviewID uuid.UUID) (string, error) {
	sess, err := s.store.GetSession(r.Context(), userID, interviewID)
	if err != nil {
		return "", err
	}
	tmpl := interview.Template{Role: sess.Role, Seniority: sess.Seniority}
	if sess.TemplateID != nil {
		stored, err := s.templates.GetTemplate(r.Context(), *sess.TemplateID)
		if err == nil {
			tmpl.Persona = stored.Persona
			tmpl.Questions = stored.Questions
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}
	return tmpl.Instructions(), nil
}

func (s *Server) mintLiveToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req liveTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var instructions string
	if req.InterviewID != nil {
		var err error
		instructions, err = s.liveInstructions(r, userID, *req.InterviewID)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
	}

	providerTok, err := s.live.MintToken(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("minting provider token failed", "error", err)
		writeError(w, http.StatusBadGateway, CodeInternal, "live provider unavailable")
		return
	}

	sessionTok, err := s.tokens.MintLive(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "minting session token failed")
		return
	}

	writeData(w, http.StatusOK, liveTokenResponse{
		ProviderToken:     providerTok.Value,
		ProviderExpiresAt: providerTok.ExpiresAt,
		SessionToken:      sessionTok,
		Instructions:      instructions,
	})
}

// pathID parses the {id} path segment.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid id in path")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON request body, answering 400 on failure. An empty
// body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed request body")
		return false
	}
	return true
}

// storeError maps store sentinel errors onto the HTTP error taxonomy.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "interview not found")
	case errors.Is(err, store.ErrNotOwner):
		writeError(w, http.StatusForbidden, CodeForbidden, "interview belongs to another user")
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, CodeConflict, "feedback state does not permit this operation")
	default:
		observe.Logger(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
