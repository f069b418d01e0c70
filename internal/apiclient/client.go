// Package apiclient is a typed HTTP client for the Oratio API. It speaks the
// server's envelope protocol and maps the error taxonomy back onto the store
// sentinels, so the live client can drive the feedback workflow over HTTP
// with the same semantics it gets from an in-process [feedback.Service].
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/api"
	"github.com/oratioapp/oratio/internal/feedback"
	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/liveclient"
	"github.com/oratioapp/oratio/internal/store"
)

// Compile-time check: the client can stand in for the in-process service.
var _ liveclient.FeedbackAPI = (*Client)(nil)

// defaultTimeout bounds one request when no custom HTTP client is supplied.
const defaultTimeout = 30 * time.Second

// maxResponseBytes caps response bodies. Scorecards and transcripts are the
// largest payloads and stay well under this.
const maxResponseBytes = 4 << 20

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

// Client talks to one Oratio server on behalf of one authenticated user.
// The zero value is not usable; construct it with [New].
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, e.g. to add a proxy or a
// custom TLS config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the server at baseURL authenticating with the
// given bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one JSON request and decodes the success payload into out. Error
// envelopes come back as [*APIError].
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *api.ErrorInfo  `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return fmt.Errorf("apiclient: decode response (http %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: api.CodeInternal, Message: "unknown error"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("apiclient: decode payload: %w", err)
		}
	}
	return nil
}

// mapStoreError converts the API error taxonomy back onto store sentinels so
// callers can keep using errors.Is the way they do against a local store.
func mapStoreError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case api.CodeNotFound:
		return fmt.Errorf("apiclient: %s: %w", apiErr.Message, store.ErrNotFound)
	case api.CodeForbidden:
		return fmt.Errorf("apiclient: %s: %w", apiErr.Message, store.ErrNotOwner)
	case api.CodeConflict:
		return fmt.Errorf("apiclient: %s: %w", apiErr.Message, store.ErrInvalidTransition)
	}
	return err
}

// CreateInterviewRequest starts a new practice interview. Either Role or
// TemplateID must be set; an explicit Role wins over the template's.
type CreateInterviewRequest struct {
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
	Role       string     `json:"role,omitempty"`
	Seniority  string     `json:"seniority,omitempty"`
}

// CreateInterview creates a session and returns the server's view of it.
func (c *Client) CreateInterview(ctx context.Context, req CreateInterviewRequest) (*interview.Session, error) {
	var sess interview.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/interviews", req, &sess); err != nil {
		return nil, mapStoreError(err)
	}
	return &sess, nil
}

// GetInterview fetches a session the authenticated user owns.
func (c *Client) GetInterview(ctx context.Context, id uuid.UUID) (*interview.Session, error) {
	var sess interview.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/interviews/"+id.String(), nil, &sess); err != nil {
		return nil, mapStoreError(err)
	}
	return &sess, nil
}

// CreateTemplate stores a reusable interview template.
func (c *Client) CreateTemplate(ctx context.Context, tmpl interview.Template) (*interview.Template, error) {
	var created interview.Template
	if err := c.do(ctx, http.MethodPost, "/api/v1/templates", tmpl, &created); err != nil {
		return nil, mapStoreError(err)
	}
	return &created, nil
}

// ListTemplates returns all stored templates.
func (c *Client) ListTemplates(ctx context.Context) ([]*interview.Template, error) {
	var tmpls []*interview.Template
	if err := c.do(ctx, http.MethodGet, "/api/v1/templates", nil, &tmpls); err != nil {
		return nil, mapStoreError(err)
	}
	return tmpls, nil
}

// LiveCredentials is everything needed to start a live interview: the
// provider's ephemeral secret, the single-use Oratio session token, and the
// interviewer instructions rendered server-side.
type LiveCredentials struct {
	ProviderToken     string    `json:"provider_token"`
	ProviderExpiresAt time.Time `json:"provider_expires_at"`
	SessionToken      string    `json:"session_token"`
	Instructions      string    `json:"instructions"`
}

// MintLiveToken requests live-session credentials. When interviewID is
// non-nil the response carries the rendered interviewer instructions for
// that session.
func (c *Client) MintLiveToken(ctx context.Context, interviewID *uuid.UUID) (LiveCredentials, error) {
	body := struct {
		InterviewID *uuid.UUID `json:"interview_id,omitempty"`
	}{InterviewID: interviewID}

	var creds LiveCredentials
	if err := c.do(ctx, http.MethodPost, "/api/v1/live/token", body, &creds); err != nil {
		return LiveCredentials{}, mapStoreError(err)
	}
	return creds, nil
}

// Queue implements [liveclient.FeedbackAPI]. The userID inside req is
// ignored; the server derives identity from the bearer token.
func (c *Client) Queue(ctx context.Context, req feedback.QueueRequest) (feedback.QueueResult, error) {
	body := struct {
		Transcript []interview.TranscriptEntry `json:"transcript"`
		EndedAt    time.Time                   `json:"ended_at"`
	}{Transcript: req.Transcript, EndedAt: req.EndedAt}

	var res feedback.QueueResult
	path := "/api/v1/interviews/" + req.InterviewID.String() + "/feedback"
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return feedback.QueueResult{}, mapStoreError(err)
	}
	return res, nil
}

// Process implements [liveclient.FeedbackAPI]. The userID parameter is
// ignored; the server derives identity from the bearer token. Outcomes the
// server reports as errors (no transcript, never queued) are translated back
// into their claim outcomes.
func (c *Client) Process(ctx context.Context, _ uuid.UUID, interviewID uuid.UUID) (store.ClaimOutcome, error) {
	var res struct {
		Outcome store.ClaimOutcome `json:"outcome"`
	}
	path := "/api/v1/interviews/" + interviewID.String() + "/process"
	err := c.do(ctx, http.MethodPost, path, nil, &res)
	if err == nil {
		return res.Outcome, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusBadRequest && apiErr.Code == api.CodeBadRequest:
			return store.ClaimNoTranscript, nil
		case apiErr.StatusCode == http.StatusConflict && apiErr.Code == api.CodeConflict:
			return store.ClaimNotQueued, nil
		}
	}
	return "", mapStoreError(err)
}

// Status implements [liveclient.FeedbackAPI]. The userID parameter is
// ignored; the server derives identity from the bearer token.
func (c *Client) Status(ctx context.Context, _ uuid.UUID, interviewID uuid.UUID) (store.StatusView, error) {
	var res struct {
		SessionStatus  interview.Status         `json:"session_status"`
		FeedbackStatus interview.FeedbackStatus `json:"feedback_status"`
		FeedbackError  string                   `json:"feedback_error"`
		HasTranscript  bool                     `json:"has_transcript"`
	}
	path := "/api/v1/interviews/" + interviewID.String() + "/feedback/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return store.StatusView{}, mapStoreError(err)
	}
	return store.StatusView{
		SessionStatus:  res.SessionStatus,
		FeedbackStatus: res.FeedbackStatus,
		FeedbackError:  res.FeedbackError,
		HasTranscript:  res.HasTranscript,
	}, nil
}

// GetFeedback fetches the stored scorecard once generation completed.
func (c *Client) GetFeedback(ctx context.Context, interviewID uuid.UUID) (*interview.Feedback, error) {
	var fb interview.Feedback
	path := "/api/v1/interviews/" + interviewID.String() + "/feedback"
	if err := c.do(ctx, http.MethodGet, path, nil, &fb); err != nil {
		return nil, mapStoreError(err)
	}
	return &fb, nil
}
