// Package liveclient orchestrates one live practice interview: microphone
// capture into the realtime voice session, model audio into the speaker,
// transcripts into the accumulator, and the feedback hand-off when the
// interview ends.
package liveclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/internal/auth"
	"github.com/oratioapp/oratio/internal/feedback"
	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/store"
	"github.com/oratioapp/oratio/internal/transcript"
	"github.com/oratioapp/oratio/pkg/audio/capture"
	"github.com/oratioapp/oratio/pkg/audio/playback"
	"github.com/oratioapp/oratio/pkg/provider/live"
)

const (
	// defaultPollInterval is how often Finish polls the feedback status.
	defaultPollInterval = 2500 * time.Millisecond

	// pollRequestTimeout bounds a single status poll.
	pollRequestTimeout = 2 * time.Second

	// speechTail is how long after the last received audio delta the model
	// still counts as speaking for barge-in purposes.
	speechTail = time.Second
)

// FeedbackAPI is the slice of the feedback workflow the client drives after
// an interview ends. [feedback.Service] satisfies it.
type FeedbackAPI interface {
	Queue(ctx context.Context, req feedback.QueueRequest) (feedback.QueueResult, error)
	Process(ctx context.Context, userID, interviewID uuid.UUID) (store.ClaimOutcome, error)
	Status(ctx context.Context, userID, interviewID uuid.UUID) (store.StatusView, error)
}

// Config wires a [Client].
type Config struct {
	Provider live.Provider
	Capturer *capture.Capturer
	Player   *playback.Player
	Tokens   *auth.Tokens
	Registry auth.Registry
	Feedback FeedbackAPI

	// Session is passed to the provider on connect.
	Session live.SessionConfig

	// PollInterval overrides the feedback status poll cadence. Zero means
	// the default.
	PollInterval time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Client runs one live interview end to end. Not safe for concurrent Start
// calls; the audio loops it spawns are internally synchronised.
type Client struct {
	cfg     Config
	acc     *transcript.Accumulator
	metrics *observe.Metrics

	mu          sync.Mutex
	session     live.SessionHandle
	interviewID uuid.UUID
	userID      uuid.UUID
	started     bool
	finished    bool
	lastAudio   time.Time

	loops sync.WaitGroup
}

// New creates a Client. The transcript accumulator is created fresh so each
// Client covers exactly one interview.
func New(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Client{cfg: cfg, acc: transcript.New(), metrics: m}
}

// Start verifies and redeems the single-use session token, connects to the
// realtime provider and begins streaming microphone audio. A token that was
// already used fails with [auth.ErrTokenUsed].
func (c *Client) Start(ctx context.Context, interviewID uuid.UUID, sessionToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("liveclient: already started")
	}

	claims, err := c.cfg.Tokens.Verify(sessionToken)
	if err != nil {
		return fmt.Errorf("liveclient: session token: %w", err)
	}
	if err := c.cfg.Registry.Redeem(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		return fmt.Errorf("liveclient: session token: %w", err)
	}

	session, err := c.cfg.Provider.Connect(ctx, c.cfg.Session)
	if err != nil {
		return fmt.Errorf("liveclient: connect: %w", err)
	}

	session.OnError(func(err error) {
		slog.Error("live session error", "interview_id", interviewID, "error", err)
	})

	if err := c.cfg.Capturer.Start(ctx, c.onFrame); err != nil {
		session.Close()
		return fmt.Errorf("liveclient: %w", err)
	}

	c.session = session
	c.interviewID = interviewID
	c.userID = claims.UserID
	c.started = true
	c.metrics.ActiveLiveSessions.Add(ctx, 1)

	c.loops.Go(func() { c.playbackLoop(session) })
	c.loops.Go(func() { c.transcriptLoop(session) })
	return nil
}

// onFrame forwards one captured frame to the session, barging in first when
// the model is still speaking.
func (c *Client) onFrame(encoded string) {
	c.mu.Lock()
	session := c.session
	speaking := time.Since(c.lastAudio) < speechTail
	if speaking {
		c.lastAudio = time.Time{}
	}
	c.mu.Unlock()
	if session == nil {
		return
	}

	if speaking {
		c.cfg.Player.Clear()
		if err := session.Interrupt(); err != nil {
			slog.Warn("barge-in interrupt failed", "error", err)
		}
	}

	if err := session.SendAudio(encoded); err != nil {
		c.metrics.FramesDropped.Add(context.Background(), 1)
		slog.Warn("sending audio frame failed", "error", err)
		return
	}
	c.metrics.FramesSent.Add(context.Background(), 1)
}

// playbackLoop feeds model audio deltas straight into the player until the
// session's audio channel closes.
func (c *Client) playbackLoop(session live.SessionHandle) {
	for encoded := range session.Audio() {
		c.mu.Lock()
		c.lastAudio = time.Now()
		c.mu.Unlock()
		c.cfg.Player.Enqueue(encoded)
	}
}

// transcriptLoop feeds utterances into the accumulator until the session's
// transcript channel closes.
func (c *Client) transcriptLoop(session live.SessionHandle) {
	for u := range session.Transcripts() {
		c.acc.Add(u)
	}
}

// Result is what Finish reports once the feedback workflow reaches a
// terminal state.
type Result struct {
	Transcript []interview.TranscriptEntry
	Status     interview.FeedbackStatus
	Error      string
}

// Finish ends the live session, freezes the transcript, submits it for
// feedback and polls until generation completes or fails. Transient poll
// errors are tolerated; ctx bounds the overall wait.
func (c *Client) Finish(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if !c.started || c.finished {
		c.mu.Unlock()
		return nil, errors.New("liveclient: no running session")
	}
	c.finished = true
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if err := c.cfg.Capturer.Stop(); err != nil {
		slog.Warn("stopping capture failed", "error", err)
	}
	if err := session.Close(); err != nil {
		slog.Warn("closing live session failed", "error", err)
	}
	c.loops.Wait()
	c.cfg.Player.Clear()
	c.metrics.ActiveLiveSessions.Add(ctx, -1)

	entries := c.acc.Freeze()
	endedAt := time.Now().UTC()

	if _, err := c.cfg.Feedback.Queue(ctx, feedback.QueueRequest{
		UserID:      c.userID,
		InterviewID: c.interviewID,
		Transcript:  entries,
		EndedAt:     endedAt,
	}); err != nil {
		return nil, fmt.Errorf("liveclient: queue feedback: %w", err)
	}

	outcome, err := c.cfg.Feedback.Process(ctx, c.userID, c.interviewID)
	if err != nil {
		return nil, fmt.Errorf("liveclient: process feedback: %w", err)
	}
	if outcome == store.ClaimNoTranscript {
		return &Result{Transcript: entries, Status: interview.FeedbackPending,
			Error: "no dialogue was captured"}, nil
	}

	view, err := c.pollUntilTerminal(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Transcript: entries,
		Status:     view.FeedbackStatus,
		Error:      view.FeedbackError,
	}, nil
}

// pollUntilTerminal polls the feedback status until it reaches completed or
// failed. Individual poll failures are logged and retried on the next tick.
func (c *Client) pollUntilTerminal(ctx context.Context) (store.StatusView, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pollCtx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
		view, err := c.cfg.Feedback.Status(pollCtx, c.userID, c.interviewID)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return store.StatusView{}, ctx.Err()
			}
			slog.Debug("feedback status poll failed", "error", err)
		} else if view.FeedbackStatus == interview.FeedbackCompleted ||
			view.FeedbackStatus == interview.FeedbackFailed {
			return view, nil
		}

		select {
		case <-ctx.Done():
			return store.StatusView{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Transcript returns a snapshot of the dialogue captured so far.
func (c *Client) Transcript() []interview.TranscriptEntry {
	return c.acc.Entries()
}
