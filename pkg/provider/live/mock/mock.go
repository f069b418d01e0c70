// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect and MintToken calls and feed controlled
// sessions. Use Session to drive the bidirectional audio/transcript streams
// and inspect which methods the caller invoked.
//
// Example:
//
//	sess := &mock.Session{
//	    AudioCh:       make(chan string, 8),
//	    TranscriptsCh: make(chan live.Utterance, 4),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/oratioapp/oratio/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a new default Session with buffered channels.
	Session live.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Token is returned by MintToken.
	Token live.Token

	// MintTokenErr, if non-nil, is returned as the error from MintToken.
	MintTokenErr error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities live.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// MintTokenCallCount is the number of times MintToken was called.
	MintTokenCallCount int
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		AudioCh:       make(chan string, 64),
		TranscriptsCh: make(chan live.Utterance, 16),
	}, nil
}

// MintToken records the call and returns Token, MintTokenErr.
func (p *Provider) MintToken(ctx context.Context) (live.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MintTokenCallCount++
	if p.MintTokenErr != nil {
		return live.Token{}, p.MintTokenErr
	}
	return p.Token, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() live.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.MintTokenCallCount = 0
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.SessionHandle.
// Callers should pre-populate AudioCh and TranscriptsCh, then close them to
// signal end-of-session.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel.
	AudioCh chan string

	// TranscriptsCh is the channel returned by Transcripts(). Callers own
	// this channel.
	TranscriptsCh chan live.Utterance

	// errorHandler is the currently registered error callback.
	errorHandler func(error)

	// SessionErr is returned by Err.
	SessionErr error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// InterruptErr, if non-nil, is returned by every Interrupt call.
	InterruptErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records every frame passed to SendAudio in order.
	SendAudioCalls []string

	// InterruptCallCount is the number of times Interrupt was called.
	InterruptCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(encoded string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, encoded)
	return s.SendAudioErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Err returns SessionErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Transcripts returns TranscriptsCh.
func (s *Session) Transcripts() <-chan live.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TranscriptsCh
}

// OnError stores the handler.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// Handler returns the currently registered error callback. Thread-safe.
func (s *Session) Handler() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorHandler
}

// SendAudioCount returns how many frames SendAudio received. Thread-safe.
func (s *Session) SendAudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Interrupt records the call and returns InterruptErr.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCallCount++
	return s.InterruptErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.InterruptCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements live.SessionHandle at compile time.
var _ live.SessionHandle = (*Session)(nil)
