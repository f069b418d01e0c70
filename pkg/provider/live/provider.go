// Package live defines the Provider interface for realtime voice interview
// backends.
//
// A live provider wraps a speech-to-speech service that accepts candidate
// audio and returns the interviewer's synthesised voice in a single stateful
// session. The central abstraction is SessionHandle: a bidirectional,
// multiplexed channel carrying audio frames and transcript utterances
// concurrently. Sessions are long-lived (an interview runs for minutes) and
// support barge-in interruption.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	// SpeakerCandidate is the human being interviewed.
	SpeakerCandidate Speaker = "candidate"

	// SpeakerInterviewer is the AI interviewer.
	SpeakerInterviewer Speaker = "interviewer"
)

// Utterance is a transcript fragment emitted by the session.
//
// Interviewer speech streams as a growing partial (Final false, Text holding
// everything spoken so far in the current turn) followed by one final
// utterance when the turn completes. Candidate speech arrives final only.
type Utterance struct {
	Speaker   Speaker
	Text      string
	Final     bool
	Timestamp time.Time
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice selects the interviewer's voice. Empty uses the provider default.
	Voice string

	// Instructions is the system-level prompt defining the interviewer's
	// persona, the role being interviewed for, and behavioural constraints.
	Instructions string
}

// Token is a short-lived credential minted for a single live session.
// It is handed to the client so the long-lived API key never leaves the
// server.
type Token struct {
	// Value is the opaque credential string.
	Value string

	// ExpiresAt is when the provider stops accepting the token.
	ExpiresAt time.Time
}

// Capabilities describes static properties of a live provider.
type Capabilities struct {
	// MaxSessionDuration is the provider's hard limit on session lifetime.
	// Zero means no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the interviewer voices the provider offers.
	Voices []string
}

// SessionHandle represents an open live session.
//
// The session is the hot path of the interview pipeline; every method must
// return quickly. Audio I/O is channel-based so the caller's audio goroutines
// never block on the network. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one base64-encoded 16 kHz mono PCM16 frame of
	// candidate speech, as produced by the capture pipeline. Returns an error
	// if the session is closed or the provider cannot accept the frame.
	SendAudio(encoded string) error

	// Audio returns a read-only channel emitting base64-encoded 24 kHz mono
	// PCM16 frames of interviewer speech, ready for the playback pipeline.
	// The channel is closed when the session ends or a mid-stream error
	// occurs; check [SessionHandle.Err] afterwards. Consumers must drain
	// promptly so backpressure does not stall the receive loop.
	Audio() <-chan string

	// Err returns the error that caused the Audio channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Transcripts returns a read-only channel emitting utterances for both
	// candidate speech (as recognised by the model) and interviewer responses.
	// The channel is closed when the session ends.
	Transcripts() <-chan Utterance

	// OnError registers a callback for non-fatal error events from the
	// provider. Only one callback is active at a time; nil clears it.
	OnError(handler func(error))

	// Interrupt tells the provider to stop generating the current response
	// and discard buffered audio. Used for barge-in when the candidate starts
	// speaking over the interviewer.
	Interrupt() error

	// Close terminates the session, releases resources, and closes the Audio
	// and Transcripts channels. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any realtime voice backend.
type Provider interface {
	// Connect establishes a new live session. The returned SessionHandle is
	// ready to accept audio immediately; the caller owns it and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// MintToken creates a short-lived single-session credential suitable for
	// handing to a client. Each token is usable for exactly one session.
	MintToken(ctx context.Context) (Token, error)

	// Capabilities returns static metadata about the underlying model,
	// assumed constant for the lifetime of the Provider instance.
	Capabilities() Capabilities
}
