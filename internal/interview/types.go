// Package interview holds the core domain types of Oratio: practice interview
// sessions, their transcripts, and the feedback lifecycle state machine.
package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oratioapp/oratio/pkg/provider/score"
)

// Transcript limits enforced before feedback generation.
const (
	// MaxTranscriptEntries caps how many utterances a transcript may hold.
	MaxTranscriptEntries = 300

	// MaxEntryChars caps the length of a single utterance.
	MaxEntryChars = 2000
)

// Speaker labels for transcript entries.
const (
	SpeakerCandidate   = "candidate"
	SpeakerInterviewer = "interviewer"
)

// Status is the lifecycle state of a session itself.
type Status string

const (
	// StatusActive means the live interview is still running.
	StatusActive Status = "active"

	// StatusFinished means the interview ended and the transcript is frozen.
	StatusFinished Status = "finished"
)

// IsValid reports whether s is a defined session status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusFinished
}

// FeedbackStatus is the state of the feedback generation workflow for a
// session. It moves strictly forward except for the failed retry loop:
//
//	idle → pending → processing → completed
//	                           ↘ failed → processing (retry)
//
// completed is terminal.
type FeedbackStatus string

const (
	// FeedbackIdle means no feedback has been requested.
	FeedbackIdle FeedbackStatus = "idle"

	// FeedbackPending means feedback was queued but generation has not been
	// claimed yet.
	FeedbackPending FeedbackStatus = "pending"

	// FeedbackProcessing means exactly one worker holds the generation claim.
	FeedbackProcessing FeedbackStatus = "processing"

	// FeedbackCompleted means a scorecard exists. Terminal.
	FeedbackCompleted FeedbackStatus = "completed"

	// FeedbackFailed means generation exhausted its retries. A new process
	// request may reclaim the session.
	FeedbackFailed FeedbackStatus = "failed"
)

// IsValid reports whether s is a defined feedback status.
func (s FeedbackStatus) IsValid() bool {
	switch s {
	case FeedbackIdle, FeedbackPending, FeedbackProcessing, FeedbackCompleted, FeedbackFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s FeedbackStatus) Terminal() bool {
	return s == FeedbackCompleted
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. The only backward edge is failed → processing for retries.
func (s FeedbackStatus) CanTransitionTo(next FeedbackStatus) bool {
	switch s {
	case FeedbackIdle:
		return next == FeedbackPending
	case FeedbackPending:
		return next == FeedbackProcessing
	case FeedbackProcessing:
		return next == FeedbackCompleted || next == FeedbackFailed
	case FeedbackFailed:
		return next == FeedbackProcessing
	}
	return false
}

// TranscriptEntry is one utterance in a session transcript.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Feedback is a generated scorecard together with its provenance.
type Feedback struct {
	Card        score.Card `json:"card"`
	Model       string     `json:"model,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Template is a reusable interview definition. Sessions created from a
// template inherit its role and seniority; the persona and question list feed
// the live interviewer's instructions.
type Template struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Seniority string    `json:"seniority,omitempty"`

	// Persona is a free-text description of the interviewer's character and
	// behaviour, injected into the live session instructions.
	Persona string `json:"persona,omitempty"`

	// Questions lists prepared questions the interviewer should work through.
	Questions []string `json:"questions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks template fields required at creation time.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("interview: template name is required")
	}
	if t.Role == "" {
		return fmt.Errorf("interview: template role is required")
	}
	return nil
}

// Instructions renders the template as a system prompt for the live
// interviewer.
func (t *Template) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are conducting a mock interview for a %s position.", t.Role)
	if t.Seniority != "" {
		fmt.Fprintf(&b, " The candidate is interviewing at the %s level.", t.Seniority)
	}
	if t.Persona != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Persona)
	}
	if len(t.Questions) > 0 {
		b.WriteString("\n\nWork through these questions, following up where answers are thin:")
		for _, q := range t.Questions {
			b.WriteString("\n- ")
			b.WriteString(q)
		}
	}
	return b.String()
}

// Session is one practice interview.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// TemplateID references the template the session was created from.
	// Nil for ad-hoc sessions.
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	Role      string `json:"role"`
	Seniority string `json:"seniority,omitempty"`
	Status    Status `json:"status"`

	Transcript []TranscriptEntry `json:"transcript,omitempty"`

	FeedbackStatus FeedbackStatus `json:"feedback_status"`
	// FeedbackError holds the last generation failure. Cleared when a retry
	// claims the session.
	FeedbackError string    `json:"feedback_error,omitempty"`
	Feedback      *Feedback `json:"feedback,omitempty"`

	// Feedback lifecycle timestamps, set as the state machine advances:
	// requested on idle→pending, processing on each granted claim, completed
	// when the scorecard is stored.
	FeedbackRequestedAt  time.Time `json:"feedback_requested_at,omitzero"`
	FeedbackProcessingAt time.Time `json:"feedback_processing_at,omitzero"`
	FeedbackCompletedAt  time.Time `json:"feedback_completed_at,omitzero"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTranscript reports whether the session captured any dialogue at all.
func (s *Session) HasTranscript() bool {
	return len(s.Transcript) > 0
}

// NormalizeTranscript returns entries with surrounding whitespace trimmed,
// internal whitespace runs collapsed to single spaces, and empty entries
// dropped. Applying it twice yields the same result as applying it once.
func NormalizeTranscript(entries []TranscriptEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		e.Text = strings.Join(strings.Fields(e.Text), " ")
		if e.Text == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ValidateTranscript checks that a normalized transcript is within bounds and
// every entry names a known speaker. Call after [NormalizeTranscript].
func ValidateTranscript(entries []TranscriptEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("interview: transcript is empty")
	}
	if len(entries) > MaxTranscriptEntries {
		return fmt.Errorf("interview: transcript has %d entries, limit %d", len(entries), MaxTranscriptEntries)
	}
	for i, e := range entries {
		if e.Speaker != SpeakerCandidate && e.Speaker != SpeakerInterviewer {
			return fmt.Errorf("interview: entry %d has unknown speaker %q", i, e.Speaker)
		}
		if e.Text == "" {
			return fmt.Errorf("interview: entry %d is empty", i)
		}
		if len(e.Text) > MaxEntryChars {
			return fmt.Errorf("interview: entry %d is %d chars, limit %d", i, len(e.Text), MaxEntryChars)
		}
	}
	return nil
}
