// Package transcript assembles a session transcript from the live utterance
// stream.
//
// Interviewer speech arrives as a sequence of growing partials followed by
// one final utterance per turn; candidate speech arrives final-only. The
// accumulator's job is to collapse each partial sequence into a single
// transcript entry and to decide, when a final arrives, whether it completes
// the open turn or stands alone. Relatedness is judged by prefix containment
// first and Jaro-Winkler similarity as a fallback, which absorbs the small
// rewrites realtime models make to earlier words mid-turn.
package transcript

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/oratioapp/oratio/internal/interview"
	"github.com/oratioapp/oratio/pkg/provider/live"
)

// defaultSimilarityThreshold is the minimum Jaro-Winkler score at which a
// final utterance is considered a rewrite of the open partial turn rather
// than a new utterance.
const defaultSimilarityThreshold = 0.80

// Option configures an [Accumulator].
type Option func(*Accumulator)

// WithSimilarityThreshold overrides the partial/final merge threshold.
func WithSimilarityThreshold(threshold float64) Option {
	return func(a *Accumulator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// Accumulator builds a transcript incrementally. Safe for concurrent use.
type Accumulator struct {
	threshold float64

	mu     sync.Mutex
	sealed []interview.TranscriptEntry
	open   *interview.TranscriptEntry // in-progress partial turn, at most one
	frozen bool
}

// New returns an empty Accumulator.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{threshold: defaultSimilarityThreshold}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Add folds one live utterance into the transcript. Utterances arriving
// after [Accumulator.Freeze] are dropped.
func (a *Accumulator) Add(u live.Utterance) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}
	entry := interview.TranscriptEntry{
		Speaker:   speakerLabel(u.Speaker),
		Text:      text,
		Timestamp: u.Timestamp,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return
	}

	if !u.Final {
		a.addPartialLocked(entry)
		return
	}
	a.addFinalLocked(entry)
}

// addPartialLocked updates or opens the in-progress turn.
func (a *Accumulator) addPartialLocked(entry interview.TranscriptEntry) {
	if a.open != nil && a.open.Speaker == entry.Speaker && a.related(a.open.Text, entry.Text) {
		// Keep the turn's original start time through rewrites.
		entry.Timestamp = a.open.Timestamp
		*a.open = entry
		return
	}
	// A new unrelated turn started before the previous one was finalised.
	// Seal what we have rather than lose it.
	a.sealOpenLocked()
	a.open = &entry
}

// addFinalLocked completes the open turn or appends a standalone entry.
func (a *Accumulator) addFinalLocked(entry interview.TranscriptEntry) {
	if a.open != nil && a.open.Speaker == entry.Speaker && a.related(a.open.Text, entry.Text) {
		entry.Timestamp = a.open.Timestamp
		a.open = nil
		a.sealed = append(a.sealed, entry)
		return
	}
	// Finals for a different speaker interleave with an open turn (the
	// candidate finishing while the interviewer is mid-sentence); the open
	// turn stays open.
	a.sealed = append(a.sealed, entry)
}

func (a *Accumulator) sealOpenLocked() {
	if a.open != nil {
		a.sealed = append(a.sealed, *a.open)
		a.open = nil
	}
}

// related reports whether next reads as a continuation or rewrite of prev.
func (a *Accumulator) related(prev, next string) bool {
	p := strings.ToLower(prev)
	n := strings.ToLower(next)
	if strings.HasPrefix(n, p) || strings.HasPrefix(p, n) {
		return true
	}
	return matchr.JaroWinkler(p, n, false) >= a.threshold
}

// Entries returns a snapshot of the transcript so far, including the open
// partial turn as its last element.
func (a *Accumulator) Entries() []interview.TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]interview.TranscriptEntry, 0, len(a.sealed)+1)
	out = append(out, a.sealed...)
	if a.open != nil {
		out = append(out, *a.open)
	}
	return out
}

// Freeze seals any open turn, normalizes the transcript, and returns it.
// The accumulator ignores all further Add calls. Freeze is idempotent.
func (a *Accumulator) Freeze() []interview.TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.frozen {
		a.sealOpenLocked()
		a.sealed = interview.NormalizeTranscript(a.sealed)
		a.frozen = true
	}
	out := make([]interview.TranscriptEntry, len(a.sealed))
	copy(out, a.sealed)
	return out
}

// speakerLabel maps the provider speaker to the transcript label.
func speakerLabel(s live.Speaker) string {
	if s == live.SpeakerInterviewer {
		return interview.SpeakerInterviewer
	}
	return interview.SpeakerCandidate
}
