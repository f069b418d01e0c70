// Package playback renders base64-encoded 24 kHz PCM16 frames gaplessly
// despite network jitter.
//
// Incoming frames are decoded, resampled to the output device's native rate,
// and scheduled back-to-back on the sink's clock: each buffer starts at
// max(previousBufferEnd, now), so consecutive buffers chain with no gap and
// no overlap as long as each arrives before its predecessor finishes.
//
// The [Sink] and [Clock] abstractions exist so the scheduling logic can be
// tested deterministically; platform adapter packages provide real sinks.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oratioapp/oratio/pkg/audio"
)

// DefaultPrimeTimeout is how long the player holds the very first frame
// waiting for a second one before starting playback anyway. Covers short
// single-utterance responses without audible start-up artifacts.
const DefaultPrimeTimeout = 250 * time.Millisecond

// Sink is the platform audio output. Implementations must tolerate Play
// calls from multiple goroutines.
type Sink interface {
	// SampleRate returns the native output rate in Hz.
	SampleRate() int

	// Play schedules pcm (mono PCM16 at SampleRate) to begin at start, an
	// offset on the sink's playback clock.
	Play(pcm []byte, start time.Duration)

	// Reset discards all scheduled and in-flight audio immediately. The only
	// reliable way to silence already-scheduled buffers is to tear the output
	// graph down and rebuild it; Reset encapsulates that.
	Reset()

	// Close releases the output device. Idempotent.
	Close() error
}

// Clock is the monotonic playback clock shared with the sink.
type Clock interface {
	Now() time.Duration
}

// SystemClock is a [Clock] backed by wall time since construction.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose zero point is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now implements [Clock].
func (c *SystemClock) Now() time.Duration { return time.Since(c.start) }

// Option configures a [Player].
type Option func(*Player)

// WithPrimeTimeout overrides the start-up smoothing timeout.
func WithPrimeTimeout(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.primeTimeout = d
		}
	}
}

// Player schedules decoded frames gaplessly on a [Sink].
//
// All methods are safe for concurrent use.
type Player struct {
	sink         Sink
	clock        Clock
	primeTimeout time.Duration

	mu         sync.Mutex
	nextStart  time.Duration // end time of the last scheduled buffer
	primed     bool          // first buffer has been released to the sink
	pending    []byte        // held first buffer awaiting a companion or timeout
	primeTimer *time.Timer
	closed     bool
}

// New creates a Player over sink using clock for scheduling decisions.
func New(sink Sink, clock Clock, opts ...Option) *Player {
	p := &Player{
		sink:         sink,
		clock:        clock,
		primeTimeout: DefaultPrimeTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Enqueue decodes a base64 wire frame and schedules it for gapless playback.
// Malformed or undersized frames are dropped and logged; a bad frame must
// never take the playback loop down.
func (p *Player) Enqueue(encoded string) {
	pcm, err := audio.DecodeFrame(encoded)
	if err != nil {
		slog.Warn("playback: dropping malformed frame", "err", err)
		return
	}

	pcm = audio.ResampleMono16(pcm, audio.PlaybackRate, p.sink.SampleRate())
	if len(pcm) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if p.primed {
		p.scheduleLocked(pcm)
		return
	}

	if p.pending == nil {
		// First frame: hold it briefly. Starting playback on a single tiny
		// buffer produces an audible click when the next one arrives late.
		p.pending = pcm
		p.primeTimer = time.AfterFunc(p.primeTimeout, p.primeByTimeout)
		return
	}

	// Second frame arrived in time: release both back-to-back.
	if p.primeTimer != nil {
		p.primeTimer.Stop()
		p.primeTimer = nil
	}
	first := p.pending
	p.pending = nil
	p.primed = true
	p.scheduleLocked(first)
	p.scheduleLocked(pcm)
}

// primeByTimeout releases a held single frame after the smoothing window.
func (p *Player) primeByTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.primed || p.pending == nil {
		return
	}
	first := p.pending
	p.pending = nil
	p.primed = true
	p.primeTimer = nil
	p.scheduleLocked(first)
}

// scheduleLocked chains pcm onto the end of the scheduled timeline.
// Must be called with p.mu held.
func (p *Player) scheduleLocked(pcm []byte) {
	start := p.nextStart
	if now := p.clock.Now(); now > start {
		start = now
	}
	p.sink.Play(pcm, start)

	samples := len(pcm) / 2
	dur := time.Duration(samples) * time.Second / time.Duration(p.sink.SampleRate())
	p.nextStart = start + dur
}

// Clear immediately discards all pending and in-flight audio. Used when the
// user interrupts the AI mid-utterance: everything already scheduled must
// stop producing sound. The player returns to the unprimed state so the next
// response gets start-up smoothing again.
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

// clearLocked resets queue state and the sink. Must be called with p.mu held.
func (p *Player) clearLocked() {
	if p.primeTimer != nil {
		p.primeTimer.Stop()
		p.primeTimer = nil
	}
	p.pending = nil
	p.primed = false
	p.nextStart = 0
	p.sink.Reset()
}

// Stop clears the queue and releases the sink. Safe to call multiple times.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.clearLocked()
	p.closed = true
	return p.sink.Close()
}
