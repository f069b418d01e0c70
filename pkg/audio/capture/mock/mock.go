// Package mock provides scripted capture sources for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/oratioapp/oratio/pkg/audio"
	"github.com/oratioapp/oratio/pkg/audio/capture"
)

// Compile-time interface checks.
var (
	_ capture.Source           = (*Source)(nil)
	_ capture.Stream           = (*Stream)(nil)
	_ capture.LowLatencyStream = (*LowLatencyStream)(nil)
)

// Source is a scripted capture.Source. Configure OpenErr to simulate
// acquisition failures, or Script to control the frames the stream delivers.
type Source struct {
	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	// Rate is the native sample rate reported by the stream. Defaults to 48000.
	Rate int

	// Script holds the frames the stream will deliver, in order.
	Script []audio.Frame

	// LowLatency wraps the stream so it advertises a fixed-cadence path.
	LowLatency bool

	// CadenceErr is returned by SetFrameDuration when LowLatency is set,
	// forcing the caller onto the buffered fallback.
	CadenceErr error

	mu     sync.Mutex
	opened int
}

// Open implements capture.Source.
func (s *Source) Open(ctx context.Context) (capture.Stream, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	rate := s.Rate
	if rate == 0 {
		rate = 48000
	}

	st := &Stream{rate: rate, frames: make(chan audio.Frame, len(s.Script)+1)}
	for _, f := range s.Script {
		if f.SampleRate == 0 {
			f.SampleRate = rate
		}
		st.frames <- f
	}
	close(st.frames)

	if s.LowLatency {
		return &LowLatencyStream{Stream: st, cadenceErr: s.CadenceErr}, nil
	}
	return st, nil
}

// OpenCount returns how many times Open succeeded.
func (s *Source) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Stream is a pre-scripted capture.Stream.
type Stream struct {
	rate   int
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

// SampleRate implements capture.Stream.
func (s *Stream) SampleRate() int { return s.rate }

// Frames implements capture.Stream.
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Close implements capture.Stream. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LowLatencyStream wraps Stream with a fixed-cadence probe.
type LowLatencyStream struct {
	*Stream
	cadenceErr error

	mu            sync.Mutex
	frameDuration time.Duration
}

// SetFrameDuration implements capture.LowLatencyStream.
func (s *LowLatencyStream) SetFrameDuration(d time.Duration) error {
	if s.cadenceErr != nil {
		return s.cadenceErr
	}
	s.mu.Lock()
	s.frameDuration = d
	s.mu.Unlock()
	return nil
}

// FrameDuration returns the last accepted cadence.
func (s *LowLatencyStream) FrameDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameDuration
}
