package capture

import (
	"log/slog"
	"time"

	"github.com/oratioapp/oratio/pkg/audio"
)

// bufferedFrameSamples is the accumulation window of the fallback producer,
// expressed in native-rate samples. Large enough to amortise per-frame
// overhead on devices that deliver audio in big irregular chunks.
const bufferedFrameSamples = 4096

// LowLatencyStream is implemented by streams that can deliver frames at a
// small, fixed cadence. [SelectProducer] probes for it to pick the preferred
// capture path.
type LowLatencyStream interface {
	Stream

	// SetFrameDuration requests that the stream deliver frames of the given
	// duration. Returns an error if the device cannot honour it, in which
	// case the caller falls back to the buffered producer.
	SetFrameDuration(d time.Duration) error
}

// FrameProducer adapts a device stream into frames ready for conversion to
// the wire format. Both implementations emit mono PCM16 at the stream's
// native rate; only the delivery cadence differs.
type FrameProducer interface {
	// Frames returns the producer's output channel. Closed when the
	// underlying stream ends or the producer is closed.
	Frames() <-chan audio.Frame

	// Close stops the producer. It does not close the underlying stream.
	Close() error
}

// SelectProducer picks the best available producer for stream: the
// low-latency path when the stream supports a fixed frame cadence, otherwise
// the buffered fallback. The chosen strategy is logged once per stream.
func SelectProducer(stream Stream, frameDuration time.Duration) FrameProducer {
	if ll, ok := stream.(LowLatencyStream); ok {
		if err := ll.SetFrameDuration(frameDuration); err == nil {
			slog.Debug("capture: using low-latency producer",
				"frame_duration", frameDuration,
				"sample_rate", stream.SampleRate())
			return newPassthroughProducer(stream)
		} else {
			slog.Warn("capture: low-latency path unavailable, falling back to buffered producer",
				"err", err)
		}
	} else {
		slog.Debug("capture: stream does not support fixed cadence, using buffered producer")
	}
	return newBufferedProducer(stream)
}

// passthroughProducer forwards stream frames as they arrive. Used on the
// low-latency path where the device already honours the requested cadence.
type passthroughProducer struct {
	stream Stream
	out    chan audio.Frame
	done   chan struct{}
}

func newPassthroughProducer(stream Stream) *passthroughProducer {
	p := &passthroughProducer{
		stream: stream,
		out:    make(chan audio.Frame, 8),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *passthroughProducer) run() {
	defer close(p.out)
	for frame := range p.stream.Frames() {
		select {
		case p.out <- frame:
		case <-p.done:
			return
		}
	}
}

func (p *passthroughProducer) Frames() <-chan audio.Frame { return p.out }

func (p *passthroughProducer) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}

// bufferedProducer accumulates incoming audio into fixed-size chunks before
// emitting. Higher latency than the passthrough path, but works with devices
// that deliver audio in arbitrary-sized bursts.
type bufferedProducer struct {
	stream Stream
	out    chan audio.Frame
	done   chan struct{}
}

func newBufferedProducer(stream Stream) *bufferedProducer {
	p := &bufferedProducer{
		stream: stream,
		out:    make(chan audio.Frame, 4),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *bufferedProducer) run() {
	defer close(p.out)

	chunkBytes := bufferedFrameSamples * 2
	var (
		pending   []byte
		timestamp time.Duration
		haveTS    bool
	)

	flush := func() bool {
		frame := audio.Frame{
			Data:       pending,
			SampleRate: p.stream.SampleRate(),
			Timestamp:  timestamp,
		}
		pending = nil
		haveTS = false
		select {
		case p.out <- frame:
			return true
		case <-p.done:
			return false
		}
	}

	for frame := range p.stream.Frames() {
		if !haveTS {
			timestamp = frame.Timestamp
			haveTS = true
		}
		pending = append(pending, frame.Data...)
		for len(pending) >= chunkBytes {
			rest := pending[chunkBytes:]
			pending = pending[:chunkBytes]
			if !flush() {
				return
			}
			pending = append(pending, rest...)
			if len(pending) > 0 {
				haveTS = true
			}
		}
	}

	// Emit the remainder so the tail of an utterance is not lost.
	if len(pending) > 0 {
		flush()
	}
}

func (p *bufferedProducer) Frames() <-chan audio.Frame { return p.out }

func (p *bufferedProducer) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}
