package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// minFrameBytes is the smallest decodable frame: anything shorter cannot hold
// a meaningful number of int16 samples and is treated as corrupt.
const minFrameBytes = 4

// Frame decode errors. Callers on the playback path should drop the offending
// frame and continue; a malformed frame must never take down the stream.
var (
	// ErrFrameEmpty indicates an empty wire payload.
	ErrFrameEmpty = errors.New("audio: empty frame")

	// ErrFrameTooSmall indicates a payload below the minimum decodable size.
	ErrFrameTooSmall = errors.New("audio: frame too small")

	// ErrFrameMisaligned indicates an odd byte count, which cannot be int16 PCM.
	ErrFrameMisaligned = errors.New("audio: frame not aligned to int16 samples")
)

// EncodeFrame encodes raw PCM16 bytes into the base64 wire representation
// used by the live session transport.
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame decodes a base64 wire frame back into raw PCM16 bytes. It
// validates size and int16 alignment so downstream code never sees a frame it
// cannot index safely.
func DecodeFrame(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrFrameEmpty
	}
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	if len(pcm) < minFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, len(pcm))
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameMisaligned, len(pcm))
	}
	return pcm, nil
}
