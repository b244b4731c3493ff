package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// FixedChunkReader hands out the underlying stream in chunks of exactly
// chunkSize bytes, blocking until a chunk is complete. Only the last chunk
// before EOF may be shorter.
type FixedChunkReader struct {
	r         io.Reader
	chunkSize int
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{r: r, chunkSize: chunkSize}
}

// ChunkSize returns the byte size of sampleDuration worth of audio.
func ChunkSize(sampleRate int, sampleDuration time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * sampleDuration.Seconds())
	return frames * bytesPerSample * channels
}

// NewPCM16ChunkReader reads mono PCM16 in chunks of latency duration, so
// every chunk holds whole samples.
func NewPCM16ChunkReader(r io.Reader, sampleRate int, latency time.Duration) *FixedChunkReader {
	return NewFixedChunkReader(r, ChunkSize(sampleRate, latency, 2, 1))
}

func (f *FixedChunkReader) ChunkSize() int { return f.chunkSize }

// Read fills p[:ChunkSize()]. p must hold at least one chunk.
func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("%w: got %d bytes, chunk is %d", io.ErrShortBuffer, len(p), f.chunkSize)
	}

	n, err := io.ReadFull(f.r, p[:f.chunkSize])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// short tail, the next read reports EOF
		return n, nil
	}
	return n, err
}
