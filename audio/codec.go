// Package audio converts audio between the realtime wire format (base64
// encoded little-endian PCM16) and the sample buffers used by callers.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// SampleRate is the PCM16 rate spoken on the wire, in Hz.
const SampleRate = 24_000

// ErrInvalidSampleBuffer is returned when an operand is not a []int16.
var ErrInvalidSampleBuffer = errors.New("invalid sample buffer")

// Sample lists the fixed-width sample types that can be serialized.
type Sample interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float32
}

// ToPCM16 clips every sample to [-1, 1] and scales it by 32767, rounding
// half away from zero. -1 maps to -32767, never to math.MinInt16. NaN maps to 0.
func ToPCM16[F ~float32 | ~float64](samples []F) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(math.Round(clamp(float64(s)) * 32767))
	}
	return out
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

// FromBase64 decodes s into raw unsigned 8-bit samples.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ToBase64 serializes buf in native width and byte order.
func ToBase64[T Sample](buf []T) string {
	if len(buf) == 0 {
		return ""
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*int(unsafe.Sizeof(buf[0])))
	return base64.StdEncoding.EncodeToString(raw)
}

// FromBase64As decodes s and reinterprets the bytes as samples of type T in
// native byte order. It is the inverse of ToBase64.
func FromBase64As[T Sample](s string) ([]T, error) {
	raw, err := FromBase64(s)
	if err != nil {
		return nil, err
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of sample width %d", ErrInvalidSampleBuffer, len(raw), size)
	}
	out := make([]T, len(raw)/size)
	if err := binary.Read(bytes.NewReader(raw), binary.NativeEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodePCM16 decodes a base64 wire payload into PCM16 samples.
func DecodePCM16(s string) ([]int16, error) {
	raw, err := FromBase64(s)
	if err != nil {
		return nil, err
	}
	return BytesToPCM16(raw)
}

// EncodePCM16 encodes samples into a base64 wire payload.
func EncodePCM16(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCM16ToBytes(samples))
}

// BytesToPCM16 interprets little-endian bytes as PCM16 samples.
func BytesToPCM16(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d for pcm16", ErrInvalidSampleBuffer, len(b))
	}
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples, nil
}

// PCM16ToBytes serializes samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// Concat returns left followed by right in a new buffer.
func Concat(left, right []int16) []int16 {
	out := make([]int16, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}

// MergeSamples concatenates two PCM16 buffers held in untyped values, such
// as event payloads. Anything but a []int16 is rejected, never converted.
func MergeSamples(left, right any) ([]int16, error) {
	l, ok := left.([]int16)
	if !ok {
		return nil, fmt.Errorf("%w: left operand is %T, want []int16", ErrInvalidSampleBuffer, left)
	}
	r, ok := right.([]int16)
	if !ok {
		return nil, fmt.Errorf("%w: right operand is %T, want []int16", ErrInvalidSampleBuffer, right)
	}
	return Concat(l, r), nil
}

// MsToIndex converts a millisecond offset into a sample index at rate.
func MsToIndex(ms, rate int) int {
	if ms <= 0 || rate <= 0 {
		return 0
	}
	return int(int64(ms) * int64(rate) / 1000)
}

// Slice copies the samples between startMs and endMs out of buf. Offsets
// beyond the buffer are clamped; the result is never nil.
func Slice(buf []int16, startMs, endMs, rate int) []int16 {
	start := min(MsToIndex(startMs, rate), len(buf))
	end := min(MsToIndex(endMs, rate), len(buf))
	if end < start {
		end = start
	}
	out := make([]int16, end-start)
	copy(out, buf[start:end])
	return out
}
