package audio

import (
	"fmt"

	"github.com/faiface/beep"
)

const resampleQuality = 3

// pcmStreamer feeds mono PCM16 samples to beep as duplicated stereo frames.
type pcmStreamer struct {
	data []int16
	pos  int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// Resample converts mono PCM16 samples from fromRate to toRate.
func Resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return Concat(samples, nil), nil
	}

	resampler := beep.Resample(resampleQuality, beep.SampleRate(fromRate), beep.SampleRate(toRate), &pcmStreamer{data: samples})

	out := make([]float64, 0, len(samples)*toRate/fromRate+1)
	buf := make([][2]float64, 1024)
	for {
		n, ok := resampler.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, (buf[i][0]+buf[i][1])/2.0)
		}
		if !ok {
			break
		}
	}
	if err := resampler.Err(); err != nil {
		return nil, err
	}

	return ToPCM16(out), nil
}
