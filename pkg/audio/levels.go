package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// CalculateRMSEnergy computes the root-mean-square energy of float samples.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude in the
// samples. Returns a value between 0.0 and 1.0 for in-range input.
func CalculatePeakAmplitude(samples []float32) float64 {
	var maxAbs float64
	for _, v := range samples {
		abs := math.Abs(float64(v))
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs
}

// LevelMeter is a non-authoritative analysis tap attached to a capture or
// playback path. It keeps a rolling window of the most recent samples and
// computes frequency-bin magnitudes on demand.
//
// The meter is pull-based: a UI render loop calls Levels at whatever rate it
// likes, including faster than audio flows. Queried before any audio has
// been fed it returns a zeroed snapshot. Feed is cheap (a ring copy under a
// mutex) so it never delays the encode/send path it taps.
type LevelMeter struct {
	mu     sync.Mutex
	window []float64
	pos    int
	fed    bool
	bins   int
}

// NewLevelMeter creates a meter producing the given number of frequency
// bins. The analysis window holds bins*2 samples.
func NewLevelMeter(bins int) *LevelMeter {
	if bins <= 0 {
		bins = 128
	}
	return &LevelMeter{
		window: make([]float64, bins*2),
		bins:   bins,
	}
}

// Feed appends samples to the rolling window. Safe to call from the audio
// callback thread.
func (m *LevelMeter) Feed(samples []float32) {
	if m == nil || len(samples) == 0 {
		return
	}
	m.mu.Lock()
	for _, v := range samples {
		m.window[m.pos] = float64(v)
		m.pos = (m.pos + 1) % len(m.window)
	}
	m.fed = true
	m.mu.Unlock()
}

// Levels returns the current frequency-bin magnitudes as bytes in [0, 255].
// The snapshot is recomputed from the rolling window on every call.
func (m *LevelMeter) Levels() []byte {
	if m == nil {
		return nil
	}
	out := make([]byte, m.bins)

	m.mu.Lock()
	if !m.fed {
		m.mu.Unlock()
		return out
	}
	// Unroll the ring so the window is in temporal order.
	window := make([]float64, len(m.window))
	n := copy(window, m.window[m.pos:])
	copy(window[n:], m.window[:m.pos])
	m.mu.Unlock()

	// Hann window to keep bin magnitudes stable across block boundaries.
	for i := range window {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(len(window)-1)))
		window[i] *= w
	}

	spectrum := fft.FFTReal(window)
	half := float64(len(window)) / 2
	for i := 0; i < m.bins && i < len(spectrum); i++ {
		mag := cmplx.Abs(spectrum[i]) / half
		v := mag * 255
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// Volume returns the mean of the current bin magnitudes, normalized to
// [0, 1]. Mirrors the scalar reading UIs use beside the full spectrum.
func (m *LevelMeter) Volume() float64 {
	levels := m.Levels()
	if len(levels) == 0 {
		return 0
	}
	var sum float64
	for _, b := range levels {
		sum += float64(b)
	}
	return sum / float64(len(levels)) / 255
}

// Reset zeroes the window, returning the meter to its pre-audio state.
func (m *LevelMeter) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.fed = false
	m.mu.Unlock()
}
