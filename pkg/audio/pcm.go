// Package audio implements the PCM wire codec and analysis helpers for the
// realtime engine.
//
// The remote endpoint speaks 16-bit signed little-endian PCM, base64-encoded
// for transport: mono 16 kHz outbound (microphone) and mono 24 kHz inbound
// (synthesized speech). Sample scaling uses the signed 16-bit full range
// (±32767/32768); no dithering.
package audio

import (
	"encoding/base64"
	"math"
	"time"
)

// Buffer is a decoded, playable block of audio: float32 samples in [-1, 1]
// tagged with the sample rate and channel count they were produced at.
type Buffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// NumFrames returns the number of sample frames (samples per channel).
func (b *Buffer) NumFrames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	frames := b.NumFrames()
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// FloatToPCM16 converts one float sample to a signed 16-bit sample.
// Input is clamped to [-1, 1] before scaling.
func FloatToPCM16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	s := int32(math.Round(float64(v) * 32768))
	if s > 32767 {
		s = 32767
	}
	if s < -32768 {
		s = -32768
	}
	return int16(s)
}

// PCM16ToFloat converts one signed 16-bit sample to a float in [-1, 1).
func PCM16ToFloat(s int16) float32 {
	return float32(s) / 32768.0
}

// EncodePCM16 converts float samples to little-endian 16-bit PCM bytes.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := FloatToPCM16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Encode converts float samples to the base64 PCM16 wire format.
// Deterministic, no side effects.
func Encode(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// Decode reverses the transport step only: base64 to raw bytes. It does not
// interpret the bytes as PCM.
func Decode(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// DecodeAudioData interprets raw little-endian 16-bit PCM bytes as float
// samples and tags them with the given sample rate and channel count.
// A trailing partial sample (odd byte length) is truncated, never an error.
func DecodeAudioData(raw []byte, sampleRate, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = PCM16ToFloat(s)
	}
	return &Buffer{
		Data:       samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// PCM16BytesToFloat converts little-endian 16-bit PCM bytes to float samples,
// truncating a trailing partial sample.
func PCM16BytesToFloat(raw []byte) []float32 {
	return DecodeAudioData(raw, 0, 1).Data
}
