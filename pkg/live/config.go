package live

import (
	"log/slog"
	"time"

	"github.com/nova-labs/nova-live/pkg/core"
)

// Voice is one of the service's prebuilt synthesized voices.
type Voice string

const (
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceKore   Voice = "Kore"
	VoiceFenrir Voice = "Fenrir"
	VoiceAoede  Voice = "Aoede"
	VoiceZephyr Voice = "Zephyr"
)

// Voices returns the fixed voice catalog.
func Voices() []Voice {
	return []Voice{VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir, VoiceAoede, VoiceZephyr}
}

// Valid reports whether v is in the voice catalog.
func (v Voice) Valid() bool {
	for _, known := range Voices() {
		if v == known {
			return true
		}
	}
	return false
}

const (
	// DefaultModel is the native-audio realtime model.
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultSystemInstruction is the assistant persona used when the host
	// does not supply its own.
	DefaultSystemInstruction = "You are Nova, a helpful, witty, and friendly AI assistant. " +
		"You speak naturally, like a human, with concise responses. " +
		"You can see what the user shows you via camera if enabled."

	// InputSampleRate is the negotiated microphone rate.
	InputSampleRate = 16000
	// OutputSampleRate is the synthesized speech rate.
	OutputSampleRate = 24000

	// CaptureBlockSize is the fixed outbound block size in samples
	// (~256 ms at 16 kHz). One block is at most in flight at a time.
	CaptureBlockSize = 4096

	// DefaultFrameInterval is the camera still sampling period. One frame
	// per second is enough for scene context without tripping rate limits.
	DefaultFrameInterval = time.Second

	// DefaultMeterBins is the frequency-bin count of the level meters.
	DefaultMeterBins = 128
)

// Config holds engine configuration. Zero values are filled in by
// applyDefaults; only APIKey is required.
type Config struct {
	// APIKey authenticates against the realtime endpoint.
	APIKey string

	// Model is the realtime model identifier.
	Model string

	// Voice selects the synthesized voice. Must be in the catalog.
	Voice Voice

	// SystemInstruction is the free-text system prompt.
	SystemInstruction string

	// Endpoint overrides the realtime websocket endpoint (tests, proxies).
	Endpoint string

	// FrameInterval is the camera sampling period when a video source is
	// supplied to Connect.
	FrameInterval time.Duration

	// OnConnectionChange is invoked with true once the session opens and
	// with false exactly once per actual open-to-closed transition.
	OnConnectionChange func(connected bool)

	// OnTranscript receives transcript fragments for both sides of the
	// conversation. The host accumulates fragments while final is false
	// and seals the message when final is true.
	OnTranscript func(text string, role Role, final bool)

	// Logger receives engine diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = VoicePuck
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = DefaultSystemInstruction
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return core.NewInvalidRequestError("api key must not be empty")
	}
	if !c.Voice.Valid() {
		return core.NewInvalidRequestError("unknown voice " + string(c.Voice))
	}
	return nil
}
