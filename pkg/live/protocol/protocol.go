// Package protocol defines the JSON wire messages of the Gemini Live
// (BidiGenerateContent) websocket API.
//
// The client opens the socket, sends a single setup message, and waits for
// setupComplete before streaming realtimeInput (audio/image media chunks) and
// clientContent (text turns). The server streams serverContent frames
// carrying inline audio, incremental transcriptions of both sides, turn
// completion, and interruption signals.
package protocol

// MIME types for realtime media chunks.
const (
	MIMEPCM16k = "audio/pcm;rate=16000"
	MIMEJPEG   = "image/jpeg"
)

// ModalityAudio requests spoken responses.
const ModalityAudio = "AUDIO"

// Blob is base64-encoded media tagged with its MIME type.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of a content turn: text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is a role-attributed sequence of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// PrebuiltVoiceConfig selects one of the service's fixed synthesized voices.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

// VoiceConfig wraps the voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// SpeechConfig configures response synthesis.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// GenerationConfig configures response modality and speech.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// AudioTranscriptionConfig requests transcription of an audio stream.
// Empty object: the service picks the transcription model.
type AudioTranscriptionConfig struct{}

// Setup is the first client frame on a new session.
type Setup struct {
	Model                    string                    `json:"model"`
	GenerationConfig         *GenerationConfig         `json:"generationConfig,omitempty"`
	SystemInstruction        *Content                  `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *AudioTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// SetupMessage is the client envelope carrying Setup.
type SetupMessage struct {
	Setup *Setup `json:"setup"`
}

// RealtimeInput carries continuous media with no turn boundary.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks,omitempty"`
}

// RealtimeInputMessage is the client envelope carrying RealtimeInput.
type RealtimeInputMessage struct {
	RealtimeInput *RealtimeInput `json:"realtimeInput"`
}

// ClientContent submits explicit turns. TurnComplete marks the end of the
// logical user utterance, unlike the continuous realtime stream.
type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

// ClientContentMessage is the client envelope carrying ClientContent.
type ClientContentMessage struct {
	ClientContent *ClientContent `json:"clientContent"`
}

// SetupComplete acknowledges the setup frame.
type SetupComplete struct{}

// Transcription is an incremental transcript fragment for one side of the
// conversation.
type Transcription struct {
	Text     string `json:"text,omitempty"`
	Finished bool   `json:"finished,omitempty"`
}

// ServerContent is the main inbound payload: synthesized audio inside
// ModelTurn inline data, transcript fragments, and the turn-complete and
// interruption signals.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// GoAway warns that the server will close the connection.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// ServerMessage is the inbound frame envelope. Exactly one field is set.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// AudioData returns the first inline audio blob of a model turn, if any.
func (c *ServerContent) AudioData() (Blob, bool) {
	if c == nil || c.ModelTurn == nil {
		return Blob{}, false
	}
	for _, part := range c.ModelTurn.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return *part.InlineData, true
		}
	}
	return Blob{}, false
}
