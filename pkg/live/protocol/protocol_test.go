package protocol

import (
	"encoding/json"
	"testing"
)

func TestServerMessageDecoding(t *testing.T) {
	payload := []byte(`{
		"serverContent": {
			"modelTurn": {
				"parts": [{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAEC"}}]
			},
			"outputTranscription": {"text": "hello", "finished": false},
			"turnComplete": true
		}
	}`)
	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ServerContent == nil {
		t.Fatal("serverContent not decoded")
	}
	if !msg.ServerContent.TurnComplete {
		t.Error("turnComplete not decoded")
	}
	if tr := msg.ServerContent.OutputTranscription; tr == nil || tr.Text != "hello" {
		t.Errorf("outputTranscription = %+v, want text hello", tr)
	}
	blob, ok := msg.ServerContent.AudioData()
	if !ok {
		t.Fatal("AudioData found no inline audio")
	}
	if blob.MIMEType != "audio/pcm;rate=24000" || blob.Data != "AAEC" {
		t.Errorf("blob = %+v", blob)
	}
}

func TestAudioDataSkipsTextParts(t *testing.T) {
	content := &ServerContent{
		ModelTurn: &Content{Parts: []Part{
			{Text: "thinking"},
			{InlineData: &Blob{MIMEType: MIMEJPEG, Data: "abc"}},
		}},
	}
	blob, ok := content.AudioData()
	if !ok || blob.Data != "abc" {
		t.Fatalf("AudioData = %+v ok=%v, want inline blob", blob, ok)
	}

	var nilContent *ServerContent
	if _, ok := nilContent.AudioData(); ok {
		t.Fatal("nil content reported audio")
	}
	if _, ok := (&ServerContent{}).AudioData(); ok {
		t.Fatal("empty content reported audio")
	}
}

func TestSetupMessageEncoding(t *testing.T) {
	msg := SetupMessage{Setup: &Setup{
		Model: "models/test",
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{ModalityAudio},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: "Puck"},
				},
			},
		},
		InputAudioTranscription:  &AudioTranscriptionConfig{},
		OutputAudioTranscription: &AudioTranscriptionConfig{},
	}}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	setup, ok := decoded["setup"].(map[string]any)
	if !ok {
		t.Fatal("setup envelope missing")
	}
	for _, key := range []string{"model", "generationConfig", "inputAudioTranscription", "outputAudioTranscription"} {
		if _, ok := setup[key]; !ok {
			t.Errorf("setup missing %q", key)
		}
	}
}

func TestClientContentEncoding(t *testing.T) {
	msg := ClientContentMessage{ClientContent: &ClientContent{
		Turns:        []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
		TurnComplete: true,
	}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cc, ok := decoded["clientContent"].(map[string]any)
	if !ok {
		t.Fatal("clientContent envelope missing")
	}
	// turnComplete is always serialized, even when false, so the service
	// never has to guess.
	if v, ok := cc["turnComplete"].(bool); !ok || !v {
		t.Errorf("turnComplete = %v", cc["turnComplete"])
	}
}
