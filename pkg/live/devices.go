package live

import (
	"github.com/nova-labs/nova-live/pkg/live/hw"
)

// defaultCaptureDevice acquires the real microphone.
func defaultCaptureDevice() (CaptureDevice, error) {
	return hw.NewMicrophone(InputSampleRate), nil
}

// defaultPlaybackSink opens the real output device.
func defaultPlaybackSink() (PlaybackSink, error) {
	return hw.NewSpeaker(OutputSampleRate)
}
