package live

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// VideoSource is a live video feed the sampler can pull still frames from.
// Frame returns false until the source has at least one decoded frame.
type VideoSource interface {
	Frame() (image.Image, bool)
}

// ImageSender is the slice of the transport the frame sampler needs.
type ImageSender interface {
	SendImage(data string) error
}

const (
	// frameScaleDivisor bounds payload size: frames are downscaled to 1/4
	// linear dimensions before encoding.
	frameScaleDivisor = 4

	// frameJPEGQuality trades fidelity for bandwidth; frames are scene
	// context, not imagery the model inspects pixel by pixel.
	frameJPEGQuality = 50
)

// FrameSampler periodically captures a downscaled still from a video source
// and forwards it as an image payload on the session transport.
//
// Encoding runs on its own goroutine per tick, off the audio path. If one
// tick's encode is still in flight when the next fires, both proceed;
// frames carry no ordering guarantee, so last-write-wins on the wire is
// acceptable.
type FrameSampler struct {
	source   VideoSource
	sender   ImageSender
	interval time.Duration
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFrameSampler creates a sampler ticking at the given interval.
func NewFrameSampler(source VideoSource, sender ImageSender, interval time.Duration, logger *slog.Logger) *FrameSampler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameSampler{
		source:   source,
		sender:   sender,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sampling loop.
func (f *FrameSampler) Start() {
	f.wg.Add(1)
	go f.run()
}

func (f *FrameSampler) run() {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			frame, ok := f.source.Frame()
			if !ok {
				continue
			}
			go f.encodeAndSend(frame)
		}
	}
}

func (f *FrameSampler) encodeAndSend(frame image.Image) {
	payload, err := EncodeFrame(frame)
	if err != nil {
		f.logger.Warn("encoding video frame", "error", err)
		return
	}
	if err := f.sender.SendImage(payload); err != nil {
		f.logger.Warn("sending video frame", "error", err)
	}
}

// Stop cancels the sampling loop. In-flight encodes finish or are discarded
// by the transport; they carry no ordering guarantee. Idempotent.
func (f *FrameSampler) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.wg.Wait()
}

// EncodeFrame downscales a frame to 1/4 linear dimensions, compresses it as
// JPEG, and base64-encodes the result.
func EncodeFrame(frame image.Image) (string, error) {
	bounds := frame.Bounds()
	w := bounds.Dx() / frameScaleDivisor
	h := bounds.Dy() / frameScaleDivisor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), frame, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
