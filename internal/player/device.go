package player

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
)

// DeviceSink plays frames through the default PortAudio output device.
// Purely optional: the engine never depends on it, and a missing device
// disables local monitoring only.
type DeviceSink struct {
	log    *zap.Logger
	stream *portaudio.Stream
	buffer []int16
}

// NewDeviceSink initializes PortAudio and opens the default output stream
// at the pipeline's fixed format.
func NewDeviceSink(log *zap.Logger) (*DeviceSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	d := &DeviceSink{
		log:    log,
		buffer: make([]int16, audio.FrameSamples),
	}

	stream, err := portaudio.OpenDefaultStream(
		0, audio.Channels,
		float64(audio.SampleRate),
		audio.FrameSize,
		d.buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

// Run writes frames to the device until ctx is cancelled or the frame
// channel closes.
func (d *DeviceSink) Run(ctx context.Context, frames <-chan []int16) error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer d.stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			copy(d.buffer, frame)
			for i := len(frame); i < len(d.buffer); i++ {
				d.buffer[i] = 0
			}
			if err := d.stream.Write(); err != nil {
				d.log.Warn("device write failed", zap.Error(err))
			}
		}
	}
}

// Close releases the stream and the PortAudio runtime.
func (d *DeviceSink) Close() {
	if d.stream != nil {
		d.stream.Close()
	}
	portaudio.Terminate()
}
