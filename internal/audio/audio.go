package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Chunk is one unit of audio delivered by the generation service.
// Data is the encoded payload; Format selects the decoder.
type Chunk struct {
	Data   []byte
	Format string // "pcm16" or "mp3"
}

// Duration returns the playback time of a decoded interleaved sample slice.
func Duration(samples []int16) time.Duration {
	frames := len(samples) / Channels
	return time.Duration(frames) * time.Second / SampleRate
}
