package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeChunk decodes a service chunk into interleaved int16 samples at the
// stream sample rate. Unknown formats are an error so a misconfigured session
// fails loudly instead of playing noise.
func DecodeChunk(c Chunk) ([]int16, error) {
	switch c.Format {
	case "", "pcm16":
		return BytesToSamples(c.Data), nil
	case "mp3":
		return decodeMP3(c.Data)
	default:
		return nil, fmt.Errorf("unknown chunk format %q", c.Format)
	}
}

// decodeMP3 decodes an MP3 payload to raw PCM. go-mp3 always outputs
// 16-bit stereo at the source sample rate.
func decodeMP3(data []byte) ([]int16, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	return BytesToSamples(raw), nil
}

// BytesToSamples converts little-endian s16le bytes to int16 samples.
// A trailing odd byte is dropped to keep int16 alignment.
func BytesToSamples(data []byte) []int16 {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
