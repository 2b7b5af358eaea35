package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"

	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
)

// HTTPHandler serves the live mix as a chunked MP3 stream. Each connection
// spawns an FFmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         *zap.Logger
}

// NewHTTPHandler creates an HTTP monitor handler.
func NewHTTPHandler(b *Broadcaster, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "promptdeck monitor")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Error("monitor stdin pipe", zap.Error(err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Error("monitor stdout pipe", zap.Error(err))
		return
	}

	if err := cmd.Start(); err != nil {
		h.log.Error("monitor ffmpeg start", zap.Error(err))
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Info("http listener connected",
		zap.String("listener", listener.ID[:8]),
		zap.Int("total", h.broadcaster.ListenerCount()))
	defer h.log.Info("http listener disconnected", zap.String("listener", listener.ID[:8]))

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to the response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.log.Warn("monitor ffmpeg read", zap.Error(err))
			}
			break
		}
	}

	cmd.Wait()
}
