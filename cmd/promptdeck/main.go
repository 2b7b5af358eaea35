package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/config"
	"github.com/kdhillon/promptdeck/internal/engine"
	"github.com/kdhillon/promptdeck/internal/midi"
	"github.com/kdhillon/promptdeck/internal/player"
	"github.com/kdhillon/promptdeck/internal/prompt"
	"github.com/kdhillon/promptdeck/internal/session"
	"github.com/kdhillon/promptdeck/internal/stream"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("promptdeck starting up", zap.String("service", cfg.ServiceURL))

	eng := engine.New(engine.Config{
		ServiceURL:     cfg.ServiceURL,
		ServiceKey:     cfg.ServiceKey,
		ChunkFormat:    cfg.ChunkFormat,
		UpdateInterval: cfg.UpdateInterval,
		StartBuffer:    cfg.StartBuffer,
		LevelPeriod:    cfg.LevelPeriod,
		Policy: session.ReconnectPolicy{
			Base:        cfg.ReconnectBase,
			Max:         cfg.ReconnectMax,
			MaxAttempts: cfg.ReconnectTries,
			Grace:       cfg.ReconnectGrace,
		},
		TempoBPM: cfg.TempoBPM,
	}, session.DialWebSocket, logger)
	go eng.Run(ctx)

	// Broadcaster: fan the mix out to monitors and the level meter
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, eng.Frames())

	meterTap := broadcaster.Subscribe()
	go eng.RunMeter(ctx, meterTap.C)

	// Optional local output device
	if cfg.DeviceOutput {
		sink, err := player.NewDeviceSink(logger)
		if err != nil {
			logger.Warn("local output unavailable", zap.Error(err))
		} else {
			defer sink.Close()
			deviceTap := broadcaster.Subscribe()
			go sink.Run(ctx, deviceTap.C)
		}
	}

	// MIDI routing: hardware-agnostic; a browser control surface injects
	// messages through /api/cc or the event socket.
	router := midi.NewRouter(func(id string, weight float64) {
		eng.SetPromptWeight(id, weight)
	}, logger)
	router.BindDefaults(eng.Prompts())

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, logger)

	mux := http.NewServeMux()
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, logger))
	mux.Handle("/offer", webrtcHandler)
	mux.HandleFunc("/ws", eventSocket(eng, router, logger))

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"state":            eng.State().String(),
			"tempo_bpm":        eng.Tempo(),
			"buffered_ms":      eng.Buffered().Milliseconds(),
			"prompts":          eng.Prompts(),
			"http_listeners":   broadcaster.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/prompts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var set prompt.Set
		if err := json.NewDecoder(r.Body).Decode(&set); err != nil || len(set) == 0 {
			http.Error(w, "invalid prompt set", http.StatusBadRequest)
			return
		}
		eng.SetPrompts(set)
		writeOK(w)
	})

	mux.HandleFunc("/api/prompt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PromptID string  `json:"promptId"`
			Weight   float64 `json:"weight"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromptID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if !eng.SetPromptWeight(req.PromptID, req.Weight) {
			http.Error(w, "unknown prompt", http.StatusNotFound)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("/api/tempo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			TempoBPM int `json:"tempoBpm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		eng.SetTempo(req.TempoBPM)
		writeOK(w)
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.PlayPause()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "state": eng.State().String()})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Stop()
		writeOK(w)
	})

	mux.HandleFunc("/api/cc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var msg midi.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		router.Handle(msg)
		writeOK(w)
	})

	mux.HandleFunc("/api/learn", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PromptID string `json:"promptId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromptID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		router.Learn(req.PromptID)
		writeOK(w)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		server.Close()
	}()

	logger.Info("promptdeck live", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("http server", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventSocket pushes engine events to a UI client and accepts cc/learn
// messages back on the same connection.
func eventSocket(eng *engine.Engine, router *midi.Router, logger *zap.Logger) http.HandlerFunc {
	type outEvent struct {
		Type   string  `json:"type"`
		State  string  `json:"state,omitempty"`
		Level  float64 `json:"level,omitempty"`
		Text   string  `json:"text,omitempty"`
		Reason string  `json:"reason,omitempty"`
		Error  string  `json:"error,omitempty"`
	}
	type inEvent struct {
		Type     string `json:"type"`
		PromptID string `json:"promptId,omitempty"`
		midi.Message
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := eng.Subscribe()
		defer eng.Unsubscribe(sub)

		// Reader: client-originated control messages
		go func() {
			defer conn.Close()
			for {
				var in inEvent
				if err := conn.ReadJSON(&in); err != nil {
					return
				}
				switch in.Type {
				case "cc":
					router.Handle(in.Message)
				case "learn":
					router.Learn(in.PromptID)
				}
			}
		}()

		for {
			select {
			case <-sub.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				var out outEvent
				switch ev.Kind {
				case engine.EventState:
					out = outEvent{Type: "state", State: ev.State.String()}
				case engine.EventLevel:
					out = outEvent{Type: "level", Level: ev.Level}
				case engine.EventFilteredPrompt:
					out = outEvent{Type: "filteredPrompt", Text: ev.Filtered.Text, Reason: ev.Filtered.Reason}
				case engine.EventUnderrun:
					out = outEvent{Type: "underrun"}
				case engine.EventError:
					out = outEvent{Type: "error", Error: ev.Message}
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			}
		}
	}
}
