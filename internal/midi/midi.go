package midi

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/prompt"
)

// Message is one control-change message from a control surface.
type Message struct {
	Channel    int `json:"channel"`
	Controller int `json:"controller"`
	Value      int `json:"value"` // 0-127
}

// Device captures control-change messages from a physical surface.
// Capture blocks until ctx is cancelled or the device fails.
type Device interface {
	Name() string
	Capture(ctx context.Context, out chan<- Message) error
}

// WeightFunc applies a normalized weight to a prompt slot.
type WeightFunc func(promptID string, weight float64)

type binding struct {
	channel    int
	controller int
}

// Router maps (channel, controller) pairs to prompt slots and turns 7-bit
// controller values into weights. It performs no streaming or buffering;
// it only raises weight edits. A failed device disables this feature and
// nothing else.
type Router struct {
	log *zap.Logger
	fn  WeightFunc

	mu       sync.Mutex
	bindings map[binding]string
	learning string // prompt ID awaiting the next message, empty when idle
}

// NewRouter creates a router that forwards weight edits through fn.
func NewRouter(fn WeightFunc, log *zap.Logger) *Router {
	return &Router{
		log:      log,
		fn:       fn,
		bindings: make(map[binding]string),
	}
}

// BindDefaults binds each prompt's advisory CC number on channel 0.
func (r *Router) BindDefaults(set prompt.Set) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range set {
		r.bindings[binding{channel: 0, controller: p.CC}] = id
	}
}

// Bind maps a controller to a prompt slot, replacing any prior mapping of
// that controller.
func (r *Router) Bind(channel, controller int, promptID string) {
	r.mu.Lock()
	r.bindings[binding{channel: channel, controller: controller}] = promptID
	r.mu.Unlock()
}

// Learn arms the router: the next message binds its controller to promptID.
func (r *Router) Learn(promptID string) {
	r.mu.Lock()
	r.learning = promptID
	r.mu.Unlock()
}

// Learning returns the prompt ID awaiting a binding, or empty.
func (r *Router) Learning() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.learning
}

// Handle routes one message: completes a pending learn, or translates the
// value into a weight edit for the bound slot. Unbound messages are ignored.
func (r *Router) Handle(msg Message) {
	b := binding{channel: msg.Channel, controller: msg.Controller}

	r.mu.Lock()
	if r.learning != "" {
		r.bindings[b] = r.learning
		learned := r.learning
		r.learning = ""
		r.mu.Unlock()
		r.log.Info("controller learned",
			zap.Int("channel", msg.Channel),
			zap.Int("controller", msg.Controller),
			zap.String("prompt", learned))
		r.fn(learned, prompt.WeightFromCC(msg.Value))
		return
	}
	id, ok := r.bindings[b]
	r.mu.Unlock()

	if !ok {
		return
	}
	r.fn(id, prompt.WeightFromCC(msg.Value))
}

// Run captures from a device until ctx is cancelled. A capture failure is
// reported so the caller can disable the feature; playback is unaffected.
func (r *Router) Run(ctx context.Context, dev Device) error {
	msgs := make(chan Message, 32)

	errCh := make(chan error, 1)
	go func() {
		errCh <- dev.Capture(ctx, msgs)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				r.log.Warn("control surface unavailable",
					zap.String("device", dev.Name()), zap.Error(err))
				return fmt.Errorf("device %s: %w", dev.Name(), err)
			}
			return err
		case msg := <-msgs:
			r.Handle(msg)
		}
	}
}
