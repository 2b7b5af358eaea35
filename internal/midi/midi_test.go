package midi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/prompt"
)

type edit struct {
	id     string
	weight float64
}

func collect(edits *[]edit) WeightFunc {
	return func(id string, w float64) {
		*edits = append(*edits, edit{id: id, weight: w})
	}
}

func TestHandleRoutesBoundController(t *testing.T) {
	var edits []edit
	r := NewRouter(collect(&edits), zap.NewNop())
	r.Bind(0, 16, "prompt-a")

	r.Handle(Message{Channel: 0, Controller: 16, Value: 127})
	r.Handle(Message{Channel: 0, Controller: 16, Value: 0})

	require.Len(t, edits, 2)
	assert.Equal(t, "prompt-a", edits[0].id)
	assert.InDelta(t, 2.0, edits[0].weight, 0.001, "full deflection maps to max weight")
	assert.Equal(t, 0.0, edits[1].weight)
}

func TestHandleIgnoresUnboundController(t *testing.T) {
	var edits []edit
	r := NewRouter(collect(&edits), zap.NewNop())
	r.Bind(0, 16, "prompt-a")

	r.Handle(Message{Channel: 0, Controller: 99, Value: 64})
	r.Handle(Message{Channel: 1, Controller: 16, Value: 64}) // wrong channel

	assert.Empty(t, edits)
}

func TestBindDefaultsUsesCatalogCCs(t *testing.T) {
	var edits []edit
	r := NewRouter(collect(&edits), zap.NewNop())
	set := prompt.DefaultSet()
	r.BindDefaults(set)

	for id, p := range set {
		r.Handle(Message{Channel: 0, Controller: p.CC, Value: 64})
		require.NotEmpty(t, edits, "CC %d for %s not routed", p.CC, id)
		assert.Equal(t, id, edits[len(edits)-1].id)
	}
	assert.Len(t, edits, len(set))
}

func TestLearnBindsNextMessage(t *testing.T) {
	var edits []edit
	r := NewRouter(collect(&edits), zap.NewNop())

	r.Learn("prompt-c")
	assert.Equal(t, "prompt-c", r.Learning())

	r.Handle(Message{Channel: 2, Controller: 41, Value: 127})
	assert.Empty(t, r.Learning(), "learn completes on the first message")
	require.Len(t, edits, 1)
	assert.Equal(t, "prompt-c", edits[0].id)

	// The learned binding now routes normally
	r.Handle(Message{Channel: 2, Controller: 41, Value: 0})
	require.Len(t, edits, 2)
	assert.Equal(t, "prompt-c", edits[1].id)
}

func TestBindReplacesPriorMapping(t *testing.T) {
	var edits []edit
	r := NewRouter(collect(&edits), zap.NewNop())
	r.Bind(0, 16, "prompt-a")
	r.Bind(0, 16, "prompt-b")

	r.Handle(Message{Channel: 0, Controller: 16, Value: 64})
	require.Len(t, edits, 1)
	assert.Equal(t, "prompt-b", edits[0].id)
}

type fakeDevice struct {
	name string
	msgs []Message
	err  error
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Capture(ctx context.Context, out chan<- Message) error {
	for _, m := range d.msgs {
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.err != nil {
		return d.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunRoutesCapturedMessages(t *testing.T) {
	var edits []edit
	done := make(chan struct{})
	r := NewRouter(func(id string, w float64) {
		edits = append(edits, edit{id: id, weight: w})
		close(done)
	}, zap.NewNop())
	r.Bind(0, 16, "prompt-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := &fakeDevice{name: "test pad", msgs: []Message{{Channel: 0, Controller: 16, Value: 127}}}
	go r.Run(ctx, dev)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("captured message was not routed")
	}
	assert.Equal(t, "prompt-a", edits[0].id)
}

func TestRunReportsDeviceFailure(t *testing.T) {
	r := NewRouter(func(string, float64) {}, zap.NewNop())
	dev := &fakeDevice{name: "flaky pad", err: errors.New("device unplugged")}

	err := r.Run(context.Background(), dev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flaky pad")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := NewRouter(func(string, float64) {}, zap.NewNop())
	dev := &fakeDevice{name: "quiet pad"}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx, dev) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
