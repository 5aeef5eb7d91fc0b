package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camrelay/internal/cloud"
	"github.com/smazurov/camrelay/internal/cloud/cloudtest"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []string
	got    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{got: make(chan struct{}, 100)}
}

func (h *recordingHandler) HandleEvent(attr string, _ any) {
	h.mu.Lock()
	h.events = append(h.events, attr)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func (h *recordingHandler) Status() map[string]any {
	return map[string]any{"battery": 80}
}

type postingHandler struct {
	*recordingHandler
}

func (h *postingHandler) Post(attr string, value any) {
	h.HandleEvent(attr, value)
}

func waitEvents(t *testing.T, h *recordingHandler, n int) {
	t.Helper()
	for range n {
		select {
		case <-h.got:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %d events", n)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "front_door", NormalizeName("Front Door"))
	assert.Equal(t, "garage", NormalizeName(" Garage "))
	assert.Equal(t, "back_yard_cam", NormalizeName("Back yard cam"))
}

func TestRunRequiresHandler(t *testing.T) {
	a := NewActor(cloudtest.NewCamera("id", "Cam"), cloud.KindCamera, time.Minute)
	assert.Error(t, a.Run(context.Background()))
}

func TestRunDispatchesVendorEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cam := cloudtest.NewCamera("cam-1", "Front Door")
	h := newRecordingHandler()
	a := NewActor(cam, cloud.KindCamera, time.Minute)
	a.SetHandler(h)

	assert.Equal(t, "front_door", a.Name())
	assert.Equal(t, "cam-1", a.ID())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return cam.Subscribed() == 1 }, time.Second, 5*time.Millisecond)

	cam.Emit(cloud.AttrMotion, true)
	cam.Emit(cloud.AttrBattery, 50)
	waitEvents(t, h, 2)

	h.mu.Lock()
	assert.ElementsMatch(t, []string{cloud.AttrMotion, cloud.AttrBattery}, h.events)
	h.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPosterKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cam := cloudtest.NewCamera("cam-1", "Cam")
	h := &postingHandler{recordingHandler: newRecordingHandler()}
	a := NewActor(cam, cloud.KindCamera, time.Minute)
	a.SetHandler(h)
	go a.Run(ctx)

	require.Eventually(t, func() bool { return cam.Subscribed() == 1 }, time.Second, 5*time.Millisecond)
	attrs := []string{"a", "b", "c", "d", "e"}
	for _, attr := range attrs {
		cam.Emit(attr, nil)
	}
	waitEvents(t, h.recordingHandler, len(attrs))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, attrs, h.events)
}

func TestListenStatusHeartbeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewActor(cloudtest.NewCamera("cam-1", "Front Door"), cloud.KindCamera, 20*time.Millisecond)
	a.SetHandler(newRecordingHandler())
	go a.Run(ctx)

	statuses := a.ListenStatus(ctx)
	for range 3 {
		select {
		case st := <-statuses:
			assert.Equal(t, "front_door", st.Device)
			assert.Equal(t, 80, st.Fields["battery"])
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for heartbeat status")
		}
	}
}

func TestTriggerStatusCollapses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewActor(cloudtest.NewCamera("cam-1", "Cam"), cloud.KindCamera, time.Hour)
	a.SetHandler(newRecordingHandler())

	a.TriggerStatus()
	a.TriggerStatus()
	a.TriggerStatus()

	statuses := a.ListenStatus(ctx)
	select {
	case <-statuses:
	case <-time.After(time.Second):
		t.Fatal("expected one status")
	}
	select {
	case <-statuses:
		t.Fatal("repeated triggers should collapse into one status")
	case <-time.After(30 * time.Millisecond):
	}
}
