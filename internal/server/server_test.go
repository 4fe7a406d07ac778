package server

import (
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mittoalb/pystream-sub000/internal/config"
	"github.com/mittoalb/pystream-sub000/internal/contrast"
	"github.com/mittoalb/pystream-sub000/internal/types"
)

type fakeControls struct {
	mu          sync.Mutex
	paused      bool
	window      contrast.Window
	auto        bool
	grayscale   bool
	decimation  int
	targetFPS   float64
	viewportW   int
	viewportH   int
	flatEnabled bool
	captures    int
	clears      int
}

func (f *fakeControls) Pause()  { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeControls) Resume() { f.mu.Lock(); f.paused = false; f.mu.Unlock() }
func (f *fakeControls) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}
func (f *fakeControls) SetWindow(win contrast.Window) {
	f.mu.Lock()
	f.window = win
	f.mu.Unlock()
}
func (f *fakeControls) SetAutoContrast(enabled bool) { f.mu.Lock(); f.auto = enabled; f.mu.Unlock() }
func (f *fakeControls) SetGrayscale(enabled bool) {
	f.mu.Lock()
	f.grayscale = enabled
	f.mu.Unlock()
}
func (f *fakeControls) SetDecimation(b int)      { f.mu.Lock(); f.decimation = b; f.mu.Unlock() }
func (f *fakeControls) SetTargetFPS(fps float64) { f.mu.Lock(); f.targetFPS = fps; f.mu.Unlock() }
func (f *fakeControls) SetViewport(w, h int) {
	f.mu.Lock()
	f.viewportW, f.viewportH = w, h
	f.mu.Unlock()
}
func (f *fakeControls) SetFlatFieldEnabled(enabled bool) {
	f.mu.Lock()
	f.flatEnabled = enabled
	f.mu.Unlock()
}
func (f *fakeControls) CaptureFlat() { f.mu.Lock(); f.captures++; f.mu.Unlock() }
func (f *fakeControls) ClearFlat()   { f.mu.Lock(); f.clears++; f.mu.Unlock() }

func newTestServer() (*Server, *fakeControls) {
	s := New(config.AppConfig{Port: 8888, Endpoint: "tcp://localhost:31001", Topic: "image"}, nil)
	controls := &fakeControls{}
	s.SetControls(controls)
	return s, controls
}

func TestHandleControl(t *testing.T) {
	s, controls := newTestServer()

	require.NoError(t, s.handleControl(map[string]any{"type": "pause"}))
	require.True(t, controls.Paused())
	require.NoError(t, s.handleControl(map[string]any{"type": "resume"}))
	require.False(t, controls.Paused())

	require.NoError(t, s.handleControl(map[string]any{
		"type": "set_contrast", "low": 10.0, "high": 200.0,
	}))
	require.Equal(t, contrast.Window{Low: 10, High: 200}, controls.window)

	require.NoError(t, s.handleControl(map[string]any{"type": "auto_contrast", "enabled": true}))
	require.True(t, controls.auto)

	require.NoError(t, s.handleControl(map[string]any{"type": "grayscale", "enabled": true}))
	require.True(t, controls.grayscale)

	require.NoError(t, s.handleControl(map[string]any{"type": "decimation", "factor": 4.0}))
	require.Equal(t, 4, controls.decimation)

	require.NoError(t, s.handleControl(map[string]any{"type": "target_fps", "fps": 15.0}))
	require.Equal(t, 15.0, controls.targetFPS)

	require.NoError(t, s.handleControl(map[string]any{"type": "viewport", "width": 800.0, "height": 600.0}))
	require.Equal(t, 800, controls.viewportW)
	require.Equal(t, 600, controls.viewportH)

	require.NoError(t, s.handleControl(map[string]any{"type": "flat_field", "enabled": true}))
	require.True(t, controls.flatEnabled)
	require.NoError(t, s.handleControl(map[string]any{"type": "flat_capture"}))
	require.Equal(t, 1, controls.captures)
	require.NoError(t, s.handleControl(map[string]any{"type": "flat_clear"}))
	require.Equal(t, 1, controls.clears)
}

func TestHandleControlRejects(t *testing.T) {
	s, _ := newTestServer()

	require.Error(t, s.handleControl(map[string]any{"type": "warp_drive"}))
	require.Error(t, s.handleControl(map[string]any{"type": "set_contrast", "low": 9.0, "high": 1.0}))
	require.Error(t, s.handleControl(map[string]any{"type": "set_contrast", "low": "a", "high": 2.0}))
	require.Error(t, s.handleControl(map[string]any{"type": "decimation", "factor": -1.0}))
	require.Error(t, s.handleControl(map[string]any{"type": "target_fps", "fps": -5.0}))
	require.Error(t, s.handleControl(map[string]any{"type": "viewport", "width": 800.0}))

	bare := New(config.AppConfig{}, nil)
	require.Error(t, bare.handleControl(map[string]any{"type": "pause"}))
}

func TestRenderDropsWhenBacklogFull(t *testing.T) {
	s, _ := newTestServer()
	frame := types.DecodedFrame{
		Width: 2, Height: 1, Channels: 1,
		Pix: types.Buf[uint16]{1, 2},
	}
	// Nothing drains the channel, so only the backlog fits.
	for i := 0; i < frameBacklog+3; i++ {
		s.Render(frame, contrast.Window{})
	}
	require.Equal(t, uint64(3), s.renderDropped.Load())
	require.Len(t, s.frames, frameBacklog)
}

func TestStatusEndpoint(t *testing.T) {
	s := New(config.AppConfig{Port: 8888}, func() map[string]any {
		return map[string]any{"fps": 9.5}
	})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, 9.5, payload["fps"])
	require.Equal(t, 0.0, payload["ws_clients"])
	require.Contains(t, payload, "render_dropped_total")
	require.Contains(t, payload, "frames_broadcast_total")
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.handleConfig(rec, httptest.NewRequest("GET", "/config", nil))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, "config", payload["type"])
	require.Equal(t, "tcp://localhost:31001", payload["endpoint"])
	require.Equal(t, "image", payload["topic"])
	require.Equal(t, 8888.0, payload["port"])
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
