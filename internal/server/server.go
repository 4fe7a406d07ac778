// Package server is the renderer: a WebSocket push server broadcasting
// rendered frames to viewer clients, plus the status/config HTTP surface and
// the inbound control channel (pause, contrast, grayscale, flat-field).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mittoalb/pystream-sub000/internal/config"
	"github.com/mittoalb/pystream-sub000/internal/contrast"
	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Controls is the pump surface the control channel drives.
type Controls interface {
	Pause()
	Resume()
	Paused() bool
	SetWindow(win contrast.Window)
	SetAutoContrast(enabled bool)
	SetGrayscale(enabled bool)
	SetDecimation(b int)
	SetTargetFPS(fps float64)
	SetViewport(w, h int)
	SetFlatFieldEnabled(enabled bool)
	CaptureFlat()
	ClearFlat()
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// frameBacklog bounds the queue between the pump and the broadcast
	// goroutine; Render drops instead of blocking when it is full.
	frameBacklog = 4
)

type framePayload struct {
	Type     string          `json:"type"`
	UniqueID uint64          `json:"unique_id"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Channels int             `json:"channels"`
	Dtype    string          `json:"dtype"`
	Window   contrast.Window `json:"window"`
	Pixels   []byte          `json:"pixels"`
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server implements display.Renderer over WebSocket.
type Server struct {
	upgrader websocket.Upgrader
	cfg      config.AppConfig
	controls Controls
	statusFn func() map[string]any

	mu      sync.Mutex
	clients map[string]*client

	frames chan framePayload

	broadcast      atomic.Uint64
	renderDropped  atomic.Uint64
	controlErrors  atomic.Uint64
}

func New(cfg config.AppConfig, statusFn func() map[string]any) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		statusFn: statusFn,
		clients:  make(map[string]*client),
		frames:   make(chan framePayload, frameBacklog),
	}
}

// SetControls attaches the pump surface once it exists; the server renders
// into the pump's renderer slot while the pump is driven by the server's
// control channel, so one side is wired late.
func (s *Server) SetControls(controls Controls) {
	s.controls = controls
}

// Render queues a frame toward connected clients. Never blocks: when the
// broadcast goroutine is behind, the frame is dropped in favor of a newer
// one.
func (s *Server) Render(frame types.DecodedFrame, win contrast.Window) {
	payload := framePayload{
		Type:     "frame",
		UniqueID: frame.UniqueID,
		Width:    frame.Width,
		Height:   frame.Height,
		Channels: frame.Channels,
		Dtype:    frame.Kind().String(),
		Window:   win,
		Pixels:   types.AppendLE(nil, frame.Pix),
	}
	select {
	case s.frames <- payload:
	default:
		s.renderDropped.Add(1)
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/config", s.handleConfig)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcastLoop(ctx)

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	id := uuid.NewString()
	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	_ = s.writeJSON(c, s.configPayload())

	go s.readLoop(id, c)
}

func (s *Server) readLoop(id string, c *client) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.writeMessage(c, websocket.PingMessage, nil); err != nil {
					_ = c.conn.Close()
					return
				}
			}
		}
	}()
	defer close(done)
	defer s.removeClient(id)

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var request map[string]any
		if err := json.Unmarshal(payload, &request); err != nil {
			s.controlErrors.Add(1)
			continue
		}
		if err := s.handleControl(request); err != nil {
			s.controlErrors.Add(1)
			_ = s.writeJSON(c, map[string]any{"type": "error", "error": err.Error()})
		}
	}
}

// handleControl applies one inbound control message to the pump.
func (s *Server) handleControl(request map[string]any) error {
	kind, _ := request["type"].(string)
	if s.controls == nil {
		return fmt.Errorf("controls unavailable")
	}
	switch kind {
	case "pause":
		s.controls.Pause()
	case "resume":
		s.controls.Resume()
	case "set_contrast":
		low, lok := asFloat(request["low"])
		high, hok := asFloat(request["high"])
		if !lok || !hok || high <= low {
			return fmt.Errorf("set_contrast requires low < high")
		}
		s.controls.SetWindow(contrast.Window{Low: low, High: high})
	case "auto_contrast":
		s.controls.SetAutoContrast(asBool(request["enabled"]))
	case "grayscale":
		s.controls.SetGrayscale(asBool(request["enabled"]))
	case "decimation":
		b, ok := asFloat(request["factor"])
		if !ok || b < 0 {
			return fmt.Errorf("decimation requires a non-negative factor")
		}
		s.controls.SetDecimation(int(b))
	case "target_fps":
		fps, ok := asFloat(request["fps"])
		if !ok || fps < 0 {
			return fmt.Errorf("target_fps requires a non-negative fps")
		}
		s.controls.SetTargetFPS(fps)
	case "viewport":
		w, wok := asFloat(request["width"])
		h, hok := asFloat(request["height"])
		if !wok || !hok {
			return fmt.Errorf("viewport requires width and height")
		}
		s.controls.SetViewport(int(w), int(h))
	case "flat_field":
		s.controls.SetFlatFieldEnabled(asBool(request["enabled"]))
	case "flat_capture":
		s.controls.CaptureFlat()
	case "flat_clear":
		s.controls.ClearFlat()
	default:
		return fmt.Errorf("unknown control %q", kind)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	payload["ws_clients"] = s.clientCount()
	payload["render_dropped_total"] = s.renderDropped.Load()
	payload["frames_broadcast_total"] = s.broadcast.Load()
	payload["control_errors_total"] = s.controlErrors.Load()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) configPayload() map[string]any {
	return map[string]any{
		"type":           "config",
		"endpoint":       s.cfg.Endpoint,
		"topic":          s.cfg.Topic,
		"port":           s.cfg.Port,
		"target_fps":     s.cfg.TargetFPS,
		"decimation":     s.cfg.Decimation,
		"auto_contrast":  s.cfg.AutoContrast,
		"contrast_every": s.cfg.ContrastEvery,
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.frames:
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			var stale []string
			s.mu.Lock()
			conns := make(map[string]*client, len(s.clients))
			for id, c := range s.clients {
				conns[id] = c
			}
			s.mu.Unlock()
			for id, c := range conns {
				if err := s.writeMessage(c, websocket.TextMessage, data); err != nil {
					stale = append(stale, id)
				}
			}
			for _, id := range stale {
				s.removeClient(id)
			}
			s.broadcast.Add(1)
		}
	}
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	c, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(c *client, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(payload)
}

func (s *Server) writeMessage(c *client, messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
