// Package display drains the frame mailbox on a fixed cadence and prepares
// each frame for the renderer: decimation, geometric transforms, flat-field,
// post-processing hooks and contrast windowing. Everything here runs on the
// consumer goroutine; control setters only stage requests that the next tick
// picks up.
package display

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mittoalb/pystream-sub000/internal/contrast"
	"github.com/mittoalb/pystream-sub000/internal/mailbox"
	"github.com/mittoalb/pystream-sub000/internal/processing"
	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Renderer receives the final array and contrast window. Render must not
// block; a slow downstream drops frames, it never stalls the pump.
type Renderer interface {
	Render(frame types.DecodedFrame, win contrast.Window)
}

// Config carries the pump settings. Zero values mean: unthrottled, auto
// decimation, contrast every 10th consumed frame, 5ms tick.
type Config struct {
	TargetFPS      float64
	Decimation     int
	AutoContrast   bool
	ContrastEvery  int
	Grayscale      bool
	FlatField      bool
	Transpose      bool
	FlipHorizontal bool
	FlipVertical   bool
	ViewportWidth  int
	ViewportHeight int
	TickInterval   time.Duration
}

const (
	defaultTick          = 5 * time.Millisecond
	defaultContrastEvery = 10

	// FPS exponential moving average weight.
	fpsAlpha = 0.2
)

// controls are the externally toggled inputs, staged under a small mutex and
// snapshotted at the top of each tick.
type controls struct {
	paused         bool
	grayscale      bool
	autoContrast   bool
	transpose      bool
	flipH          bool
	flipV          bool
	flatEnabled    bool
	decimation     int
	targetFPS      float64
	viewportW      int
	viewportH      int
	window         contrast.Window
	windowPending  bool
	flat           processing.FlatField
	flatSet        bool
	flatCapture    bool
}

// Pump owns the consumer side of the pipeline.
type Pump struct {
	mbox     *mailbox.Mailbox
	renderer Renderer
	hooks    *HookRegistry
	interval time.Duration
	every    int
	now      func() time.Time

	ctlMu sync.Mutex
	ctl   controls

	// Consumer-owned display state; touched only inside Tick.
	lastFrame  types.DecodedFrame
	haveFrame  bool
	window     contrast.Window
	consumed   uint64
	fps        float64
	lastRender time.Time

	statMu sync.Mutex
	stat   Status

	ticks    atomic.Uint64
	rendered atomic.Uint64
	skipped  atomic.Uint64
}

// Status is a point-in-time snapshot for the status surface.
type Status struct {
	Paused       bool            `json:"paused"`
	FPS          float64         `json:"fps"`
	Window       contrast.Window `json:"window"`
	LastUniqueID uint64          `json:"last_unique_id"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Channels     int             `json:"channels"`
	Dtype        string          `json:"dtype"`
	LastRenderAt time.Time       `json:"last_render_at"`
	TicksTotal   uint64          `json:"ticks_total"`
	Rendered     uint64          `json:"rendered_total"`
	Skipped      uint64          `json:"skipped_total"`
	HookFailures uint64          `json:"hook_failures_total"`
}

// New wires a pump to its mailbox and renderer. The renderer is an explicit
// dependency; the pump never discovers one ambiently.
func New(mbox *mailbox.Mailbox, renderer Renderer, hooks *HookRegistry, cfg Config) *Pump {
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTick
	}
	every := cfg.ContrastEvery
	if every <= 0 {
		every = defaultContrastEvery
	}
	return &Pump{
		mbox:     mbox,
		renderer: renderer,
		hooks:    hooks,
		interval: interval,
		every:    every,
		now:      time.Now,
		ctl: controls{
			grayscale:    cfg.Grayscale,
			autoContrast: cfg.AutoContrast,
			transpose:    cfg.Transpose,
			flipH:        cfg.FlipHorizontal,
			flipV:        cfg.FlipVertical,
			flatEnabled:  cfg.FlatField,
			decimation:   cfg.Decimation,
			targetFPS:    cfg.TargetFPS,
			viewportW:    cfg.ViewportWidth,
			viewportH:    cfg.ViewportHeight,
		},
	}
}

// Run ticks the pump until the context is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick runs one pump step. Returns true when a frame was rendered.
func (p *Pump) Tick() bool {
	p.ticks.Add(1)

	p.ctlMu.Lock()
	ctl := p.ctl
	p.ctl.windowPending = false
	p.ctlMu.Unlock()

	if ctl.windowPending {
		p.window = ctl.window
	}

	if ctl.paused {
		p.publishStatus(true)
		return false
	}

	now := p.now()
	if ctl.targetFPS > 0 && !p.lastRender.IsZero() {
		if now.Sub(p.lastRender) < time.Duration(float64(time.Second)/ctl.targetFPS) {
			return false
		}
	}

	item, ok := p.mbox.TryTake()
	if !ok {
		p.skipped.Add(1)
		return false
	}
	frame := item.Frame

	if ctl.grayscale && frame.Channels == 3 {
		frame = processing.Luminance(frame)
	}

	if b := p.decimation(ctl, frame); b > 1 {
		frame = processing.Decimate(frame, b)
	}

	// Fixed order: transpose, then horizontal flip, then vertical flip.
	if ctl.transpose {
		frame = processing.Transpose(frame)
	}
	if ctl.flipH {
		frame = processing.FlipH(frame)
	}
	if ctl.flipV {
		frame = processing.FlipV(frame)
	}

	if ctl.flatEnabled && ctl.flatSet {
		frame = ctl.flat.Apply(frame)
	}

	frame = p.hooks.apply(frame)

	if ctl.autoContrast && p.consumed%uint64(p.every) == 0 {
		p.window = contrast.Estimate(frame)
	}
	p.consumed++

	p.renderer.Render(frame, p.window)
	p.rendered.Add(1)

	if !p.lastRender.IsZero() {
		if dt := now.Sub(p.lastRender).Seconds(); dt > 0 {
			p.fps = (1-fpsAlpha)*p.fps + fpsAlpha*(1/dt)
		}
	}
	p.lastRender = now
	p.lastFrame = frame
	p.haveFrame = true

	if ctl.flatCapture {
		p.captureFlat()
		p.ctlMu.Lock()
		p.ctl.flatCapture = false
		p.ctlMu.Unlock()
	}

	p.publishStatus(false)
	return true
}

func (p *Pump) decimation(ctl controls, frame types.DecodedFrame) int {
	if ctl.decimation > 0 {
		return ctl.decimation
	}
	if ctl.viewportW <= 0 || ctl.viewportH <= 0 {
		return 1
	}
	b := frame.Height / ctl.viewportH
	if bw := frame.Width / ctl.viewportW; bw < b {
		b = bw
	}
	if b < 1 {
		b = 1
	}
	return b
}

// captureFlat turns the frame just rendered into the flat-field reference.
// Runs on the consumer goroutine so the display state stays thread-confined.
func (p *Pump) captureFlat() {
	if !p.haveFrame {
		return
	}
	ff, ok := processing.NewFlatField(p.lastFrame)
	if !ok {
		return
	}
	p.ctlMu.Lock()
	p.ctl.flat = ff
	p.ctl.flatSet = true
	p.ctlMu.Unlock()
}

func (p *Pump) publishStatus(paused bool) {
	snap := Status{
		Paused:       paused,
		FPS:          p.fps,
		Window:       p.window,
		LastRenderAt: p.lastRender,
		TicksTotal:   p.ticks.Load(),
		Rendered:     p.rendered.Load(),
		Skipped:      p.skipped.Load(),
		HookFailures: p.hooks.Failures(),
	}
	if p.haveFrame {
		snap.LastUniqueID = p.lastFrame.UniqueID
		snap.Width = p.lastFrame.Width
		snap.Height = p.lastFrame.Height
		snap.Channels = p.lastFrame.Channels
		snap.Dtype = p.lastFrame.Kind().String()
	}
	p.statMu.Lock()
	p.stat = snap
	p.statMu.Unlock()
}

// Status returns the latest snapshot. An FPS estimate older than two seconds
// is decayed toward zero so a stalled feed reads as such.
func (p *Pump) Status() Status {
	p.statMu.Lock()
	snap := p.stat
	p.statMu.Unlock()

	if !snap.LastRenderAt.IsZero() {
		if stale := time.Since(snap.LastRenderAt).Seconds(); stale > 2 {
			snap.FPS = snap.FPS * math.Exp(-(stale - 2))
		}
	}
	return snap
}

// Pause stops consumption; frames keep arriving and are overwritten in the
// mailbox unseen. Lossless for display state, lossy for mailbox contents.
func (p *Pump) Pause() { p.setPaused(true) }

// Resume restarts consumption immediately.
func (p *Pump) Resume() { p.setPaused(false) }

func (p *Pump) setPaused(v bool) {
	p.ctlMu.Lock()
	p.ctl.paused = v
	p.ctlMu.Unlock()
}

func (p *Pump) Paused() bool {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()
	return p.ctl.paused
}

// SetWindow pins an explicit contrast window; it holds until the next
// explicit set or auto-contrast recompute.
func (p *Pump) SetWindow(win contrast.Window) {
	p.ctlMu.Lock()
	p.ctl.window = win
	p.ctl.windowPending = true
	p.ctlMu.Unlock()
}

func (p *Pump) SetAutoContrast(enabled bool) {
	p.ctlMu.Lock()
	p.ctl.autoContrast = enabled
	p.ctlMu.Unlock()
}

func (p *Pump) SetGrayscale(enabled bool) {
	p.ctlMu.Lock()
	p.ctl.grayscale = enabled
	p.ctlMu.Unlock()
}

func (p *Pump) SetDecimation(b int) {
	p.ctlMu.Lock()
	p.ctl.decimation = b
	p.ctlMu.Unlock()
}

func (p *Pump) SetTargetFPS(fps float64) {
	p.ctlMu.Lock()
	p.ctl.targetFPS = fps
	p.ctlMu.Unlock()
}

func (p *Pump) SetViewport(w, h int) {
	p.ctlMu.Lock()
	p.ctl.viewportW = w
	p.ctl.viewportH = h
	p.ctlMu.Unlock()
}

func (p *Pump) SetFlatFieldEnabled(enabled bool) {
	p.ctlMu.Lock()
	p.ctl.flatEnabled = enabled
	p.ctlMu.Unlock()
}

// CaptureFlat asks the pump to adopt the next rendered frame's predecessor
// as the flat reference. Deferred to the consumer goroutine.
func (p *Pump) CaptureFlat() {
	p.ctlMu.Lock()
	p.ctl.flatCapture = true
	p.ctlMu.Unlock()
}

func (p *Pump) ClearFlat() {
	p.ctlMu.Lock()
	p.ctl.flatSet = false
	p.ctl.flat = processing.FlatField{}
	p.ctlMu.Unlock()
}
