package display

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Hook is a post-processing stage applied between flat-field correction and
// contrast estimation. Hooks must be pure with respect to display state and
// re-entrant; a failing hook is skipped, never fatal.
type Hook func(frame types.DecodedFrame) (types.DecodedFrame, error)

type hookEntry struct {
	name string
	fn   Hook
}

// HookRegistry is the statically-typed registry of post-processing hooks,
// populated at startup. Each entry is validated once against a probe frame
// before being admitted.
type HookRegistry struct {
	mu      sync.Mutex
	entries []hookEntry

	failures atomic.Uint64
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{}
}

// Register validates the hook on a small synthetic frame and admits it. A
// hook that errors on the probe, or returns a frame whose buffer disagrees
// with its geometry, is rejected.
func (r *HookRegistry) Register(name string, fn Hook) error {
	if fn == nil {
		return fmt.Errorf("hook %q is nil", name)
	}
	out, err := fn(probeFrame())
	if err != nil {
		return fmt.Errorf("hook %q failed probe: %w", name, err)
	}
	if !validFrame(out) {
		return fmt.Errorf("hook %q returned inconsistent frame shape", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.name == name {
			return fmt.Errorf("hook %q already registered", name)
		}
	}
	r.entries = append(r.entries, hookEntry{name: name, fn: fn})
	return nil
}

// Names lists registered hooks in application order.
func (r *HookRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Failures counts hook invocations that were skipped at tick time.
func (r *HookRegistry) Failures() uint64 {
	return r.failures.Load()
}

// apply runs the hooks in order. A hook that errors or produces an invalid
// frame is skipped and the previous frame kept; the tick never aborts.
func (r *HookRegistry) apply(frame types.DecodedFrame) types.DecodedFrame {
	r.mu.Lock()
	entries := r.entries
	r.mu.Unlock()

	for _, e := range entries {
		out, err := e.fn(frame)
		if err != nil || !validFrame(out) {
			r.failures.Add(1)
			if err != nil {
				log.Printf("hook %q failed: %v", e.name, err)
			} else {
				log.Printf("hook %q returned inconsistent frame shape", e.name)
			}
			continue
		}
		frame = out
	}
	return frame
}

func probeFrame() types.DecodedFrame {
	return types.DecodedFrame{
		Width:    2,
		Height:   2,
		Channels: 1,
		Pix:      types.Buf[uint16]{0, 1, 2, 3},
	}
}

func validFrame(f types.DecodedFrame) bool {
	return f.Pix != nil && f.Width > 0 && f.Height > 0 &&
		(f.Channels == 1 || f.Channels == 3) &&
		f.Pix.Len() == f.Elems()
}
