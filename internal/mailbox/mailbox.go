// Package mailbox is the latest-wins exchange between the feed callback
// goroutine and the display loop. It is the only state shared across that
// boundary: a single slot where a new publish overwrites an unread frame.
package mailbox

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Queued is the unit moved through the mailbox. Ownership transfers fully to
// the mailbox on publish and fully to the consumer on take.
type Queued struct {
	ReceivedAt time.Time
	Frame      types.DecodedFrame
}

// Stats counts mailbox traffic. Dropped counts frames overwritten before any
// consumer saw them.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Taken     uint64 `json:"taken"`
}

// Mailbox holds at most one frame. Publish never blocks; TryTake never
// blocks; a taken slot stays empty until the next publish.
type Mailbox struct {
	mu   sync.Mutex
	slot *Queued

	published atomic.Uint64
	dropped   atomic.Uint64
	taken     atomic.Uint64
}

func New() *Mailbox {
	return &Mailbox{}
}

// Publish stores the frame as the newest pending one. If the previous frame
// was never taken it is discarded.
func (m *Mailbox) Publish(frame types.DecodedFrame) {
	item := &Queued{ReceivedAt: time.Now(), Frame: frame}

	m.mu.Lock()
	if m.slot != nil {
		m.dropped.Add(1)
	}
	m.slot = item
	m.mu.Unlock()

	m.published.Add(1)
}

// TryTake removes and returns the pending frame. ok is false when nothing
// new arrived since the last take.
func (m *Mailbox) TryTake() (Queued, bool) {
	m.mu.Lock()
	item := m.slot
	m.slot = nil
	m.mu.Unlock()

	if item == nil {
		return Queued{}, false
	}
	m.taken.Add(1)
	return *item, true
}

func (m *Mailbox) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Dropped:   m.dropped.Load(),
		Taken:     m.taken.Load(),
	}
}
