// Package ingest owns the detector feed: the CBOR wire codec, the frame
// decoder and the subscriber that moves decoded frames into the mailbox.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/mittoalb/pystream-sub000/internal/mailbox"
)

// Recorder receives every raw wire message before decoding. Optional.
type Recorder interface {
	Record(payload []byte) error
}

// SubscriberConfig identifies the feed. Topic is the sole logical connection
// parameter; Endpoint is where the topic is published.
type SubscriberConfig struct {
	Endpoint string
	Topic    string
	// LogEvery throttles per-frame error logging; 0 means every 100th.
	LogEvery int
	Recorder Recorder
}

const recvTimeout = 100 * time.Millisecond

// Subscriber owns the feed connection. Incoming messages are decoded on the
// receive goroutine (the producer side) and published into the mailbox;
// nothing else crosses to the consumer.
type Subscriber struct {
	cfg  SubscriberConfig
	mbox *mailbox.Mailbox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	received       atomic.Uint64
	published      atomic.Uint64
	emptyFrames    atomic.Uint64
	decodeFailures atomic.Uint64
	recordFailures atomic.Uint64

	logCounter atomic.Uint64
}

// SubscriberStats is a counter snapshot for the status surface.
type SubscriberStats struct {
	Received       uint64 `json:"received"`
	Published      uint64 `json:"published"`
	EmptyFrames    uint64 `json:"empty_frames"`
	DecodeFailures uint64 `json:"decode_failures"`
	RecordFailures uint64 `json:"record_failures"`
}

func NewSubscriber(cfg SubscriberConfig, mbox *mailbox.Mailbox) *Subscriber {
	if cfg.LogEvery < 1 {
		cfg.LogEvery = 100
	}
	return &Subscriber{cfg: cfg, mbox: mbox}
}

// Start opens the feed connection and begins receiving. Connection failure
// is the only fatal error on this path.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("ingest: subscriber already started")
	}

	socket, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return fmt.Errorf("ingest: create socket: %w", err)
	}
	if err := socket.Connect(s.cfg.Endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("ingest: connect %s: %w", s.cfg.Endpoint, err)
	}
	if err := socket.SetSubscribe(s.cfg.Topic); err != nil {
		_ = socket.Close()
		return fmt.Errorf("ingest: subscribe %q: %w", s.cfg.Topic, err)
	}
	if err := socket.SetRcvtimeo(recvTimeout); err != nil {
		_ = socket.Close()
		return fmt.Errorf("ingest: set receive timeout: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, socket, done)
	return nil
}

// Stop deregisters the feed and blocks until the in-flight message, if any,
// has been handled. Safe to call repeatedly and when never started; after it
// returns no further publishes occur.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Received:       s.received.Load(),
		Published:      s.published.Load(),
		EmptyFrames:    s.emptyFrames.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		RecordFailures: s.recordFailures.Load(),
	}
}

func (s *Subscriber) loop(ctx context.Context, socket *zmq4.Socket, done chan struct{}) {
	defer close(done)
	defer socket.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		parts, err := socket.RecvMessageBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			s.logEveryN("ingest recv error: %v", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}
		// Topic-prefixed multipart: the payload is the final part.
		s.handle(parts[len(parts)-1])
	}
}

// handle decodes one message and publishes the frame. Runs on the receive
// goroutine; nothing here may panic or block beyond the mailbox publish.
func (s *Subscriber) handle(payload []byte) {
	s.received.Add(1)

	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.Record(payload); err != nil {
			s.recordFailures.Add(1)
			s.logEveryN("ingest capture record failed: %v", err)
		}
	}

	raw, err := Unmarshal(payload)
	if err != nil {
		s.decodeFailures.Add(1)
		s.logEveryN("ingest wire decode failed: %v", err)
		return
	}

	frame, err := Decode(raw)
	switch {
	case err == nil:
		s.mbox.Publish(frame)
		s.published.Add(1)
	case errors.Is(err, ErrEmptyPayload), errors.Is(err, ErrNoDimensions):
		// Nothing ready this tick.
		s.emptyFrames.Add(1)
	default:
		s.decodeFailures.Add(1)
		s.logEveryN("ingest frame dropped: %v", err)
	}
}

func (s *Subscriber) logEveryN(format string, args ...any) {
	if s.logCounter.Add(1)%uint64(s.cfg.LogEvery) == 0 {
		log.Printf(format, args...)
	}
}
