package ingest

import (
	"testing"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/stretchr/testify/require"

	"github.com/mittoalb/pystream-sub000/internal/mailbox"
	"github.com/mittoalb/pystream-sub000/internal/types"
)

func goodPayload(t *testing.T, uid uint64) []byte {
	t.Helper()
	payload, err := Marshal(RawFrame{
		UniqueID: uid,
		Dims:     []Dim{{Size: 2}, {Size: 2}},
		Value:    types.Buf[uint16]{1, 2, 3, 4},
	})
	require.NoError(t, err)
	return payload
}

func TestHandlePublishesDecodedFrame(t *testing.T) {
	mbox := mailbox.New()
	s := NewSubscriber(SubscriberConfig{Endpoint: "tcp://localhost:1", Topic: "image"}, mbox)

	s.handle(goodPayload(t, 9))

	got, ok := mbox.TryTake()
	require.True(t, ok)
	require.Equal(t, uint64(9), got.Frame.UniqueID)

	stats := s.Stats()
	require.Equal(t, uint64(1), stats.Received)
	require.Equal(t, uint64(1), stats.Published)
}

func TestHandleSkipsEmptyFrames(t *testing.T) {
	mbox := mailbox.New()
	s := NewSubscriber(SubscriberConfig{Endpoint: "tcp://localhost:1", Topic: "image"}, mbox)

	payload, err := Marshal(RawFrame{UniqueID: 1})
	require.NoError(t, err)
	s.handle(payload)

	_, ok := mbox.TryTake()
	require.False(t, ok)
	require.Equal(t, uint64(1), s.Stats().EmptyFrames)
	require.Zero(t, s.Stats().DecodeFailures)
}

func TestHandleCountsDecodeFailures(t *testing.T) {
	mbox := mailbox.New()
	s := NewSubscriber(SubscriberConfig{Endpoint: "tcp://localhost:1", Topic: "image"}, mbox)

	s.handle([]byte("not cbor at all"))
	require.Equal(t, uint64(1), s.Stats().DecodeFailures)

	// A decodable wire message with an unusable layout also counts.
	payload, err := Marshal(RawFrame{
		UniqueID: 2,
		Dims:     []Dim{{Size: 2}, {Size: 2}, {Size: 2}, {Size: 2}},
		Value:    make(types.Buf[uint8], 16),
	})
	require.NoError(t, err)
	s.handle(payload)
	require.Equal(t, uint64(2), s.Stats().DecodeFailures)

	_, ok := mbox.TryTake()
	require.False(t, ok)
}

type memRecorder struct {
	payloads [][]byte
}

func (r *memRecorder) Record(payload []byte) error {
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	return nil
}

func TestHandleRecordsRawPayload(t *testing.T) {
	rec := &memRecorder{}
	mbox := mailbox.New()
	s := NewSubscriber(SubscriberConfig{
		Endpoint: "tcp://localhost:1",
		Topic:    "image",
		Recorder: rec,
	}, mbox)

	payload := goodPayload(t, 3)
	s.handle(payload)

	require.Len(t, rec.payloads, 1)
	require.Equal(t, payload, rec.payloads[0])
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{Endpoint: "tcp://localhost:1", Topic: "image"}, mailbox.New())
	s.Stop()
	s.Stop()
}

func TestSubscriberLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("zmq loopback in short mode")
	}

	pub, err := zmq4.NewSocket(zmq4.PUB)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Bind("tcp://127.0.0.1:*"))
	endpoint, err := pub.GetLastEndpoint()
	require.NoError(t, err)

	mbox := mailbox.New()
	s := NewSubscriber(SubscriberConfig{Endpoint: endpoint, Topic: "image"}, mbox)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Error(t, s.Start(), "second start must fail")

	// PUB drops messages until the subscription propagates; keep sending.
	payload := goodPayload(t, 42)
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := pub.SendMessage("image", payload)
		require.NoError(t, err)

		if got, ok := mbox.TryTake(); ok {
			require.Equal(t, uint64(42), got.Frame.UniqueID)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no frame arrived over loopback")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Stop()
	s.Stop()
}
