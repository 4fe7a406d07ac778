// Command pystream-sim publishes synthetic detector frames on a ZeroMQ PUB
// socket, matching the wire format the viewer subscribes to.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pebbe/zmq4"

	"github.com/mittoalb/pystream-sub000/internal/ingest"
	"github.com/mittoalb/pystream-sub000/internal/simulator"
)

func main() {
	var (
		bind   = flag.String("bind", "tcp://*:31001", "PUB socket bind address")
		topic  = flag.String("topic", "image", "Topic to publish under")
		width  = flag.Int("width", 640, "Frame width")
		height = flag.Int("height", 480, "Frame height")
		rate   = flag.Float64("rate", 20, "Frames per second")
	)
	flag.Parse()

	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		log.Fatalf("create socket: %v", err)
	}
	defer socket.Close()
	if err := socket.Bind(*bind); err != nil {
		log.Fatalf("bind %s: %v", *bind, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("publishing %dx%d frames at %.1f fps on %s topic %q", *width, *height, *rate, *bind, *topic)

	var sent uint64
	for raw := range simulator.Stream(ctx, *width, *height, *rate) {
		payload, err := ingest.Marshal(raw)
		if err != nil {
			log.Printf("marshal frame %d: %v", raw.UniqueID, err)
			continue
		}
		if _, err := socket.SendMessage(*topic, payload); err != nil {
			log.Printf("send frame %d: %v", raw.UniqueID, err)
			continue
		}
		sent++
		if sent%100 == 0 {
			log.Printf("published %d frames", sent)
		}
	}
}
