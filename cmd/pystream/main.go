// Command pystream is the detector stream viewer service: it subscribes to
// the feed topic, decodes frames, pumps the newest one to the WebSocket
// renderer at the display cadence and serves the status/control surface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mittoalb/pystream-sub000/internal/capture"
	"github.com/mittoalb/pystream-sub000/internal/config"
	"github.com/mittoalb/pystream-sub000/internal/display"
	"github.com/mittoalb/pystream-sub000/internal/ingest"
	"github.com/mittoalb/pystream-sub000/internal/mailbox"
	"github.com/mittoalb/pystream-sub000/internal/server"
	"github.com/mittoalb/pystream-sub000/internal/simulator"
)

func main() {
	// .env is optional; environment variables feed the flag defaults.
	_ = godotenv.Load()

	defaults := config.AppConfig{
		Port:           8888,
		Endpoint:       "tcp://localhost:31001",
		Topic:          "image",
		DebugRate:      20,
		DebugWidth:     640,
		DebugHeight:    480,
		AutoContrast:   true,
		ContrastEvery:  10,
		CaptureDir:     "capture",
		IngestLogEvery: 100,
	}
	config.ApplyEnv(&defaults)

	var (
		port           = flag.Int("port", defaults.Port, "HTTP port for the viewer UI and status surface")
		endpoint       = flag.String("endpoint", defaults.Endpoint, "Detector feed endpoint")
		topic          = flag.String("topic", defaults.Topic, "Feed topic to subscribe to")
		debug          = flag.Bool("debug", defaults.Debug, "Run with simulated frames instead of the feed")
		debugRate      = flag.Float64("debug-rate", defaults.DebugRate, "Simulated acquisition rate (frames/sec)")
		debugWidth     = flag.Int("debug-width", defaults.DebugWidth, "Simulated frame width")
		debugHeight    = flag.Int("debug-height", defaults.DebugHeight, "Simulated frame height")
		targetFPS      = flag.Float64("target-fps", defaults.TargetFPS, "Display rate limit (0 = unthrottled)")
		decimation     = flag.Int("decimation", defaults.Decimation, "Fixed decimation factor (0 = auto from viewport)")
		autoContrast   = flag.Bool("auto-contrast", defaults.AutoContrast, "Recompute the contrast window periodically")
		contrastEvery  = flag.Int("contrast-every", defaults.ContrastEvery, "Recompute contrast every Nth consumed frame")
		grayscale      = flag.Bool("grayscale", defaults.Grayscale, "Display RGB frames as luminance")
		flatField      = flag.Bool("flat-field", defaults.FlatField, "Enable flat-field correction")
		transpose      = flag.Bool("transpose", defaults.Transpose, "Transpose frames before display")
		flipH          = flag.Bool("flip-h", defaults.FlipHorizontal, "Flip frames horizontally before display")
		flipV          = flag.Bool("flip-v", defaults.FlipVertical, "Flip frames vertically before display")
		viewportWidth  = flag.Int("viewport-width", defaults.ViewportWidth, "Viewport width for auto decimation (0 = none)")
		viewportHeight = flag.Int("viewport-height", defaults.ViewportHeight, "Viewport height for auto decimation (0 = none)")
		captureEnabled = flag.Bool("capture", defaults.CaptureEnabled, "Record raw feed messages to disk")
		captureDir     = flag.String("capture-dir", defaults.CaptureDir, "Directory for raw capture logs")
		ingestLogEvery = flag.Int("ingest-log-every", defaults.IngestLogEvery, "Log every Nth ingest error")
	)
	flag.Parse()

	cfg := config.AppConfig{
		Port:           *port,
		Endpoint:       *endpoint,
		Topic:          *topic,
		Debug:          *debug,
		DebugRate:      *debugRate,
		DebugWidth:     *debugWidth,
		DebugHeight:    *debugHeight,
		TargetFPS:      *targetFPS,
		Decimation:     *decimation,
		AutoContrast:   *autoContrast,
		ContrastEvery:  *contrastEvery,
		Grayscale:      *grayscale,
		FlatField:      *flatField,
		Transpose:      *transpose,
		FlipHorizontal: *flipH,
		FlipVertical:   *flipV,
		ViewportWidth:  *viewportWidth,
		ViewportHeight: *viewportHeight,
		CaptureEnabled: *captureEnabled,
		CaptureDir:     *captureDir,
		IngestLogEvery: *ingestLogEvery,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mbox := mailbox.New()
	hooks := display.NewHookRegistry()

	var recorder *capture.Writer
	if cfg.CaptureEnabled {
		writer, err := capture.NewWriter(cfg.CaptureDir, "raw_feed")
		if err != nil {
			log.Fatalf("failed to start capture log: %v", err)
		}
		recorder = writer
		log.Printf("recording raw feed to %s", writer.Path())
		go func() {
			<-ctx.Done()
			if err := writer.Close(); err != nil {
				log.Printf("capture log close failed: %v", err)
			}
		}()
	}

	var sub *ingest.Subscriber
	var simPublished atomic.Uint64
	var simDecodeErrs atomic.Uint64
	if cfg.Debug {
		go func() {
			for raw := range simulator.Stream(ctx, cfg.DebugWidth, cfg.DebugHeight, cfg.DebugRate) {
				frame, err := ingest.Decode(raw)
				if err != nil {
					simDecodeErrs.Add(1)
					continue
				}
				mbox.Publish(frame)
				simPublished.Add(1)
			}
		}()
	} else {
		subCfg := ingest.SubscriberConfig{
			Endpoint: cfg.Endpoint,
			Topic:    cfg.Topic,
			LogEvery: cfg.IngestLogEvery,
		}
		if recorder != nil {
			subCfg.Recorder = recorder
		}
		sub = ingest.NewSubscriber(subCfg, mbox)
		if err := sub.Start(); err != nil {
			log.Fatalf("failed to start feed subscriber: %v", err)
		}
		defer sub.Stop()
	}

	var pump *display.Pump

	statusFn := func() map[string]any {
		payload := map[string]any{
			"mailbox": mbox.Stats(),
			"pump":    pump.Status(),
		}
		if sub != nil {
			payload["ingest"] = sub.Stats()
			payload["source"] = "stream"
		} else {
			payload["source"] = "simulator"
			payload["sim_published_total"] = simPublished.Load()
			payload["sim_decode_err_total"] = simDecodeErrs.Load()
		}
		return payload
	}

	srv := server.New(cfg, statusFn)
	pump = display.New(mbox, srv, hooks, display.Config{
		TargetFPS:      cfg.TargetFPS,
		Decimation:     cfg.Decimation,
		AutoContrast:   cfg.AutoContrast,
		ContrastEvery:  cfg.ContrastEvery,
		Grayscale:      cfg.Grayscale,
		FlatField:      cfg.FlatField,
		Transpose:      cfg.Transpose,
		FlipHorizontal: cfg.FlipHorizontal,
		FlipVertical:   cfg.FlipVertical,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
	})
	srv.SetControls(pump)

	go pump.Run(ctx)

	log.Printf("viewer listening on http://localhost:%d (feed %s topic %q)", cfg.Port, cfg.Endpoint, cfg.Topic)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
