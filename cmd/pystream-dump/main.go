// Command pystream-dump decodes a raw capture log and prints a per-frame
// summary, for checking what a detector actually sent.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mittoalb/pystream-sub000/internal/capture"
	"github.com/mittoalb/pystream-sub000/internal/ingest"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to a capture .bin file")
		limit = flag.Int("limit", 10, "Max records to dump (0 = all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	reader, err := capture.OpenReader(*path)
	if err != nil {
		log.Fatalf("open capture: %v", err)
	}
	defer reader.Close()

	var total, decoded, failed int
	for {
		if *limit > 0 && total >= *limit {
			break
		}
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read record: %v", err)
		}
		total++

		raw, err := ingest.Unmarshal(record.Payload)
		if err != nil {
			failed++
			fmt.Printf("record %d @ %s: wire decode failed: %v\n",
				total, record.Timestamp.Format(time.RFC3339Nano), err)
			continue
		}

		frame, err := ingest.Decode(raw)
		if err != nil {
			failed++
			fmt.Printf("record %d @ %s: uid=%d dims=%v decode failed: %v\n",
				total, record.Timestamp.Format(time.RFC3339Nano), raw.UniqueID, dimSizes(raw.Dims), err)
			continue
		}
		decoded++
		fmt.Printf("record %d @ %s: uid=%d %dx%d ch=%d %s mode=%d\n",
			total, record.Timestamp.Format(time.RFC3339Nano),
			frame.UniqueID, frame.Width, frame.Height, frame.Channels,
			frame.Kind(), ingest.ColorModeOf(raw.Attrs))
	}

	fmt.Printf("summary: records=%d decoded=%d failed=%d\n", total, decoded, failed)
}

func dimSizes(dims []ingest.Dim) []int {
	sizes := make([]int, len(dims))
	for i, d := range dims {
		sizes[i] = d.Size
	}
	return sizes
}
