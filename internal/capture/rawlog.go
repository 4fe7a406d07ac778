// Package capture records raw feed messages to a timestamped, length
// prefixed binary log for offline decoding. Wire diagnostics, not image
// export.
package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logMagic = "PVSCAP01"

// Writer appends raw wire messages to a capture log. Safe for concurrent
// use; the subscriber records from its receive goroutine.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

func NewWriter(dir string, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(logMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w, path: path}, nil
}

// Path returns the location of the log file.
func (c *Writer) Path() string { return c.path }

// Record appends one message with its receive timestamp.
func (c *Writer) Record(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return fmt.Errorf("capture: writer is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := c.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Writer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	if err := c.w.Flush(); err != nil {
		_ = c.f.Close()
		c.w = nil
		return err
	}
	err := c.f.Close()
	c.w = nil
	return err
}

// Record is one captured message.
type Record struct {
	Timestamp time.Time
	Payload   []byte
}

// Reader iterates a capture log.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)
	header := make([]byte, len(logMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("capture: read magic: %w", err)
	}
	if string(header) != logMagic {
		_ = f.Close()
		return nil, fmt.Errorf("capture: unexpected magic %q", string(header))
	}
	return &Reader{f: f, r: r}, nil
}

// Next returns the next record, or io.EOF at the end of the log.
func (c *Reader) Next() (Record, error) {
	var meta [12]byte
	if _, err := io.ReadFull(c.r, meta[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Record{}, err
	}
	return Record{Timestamp: time.Unix(0, ts), Payload: payload}, nil
}

func (c *Reader) Close() error {
	return c.f.Close()
}
