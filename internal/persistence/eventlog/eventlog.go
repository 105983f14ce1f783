// Package eventlog stores simulation runs as zstd-compressed JSON lines.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Garsondee/Evac-Sense/internal/evac"
)

// Record kinds.
const (
	KindHeader = "header"
	KindEntry  = "entry"
	KindTick   = "tick"
)

// ErrLateHeader is returned by WriteHeader once other records exist.
var ErrLateHeader = errors.New("eventlog: header must be the first record")

// Header opens every run file.
type Header struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Seed     int64  `json:"seed"`
	Agents   int    `json:"agents"`
}

// Record is one line of the log.
type Record struct {
	Kind   string            `json:"kind"`
	Header *Header           `json:"header,omitempty"`
	Entry  *evac.SimLogEntry `json:"entry,omitempty"`
	Tick   *evac.TickReport  `json:"tick,omitempty"`
}

// Writer appends records to a single .jsonl.zst file. It implements
// evac.EntrySink and is safe for concurrent use.
type Writer struct {
	path string

	mu    sync.Mutex
	f     *os.File
	enc   *zstd.Encoder
	w     *bufio.Writer
	lines int
}

// Create opens path for writing, creating parent directories as needed.
// An existing file is truncated.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Lines returns the number of records written so far.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// WriteHeader records the run metadata. It must precede every other record.
func (w *Writer) WriteHeader(h Header) error {
	return w.write(Record{Kind: KindHeader, Header: &h})
}

// WriteEntry records one SimLog entry.
func (w *Writer) WriteEntry(e evac.SimLogEntry) error {
	return w.write(Record{Kind: KindEntry, Entry: &e})
}

// WriteTick records a tick summary and flushes the buffer into the
// compressor.
func (w *Writer) WriteTick(r evac.TickReport) error {
	if err := w.write(Record{Kind: KindTick, Tick: &r}); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	return w.w.Flush()
}

func (w *Writer) write(rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	if rec.Kind == KindHeader && w.lines > 0 {
		return ErrLateHeader
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var errs []error
	if err := w.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, err)
	}
	w.w, w.enc, w.f = nil, nil, nil
	return errors.Join(errs...)
}

// Reader streams records back from a file written by Writer.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

// Open opens a log for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	return &Reader{f: f, dec: dec, sc: sc}, nil
}

// Next returns the next record, or io.EOF at the end of the log.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return rec, err
		}
		return rec, io.EOF
	}
	if err := json.Unmarshal(r.sc.Bytes(), &rec); err != nil {
		return rec, fmt.Errorf("eventlog: unmarshal: %w", err)
	}
	return rec, nil
}

// Close releases the decoder and file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll loads every record in path.
func ReadAll(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Entries filters the SimLog entries out of records.
func Entries(recs []Record) []evac.SimLogEntry {
	var out []evac.SimLogEntry
	for _, r := range recs {
		if r.Kind == KindEntry && r.Entry != nil {
			out = append(out, *r.Entry)
		}
	}
	return out
}

// Ticks filters the tick summaries out of records.
func Ticks(recs []Record) []evac.TickReport {
	var out []evac.TickReport
	for _, r := range recs {
		if r.Kind == KindTick && r.Tick != nil {
			out = append(out, *r.Tick)
		}
	}
	return out
}
