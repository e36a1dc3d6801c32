// Package journal keeps an append-only, zstd-compressed JSONL record of every
// mutation attempt, rotated daily.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/mutation"
)

// Entry is one journal line.
type Entry struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	Op         string    `json:"op"`
	ID         string    `json:"id,omitempty"`
	Outcome    string    `json:"outcome"`
	DurationMS float64   `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// FromEvent converts a coordinator event.
func FromEvent(ev mutation.Event) Entry {
	e := Entry{
		Time:       ev.Time.UTC(),
		Kind:       string(ev.Kind),
		Op:         ev.Op,
		ID:         ev.ID,
		Outcome:    string(ev.Outcome),
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

type Writer struct {
	baseDir string
	prefix  string
	log     logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewWriter(baseDir string, log logging.Logger) *Writer {
	if log == nil {
		log = logging.Noop()
	}
	return &Writer{baseDir: baseDir, prefix: "mutations", log: log, now: time.Now}
}

// Observe journals ev. Write failures are logged, never returned, so the
// journal cannot fail a mutation.
func (w *Writer) Observe(ev mutation.Event) {
	if err := w.Write(FromEvent(ev)); err != nil {
		w.log.Error(context.Background(), "journal write failed", logging.Err(err))
	}
}

func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := w.now().UTC().Format("2006-01-02")
	if day != w.curDay {
		if err := w.rotateLocked(day); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Path returns the file entries written on day go to.
func (w *Writer) Path(day time.Time) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, day.UTC().Format("2006-01-02")))
}

func (w *Writer) rotateLocked(day string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curDay = day
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// ReadFile decodes every entry in a journal file, including files appended
// to across restarts (one zstd frame per session). A truncated trailing
// frame, left by a writer that is still open or died, ends the read.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	jd := json.NewDecoder(dec)
	for {
		var e Entry
		if err := jd.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, e)
	}
}
