// Package output writes transformed tract records as gzip-compressed,
// line-delimited JSON.
package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jalad-shrimali/ffiec-income/record"
)

// ErrInvalidMode is returned by ParseMode for anything but dev or prod.
var ErrInvalidMode = errors.New("mode must be dev or prod")

type Mode string

const (
	Prod Mode = "prod"
	Dev  Mode = "dev"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Prod, Dev:
		return m, nil
	case "":
		return Prod, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidMode, s)
	}
}

// FileName returns the output name for the mode: dev runs get prefix.
func FileName(mode Mode, name, devPrefix string) string {
	if mode == Dev {
		return devPrefix + name
	}
	return name
}

// Filter decides which records are published.
type Filter struct {
	Mode      Mode
	GeoidName string
	DevState  string
}

// Keep is true for every record in prod mode and only for records whose geoid
// starts with DevState in dev mode.
func (f Filter) Keep(r record.Record) bool {
	if f.Mode != Dev {
		return true
	}
	return strings.HasPrefix(r.String(f.GeoidName), f.DevState)
}

type line struct {
	Properties properties `json:"properties"`
}

// properties encodes a record with the listed columns first, in order, and
// any other keys after them sorted.
type properties struct {
	columns []string
	r       record.Record
}

func (p properties) keys() []string {
	keys := make([]string, 0, len(p.r))
	seen := make(map[string]bool, len(p.columns))
	for _, c := range p.columns {
		if _, ok := p.r[c]; ok && !seen[c] {
			keys = append(keys, c)
			seen[c] = true
		}
	}
	var rest []string
	for k := range p.r {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (p properties) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)

	b.WriteByte('{')
	for i, k := range p.keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		b.Truncate(b.Len() - 1) // Encode appends a newline
		b.WriteByte(':')
		if err := enc.Encode(p.r[k]); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		b.Truncate(b.Len() - 1)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Writer streams records into a temp file next to the destination. Commit
// renames it into place; Abort discards it, so readers never see a
// truncated file.
type Writer struct {
	dst     string
	columns []string
	tmp     *os.File
	buf     *bufio.Writer
	gz      *gzip.Writer
	enc     *json.Encoder
	count   int
	done    bool
}

// Create opens a writer for dst. Each line lists columns in the given order.
func Create(dst string, columns []string) (*Writer, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(tmp, 1<<16)
	gz := gzip.NewWriter(buf)
	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)
	return &Writer{dst: dst, columns: columns, tmp: tmp, buf: buf, gz: gz, enc: enc}, nil
}

func (w *Writer) Path() string { return w.dst }
func (w *Writer) Count() int   { return w.count }

// Write appends one {"properties": {...}} line.
func (w *Writer) Write(r record.Record) error {
	if w.done {
		return errors.New("ndjson writer already closed")
	}
	if err := w.enc.Encode(line{Properties: properties{columns: w.columns, r: r}}); err != nil {
		return fmt.Errorf("encode record %d: %w", w.count+1, err)
	}
	w.count++
	return nil
}

// Commit flushes the gzip stream and moves the file to its final path.
func (w *Writer) Commit() error {
	if w.done {
		return errors.New("ndjson writer already closed")
	}
	w.done = true

	err := w.gz.Close()
	if err == nil {
		err = w.buf.Flush()
	}
	if err == nil {
		err = w.tmp.Sync()
	}
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(w.tmp.Name(), w.dst)
	}
	if err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("write %s: %w", w.dst, err)
	}
	return nil
}

// Abort drops the partial output. Safe after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
