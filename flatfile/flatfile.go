// Package flatfile streams the zipped, headerless FFIEC census flat file,
// keeping only the columns resolved from the data dictionary.
package flatfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/jalad-shrimali/ffiec-income/dictionary"
	"github.com/jalad-shrimali/ffiec-income/record"
)

// ErrNoEntry means the archive has no usable csv member.
var ErrNoEntry = errors.New("no csv entry in flat file archive")

type Extractor struct {
	schema *dictionary.Schema
	logger *zap.Logger
}

func NewExtractor(schema *dictionary.Schema, logger *zap.Logger) *Extractor {
	return &Extractor{schema: schema, logger: logger}
}

// EachInZip opens the archive at zipPath and streams entry (or the only csv
// member when entry is empty) through fn.
func (e *Extractor) EachInZip(zipPath, entry string, fn func(record.Record) error) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("opening flat file archive: %w", err)
	}
	defer zr.Close()

	zf, err := pickEntry(zr.File, entry)
	if err != nil {
		return 0, err
	}
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", zf.Name, err)
	}
	defer rc.Close()

	e.logger.Info("reading flat file",
		zap.String("entry", zf.Name),
		zap.Uint64("uncompressed_bytes", zf.UncompressedSize64),
		zap.Int("columns", len(e.schema.Fields)))
	return e.Each(rc, fn)
}

func pickEntry(files []*zip.File, want string) (*zip.File, error) {
	var csvs []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if want != "" && (f.Name == want || path.Base(f.Name) == want) {
			return f, nil
		}
		if strings.EqualFold(path.Ext(f.Name), ".csv") {
			csvs = append(csvs, f)
		}
	}
	if want != "" {
		return nil, fmt.Errorf("%w: %q not found", ErrNoEntry, want)
	}
	if len(csvs) == 0 {
		return nil, ErrNoEntry
	}
	return csvs[0], nil
}

// Each decodes headerless csv rows from r and calls fn once per row with only
// the resolved columns. It returns the number of rows read.
func (e *Extractor) Each(r io.Reader, fn func(record.Record) error) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	need := e.schema.MaxPosition()
	if need < 0 {
		return 0, errors.New("empty schema")
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("flat file: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) <= need {
			return rows, fmt.Errorf("flat file line %d: %d columns, need at least %d", line, len(rec), need+1)
		}

		out := make(record.Record, len(e.schema.Fields))
		for _, f := range e.schema.Fields {
			out[f.Name] = record.Parse(f.Name, rec[f.Position])
		}
		rows++
		if err := fn(out); err != nil {
			return rows, fmt.Errorf("flat file line %d: %w", line, err)
		}
	}
	return rows, nil
}
