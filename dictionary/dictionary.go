// Package dictionary resolves flat-file column positions from the FFIEC
// census data dictionary workbook.
package dictionary

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	// ErrSchemaChanged means the workbook no longer has the expected sheet or
	// header columns.
	ErrSchemaChanged = errors.New("data dictionary layout changed")
	// ErrUnresolvedFields means at least one wanted description was not found.
	ErrUnresolvedFields = errors.New("data dictionary is missing wanted fields")
)

// Field is one resolved column: zero-based position in the flat file and the
// name it is renamed to.
type Field struct {
	Position int
	Name     string
}

// Schema is the set of resolved fields, ordered by position.
type Schema struct {
	Fields []Field
	byName map[string]Field
}

func NewSchema(fields []Field) (*Schema, error) {
	s := &Schema{byName: make(map[string]Field, len(fields))}
	seenPos := map[int]string{}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field at position %d has no name", f.Position)
		}
		if f.Position < 0 {
			return nil, fmt.Errorf("field %q has negative position %d", f.Name, f.Position)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("field %q resolved more than once", f.Name)
		}
		if other, dup := seenPos[f.Position]; dup {
			return nil, fmt.Errorf("position %d resolved to both %q and %q", f.Position, other, f.Name)
		}
		seenPos[f.Position] = f.Name
		s.byName[f.Name] = f
		s.Fields = append(s.Fields, f)
	}
	sort.Slice(s.Fields, func(i, j int) bool { return s.Fields[i].Position < s.Fields[j].Position })
	return s, nil
}

func (s *Schema) Lookup(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// MaxPosition is the highest resolved position, -1 for an empty schema.
func (s *Schema) MaxPosition() int {
	if len(s.Fields) == 0 {
		return -1
	}
	return s.Fields[len(s.Fields)-1].Position
}

// GeoidParts returns the named parts in the given order, failing when any is
// not part of the schema.
func (s *Schema) GeoidParts(parts []string) ([]Field, error) {
	out := make([]Field, 0, len(parts))
	for _, p := range parts {
		f, ok := s.byName[p]
		if !ok {
			return nil, fmt.Errorf("geoid part %q not resolved from data dictionary", p)
		}
		out = append(out, f)
	}
	return out, nil
}

/* ──────────── workbook reader ──────────── */

// Layout locates the two dictionary columns inside the workbook.
type Layout struct {
	Sheet             string
	IndexColumn       string
	DescriptionColumn string
}

type Resolver struct {
	layout Layout
	names  map[string]string // description → column name
	logger *zap.Logger
}

func NewResolver(layout Layout, names map[string]string, logger *zap.Logger) *Resolver {
	return &Resolver{layout: layout, names: names, logger: logger}
}

func norm(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }

// ResolveFile reads the workbook at path.
func (r *Resolver) ResolveFile(path string) (*Schema, error) {
	x, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening data dictionary: %w", err)
	}
	defer x.Close()
	return r.resolve(x)
}

// ResolveReader reads a workbook from an in-memory stream.
func (r *Resolver) ResolveReader(rd io.Reader) (*Schema, error) {
	x, err := excelize.OpenReader(rd)
	if err != nil {
		return nil, fmt.Errorf("opening data dictionary: %w", err)
	}
	defer x.Close()
	return r.resolve(x)
}

func (r *Resolver) resolve(x *excelize.File) (*Schema, error) {
	if idx, _ := x.GetSheetIndex(r.layout.Sheet); idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q not found (have %v)", ErrSchemaChanged, r.layout.Sheet, x.GetSheetList())
	}
	rows, err := x.GetRows(r.layout.Sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", r.layout.Sheet, err)
	}

	// header is the first row carrying both column titles
	iIdx, iDesc, hdrRow := -1, -1, -1
	for n, row := range rows {
		iIdx, iDesc = -1, -1
		for i, h := range row {
			switch norm(h) {
			case norm(r.layout.IndexColumn):
				iIdx = i
			case norm(r.layout.DescriptionColumn):
				iDesc = i
			}
		}
		if iIdx >= 0 && iDesc >= 0 {
			hdrRow = n
			break
		}
	}
	if hdrRow < 0 {
		return nil, fmt.Errorf("%w: columns %q/%q not found in sheet %q",
			ErrSchemaChanged, r.layout.IndexColumn, r.layout.DescriptionColumn, r.layout.Sheet)
	}

	var fields []Field
	scanned, dropped := 0, 0
	for n, row := range rows[hdrRow+1:] {
		scanned++
		rawIdx, desc := cell(row, iIdx), cell(row, iDesc)
		if strings.TrimSpace(rawIdx) == "" || strings.TrimSpace(desc) == "" {
			dropped++
			continue
		}
		name, wanted := r.names[desc]
		if !wanted {
			continue
		}
		pos, err := parseIndex(rawIdx)
		if err != nil {
			return nil, fmt.Errorf("sheet %q row %d (%s): %w", r.layout.Sheet, hdrRow+n+2, name, err)
		}
		fields = append(fields, Field{Position: pos - 1, Name: name})
	}

	if missing := r.missing(fields); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedFields, strings.Join(missing, ", "))
	}
	s, err := NewSchema(fields)
	if err != nil {
		return nil, err
	}

	r.logger.Info("resolved data dictionary",
		zap.String("sheet", r.layout.Sheet),
		zap.Int("rows_scanned", scanned),
		zap.Int("rows_incomplete", dropped),
		zap.Int("fields", len(s.Fields)))
	return s, nil
}

func (r *Resolver) missing(fields []Field) []string {
	got := make(map[string]bool, len(fields))
	for _, f := range fields {
		got[f.Name] = true
	}
	var out []string
	for _, name := range r.names {
		if !got[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseIndex accepts "12" as well as spreadsheet-formatted "12.0".
func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("index %d is not one-based", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("index %q is not an integer", s)
	}
	if f < 1 {
		return 0, fmt.Errorf("index %q is not one-based", s)
	}
	return int(f), nil
}
