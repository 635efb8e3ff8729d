package dictionary

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jalad-shrimali/ffiec-income/config"
	"github.com/jalad-shrimali/ffiec-income/internal/fixture"
)

const sheet = "Data Dictionary"

func newResolver() *Resolver {
	cfg := config.Default()
	return NewResolver(Layout{
		Sheet:             cfg.Dictionary.Sheet,
		IndexColumn:       cfg.Dictionary.IndexColumn,
		DescriptionColumn: cfg.Dictionary.DescriptionColumn,
	}, cfg.Names(), zap.NewNop())
}

func writeDict(t *testing.T, entries []fixture.Entry) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "defs.xlsx")
	fixture.WriteDictionary(t, p, sheet, entries)
	return p
}

func TestResolveDefaultLayout(t *testing.T) {
	s, err := newResolver().ResolveFile(writeDict(t, fixture.DefaultEntries))
	if err != nil {
		t.Fatalf("ResolveFile: %v", err)
	}

	want := []Field{
		{1, "msa_geoid"},
		{2, "fips_state_code"},
		{3, "fips_county_code"},
		{4, "census_tract_code"},
		{6, "ffiec_msamd_mfi"},
		{8, "mfi_as_percent_of_msamd_mfi"},
		{9, "income_indicator"},
		{11, "poverty_level_percent"},
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d: %+v", len(s.Fields), len(want), s.Fields)
	}
	for i, f := range s.Fields {
		if f != want[i] {
			t.Errorf("field %d: got %+v, want %+v", i, f, want[i])
		}
		if f.Name == "" || f.Position < 0 {
			t.Errorf("field %d violates descriptor invariant: %+v", i, f)
		}
	}
	if s.MaxPosition() != 11 {
		t.Errorf("MaxPosition: got %d, want 11", s.MaxPosition())
	}
}

func TestResolveReader(t *testing.T) {
	data, err := os.ReadFile(writeDict(t, fixture.DefaultEntries))
	if err != nil {
		t.Fatal(err)
	}
	s, err := newResolver().ResolveReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ResolveReader: %v", err)
	}
	if f, ok := s.Lookup("income_indicator"); !ok || f.Position != 9 {
		t.Errorf("income_indicator: got %+v, %v", f, ok)
	}
}

func TestResolveIgnoresNearMatches(t *testing.T) {
	entries := append([]fixture.Entry(nil), fixture.DefaultEntries...)
	// trailing period differs: not an exact match, must not shadow the real row
	entries = append(entries, fixture.Entry{Index: "13", Description: "Key field. FIPS state code."})

	s, err := newResolver().ResolveFile(writeDict(t, entries))
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := s.Lookup("fips_state_code"); f.Position != 2 {
		t.Errorf("fips_state_code position: got %d, want 2", f.Position)
	}
}

func TestResolveMissingFieldIsFatal(t *testing.T) {
	var entries []fixture.Entry
	for _, e := range fixture.DefaultEntries {
		if !strings.HasPrefix(e.Description, "Poverty level percent") {
			entries = append(entries, e)
		}
	}

	_, err := newResolver().ResolveFile(writeDict(t, entries))
	if !errors.Is(err, ErrUnresolvedFields) {
		t.Fatalf("got %v, want ErrUnresolvedFields", err)
	}
	if !strings.Contains(err.Error(), "poverty_level_percent") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestResolveLayoutChanged(t *testing.T) {
	t.Run("wrong sheet", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "defs.xlsx")
		fixture.WriteDictionary(t, p, "Definitions", fixture.DefaultEntries)
		if _, err := newResolver().ResolveFile(p); !errors.Is(err, ErrSchemaChanged) {
			t.Fatalf("got %v, want ErrSchemaChanged", err)
		}
	})
	t.Run("renamed column", func(t *testing.T) {
		r := NewResolver(Layout{Sheet: sheet, IndexColumn: "Field Number", DescriptionColumn: "Description"},
			config.Default().Names(), zap.NewNop())
		if _, err := r.ResolveFile(writeDict(t, fixture.DefaultEntries)); !errors.Is(err, ErrSchemaChanged) {
			t.Fatalf("got %v, want ErrSchemaChanged", err)
		}
	})
}

func TestResolveBadIndex(t *testing.T) {
	entries := append([]fixture.Entry(nil), fixture.DefaultEntries...)
	entries[2].Index = "three"
	if _, err := newResolver().ResolveFile(writeDict(t, entries)); err == nil {
		t.Fatal("expected error for non-numeric index on a wanted row")
	}

	// a malformed index on an unwanted row is just discarded
	entries = append([]fixture.Entry(nil), fixture.DefaultEntries...)
	entries[0].Index = "n/a"
	if _, err := newResolver().ResolveFile(writeDict(t, entries)); err != nil {
		t.Fatalf("unwanted row should not matter: %v", err)
	}
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"same name", []Field{{1, "a_code"}, {2, "a_code"}}},
		{"same position", []Field{{1, "a_code"}, {1, "b_code"}}},
		{"empty name", []Field{{1, ""}}},
		{"negative position", []Field{{-1, "a_code"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSchema(tt.fields); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGeoidParts(t *testing.T) {
	// tract before state in the file layout: order comes from the names
	s, err := NewSchema([]Field{{0, "census_tract_code"}, {5, "fips_state_code"}, {3, "fips_county_code"}})
	if err != nil {
		t.Fatal(err)
	}
	parts, err := s.GeoidParts([]string{"fips_state_code", "fips_county_code", "census_tract_code"})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{parts[0].Name, parts[1].Name, parts[2].Name}
	want := []string{"fips_state_code", "fips_county_code", "census_tract_code"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := s.GeoidParts([]string{"fips_state_code", "block_code"}); err == nil {
		t.Error("expected error for unresolved part")
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"12.0", 12, false},
		{"12.5", 0, true},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseIndex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIndex(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
