package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jalad-shrimali/ffiec-income/record"
)

var columns = []string{
	"census_tract_geoid", "msa_geoid", "ffiec_msamd_mfi",
	"income_indicator", "poverty_level_percent", "low_income_community",
}

func openTest(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, "census_tract_geoid", columns, []string{"low_income_community"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "ffiec.db"))

	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	r := record.Record{
		"census_tract_geoid":    "25017353202",
		"msa_geoid":             "14460",
		"ffiec_msamd_mfi":       int64(120800),
		"income_indicator":      int64(1),
		"poverty_level_percent": 12.5,
		"low_income_community":  true,
	}
	if err := s.Write(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.LookupTract(ctx, "25017353202")
	if err != nil || !ok {
		t.Fatalf("LookupTract: ok=%v err=%v", ok, err)
	}
	if got["msa_geoid"] != "14460" {
		t.Errorf("msa_geoid: got %#v", got["msa_geoid"])
	}
	if got["income_indicator"] != int64(1) {
		t.Errorf("income_indicator: got %#v", got["income_indicator"])
	}
	if got["poverty_level_percent"] != 12.5 {
		t.Errorf("poverty_level_percent: got %#v", got["poverty_level_percent"])
	}
	if got["low_income_community"] != true {
		t.Errorf("low_income_community: got %#v", got["low_income_community"])
	}

	if _, ok, err := s.LookupTract(ctx, "44001030100"); ok || err != nil {
		t.Errorf("unknown tract: ok=%v err=%v", ok, err)
	}
}

func TestRerunReplacesRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ffiec.db")
	s := openTest(t, path)

	for _, ind := range []int64{4, 2} {
		if err := s.Begin(ctx); err != nil {
			t.Fatal(err)
		}
		err := s.Write(ctx, record.Record{
			"census_tract_geoid": "25017353202", "income_indicator": ind, "low_income_community": ind == 2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + Table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}
	got, _, _ := s.LookupTract(ctx, "25017353202")
	if got["income_indicator"] != int64(2) || got["low_income_community"] != true {
		t.Errorf("replaced row: got %v", got)
	}
}

func TestRollbackDiscardsRows(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "ffiec.db"))
	if err := s.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, record.Record{"census_tract_geoid": "25017353202"}); err != nil {
		t.Fatal(err)
	}
	s.Rollback()

	if _, ok, _ := s.LookupTract(ctx, "25017353202"); ok {
		t.Error("rolled back row is visible")
	}
}

func TestOpenRejectsBadColumns(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(context.Background(), filepath.Join(dir, "a.db"), "geoid", []string{"geoid", "bad name"}, nil); err == nil {
		t.Error("expected error for unsafe column name")
	}
	if _, err := Open(context.Background(), filepath.Join(dir, "b.db"), "geoid", []string{"other"}, nil); err == nil {
		t.Error("expected error for key outside columns")
	}
}
