// Package fixture builds small FFIEC-shaped inputs for tests: a data
// dictionary workbook and a zipped headerless flat file.
package fixture

import (
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
)

// Entry is one data-dictionary row. Index is written verbatim so tests can
// feed blank or malformed cells.
type Entry struct {
	Index       string
	Description string
}

// DefaultEntries mirrors the 2022 dictionary for the wanted columns plus some
// noise rows. Positions (one-based): msa 2, state 3, county 4, tract 5,
// msa mfi 7, tract mfi % 9, income indicator 10, poverty 12.
var DefaultEntries = []Entry{
	{"1", "HMDA/CRA collection year"},
	{"2", "Key field. MSA/MD Code"},
	{"3", "Key field. FIPS state code"},
	{"4", "Key field. FIPS county code"},
	{"5", "Key field. Census tract. Implied decimal point."},
	{"6", "Principal city flag"},
	{"7", "FFIEC Estimated MSA/MD median family income"},
	{"8", "Small county flag"},
	{"9", "Tract median family income as a percentage of the MSA/MD median family income. 2 decimal places, truncated."},
	{"10", "Income indicator, which identifies low, moderate, middle, and upper income areas"},
	{"", "Section: poverty"},
	{"11", "Total persons"},
	{"12", "Poverty level percent (2 decimal places with decimal point), rounded"},
}

// Columns is the width of rows built by Row.
const Columns = 13

// Row builds a flat-file line from the wanted columns; unspecified columns
// get filler values.
func Row(msa, state, county, tract, msaMFI, tractMFIPct, income, poverty string) string {
	cols := []string{"2022", msa, state, county, tract, "N", msaMFI, "0", tractMFIPct, income, "1234", poverty, "x"}
	return strings.Join(cols, ",")
}

// WriteDictionary writes a workbook with a header row on the given sheet.
func WriteDictionary(t testing.TB, path, sheet string, entries []Entry) {
	t.Helper()
	x := excelize.NewFile()
	defer x.Close()

	idx, err := x.NewSheet(sheet)
	if err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	x.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		x.DeleteSheet("Sheet1")
	}

	if err := x.SetSheetRow(sheet, "A1", &[]interface{}{"Index", "Description", "Notes"}); err != nil {
		t.Fatal(err)
	}
	for r, e := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		row := []interface{}{e.Index, e.Description}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := x.SaveAs(path); err != nil {
		t.Fatalf("save dictionary: %v", err)
	}
}

// WriteFlatZip writes lines as a single csv entry inside a zip archive.
func WriteFlatZip(t testing.TB, path, entry string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(entry)
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		if _, err := w.Write([]byte(l + "\r\n")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}
