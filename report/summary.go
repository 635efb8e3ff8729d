// Package report builds the optional xlsx run summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jalad-shrimali/ffiec-income/record"
)

// Summary aggregates published tracts by state and income indicator.
type Summary struct {
	geoidName string
	states    map[string]*stateAgg
	income    map[int64]int
	total     int
}

type stateAgg struct{ tracts, lowIncome int }

// Run describes the run for the "run" sheet.
type Run struct {
	ID       string
	Mode     string
	Started  time.Time
	Finished time.Time
	Read     int
	Dropped  map[string]int
	Written  int
	Output   string
}

func NewSummary(geoidName string) *Summary {
	return &Summary{geoidName: geoidName, states: map[string]*stateAgg{}, income: map[int64]int{}}
}

// Add counts one published record.
func (s *Summary) Add(r record.Record) {
	g := r.String(s.geoidName)
	state := g
	if len(g) >= 2 {
		state = g[:2]
	}
	a := s.states[state]
	if a == nil {
		a = &stateAgg{}
		s.states[state] = a
	}
	a.tracts++
	if low, _ := r["low_income_community"].(bool); low {
		a.lowIncome++
	}
	if ind, err := r.Int("income_indicator"); err == nil {
		s.income[ind]++
	}
	s.total++
}

func (s *Summary) Total() int { return s.total }

// Rows returns the sheets as string grids, header first.
func (s *Summary) Rows(run Run) (summary, income, runRows [][]string) {
	summary = [][]string{{"State", "Tracts", "Low Income Tracts", "Low Income Share"}}
	states := make([]string, 0, len(s.states))
	for st := range s.states {
		states = append(states, st)
	}
	sort.Strings(states)
	for _, st := range states {
		a := s.states[st]
		summary = append(summary, []string{
			st, strconv.Itoa(a.tracts), strconv.Itoa(a.lowIncome),
			fmt.Sprintf("%.4f", float64(a.lowIncome)/float64(a.tracts)),
		})
	}

	income = [][]string{{"Income Indicator", "Tracts"}}
	inds := make([]int64, 0, len(s.income))
	for k := range s.income {
		inds = append(inds, k)
	}
	sort.Slice(inds, func(i, j int) bool { return inds[i] < inds[j] })
	for _, k := range inds {
		income = append(income, []string{strconv.FormatInt(k, 10), strconv.Itoa(s.income[k])})
	}

	runRows = [][]string{
		{"Run ID", run.ID},
		{"Mode", run.Mode},
		{"Started", run.Started.UTC().Format(time.RFC3339)},
		{"Finished", run.Finished.UTC().Format(time.RFC3339)},
		{"Rows Read", strconv.Itoa(run.Read)},
	}
	reasons := make([]string, 0, len(run.Dropped))
	for k := range run.Dropped {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	for _, k := range reasons {
		runRows = append(runRows, []string{"Dropped (" + k + ")", strconv.Itoa(run.Dropped[k])})
	}
	runRows = append(runRows,
		[]string{"Rows Written", strconv.Itoa(run.Written)},
		[]string{"Output", run.Output},
	)
	return summary, income, runRows
}

func (s *Summary) workbook(run Run) (*excelize.File, error) {
	summary, income, runRows := s.Rows(run)

	x := excelize.NewFile()
	var addErr error
	add := func(name string, rows [][]string) {
		idx, err := x.NewSheet(name)
		if err != nil {
			addErr = err
			return
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				if n, err := strconv.ParseFloat(v, 64); err == nil && r > 0 && c > 0 {
					x.SetCellFloat(name, cell, n, -1, 64)
					continue
				}
				x.SetCellStr(name, cell, v)
			}
		}
		if name == "summary" {
			x.SetActiveSheet(idx)
		}
	}
	add("summary", summary)
	add("income_indicator", income)
	add("run", runRows)
	if addErr != nil {
		x.Close()
		return nil, fmt.Errorf("build summary workbook: %w", addErr)
	}
	x.DeleteSheet("Sheet1")
	return x, nil
}

// Save writes the workbook to path.
func (s *Summary) Save(path string, run Run) error {
	x, err := s.workbook(run)
	if err != nil {
		return err
	}
	defer x.Close()
	if err := x.SaveAs(path); err != nil {
		return fmt.Errorf("save summary workbook: %w", err)
	}
	return nil
}

// Stage writes the workbook to a hidden temp file next to path and returns
// its name. The caller renames it to path or removes it.
func (s *Summary) Stage(path string, run Run) (string, error) {
	x, err := s.workbook(run)
	if err != nil {
		return "", err
	}
	defer x.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	_, err = x.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("stage summary workbook: %w", err)
	}
	return f.Name(), nil
}
