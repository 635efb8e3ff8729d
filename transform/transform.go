// Package transform derives the published tract fields from extracted flat
// file records.
//
// Steps run in a fixed order per record and later steps rely on earlier ones:
//
//  1. drop rows missing income_indicator or poverty_level_percent, and rows
//     whose census_tract_code is the invalid-tract sentinel
//  2. cast income_indicator to an integer
//  3. concatenate the geoid parts (state, county, tract) into
//     census_tract_geoid and remove the parts
//  4. derive low_income_community
//
// Applying the transformer to its own output is a no-op.
package transform

import (
	"fmt"
	"strings"

	"github.com/jalad-shrimali/ffiec-income/record"
)

const (
	IncomeIndicator     = "income_indicator"
	PovertyLevelPercent = "poverty_level_percent"
	CensusTractCode     = "census_tract_code"
	LowIncomeCommunity  = "low_income_community"
)

// Reason says why a record was dropped.
type Reason string

const (
	Kept         Reason = ""
	MissingValue Reason = "missing_value"
	InvalidTract Reason = "invalid_tract"
)

// Options configures the transformer. GeoidParts are concatenated in slice
// order.
type Options struct {
	GeoidName        string
	GeoidParts       []string
	InvalidTract     string
	LowIncomeIndices []int64
	PovertyThreshold float64
}

type Stats struct {
	Read           int
	DroppedMissing int
	DroppedTract   int
	Kept           int
}

func (s Stats) Dropped() int { return s.DroppedMissing + s.DroppedTract }

type Transformer struct {
	opts      Options
	lowIncome map[int64]bool
	stats     Stats
}

func New(opts Options) (*Transformer, error) {
	if opts.GeoidName == "" || len(opts.GeoidParts) == 0 {
		return nil, fmt.Errorf("transform: geoid name and parts are required")
	}
	for _, p := range opts.GeoidParts {
		if !strings.HasSuffix(p, "_code") {
			return nil, fmt.Errorf("transform: geoid part %q is not a _code column", p)
		}
	}
	li := make(map[int64]bool, len(opts.LowIncomeIndices))
	for _, v := range opts.LowIncomeIndices {
		li[v] = true
	}
	return &Transformer{opts: opts, lowIncome: li}, nil
}

func (t *Transformer) Stats() Stats { return t.stats }

// Apply transforms r in place. A non-empty Reason means the record must be
// skipped; an error aborts the run.
func (t *Transformer) Apply(r record.Record) (Reason, error) {
	t.stats.Read++

	if reason := t.dropReason(r); reason != Kept {
		if reason == MissingValue {
			t.stats.DroppedMissing++
		} else {
			t.stats.DroppedTract++
		}
		return reason, nil
	}
	if err := castIncomeIndicator(r); err != nil {
		return Kept, err
	}
	if err := t.makeGeoid(r); err != nil {
		return Kept, err
	}
	if err := t.makeLowIncome(r); err != nil {
		return Kept, err
	}

	t.stats.Kept++
	return Kept, nil
}

func (t *Transformer) dropReason(r record.Record) Reason {
	if !r.Present(IncomeIndicator) || !r.Present(PovertyLevelPercent) {
		return MissingValue
	}
	if _, ok := r[CensusTractCode]; ok && r.String(CensusTractCode) == t.opts.InvalidTract {
		return InvalidTract
	}
	return Kept
}

func castIncomeIndicator(r record.Record) error {
	n, err := r.Int(IncomeIndicator)
	if err != nil {
		return fmt.Errorf("cast income indicator: %w", err)
	}
	r[IncomeIndicator] = n
	return nil
}

// makeGeoid builds the geoid from the named parts in contract order. When
// none of the parts remain and the geoid exists, the record was already
// transformed.
func (t *Transformer) makeGeoid(r record.Record) error {
	var b strings.Builder
	have := 0
	for _, p := range t.opts.GeoidParts {
		if _, ok := r[p]; ok {
			have++
		}
	}
	if have == 0 && r.Present(t.opts.GeoidName) {
		return nil
	}
	for _, p := range t.opts.GeoidParts {
		if !r.Present(p) {
			return fmt.Errorf("make geoid: %s is missing", p)
		}
		b.WriteString(r.String(p))
	}
	for _, p := range t.opts.GeoidParts {
		delete(r, p)
	}
	r[t.opts.GeoidName] = b.String()
	return nil
}

func (t *Transformer) makeLowIncome(r record.Record) error {
	ind, err := r.Int(IncomeIndicator)
	if err != nil {
		return err
	}
	pov, err := r.Float(PovertyLevelPercent)
	if err != nil {
		return fmt.Errorf("low income: %w", err)
	}
	r[LowIncomeCommunity] = t.lowIncome[ind] || pov >= t.opts.PovertyThreshold
	return nil
}
