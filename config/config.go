package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

/* ──────────── FFIEC 2022 defaults ──────────── */

const (
	DefaultDictionaryURL = "https://www.ffiec.gov/Census/Census_Flat_Files/FFIEC_Census_File_Definitions_26AUG22.xlsx"
	DefaultFlatFileURL   = "http://www.ffiec.gov/Census/Census_Flat_Files/CensusFlatFile2022.zip"
	DefaultUserAgent     = "Mozilla/5.0"
	DefaultOutputName    = "ffiec_income_data.ndjson.gz"
)

// Field pairs a data-dictionary description with the column name it is
// renamed to.
type Field struct {
	Description string `yaml:"description"`
	Name        string `yaml:"name"`
}

// DefaultFields is the wanted-field allow-list, in flat-file order.
var DefaultFields = []Field{
	{"Key field. MSA/MD Code", "msa_geoid"},
	{"Key field. FIPS state code", "fips_state_code"},
	{"Key field. FIPS county code", "fips_county_code"},
	{"Key field. Census tract. Implied decimal point.", "census_tract_code"},
	{"FFIEC Estimated MSA/MD median family income", "ffiec_msamd_mfi"},
	{"Tract median family income as a percentage of the MSA/MD median family income. 2 decimal places, truncated.", "mfi_as_percent_of_msamd_mfi"},
	{"Income indicator, which identifies low, moderate, middle, and upper income areas", "income_indicator"},
	{"Poverty level percent (2 decimal places with decimal point), rounded", "poverty_level_percent"},
}

// Config is the process-wide run configuration. It is loaded once and handed
// to every component explicitly.
type Config struct {
	Dictionary   DictionaryConfig `yaml:"dictionary"`
	FlatFile     FlatFileConfig   `yaml:"flat_file"`
	HTTP         HTTPConfig       `yaml:"http"`
	Fields       []Field          `yaml:"fields"`
	Geoid        GeoidConfig      `yaml:"geoid"`
	Output       OutputConfig     `yaml:"output"`
	LowIncome    LowIncomeConfig  `yaml:"low_income"`
	InvalidTract string           `yaml:"invalid_tract"`
}

type DictionaryConfig struct {
	URL               string `yaml:"url"`
	Sheet             string `yaml:"sheet"`
	IndexColumn       string `yaml:"index_column"`
	DescriptionColumn string `yaml:"description_column"`
}

type FlatFileConfig struct {
	URL   string `yaml:"url"`
	Entry string `yaml:"entry"`
}

type HTTPConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// GeoidConfig names the columns concatenated into census_tract_geoid, in
// concatenation order.
type GeoidConfig struct {
	Name  string   `yaml:"name"`
	Parts []string `yaml:"parts"`
}

type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Name      string `yaml:"name"`
	DevPrefix string `yaml:"dev_prefix"`
	DevState  string `yaml:"dev_state"`
}

type LowIncomeConfig struct {
	Indicators       []int64 `yaml:"indicators"`
	PovertyThreshold float64 `yaml:"poverty_threshold"`
}

// Default returns the configuration for the FFIEC 2022 release.
func Default() *Config {
	fields := make([]Field, len(DefaultFields))
	copy(fields, DefaultFields)
	return &Config{
		Dictionary: DictionaryConfig{
			URL:               DefaultDictionaryURL,
			Sheet:             "Data Dictionary",
			IndexColumn:       "Index",
			DescriptionColumn: "Description",
		},
		FlatFile: FlatFileConfig{URL: DefaultFlatFileURL},
		HTTP:     HTTPConfig{UserAgent: DefaultUserAgent, Timeout: 5 * time.Minute},
		Fields:   fields,
		Geoid: GeoidConfig{
			Name:  "census_tract_geoid",
			Parts: []string{"fips_state_code", "fips_county_code", "census_tract_code"},
		},
		Output: OutputConfig{
			Dir:       ".",
			Name:      DefaultOutputName,
			DevPrefix: "ma_",
			DevState:  "25",
		},
		LowIncome:    LowIncomeConfig{Indicators: []int64{1, 2}, PovertyThreshold: 20},
		InvalidTract: "999999",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration before any download starts.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Dictionary.URL) == "" {
		errs = append(errs, errors.New("dictionary.url is required"))
	}
	if c.Dictionary.Sheet == "" || c.Dictionary.IndexColumn == "" || c.Dictionary.DescriptionColumn == "" {
		errs = append(errs, errors.New("dictionary sheet and column names are required"))
	}
	if strings.TrimSpace(c.FlatFile.URL) == "" {
		errs = append(errs, errors.New("flat_file.url is required"))
	}
	if len(c.Fields) == 0 {
		errs = append(errs, errors.New("at least one field is required"))
	}

	names := map[string]bool{}
	descs := map[string]bool{}
	for i, f := range c.Fields {
		if f.Name == "" || f.Description == "" {
			errs = append(errs, fmt.Errorf("fields[%d]: description and name are required", i))
			continue
		}
		if names[f.Name] {
			errs = append(errs, fmt.Errorf("fields[%d]: duplicate name %q", i, f.Name))
		}
		if descs[f.Description] {
			errs = append(errs, fmt.Errorf("fields[%d]: duplicate description %q", i, f.Description))
		}
		names[f.Name] = true
		descs[f.Description] = true
	}

	if c.Geoid.Name == "" {
		errs = append(errs, errors.New("geoid.name is required"))
	}
	if len(c.Geoid.Parts) == 0 {
		errs = append(errs, errors.New("geoid.parts is required"))
	}
	for _, p := range c.Geoid.Parts {
		if !names[p] {
			errs = append(errs, fmt.Errorf("geoid part %q is not a configured field", p))
		}
		if !strings.HasSuffix(p, "_code") {
			errs = append(errs, fmt.Errorf("geoid part %q must be a _code column", p))
		}
	}

	if c.Output.Name == "" {
		errs = append(errs, errors.New("output.name is required"))
	}
	if c.Output.DevState == "" {
		errs = append(errs, errors.New("output.dev_state is required"))
	}
	if len(c.LowIncome.Indicators) == 0 {
		errs = append(errs, errors.New("low_income.indicators is required"))
	}
	return errors.Join(errs...)
}

// Names returns the description → column name table.
func (c *Config) Names() map[string]string {
	m := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		m[f.Description] = f.Name
	}
	return m
}
