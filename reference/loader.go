package reference

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a reference table:
//
//	version: "2026.1"
//	minimum_wage:
//	  2026:
//	    - {month: 1, amount: "1630.00"}
//	benefit_ceiling:
//	  2026:
//	    - {month: 1, amount: "8475.55"}
type File struct {
	Version        string                   `yaml:"version"`
	MinimumWage    map[int][]FileBreakpoint `yaml:"minimum_wage"`
	BenefitCeiling map[int][]FileBreakpoint `yaml:"benefit_ceiling"`
}

// FileBreakpoint keeps amounts as strings so they never pass through float64.
type FileBreakpoint struct {
	Month  int    `yaml:"month"`
	Amount string `yaml:"amount"`
}

// LoadFile reads a YAML table file and merges it over the default history.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reference: open %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML table and merges it over the default history. Entries
// in the file replace built-in breakpoints for the same (year, month).
func Load(r io.Reader) (*Table, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, eris.Wrap(err, "reference: decode table file")
	}

	t := DefaultTable()
	if file.Version != "" {
		t.version = file.Version
	}
	if err := mergeInto(t, KindMinimumWage, file.MinimumWage); err != nil {
		return nil, err
	}
	if err := mergeInto(t, KindBenefitCeiling, file.BenefitCeiling); err != nil {
		return nil, err
	}
	return t, nil
}

func mergeInto(t *Table, kind Kind, years map[int][]FileBreakpoint) error {
	for year, points := range years {
		for _, p := range points {
			amount, err := decimal.NewFromString(p.Amount)
			if err != nil {
				return eris.Wrapf(err, "reference: %s %d/%d amount %q", kind, p.Month, year, p.Amount)
			}
			if err := t.Append(kind, year, time.Month(p.Month), amount); err != nil {
				return eris.Wrapf(err, "reference: %s %d/%d", kind, p.Month, year)
			}
		}
	}
	return nil
}
