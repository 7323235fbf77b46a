package reference

import (
	"time"

	"github.com/jurisflow/calc-engine/generic"
)

// DefaultVersion tags the history compiled into the binary.
const DefaultVersion = "2025.1"

// DefaultTable returns a table loaded with the official history 2022-2025.
// The 2025 ceiling is the published estimate.
func DefaultTable() *Table {
	t := NewTable(DefaultVersion)
	for kind, years := range defaultHistory {
		for year, points := range years {
			for _, p := range points {
				// Literals are valid; Append only fails on malformed input.
				_ = t.Append(kind, year, p.month, generic.MustDecimal(p.amount))
			}
		}
	}
	return t
}

type seedPoint struct {
	month  time.Month
	amount string
}

var defaultHistory = map[Kind]map[int][]seedPoint{
	KindMinimumWage: {
		2022: {{time.January, "1212.00"}},
		2023: {{time.January, "1302.00"}, {time.May, "1320.00"}},
		2024: {{time.January, "1412.00"}},
		2025: {{time.January, "1518.00"}},
	},
	KindBenefitCeiling: {
		2022: {{time.January, "7087.22"}},
		2023: {{time.January, "7507.49"}, {time.May, "7786.02"}},
		2024: {{time.January, "7786.02"}},
		2025: {{time.January, "8157.41"}},
	},
}
