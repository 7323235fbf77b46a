/*
Package index supplies monthly monetary-correction rates.

PURPOSE:
  Arrears are corrected month by month with an official index published by
  Banco Central's SGS time-series service. The Provider resolves, for an index
  name and a date range, a table "MM/YYYY" -> percentage rate covering every
  month of the range.

SOURCES:
  live:     the SGS series of the applied index
  fallback: a deterministic, versioned table of flat yearly averages

  A table never mixes the two. If the live series yields nothing usable for the
  range, every month comes from the fallback table.

SUBSTITUTION:
  Only the policy-rate index (SELIC, series 4390) has a monthly series enabled
  by default. Asking for INPC or IPCA-E without an enabled series yields the
  SELIC table with Applied=SELIC and a substitution observation, so the caller
  never reports an index that was not actually used.

SEE ALSO:
  - sgs.go: HTTP client for the SGS REST API
  - fallback.go: Fallback rates by year
  - provider.go: Cache, singleflight and source selection
*/
package index

import "strings"

// Name is a correction index recognised by the engine.
type Name string

const (
	SELIC Name = "SELIC"
	INPC  Name = "INPC"
	IPCAE Name = "IPCA-E"
)

// Known lists the indexes accepted by the arrears calculator.
var Known = []Name{SELIC, INPC, IPCAE}

// SGS series codes of the monthly variation of each index.
var SeriesCodes = map[Name]int{
	SELIC: 4390, // Selic accumulated in the month, %
	INPC:  188,
	IPCAE: 433,
}

// DefaultMonthlySeries is the set of indexes with monthly granularity enabled
// out of the box.
func DefaultMonthlySeries() map[Name]int {
	return map[Name]int{SELIC: SeriesCodes[SELIC]}
}

// Normalize matches an index name case-insensitively ("ipca-e", "Selic").
func Normalize(s string) (Name, bool) {
	upper := Name(strings.ToUpper(strings.TrimSpace(s)))
	for _, n := range Known {
		if upper == n {
			return n, true
		}
	}
	return "", false
}
