// Package report filters, summarizes and exports stored conference rows.
package report

import (
	"fmt"
	"time"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// CheckFilter selects rows by their Check column
type CheckFilter string

const (
	CheckAll     CheckFilter = "all"
	CheckOK      CheckFilter = "ok"
	CheckProblem CheckFilter = "problem"
)

// ParseCheckFilter accepts all, ok and problem. Empty means all.
func ParseCheckFilter(s string) (CheckFilter, error) {
	switch CheckFilter(s) {
	case "", CheckAll:
		return CheckAll, nil
	case CheckOK, CheckProblem:
		return CheckFilter(s), nil
	default:
		return "", fmt.Errorf("invalid check filter %q: expected all, ok or problem", s)
	}
}

// Filter narrows a history listing. Zero values match everything.
type Filter struct {
	Operation string      `form:"operacao" json:"operacao,omitempty"`
	Check     CheckFilter `form:"check" json:"check,omitempty"`
	LoadDate  string      `form:"data_carga" json:"data_carga,omitempty"`
}

// Validate checks the load date layout and the check filter
func (f Filter) Validate() error {
	if _, err := ParseCheckFilter(string(f.Check)); err != nil {
		return err
	}
	if f.LoadDate != "" {
		if _, err := time.Parse(model.DateLayout, f.LoadDate); err != nil {
			return fmt.Errorf("invalid load date %q: expected dd/mm/yyyy", f.LoadDate)
		}
	}
	return nil
}

// Match reports whether a row passes the filter
func (f Filter) Match(r model.Row) bool {
	if f.Operation != "" && r.Operation != f.Operation {
		return false
	}
	switch f.Check {
	case CheckOK:
		if r.Check != model.CheckOK {
			return false
		}
	case CheckProblem:
		if r.Check != model.CheckProblem {
			return false
		}
	}
	if f.LoadDate != "" && r.LoadDate != f.LoadDate {
		return false
	}
	return true
}

// Apply returns the rows passing the filter, keeping their order
func (f Filter) Apply(rows []model.Row) []model.Row {
	out := make([]model.Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Operations lists the distinct operations of rows in first-seen order
func Operations(rows []model.Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.Operation] {
			seen[r.Operation] = true
			out = append(out, r.Operation)
		}
	}
	return out
}
