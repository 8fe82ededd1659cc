package report

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	moneyutil "github.com/rezonia/nfe-conferencia/internal/decimal"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

// NotAvailable is shown when a statistic has no data
const NotAvailable = "N/A"

// OperationCount is one bar of the per-operation distribution
type OperationCount struct {
	Operation string `json:"operacao"`
	Count     int    `json:"total"`
}

// Stats summarizes a set of conference rows
type Stats struct {
	Total               int              `json:"total"`
	OK                  int              `json:"ok"`
	MostCommonOperation string           `json:"operacao_mais_comum"`
	SuccessRate         float64          `json:"taxa_sucesso"`
	ByOperation         []OperationCount `json:"por_operacao"`
	TotalQuantity       decimal.Decimal  `json:"quantidade_total"`
}

// SuccessRateLabel renders the success rate with one decimal, e.g. "66.7%"
func (s Stats) SuccessRateLabel() string {
	return fmt.Sprintf("%.1f%%", s.SuccessRate)
}

// Summarize computes the history statistics of rows.
// Ties for the most common operation go to the alphabetically first one.
func Summarize(rows []model.Row) Stats {
	st := Stats{Total: len(rows), MostCommonOperation: NotAvailable, ByOperation: []OperationCount{}}
	if len(rows) == 0 {
		st.TotalQuantity = moneyutil.Zero
		return st
	}

	counts := make(map[string]int)
	quantities := make([]decimal.Decimal, 0, len(rows))
	for _, r := range rows {
		if r.OK() {
			st.OK++
		}
		if r.Operation != "" {
			counts[r.Operation]++
		}
		if q, err := moneyutil.ParseAmount(r.Quantity); err == nil {
			quantities = append(quantities, q)
		}
	}

	for op, n := range counts {
		st.ByOperation = append(st.ByOperation, OperationCount{Operation: op, Count: n})
	}
	sort.Slice(st.ByOperation, func(i, j int) bool {
		a, b := st.ByOperation[i], st.ByOperation[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Operation < b.Operation
	})
	if len(st.ByOperation) > 0 {
		st.MostCommonOperation = st.ByOperation[0].Operation
	}

	st.SuccessRate = float64(st.OK) / float64(st.Total) * 100
	st.TotalQuantity = moneyutil.Sum(quantities)
	return st
}
