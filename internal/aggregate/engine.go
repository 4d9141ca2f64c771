package aggregate

import (
	"sort"

	"irpf/internal/records/models"
	"irpf/pkg/money"
)

// Totals maps each category to its summed amount.
type Totals map[models.Category]money.Amount

// Add returns the category-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	out := make(Totals, len(models.Categories))
	for _, c := range models.Categories {
		out[c] = t.get(c).Add(o.get(c))
	}
	return out
}

func (t Totals) get(c models.Category) money.Amount {
	if v, ok := t[c]; ok {
		return v
	}
	return money.Zero()
}

// TotalByCategory sums amounts per category. Operation categories sum the
// signed monthly results, so losses offset gains.
func TotalByCategory(a *Aggregate) Totals {
	totals := make(Totals, len(models.Categories))
	for _, c := range models.Categories {
		records := a.List(c)
		if c.IsOperation() {
			sum := money.Zero()
			for _, m := range MonthlyResults(records) {
				sum = sum.Add(m.Result)
			}
			totals[c] = sum
			continue
		}
		sum := money.Zero()
		for _, r := range records {
			sum = sum.Add(r.Amount)
		}
		totals[c] = sum
	}
	return totals
}

// MonthlyResult is the net signed result of one operation category in a month.
type MonthlyResult struct {
	Period   models.Period   `json:"period"`
	Category models.Category `json:"category"`
	Result   money.Amount    `json:"result"`
}

// MonthlyResults nets operation results per (month, category), oldest month first.
func MonthlyResults(records []*models.Record) []MonthlyResult {
	type key struct {
		period   models.Period
		category models.Category
	}
	sums := make(map[key]money.Amount)
	for _, r := range records {
		if !r.Category.IsOperation() {
			continue
		}
		k := key{r.Period, r.Category}
		sums[k] = sums[k].Add(r.Amount)
	}
	out := make([]MonthlyResult, 0, len(sums))
	for k, v := range sums {
		out = append(out, MonthlyResult{Period: k.period, Category: k.category, Result: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Period.Compare(out[j].Period); c != 0 {
			return c < 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// NetWorthDelta is the sum of active asset values minus active debt amounts.
func NetWorthDelta(a *Aggregate) money.Amount {
	assets := money.Zero()
	for _, r := range a.Assets {
		if r.IsActive() {
			assets = assets.Add(r.Amount)
		}
	}
	debts := money.Zero()
	for _, r := range a.Debts {
		if r.IsActive() {
			debts = debts.Add(r.Amount)
		}
	}
	return assets.Sub(debts)
}

// Jump compares net worth between two consecutive years.
type Jump struct {
	Previous  money.Amount `json:"previous"`
	Current   money.Amount `json:"current"`
	Change    money.Amount `json:"change"`
	Threshold money.Amount `json:"threshold"`
	Flagged   bool         `json:"flagged"`
}

// NetWorthJump flags a year-over-year change whose magnitude exceeds
// threshold. A flag is advisory and never blocks a transition.
func NetWorthJump(previous, current, threshold money.Amount) Jump {
	change := current.Sub(previous)
	return Jump{
		Previous:  previous,
		Current:   current,
		Change:    change,
		Threshold: threshold,
		Flagged:   change.Abs().GreaterThan(threshold),
	}
}
