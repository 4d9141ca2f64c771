package aggregate

import (
	"sort"

	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	"irpf/pkg/money"
)

// TaxableEvent is the monthly amount of one taxable category, in the shape a
// downstream tax engine consumes.
type TaxableEvent struct {
	Period    models.Period   `json:"period"`
	Category  models.Category `json:"category"`
	Amount    money.Amount    `json:"amount"`
	RecordIDs []id.RecordID   `json:"record_ids"`
}

var taxableCategories = []models.Category{
	models.CategoryIncome,
	models.CategoryForeignIncome,
	models.CategoryStockOperation,
	models.CategoryFIIOperation,
}

// TaxableEvents groups incomes, foreign income and operation results per
// month and category, ordered by month then category.
func TaxableEvents(a *Aggregate) []TaxableEvent {
	type key struct {
		period   models.Period
		category models.Category
	}
	order := make(map[models.Category]int, len(taxableCategories))
	for i, c := range taxableCategories {
		order[c] = i
	}

	grouped := make(map[key]*TaxableEvent)
	for _, c := range taxableCategories {
		for _, r := range a.List(c) {
			k := key{r.Period, c}
			ev, ok := grouped[k]
			if !ok {
				ev = &TaxableEvent{Period: r.Period, Category: c, Amount: money.Zero()}
				grouped[k] = ev
			}
			ev.Amount = ev.Amount.Add(r.Amount)
			ev.RecordIDs = append(ev.RecordIDs, r.ID)
		}
	}

	out := make([]TaxableEvent, 0, len(grouped))
	for _, ev := range grouped {
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Period.Compare(out[j].Period); c != 0 {
			return c < 0
		}
		return order[out[i].Category] < order[out[j].Category]
	})
	return out
}

// Summary bundles the derived figures served alongside an aggregate.
type Summary struct {
	Totals         Totals          `json:"totals"`
	NetWorthDelta  money.Amount    `json:"net_worth_delta"`
	MonthlyResults []MonthlyResult `json:"monthly_results"`
	TaxableEvents  []TaxableEvent  `json:"taxable_events"`
	Rejections     []Rejection     `json:"rejections"`
}

// Summarize computes every derived view of a.
func Summarize(a *Aggregate) Summary {
	ops := append(append([]*models.Record{}, a.StockResults...), a.FIIResults...)
	rejections := ValidateAggregate(a)
	if rejections == nil {
		rejections = []Rejection{}
	}
	return Summary{
		Totals:         TotalByCategory(a),
		NetWorthDelta:  NetWorthDelta(a),
		MonthlyResults: MonthlyResults(ops),
		TaxableEvents:  TaxableEvents(a),
		Rejections:     rejections,
	}
}
