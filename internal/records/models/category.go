package models

// Category names one kind of financial record. All categories share the
// Record shape; behaviour differences live in the rule table.
type Category string

const (
	CategoryIncome            Category = "income"
	CategoryAsset             Category = "asset"
	CategoryDebt              Category = "debt"
	CategoryDeductibleExpense Category = "deductible_expense"
	CategoryDonation          Category = "donation"
	CategoryTaxPaid           Category = "tax_paid"
	CategoryForeignIncome     Category = "foreign_income"
	CategoryStockOperation    Category = "stock_operation"
	CategoryFIIOperation      Category = "fii_operation"
)

// Categories lists every category in aggregate order.
var Categories = []Category{
	CategoryIncome,
	CategoryAsset,
	CategoryDebt,
	CategoryDeductibleExpense,
	CategoryDonation,
	CategoryTaxPaid,
	CategoryForeignIncome,
	CategoryStockOperation,
	CategoryFIIOperation,
}

// Lifecycle describes the soft state machine a category follows, if any.
type Lifecycle int

const (
	LifecycleNone Lifecycle = iota
	// LifecycleDisposable: active -> disposed.
	LifecycleDisposable
	// LifecycleSettleable: active -> settled.
	LifecycleSettleable
)

// Detail keys used by RequiredDetails.
const (
	DetailSource          = "source"
	DetailType            = "type"
	DetailDescription     = "description"
	DetailCreditor        = "creditor"
	DetailRecipient       = "recipient"
	DetailReference       = "reference"
	DetailCountry         = "country"
	DetailExpenseCategory = "expense_category"
)

// Rule is the per-category validation policy.
type Rule struct {
	AllowNegative      bool
	PeriodKeyed        bool
	UniqueByInstrument bool
	Lifecycle          Lifecycle
	RequiredDetails    []string
	Instruments        []InstrumentClass
	DefaultInstrument  InstrumentClass
}

var rules = map[Category]Rule{
	CategoryIncome: {
		PeriodKeyed:     true,
		RequiredDetails: []string{DetailSource, DetailType},
	},
	CategoryAsset: {
		Lifecycle:       LifecycleDisposable,
		RequiredDetails: []string{DetailType, DetailDescription},
	},
	CategoryDebt: {
		Lifecycle:       LifecycleSettleable,
		RequiredDetails: []string{DetailType, DetailCreditor},
	},
	CategoryDeductibleExpense: {
		PeriodKeyed:     true,
		RequiredDetails: []string{DetailExpenseCategory},
	},
	CategoryDonation: {
		PeriodKeyed:     true,
		RequiredDetails: []string{DetailRecipient},
	},
	CategoryTaxPaid: {
		PeriodKeyed:     true,
		RequiredDetails: []string{DetailReference},
	},
	CategoryForeignIncome: {
		PeriodKeyed:     true,
		RequiredDetails: []string{DetailCountry},
	},
	CategoryStockOperation: {
		AllowNegative:      true,
		PeriodKeyed:        true,
		UniqueByInstrument: true,
		Instruments:        []InstrumentClass{InstrumentStock, InstrumentETF, InstrumentBDR},
		DefaultInstrument:  InstrumentStock,
	},
	CategoryFIIOperation: {
		AllowNegative:      true,
		PeriodKeyed:        true,
		UniqueByInstrument: true,
		Instruments:        []InstrumentClass{InstrumentFII},
		DefaultInstrument:  InstrumentFII,
	},
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	_, ok := rules[c]
	return ok
}

// Rule returns the category's rule. Unknown categories get the zero Rule.
func (c Category) Rule() Rule {
	return rules[c]
}

func (c Category) String() string {
	return string(c)
}

// IsOperation reports whether the category holds monthly capital-markets results.
func (c Category) IsOperation() bool {
	return c.Rule().UniqueByInstrument
}

// ParseCategory validates a category name from a path or query string.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.IsValid()
}

// InstrumentClass distinguishes capital-markets instruments within an
// operation category.
type InstrumentClass string

const (
	InstrumentStock InstrumentClass = "STOCK"
	InstrumentETF   InstrumentClass = "ETF"
	InstrumentBDR   InstrumentClass = "BDR"
	InstrumentFII   InstrumentClass = "FII"
)

// Allows reports whether the rule accepts the instrument class.
func (r Rule) Allows(class InstrumentClass) bool {
	for _, c := range r.Instruments {
		if c == class {
			return true
		}
	}
	return false
}
