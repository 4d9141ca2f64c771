package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"irpf/internal/records/models"
	"irpf/internal/records/store"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func amt(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func period(s string) models.Period {
	p, err := models.ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func newRecord(t *testing.T, owner id.UserID, c models.Category, in models.RecordInput) *models.Record {
	t.Helper()
	if in.Details == nil {
		in.Details = models.Details{}
		for _, k := range c.Rule().RequiredDetails {
			in.Details[k] = "x"
		}
	}
	r, err := models.NewRecord(id.NewRecordID(), owner, c, in, baseTime)
	require.NoError(t, err)
	return r
}

type BuilderSuite struct {
	suite.Suite
	store   *store.InMemory
	builder *Builder
	ctx     context.Context
	owner   id.UserID
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.builder = NewBuilder(s.store)
	s.ctx = context.Background()
	s.owner = id.NewUserID()
}

func (s *BuilderSuite) create(owner id.UserID, c models.Category, in models.RecordInput) *models.Record {
	r := newRecord(s.T(), owner, c, in)
	s.Require().NoError(s.store.Create(s.ctx, r))
	return r
}

func (s *BuilderSuite) TestNetWorthScenario() {
	s.create(s.owner, models.CategoryIncome, models.RecordInput{Amount: amt("5000.00"), Period: period("2024-03")})
	s.create(s.owner, models.CategoryAsset, models.RecordInput{Amount: amt("200000.00")})
	s.create(s.owner, models.CategoryDebt, models.RecordInput{Amount: amt("50000.00")})

	agg, err := s.builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Len(agg.Incomes, 1)
	s.Len(agg.Assets, 1)
	s.Len(agg.Debts, 1)
	s.Equal("150000.00", NetWorthDelta(agg).String())
}

func (s *BuilderSuite) TestFiltersByYearKeepsUndated() {
	s.create(s.owner, models.CategoryIncome, models.RecordInput{Amount: amt("100.00"), Period: period("2023-12")})
	in2024 := s.create(s.owner, models.CategoryIncome, models.RecordInput{Amount: amt("200.00"), Period: period("2024-01")})
	asset := s.create(s.owner, models.CategoryAsset, models.RecordInput{Amount: amt("10.00")})

	agg, err := s.builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Require().Len(agg.Incomes, 1)
	s.Equal(in2024.ID, agg.Incomes[0].ID)
	s.Require().Len(agg.Assets, 1)
	s.Equal(asset.ID, agg.Assets[0].ID)
	s.Equal(1, agg.PeriodScopedCount())
}

func (s *BuilderSuite) TestExcludesOtherOwners() {
	other := id.NewUserID()
	s.create(other, models.CategoryIncome, models.RecordInput{Amount: amt("1.00"), Period: period("2024-01")})

	agg, err := s.builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Empty(agg.All())
}

func (s *BuilderSuite) TestInconsistentListIsInternalError() {
	foreign := newRecord(s.T(), id.NewUserID(), models.CategoryIncome,
		models.RecordInput{Amount: amt("1.00"), Period: period("2024-01")})
	builder := NewBuilder(listerFunc(func(_ context.Context, _ id.UserID, f models.Filter) ([]*models.Record, error) {
		if f.Category == models.CategoryIncome {
			return []*models.Record{foreign}, nil
		}
		return nil, nil
	}))

	_, err := builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *BuilderSuite) TestDuplicateAcrossListsIsInternalError() {
	r := newRecord(s.T(), s.owner, models.CategoryIncome,
		models.RecordInput{Amount: amt("1.00"), Period: period("2024-01")})
	builder := NewBuilder(listerFunc(func(_ context.Context, _ id.UserID, f models.Filter) ([]*models.Record, error) {
		if f.Category == models.CategoryIncome {
			return []*models.Record{r, r}, nil
		}
		return nil, nil
	}))

	_, err := builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *BuilderSuite) TestStoreFailureIsInternalError() {
	observed := false
	builder := NewBuilder(listerFunc(func(context.Context, id.UserID, models.Filter) ([]*models.Record, error) {
		return nil, errors.New("connection reset")
	}), WithLatencyObserver(func(time.Time) { observed = true }))

	_, err := builder.BuildAggregate(s.ctx, s.owner, 2024)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.True(observed)
}

type listerFunc func(ctx context.Context, owner id.UserID, f models.Filter) ([]*models.Record, error)

func (f listerFunc) ListByOwner(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error) {
	return f(ctx, owner, filter)
}

func TestTotalByCategory_ExactRepeatedAdditions(t *testing.T) {
	owner := id.NewUserID()
	agg := &Aggregate{Owner: owner, Year: 2024}
	for range 1000 {
		agg.Donations = append(agg.Donations, newRecord(t, owner, models.CategoryDonation,
			models.RecordInput{Amount: amt("0.10"), Period: period("2024-06")}))
	}
	totals := TotalByCategory(agg)
	assert.Equal(t, "100.00", totals[models.CategoryDonation].String())
}

func TestTotalByCategory_AdditiveOverDisjointPeriods(t *testing.T) {
	owner := id.NewUserID()
	first := &Aggregate{Owner: owner, Year: 2024}
	second := &Aggregate{Owner: owner, Year: 2024}

	first.Incomes = []*models.Record{
		newRecord(t, owner, models.CategoryIncome, models.RecordInput{Amount: amt("1234.56"), Period: period("2024-01")}),
		newRecord(t, owner, models.CategoryIncome, models.RecordInput{Amount: amt("0.01"), Period: period("2024-02")}),
	}
	first.StockResults = []*models.Record{
		newRecord(t, owner, models.CategoryStockOperation, models.RecordInput{Buys: amt("1000.00"), Sells: amt("800.00"), Period: period("2024-02")}),
	}
	second.Incomes = []*models.Record{
		newRecord(t, owner, models.CategoryIncome, models.RecordInput{Amount: amt("99.99"), Period: period("2024-07")}),
	}
	second.StockResults = []*models.Record{
		newRecord(t, owner, models.CategoryStockOperation, models.RecordInput{Buys: amt("100.00"), Sells: amt("350.50"), Period: period("2024-08")}),
	}
	second.FIIResults = []*models.Record{
		newRecord(t, owner, models.CategoryFIIOperation, models.RecordInput{Amount: amt("-12.34"), Period: period("2024-08")}),
	}

	union := &Aggregate{
		Owner:        owner,
		Year:         2024,
		Incomes:      append(append([]*models.Record{}, first.Incomes...), second.Incomes...),
		StockResults: append(append([]*models.Record{}, first.StockResults...), second.StockResults...),
		FIIResults:   second.FIIResults,
	}

	summed := TotalByCategory(first).Add(TotalByCategory(second))
	direct := TotalByCategory(union)
	for _, c := range models.Categories {
		assert.True(t, summed[c].Equal(direct[c]), "category %s: %s != %s", c, summed[c], direct[c])
	}
	assert.Equal(t, "1334.56", direct[models.CategoryIncome].String())
	assert.Equal(t, "50.50", direct[models.CategoryStockOperation].String())
	assert.Equal(t, "-12.34", direct[models.CategoryFIIOperation].String())
}

func TestMonthlyResults_NetsGainsAndLosses(t *testing.T) {
	owner := id.NewUserID()
	records := []*models.Record{
		newRecord(t, owner, models.CategoryStockOperation, models.RecordInput{Amount: amt("500.00"), Period: period("2024-03")}),
		newRecord(t, owner, models.CategoryStockOperation, models.RecordInput{Amount: amt("-200.00"), Period: period("2024-03"), InstrumentClass: models.InstrumentETF}),
		newRecord(t, owner, models.CategoryStockOperation, models.RecordInput{Amount: amt("-50.00"), Period: period("2024-01")}),
	}
	got := MonthlyResults(records)
	require.Len(t, got, 2)
	assert.Equal(t, period("2024-01"), got[0].Period)
	assert.Equal(t, "-50.00", got[0].Result.String())
	assert.Equal(t, period("2024-03"), got[1].Period)
	assert.Equal(t, "300.00", got[1].Result.String())
}

func TestNetWorthDelta_IgnoresDisposedAndSettled(t *testing.T) {
	owner := id.NewUserID()
	sold := newRecord(t, owner, models.CategoryAsset, models.RecordInput{Amount: amt("900.00")})
	sold.ApplyDisposal(baseTime)
	paid := newRecord(t, owner, models.CategoryDebt, models.RecordInput{Amount: amt("300.00")})
	paid.ApplyDisposal(baseTime)

	agg := &Aggregate{
		Owner: owner,
		Assets: []*models.Record{
			sold,
			newRecord(t, owner, models.CategoryAsset, models.RecordInput{Amount: amt("100.00")}),
		},
		Debts: []*models.Record{
			paid,
			newRecord(t, owner, models.CategoryDebt, models.RecordInput{Amount: amt("40.00")}),
		},
	}
	assert.Equal(t, "60.00", NetWorthDelta(agg).String())
}

func TestNetWorthJump(t *testing.T) {
	threshold := money.MustParse("100000.00")

	jump := NetWorthJump(money.MustParse("50000.00"), money.MustParse("150000.01"), threshold)
	assert.True(t, jump.Flagged)
	assert.Equal(t, "100000.01", jump.Change.String())

	jump = NetWorthJump(money.MustParse("150000.00"), money.MustParse("50000.00"), threshold)
	assert.False(t, jump.Flagged, "exactly the threshold is not a jump")

	jump = NetWorthJump(money.MustParse("200000.00"), money.MustParse("50000.00"), threshold)
	assert.True(t, jump.Flagged, "drops are flagged too")
}

func TestTaxableEvents_GroupsByMonthAndCategory(t *testing.T) {
	owner := id.NewUserID()
	a1 := newRecord(t, owner, models.CategoryIncome, models.RecordInput{Amount: amt("1000.00"), Period: period("2024-02")})
	a2 := newRecord(t, owner, models.CategoryIncome, models.RecordInput{Amount: amt("500.00"), Period: period("2024-02")})
	f := newRecord(t, owner, models.CategoryForeignIncome, models.RecordInput{Amount: amt("10.00"), Period: period("2024-01")})
	op := newRecord(t, owner, models.CategoryFIIOperation, models.RecordInput{Amount: amt("-5.00"), Period: period("2024-02")})
	donation := newRecord(t, owner, models.CategoryDonation, models.RecordInput{Amount: amt("7.00"), Period: period("2024-02")})

	agg := &Aggregate{
		Owner:         owner,
		Year:          2024,
		Incomes:       []*models.Record{a1, a2},
		ForeignIncome: []*models.Record{f},
		FIIResults:    []*models.Record{op},
		Donations:     []*models.Record{donation},
	}

	events := TaxableEvents(agg)
	require.Len(t, events, 3)
	assert.Equal(t, models.CategoryForeignIncome, events[0].Category)
	assert.Equal(t, period("2024-01"), events[0].Period)
	assert.Equal(t, models.CategoryIncome, events[1].Category)
	assert.Equal(t, "1500.00", events[1].Amount.String())
	assert.ElementsMatch(t, []id.RecordID{a1.ID, a2.ID}, events[1].RecordIDs)
	assert.Equal(t, models.CategoryFIIOperation, events[2].Category)
	assert.Equal(t, "-5.00", events[2].Amount.String())
}
