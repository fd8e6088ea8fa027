package app

import "github.com/shopspring/decimal"

// RateProvider resolves the exchange rate applied when a transfer crosses a
// currency pair. The target amount is computed once at transaction creation
// and never recomputed.
type RateProvider interface {
	Rate(sourceCurrency, targetCurrency string) decimal.Decimal
}

// FixedRateProvider always quotes the same rate. The simulator runs with a
// rate of 1; a market-data backed provider would slot in here.
type FixedRateProvider struct {
	rate decimal.Decimal
}

func NewFixedRateProvider(rate decimal.Decimal) *FixedRateProvider {
	return &FixedRateProvider{rate: rate}
}

func (p *FixedRateProvider) Rate(sourceCurrency, targetCurrency string) decimal.Decimal {
	return p.rate
}
