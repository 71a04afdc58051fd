package service

import (
	"fmt"

	"payvia/config"
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/shopspring/decimal"
)

// ChannelTerms is the parsed fee and limit configuration for one channel.
type ChannelTerms struct {
	FeeRate   decimal.Decimal
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Currency  string
}

// QuoteServiceImpl implements ports.QuoteService. It is pure arithmetic over
// frozen terms: no clock, no randomness, no ledger access, so the same input
// always yields the same quote.
type QuoteServiceImpl struct {
	terms map[string]ChannelTerms
	rates ports.RateSource
}

// NewQuoteService creates a new QuoteServiceImpl.
func NewQuoteService(terms map[string]ChannelTerms, rates ports.RateSource) *QuoteServiceImpl {
	return &QuoteServiceImpl{terms: terms, rates: rates}
}

// ParseChannelTerms converts the string-typed channel config into decimal
// terms, failing fast on malformed values.
func ParseChannelTerms(channels map[string]config.ChannelConfig) (map[string]ChannelTerms, error) {
	terms := make(map[string]ChannelTerms, len(channels))
	for id, c := range channels {
		feeRate, err := decimal.NewFromString(c.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("channel %s: fee_rate %q: %w", id, c.FeeRate, err)
		}
		minAmt, err := decimal.NewFromString(c.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("channel %s: min_amount %q: %w", id, c.MinAmount, err)
		}
		maxAmt, err := decimal.NewFromString(c.MaxAmount)
		if err != nil {
			return nil, fmt.Errorf("channel %s: max_amount %q: %w", id, c.MaxAmount, err)
		}
		terms[id] = ChannelTerms{
			FeeRate:   feeRate,
			MinAmount: minAmt,
			MaxAmount: maxAmt,
			Currency:  c.Currency,
		}
	}
	return terms, nil
}

// Quote computes the fee and payout for amount over the given channel.
// Fee is rounded half-up to cents. The payout is floored to a whole unit of
// the payout currency so the provider is never asked to pay out fractions.
func (s *QuoteServiceImpl) Quote(amount decimal.Decimal, channelID string) (*domain.ProviderQuote, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	t, ok := s.terms[channelID]
	if !ok {
		return nil, apperror.ErrUnsupportedChannel(channelID)
	}
	if amount.LessThan(t.MinAmount) || amount.GreaterThan(t.MaxAmount) {
		return nil, apperror.ErrAmountOutOfRange()
	}

	rate, err := s.rates.Rate(domain.StablecoinCurrency, t.Currency)
	if err != nil {
		return nil, apperror.ErrRateUnavailable(err)
	}

	fee := amount.Mul(t.FeeRate).Round(2)
	payout := amount.Sub(fee).Mul(rate).Floor()

	return &domain.ProviderQuote{
		ChannelID:    channelID,
		Fee:          fee,
		PayoutAmount: payout,
		Currency:     t.Currency,
		Rate:         rate,
	}, nil
}

// StaticRateSource serves fixed rates loaded from configuration. It satisfies
// ports.RateSource for deployments where the treasury desk pins the rate.
type StaticRateSource struct {
	rates map[string]decimal.Decimal // key: "BASE/QUOTE"
}

// NewStaticRateSource creates a rate source over a fixed table.
func NewStaticRateSource(rates map[string]decimal.Decimal) *StaticRateSource {
	return &StaticRateSource{rates: rates}
}

// NewStaticRateSourceFromConfig parses the configured rate strings.
func NewStaticRateSourceFromConfig(cfg config.RatesConfig) (*StaticRateSource, error) {
	usdugx, err := decimal.NewFromString(cfg.USDUGX)
	if err != nil {
		return nil, fmt.Errorf("rates.usd_ugx %q: %w", cfg.USDUGX, err)
	}
	return NewStaticRateSource(map[string]decimal.Decimal{
		domain.StablecoinCurrency + "/UGX": usdugx,
	}), nil
}

func (s *StaticRateSource) Rate(base, quote string) (decimal.Decimal, error) {
	r, ok := s.rates[base+"/"+quote]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s", base, quote)
	}
	return r, nil
}
