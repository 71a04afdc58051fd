package domain

import "github.com/shopspring/decimal"

// ProviderQuote is the ephemeral result of fee and conversion arithmetic for
// one channel. It exists only to be snapshotted onto a SettlementRequest; the
// same quote serves both the balance check and the final settlement record.
type ProviderQuote struct {
	ChannelID    string          `json:"channel_id"`
	Fee          decimal.Decimal `json:"fee"`           // in USDC
	PayoutAmount decimal.Decimal `json:"payout_amount"` // destination currency
	Currency     string          `json:"currency"`      // destination currency code
	Rate         decimal.Decimal `json:"rate"`
}
