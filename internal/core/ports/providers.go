package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=providers.go -destination=mocks/provider_mocks.go -package=mocks

// ProviderStatus is a normalized provider-side transfer status.
type ProviderStatus string

const (
	ProviderStatusPending ProviderStatus = "PENDING"
	ProviderStatusSuccess ProviderStatus = "SUCCESS"
	ProviderStatusFailure ProviderStatus = "FAILURE"
)

// SendRequest carries one payout instruction to a settlement channel.
// RequestID doubles as the provider-side idempotency key: a retried send with
// the same RequestID must never cause a duplicate external payout.
type SendRequest struct {
	RequestID   uuid.UUID
	Destination string
	Amount      decimal.Decimal
	Currency    string
	Narration   string
}

// ProviderAdapter is the uniform capability over one external settlement
// channel. The orchestration core depends only on this interface, never on
// channel specifics.
type ProviderAdapter interface {
	// ID returns the channel id this adapter serves (e.g. "mtn_momo").
	ID() string
	// Send initiates the external transfer and returns the provider reference.
	Send(ctx context.Context, req SendRequest) (string, error)
	// CheckStatus polls the provider for the final status of a dispatched transfer.
	CheckStatus(ctx context.Context, providerRef string) (ProviderStatus, error)
	// ValidateDestination reports whether raw matches this channel's format rule.
	ValidateDestination(raw string) bool
}

// ProviderRegistry resolves a channel id to its adapter.
type ProviderRegistry interface {
	Adapter(channelID string) (ProviderAdapter, bool)
	ChannelIDs() []string
}

// RateSource supplies the exchange rate as an external input; the core never
// discovers prices itself.
type RateSource interface {
	// Rate returns how many units of quote one unit of base buys.
	Rate(base, quote string) (decimal.Decimal, error)
}
