// Package provider holds the channel adapters that carry payouts to the
// external money networks. Each adapter normalizes one provider's API onto
// ports.ProviderAdapter; everything above this package is channel-agnostic.
package provider

import (
	"net/http"
	"sort"
	"time"

	"payvia/internal/core/ports"
)

const (
	ChannelMTN    = "mtn_momo"
	ChannelAirtel = "airtel_money"
	ChannelBank   = "bank"
)

const defaultHTTPTimeout = 30 * time.Second

// Registry implements ports.ProviderRegistry over a fixed adapter set.
// Adapters are registered once at startup; lookups are read-only after that.
type Registry struct {
	adapters map[string]ports.ProviderAdapter
}

// NewRegistry creates a registry over the given adapters, keyed by ID().
func NewRegistry(adapters ...ports.ProviderAdapter) *Registry {
	m := make(map[string]ports.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		m[a.ID()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Adapter(channelID string) (ports.ProviderAdapter, bool) {
	a, ok := r.adapters[channelID]
	return a, ok
}

func (r *Registry) ChannelIDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// transientStatus reports whether an HTTP status should be treated as a
// temporary provider outage rather than a rejection of the transfer.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
