package provider

import (
	"context"
	"sync"
	"time"
)

// tokenRefreshSlack renews a token this long before its actual expiry so an
// in-flight request never carries a token that dies mid-call.
const tokenRefreshSlack = 30 * time.Second

type fetchTokenFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenSource caches a provider OAuth token until shortly before expiry.
// All three channel adapters authenticate this way; only the fetch differs.
type tokenSource struct {
	mu     sync.Mutex
	fetch  fetchTokenFunc
	token  string
	expiry time.Time
}

func newTokenSource(fetch fetchTokenFunc) *tokenSource {
	return &tokenSource{fetch: fetch}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry.Add(-tokenRefreshSlack)) {
		return s.token, nil
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiry = time.Now().Add(ttl)
	return token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
