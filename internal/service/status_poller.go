package service

import (
	"context"
	"sync"
	"time"

	"payvia/internal/core/domain"
	"payvia/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatusPoller drives dispatched and processing settlement requests to a
// terminal state by polling the provider on a per-request exponential
// schedule. A request that exhausts its poll budget is force-failed and its
// reservation released, so no request can stay non-terminal forever.
type StatusPoller struct {
	store      ports.SettlementStore
	settlement *SettlementServiceImpl
	log        zerolog.Logger

	interval    time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu     sync.Mutex
	nextAt map[uuid.UUID]time.Time
}

// PollerOptions bounds the polling schedule.
type PollerOptions struct {
	Interval    time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// NewStatusPoller creates a new StatusPoller.
func NewStatusPoller(store ports.SettlementStore, settlement *SettlementServiceImpl, opts PollerOptions, log zerolog.Logger) *StatusPoller {
	return &StatusPoller{
		store:       store,
		settlement:  settlement,
		log:         log,
		interval:    opts.Interval,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		maxAttempts: opts.MaxAttempts,
		nextAt:      make(map[uuid.UUID]time.Time),
	}
}

// Run blocks until ctx is cancelled, sweeping in-flight requests every tick.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Msg("status poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("status poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep polls every in-flight request whose backoff window has elapsed.
// Exported so tests and operational tooling can trigger a pass directly.
func (p *StatusPoller) Sweep(ctx context.Context) {
	for _, state := range []domain.SettlementState{domain.SettlementStateDispatched, domain.SettlementStateProcessing} {
		reqs, err := p.store.ListByState(ctx, state)
		if err != nil {
			p.log.Error().Err(err).Str("state", string(state)).Msg("poller list failed")
			continue
		}
		for i := range reqs {
			p.pollOne(ctx, &reqs[i])
		}
	}
}

func (p *StatusPoller) pollOne(ctx context.Context, req *domain.SettlementRequest) {
	now := time.Now()
	if !p.due(req.ID, now) {
		return
	}

	if req.PollAttempts >= p.maxAttempts {
		p.forceFail(ctx, req)
		return
	}

	updated, err := p.settlement.PollStatus(ctx, req.ID)
	if err != nil {
		p.log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("status poll failed")
		p.schedule(req.ID, now, req.PollAttempts+1)
		return
	}

	if updated.State.IsTerminal() {
		p.forget(req.ID)
		return
	}
	p.schedule(req.ID, now, updated.PollAttempts)
}

// forceFail gives up on a request that outlived its poll budget. Funds go
// back to the account; reconciling against the provider is an operator task
// flagged by the failure reason.
func (p *StatusPoller) forceFail(ctx context.Context, req *domain.SettlementRequest) {
	p.log.Error().
		Str("request_id", req.ID.String()).
		Str("provider_ref", req.ProviderRef).
		Int("attempts", req.PollAttempts).
		Msg("poll budget exhausted, force-failing request")

	unlock := p.settlement.lockRequest(req.ID)
	defer unlock()

	fresh, err := p.settlement.getRequest(ctx, req.ID)
	if err != nil || fresh.State.IsTerminal() {
		p.forget(req.ID)
		return
	}
	orig := fresh.State
	if fresh.State == domain.SettlementStateDispatched {
		if err := fresh.Transition(domain.SettlementStateProcessing, time.Now().UTC()); err != nil {
			return
		}
	}
	if _, err := p.settlement.failAndRelease(ctx, fresh, orig, "status polling exhausted without a provider outcome"); err != nil {
		p.log.Error().Err(err).Str("request_id", req.ID.String()).Msg("force-fail did not settle")
		return
	}
	p.forget(req.ID)
}

func (p *StatusPoller) due(id uuid.UUID, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAt[id]
	return !ok || !now.Before(next)
}

// schedule sets the next poll time with exponential backoff capped at
// maxDelay.
func (p *StatusPoller) schedule(id uuid.UUID, now time.Time, attempts int) {
	delay := p.baseDelay
	for i := 0; i < attempts && delay < p.maxDelay; i++ {
		delay *= 2
	}
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	p.mu.Lock()
	p.nextAt[id] = now.Add(delay)
	p.mu.Unlock()
}

func (p *StatusPoller) forget(id uuid.UUID) {
	p.mu.Lock()
	delete(p.nextAt, id)
	p.mu.Unlock()
}
