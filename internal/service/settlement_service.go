package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dispatchCacheTTL = 24 * time.Hour

// SettlementServiceImpl implements ports.SettlementService. It orchestrates
// the request lifecycle over the ledger, the quote calculator and the channel
// adapters. Money safety comes from reservation exactly-once semantics, never
// from trusting provider call outcomes.
type SettlementServiceImpl struct {
	store    ports.SettlementStore
	ledger   ports.LedgerService
	quotes   ports.QuoteService
	registry ports.ProviderRegistry
	cache    ports.DispatchCache
	log      zerolog.Logger

	dispatchMaxRetries uint64

	// reqLocks serializes dispatch/poll/cancel per request id so a concurrent
	// cancel and dispatch resolve to one winner instead of a torn state.
	reqLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	store ports.SettlementStore,
	ledger ports.LedgerService,
	quotes ports.QuoteService,
	registry ports.ProviderRegistry,
	cache ports.DispatchCache,
	dispatchMaxRetries uint64,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		store:              store,
		ledger:             ledger,
		quotes:             quotes,
		registry:           registry,
		cache:              cache,
		dispatchMaxRetries: dispatchMaxRetries,
		log:                log,
	}
}

func (s *SettlementServiceImpl) lockRequest(id uuid.UUID) func() {
	v, _ := s.reqLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ReserveAndQuote validates the request, reserves the funds and records the
// pending settlement. Channel and destination are checked before any ledger
// mutation: a rejected request leaves no trace on balances.
func (s *SettlementServiceImpl) ReserveAndQuote(ctx context.Context, input ports.SettlementInput) (*domain.SettlementRequest, error) {
	adapter, ok := s.registry.Adapter(input.ChannelID)
	if !ok {
		return nil, apperror.ErrUnsupportedChannel(input.ChannelID)
	}
	if !adapter.ValidateDestination(input.Destination) {
		return nil, apperror.ErrInvalidDestination()
	}
	if input.Kind == domain.SettlementKindBillPayment && input.BillType == "" {
		return nil, apperror.Validation("bill_type is required for bill payments")
	}

	quote, err := s.quotes.Quote(input.Amount, input.ChannelID)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, input.AccountID, input.Amount)
	if err != nil {
		s.recordRefusedReserve(ctx, input, quote, err)
		return nil, err
	}

	req := &domain.SettlementRequest{
		ID:             uuid.New(),
		AccountID:      input.AccountID,
		Kind:           input.Kind,
		Amount:         input.Amount,
		ChannelID:      input.ChannelID,
		Destination:    input.Destination,
		BillType:       input.BillType,
		Fee:            quote.Fee,
		PayoutAmount:   quote.PayoutAmount,
		PayoutCurrency: quote.Currency,
		Rate:           quote.Rate,
		ReservationID:  res.ID,
		State:          domain.SettlementStatePending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, req); err != nil {
		// The reservation must not outlive a request we failed to record.
		if relErr := s.ledger.Release(ctx, res.ID); relErr != nil {
			s.log.Error().Err(relErr).Str("reservation_id", res.ID.String()).Msg("orphaned reservation after create failure")
		}
		return nil, apperror.InternalError(fmt.Errorf("create settlement request: %w", err))
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("channel", req.ChannelID).
		Str("amount", req.Amount.String()).
		Str("payout", req.PayoutAmount.String()+" "+req.PayoutCurrency).
		Msg("settlement request created")
	return req, nil
}

// recordRefusedReserve keeps an audit record of a request the ledger refused
// to fund. Only the insufficient-funds refusal is recorded: it is the one
// refusal made on behalf of an existing, active account. The record is born
// terminal and holds no reservation.
func (s *SettlementServiceImpl) recordRefusedReserve(ctx context.Context, input ports.SettlementInput, quote *domain.ProviderQuote, cause error) {
	var appErr *apperror.AppError
	if !errors.As(cause, &appErr) || appErr.Code != "LED_001" {
		return
	}
	now := time.Now().UTC()
	req := &domain.SettlementRequest{
		ID:             uuid.New(),
		AccountID:      input.AccountID,
		Kind:           input.Kind,
		Amount:         input.Amount,
		ChannelID:      input.ChannelID,
		Destination:    input.Destination,
		BillType:       input.BillType,
		Fee:            quote.Fee,
		PayoutAmount:   quote.PayoutAmount,
		PayoutCurrency: quote.Currency,
		Rate:           quote.Rate,
		State:          domain.SettlementStateFailed,
		FailureReason:  "insufficient funds",
		CreatedAt:      now,
		ResolvedAt:     &now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		s.log.Warn().
			Err(err).
			Str("account_id", input.AccountID.String()).
			Msg("refused settlement request not recorded")
	}
}

// Dispatch hands a pending request to its channel adapter. The request id is
// the provider idempotency key, so retrying a dispatch that may have reached
// the provider can never pay out twice. Transient provider failures are
// retried with exponential backoff; when every attempt fails, or the provider
// rejects the transfer outright, the request is failed and the funds released.
func (s *SettlementServiceImpl) Dispatch(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error) {
	unlock := s.lockRequest(requestID)
	defer unlock()

	// Fast path: a retried dispatch returns the recorded outcome.
	if cached, err := s.cache.Get(ctx, dispatchKey(requestID)); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("dispatch cache read failed, falling through to store")
	} else if cached != nil {
		var req domain.SettlementRequest
		if err := json.Unmarshal(cached, &req); err == nil {
			return &req, nil
		}
	}

	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State != domain.SettlementStatePending {
		// Store-level idempotency: a dispatch that already ran is replayed,
		// not re-executed.
		if req.State == domain.SettlementStateDispatched || req.State == domain.SettlementStateProcessing || req.State == domain.SettlementStateCompleted {
			return req, nil
		}
		return s.transitionError(req, domain.SettlementStateDispatched)
	}

	adapter, ok := s.registry.Adapter(req.ChannelID)
	if !ok {
		return nil, apperror.ErrUnsupportedChannel(req.ChannelID)
	}

	send := ports.SendRequest{
		RequestID:   req.ID,
		Destination: req.Destination,
		Amount:      req.PayoutAmount,
		Currency:    req.PayoutCurrency,
		Narration:   narration(req),
	}

	var providerRef string
	op := func() error {
		ref, sendErr := adapter.Send(ctx, send)
		if sendErr != nil {
			var appErr *apperror.AppError
			if errors.As(sendErr, &appErr) && appErr.Code == "PRV_001" {
				return sendErr // transient, retry
			}
			return backoff.Permanent(sendErr)
		}
		providerRef = ref
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.dispatchMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return s.failDispatch(ctx, req, err)
	}

	now := time.Now().UTC()
	prev := req.State
	if err := req.Transition(domain.SettlementStateDispatched, now); err != nil {
		return nil, s.mapDomainErr(err, req)
	}
	req.ProviderRef = providerRef
	if err := s.store.Update(ctx, req, prev); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update dispatched request: %w", err))
	}
	s.cacheDispatch(ctx, req)

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("provider_ref", providerRef).
		Str("channel", req.ChannelID).
		Msg("settlement dispatched")
	return req, nil
}

// failDispatch resolves a send that never produced a provider reference:
// definitive rejections and exhausted transient retries both fail the request
// and release the reservation, so no funds stay parked behind a dead send.
// The request id is the provider idempotency key, so submitting a fresh
// request later is safe even if the provider half-recorded an attempt.
func (s *SettlementServiceImpl) failDispatch(ctx context.Context, req *domain.SettlementRequest, sendErr error) (*domain.SettlementRequest, error) {
	var appErr *apperror.AppError
	if !errors.As(sendErr, &appErr) {
		appErr = apperror.ErrProviderUnavailable(sendErr)
	}
	reason := appErr.Message
	if appErr.Code == "PRV_001" {
		reason = "provider unreachable, dispatch retries exhausted"
		s.log.Warn().
			Err(sendErr).
			Str("request_id", req.ID.String()).
			Msg("dispatch abandoned after retries")
	}

	failed, err := s.failAndRelease(ctx, req, req.State, reason)
	if err != nil {
		return nil, err
	}
	s.cacheDispatch(ctx, failed)
	return failed, appErr
}

// failAndRelease transitions to failed and releases the reservation. The
// release is idempotent at the ledger, so crashing between the two writes
// cannot double-refund. storedState is the state the store still holds, which
// may lag req.State when an intermediate transition happened in memory.
func (s *SettlementServiceImpl) failAndRelease(ctx context.Context, req *domain.SettlementRequest, storedState domain.SettlementState, reason string) (*domain.SettlementRequest, error) {
	prev := storedState
	if err := req.Transition(domain.SettlementStateFailed, time.Now().UTC()); err != nil {
		return nil, s.mapDomainErr(err, req)
	}
	req.FailureReason = reason
	if err := s.store.Update(ctx, req, prev); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update failed request: %w", err))
	}
	if err := s.ledger.Release(ctx, req.ReservationID); err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Code != "LED_002" {
			return nil, err
		}
	}
	// A request that went through dispatch has a cached snapshot; keep it in
	// step so a replayed dispatch reports the terminal outcome.
	if req.DispatchedAt != nil {
		s.cacheDispatch(ctx, req)
	}
	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("reason", reason).
		Msg("settlement failed, funds released")
	return req, nil
}

// PollStatus asks the provider for the outcome of a dispatched request and
// settles the ledger accordingly. The provider answer only ever resolves the
// reservation; it never creates new ledger obligations.
func (s *SettlementServiceImpl) PollStatus(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error) {
	unlock := s.lockRequest(requestID)
	defer unlock()

	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State.IsTerminal() {
		return req, nil
	}
	if req.State != domain.SettlementStateDispatched && req.State != domain.SettlementStateProcessing {
		return req, nil
	}

	adapter, ok := s.registry.Adapter(req.ChannelID)
	if !ok {
		return nil, apperror.ErrUnsupportedChannel(req.ChannelID)
	}

	status, err := adapter.CheckStatus(ctx, req.ProviderRef)
	if err != nil {
		req.PollAttempts++
		if updErr := s.store.Update(ctx, req, req.State); updErr != nil {
			s.log.Warn().Err(updErr).Str("request_id", req.ID.String()).Msg("poll attempt count not persisted")
		}
		return nil, err
	}

	now := time.Now().UTC()
	switch status {
	case ports.ProviderStatusPending:
		if req.State == domain.SettlementStateDispatched {
			prev := req.State
			if err := req.Transition(domain.SettlementStateProcessing, now); err != nil {
				return nil, s.mapDomainErr(err, req)
			}
			if err := s.store.Update(ctx, req, prev); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("update processing request: %w", err))
			}
			s.cacheDispatch(ctx, req)
		} else {
			req.PollAttempts++
			if err := s.store.Update(ctx, req, req.State); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("update poll attempts: %w", err))
			}
		}
		return req, nil

	case ports.ProviderStatusSuccess:
		// dispatched -> processing -> completed; the provider acknowledging
		// and succeeding can arrive as one observation.
		orig := req.State
		if req.State == domain.SettlementStateDispatched {
			if err := req.Transition(domain.SettlementStateProcessing, now); err != nil {
				return nil, s.mapDomainErr(err, req)
			}
		}
		if err := req.Transition(domain.SettlementStateCompleted, now); err != nil {
			return nil, s.mapDomainErr(err, req)
		}
		if err := s.store.Update(ctx, req, orig); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update completed request: %w", err))
		}
		s.cacheDispatch(ctx, req)
		if err := s.ledger.Commit(ctx, req.ReservationID); err != nil {
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Code != "LED_002" {
				return nil, err
			}
		}
		s.log.Info().
			Str("request_id", req.ID.String()).
			Str("provider_ref", req.ProviderRef).
			Msg("settlement completed, reservation committed")
		return req, nil

	case ports.ProviderStatusFailure:
		orig := req.State
		if req.State == domain.SettlementStateDispatched {
			if err := req.Transition(domain.SettlementStateProcessing, now); err != nil {
				return nil, s.mapDomainErr(err, req)
			}
		}
		return s.failAndRelease(ctx, req, orig, "provider reported transfer failure")

	default:
		return nil, apperror.InternalError(fmt.Errorf("unknown provider status %q", status))
	}
}

// Cancel aborts a request that has not been handed to a provider. Once
// dispatched the money may be in flight, so cancellation is refused and the
// outcome must come from status polling.
func (s *SettlementServiceImpl) Cancel(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error) {
	unlock := s.lockRequest(requestID)
	defer unlock()

	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State.IsTerminal() {
		return nil, apperror.ErrAlreadyTerminal(string(req.State))
	}
	if req.State != domain.SettlementStatePending {
		return nil, apperror.ErrInvalidStateTransition(string(req.State), string(domain.SettlementStateCancelled))
	}

	prev := req.State
	if err := req.Transition(domain.SettlementStateCancelled, time.Now().UTC()); err != nil {
		return nil, s.mapDomainErr(err, req)
	}
	if err := s.store.Update(ctx, req, prev); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update cancelled request: %w", err))
	}
	if err := s.ledger.Release(ctx, req.ReservationID); err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Code != "LED_002" {
			return nil, err
		}
	}

	s.log.Info().Str("request_id", req.ID.String()).Msg("settlement cancelled, funds released")
	return req, nil
}

func (s *SettlementServiceImpl) Get(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error) {
	return s.getRequest(ctx, requestID)
}

func (s *SettlementServiceImpl) getRequest(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get settlement request: %w", err))
	}
	if req == nil {
		return nil, apperror.ErrNotFound("settlement request")
	}
	return req, nil
}

func (s *SettlementServiceImpl) transitionError(req *domain.SettlementRequest, next domain.SettlementState) (*domain.SettlementRequest, error) {
	if req.State.IsTerminal() {
		return nil, apperror.ErrAlreadyTerminal(string(req.State))
	}
	return nil, apperror.ErrInvalidStateTransition(string(req.State), string(next))
}

func (s *SettlementServiceImpl) mapDomainErr(err error, req *domain.SettlementRequest) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return apperror.ErrAlreadyTerminal(string(req.State))
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return apperror.ErrInvalidStateTransition(string(req.State), "")
	default:
		return apperror.InternalError(err)
	}
}

func (s *SettlementServiceImpl) cacheDispatch(ctx context.Context, req *domain.SettlementRequest) {
	payload, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dispatchKey(req.ID), payload, dispatchCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("dispatch cache write failed")
	}
}

func dispatchKey(id uuid.UUID) string {
	return "dispatch:" + id.String()
}

func narration(req *domain.SettlementRequest) string {
	if req.Kind == domain.SettlementKindBillPayment {
		return fmt.Sprintf("bill payment %s", req.BillType)
	}
	return "wallet withdrawal"
}
