package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State machine sentinel errors.
var (
	ErrAlreadyTerminal        = errors.New("settlement request already in a terminal state")
	ErrInvalidStateTransition = errors.New("illegal settlement state transition")
)

// SettlementKind distinguishes cash-outs from biller payments.
type SettlementKind string

const (
	SettlementKindWithdrawal  SettlementKind = "WITHDRAWAL"
	SettlementKindBillPayment SettlementKind = "BILL_PAYMENT"
)

// SettlementState is the lifecycle state of a settlement request.
type SettlementState string

const (
	SettlementStatePending    SettlementState = "PENDING"
	SettlementStateDispatched SettlementState = "DISPATCHED"
	SettlementStateProcessing SettlementState = "PROCESSING"
	SettlementStateCompleted  SettlementState = "COMPLETED"
	SettlementStateFailed     SettlementState = "FAILED"
	SettlementStateCancelled  SettlementState = "CANCELLED"
)

// IsTerminal returns true for states with no further legal transitions.
func (s SettlementState) IsTerminal() bool {
	return s == SettlementStateCompleted ||
		s == SettlementStateFailed ||
		s == SettlementStateCancelled
}

// transitions is the full edge set of the lifecycle graph. completed is
// reachable only through processing; failed only from pending or processing.
var transitions = map[SettlementState][]SettlementState{
	SettlementStatePending:    {SettlementStateDispatched, SettlementStateFailed, SettlementStateCancelled},
	SettlementStateDispatched: {SettlementStateProcessing},
	SettlementStateProcessing: {SettlementStateCompleted, SettlementStateFailed},
}

// SettlementRequest is one withdrawal or bill payment, tracked independently of
// provider behavior. The quote snapshot taken at creation is frozen; it is
// never recomputed for dispatch or history.
type SettlementRequest struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Kind           SettlementKind  `json:"kind"`
	Amount         decimal.Decimal `json:"amount"` // requested, in USDC
	ChannelID      string          `json:"channel_id"`
	Destination    string          `json:"destination"`
	BillType       string          `json:"bill_type,omitempty"` // bill payments only
	Fee            decimal.Decimal `json:"fee"`
	PayoutAmount   decimal.Decimal `json:"payout_amount"` // destination currency
	PayoutCurrency string          `json:"payout_currency"`
	Rate           decimal.Decimal `json:"rate"`
	ReservationID  uuid.UUID       `json:"reservation_id"`
	State          SettlementState `json:"state"`
	ProviderRef    string          `json:"provider_ref,omitempty"` // frozen once dispatched
	FailureReason  string          `json:"failure_reason,omitempty"`
	PollAttempts   int             `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	DispatchedAt   *time.Time      `json:"dispatched_at,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Transition moves the request to the next state, recording the transition
// timestamp. Terminal states reject every transition with ErrAlreadyTerminal;
// edges outside the graph fail with ErrInvalidStateTransition.
func (r *SettlementRequest) Transition(next SettlementState, at time.Time) error {
	if r.State.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !legalTransition(r.State, next) {
		return ErrInvalidStateTransition
	}

	r.State = next
	switch next {
	case SettlementStateDispatched:
		t := at
		r.DispatchedAt = &t
	case SettlementStateProcessing:
		t := at
		r.AcknowledgedAt = &t
	case SettlementStateCompleted, SettlementStateFailed, SettlementStateCancelled:
		t := at
		r.ResolvedAt = &t
	}
	return nil
}

func legalTransition(from, to SettlementState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
