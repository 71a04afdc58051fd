package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"payvia/config"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/rs/zerolog"
)

// Local bank account numbers are 10 to 16 digits.
var bankAccount = regexp.MustCompile(`^\d{10,16}$`)

// BankAdapter drives the partner bank's payout API. The bank dedupes on the
// Idempotency-Key header, which carries our request id.
type BankAdapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	tokens       *tokenSource
	log          zerolog.Logger
}

// NewBankAdapter creates an adapter for the partner bank payout API.
func NewBankAdapter(cfg config.BankConfig, log zerolog.Logger) *BankAdapter {
	a := &BankAdapter{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       newHTTPClient(),
		log:          log,
	}
	a.tokens = newTokenSource(a.fetchToken)
	return a
}

func (a *BankAdapter) ID() string { return ChannelBank }

func (a *BankAdapter) ValidateDestination(raw string) bool {
	return bankAccount.MatchString(raw)
}

func (a *BankAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("bank token: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("bank token: status %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("bank token decode: %w", err))
	}
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

type bankPayoutRequest struct {
	AccountNumber string `json:"account_number"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Narration     string `json:"narration"`
}

func (a *BankAdapter) Send(ctx context.Context, sr ports.SendRequest) (string, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(bankPayoutRequest{
		AccountNumber: sr.Destination,
		Amount:        sr.Amount.String(),
		Currency:      sr.Currency,
		Narration:     sr.Narration,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payouts", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", sr.RequestID.String())
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank payout: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted:
		var body struct {
			PayoutID string `json:"payout_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.PayoutID == "" {
			return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank payout: missing payout_id"))
		}
		return body.PayoutID, nil
	case resp.StatusCode == http.StatusUnauthorized:
		a.tokens.Invalidate()
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank payout: status %d", resp.StatusCode))
	case transientStatus(resp.StatusCode):
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank payout: status %d", resp.StatusCode))
	default:
		return "", apperror.ErrProviderRejected(readRejection(resp.Body, resp.StatusCode))
	}
}

func (a *BankAdapter) CheckStatus(ctx context.Context, providerRef string) (ports.ProviderStatus, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/payouts/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank status: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.tokens.Invalidate()
		}
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank status: status %d", resp.StatusCode))
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("bank status decode: %w", err))
	}

	switch body.Status {
	case "completed":
		return ports.ProviderStatusSuccess, nil
	case "failed", "returned":
		return ports.ProviderStatusFailure, nil
	default:
		return ports.ProviderStatusPending, nil
	}
}
