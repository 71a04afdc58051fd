package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"payvia/config"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/rs/zerolog"
)

// MTN Uganda mobile money prefixes.
var mtnMSISDN = regexp.MustCompile(`^256(76|77|78)\d{7}$`)

// MTNAdapter drives the MTN MoMo disbursements API. The transfer is created
// with X-Reference-Id set to our request id, which is also how MoMo
// deduplicates: resending the same reference can never pay out twice.
type MTNAdapter struct {
	baseURL         string
	apiUser         string
	apiKey          string
	subscriptionKey string
	targetEnv       string
	client          *http.Client
	tokens          *tokenSource
	log             zerolog.Logger
}

// NewMTNAdapter creates an adapter for the MTN MoMo disbursements API.
func NewMTNAdapter(cfg config.MTNConfig, log zerolog.Logger) *MTNAdapter {
	a := &MTNAdapter{
		baseURL:         cfg.BaseURL,
		apiUser:         cfg.APIUser,
		apiKey:          cfg.APIKey,
		subscriptionKey: cfg.SubscriptionKey,
		targetEnv:       cfg.TargetEnv,
		client:          newHTTPClient(),
		log:             log,
	}
	a.tokens = newTokenSource(a.fetchToken)
	return a
}

func (a *MTNAdapter) ID() string { return ChannelMTN }

func (a *MTNAdapter) ValidateDestination(raw string) bool {
	return mtnMSISDN.MatchString(raw)
}

func (a *MTNAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/disbursement/token/", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(a.apiUser, a.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("momo token: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("momo token: status %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("momo token decode: %w", err))
	}
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

type mtnTransferRequest struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payee        mtnParty `json:"payee"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// Send creates the MoMo transfer. MoMo accepts asynchronously with 202; the
// reference we hand it is the reference we poll.
func (a *MTNAdapter) Send(ctx context.Context, sr ports.SendRequest) (string, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	ref := sr.RequestID.String()
	payload, err := json.Marshal(mtnTransferRequest{
		Amount:       sr.Amount.String(),
		Currency:     sr.Currency,
		ExternalID:   ref,
		Payee:        mtnParty{PartyIDType: "MSISDN", PartyID: sr.Destination},
		PayerMessage: sr.Narration,
		PayeeNote:    sr.Narration,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/disbursement/v1_0/transfer", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reference-Id", ref)
	req.Header.Set("X-Target-Environment", a.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo transfer: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return ref, nil
	case resp.StatusCode == http.StatusConflict:
		// Duplicate X-Reference-Id: our transfer already exists. Idempotent
		// success.
		return ref, nil
	case resp.StatusCode == http.StatusUnauthorized:
		a.tokens.Invalidate()
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo transfer: status %d", resp.StatusCode))
	case transientStatus(resp.StatusCode):
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo transfer: status %d", resp.StatusCode))
	default:
		return "", apperror.ErrProviderRejected(readRejection(resp.Body, resp.StatusCode))
	}
}

// CheckStatus polls the transfer by the reference Send returned.
func (a *MTNAdapter) CheckStatus(ctx context.Context, providerRef string) (ports.ProviderStatus, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/disbursement/v1_0/transfer/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", a.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo status: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.tokens.Invalidate()
		}
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo status: status %d", resp.StatusCode))
	}

	var body struct {
		Status string `json:"status"`
		Reason struct {
			Message string `json:"message"`
		} `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("momo status decode: %w", err))
	}

	switch body.Status {
	case "SUCCESSFUL":
		return ports.ProviderStatusSuccess, nil
	case "FAILED":
		return ports.ProviderStatusFailure, nil
	default: // PENDING
		return ports.ProviderStatusPending, nil
	}
}

// readRejection pulls a human-readable reason out of an error body, falling
// back to the status code.
func readRejection(body io.Reader, statusCode int) string {
	raw, err := io.ReadAll(io.LimitReader(body, 1024))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("status %d", statusCode)
	}
	var parsed struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return fmt.Sprintf("status %d: %s", statusCode, string(raw))
}
