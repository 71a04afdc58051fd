package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"payvia/config"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/rs/zerolog"
)

// Airtel Uganda mobile money prefixes.
var airtelMSISDN = regexp.MustCompile(`^256(70|74|75)\d{7}$`)

// AirtelAdapter drives the Airtel Money disbursements API. Airtel dedupes on
// the transaction id in the request body, which we set to our request id.
type AirtelAdapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	tokens       *tokenSource
	log          zerolog.Logger
}

// NewAirtelAdapter creates an adapter for the Airtel Money disbursements API.
func NewAirtelAdapter(cfg config.AirtelConfig, log zerolog.Logger) *AirtelAdapter {
	a := &AirtelAdapter{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       newHTTPClient(),
		log:          log,
	}
	a.tokens = newTokenSource(a.fetchToken)
	return a
}

func (a *AirtelAdapter) ID() string { return ChannelAirtel }

func (a *AirtelAdapter) ValidateDestination(raw string) bool {
	return airtelMSISDN.MatchString(raw)
}

func (a *AirtelAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     a.clientID,
		"client_secret": a.clientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/oauth2/token", bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("airtel token: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("airtel token: status %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, apperror.ErrProviderUnavailable(fmt.Errorf("airtel token decode: %w", err))
	}
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

type airtelDisbursement struct {
	Payee struct {
		MSISDN string `json:"msisdn"`
	} `json:"payee"`
	Reference   string `json:"reference"`
	Transaction struct {
		Amount string `json:"amount"`
		ID     string `json:"id"`
	} `json:"transaction"`
}

func (a *AirtelAdapter) Send(ctx context.Context, sr ports.SendRequest) (string, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var disb airtelDisbursement
	disb.Payee.MSISDN = sr.Destination
	disb.Reference = sr.Narration
	disb.Transaction.Amount = sr.Amount.String()
	disb.Transaction.ID = sr.RequestID.String()

	payload, err := json.Marshal(disb)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/standard/v1/disbursements/", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Country", "UG")
	req.Header.Set("X-Currency", sr.Currency)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel disbursement: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return disb.Transaction.ID, nil
	case resp.StatusCode == http.StatusUnauthorized:
		a.tokens.Invalidate()
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel disbursement: status %d", resp.StatusCode))
	case transientStatus(resp.StatusCode):
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel disbursement: status %d", resp.StatusCode))
	default:
		return "", apperror.ErrProviderRejected(readRejection(resp.Body, resp.StatusCode))
	}
}

func (a *AirtelAdapter) CheckStatus(ctx context.Context, providerRef string) (ports.ProviderStatus, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/standard/v1/disbursements/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Country", "UG")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel status: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.tokens.Invalidate()
		}
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel status: status %d", resp.StatusCode))
	}

	var body struct {
		Data struct {
			Transaction struct {
				Status string `json:"status"`
			} `json:"transaction"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.ErrProviderUnavailable(fmt.Errorf("airtel status decode: %w", err))
	}

	// Airtel status codes: TS = success, TF = failed, TIP = in progress.
	switch body.Data.Transaction.Status {
	case "TS":
		return ports.ProviderStatusSuccess, nil
	case "TF":
		return ports.ProviderStatusFailure, nil
	default:
		return ports.ProviderStatusPending, nil
	}
}
