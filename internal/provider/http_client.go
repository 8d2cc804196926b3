package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dravya/backend/internal/metrics"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
)

const (
	defaultNarration = "Vendor Fund Transfer"
	maxResponse      = 1 << 20
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS throttles outbound calls; zero disables throttling.
	RPS   float64
	Burst int
}

// HTTPClient talks JSON to the payment rail.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewHTTPClient(cfg HTTPConfig, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		log:     log,
	}
}

var _ Provider = (*HTTPClient)(nil)

// envelope is the rail's common response shape.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) ok() bool { return strings.EqualFold(e.Status, "success") }

type initiatePayload struct {
	BenName             string `json:"ben_name"`
	BenPhoneNumber      string `json:"ben_phone_number"`
	BenVPAAddress       string `json:"ben_vpa_address,omitempty"`
	BenAccountNumber    string `json:"ben_account_number,omitempty"`
	BenIFSC             string `json:"ben_ifsc,omitempty"`
	BenBankName         string `json:"ben_bank_name,omitempty"`
	Amount              string `json:"amount"`
	MerchantReferenceID string `json:"merchant_reference_id"`
	TransferType        string `json:"transfer_type"`
	Narration           string `json:"narration"`
}

type transferData struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	UTR           string `json:"utr"`
	Message       string `json:"message"`
}

func (c *HTTPClient) SubmitTransfer(ctx context.Context, t Transfer) (*Acceptance, error) {
	p := initiatePayload{
		BenName:             t.Beneficiary.Name,
		BenPhoneNumber:      t.Beneficiary.Phone,
		Amount:              t.Amount.String(),
		MerchantReferenceID: t.Reference,
		TransferType:        t.TransferType,
		Narration:           t.Narration,
	}
	if p.Narration == "" {
		p.Narration = defaultNarration
	}
	if t.TransferType == models.TransferUPI {
		p.BenVPAAddress = t.Beneficiary.VPA
	} else {
		p.BenAccountNumber = t.Beneficiary.AccountNumber
		p.BenIFSC = t.Beneficiary.IFSC
		p.BenBankName = t.Beneficiary.BankName
	}

	env, err := c.do(ctx, "initiate", http.MethodPost, "/payout/initiate", p)
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return &Acceptance{Accepted: false, Message: env.Message}, nil
	}
	var d transferData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, unreachable("initiate", fmt.Errorf("decode data: %w", err))
		}
	}
	// A rail that fails the transfer synchronously still answers "success"
	// at the envelope level.
	if s := normalizeState(d.Status); s == StateFailed || s == StateReversed {
		msg := d.Message
		if msg == "" {
			msg = env.Message
		}
		return &Acceptance{Accepted: false, ProviderTxnID: d.TransactionID, Message: msg}, nil
	}
	return &Acceptance{Accepted: true, ProviderTxnID: d.TransactionID, Message: env.Message}, nil
}

func (c *HTTPClient) QueryStatus(ctx context.Context, reference string) (*Status, error) {
	env, err := c.do(ctx, "status", http.MethodPost, "/payout/status", map[string]string{
		"merchant_reference_id": reference,
	})
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return &Status{State: StateUnknown, Error: env.Message}, nil
	}
	var d transferData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, unreachable("status", fmt.Errorf("decode data: %w", err))
	}
	st := &Status{State: normalizeState(d.Status), ProviderTxnID: d.TransactionID, UTR: d.UTR}
	if st.State == StateFailed || st.State == StateReversed || st.State == StateUnknown {
		st.Error = d.Message
	}
	return st, nil
}

type balanceData struct {
	Balance  json.RawMessage `json:"balance"`
	Currency string          `json:"currency"`
}

func (c *HTTPClient) AccountBalance(ctx context.Context) (*Balance, error) {
	env, err := c.do(ctx, "balance", http.MethodGet, "/account/balance", nil)
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, fmt.Errorf("balance: %w: %s", models.ErrProviderRejected, env.Message)
	}
	var d balanceData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, unreachable("balance", fmt.Errorf("decode data: %w", err))
	}
	// The rail sends the balance either quoted or as a bare number; both are
	// parsed from their text so no float is involved.
	raw := strings.Trim(string(d.Balance), `"`)
	amt, err := money.Parse(raw)
	if err != nil {
		return nil, unreachable("balance", err)
	}
	if d.Currency == "" {
		d.Currency = "INR"
	}
	return &Balance{Balance: amt, Currency: d.Currency}, nil
}

// do sends one request and decodes the envelope. 4xx answers still carry an
// envelope and are returned for the caller to interpret.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body any) (env *envelope, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		switch {
		case err != nil:
			result = "unreachable"
		case !env.ok():
			result = "rejected"
		}
		metrics.ProviderLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, unreachable(op, err)
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("provider call failed", "operation", op, "error", err)
		return nil, unreachable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.log.Warn("provider returned server error", "operation", op, "status", resp.StatusCode)
		return nil, unreachable(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, unreachable(op, err)
	}
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == "" {
		c.log.Warn("provider returned undecodable body", "operation", op, "status", resp.StatusCode)
		return nil, unreachable(op, fmt.Errorf("status %d: undecodable body", resp.StatusCode))
	}
	if resp.StatusCode >= 400 && e.ok() {
		e.Status = "error"
	}
	return &e, nil
}
