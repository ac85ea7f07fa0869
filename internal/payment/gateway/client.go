package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atolpos/atolpos/internal/config"
	"go.uber.org/zap"
)

const localIDMaxLen = 50

// GatewayError is any non-2xx answer from the bank gateway. Status and
// body are kept verbatim for diagnostics.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

type CreateSessionRequest struct {
	LocalID     string `json:"localId"`
	AmountLaari int64  `json:"amount"`
	Currency    string `json:"currency"`
	RedirectURL string `json:"redirectUrl"`
}

type Session struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"url"`
	State         string `json:"state"`
}

type TransactionStatus struct {
	TransactionID string `json:"transactionId"`
	LocalID       string `json:"localId"`
	State         string `json:"state"`
	AmountLaari   int64  `json:"amount"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     []byte
	currency   string
	log        *zap.Logger
}

func NewClient(cfg config.GatewayConfig, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.WebhookSecret),
		currency:   cfg.Currency,
		log:        log.Named("payment.gateway"),
	}
}

func (c *Client) Currency() string { return c.currency }

// NormalizeLocalID maps a merchant reference onto the gateway's id
// alphabet: uppercase alphanumerics and hyphens, at most 50 chars. The
// mapping is deterministic so retries produce the same id.
func NormalizeLocalID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= localIDMaxLen {
			break
		}
	}
	return b.String()
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.Currency == "" {
		req.Currency = c.currency
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/payments", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	var status TransactionStatus
	path := fmt.Sprintf("/payments/%s", transactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the exact raw request
// bytes in constant time. An empty configured secret verifies nothing.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if len(c.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// Sign computes the signature VerifySignature expects. Exported for tests
// and for the local gateway simulator.
func (c *Client) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("gateway call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &GatewayError{Status: resp.StatusCode, Body: string(payload)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}
