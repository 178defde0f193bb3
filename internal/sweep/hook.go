package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

// maxResponseBody caps how much of a webhook error response is read.
const maxResponseBody = 4096

// WebhookHook posts each request as JSON to a URL. When Secret is set the
// request carries an HS256 bearer token bound to the run id.
type WebhookHook struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewWebhookHook returns a hook posting to url with the given timeout.
func NewWebhookHook(url, secret string, timeout time.Duration) *WebhookHook {
	return &WebhookHook{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: timeout},
	}
}

// Submit implements Hook. Any non-2xx response is an error.
func (h *WebhookHook) Submit(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode sweep request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.RunID)

	if h.Secret != "" {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"run_id": req.RunID,
			"iat":    time.Now().Unix(),
		})
		signed, err := token.SignedString([]byte(h.Secret))
		if err != nil {
			return fmt.Errorf("sign webhook request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+signed)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// LogHook only logs requests. It is the audit-only mode.
type LogHook struct {
	Logger Logger
}

// Submit implements Hook.
func (h LogHook) Submit(_ context.Context, req Request) error {
	if h.Logger != nil {
		h.Logger.Info("sweep request %s: %d sat in %d outputs to %s (log only)",
			req.RunID, req.TotalBalance, len(req.UTXOs), req.Destination)
	}
	return nil
}
