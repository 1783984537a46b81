// Package egress is the Brain's outbound command surface to the execution
// engine (§6.2): submit, flatten, query_positions, query_balances, plus the
// wallet transfer surface (§6.3). Grounded on the ExchangeAdapter interface
// and context-bound HTTP calls in internal/execution/executor.go,
// generalised from a multi-exchange adapter set to a single
// HMAC-authenticated execution-engine endpoint.
package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client issues signed commands to the execution engine over HTTP.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	secret     []byte
	timeout    time.Duration
}

// NewClient constructs a Client bound to baseURL, signing every request
// with secret and bounding every call to timeout (the §5 500ms egress RPC
// budget).
func NewClient(logger *zap.Logger, baseURL string, secret []byte, timeout time.Duration) *Client {
	return &Client{
		logger:     logger.Named("egress"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secret:     secret,
		timeout:    timeout,
	}
}

type submitRequest struct {
	SignalID           string `json:"signal_id"`
	PhaseID            string `json:"phase_id"`
	Symbol             string `json:"symbol"`
	Side               string `json:"side"`
	AuthorisedNotional string `json:"authorised_notional"`
}

// SubmitOrder forwards an approved decision to the execution engine.
func (c *Client) SubmitOrder(ctx context.Context, signal types.IntentSignal, authorisedNotional decimal.Decimal) error {
	body := submitRequest{
		SignalID:           signal.SignalID,
		PhaseID:            string(signal.PhaseID),
		Symbol:             signal.Symbol,
		Side:               string(signal.Side),
		AuthorisedNotional: authorisedNotional.String(),
	}
	return c.post(ctx, "/v1/submit", body, nil)
}

// Flatten closes every open position, implementing the breaker's
// Flattener interface for a Hard-trip directive.
func (c *Client) Flatten(ctx context.Context) error {
	return c.post(ctx, "/v1/flatten", struct{}{}, nil)
}

type positionsResponse struct {
	Positions []types.Position `json:"positions"`
}

// QueryPositions fetches the execution engine's current open positions,
// used for startup recovery and periodic resync.
func (c *Client) QueryPositions(ctx context.Context) ([]types.Position, error) {
	var resp positionsResponse
	if err := c.post(ctx, "/v1/query_positions", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

type balancesResponse struct {
	Risky string `json:"risky_balance"`
	Safe  string `json:"safe_balance"`
}

// QueryBalances fetches the current risky/safe balances.
func (c *Client) QueryBalances(ctx context.Context) (risky, safe decimal.Decimal, err error) {
	var resp balancesResponse
	if err := c.post(ctx, "/v1/query_balances", struct{}{}, &resp); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	risky, err = decimal.NewFromString(resp.Risky)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse risky balance: %w", err)
	}
	safe, err = decimal.NewFromString(resp.Safe)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse safe balance: %w", err)
	}
	return risky, safe, nil
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer implements the treasury.Wallet surface (§6.3): an idempotent
// transfer between the risky and safe balances.
func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	body := transferRequest{From: from, To: to, Amount: amount.String()}
	return c.post(ctx, "/v1/wallet/transfer", body, nil)
}

// post signs and sends a JSON POST request, decoding the response into out
// if non-nil. The request is authenticated per §6.1/§6.2's HMAC scheme.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	timestampMs := time.Now().UnixMilli()
	nonce := uuid.NewString()
	sig := utils.SignHMAC(c.secret, timestampMs, nonce, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp-Ms", fmt.Sprintf("%d", timestampMs))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("egress request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("egress request %s: status %d: %s", path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
