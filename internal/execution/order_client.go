// Package execution talks to the Polymarket CLOB on behalf of the reconciler.
package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/mselser95/fill-reconciler/pkg/wallet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultCLOBBaseURL = "https://clob.polymarket.com"

// PositionSource returns the holding of one asset for an owner.
type PositionSource interface {
	GetPosition(ctx context.Context, owner common.Address, asset string) (*wallet.Position, error)
}

// OrderClient implements broker.Broker against the Polymarket CLOB.
type OrderClient struct {
	baseURL    string
	apiKey     string
	secret     []byte
	passphrase string
	address    string         // EOA address (signer), sent as POLY_ADDRESS
	owner      common.Address // Proxy address if set, otherwise EOA; holds positions
	positions  PositionSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// OrderClientConfig holds configuration for the order client
type OrderClientConfig struct {
	BaseURL      string
	APIKey       string
	Secret       string
	Passphrase   string
	PrivateKey   string // Used only to derive Address when it is empty
	Address      string
	ProxyAddress string
	Positions    PositionSource
	Limiter      *rate.Limiter // Shared request budget; nil disables limiting
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// NewOrderClient creates a new order client
func NewOrderClient(cfg *OrderClientConfig) (*OrderClient, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Positions == nil {
		return nil, errors.New("position source cannot be nil")
	}

	if cfg.APIKey == "" || cfg.Secret == "" || cfg.Passphrase == "" {
		return nil, errors.New("API key, secret and passphrase are required")
	}

	// Decode secret using URL-safe base64, matching the CLOB's key derivation
	secret, err := base64.URLEncoding.DecodeString(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	address, err := resolveAddress(cfg.Address, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	owner := common.HexToAddress(address)
	if cfg.ProxyAddress != "" {
		if !common.IsHexAddress(cfg.ProxyAddress) {
			return nil, fmt.Errorf("invalid proxy address %q", cfg.ProxyAddress)
		}
		owner = common.HexToAddress(cfg.ProxyAddress)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCLOBBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &OrderClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		secret:     secret,
		passphrase: cfg.Passphrase,
		address:    address,
		owner:      owner,
		positions:  cfg.Positions,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
	}, nil
}

// resolveAddress returns the checksummed EOA address, deriving it from the
// private key when no address is configured.
func resolveAddress(address, privateKey string) (string, error) {
	if address != "" {
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("invalid address %q", address)
		}
		return common.HexToAddress(address).Hex(), nil
	}

	if privateKey == "" {
		return "", errors.New("address or private key is required")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", errors.New("unexpected public key type")
	}

	return crypto.PubkeyToAddress(*publicKey).Hex(), nil
}

// Owner returns the address whose positions are reported.
func (c *OrderClient) Owner() common.Address {
	return c.owner
}

// GetOrderStatus implements broker.Broker.
func (c *OrderClient) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderSnapshot, error) {
	body, err := c.do(ctx, "get-order", http.MethodGet, "/data/order/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("get order %s: %w", orderID, broker.ErrOrderNotFound)
	}

	var resp types.OrderQueryResponse
	err = json.Unmarshal(trimmed, &resp)
	if err != nil {
		return nil, fmt.Errorf("get order %s: parse response: %w: %w", orderID, broker.ErrUnexpectedResponse, err)
	}

	return toSnapshot(orderID, &resp), nil
}

// toSnapshot normalizes a CLOB order into the venue-neutral snapshot.
func toSnapshot(orderID string, resp *types.OrderQueryResponse) *types.OrderSnapshot {
	status := types.ParseOrderStatus(resp.Status)

	// LIVE orders with some size matched are partial fills
	if status == types.StatusPending && resp.SizeMatched > 0 && resp.SizeMatched < resp.OriginalSize {
		status = types.StatusPartiallyFilled
	}

	snapshot := &types.OrderSnapshot{
		OrderID:        orderID,
		Status:         status,
		RawStatus:      resp.Status,
		FilledQuantity: resp.SizeMatched,
		FetchedAt:      time.Now(),
	}

	if resp.SizeMatched > 0 {
		// The CLOB reports the limit price; fills never trade through it
		snapshot.AvgFillPrice = resp.Price
	}

	return snapshot
}

// CancelOrder implements broker.Broker.
func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	reqBody, err := json.Marshal(types.CancelOrderRequest{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.do(ctx, "cancel-order", http.MethodDelete, "/order", reqBody)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	var resp types.CancelOrderResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return fmt.Errorf("cancel order %s: parse response: %w: %w", orderID, broker.ErrUnexpectedResponse, err)
	}

	for _, id := range resp.Canceled {
		if id == orderID {
			c.logger.Info("order-canceled", zap.String("order-id", orderID))
			return nil
		}
	}

	if reason, ok := resp.NotCanceled[orderID]; ok {
		return fmt.Errorf("cancel order %s: %s: %w", orderID, reason, cancelRefusal(reason))
	}

	return fmt.Errorf("cancel order %s: order missing from response: %w", orderID, broker.ErrUnexpectedResponse)
}

// cancelRefusal maps the venue's not_canceled reason to a sentinel.
func cancelRefusal(reason string) error {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "matched"), strings.Contains(lower, "filled"):
		return broker.ErrAlreadyFilled
	case strings.Contains(lower, "not found"), strings.Contains(lower, "doesn't exist"):
		return broker.ErrOrderNotFound
	default:
		return broker.ErrNotCancelable
	}
}

// GetPosition implements broker.Broker. Outcome tokens cannot be shorted, so
// positions are always long.
func (c *OrderClient) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	pos, err := c.positions.GetPosition(ctx, c.owner, symbol)
	if err != nil {
		var statusErr *wallet.StatusError
		switch {
		case errors.Is(err, wallet.ErrNoPosition):
			return nil, fmt.Errorf("position %s: %w", symbol, broker.ErrPositionNotFound)
		case errors.As(err, &statusErr):
			return nil, fmt.Errorf("position %s: %w", symbol, broker.NewAPIError(statusErr.StatusCode, statusErr.Body))
		default:
			return nil, fmt.Errorf("position %s: %w", symbol, err)
		}
	}

	return &types.Position{
		Symbol:   symbol,
		Quantity: pos.Size,
		Side:     types.SideBuy,
	}, nil
}

// do sends an L2-authenticated request and returns the body of a 2xx response.
func (c *OrderClient) do(ctx context.Context, operation, method, requestPath string, reqBody []byte) (body []byte, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = broker.Classify(err).String()
		}
		RequestsTotal.WithLabelValues(operation, outcome).Inc()
		RequestDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	err = c.wait(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := c.sign(timestamp, method, requestPath, reqBody)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, broker.NewAPIError(resp.StatusCode, errorMessage(body))
	}

	return body, nil
}

// wait takes a token from the shared request budget.
func (c *OrderClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	start := time.Now()
	err := c.limiter.Wait(ctx)
	RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// Waiting would overrun the context deadline
	return fmt.Errorf("%w: %w", broker.ErrRateLimited, err)
}

// sign builds the POLY_SIGNATURE header: HMAC-SHA256 over
// timestamp+method+path+body, URL-safe base64 encoded.
func (c *OrderClient) sign(timestamp, method, requestPath string, body []byte) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(timestamp + method + requestPath))
	h.Write(body)
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func errorMessage(body []byte) string {
	var apiErr types.APIErrorResponse
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return strings.TrimSpace(string(body))
}
