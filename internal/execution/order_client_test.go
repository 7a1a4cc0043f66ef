package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/mselser95/fill-reconciler/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	testAddress = "0x1234567890123456789012345678901234567890"
	testProxy   = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	testKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var testSecret = base64.URLEncoding.EncodeToString([]byte("test-secret"))

type fakePositions struct {
	pos   *wallet.Position
	err   error
	owner common.Address
}

func (f *fakePositions) GetPosition(_ context.Context, owner common.Address, _ string) (*wallet.Position, error) {
	f.owner = owner
	return f.pos, f.err
}

func newTestOrderClient(t *testing.T, handler http.HandlerFunc, positions PositionSource) *OrderClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if positions == nil {
		positions = &fakePositions{}
	}

	client, err := NewOrderClient(&OrderClientConfig{
		BaseURL:    server.URL,
		APIKey:     "key",
		Secret:     testSecret,
		Passphrase: "pass",
		Address:    testAddress,
		Positions:  positions,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return client
}

func TestNewOrderClient(t *testing.T) {
	base := func() *OrderClientConfig {
		return &OrderClientConfig{
			APIKey:     "key",
			Secret:     testSecret,
			Passphrase: "pass",
			Address:    testAddress,
			Positions:  &fakePositions{},
			Logger:     zap.NewNop(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*OrderClientConfig)
		wantErr bool
	}{
		{name: "valid_config", mutate: func(*OrderClientConfig) {}},
		{name: "derive_from_private_key", mutate: func(c *OrderClientConfig) {
			c.Address = ""
			c.PrivateKey = "0x" + testKey
		}},
		{name: "missing_address_and_key", mutate: func(c *OrderClientConfig) { c.Address = "" }, wantErr: true},
		{name: "invalid_address", mutate: func(c *OrderClientConfig) { c.Address = "nope" }, wantErr: true},
		{name: "invalid_proxy", mutate: func(c *OrderClientConfig) { c.ProxyAddress = "nope" }, wantErr: true},
		{name: "bad_secret", mutate: func(c *OrderClientConfig) { c.Secret = "!!!" }, wantErr: true},
		{name: "missing_credentials", mutate: func(c *OrderClientConfig) { c.APIKey = "" }, wantErr: true},
		{name: "nil_positions", mutate: func(c *OrderClientConfig) { c.Positions = nil }, wantErr: true},
		{name: "nil_logger", mutate: func(c *OrderClientConfig) { c.Logger = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			client, err := NewOrderClient(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, common.IsHexAddress(client.address))
			assert.Equal(t, defaultCLOBBaseURL, client.baseURL)
		})
	}

	_, err := NewOrderClient(nil)
	assert.Error(t, err)
}

func TestOrderClient_ProxyOwnsPositions(t *testing.T) {
	positions := &fakePositions{pos: &wallet.Position{Asset: "tok", Size: 3}}
	client, err := NewOrderClient(&OrderClientConfig{
		APIKey:       "key",
		Secret:       testSecret,
		Passphrase:   "pass",
		Address:      testAddress,
		ProxyAddress: testProxy,
		Positions:    positions,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	_, err = client.GetPosition(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testProxy), positions.owner)
	assert.Equal(t, common.HexToAddress(testAddress).Hex(), client.address)
}

func TestOrderClient_GetOrderStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		wantStatus types.OrderStatus
		wantFilled float64
		wantPrice  float64
		wantErr    error
	}{
		{
			name:       "live_unfilled",
			body:       `{"id":"o-1","status":"LIVE","price":"0.55","original_size":"100","size_matched":"0"}`,
			statusCode: http.StatusOK,
			wantStatus: types.StatusPending,
		},
		{
			name:       "live_partially_matched",
			body:       `{"id":"o-1","status":"LIVE","price":"0.55","original_size":"100","size_matched":"40"}`,
			statusCode: http.StatusOK,
			wantStatus: types.StatusPartiallyFilled,
			wantFilled: 40,
			wantPrice:  0.55,
		},
		{
			name:       "matched",
			body:       `{"id":"o-1","status":"MATCHED","price":"0.55","original_size":"100","size_matched":"100"}`,
			statusCode: http.StatusOK,
			wantStatus: types.StatusFilled,
			wantFilled: 100,
			wantPrice:  0.55,
		},
		{
			name:       "canceled",
			body:       `{"id":"o-1","status":"CANCELED","price":"0.55","original_size":"100","size_matched":"0"}`,
			statusCode: http.StatusOK,
			wantStatus: types.StatusCanceled,
		},
		{
			name:       "null_body",
			body:       `null`,
			statusCode: http.StatusOK,
			wantErr:    broker.ErrOrderNotFound,
		},
		{
			name:       "garbage_body",
			body:       `{"status":`,
			statusCode: http.StatusOK,
			wantErr:    broker.ErrUnexpectedResponse,
		},
		{
			name:       "not_found",
			body:       `{"error":"order not found"}`,
			statusCode: http.StatusNotFound,
			wantErr:    broker.ErrOrderNotFound,
		},
		{
			name:       "unauthorized",
			body:       `{"error":"Unauthorized/Invalid api key"}`,
			statusCode: http.StatusUnauthorized,
			wantErr:    broker.ErrUnauthorized,
		},
		{
			name:       "rate_limited",
			body:       `{"error":"too many requests"}`,
			statusCode: http.StatusTooManyRequests,
			wantErr:    broker.ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOrderClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/data/order/o-1", r.URL.Path)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			snap, err := client.GetOrderStatus(context.Background(), "o-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o-1", snap.OrderID)
			assert.Equal(t, tt.wantStatus, snap.Status)
			assert.Equal(t, tt.wantFilled, snap.FilledQuantity)
			assert.Equal(t, tt.wantPrice, snap.AvgFillPrice)
			assert.False(t, snap.FetchedAt.IsZero())
		})
	}
}

func TestOrderClient_ServerErrorIsTransient(t *testing.T) {
	client := newTestOrderClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := client.GetOrderStatus(context.Background(), "o-1")
	require.Error(t, err)

	var apiErr *broker.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, broker.ClassTransient, broker.Classify(err))
}

func TestOrderClient_SignsRequests(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	client := newTestOrderClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"canceled":["o-1"],"not_canceled":{}}`))
	}, nil)

	require.NoError(t, client.CancelOrder(context.Background(), "o-1"))
	require.NotNil(t, captured)

	assert.Equal(t, http.MethodDelete, captured.Method)
	assert.Equal(t, "key", captured.Header.Get("POLY_API_KEY"))
	assert.Equal(t, "pass", captured.Header.Get("POLY_PASSPHRASE"))
	assert.Equal(t, common.HexToAddress(testAddress).Hex(), captured.Header.Get("POLY_ADDRESS"))

	timestamp := captured.Header.Get("POLY_TIMESTAMP")
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(timestamp + http.MethodDelete + "/order" + string(capturedBody)))
	assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), captured.Header.Get("POLY_SIGNATURE"))

	var req types.CancelOrderRequest
	require.NoError(t, json.Unmarshal(capturedBody, &req))
	assert.Equal(t, "o-1", req.OrderID)
}

func TestOrderClient_CancelOrder(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		class   broker.ErrorClass
	}{
		{
			name: "canceled",
			body: `{"canceled":["o-1"],"not_canceled":{}}`,
		},
		{
			name:    "already_matched",
			body:    `{"canceled":[],"not_canceled":{"o-1":"order already matched"}}`,
			wantErr: broker.ErrAlreadyFilled,
			class:   broker.ClassRace,
		},
		{
			name:    "already_canceled",
			body:    `{"canceled":[],"not_canceled":{"o-1":"order can't be canceled, already canceled"}}`,
			wantErr: broker.ErrNotCancelable,
			class:   broker.ClassRace,
		},
		{
			name:    "unknown_order",
			body:    `{"canceled":[],"not_canceled":{"o-1":"order not found"}}`,
			wantErr: broker.ErrOrderNotFound,
			class:   broker.ClassPermanent,
		},
		{
			name:    "missing_from_response",
			body:    `{"canceled":["o-2"],"not_canceled":{}}`,
			wantErr: broker.ErrUnexpectedResponse,
			class:   broker.ClassAmbiguous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOrderClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			err := client.CancelOrder(context.Background(), "o-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.class, broker.Classify(err))
		})
	}
}

func TestOrderClient_GetPosition(t *testing.T) {
	tests := []struct {
		name     string
		source   *fakePositions
		wantQty  float64
		wantErr  error
		wantCode int
	}{
		{
			name:    "held",
			source:  &fakePositions{pos: &wallet.Position{Asset: "tok", Size: 12.5}},
			wantQty: 12.5,
		},
		{
			name:    "none",
			source:  &fakePositions{err: wallet.ErrNoPosition},
			wantErr: broker.ErrPositionNotFound,
		},
		{
			name:     "data_api_error",
			source:   &fakePositions{err: &wallet.StatusError{StatusCode: 503, Body: "down"}},
			wantCode: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOrderClient(t, func(http.ResponseWriter, *http.Request) {}, tt.source)

			pos, err := client.GetPosition(context.Background(), "tok")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != 0:
				var apiErr *broker.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.wantCode, apiErr.StatusCode)
				assert.Equal(t, broker.ClassTransient, broker.Classify(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantQty, pos.Quantity)
				assert.Equal(t, types.SideBuy, pos.Side)
				assert.Equal(t, "tok", pos.Symbol)
			}
		})
	}
}

func TestOrderClient_RateLimitDeadline(t *testing.T) {
	client := newTestOrderClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"o-1","status":"LIVE"}`))
	}, nil)
	client.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := client.GetOrderStatus(context.Background(), "o-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.GetOrderStatus(ctx, "o-1")
	assert.ErrorIs(t, err, broker.ErrRateLimited)
	assert.Equal(t, broker.ClassTransient, broker.Classify(err))
}
