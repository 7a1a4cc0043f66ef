package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultDataAPIBaseURL = "https://data-api.polymarket.com"

// ErrNoPosition means the owner holds nothing for the requested asset.
var ErrNoPosition = errors.New("no position for asset")

// StatusError is a non-200 Data API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("data API error (status %d): %s", e.StatusCode, e.Body)
}

// Client queries holdings from the Polymarket Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientConfig holds configuration for the wallet client.
type ClientConfig struct {
	BaseURL    string        // Defaults to the public Data API
	Limiter    *rate.Limiter // Optional; shared with the order client when set
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Position is a holding of one outcome token.
type Position struct {
	Asset        string
	ConditionID  string
	MarketSlug   string
	Outcome      string
	Size         float64
	AvgPrice     float64
	Value        float64 // Current USD value
	InitialValue float64 // Cost basis USD
	CashPnL      float64
	PercentPnL   float64
}

// dataAPIPosition represents the response from Polymarket Data API.
type dataAPIPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	PercentPnL   float64 `json:"percentPnl"`
	CurPrice     float64 `json:"curPrice"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
}

// NewClient creates a new wallet client.
func NewClient(cfg *ClientConfig) (c *Client, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDataAPIBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	c = &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
	}

	return c, nil
}

// GetPositions fetches all non-dust positions held by owner.
func (c *Client) GetPositions(ctx context.Context, owner common.Address) (positions []Position, err error) {
	query := url.Values{}
	query.Set("user", owner.Hex())
	query.Set("sizeThreshold", "0.01")

	all, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	positions = make([]Position, 0, len(all))
	for _, pos := range all {
		if pos.Size > 0 {
			positions = append(positions, pos)
		}
	}

	return positions, nil
}

// GetPosition fetches the holding of one asset. It returns ErrNoPosition when
// the owner holds none.
func (c *Client) GetPosition(ctx context.Context, owner common.Address, asset string) (position *Position, err error) {
	query := url.Values{}
	query.Set("user", owner.Hex())
	query.Set("asset", asset)
	query.Set("sizeThreshold", "0")

	positions, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	for i := range positions {
		if positions[i].Asset == asset {
			return &positions[i], nil
		}
	}

	return nil, fmt.Errorf("%s: %w", asset, ErrNoPosition)
}

func (c *Client) fetch(ctx context.Context, query url.Values) (positions []Position, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		PositionQueriesTotal.WithLabelValues(outcome).Inc()
		PositionQueryDuration.Observe(time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		err = c.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqURL := c.baseURL + "/positions?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiPositions []dataAPIPosition
	err = json.Unmarshal(body, &apiPositions)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	positions = make([]Position, 0, len(apiPositions))
	for _, pos := range apiPositions {
		positions = append(positions, Position{
			Asset:        pos.Asset,
			ConditionID:  pos.ConditionID,
			MarketSlug:   pos.Slug,
			Outcome:      pos.Outcome,
			Size:         pos.Size,
			AvgPrice:     pos.AvgPrice,
			Value:        pos.CurrentValue,
			InitialValue: pos.InitialValue,
			CashPnL:      pos.CashPnL,
			PercentPnL:   pos.PercentPnL,
		})
	}

	c.logger.Debug("positions-fetched",
		zap.String("user", query.Get("user")),
		zap.Int("count", len(positions)))

	return positions, nil
}
