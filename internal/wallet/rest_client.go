package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"commodity-market-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RestClient talks to the host wallet service over its REST API.
// It implements the Wallet interface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ Wallet = (*RestClient)(nil)

// NewRestClient creates a new wallet service client.
func NewRestClient(cfg *config.Wallet, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// BalanceResponse represents the response for a balance query.
type BalanceResponse struct {
	User    string  `json:"user"`
	Balance float64 `json:"balance"`
}

// Balance fetches a user's currency balance.
func (c *RestClient) Balance(ctx context.Context, user uuid.UUID) (float64, error) {
	req := c.client.R().
		SetHeader("X-API-KEY", c.apiKey).
		SetQueryParam("user", user.String()).
		SetResult(&BalanceResponse{})

	resp, err := c.doRequest(ctx, "GET", "/balance", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", user, err)
	}

	result := resp.Result().(*BalanceResponse)
	return result.Balance, nil
}

// transfer posts a signed withdraw or deposit request.
func (c *RestClient) transfer(ctx context.Context, endpoint string, user uuid.UUID, amount float64) error {
	params := url.Values{}
	params.Set("user", user.String())
	params.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))

	queryString := params.Encode()
	params.Set("signature", c.sign(queryString))

	req := c.client.R().
		SetHeader("X-API-KEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode())

	resp, err := c.doRequest(ctx, "POST", endpoint, req)
	if err != nil {
		return fmt.Errorf("failed to %s %f for %s: %w", endpoint, amount, user, err)
	}

	c.logger.Debug("Wallet transfer completed",
		zap.String("endpoint", endpoint),
		zap.String("user", user.String()),
		zap.Float64("amount", amount),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}

// Withdraw takes currency from a user's balance. The wallet service rejects
// overdrafts with a 4xx status, which surfaces here as an error.
func (c *RestClient) Withdraw(ctx context.Context, user uuid.UUID, amount float64) error {
	return c.transfer(ctx, "/withdraw", user, amount)
}

// Deposit credits currency to a user's balance.
func (c *RestClient) Deposit(ctx context.Context, user uuid.UUID, amount float64) error {
	return c.transfer(ctx, "/deposit", user, amount)
}
