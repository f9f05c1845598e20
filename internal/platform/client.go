package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseSize = 10 << 20

// apiClient is the JSON-over-HTTP plumbing shared by the remote adapters
type apiClient struct {
	baseURL   string
	platform  models.Channel
	client    *http.Client
	limiter   *rate.Limiter
	authorize func(req *http.Request)
	logger    *zap.Logger
}

func newAPIClient(platform models.Channel, baseURL string, opts Options, authorize func(req *http.Request)) *apiClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &apiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		platform:  platform,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		authorize: authorize,
		logger:    util.GetLogger().With(zap.String("platform", string(platform))),
	}
}

// normalizeStoreURL adds https:// to bare host names
func normalizeStoreURL(storeURL string) string {
	storeURL = strings.TrimSpace(storeURL)
	if strings.HasPrefix(storeURL, "http://") || strings.HasPrefix(storeURL, "https://") {
		return strings.TrimRight(storeURL, "/")
	}
	return "https://" + strings.TrimRight(storeURL, "/")
}

// call performs one request and records metrics and a span for it
func (c *apiClient) call(ctx context.Context, operation, method, endpoint string, query url.Values, requestBody, response interface{}) error {
	ctx, span := util.StartSpan(ctx, "platform."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(c.platform)),
		attribute.String("http.method", method),
	)

	start := time.Now()
	err := c.doRequest(ctx, method, endpoint, query, requestBody, response)
	util.RemoteCallLatency.WithLabelValues(string(c.platform), operation).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Platform call failed",
			zap.String("operation", operation),
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
	util.RemoteCallsTotal.WithLabelValues(string(c.platform), operation, result).Inc()

	return err
}

func (c *apiClient) doRequest(ctx context.Context, method, endpoint string, query url.Values, requestBody, response interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request was cancelled: %w", ctx.Err())
		default:
			return fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	if response == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
