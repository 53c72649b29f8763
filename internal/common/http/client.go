// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"activity-export/internal/common/logger"
)

// Client is the shared outbound HTTP client. Each request gets a span and a debug log line.
type Client struct {
	httpClient *http.Client
	tracer     trace.Tracer
	logger     logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the logger used for request debug output.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer: noop.NewTracerProvider().Tracer("http"),
		logger: logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the underlying client, e.g. for oauth2 context injection.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "marketo.request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.URL.Path),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("HTTP request failed", map[string]interface{}{
			"method": req.Method,
			"path":   req.URL.Path,
			"error":  err.Error(),
		})
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}
	c.logger.Debug("HTTP request completed", map[string]interface{}{
		"method":     req.Method,
		"path":       req.URL.Path,
		"status":     resp.StatusCode,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return resp, nil
}
