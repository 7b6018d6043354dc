// Package httpapi implements basket.API over the platform's JSON endpoints.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront-cart/internal/domain"
	apperrors "github.com/utafrali/storefront-cart/pkg/errors"
	"github.com/utafrali/storefront-cart/pkg/httpclient"
)

const serviceName = "basket-api"

// Endpoint paths relative to the base URL.
const (
	pathInit        = "/init"
	pathProducts    = "/basket/products"
	pathAsyncData   = "/basket/products/async"
	pathDelete      = "/basket/products/delete"
	pathRestore     = "/basket/cache/restore"
	pathProductData = "/basket/products/data"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "basket_api_requests_total",
		Help: "Total number of calls to the platform basket API",
	},
	[]string{"operation", "outcome"},
)

type envelope[T any] struct {
	Data *T `json:"data"`
}

type deleteRequest struct {
	Mode     string                `json:"mode"`
	Products []domain.DeleteTarget `json:"products"`
}

// Client talks to the platform basket API.
type Client struct {
	baseURL string
	doer    httpclient.Doer
	logger  *slog.Logger
	tracer  trace.Tracer

	mu          sync.Mutex
	initialized bool
}

// NewClient creates a basket API client rooted at baseURL.
func NewClient(baseURL string, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  logger,
		tracer:  otel.Tracer("github.com/utafrali/storefront-cart/internal/basket/httpapi"),
	}
}

// Init registers the storefront with the platform once. Concurrent and
// repeated calls after a success are no-ops; a failed attempt may be retried
// by calling Init again.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.call(ctx, "init", http.MethodPost, pathInit, nil, nil); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// GetData returns the basket line items. A response without a data member is
// treated as an error, an empty list is not.
func (c *Client) GetData(ctx context.Context) ([]domain.LineItem, error) {
	var out envelope[[]domain.LineItem]
	if err := c.call(ctx, "get_data", http.MethodGet, pathProducts, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, apperrors.Unavailable(serviceName, errors.New("basket data is missing"))
	}
	return *out.Data, nil
}

// SetAsyncData sends a quantity update.
func (c *Client) SetAsyncData(ctx context.Context, req domain.UpdateRequest) error {
	return c.call(ctx, "set_async_data", http.MethodPost, pathAsyncData, req, nil)
}

// DeleteCartItems bulk-deletes basket rows.
func (c *Client) DeleteCartItems(ctx context.Context, mode string, targets []domain.DeleteTarget) error {
	return c.call(ctx, "delete_cart_items", http.MethodPost, pathDelete, deleteRequest{Mode: mode, Products: targets}, nil)
}

// RestoreCache rebuilds the platform's basket cache.
func (c *Client) RestoreCache(ctx context.Context) error {
	if err := c.call(ctx, "restore_cache", http.MethodPost, pathRestore, nil, nil); err != nil {
		return fmt.Errorf("restore basket cache: %w", err)
	}
	return nil
}

// ProductData fetches display metadata for the basket's products.
func (c *Client) ProductData(ctx context.Context) ([]domain.ProductData, error) {
	var out envelope[[]domain.ProductData]
	if err := c.call(ctx, "product_data", http.MethodGet, pathProductData, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []domain.ProductData{}, nil
	}
	return *out.Data, nil
}

// call performs one request and decodes the response into dst.
func (c *Client) call(ctx context.Context, op, method, path string, body, dst any) (err error) {
	ctx, span := c.tracer.Start(ctx, "basket."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("basket.operation", op),
		),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		requestsTotal.WithLabelValues(op, outcome).Inc()
		span.End()
	}()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		c.logger.DebugContext(ctx, "basket api call failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return toNetworkError(err)
	}

	return httpclient.DecodeJSON(resp, dst, serviceName)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// toNetworkError keeps already classified errors and marks transport
// failures as the upstream being unavailable.
func toNetworkError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Unavailable(serviceName, err)
}

// TokenHeader carries the visitor's basket token on every platform request.
const TokenHeader = "X-Basket-Token"

type tokenDoer struct {
	next  httpclient.Doer
	token string
}

// WithToken returns a Doer that stamps token on each request before passing
// it to next.
func WithToken(next httpclient.Doer, token string) httpclient.Doer {
	return &tokenDoer{next: next, token: token}
}

func (d *tokenDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Header.Set(TokenHeader, d.token)
	return d.next.Do(ctx, req)
}
