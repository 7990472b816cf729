// Package toss is a client for the Toss Payments confirm and cancel APIs.
package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/oralcare-shop/internal/domain/payment"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.tosspayments.com"

// Config holds client settings.
type Config struct {
	BaseURL   string        `yaml:"base_url" default:"https://api.tosspayments.com"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
}

// Client implements payment.Gateway.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// New creates a Client. Requests are traced and measured through the given
// providers.
func New(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	if mp != nil {
		opts = append(opts, otelhttp.WithMeterProvider(mp))
	}

	return &Client{
		baseURL: base,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// Confirm approves a payment the buyer authorised in the payment widget.
func (c *Client) Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.Confirmation, error) {
	return c.do(ctx, "/v1/payments/confirm", encodeConfirm(req))
}

// Cancel cancels a confirmed payment, in full when req.Amount is nil.
func (c *Client) Cancel(ctx context.Context, req payment.CancelRequest) (*payment.Confirmation, error) {
	path := "/v1/payments/" + url.PathEscape(req.PaymentKey) + "/cancel"
	return c.do(ctx, path, encodeCancel(req))
}

func (c *Client) do(ctx context.Context, path string, body []byte) (*payment.Confirmation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, data)
	}
	return decodePayment(data)
}
