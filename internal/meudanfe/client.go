// Package meudanfe talks to the MeuDanfe invoice lookup service.
//
// A lookup is two sequential calls: the key is registered with
// PUT {base}/fd/add/{key}, then the XML is fetched with GET {base}/fd/get/xml/{key}.
// Only the registration decides success. XML retrieval is best effort.
package meudanfe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/format"
	"github.com/rezonia/nfe-conferencia/internal/model"
	xmlparser "github.com/rezonia/nfe-conferencia/internal/parser/xml"
)

const (
	DefaultBaseURL   = "https://api.meudanfe.com.br/v2"
	DefaultUserAgent = "nfe-conferencia/1.0"

	RegisterTimeout = 15 * time.Second
	FetchTimeout    = 15 * time.Second
	PingTimeout     = 10 * time.Second

	maxBodySize = 10 << 20
)

// Config carries the caller-resolved provider settings
type Config struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"-"`
}

// ParseFunc turns fetched XML text into an invoice
type ParseFunc func(xmlText string) (*model.ParsedInvoice, error)

// Client performs provider lookups. It holds no per-query state.
type Client struct {
	httpClient      *http.Client
	userAgent       string
	registerTimeout time.Duration
	fetchTimeout    time.Duration
	pingTimeout     time.Duration
	parse           ParseFunc
	logger          *zap.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeouts sets the register and fetch timeouts
func WithTimeouts(register, fetch time.Duration) ClientOption {
	return func(c *Client) {
		c.registerTimeout = register
		c.fetchTimeout = fetch
	}
}

// WithPingTimeout sets the connectivity test timeout
func WithPingTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pingTimeout = d
	}
}

// WithParser replaces the XML parser
func WithParser(fn ParseFunc) ClientOption {
	return func(c *Client) {
		c.parse = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new provider client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		userAgent:       DefaultUserAgent,
		registerTimeout: RegisterTimeout,
		fetchTimeout:    FetchTimeout,
		pingTimeout:     PingTimeout,
		parse:           xmlparser.Parse,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup registers the key and, when registration succeeds, fetches its XML.
// A failed registration ends the lookup without a fetch.
func (c *Client) Lookup(ctx context.Context, key string, cfg Config) *Result {
	res := &Result{}

	registerURL := endpoint(cfg.BaseURL, "fd/add", key)
	status, body, err := c.do(ctx, http.MethodPut, registerURL, cfg.Token, c.registerTimeout)
	if err != nil {
		kind, msg := classify(err)
		res.record(registerURL, msg, 0, nil)
		res.Err = model.NewLookupError(kind, 0, registerURL, msg, err)
		c.logger.Warn("register failed", zap.String("endpoint", registerURL), zap.Error(err))
		return res
	}
	res.record(registerURL, strconv.Itoa(status), status, body)

	if lerr := registerStatusError(status, registerURL); lerr != nil {
		res.Err = lerr
		c.logger.Warn("register rejected", zap.String("endpoint", registerURL), zap.Int("status", status))
		return res
	}

	res.Payload = model.NewProviderPayload(body)
	res.Endpoint = registerURL
	c.fetchXML(ctx, key, cfg, res)
	return res
}

func (c *Client) fetchXML(ctx context.Context, key string, cfg Config, res *Result) {
	fetchURL := endpoint(cfg.BaseURL, "fd/get/xml", key)
	status, body, err := c.do(ctx, http.MethodGet, fetchURL, cfg.Token, c.fetchTimeout)
	if err != nil {
		_, msg := classify(err)
		res.record(fetchURL, msg, 0, nil)
		c.logger.Info("xml fetch failed, continuing without XML", zap.String("endpoint", fetchURL), zap.Error(err))
		return
	}
	res.record(fetchURL, strconv.Itoa(status), status, body)
	if status != http.StatusOK {
		c.logger.Info("xml not available", zap.String("endpoint", fetchURL), zap.Int("status", status))
		return
	}

	doc := &XMLDocument{Raw: extractXML(body)}
	if strings.TrimSpace(doc.Raw) == "" {
		doc.ParseError = model.NewParseError("xml", "provider returned no XML", model.ErrEmptyXML)
	} else {
		doc.Invoice, doc.ParseError = c.parse(doc.Raw)
	}
	if doc.ParseError != nil {
		c.logger.Info("xml parse failed", zap.String("endpoint", fetchURL), zap.Error(doc.ParseError))
	}
	res.XML = doc
}

// Ping checks that the provider base URL answers. Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context, cfg Config) (TraceEntry, error) {
	url := strings.TrimRight(cfg.BaseURL, "/")
	status, body, err := c.do(ctx, http.MethodGet, url, cfg.Token, c.pingTimeout)
	if err != nil {
		kind, msg := classify(err)
		return TraceEntry{Endpoint: url, Status: msg}, model.NewLookupError(kind, 0, url, msg, err)
	}
	return TraceEntry{
		Endpoint:   url,
		Status:     strconv.Itoa(status),
		StatusCode: status,
		Body:       truncate(string(body), MaxTraceBody),
	}, nil
}

func (c *Client) do(ctx context.Context, method, url, token string, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Api-Key", token)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, err
	}

	c.logger.Debug("provider call",
		zap.String("method", method),
		zap.String("endpoint", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

func registerStatusError(status int, url string) *model.LookupError {
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized:
		return model.NewLookupError(model.LookupAuth, status, url, "invalid or expired token", nil)
	case http.StatusNotFound:
		return model.NewLookupError(model.LookupNotFound, status, url, "key/endpoint not found", nil)
	case http.StatusMethodNotAllowed:
		return model.NewLookupError(model.LookupMethodNotAllowed, status, url,
			"method not allowed - endpoint may require a different verb", nil)
	default:
		return model.NewLookupError(model.LookupUnexpectedStatus, status, url,
			fmt.Sprintf("unexpected response: %d", status), nil)
	}
}

// classify maps a transport failure to its kind and operator-facing message
func classify(err error) (model.LookupErrorKind, string) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return model.LookupTimeout, TagTimeout
	}
	if isConnectionError(err) {
		return model.LookupConnection, TagConnectionError
	}
	return model.LookupTransport, err.Error()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// extractXML reads the XML text from a JSON envelope's data field, or takes the body as is
func extractXML(body []byte) string {
	if format.IsJSONObject(body) {
		return gjson.GetBytes(body, "data").String()
	}
	return string(body)
}

func endpoint(base, path, key string) string {
	return strings.TrimRight(base, "/") + "/" + path + "/" + key
}
