package trust

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Default OCSP configuration
const (
	DefaultOCSPTimeout  = 10 * time.Second
	DefaultOCSPCacheTTL = 1 * time.Hour
)

// ErrNoResponder is returned for certificates that name no OCSP server
var ErrNoResponder = errors.New("no OCSP server URL in certificate")

// RevocationChecker asks the OCSP responders named in a certificate whether it was revoked.
// Answers are cached per issuer and serial.
type RevocationChecker struct {
	httpClient *http.Client
	timeout    time.Duration
	ttl        time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]revocationEntry
}

type revocationEntry struct {
	revoked   bool
	expiresAt time.Time
}

// RevocationOption configures the checker
type RevocationOption func(*RevocationChecker)

// WithOCSPClient sets the HTTP client used to reach responders
func WithOCSPClient(hc *http.Client) RevocationOption {
	return func(c *RevocationChecker) {
		c.httpClient = hc
	}
}

// WithOCSPTimeout bounds one check across all responders
func WithOCSPTimeout(d time.Duration) RevocationOption {
	return func(c *RevocationChecker) {
		c.timeout = d
	}
}

// WithOCSPCacheTTL sets how long an answer is reused
func WithOCSPCacheTTL(ttl time.Duration) RevocationOption {
	return func(c *RevocationChecker) {
		c.ttl = ttl
	}
}

// NewRevocationChecker creates a checker with an empty cache
func NewRevocationChecker(opts ...RevocationOption) *RevocationChecker {
	c := &RevocationChecker{
		httpClient: &http.Client{},
		timeout:    DefaultOCSPTimeout,
		ttl:        DefaultOCSPCacheTTL,
		now:        time.Now,
		entries:    make(map[string]revocationEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reports whether cert was revoked by issuer
func (c *RevocationChecker) Check(ctx context.Context, cert, issuer *x509.Certificate) (bool, error) {
	if cert == nil || issuer == nil {
		return false, fmt.Errorf("certificate and issuer are required")
	}
	if revoked, ok := c.cached(cert); ok {
		return revoked, nil
	}
	if len(cert.OCSPServer) == 0 {
		return false, ErrNoResponder
	}

	request, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return false, fmt.Errorf("failed to create OCSP request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for _, server := range cert.OCSPServer {
		revoked, err := c.query(ctx, server, request, issuer)
		if err == nil {
			c.store(cert, revoked)
			return revoked, nil
		}
		lastErr = err
	}
	return false, fmt.Errorf("all OCSP servers failed: %w", lastErr)
}

func (c *RevocationChecker) query(ctx context.Context, serverURL string, request []byte, issuer *x509.Certificate) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(request))
	if err != nil {
		return false, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("OCSP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("OCSP server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read OCSP response: %w", err)
	}

	parsed, err := ocsp.ParseResponse(body, issuer)
	if err != nil {
		return false, fmt.Errorf("failed to parse OCSP response: %w", err)
	}

	switch parsed.Status {
	case ocsp.Good:
		return false, nil
	case ocsp.Revoked:
		return true, nil
	case ocsp.Unknown:
		return false, fmt.Errorf("OCSP status unknown")
	default:
		return false, fmt.Errorf("unexpected OCSP status: %d", parsed.Status)
	}
}

func (c *RevocationChecker) cached(cert *x509.Certificate) (bool, bool) {
	key := certCacheKey(cert)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}
	return entry.revoked, true
}

func (c *RevocationChecker) store(cert *x509.Certificate, revoked bool) {
	c.mu.Lock()
	c.entries[certCacheKey(cert)] = revocationEntry{revoked: revoked, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// CacheSize returns the number of cached answers
func (c *RevocationChecker) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func certCacheKey(cert *x509.Certificate) string {
	return fmt.Sprintf("%s:%s", cert.Issuer.String(), cert.SerialNumber.String())
}
