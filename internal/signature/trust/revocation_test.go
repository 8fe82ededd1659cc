package trust_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/rezonia/nfe-conferencia/internal/signature/trust"
)

// responder answers every OCSP request with the given status, signed by the CA
func responder(t *testing.T, ca *testCA, status int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req, err := ocsp.ParseRequest(body)
		require.NoError(t, err)

		tmpl := ocsp.Response{
			Status:       status,
			SerialNumber: req.SerialNumber,
			ThisUpdate:   time.Now().Add(-time.Hour),
			NextUpdate:   time.Now().Add(time.Hour),
		}
		if status == ocsp.Revoked {
			tmpl.RevokedAt = time.Now().Add(-time.Minute)
			tmpl.RevocationReason = ocsp.KeyCompromise
		}
		resp, err := ocsp.CreateResponse(ca.cert, ca.cert, tmpl, ca.key)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/ocsp-response")
		w.Write(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func issueWithOCSP(t *testing.T, ca *testCA, serial int64, servers ...string) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "EMPRESA EXEMPLO LTDA:11406411000106"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		OCSPServer:   servers,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestRevocationChecker_Status(t *testing.T) {
	ca := newCA(t, "AC Teste")

	tests := []struct {
		name    string
		status  int
		revoked bool
		wantErr bool
	}{
		{"good", ocsp.Good, false, false},
		{"revoked", ocsp.Revoked, true, false},
		{"unknown", ocsp.Unknown, false, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := responder(t, ca, tt.status, &hits)
			cert := issueWithOCSP(t, ca, int64(10+i), srv.URL)

			revoked, err := trust.NewRevocationChecker().Check(context.Background(), cert, ca.cert)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.revoked, revoked)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		})
	}
}

func TestRevocationChecker_Cache(t *testing.T) {
	ca := newCA(t, "AC Teste")
	var hits int32
	srv := responder(t, ca, ocsp.Good, &hits)
	cert := issueWithOCSP(t, ca, 20, srv.URL)

	checker := trust.NewRevocationChecker(trust.WithOCSPCacheTTL(time.Hour))
	for i := 0; i < 3; i++ {
		revoked, err := checker.Check(context.Background(), cert, ca.cert)
		require.NoError(t, err)
		assert.False(t, revoked)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, checker.CacheSize())
}

func TestRevocationChecker_FallsBackToNextResponder(t *testing.T) {
	ca := newCA(t, "AC Teste")
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	var hits int32
	up := responder(t, ca, ocsp.Good, &hits)

	cert := issueWithOCSP(t, ca, 30, down.URL, up.URL)
	revoked, err := trust.NewRevocationChecker().Check(context.Background(), cert, ca.cert)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationChecker_Errors(t *testing.T) {
	ca := newCA(t, "AC Teste")
	checker := trust.NewRevocationChecker(trust.WithOCSPTimeout(time.Second))

	_, err := checker.Check(context.Background(), issueWithOCSP(t, ca, 40), ca.cert)
	assert.ErrorIs(t, err, trust.ErrNoResponder)

	_, err = checker.Check(context.Background(), nil, ca.cert)
	assert.Error(t, err)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	_, err = checker.Check(context.Background(), issueWithOCSP(t, ca, 41, down.URL), ca.cert)
	assert.ErrorContains(t, err, "all OCSP servers failed")
	assert.Zero(t, checker.CacheSize())
}
