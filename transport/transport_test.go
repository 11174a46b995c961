package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
)

// reqFor builds TransportRequirements pointing a fake hostname at a
// local test server, the way an allowed guard decision would.
func reqFor(t *testing.T, srv *httptest.Server, hostname string) guard.TransportRequirements {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	host, _, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return guard.TransportRequirements{
		OriginalURL:      "http://" + hostname + "/",
		ConnectToIP:      host,
		Port:             port,
		UseTLS:           u.Scheme == "https",
		Hostname:         hostname,
		RequestPath:      "/",
		MaxResponseBytes: 1 << 20,
		ConnectTimeoutMs: 2000,
		ReadTimeoutMs:    2000,
	}
}

func TestDoConnectsToPinnedIPWithHostHeader(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.Header().Set("X-Probe", "yes")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewClient(Config{}, Options{})
	req := reqFor(t, srv, "pinned.test")

	resp, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []byte("hello"), resp.Body)
	assert.Equal(t, "yes", resp.Headers.Get("X-Probe"))
	// The Host header names the guard's hostname, not the dialed IP.
	assert.Equal(t, "pinned.test:"+strconv.Itoa(req.Port), gotHost)
}

func TestDoBodyCap(t *testing.T) {
	// S3: the cap tears the read down; no partial body escapes.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	client := NewClient(Config{}, Options{})
	req := reqFor(t, srv, "big.test")
	req.MaxResponseBytes = 1024

	resp, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.ErrorIs(t, err, fault.ErrTooLarge)
	assert.Equal(t, "RESPONSE_TOO_LARGE", fault.Reason(err))
	assert.Nil(t, resp)
}

func TestDoReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	client := NewClient(Config{}, Options{})
	req := reqFor(t, srv, "slow.test")
	req.ConnectTimeoutMs = 50
	req.ReadTimeoutMs = 50

	_, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.ErrorIs(t, err, fault.ErrTimeout)
	assert.NotErrorIs(t, err, fault.ErrCancelled)
}

func TestDoCancellationDistinctFromTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{}, Options{})
	req := reqFor(t, srv, "cancel.test")

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Do(ctx, req, http.MethodGet, nil, nil)
	require.ErrorIs(t, err, fault.ErrCancelled)
	assert.NotErrorIs(t, err, fault.ErrTimeout)
}

func TestDoConnectionRefused(t *testing.T) {
	client := NewClient(Config{}, Options{})
	req := guard.TransportRequirements{
		OriginalURL:      "http://dead.test/",
		ConnectToIP:      "127.0.0.1",
		Port:             1, // nothing listens here
		Hostname:         "dead.test",
		RequestPath:      "/",
		MaxResponseBytes: 1024,
		ConnectTimeoutMs: 500,
		ReadTimeoutMs:    500,
	}

	_, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.ErrorIs(t, err, fault.ErrBackendUnavailable)
}

func TestPinVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	goodPin := SPKIFingerprint(srv.Certificate().RawSubjectPublicKeyInfo)

	// Self-signed test cert: skip chain validation, exercise pinning.
	client := NewClient(Config{ValidateCerts: false}, Options{})
	req := reqFor(t, srv, "pinned-tls.test")

	// Matching pin connects.
	req.CertificatePins = []string{goodPin}
	resp, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("secure"), resp.Body)

	// Configured pins with no match fail PIN_MISMATCH.
	req.CertificatePins = []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}
	_, err = client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.ErrorIs(t, err, fault.ErrPolicyDenied)
	assert.Equal(t, "PIN_MISMATCH", fault.Reason(err))

	// No pins configured: ordinary validation path, no pin check.
	req.CertificatePins = nil
	resp, err = client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
}

func TestPinReportOnlyProceeds(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{ValidateCerts: false, PinReportOnly: true}, Options{})
	req := reqFor(t, srv, "report-only.test")
	req.CertificatePins = []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}

	resp, err := client.Do(t.Context(), req, http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}
