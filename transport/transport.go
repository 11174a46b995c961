// Package transport executes the requests the SSRF guard approved. The
// TCP connection goes to the decision's pinned IP — never to a hostname,
// so a DNS answer that changes after the guard ran cannot redirect the
// connection. TLS negotiates SNI and verifies the certificate against
// the original hostname, the response body is capped, and every redirect
// re-enters the full guard via Fetcher.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/iox"
	"github.com/oriys/novacore/log"
)

// Recorder receives one observation per transport request; nil disables
// recording.
type Recorder interface {
	TransportRequest(outcome string, bytes int64)
}

// Response is the bounded result of one guarded request.
type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	TimingMs int64
	FinalURL string
}

// Config controls client behavior that is not per-request policy.
type Config struct {
	// ValidateCerts enables ordinary TLS certificate verification.
	// Defaults lean restrictive: construct with true unless a test says
	// otherwise.
	ValidateCerts bool
	// PinReportOnly logs SPKI pin mismatches instead of failing them.
	PinReportOnly bool
	// UserAgent is sent when the caller supplies none.
	UserAgent string
}

// Client performs exactly one HTTP request per Do call, honoring the
// guard's TransportRequirements.
type Client struct {
	cfg    Config
	clock  clockwork.Clock
	logger *log.Logger
	rec    Recorder
}

// Options are the injectable collaborators.
type Options struct {
	Clock   clockwork.Clock
	Logger  *log.Logger
	Metrics Recorder
}

// NewClient builds a Client.
func NewClient(cfg Config, opts Options) *Client {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:    cfg,
		clock:  clock,
		logger: log.OrNop(opts.Logger).Child(log.Context{Component: "transport"}),
		rec:    orNopRecorder(opts.Metrics),
	}
}

func orNopRecorder(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

type nopRecorder struct{}

func (nopRecorder) TransportRequest(string, int64) {}

// Do sends one request per req. The connection is dialed to
// req.ConnectToIP:req.Port regardless of the URL, the Host header and
// SNI carry req.Hostname, and at most req.MaxResponseBytes of body are
// read. Redirects are not followed here; Fetcher owns that loop.
func (c *Client) Do(ctx context.Context, req guard.TransportRequirements, method string, body []byte, headers map[string]string) (*Response, error) {
	start := c.clock.Now()

	connectTimeout := time.Duration(req.ConnectTimeoutMs) * time.Millisecond
	readTimeout := time.Duration(req.ReadTimeoutMs) * time.Millisecond
	total := connectTimeout + readTimeout
	reqCtx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	dialAddr := net.JoinHostPort(req.ConnectToIP, strconv.Itoa(req.Port))
	dialer := &net.Dialer{Timeout: connectTimeout}

	tr := &http.Transport{
		// The pinned dial is the rebinding defense: whatever address the
		// URL's hostname resolves to now is irrelevant.
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, dialAddr)
		},
		ResponseHeaderTimeout: readTimeout,
		DisableKeepAlives:     true,
	}
	if req.UseTLS {
		tr.TLSClientConfig = c.tlsConfig(req)
	}
	defer tr.CloseIdleConnections()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, requestURL(req), bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.ErrMalformedInput, "transport.do", req.OriginalURL, err)
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{
		Transport: tr,
		// Fetcher re-guards every hop; the inner client never follows.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		classified := c.classify(ctx, reqCtx, req, err)
		c.rec.TransportRequest(fault.Code(classified), 0)
		return nil, classified
	}
	defer iox.DiscardClose(resp.Body)

	limited := io.LimitReader(resp.Body, req.MaxResponseBytes+1)
	payload, err := io.ReadAll(limited)
	if err != nil {
		classified := c.classify(ctx, reqCtx, req, err)
		c.rec.TransportRequest(fault.Code(classified), int64(len(payload)))
		return nil, classified
	}
	if int64(len(payload)) > req.MaxResponseBytes {
		// Tear down without draining; no partial body escapes.
		c.rec.TransportRequest("TOO_LARGE", req.MaxResponseBytes)
		return nil, &fault.Error{
			Kind:    fault.ErrTooLarge,
			Op:      "transport.do",
			Subject: req.OriginalURL,
			Reason:  "RESPONSE_TOO_LARGE",
		}
	}

	out := &Response{
		Status:   resp.StatusCode,
		Headers:  resp.Header,
		Body:     payload,
		TimingMs: c.clock.Since(start).Milliseconds(),
		FinalURL: req.OriginalURL,
	}
	c.rec.TransportRequest("OK", int64(len(payload)))
	return out, nil
}

// classify maps a request failure to exactly one fault kind, keeping
// caller cancellation distinct from our own deadlines.
func (c *Client) classify(outer, inner context.Context, req guard.TransportRequirements, err error) error {
	var pinErr *PinMismatchError
	if errors.As(err, &pinErr) {
		return &fault.Error{
			Kind:    fault.ErrPolicyDenied,
			Op:      "transport.tls",
			Subject: req.Hostname,
			Reason:  "PIN_MISMATCH",
			Err:     err,
		}
	}
	switch {
	case outer.Err() != nil:
		return fault.FromContext("transport.do", outer.Err())
	case inner.Err() != nil || isTimeout(err):
		return fault.New(fault.ErrTimeout, "transport.do", req.OriginalURL, err)
	default:
		return fault.New(fault.ErrBackendUnavailable, "transport.do", req.OriginalURL, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) tlsConfig(req guard.TransportRequirements) *tls.Config {
	cfg := &tls.Config{
		ServerName:         req.Hostname,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !c.cfg.ValidateCerts,
	}
	if len(req.CertificatePins) > 0 {
		cfg.VerifyConnection = func(state tls.ConnectionState) error {
			err := VerifyPins(state, req.CertificatePins)
			if err != nil && c.cfg.PinReportOnly {
				c.logger.Warn("certificate pin mismatch (report-only)", map[string]any{
					"hostname": req.Hostname,
				})
				return nil
			}
			return err
		}
	}
	return cfg
}

// requestURL rebuilds the wire URL from the requirements. The host part
// is the hostname so Host and SNI are right; the dialer ignores it.
func requestURL(req guard.TransportRequirements) string {
	scheme := "http"
	defaultPort := 80
	if req.UseTLS {
		scheme = "https"
		defaultPort = 443
	}
	host := req.Hostname
	if req.Port != 0 && req.Port != defaultPort {
		host = net.JoinHostPort(req.Hostname, strconv.Itoa(req.Port))
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, req.RequestPath)
}
