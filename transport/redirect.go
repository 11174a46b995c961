package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/urlx"
)

// Fetcher is the guarded fetch loop: every hop, including the first, is
// a fresh guard check followed by one pinned transport request. There
// are no shortcuts for redirect targets — a 3xx to an internal address
// dies exactly like a direct request to it would.
type Fetcher struct {
	guard  *guard.Guard
	client *Client
	logger *log.Logger
}

// NewFetcher builds a Fetcher over a guard and a client.
func NewFetcher(g *guard.Guard, client *Client, logger *log.Logger) *Fetcher {
	return &Fetcher{
		guard:  g,
		client: client,
		logger: log.OrNop(logger).Child(log.Context{Component: "fetch"}),
	}
}

// FetchOptions shape one guarded fetch.
type FetchOptions struct {
	// Method defaults to GET.
	Method string
	// Body is sent on the first hop and preserved across 307/308.
	Body []byte
	// Headers are applied to every hop.
	Headers map[string]string
}

// Fetch runs the guard-transport loop starting at rawURL. Redirects are
// followed up to the decision's MaxRedirects when it allows them;
// revisiting a normalized URL fails REDIRECT_LOOP. 307 and 308 preserve
// the method and body; 301, 302, and 303 degrade to GET with an empty
// body. Cancellation propagates into every hop.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	body := opts.Body
	current := rawURL
	visited := make(map[string]bool)

	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, fault.FromContext("transport.fetch", err)
		}

		norm, err := normalizeURL(current)
		if err != nil {
			return nil, err
		}
		if visited[norm] {
			return nil, fault.Denied("transport.fetch", current, "REDIRECT_LOOP")
		}
		visited[norm] = true

		decision := f.guard.Check(ctx, current)
		if !decision.Allowed {
			return nil, fault.Denied("transport.fetch", current, decision.DenyReason)
		}

		resp, err := f.client.Do(ctx, *decision.Transport, method, body, opts.Headers)
		if err != nil {
			return nil, err
		}
		resp.FinalURL = current

		location := resp.Headers.Get("Location")
		if !isRedirect(resp.Status) || location == "" || !decision.Transport.AllowRedirects {
			return resp, nil
		}
		if hop+1 > decision.Transport.MaxRedirects {
			return nil, fault.Denied("transport.fetch", current, "TOO_MANY_REDIRECTS")
		}

		next, err := resolveLocation(current, location)
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusTemporaryRedirect && resp.Status != http.StatusPermanentRedirect {
			method = http.MethodGet
			body = nil
		}
		f.logger.Debug("following redirect", map[string]any{
			"from": current, "to": next, "status": resp.Status, "hop": hop + 1,
		})
		current = next
	}
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// normalizeURL keys the loop-detection set: scheme, hostname, effective
// port, and request path.
func normalizeURL(raw string) (string, error) {
	parsed, err := urlx.Parse(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s:%d%s", parsed.Scheme, parsed.Hostname, parsed.EffectivePort(), parsed.RequestPath()), nil
}

// resolveLocation resolves a possibly-relative Location header against
// the current URL.
func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fault.New(fault.ErrMalformedInput, "transport.fetch", current, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fault.New(fault.ErrMalformedInput, "transport.fetch", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}
