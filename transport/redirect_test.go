package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
)

// loopbackResolver sends every test hostname at the local server.
type loopbackResolver struct{}

func (loopbackResolver) Resolve(context.Context, string) ([]netip.Addr, time.Duration, error) {
	return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, 0, nil
}

func newFetcher(t *testing.T, srv *httptest.Server) (*Fetcher, string) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := guard.Config{
		AllowLoopback:            true,
		DetectAlternateEncodings: true,
		DetectEmbeddedIPs:        true,
		MaxResponseBytes:         1 << 20,
		ConnectTimeout:           2 * time.Second,
		ReadTimeout:              2 * time.Second,
		AllowRedirects:           true,
		MaxRedirects:             3,
		DNSCacheTTLCeiling:       time.Minute,
	}
	g := guard.New(cfg, guard.Options{Resolver: loopbackResolver{}})
	client := NewClient(Config{}, Options{})
	return NewFetcher(g, client, nil), u.Port()
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", fmt.Sprintf("http://hop.test:%s/b", port))
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("landed"))
	})

	resp, err := fetcher.Fetch(t.Context(), fmt.Sprintf("http://hop.test:%s/a", port), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []byte("landed"), resp.Body)
	assert.Contains(t, resp.FinalURL, "/b")
}

func TestFetchRedirectLoop(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", fmt.Sprintf("http://loop.test:%s/b", port))
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", fmt.Sprintf("http://loop.test:%s/a", port))
		w.WriteHeader(http.StatusFound)
	})

	// A -> B -> A fails at the second arrival at A.
	_, err := fetcher.Fetch(t.Context(), fmt.Sprintf("http://loop.test:%s/a", port), FetchOptions{})
	require.ErrorIs(t, err, fault.ErrPolicyDenied)
	assert.Equal(t, "REDIRECT_LOOP", fault.Reason(err))
}

func TestFetchRedirectReguarded(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	// The redirect target is a metadata-style literal; the guard must
	// kill the hop even though the first URL was fine.
	mux.HandleFunc("/meta", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "http://169.254.169.254/latest/meta-data/")
		w.WriteHeader(http.StatusFound)
	})

	_, err := fetcher.Fetch(t.Context(), fmt.Sprintf("http://evil.test:%s/meta", port), FetchOptions{})
	require.ErrorIs(t, err, fault.ErrPolicyDenied)
	assert.Equal(t, "LINK_LOCAL_IP", fault.Reason(err))
}

func TestFetchTooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	for i := 0; i < 10; i++ {
		next := fmt.Sprintf("http://chain.test:%s/hop%d", port, i+1)
		mux.HandleFunc(fmt.Sprintf("/hop%d", i), func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", next)
			w.WriteHeader(http.StatusFound)
		})
	}

	_, err := fetcher.Fetch(t.Context(), fmt.Sprintf("http://chain.test:%s/hop0", port), FetchOptions{})
	require.ErrorIs(t, err, fault.ErrPolicyDenied)
	assert.Equal(t, "TOO_MANY_REDIRECTS", fault.Reason(err))
}

func TestFetchMethodHandlingAcrossRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	var methods []string
	var bodies []int
	record := func(r *http.Request) {
		methods = append(methods, r.Method)
		n, _ := r.Body.Read(make([]byte, 64))
		bodies = append(bodies, n)
	}

	mux.HandleFunc("/see-other", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Location", fmt.Sprintf("http://m.test:%s/sink", port))
		w.WriteHeader(http.StatusSeeOther)
	})
	mux.HandleFunc("/preserve", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Location", fmt.Sprintf("http://m.test:%s/sink", port))
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/sink", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusOK)
	})

	// 303: POST becomes GET with an empty body.
	_, err := fetcher.Fetch(t.Context(), fmt.Sprintf("http://m.test:%s/see-other", port),
		FetchOptions{Method: http.MethodPost, Body: []byte("payload")})
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, http.MethodPost, methods[0])
	assert.Equal(t, http.MethodGet, methods[1])
	assert.Zero(t, bodies[1])

	// 307: method and body survive.
	methods, bodies = nil, nil
	_, err = fetcher.Fetch(t.Context(), fmt.Sprintf("http://m.test:%s/preserve", port),
		FetchOptions{Method: http.MethodPost, Body: []byte("payload")})
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, http.MethodPost, methods[1])
	assert.Equal(t, len("payload"), bodies[1])
}

func TestFetchCancellationPropagates(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher, port := newFetcher(t, srv)

	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := fetcher.Fetch(ctx, fmt.Sprintf("http://c.test:%s/slow", port), FetchOptions{})
	require.ErrorIs(t, err, fault.ErrCancelled)
}
