package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/factmap/pkg/errors"
)

func TestParseAuth(t *testing.T) {
	tests := []struct {
		scheme string
		header string
		query  string
	}{
		{scheme: "", header: "", query: ""},
		{scheme: "bearer", header: "Authorization", query: ""},
		{scheme: "header:X-MAL-CLIENT-ID", header: "X-MAL-CLIENT-ID", query: ""},
		{scheme: "query:key", header: "", query: "key"},
		{scheme: "header:", header: "", query: ""},
		{scheme: "digest", header: "", query: ""},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			u, _ := url.Parse("https://api.example/manga/1?fields=all")
			req := &http.Request{URL: u, Header: make(http.Header)}
			ParseAuth(tt.scheme).Apply(req, "secret")

			if tt.header != "" {
				assert.Contains(t, req.Header.Get(tt.header), "secret")
			} else {
				assert.Empty(t, req.Header)
			}
			if tt.query != "" {
				assert.Equal(t, "secret", req.URL.Query().Get(tt.query))
				assert.Equal(t, "all", req.URL.Query().Get("fields"))
			}
		})
	}
}

func TestClientGet(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "token", r.Header.Get("X-Client"))
			_, _ = w.Write([]byte(`{"title":"Berserk"}`))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := New("test",
		WithAuth(&HeaderAuth{Header: "X-Client"}, "token"),
		WithLimiter(NewLimiter(1000, 10)),
		WithCache(NewCache(time.Minute, time.Minute)),
	)
	ctx := context.Background()

	body, err := c.Get(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Berserk"}`, string(body))
	_, err = c.Get(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second fetch served from cache")

	_, err = c.Get(ctx, srv.URL+"/gone")
	assert.True(t, errors.IsNotFound(err))

	_, err = c.Get(ctx, srv.URL+"/busy")
	assert.True(t, errors.IsRateLimited(err))

	_, err = c.Get(ctx, srv.URL+"/broken")
	assert.True(t, errors.IsTransient(err))

	_, err = c.Get(ctx, srv.URL+"/bad")
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
}

func TestClientNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New("test", WithLimiter(nil)).Get(context.Background(), addr+"/x")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestClientCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("test").Get(ctx, "http://127.0.0.1:1/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://api.example/x", redact("https://api.example/x?key=secret"))
}

func TestLimiterPerHost(t *testing.T) {
	l := NewLimiter(1, 1)
	l.SetHostRate("fast.example", 1000, 5)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example/x"))
	}
	require.NoError(t, l.Wait(ctx, "https://slow.example/x"))
}
