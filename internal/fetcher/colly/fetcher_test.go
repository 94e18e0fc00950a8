package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.UserAgent())
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "test-agent", Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, srv.URL+"/page", resp.URL)
	assert.Equal(t, srv.URL+"/page", resp.FinalURL)
	assert.Contains(t, resp.ContentType, "text/html")
	assert.Contains(t, string(resp.Body), "hello")
	assert.Positive(t, resp.Duration)
}

func TestFetchSniffsMissingContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", resp.ContentType)
}

func TestFetchAcceptsAnySuccessStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNonAuthoritativeInfo, http.StatusPartialContent, 299} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(status)
			_, _ = w.Write([]byte("<html><body><article><p>mirrored copy</p></article></body></html>"))
		}))

		resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
		srv.Close()
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, status, resp.StatusCode)
		assert.Contains(t, string(resp.Body), "mirrored copy")
	}
}

func TestFetchKeepsWireBytesForDeclaredCharset(t *testing.T) {
	t.Parallel()

	wire := []byte("<html><body><p>Caf\xe9 cr\xe8me</p></body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write(wire)
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, wire, resp.Body)
	require.NotNil(t, resp.Decoded)
	assert.Contains(t, string(resp.Decoded), "Café crème")
	assert.Equal(t, resp.Decoded, resp.Text())
}

func TestFetchUTF8BodyHasNoSeparateDecoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>Café</p>"))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, resp.Decoded)
	assert.Equal(t, "<p>Café</p>", string(resp.Text()))
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindHTTPError, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, scraper.IsRetryable(err))
}

func TestFetchServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadGateway, fe.Status)
	assert.True(t, scraper.IsRetryable(err))
}

func TestFetchTooLargeDeclared(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second, MaxBytes: 1024}).Fetch(context.Background(), srv.URL)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindTooLarge, fe.Kind)
	assert.Contains(t, fe.Error(), "content-length")
}

func TestFetchTooLargeStreamed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for range 4 {
			_, _ = w.Write([]byte(strings.Repeat("b", 512)))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second, MaxBytes: 1024}).Fetch(context.Background(), srv.URL)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindTooLarge, fe.Kind)
	assert.False(t, scraper.IsRetryable(err))
}

func TestFetchExactlyAtLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("c", 1024)))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{Timeout: time.Second, MaxBytes: 1024}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 1024)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindTimeout, fe.Kind)
	assert.True(t, scraper.IsRetryable(err))
}

func TestFetchMalformedURL(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	for _, raw := range []string{"::not a url", "ftp://example.com/file", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		var fe *scraper.FetchError
		require.ErrorAs(t, err, &fe, raw)
		assert.Equal(t, scraper.KindNetwork, fe.Kind, raw)
		assert.ErrorIs(t, err, scraper.ErrInvalidURL, raw)
		assert.False(t, scraper.IsRetryable(err), raw)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{Timeout: time.Second}).Fetch(ctx, "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.False(t, scraper.IsRetryable(err))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{MaxBytes: 8, Headers: http.Header{"X-Trace": {"yes"}}})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), state)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onHeaders)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	assert.NotEmpty(t, collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("short"),
		Headers:    &http.Header{"Content-Type": {"text/plain"}},
	})
	assert.Equal(t, "short", string(state.resp.Body))
	assert.Equal(t, "text/plain", state.resp.ContentType)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("far too long")})
	assert.True(t, state.tooLarge)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusNotFound, Body: []byte("missing")})
	assert.Equal(t, http.StatusNotFound, state.status)
	assert.Equal(t, "short", string(state.resp.Body))

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	assert.Equal(t, http.StatusForbidden, state.status)
	assert.EqualError(t, state.callbackErr, "Forbidden")
}

func TestClassifyStatusOutsideSuccessRange(t *testing.T) {
	t.Parallel()

	err := classify(nil, &fetchState{status: http.StatusMultipleChoices}, 10)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindHTTPError, fe.Kind)
	assert.Equal(t, http.StatusMultipleChoices, fe.Status)

	require.NoError(t, classify(nil, &fetchState{
		status: http.StatusNonAuthoritativeInfo,
		resp:   scraper.FetchResponse{StatusCode: http.StatusNonAuthoritativeInfo, Body: []byte("ok")},
	}, 10))
}

func TestClassifyWithoutResponse(t *testing.T) {
	t.Parallel()

	err := classify(nil, &fetchState{}, 10)
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, scraper.KindNetwork, fe.Kind)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onHeaders  colly.ResponseHeadersCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponseHeaders(cb colly.ResponseHeadersCallback) {
	s.onHeaders = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
