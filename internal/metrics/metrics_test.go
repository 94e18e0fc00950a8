package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObservers(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(scraperFetchAttemptsTotal.WithLabelValues("metrics.test", "timeout"))
	ObserveFetchAttempt("https://Metrics.Test/a", "timeout", 0)
	assert.InDelta(t, before+1, testutil.ToFloat64(scraperFetchAttemptsTotal.WithLabelValues("metrics.test", "timeout")), 0.001)

	bytesBefore := testutil.ToFloat64(scraperBytesTotal.WithLabelValues("metrics.test"))
	ObserveFetchAttempt("https://metrics.test/b", "success", 512)
	assert.InDelta(t, bytesBefore+512, testutil.ToFloat64(scraperBytesTotal.WithLabelValues("metrics.test")), 0.001)

	dupBefore := testutil.ToFloat64(scraperDuplicatesTotal)
	ObserveDuplicate()
	assert.InDelta(t, dupBefore+1, testutil.ToFloat64(scraperDuplicatesTotal), 0.001)

	taskBefore := testutil.ToFloat64(scraperTasksTotal.WithLabelValues("paywalled_partial"))
	ObserveTask("paywalled_partial", time.Second)
	assert.InDelta(t, taskBefore+1, testutil.ToFloat64(scraperTasksTotal.WithLabelValues("paywalled_partial")), 0.001)

	IncActiveWorkers()
	DecActiveWorkers()
	ObserveExtraction("readability")
	ObserveRateLimitDelay("metrics.test", 10*time.Millisecond)
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))
	resp, err := http.Get(ts.URL + "/teapot")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")), 0.001)
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
