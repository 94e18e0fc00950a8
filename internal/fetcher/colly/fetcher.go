// Package collyfetcher implements the single-request fetch client using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// DefaultMaxBytes is the response ceiling used when Config.MaxBytes is unset.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBytes      int64
	// Headers are added to every request on top of the browser-like defaults.
	Headers http.Header
}

// Fetcher implements scraper.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the collector callbacks observed for one request.
type fetchState struct {
	resp        scraper.FetchResponse
	status      int
	tooLarge    bool
	declared    int64
	callbackErr error
	wire        *wireBody
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	// One byte past the ceiling lets an oversized body be told apart from
	// one that is exactly at the limit, without reading further.
	c.MaxBodySize = int(cfg.MaxBytes + 1)
	// Non-2xx responses reach OnResponse so the status is classified here,
	// not by colly's "203 and up is an error" rule.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(captureTransport{next: newHTTPTransport()})
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Failures are *scraper.FetchError values.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scraper.FetchResponse, error) {
	if err := validateURL(rawURL); err != nil {
		return scraper.FetchResponse{}, err
	}
	state := &fetchState{wire: &wireBody{}}
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = context.WithValue(ctx, wireBodyKey{}, state.wire)
	f.configureCollectorHooks(collector, start, state)

	if err := f.runCollector(ctx, collector, rawURL, state); err != nil {
		return scraper.FetchResponse{}, err
	}
	state.resp.URL = rawURL
	return state.resp, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponseHeaders(func(r *colly.Response) {
		state.status = r.StatusCode
		if r.Headers == nil {
			return
		}
		if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil && n > f.cfg.MaxBytes {
			state.tooLarge = true
			state.declared = n
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		if !successStatus(r.StatusCode) {
			return
		}
		var headers http.Header
		if r.Headers != nil {
			headers = *r.Headers
		}
		decoded := append([]byte(nil), r.Body...)
		body := decoded
		if wire := state.wire.wireBytes(headers); wire != nil {
			body = wire
		}
		if int64(len(body)) > f.cfg.MaxBytes {
			state.tooLarge = true
			return
		}
		if bytes.Equal(body, decoded) {
			decoded = nil
		}
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		state.resp = scraper.FetchResponse{
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType(headers, body),
			Body:        body,
			Decoded:     decoded,
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			state.status = r.StatusCode
		}
		state.callbackErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return &scraper.FetchError{Kind: kindForContext(ctx.Err()), Err: ctx.Err()}
	case err := <-done:
		return classify(err, state, f.cfg.MaxBytes)
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// classify turns the collector outcome into the fetch error taxonomy.
func classify(visitErr error, state *fetchState, maxBytes int64) error {
	if state.tooLarge {
		detail := fmt.Errorf("body exceeds %d bytes", maxBytes)
		if state.declared > 0 {
			detail = fmt.Errorf("content-length %d exceeds %d bytes", state.declared, maxBytes)
		}
		return &scraper.FetchError{Kind: scraper.KindTooLarge, Status: state.status, Err: detail}
	}
	err := visitErr
	if err == nil {
		err = state.callbackErr
	}
	if err == nil && state.status != 0 && !successStatus(state.status) {
		err = fmt.Errorf("unexpected status %d %s", state.status, http.StatusText(state.status))
	}
	if err == nil {
		if state.resp.Body == nil && state.resp.StatusCode == 0 {
			return &scraper.FetchError{Kind: scraper.KindNetwork, Err: errors.New("no response received")}
		}
		return nil
	}
	if state.status != 0 && !successStatus(state.status) {
		return &scraper.FetchError{Kind: scraper.KindHTTPError, Status: state.status, Err: err}
	}
	if isTimeout(err) {
		return &scraper.FetchError{Kind: scraper.KindTimeout, Err: err}
	}
	return &scraper.FetchError{Kind: scraper.KindNetwork, Err: err}
}

func successStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func kindForContext(err error) scraper.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return scraper.KindTimeout
	}
	return scraper.KindNetwork
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &scraper.FetchError{Kind: scraper.KindNetwork, Err: fmt.Errorf("%w: %w", scraper.ErrInvalidURL, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &scraper.FetchError{Kind: scraper.KindNetwork, Err: fmt.Errorf("%w: unsupported scheme %q", scraper.ErrInvalidURL, u.Scheme)}
	}
	if u.Hostname() == "" {
		return &scraper.FetchError{Kind: scraper.KindNetwork, Err: fmt.Errorf("%w: missing host", scraper.ErrInvalidURL)}
	}
	return nil
}

// contentType prefers the declared header and sniffs the body otherwise.
func contentType(headers http.Header, body []byte) string {
	if ct := strings.TrimSpace(headers.Get("Content-Type")); ct != "" {
		return ct
	}
	return mimetype.Detect(body).String()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}
}
