package collyfetcher

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
)

// wireBody holds the bytes of the last response body read for one fetch,
// exactly as they came off the transport. colly re-encodes bodies with a
// declared charset to UTF-8 before callbacks see them.
type wireBody struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *wireBody) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *wireBody) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Reset()
}

// Bytes returns a copy of the captured body.
func (w *wireBody) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return nil
	}
	return append([]byte(nil), w.buf.Bytes()...)
}

type wireBodyKey struct{}

// captureTransport tees response bodies into the wireBody carried by the
// request context. Each round trip starts a fresh capture, so after
// redirects only the final body remains.
type captureTransport struct {
	next http.RoundTripper
}

func (t captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		return resp, err
	}
	if wire, ok := req.Context().Value(wireBodyKey{}).(*wireBody); ok {
		wire.reset()
		resp.Body = teeBody{Reader: io.TeeReader(resp.Body, wire), Closer: resp.Body}
	}
	return resp, nil
}

type teeBody struct {
	io.Reader
	io.Closer
}

// wireBytes returns the captured body unless colly decompressed it after
// the transport, in which case the capture holds compressed bytes.
func (w *wireBody) wireBytes(headers http.Header) []byte {
	if w == nil || strings.Contains(strings.ToLower(headers.Get("Content-Encoding")), "gzip") {
		return nil
	}
	return w.Bytes()
}
