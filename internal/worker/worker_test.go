package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/extract"
	"github.com/JakeFAU/research-scraper/internal/fingerprint"
	"github.com/JakeFAU/research-scraper/internal/paywall"
	"github.com/JakeFAU/research-scraper/internal/progress"
	pubmemory "github.com/JakeFAU/research-scraper/internal/publisher/memory"
	"github.com/JakeFAU/research-scraper/internal/queue/memory"
	"github.com/JakeFAU/research-scraper/internal/retry"
	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/storage"
	memstore "github.com/JakeFAU/research-scraper/internal/storage/memory"
)

const articleText = "Central banks moved rates again this quarter as inflation cooled.\n\nAnalysts expect further easing through the rest of the year."

func TestProcessSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText))
	res := h.worker.Process(context.Background(), task("t1", "https://news.example.com/a"))

	assert.Equal(t, scraper.StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 200, res.HTTPStatus)
	assert.True(t, strings.HasPrefix(res.RawPath, "memory://raw/news.example.com/"), res.RawPath)
	assert.True(t, strings.HasPrefix(res.CleanPath, "memory://clean/news.example.com/"), res.CleanPath)
	assert.Len(t, res.Fingerprint, 64)
	assert.Equal(t, "Headline", res.Title)
	assert.Equal(t, "en", res.Lang)
	assert.False(t, res.IsPaywalled)
	assert.Empty(t, res.DuplicateOf)
	assert.Contains(t, res.Notes, "extracted with fake")
	assert.NotEmpty(t, res.Summary)

	clean, ok := h.meta.CleanedPage("t1")
	require.True(t, ok)
	assert.Equal(t, res.Fingerprint, clean.Fingerprint)
	_, ok = h.meta.RawPage("t1")
	assert.True(t, ok)

	assert.Equal(t, []progress.Stage{
		progress.StageFetching,
		progress.StageFetched,
		progress.StageExtracting,
		progress.StageExtracted,
		progress.StageClassifying,
		progress.StageStoring,
		progress.StageDone,
	}, h.events.stages("t1"))

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "results", msgs[0].Topic)
	assert.Equal(t, scraper.StatusOK, msgs[0].Payload.(scraper.TaskResult).Status)
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, failure(scraper.NewHTTPError(503)), okResponse(articleText))
	res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Notes, "attempt 1: http error: status 503")
}

func TestProcessFetchFailures(t *testing.T) {
	t.Parallel()

	timeout := &scraper.FetchError{Kind: scraper.KindTimeout, Err: context.DeadlineExceeded}
	cases := []struct {
		name       string
		steps      []step
		status     scraper.Status
		attempts   int
		httpStatus int
	}{
		{"not found", []step{failure(scraper.NewHTTPError(404))}, scraper.StatusHTTPError, 1, 404},
		{"server error exhausts", []step{
			failure(scraper.NewHTTPError(502)), failure(scraper.NewHTTPError(502)), failure(scraper.NewHTTPError(503)),
		}, scraper.StatusHTTPError, 3, 503},
		{"timeout exhausts", []step{failure(timeout), failure(timeout), failure(timeout)}, scraper.StatusTimeout, 3, 0},
		{"too large", []step{failure(&scraper.FetchError{Kind: scraper.KindTooLarge})}, scraper.StatusFetchSkipped, 1, 0},
		{"malformed url", []step{failure(&scraper.FetchError{Kind: scraper.KindNetwork, Err: scraper.ErrInvalidURL})}, scraper.StatusFetchSkipped, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tc.steps...)
			res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.attempts, res.Attempts)
			assert.Equal(t, tc.httpStatus, res.HTTPStatus)
			assert.Empty(t, res.RawPath)
			assert.Empty(t, res.CleanPath)
			assert.Equal(t, 0, h.artifacts.Len())
			assert.Contains(t, h.events.stages("t1"), progress.StageFetchFailed)
		})
	}
}

func TestProcessExtractionFailureKeepsRaw(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse("broken"))
	res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusExtractionFailed, res.Status)
	assert.NotEmpty(t, res.RawPath)
	assert.Empty(t, res.CleanPath)
	assert.Empty(t, res.Fingerprint)
	_, ok := h.meta.CleanedPage("t1")
	assert.False(t, ok)
	assert.Contains(t, h.events.stages("t1"), progress.StageExtractFailed)
}

func TestProcessPaywalled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse("The first paragraph of the story.\n\nSubscribe to continue reading this article."))
	res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusPaywalledPartial, res.Status)
	assert.True(t, res.IsPaywalled)
	assert.NotEmpty(t, res.CleanPath)
	clean, ok := h.meta.CleanedPage("t1")
	require.True(t, ok)
	assert.True(t, clean.IsPaywalled)
}

func TestProcessDuplicateStillStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText), okResponse("  "+articleText+"\n"))
	first := h.worker.Process(context.Background(), task("a", "https://one.example.com/story"))
	second := h.worker.Process(context.Background(), task("b", "https://two.example.com/mirror"))

	assert.Equal(t, scraper.StatusOK, first.Status)
	assert.Equal(t, scraper.StatusOK, second.Status)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Empty(t, first.DuplicateOf)
	assert.Equal(t, "a", second.DuplicateOf)
	assert.NotEmpty(t, second.CleanPath)
}

func TestProcessStorageFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText))
	h.worker.deps.Store = failingStore{}
	res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusStorageError, res.Status)
	assert.Empty(t, res.RawPath)
}

func TestProcessCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.worker.Process(ctx, task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusFetchSkipped, res.Status)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, []string{"canceled"}, res.Notes)
	assert.Equal(t, 0, h.fetcher.Calls())
}

func TestProcessPublishFailureKeepsStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText))
	h.publisher.FailWith(errors.New("topic gone"))
	res := h.worker.Process(context.Background(), task("t1", "https://example.com/a"))

	assert.Equal(t, scraper.StatusOK, res.Status)
	assert.Contains(t, strings.Join(res.Notes, "|"), "publish failed")
}

func TestRunDrainsQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, okResponse(articleText), okResponse("Another distinct article body about markets.\n\nWith a second paragraph."))
	q := memory.NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), task("a", "https://example.com/1")))
	require.NoError(t, q.Enqueue(context.Background(), task("b", "https://example.com/2")))
	q.Close()

	out := make(chan scraper.TaskResult, 2)
	h.worker.WithIndex(0).Run(context.Background(), q, out)
	close(out)

	var ids []string
	for res := range out {
		ids = append(ids, res.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{}, nil)
	require.Error(t, err)

	_, err = New(Config{}, Deps{
		Fetcher:   &scriptedFetcher{},
		Extractor: fakeExtractor{},
		Paywall:   paywall.New(paywall.Config{}),
		Index:     fingerprint.NewIndex(),
	}, nil)
	require.ErrorContains(t, err, "store")
}

type harness struct {
	worker    *Worker
	fetcher   *scriptedFetcher
	artifacts *memstore.ArtifactStore
	meta      *memstore.MetadataStore
	publisher *pubmemory.Publisher
	events    *recorder
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	artifacts := memstore.NewArtifactStore()
	meta := memstore.NewMetadataStore()
	layer, err := storage.NewLayer(artifacts, meta, zap.NewNop())
	require.NoError(t, err)

	h := &harness{
		fetcher:   &scriptedFetcher{steps: steps},
		artifacts: artifacts,
		meta:      meta,
		publisher: pubmemory.New(),
		events:    &recorder{},
	}
	w, err := New(Config{
		RunID: "run-1",
		Retry: retry.Policy{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
		},
		SummaryMaxChars: 40,
		Topic:           "results",
	}, Deps{
		Fetcher:   h.fetcher,
		Extractor: fakeExtractor{},
		Paywall:   paywall.New(paywall.Config{}),
		Index:     fingerprint.NewIndex(),
		Store:     layer,
		Publisher: h.publisher,
		Events:    h.events,
	}, zap.NewNop())
	require.NoError(t, err)
	h.worker = w
	return h
}

func task(id, url string) scraper.FetchTask {
	return scraper.FetchTask{ID: id, URL: url, SubQuestion: "what happened"}
}

type step struct {
	resp scraper.FetchResponse
	err  error
}

func okResponse(body string) step {
	return step{resp: scraper.FetchResponse{
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
		Duration:    time.Millisecond,
	}}
}

func failure(err error) step {
	return step{err: err}
}

// scriptedFetcher replays steps in order, repeating the last one.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) (scraper.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return scraper.FetchResponse{}, errors.New("no scripted response")
	}
	s := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if s.err != nil {
		return scraper.FetchResponse{}, s.err
	}
	resp := s.resp
	resp.URL = url
	return resp, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, in extract.Input) (extract.Extracted, error) {
	text := extract.Normalize(strings.TrimSpace(string(in.Body)))
	if text == "broken" {
		return extract.Extracted{}, scraper.ErrExtractionFailed
	}
	return extract.Extracted{
		Title:     "Headline",
		Language:  "en",
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Strategy:  "fake",
	}, nil
}

type failingStore struct{}

func (failingStore) SaveRaw(context.Context, scraper.FetchTask, scraper.FetchResponse) (scraper.RawArtifact, error) {
	return scraper.RawArtifact{}, scraper.ErrStorage
}

func (failingStore) SaveClean(context.Context, scraper.FetchTask, scraper.CleanArtifact, string) (scraper.CleanArtifact, error) {
	return scraper.CleanArtifact{}, scraper.ErrStorage
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) stages(taskID string) []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Stage
	for _, evt := range r.events {
		if evt.TaskID == taskID {
			out = append(out, evt.Stage)
		}
	}
	return out
}
