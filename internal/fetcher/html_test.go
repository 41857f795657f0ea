package fetcher_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/rohmanhakim/docs-crawler/pkg/timeutil"
)

// mockMetadataSink is a test double for metadata.MetadataSink
type mockMetadataSink struct {
	fetchEvents    []fetchEvent
	errorEvents    []errorEvent
	artifactEvents []string
}

type fetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

type errorEvent struct {
	observedAt  time.Time
	packageName string
	action      string
	cause       metadata.ErrorCause
	details     string
	attrs       []metadata.Attribute
}

func (m *mockMetadataSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	m.fetchEvents = append(m.fetchEvents, fetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
}

func (m *mockMetadataSink) RecordAssetFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	m.fetchEvents = append(m.fetchEvents, fetchEvent{
		fetchUrl:   fetchUrl,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	})
}

func (m *mockMetadataSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	m.errorEvents = append(m.errorEvents, errorEvent{
		observedAt:  observedAt,
		packageName: packageName,
		action:      action,
		cause:       cause,
		details:     details,
		attrs:       attrs,
	})
}

func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	m.artifactEvents = append(m.artifactEvents, path)
}

// createTestRetryParam creates retry parameters for testing. A multiplier of
// 1.0 mirrors how the engine wires fail_sleep: every retry sleeps the same
// configured duration rather than growing.
func createTestRetryParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		10*time.Millisecond, // baseDelay
		5*time.Millisecond,  // jitter
		42,                  // randomSeed
		maxAttempts,
		timeutil.NewBackoffParam(
			10*time.Millisecond,
			1.0,
			10*time.Millisecond,
		),
	)
}

func newFetchParam(t *testing.T, rawURL string) fetcher.FetchParam {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("failed to parse test URL: %v", err)
	}
	return fetcher.NewFetchParam(*u, "test-user-agent")
}

func TestHtmlFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello World</body></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}
	if result.Outcome() != fetcher.OutcomeSuccess {
		t.Errorf("expected OutcomeSuccess, got %v", result.Outcome())
	}
	if string(result.Body()) != "<html><body>Hello World</body></html>" {
		t.Errorf("unexpected body: %s", string(result.Body()))
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	fetchEvt := sink.fetchEvents[0]
	if fetchEvt.fetchUrl != server.URL {
		t.Errorf("expected URL %s, got %s", server.URL, fetchEvt.fetchUrl)
	}
	if fetchEvt.httpStatus != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, fetchEvt.httpStatus)
	}
	if fetchEvt.crawlDepth != 0 {
		t.Errorf("expected crawl depth 0, got %d", fetchEvt.crawlDepth)
	}
	if fetchEvt.retryCount != 1 {
		t.Errorf("expected retry count 1 (actual attempts), got %d", fetchEvt.retryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

// Non-HTML content is no longer a fetcher-level concern: it is a successful
// fetch, classified OutcomeSuccess, and it is the analyzer's job to decide
// whether to parse it.
func TestHtmlFetcher_Fetch_NonHTMLContentIsStillSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "not html"}`))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 1, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Outcome() != fetcher.OutcomeSuccess {
		t.Errorf("expected OutcomeSuccess, got %v", result.Outcome())
	}
	if result.ContentType() != "application/json" {
		t.Errorf("expected content type application/json, got %s", result.ContentType())
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

func TestHtmlFetcher_Fetch_HTTP404ClassifiesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error for a classified 404, got: %v", err)
	}
	if result.Outcome() != fetcher.OutcomeNotFound {
		t.Errorf("expected OutcomeNotFound, got %v", result.Outcome())
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events for a status classification, got %d", len(sink.errorEvents))
	}
}

func TestHtmlFetcher_Fetch_HTTP403PlainIsOther(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><head><title>Forbidden</title></head></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Outcome() != fetcher.OutcomeOther {
		t.Errorf("expected OutcomeOther for a plain 403, got %v", result.Outcome())
	}
}

func TestHtmlFetcher_Fetch_HTTP403CloudflareChallenge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><head><title>Attention Required! | Cloudflare</title></head></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Outcome() != fetcher.OutcomeCloudflareChallenge {
		t.Errorf("expected OutcomeCloudflareChallenge, got %v", result.Outcome())
	}
}

func TestHtmlFetcher_Fetch_HTTP500NotRetried(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected no error: a 5xx is a classification, not a FetchError, got: %v", err)
	}
	if result.Outcome() != fetcher.OutcomeOther {
		t.Errorf("expected OutcomeOther for a 500, got %v", result.Outcome())
	}
	// Non-2xx is never retried: exactly one request should have been made.
	if requestCount != 1 {
		t.Errorf("expected exactly 1 request (no retry on status classification), got %d", requestCount)
	}
}

func TestHtmlFetcher_Fetch_TransportFailureRetries(t *testing.T) {
	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{Timeout: 50 * time.Millisecond})

	// An address nobody is listening on triggers a transport-level error on
	// every attempt, which is retryable and should exhaust into a RetryError.
	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, "http://127.0.0.1:1"), createTestRetryParam(2))

	if err == nil {
		t.Fatalf("expected error after retries exhausted, got nil (outcome %v)", result.Outcome())
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhausted retries, got %T", err)
	}

	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	errorEvt := sink.errorEvents[0]
	if errorEvt.packageName != "fetcher" {
		t.Errorf("expected package name 'fetcher', got %s", errorEvt.packageName)
	}
	if errorEvt.cause != metadata.CauseNetworkFailure {
		t.Errorf("expected cause CauseNetworkFailure, got %v", errorEvt.cause)
	}
}

func TestHtmlFetcher_Fetch_SuccessAfterRetry(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal("hijack failed:", err)
			}
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Success</html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	result, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(3))
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if requestCount != 2 {
		t.Errorf("expected 2 requests (1 fail + 1 success), got %d", requestCount)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	fetchEvt := sink.fetchEvents[0]
	if fetchEvt.retryCount != 1 {
		t.Errorf("expected retry count 1 (the attempt that landed), got %d", fetchEvt.retryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events (success case), got %d", len(sink.errorEvents))
	}
}

func TestHtmlFetcher_FetchResult_Accessors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Custom-Header", "test-value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Test</html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	fetchParam := newFetchParam(t, server.URL)
	result, err := f.Fetch(context.Background(), 0, fetchParam, createTestRetryParam(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resultURL := result.URL()
	wantURL := fetchParam.URL()
	if resultURL.String() != wantURL.String() {
		t.Errorf("expected URL %s, got %s", wantURL.String(), resultURL.String())
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected code %d, got %d", http.StatusOK, result.Code())
	}

	expectedSize := uint64(len("<html>Test</html>"))
	if result.SizeByte() != expectedSize {
		t.Errorf("expected size %d, got %d", expectedSize, result.SizeByte())
	}

	headers := result.Headers()
	if headers["Content-Type"] != "text/html; charset=utf-8" {
		t.Errorf("unexpected Content-Type header: %s", headers["Content-Type"])
	}
	if headers["X-Custom-Header"] != "test-value" {
		t.Errorf("unexpected X-Custom-Header: %s", headers["X-Custom-Header"])
	}
	if result.ContentType() != "text/html; charset=utf-8" {
		t.Errorf("unexpected ContentType(): %s", result.ContentType())
	}
}

func TestHtmlFetcher_MetadataSinkInterface(t *testing.T) {
	var _ metadata.MetadataSink = &mockMetadataSink{}
}

func TestHtmlFetcher_FetchError_Severity(t *testing.T) {
	err := &fetcher.FetchError{
		Message:   "test error",
		Retryable: true,
		Cause:     fetcher.ErrCauseNetworkFailure,
	}

	var classifiedErr failure.ClassifiedError = err
	if classifiedErr.Severity() != failure.SeverityRecoverable {
		t.Errorf("expected SeverityRecoverable for retryable error, got %v", classifiedErr.Severity())
	}

	nonRetryableErr := &fetcher.FetchError{
		Message:   "test error",
		Retryable: false,
		Cause:     fetcher.ErrCauseMalformedURL,
	}

	classifiedErr = nonRetryableErr
	if classifiedErr.Severity() != failure.SeverityFatal {
		t.Errorf("expected SeverityFatal for non-retryable error, got %v", classifiedErr.Severity())
	}
}

func TestHtmlFetcher_Fetch_ReadResponseBodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Fatal("hijack failed:", err)
		}
		defer conn.Close()

		headers := "HTTP/1.1 200 OK\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"Content-Length: 100\r\n" +
			"\r\n"
		if _, err := bufrw.WriteString(headers); err != nil {
			t.Fatal("write headers failed:", err)
		}
		if _, err := bufrw.WriteString("partial"); err != nil {
			t.Fatal("write body failed:", err)
		}
		bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	_, err := f.Fetch(context.Background(), 0, newFetchParam(t, server.URL), createTestRetryParam(1))
	if err == nil {
		t.Fatal("expected error for read response body failure, got nil")
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %T", err)
	}

	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	errorEvt := sink.errorEvents[0]
	if errorEvt.packageName != "fetcher" {
		t.Errorf("expected package name 'fetcher', got %s", errorEvt.packageName)
	}
	if errorEvt.cause != metadata.CauseNetworkFailure {
		t.Errorf("expected cause CauseNetworkFailure, got %v", errorEvt.cause)
	}
}

func TestHtmlFetcher_Fetch_Proxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>via proxy</html>"))
	}))
	defer upstream.Close()

	var proxied bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = true
		resp, err := http.Get(upstream.URL)
		if err != nil {
			t.Fatalf("proxy upstream request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		w.Header().Set("Content-Type", "text/html")
		w.Write(body)
	}))
	defer proxy.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{})

	u, _ := url.Parse(upstream.URL)
	fetchParam := fetcher.NewFetchParamWithProxy(*u, "test-user-agent", proxy.URL)

	result, err := f.Fetch(context.Background(), 0, fetchParam, createTestRetryParam(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !proxied {
		t.Error("expected request to be routed through the proxy")
	}
	if result.Outcome() != fetcher.OutcomeSuccess {
		t.Errorf("expected OutcomeSuccess, got %v", result.Outcome())
	}
}
