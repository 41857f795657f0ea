package metadata

import (
	"log/slog"
	"sync"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the observability boundary every pipeline package writes
// through. It never returns an error and must never block crawl progress:
// a Recorder that cannot log still has to let the crawl continue.
type MetadataSink interface {
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute)
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int)
}

// CrawlFinalizer records the one terminal summary a Controller emits after
// a crawl stops, successfully or not.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// NoopSink discards everything. Useful for tests and for callers embedding
// this module as a library that don't want crawl observability.
type NoopSink struct{}

func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)               {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)                       {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)                       {}

// Recorder is the run-level observability record for a crawl. It implements
// both MetadataSink and CrawlFinalizer.
//
// No third-party structured-logging library appears anywhere in this
// module's dependency pack, so Recorder logs through the standard
// library's log/slog; this is a deliberate ambient-stack choice, not an
// oversight.
//
// Recorder is safe for concurrent use: the worker pool calls RecordFetch
// and RecordError from many goroutines at once.
type Recorder struct {
	mu sync.Mutex

	logger *slog.Logger

	fetchEvents      []FetchEvent
	assetFetchEvents []FetchEvent
	errorRecords     []ErrorRecord
	artifacts        []ArtifactRecord
	finalStats       crawlStats
	finalized        bool
}

// NewRecorder builds a Recorder that logs through logger. A nil logger
// falls back to slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	rec := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: details,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	r.mu.Lock()
	r.errorRecords = append(r.errorRecords, rec)
	r.mu.Unlock()

	r.logger.Warn("crawl error",
		slog.String("package", packageName),
		slog.String("action", action),
		slog.Int("cause", int(cause)),
		slog.String("details", details),
		slog.Any("attrs", attrsToArgs(attrs)),
	)
}

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	evt := FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	}

	r.mu.Lock()
	r.fetchEvents = append(r.fetchEvents, evt)
	r.mu.Unlock()

	r.logger.Info("fetch",
		slog.String("url", fetchUrl),
		slog.Int("status", httpStatus),
		slog.Duration("duration", duration),
		slog.String("content_type", contentType),
		slog.Int("retries", retryCount),
		slog.Int("depth", crawlDepth),
	)
}

func (r *Recorder) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
	evt := FetchEvent{
		fetchUrl:   fetchUrl,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	}

	r.mu.Lock()
	r.assetFetchEvents = append(r.assetFetchEvents, evt)
	r.mu.Unlock()

	r.logger.Info("asset fetch",
		slog.String("url", fetchUrl),
		slog.Int("status", httpStatus),
		slog.Duration("duration", duration),
		slog.Int("retries", retryCount),
	)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	rec := ArtifactRecord{
		kind:       kind,
		path:       path,
		observedAt: time.Now(),
		attrs:      attrs,
	}

	r.mu.Lock()
	r.artifacts = append(r.artifacts, rec)
	r.mu.Unlock()

	r.logger.Debug("artifact written",
		slog.String("kind", kind.String()),
		slog.String("path", path),
		slog.Any("attrs", attrsToArgs(attrs)),
	)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.mu.Lock()
	r.finalStats = crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  duration.Milliseconds(),
	}
	r.finalized = true
	r.mu.Unlock()

	r.logger.Info("crawl finished",
		slog.Int("total_pages", totalPages),
		slog.Int("total_errors", totalErrors),
		slog.Int("total_assets", totalAssets),
		slog.Duration("duration", duration),
	)
}

func (r *Recorder) FetchEvents() []FetchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FetchEvent, len(r.fetchEvents))
	copy(out, r.fetchEvents)
	return out
}

func (r *Recorder) AssetFetchEvents() []FetchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FetchEvent, len(r.assetFetchEvents))
	copy(out, r.assetFetchEvents)
	return out
}

func (r *Recorder) ErrorRecords() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.errorRecords))
	copy(out, r.errorRecords)
	return out
}

func (r *Recorder) Artifacts() []ArtifactRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ArtifactRecord, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// Finalized reports whether RecordFinalCrawlStats has been called.
func (r *Recorder) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

func (r *Recorder) TotalPages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalStats.totalPages
}

func (r *Recorder) TotalErrors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalStats.totalErrors
}

func (r *Recorder) TotalAssets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalStats.totalAssets
}

func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.finalStats.durationMs) * time.Millisecond
}

func attrsToArgs(attrs []Attribute) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, string(a.Key)+"="+a.Value)
	}
	return out
}
