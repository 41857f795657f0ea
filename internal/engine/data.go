package engine

import (
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/admission"
	"github.com/rohmanhakim/docs-crawler/internal/analyzer"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/outputs"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/rohmanhakim/docs-crawler/pkg/timeutil"
)

// Sleeper abstracts time.Sleep so tests can run the dispatch loop without
// waiting on real politeness delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Deps collects every capability the Controller drives. Each field is an
// already-constructed, already-configured dependency - the Controller wires
// them together, it does not build them.
type Deps struct {
	Frontier        *frontier.Frontier
	AdmissionFilter *admission.Filter
	Fetcher         fetcher.Fetcher
	Analyzer        *analyzer.Analyzer
	Outputs         *outputs.Outputs
	RateLimiter     limiter.RateLimiter
	MetadataSink    metadata.MetadataSink
	CrawlFinalizer  metadata.CrawlFinalizer
	Sleeper         Sleeper
}

// Param carries the resolved, per-run values the Controller needs beyond
// what Deps already wires: the compiled search configuration, the retry
// policy, and the user-agent/proxy pair every fetch uses.
type Param struct {
	MaxThreads        int
	UserAgent         string
	Proxy             string
	StopOn404         bool
	RequeueCloudflare bool
	AnalyzeParam      analyzer.AnalyzeParam
	RetryParam        retry.RetryParam
}

// NewRetryParam builds the RetryParam the Fetcher uses: a zero-growth
// backoff (multiplier 1.0, initial == max == fail_sleep) so every retry
// sleeps exactly fail_sleep, with no exponential curve. maxRetries is the
// "retry up to max_retries times" count, which pkg/retry.Retry counts as
// MaxAttempts total - so the first attempt plus maxRetries retries.
func NewRetryParam(baseDelay, jitter time.Duration, randomSeed int64, maxRetries int, failSleep time.Duration) retry.RetryParam {
	backoff := timeutil.NewBackoffParam(failSleep, 1.0, failSleep)
	return retry.NewRetryParam(baseDelay, jitter, randomSeed, maxRetries+1, backoff)
}

// Stats is the terminal summary the Controller hands to the CrawlFinalizer
// and returns to its caller once Run exits.
type Stats struct {
	PagesFetched int
	Errors       int
	AssetsSaved  int
	Duration     time.Duration
}

// workerOutcome is what a worker goroutine reports back to the Controller
// after processing one CrawlToken. It carries only what the dispatch loop
// needs to account for the run's terminal Stats - every other side effect
// (output writes, admission, requeue, soft-stop) already happened inside
// the worker before the outcome was sent.
type workerOutcome struct {
	fetched bool
	failed  bool
}
