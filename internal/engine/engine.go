package engine

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

/*
Controller Responsibilities
- Drive the frontier-to-pool dispatch loop.
- Own soft-stop and hard-stop: the only two ways a run ends early.
- Wire one fetched page through Fetcher -> Analyzer -> (Outputs ∥ Admission).

It knows nothing about flags, config files, or seed-string templating -
those are the CLI's job; the Controller receives a fully resolved Deps/Param
pair and a Frontier already seeded with the run's starting URLs.
*/

// Controller is the sole writer to its worker channel and the sole reader
// of its result channel - every other piece of shared state (pending/seen,
// output sinks) has its own lock, owned by the package that holds it.
type Controller struct {
	deps  Deps
	param Param

	// stopped is the soft-stop latch: true means "drain pending, admit no
	// more links, dispatch no more work", but tasks already handed to a
	// worker still run to completion.
	stopped atomic.Bool
	// running additionally gates the dispatch loop itself, so a pending
	// insertion racing with a hard-stop cannot revive it.
	running atomic.Bool
	// stopPatternReached is the monotonic false->true latch: at most one
	// transition, safe under concurrent readers once set.
	stopPatternReached atomic.Bool

	pagesFetched atomic.Int64
	errorsCount  atomic.Int64
	assetsSaved  atomic.Int64
}

// NewController builds a Controller ready to Run. deps.Frontier must already
// hold the run's seed URLs.
func NewController(deps Deps, param Param) *Controller {
	if deps.Sleeper == nil {
		deps.Sleeper = realSleeper{}
	}
	if deps.MetadataSink == nil {
		deps.MetadataSink = &metadata.NoopSink{}
	}
	return &Controller{deps: deps, param: param}
}

// StopPatternReached reports whether the configured stop_pattern has ever
// matched a fetched body during this run.
func (c *Controller) StopPatternReached() bool {
	return c.stopPatternReached.Load()
}

// SoftStop implements a soft stop: pending is atomically drained to empty
// (so nothing not yet handed to a worker ever starts) and no further link
// discovers anything new, but tasks already running finish normally.
// Idempotent.
func (c *Controller) SoftStop() {
	c.stopped.Store(true)
	c.deps.Frontier.Drain()
}

// Stop implements a hard stop: soft-stop plus running=false, so a
// pending-insertion race during shutdown cannot resurrect the dispatch
// loop.
func (c *Controller) Stop() {
	c.SoftStop()
	c.running.Store(false)
}

// Run drives the dispatch loop until pending is empty and no task is
// outstanding, then returns the terminal Stats. ctx governs the underlying
// HTTP requests; cancelling it does not by itself stop the loop (that's
// SoftStop/Stop) but it does abort in-flight fetches.
func (c *Controller) Run(ctx context.Context) Stats {
	startedAt := time.Now()
	c.running.Store(true)

	workerCount := c.param.MaxThreads
	if workerCount < 1 {
		workerCount = 1
	}
	capacity := workerCount + 2

	workCh := make(chan frontier.CrawlToken)
	resultCh := make(chan workerOutcome, capacity)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for token := range workCh {
				resultCh <- c.process(ctx, token)
			}
		}()
	}

	outstanding := 0
	for c.running.Load() {
		c.fill(workCh, &outstanding, capacity)

		if outstanding == 0 {
			if c.stopped.Load() || c.deps.Frontier.PendingLen() == 0 {
				break
			}
			continue
		}

		c.accountFor(<-resultCh)
		outstanding--
		outstanding -= c.drainReady(resultCh)
	}

	// A hard-stop or the running-false path above can leave workers still
	// in flight; drain their results before tearing down so no worker ever
	// blocks forever sending to an abandoned resultCh.
	for outstanding > 0 {
		c.accountFor(<-resultCh)
		outstanding--
	}

	close(workCh)
	wg.Wait()

	stats := Stats{
		PagesFetched: int(c.pagesFetched.Load()),
		Errors:       int(c.errorsCount.Load()),
		AssetsSaved:  int(c.assetsSaved.Load()),
		Duration:     time.Since(startedAt),
	}
	if c.deps.CrawlFinalizer != nil {
		c.deps.CrawlFinalizer.RecordFinalCrawlStats(stats.PagesFetched, stats.Errors, stats.AssetsSaved, stats.Duration)
	}
	return stats
}

// fill pulls up to capacity-outstanding eligible FrontierItems and hands
// each to a worker. It stops early, leaving pending untouched, as soon as
// running/stopped flips or Dequeue runs dry.
func (c *Controller) fill(workCh chan<- frontier.CrawlToken, outstanding *int, capacity int) {
	for *outstanding < capacity && c.running.Load() && !c.stopped.Load() {
		token, ok := c.deps.Frontier.Dequeue()
		if !ok {
			return
		}
		workCh <- token
		*outstanding++
	}
}

// drainReady consumes every already-completed result without blocking and
// returns how many it consumed.
func (c *Controller) drainReady(resultCh <-chan workerOutcome) int {
	drained := 0
	for {
		select {
		case res := <-resultCh:
			c.accountFor(res)
			drained++
		default:
			return drained
		}
	}
}

func (c *Controller) accountFor(res workerOutcome) {
	if res.fetched {
		c.pagesFetched.Add(1)
	}
	if res.failed {
		c.errorsCount.Add(1)
	}
}

// process runs one CrawlToken through Fetch -> Analyze -> (Outputs ∥
// Admission). Every exception a worker can hit is consumed here - nothing
// propagates out to the dispatch loop.
func (c *Controller) process(ctx context.Context, token frontier.CrawlToken) workerOutcome {
	sourceURL := token.URL()

	if c.deps.Outputs.ShouldSkipFetch(sourceURL) {
		return workerOutcome{}
	}

	host := sourceURL.Hostname()
	if c.deps.RateLimiter != nil {
		if delay := c.deps.RateLimiter.ResolveDelay(host); delay > 0 {
			c.deps.Sleeper.Sleep(delay)
		}
	}

	fetchParam := c.buildFetchParam(sourceURL)
	result, err := c.deps.Fetcher.Fetch(ctx, token.Depth(), fetchParam, c.param.RetryParam)
	if c.deps.RateLimiter != nil {
		c.deps.RateLimiter.MarkLastFetchAsNow(host)
	}
	if err != nil {
		return workerOutcome{failed: true}
	}

	switch result.Outcome() {
	case fetcher.OutcomeNotFound:
		if c.param.StopOn404 {
			c.SoftStop()
		}
		return workerOutcome{}
	case fetcher.OutcomeCloudflareChallenge:
		if c.param.RequeueCloudflare {
			c.deps.Frontier.Requeue(token)
		}
		return workerOutcome{}
	case fetcher.OutcomeOther:
		return workerOutcome{}
	}

	if err := c.deps.Outputs.RecordURL(sourceURL); err != nil {
		c.errorsCount.Add(1)
	}

	if _, err := c.deps.Outputs.MaybeDownload(sourceURL, result.Body()); err != nil {
		c.errorsCount.Add(1)
	}

	c.analyze(sourceURL, result, token.Depth())

	return workerOutcome{fetched: true}
}

// analyze runs the HTML analyzer and fans its findings out to Outputs and
// Admission. Recursion is skipped once stopped is latched, whether that
// happened from this page's own stop-pattern match or from any other
// worker.
func (c *Controller) analyze(sourceURL url.URL, result fetcher.FetchResult, depth int) {
	analysis := c.deps.Analyzer.Analyze(sourceURL, result.ContentType(), result.Body(), c.param.AnalyzeParam, depth)
	if analysis.Skipped {
		return
	}

	if analysis.StopMatched && c.stopPatternReached.CompareAndSwap(false, true) {
		c.SoftStop()
	}

	for _, match := range analysis.RegexMatches {
		if err := c.deps.Outputs.RecordRegexMatch(match); err != nil {
			c.errorsCount.Add(1)
		}
	}
	for _, email := range analysis.Emails {
		if err := c.deps.Outputs.RecordEmail(sourceURL, email); err != nil {
			c.errorsCount.Add(1)
		}
	}

	if c.stopped.Load() {
		return
	}
	for _, link := range analysis.Links {
		c.deps.AdmissionFilter.Admit(link.RawURL, sourceURL, depth)
	}
}

func (c *Controller) buildFetchParam(sourceURL url.URL) fetcher.FetchParam {
	if c.param.Proxy != "" {
		return fetcher.NewFetchParamWithProxy(sourceURL, c.param.UserAgent, c.param.Proxy)
	}
	return fetcher.NewFetchParam(sourceURL, c.param.UserAgent)
}
