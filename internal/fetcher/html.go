package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and an optional per-request proxy
- Classify the response into a FetchOutcome
- Record every attempt, successful or not, to the metadata sink

Fetch Semantics

- Only a transport-level failure (no response at all) is retried.
- A received response, whatever its status code or content type, is a
  terminal classification: see FetchOutcome.
- Content-Type gating and HTML parsing are not this package's concern.

The fetcher never parses content; it only returns bytes, headers, and a
classification.
*/

// cloudflareChallengeTitle is the page title Cloudflare's interstitial
// challenge page renders on a 403 response.
const cloudflareChallengeTitle = "Attention Required! | Cloudflare"

type HtmlFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
}

func NewHtmlFetcher(metadataSink metadata.MetadataSink) *HtmlFetcher {
	return &HtmlFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
	}
}

func (h *HtmlFetcher) Init(httpClient *http.Client) {
	h.httpClient = httpClient
}

func (h *HtmlFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HtmlFetcher.Fetch"
	startTime := time.Now()

	result, retryErr := h.fetchWithRetry(ctx, fetchParam, retryParam)

	duration := time.Since(startTime)

	if retryErr != nil {
		h.metadataSink.RecordFetch(fetchParam.fetchUrl.String(), 0, duration, "", retryParam.MaxAttempts, crawlDepth)
		h.recordError(callerMethod, fetchParam.fetchUrl, retryErr)
		return FetchResult{}, retryErr
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		result.Code(),
		duration,
		result.ContentType(),
		1,
		crawlDepth,
	)

	return result, nil
}

func (h *HtmlFetcher) recordError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseNetworkFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
		return
	}

	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HtmlFetcher) fetchWithRetry(ctx context.Context, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam)
	}

	result := retry.Retry(retryParam, fetchTask)
	if result.IsFailure() {
		return FetchResult{}, result.Err()
	}

	return result.Value(), nil
}

func (h *HtmlFetcher) performFetch(ctx context.Context, fetchParam FetchParam) (FetchResult, failure.ClassifiedError) {
	fetchUrl := fetchParam.fetchUrl

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to build request: %v", err),
			Retryable: false,
			Cause:     ErrCauseRequestBuildFailure,
		}
	}

	for key, value := range requestHeaders(fetchParam.userAgent) {
		req.Header.Set(key, value)
	}

	client := h.clientFor(fetchParam)

	resp, err := client.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	return FetchResult{
		url:       fetchUrl,
		body:      body,
		fetchedAt: time.Now(),
		outcome:   classifyOutcome(resp.StatusCode, body),
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}, nil
}

// clientFor returns the fetcher's shared client, or a one-off client
// routed through fetchParam.proxy when a per-request proxy was requested.
func (h *HtmlFetcher) clientFor(fetchParam FetchParam) *http.Client {
	if fetchParam.proxy == "" {
		return h.httpClient
	}

	proxyURL, err := url.Parse(fetchParam.proxy)
	if err != nil {
		return h.httpClient
	}

	return &http.Client{
		Timeout: h.httpClient.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
}

// classifyOutcome maps a received response to the one FetchOutcome it
// represents. Non-2xx is never retried - it is a terminal classification
// the Controller decides what to do with (stop-on-404, requeue-cloudflare).
func classifyOutcome(statusCode int, body []byte) FetchOutcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusNotFound:
		return OutcomeNotFound
	case statusCode == http.StatusForbidden:
		page := string(body)
		start := strings.Index(page, "<title")
		if start < 0 {
			return OutcomeOther
		}
		page = page[start:]
		open := strings.Index(page, ">")
		end := strings.Index(page, "</title>")
		if open >= 0 && end > open && strings.Contains(page[open+1:end], cloudflareChallengeTitle) {
			return OutcomeCloudflareChallenge
		}
		return OutcomeOther
	default:
		return OutcomeOther
	}
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
