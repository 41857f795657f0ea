package fetcher

import (
	"net/url"
	"time"
)

// FetchOutcome classifies a completed HTTP response. It is produced after
// a response is received and is never itself retried: only a
// transport-level failure (no response at all) goes through retry.
type FetchOutcome int

const (
	// OutcomeSuccess is a 2xx response.
	OutcomeSuccess FetchOutcome = iota
	// OutcomeNotFound is a 404 response.
	OutcomeNotFound
	// OutcomeCloudflareChallenge is a 403 whose body's <title> matches the
	// Cloudflare challenge identifier.
	OutcomeCloudflareChallenge
	// OutcomeOther is any other status code, including a plain 403.
	OutcomeOther
)

func (o FetchOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeCloudflareChallenge:
		return "cloudflare_challenge"
	default:
		return "other"
	}
}

// HTTP boundary

type FetchParam struct {
	fetchUrl  url.URL
	userAgent string
	proxy     string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

func NewFetchParamWithProxy(fetchUrl url.URL, userAgent string, proxy string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
		proxy:     proxy,
	}
}

func (p FetchParam) URL() url.URL {
	return p.fetchUrl
}

type FetchResult struct {
	url       url.URL
	body      []byte
	meta      ResponseMeta
	fetchedAt time.Time
	outcome   FetchOutcome
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	return uint64(len(f.body))
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

func (f *FetchResult) Outcome() FetchOutcome {
	return f.outcome
}

func (f *FetchResult) ContentType() string {
	if ct, ok := f.meta.responseHeaders["Content-Type"]; ok {
		return ct
	}
	return ""
}

type ResponseMeta struct {
	statusCode      int
	responseHeaders map[string]string
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	url url.URL,
	body []byte,
	statusCode int,
	outcome FetchOutcome,
	responseHeaders map[string]string,
	fetchedAt time.Time,
) FetchResult {
	return FetchResult{
		url:       url,
		body:      body,
		fetchedAt: fetchedAt,
		outcome:   outcome,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}
