package analyzer

import "regexp"

// AnalyzeParam carries the compiled search configuration for one crawl run.
// Patterns are compiled once (by config/cli) and reused across every page;
// the analyzer never compiles a regexp itself.
type AnalyzeParam struct {
	StopPattern   *regexp.Regexp
	SearchRegex   []*regexp.Regexp
	SearchEmails  bool
	SearchMailtos bool

	// EmailNamePattern pairs a nearby human name with each found email
	// address when non-nil; nil means the email's own address is used as
	// its name. There is no built-in name heuristic - config.WithEmailNames
	// supplies the pattern, compiled by the caller that builds AnalyzeParam.
	EmailNamePattern *regexp.Regexp
	// EmailNamesWindowSet distinguishes "search the whole document" (false)
	// from "search only [current_line+Start, current_line+End]" (true):
	// Start and End both default to 0, which is itself a valid one-line
	// window, so a bare zero value cannot carry this distinction.
	EmailNamesWindowSet bool
	EmailNamesStart     int
	EmailNamesEnd       int
}

// RegexMatch is one "<url>:<line>: <match>" hit produced by a search_regex
// pattern.
type RegexMatch struct {
	URL   string
	Line  int
	Match string
}

// EmailMatch is one extracted email address, optionally paired with a name
// found in the configured line window.
type EmailMatch struct {
	Address string
	Name    string
}

// DiscoveredLink is a raw, not-yet-normalized recursion candidate collected
// from an <a href> or <img src> attribute.
type DiscoveredLink struct {
	RawURL string
	Tag    string
}

// AnalysisResult is everything one page's analysis produced. Skipped is set
// when the response's Content-Type is not HTML, in which case every other
// field is the zero value: the analyzer did no work.
type AnalysisResult struct {
	Skipped      bool
	StopMatched  bool
	RegexMatches []RegexMatch
	Emails       []EmailMatch
	Links        []DiscoveredLink
}
