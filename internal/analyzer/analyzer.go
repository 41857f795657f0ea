package analyzer

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

/*
Responsibilities

- Gate on Content-Type: only text/html is analyzed.
- Resolve character encoding (HTTP header vs. HTML-declared meta/charset).
- Run the fixed operation order from a page's body: stop-pattern scan,
  regex scan, email scan, link discovery.
- Never decide recursion policy itself - that is Admission's job.

The analyzer only reads content. It never fetches, never writes output,
and never mutates frontier/seen state.
*/

// emailRegex is the fixed email address pattern.
var emailRegex = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)

type Analyzer struct {
	metadataSink metadata.MetadataSink
}

func NewAnalyzer(metadataSink metadata.MetadataSink) *Analyzer {
	return &Analyzer{metadataSink: metadataSink}
}

// Analyze runs the full operation order over one page's response body.
// sourceURL is used only to stamp regex-match records; contentType gates
// whether any work happens at all.
func (a *Analyzer) Analyze(sourceURL url.URL, contentType string, body []byte, param AnalyzeParam, remainingDepth int) AnalysisResult {
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return AnalysisResult{Skipped: true}
	}

	result := AnalysisResult{}

	if param.StopPattern != nil && param.StopPattern.Match(body) {
		result.StopMatched = true
	}

	lines := bytes.Split(body, []byte("\n"))

	result.RegexMatches = scanRegex(sourceURL, lines, param.SearchRegex)
	result.Emails = a.scanEmails(lines, param)

	if remainingDepth > 0 {
		result.Links = a.discoverLinks(sourceURL, contentType, body)
	}

	return result
}

func scanRegex(sourceURL url.URL, lines [][]byte, patterns []*regexp.Regexp) []RegexMatch {
	var matches []RegexMatch
	for _, pattern := range patterns {
		for lineNum, line := range lines {
			if m := pattern.Find(line); m != nil {
				matches = append(matches, RegexMatch{
					URL:   sourceURL.String(),
					Line:  lineNum,
					Match: string(m),
				})
			}
		}
	}
	return matches
}

func (a *Analyzer) scanEmails(lines [][]byte, param AnalyzeParam) []EmailMatch {
	if !param.SearchEmails && !param.SearchMailtos {
		return nil
	}

	pattern := emailRegex
	if param.SearchMailtos {
		pattern = regexp.MustCompile(`mailto:\s*` + emailRegex.String())
	}

	var matches []EmailMatch
	for lineNum, line := range lines {
		for _, raw := range pattern.FindAll(line, -1) {
			address := strings.TrimSpace(strings.TrimPrefix(string(raw), "mailto:"))

			name := address
			if param.EmailNamePattern != nil {
				name = findEmailName(lines, lineNum, param, address)
			}

			matches = append(matches, EmailMatch{Address: address, Name: name})
		}
	}
	return matches
}

// findEmailName searches for param.EmailNamePattern either globally across
// all lines (when no window is configured) or within [line+start,
// line+end], clamped to the document bounds. EmailNamesWindowSet carries
// that distinction explicitly, since a configured (0, 0) window - "this
// line only" - is indistinguishable from an unset one by zero value alone.
func findEmailName(lines [][]byte, currentLine int, param AnalyzeParam, fallback string) string {
	startLine, endLine := 0, len(lines)-1
	if param.EmailNamesWindowSet {
		startLine = currentLine + param.EmailNamesStart
		endLine = currentLine + param.EmailNamesEnd
		if startLine < 0 {
			startLine = 0
		}
		if endLine > len(lines)-1 {
			endLine = len(lines) - 1
		}
	}

	for i := startLine; i <= endLine && i < len(lines); i++ {
		if m := param.EmailNamePattern.FindSubmatch(lines[i]); m != nil {
			if len(m) > 1 && len(m[1]) > 0 {
				return string(m[1])
			}
			return string(m[0])
		}
	}
	return fallback
}

// discoverLinks parses the body as HTML, resolving its declared character
// encoding first, and collects every <a href> and <img src> candidate. A
// parse failure degrades to zero links rather than failing the whole
// analysis - malformed HTML elsewhere in the page shouldn't block the
// scans that already ran.
func (a *Analyzer) discoverLinks(sourceURL url.URL, contentType string, body []byte) []DiscoveredLink {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		a.metadataSink.RecordError(
			time.Now(),
			"analyzer",
			"Analyzer.discoverLinks",
			metadata.CauseContentInvalid,
			fmt.Sprintf("failed to parse HTML for link discovery: %v", err),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, sourceURL.String())},
		)
		return nil
	}

	var links []DiscoveredLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, DiscoveredLink{RawURL: href, Tag: "a"})
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			links = append(links, DiscoveredLink{RawURL: src, Tag: "img"})
		}
	})

	return links
}
