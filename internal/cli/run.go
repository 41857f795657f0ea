package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rohmanhakim/docs-crawler/internal/admission"
	"github.com/rohmanhakim/docs-crawler/internal/analyzer"
	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/engine"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/outputs"
	"github.com/rohmanhakim/docs-crawler/internal/uafile"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
)

// runCrawl builds every dependency a Controller needs from cfg and drives
// one full crawl to completion, printing the terminal Stats summary.
func runCrawl(cfg config.Config) error {
	logger := newLogger(cfg)
	recorder := metadata.NewRecorder(logger)

	fr := frontier.NewFrontier(cfg.DepthFirst(), cfg.MaxDepth())
	seeds, err := expandSeeds(cfg.Seeds(), cfg.PageRanges())
	if err != nil {
		return fmt.Errorf("expanding seeds: %w", err)
	}
	for _, raw := range seeds {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", raw, err)
		}
		fr.Submit(*u, depthPtrForSeed())
	}

	recursePattern, err := admission.CompileAnchored(cfg.RecursePattern())
	if err != nil {
		return fmt.Errorf("compiling --recurse-pattern: %w", err)
	}
	recurseIgnore, err := admission.CompileAnchored(cfg.RecurseIgnorePattern())
	if err != nil {
		return fmt.Errorf("compiling --recurse-ignore-pattern: %w", err)
	}
	admissionParam := admission.Param{
		RecursePattern:       recursePattern,
		RecurseIgnorePattern: recurseIgnore,
		NoParent:             cfg.NoParent(),
		CrossDomains:         cfg.CrossDomains(),
		Domains:              admission.DomainSet(cfg.Domains()),
	}
	admissionFilter := admission.NewFilter(fr, admissionParam)

	analyzeParam, err := buildAnalyzeParam(cfg)
	if err != nil {
		return err
	}

	userAgent, err := resolveUserAgent(cfg)
	if err != nil {
		return err
	}

	htmlFetcher := fetcher.NewHtmlFetcher(recorder)
	htmlFetcher.Init(&http.Client{})

	downloadRegexes, err := outputs.CompileDownloadRegexes(cfg.DownloadRegexes())
	if err != nil {
		return fmt.Errorf("compiling --download-regex: %w", err)
	}
	downloadParam := outputs.DownloadParam{
		Extensions: cfg.DownloadExtensions(),
		Regexes:    downloadRegexes,
		Within:     cfg.DownloadWithin(),
	}

	urlWriter, err := outputs.NewFileLineWriter(cfg.OutURLs())
	if err != nil {
		return fmt.Errorf("opening --out-urls: %w", err)
	}
	regexWriter, err := outputs.NewFileLineWriter(cfg.OutRegex())
	if err != nil {
		return fmt.Errorf("opening --out-regex: %w", err)
	}
	emailWriter, err := outputs.NewFileLineWriter(cfg.OutEmails())
	if err != nil {
		return fmt.Errorf("opening --out-emails: %w", err)
	}

	out := outputs.NewOutputs(
		urlWriter, regexWriter, emailWriter,
		outputs.MirroredBlobWriter{},
		cfg.OutDir(),
		downloadParam,
		recorder,
	)

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	stopPatternRe, err := compileOptional(cfg.StopPattern())
	if err != nil {
		return fmt.Errorf("compiling --stop-pattern: %w", err)
	}

	controller := engine.NewController(
		engine.Deps{
			Frontier:        fr,
			AdmissionFilter: admissionFilter,
			Fetcher:         htmlFetcher,
			Analyzer:        analyzer.NewAnalyzer(recorder),
			Outputs:         out,
			RateLimiter:     rateLimiter,
			MetadataSink:    recorder,
			CrawlFinalizer:  recorder,
		},
		engine.Param{
			MaxThreads:        cfg.MaxThreads(),
			UserAgent:         userAgent,
			Proxy:             cfg.Proxy(),
			StopOn404:         cfg.StopOn404(),
			RequeueCloudflare: cfg.RequeueCloudflare(),
			AnalyzeParam:      withStopPattern(analyzeParam, stopPatternRe),
			RetryParam: engine.NewRetryParam(
				cfg.BaseDelay(), cfg.Jitter(), cfg.RandomSeed(), cfg.MaxRetries(), cfg.FailSleep(),
			),
		},
	)

	stats := controller.Run(context.Background())
	fmt.Printf("Pages fetched: %d\n", stats.PagesFetched)
	fmt.Printf("Errors: %d\n", stats.Errors)
	fmt.Printf("Duration: %s\n", stats.Duration)
	return nil
}

// depthPtrForSeed returns nil, which Frontier.Submit maps to the configured
// max depth.
func depthPtrForSeed() *int {
	return nil
}

func withStopPattern(param analyzer.AnalyzeParam, stopPattern *regexp.Regexp) analyzer.AnalyzeParam {
	param.StopPattern = stopPattern
	return param
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// buildAnalyzeParam compiles every search-related regex once, up front, the
// way analyzer.AnalyzeParam's own doc comment requires.
func buildAnalyzeParam(cfg config.Config) (analyzer.AnalyzeParam, error) {
	searchRegex := make([]*regexp.Regexp, 0, len(cfg.SearchRegex()))
	for _, p := range cfg.SearchRegex() {
		re, err := regexp.Compile(p)
		if err != nil {
			return analyzer.AnalyzeParam{}, fmt.Errorf("compiling --search-regex %q: %w", p, err)
		}
		searchRegex = append(searchRegex, re)
	}

	emailNamePattern, err := compileOptional(cfg.EmailNames())
	if err != nil {
		return analyzer.AnalyzeParam{}, fmt.Errorf("compiling --email-names: %w", err)
	}

	return analyzer.AnalyzeParam{
		SearchRegex:         searchRegex,
		SearchEmails:        cfg.SearchEmails(),
		SearchMailtos:       cfg.SearchMailtos(),
		EmailNamePattern:    emailNamePattern,
		EmailNamesWindowSet: cfg.EmailNamesLinesSet(),
		EmailNamesStart:     cfg.EmailNamesLinesStart(),
		EmailNamesEnd:       cfg.EmailNamesLinesEnd(),
	}, nil
}

// resolveUserAgent picks --user-agent when set, otherwise draws one at
// random from --user-agent-file, otherwise falls back to config's default.
func resolveUserAgent(cfg config.Config) (string, error) {
	if cfg.UserAgent() != "" && cfg.UserAgent() != "docs-crawler/1.0" {
		return cfg.UserAgent(), nil
	}
	if cfg.UserAgentFile() != "" {
		return uafile.LoadAndPick(cfg.UserAgentFile(), cfg.RandomSeed())
	}
	return cfg.UserAgent(), nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug() {
		level = slog.LevelDebug
	}
	out := os.Stderr
	if cfg.OutLog() != "" {
		if f, err := os.OpenFile(cfg.OutLog(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// expandSeeds expands every "{page}" placeholder in seeds against
// pageRanges ("1-2,5,6-10" syntax), preserving seeds that contain no
// placeholder unchanged.
func expandSeeds(seeds []string, pageRanges []string) ([]string, error) {
	hasPlaceholder := false
	for _, s := range seeds {
		if strings.Contains(s, "{page}") {
			hasPlaceholder = true
			break
		}
	}
	if !hasPlaceholder {
		return seeds, nil
	}

	pages, err := expandPageRanges(pageRanges)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return seeds, nil
	}

	expanded := make([]string, 0, len(seeds)*len(pages))
	for _, s := range seeds {
		if !strings.Contains(s, "{page}") {
			expanded = append(expanded, s)
			continue
		}
		for _, p := range pages {
			expanded = append(expanded, strings.ReplaceAll(s, "{page}", strconv.Itoa(p)))
		}
	}
	return expanded, nil
}

// expandPageRanges parses "1-2,5,6-10" style range lists into a flat,
// duplicate-free page list, in the order each page first appears.
func expandPageRanges(ranges []string) ([]int, error) {
	seen := make(map[int]bool)
	var pages []int
	for _, group := range ranges {
		for _, part := range strings.Split(group, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid page range %q: %w", part, err)
			}
			end := start
			if len(bounds) == 2 {
				end, err = strconv.Atoi(strings.TrimSpace(bounds[1]))
				if err != nil {
					return nil, fmt.Errorf("invalid page range %q: %w", part, err)
				}
			}
			for p := start; p <= end; p++ {
				if !seen[p] {
					seen[p] = true
					pages = append(pages, p)
				}
			}
		}
	}
	return pages, nil
}
