package cmd

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	seedFiles     []string
	recurse       bool
	maxDepth      int
	maxRetries    int
	pageRanges    []string
	proxy         string
	userAgent     string
	userAgentFile string
	maxThreads    int
	stopPattern   string
	stopOn404     bool
	requeueCF     bool
	recursePat    []string
	recurseIgnore []string
	crossDomains  bool
	domains       []string
	noParent      bool
	depthFirst    bool

	downloadExtensions []string
	downloadRegexes    []string
	downloadWithin     []string

	searchRegex     []string
	searchEmails    bool
	searchMailtos   bool
	emailNames      string
	emailNamesLines string

	outDir    string
	outURLs   string
	outEmails string
	outRegex  string
	outLog    string

	debug bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docs-crawler [urls...]",
	Short: "A local-only concurrent web spider.",
	Long: `docs-crawler is a CLI application that crawls websites breadth-first
(or depth-first) from a set of seed URLs, honoring scope and recursion rules,
and writes discovered URLs, regex matches, emails, and downloaded files to
configured output sinks.`,
	Run: func(cmd *cobra.Command, args []string) {
		seeds, err := collectSeeds(args, seedFiles)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		if len(seeds) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no URLs supplied. Pass seed URLs as positional arguments or via -f/--file.")
			cmd.Usage()
			os.Exit(1)
		}

		cfg, err := InitConfigWithError(seeds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		if cfg.OutURLs() == "" && cfg.OutEmails() == "" && cfg.OutRegex() == "" && cfg.OutDir() == "" {
			fmt.Fprintln(os.Stderr, "Error: no output method selected.")
			os.Exit(1)
		}

		for _, pattern := range cfg.SearchRegex() {
			if _, err := regexp.Compile(pattern); err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid --search-regex %q: %s\n", pattern, err)
				os.Exit(1)
			}
		}

		if err := runCrawl(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

// collectSeeds merges positional URL arguments with the contents of every
// -f/--file (newline-delimited) in the order they were given.
func collectSeeds(positional []string, files []string) ([]string, error) {
	seeds := append([]string(nil), positional...)
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading seed file %q: %w", path, err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				seeds = append(seeds, line)
			}
		}
	}
	return seeds, nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&cfgFile, "config-file", "", "load all options from a JSON config file")
	flags.StringArrayVarP(&seedFiles, "file", "f", nil, "read newline-delimited seed URLs from a file (repeatable)")

	flags.BoolVarP(&recurse, "recurse", "r", false, "enable recursive crawling beyond the seed URLs")
	flags.IntVarP(&maxDepth, "max-depth", "d", 3, "maximum link depth from a seed URL")
	flags.IntVarP(&maxRetries, "max-retries", "m", 0, "maximum fetch retries on transport failure")
	flags.StringArrayVarP(&pageRanges, "pages", "p", nil, "integer ranges to expand {page} in seeds, e.g. 1-2,5,6-10 (repeatable)")
	flags.StringVar(&proxy, "proxy", "", "proxy URL for outgoing HTTP requests")
	flags.StringVarP(&userAgent, "user-agent", "A", "", "user agent string for HTTP requests")
	flags.StringVar(&userAgentFile, "user-agent-file", "", "newline-delimited user agent list; one is picked at random per run")
	flags.IntVarP(&maxThreads, "max-threads", "t", 10, "maximum concurrent crawl workers")
	flags.StringVarP(&stopPattern, "stop-pattern", "s", "", "abort the crawl when this regex matches a fetched page's body")
	flags.BoolVar(&stopOn404, "stop-on-404", false, "abort the crawl on the first 404 response")
	flags.BoolVar(&requeueCF, "requeue-cloudflare", false, "re-enqueue URLs that receive a Cloudflare challenge page instead of discarding them")
	flags.StringArrayVar(&recursePat, "recurse-pattern", nil, "only recurse into links matching this regex (repeatable)")
	flags.StringArrayVar(&recurseIgnore, "recurse-ignore-pattern", nil, "never recurse into links matching this regex (repeatable)")
	flags.BoolVar(&crossDomains, "cross-domains", false, "allow recursion to hosts outside the seed hosts and --domains")
	flags.StringArrayVar(&domains, "domains", nil, "additional allowed hostnames beyond the seed hosts (repeatable)")
	flags.BoolVarP(&noParent, "no-parent", "n", false, "never recurse to a URL above a seed's starting path")
	flags.BoolVar(&depthFirst, "depth-first", false, "dispatch discovered links depth-first instead of breadth-first")

	flags.StringArrayVar(&downloadExtensions, "download-extension", nil, "download files whose extension matches (repeatable)")
	flags.StringArrayVar(&downloadRegexes, "download-regex", nil, "download files whose URL matches this regex (repeatable)")
	flags.StringArrayVar(&downloadWithin, "download-within", nil, "only download files under this URL path prefix (repeatable)")

	flags.StringArrayVar(&searchRegex, "search-regex", nil, "record lines matching this regex from fetched HTML (repeatable)")
	flags.BoolVar(&searchEmails, "search-emails", false, "record email addresses found in fetched HTML")
	flags.BoolVar(&searchMailtos, "search-mailtos", false, "also scan mailto: links when searching for emails")
	flags.StringVar(&emailNames, "email-names", "", "regex for a human name to pair with a nearby found email")
	flags.StringVar(&emailNamesLines, "email-names-lines", "", `search window around a matched email, "start [end]" (end defaults to start)`)

	flags.StringVarP(&outDir, "out-dir", "o", "", "mirror downloaded files under this directory")
	flags.StringVar(&outURLs, "out-urls", "", "append every fetched URL to this file")
	flags.StringVar(&outEmails, "out-emails", "", "append found emails to this file")
	flags.StringVar(&outRegex, "out-regex", "", "append search-regex matches to this file")
	flags.StringVar(&outLog, "out-log", "", "write the run log to this file instead of stderr")

	flags.BoolVarP(&debug, "debug", "D", false, "enable verbose debug logging")
}

// InitConfig builds a config.Config from flags/config-file, exiting on error.
// seeds must contain at least one URL or seed template string.
func InitConfig(seeds []string) config.Config {
	cfg, err := InitConfigWithError(seeds)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError builds a config.Config from --config-file, if given, or
// from individual flags otherwise. Returns any error instead of exiting, to
// make testing error paths straightforward.
func InitConfigWithError(seeds []string) (config.Config, error) {
	if len(seeds) == 0 {
		return config.Config{}, fmt.Errorf("%w: seeds cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	builder := config.WithDefault(seeds)

	effectiveMaxDepth := maxDepth
	if !recurse {
		effectiveMaxDepth = 0
	}
	builder = builder.WithMaxDepth(effectiveMaxDepth)

	if len(pageRanges) > 0 {
		builder = builder.WithPageRanges(pageRanges)
	}
	if maxRetries > 0 {
		builder = builder.WithMaxRetries(maxRetries)
	}
	if proxy != "" {
		builder = builder.WithProxy(proxy)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}
	if userAgentFile != "" {
		builder = builder.WithUserAgentFile(userAgentFile)
	}
	if maxThreads > 0 {
		builder = builder.WithMaxThreads(maxThreads)
	}
	if stopPattern != "" {
		builder = builder.WithStopPattern(stopPattern)
	}
	builder = builder.WithStopOn404(stopOn404)
	builder = builder.WithRequeueCloudflare(requeueCF)
	if len(recursePat) > 0 {
		builder = builder.WithRecursePattern(recursePat)
	}
	if len(recurseIgnore) > 0 {
		builder = builder.WithRecurseIgnorePattern(recurseIgnore)
	}
	builder = builder.WithCrossDomains(crossDomains)
	if len(domains) > 0 {
		builder = builder.WithDomains(domains)
	}
	builder = builder.WithNoParent(noParent)
	builder = builder.WithDepthFirst(depthFirst)

	if len(downloadExtensions) > 0 {
		builder = builder.WithDownloadExtensions(downloadExtensions)
	}
	if len(downloadRegexes) > 0 {
		builder = builder.WithDownloadRegexes(downloadRegexes)
	}
	if len(downloadWithin) > 0 {
		builder = builder.WithDownloadWithin(downloadWithin)
	}

	if len(searchRegex) > 0 {
		builder = builder.WithSearchRegex(searchRegex)
	}
	builder = builder.WithSearchEmails(searchEmails)
	builder = builder.WithSearchMailtos(searchMailtos)
	if emailNames != "" {
		builder = builder.WithEmailNames(emailNames)
	}
	if emailNamesLines != "" {
		start, end, err := parseEmailNamesLines(emailNamesLines)
		if err != nil {
			return config.Config{}, err
		}
		builder = builder.WithEmailNamesLines(start, end)
	}

	if outDir != "" {
		builder = builder.WithOutDir(outDir)
	}
	if outURLs != "" {
		builder = builder.WithOutURLs(outURLs)
	}
	if outEmails != "" {
		builder = builder.WithOutEmails(outEmails)
	}
	if outRegex != "" {
		builder = builder.WithOutRegex(outRegex)
	}
	if outLog != "" {
		builder = builder.WithOutLog(outLog)
	}

	builder = builder.WithDebug(debug)

	cfg, err := builder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// parseEmailNamesLines parses "start" or "start end" into a (start, end)
// pair. A missing end collapses to start.
func parseEmailNamesLines(raw string) (int, int, error) {
	var start, end int
	n, err := fmt.Sscanf(raw, "%d %d", &start, &end)
	if err == nil && n == 2 {
		return start, end, nil
	}
	n, err = fmt.Sscanf(raw, "%d", &start)
	if err != nil || n != 1 {
		return 0, 0, fmt.Errorf("invalid --email-names-lines value %q", raw)
	}
	return start, start, nil
}

// ResetFlags restores every package-level flag variable to its registered
// default.
// Used between test cases that invoke InitConfigWithError directly.
func ResetFlags() {
	cfgFile = ""
	seedFiles = nil
	recurse = false
	maxDepth = 3
	maxRetries = 0
	pageRanges = nil
	proxy = ""
	userAgent = ""
	userAgentFile = ""
	maxThreads = 10
	stopPattern = ""
	stopOn404 = false
	requeueCF = false
	recursePat = nil
	recurseIgnore = nil
	crossDomains = false
	domains = nil
	noParent = false
	depthFirst = false
	downloadExtensions = nil
	downloadRegexes = nil
	downloadWithin = nil
	searchRegex = nil
	searchEmails = false
	searchMailtos = false
	emailNames = ""
	emailNamesLines = ""
	outDir = ""
	outURLs = ""
	outEmails = ""
	outRegex = ""
	outLog = ""
	debug = false
}

// Test helper functions to set flag values directly from tests.

func SetConfigFileForTest(path string)    { cfgFile = path }
func SetRecurseForTest(v bool)            { recurse = v }
func SetMaxDepthForTest(depth int)        { maxDepth = depth }
func SetMaxRetriesForTest(n int)          { maxRetries = n }
func SetMaxThreadsForTest(n int)          { maxThreads = n }
func SetOutDirForTest(dir string)         { outDir = dir }
func SetOutURLsForTest(path string)       { outURLs = path }
func SetUserAgentForTest(agent string)    { userAgent = agent }
func SetStopOn404ForTest(v bool)          { stopOn404 = v }
func SetRequeueCloudflareForTest(v bool)  { requeueCF = v }
func SetSearchEmailsForTest(v bool)       { searchEmails = v }
func SetSearchRegexForTest(patterns []string) { searchRegex = patterns }
func SetDepthFirstForTest(v bool)         { depthFirst = v }
func SetDomainsForTest(hosts []string)    { domains = hosts }
func SetCrossDomainsForTest(v bool)       { crossDomains = v }
