package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/config"
)

func TestWithDefault(t *testing.T) {
	cfg := config.WithDefault([]string{"https://example.org"})
	if cfg == nil {
		t.Fatal("WithDefault() returned nil")
	}

	builtCfg, err := cfg.Build()
	if err != nil {
		t.Fatalf("should not have any error, got %v", err)
	}

	if len(builtCfg.Seeds()) != 1 || builtCfg.Seeds()[0] != "https://example.org" {
		t.Errorf("expected 1 seed, got %v", builtCfg.Seeds())
	}
	if builtCfg.MaxDepth() != 3 {
		t.Errorf("expected MaxDepth 3, got %d", builtCfg.MaxDepth())
	}
	if builtCfg.DepthFirst() {
		t.Error("expected DepthFirst false by default")
	}
	if builtCfg.MaxThreads() != 10 {
		t.Errorf("expected MaxThreads 10, got %d", builtCfg.MaxThreads())
	}
	if builtCfg.FailSleep() != time.Second {
		t.Errorf("expected FailSleep 1s, got %v", builtCfg.FailSleep())
	}
	if builtCfg.BaseDelay() != time.Second {
		t.Errorf("expected BaseDelay 1s, got %v", builtCfg.BaseDelay())
	}
	if builtCfg.Jitter() != 500*time.Millisecond {
		t.Errorf("expected Jitter 500ms, got %v", builtCfg.Jitter())
	}
	if builtCfg.UserAgent() != "docs-crawler/1.0" {
		t.Errorf("expected default UserAgent, got %q", builtCfg.UserAgent())
	}
	if builtCfg.OutDir() != "output" {
		t.Errorf("expected OutDir 'output', got %q", builtCfg.OutDir())
	}
	if builtCfg.DryRun() {
		t.Error("expected DryRun false by default")
	}
	if builtCfg.StopOn404() {
		t.Error("expected StopOn404 false by default")
	}
	if builtCfg.RequeueCloudflare() {
		t.Error("expected RequeueCloudflare false by default")
	}
}

func TestBuildRejectsEmptySeeds(t *testing.T) {
	_, err := config.WithDefault(nil).Build()
	if err == nil {
		t.Fatal("expected error for empty seeds")
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilderChaining(t *testing.T) {
	cfg, err := config.WithDefault([]string{"https://docs.example.com"}).
		WithMaxDepth(5).
		WithDepthFirst(true).
		WithCrossDomains(true).
		WithDomains([]string{"other.example.com"}).
		WithNoParent(true).
		WithRecursePattern([]string{`^/docs/`}).
		WithRecurseIgnorePattern([]string{`^/docs/internal/`}).
		WithMaxRetries(3).
		WithFailSleep(2 * time.Second).
		WithProxy("http://proxy.local:8080").
		WithUserAgent("custom-agent/1.0").
		WithMaxThreads(20).
		WithStopPattern(`Forbidden`).
		WithStopOn404(true).
		WithRequeueCloudflare(true).
		WithSearchRegex([]string{`TODO`}).
		WithSearchEmails(true).
		WithSearchMailtos(true).
		WithEmailNames(`[A-Z][a-z]+ [A-Z][a-z]+`).
		WithEmailNamesLines(2, 0).
		WithDownloadExtensions([]string{"pdf"}).
		WithDownloadRegexes([]string{`\.zip$`}).
		WithDownloadWithin([]string{"/downloads/"}).
		WithOutDir("crawl-output").
		WithOutURLs("urls.txt").
		WithOutEmails("emails.txt").
		WithOutRegex("matches.txt").
		WithDryRun(true).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxDepth() != 5 {
		t.Errorf("expected MaxDepth 5, got %d", cfg.MaxDepth())
	}
	if !cfg.DepthFirst() {
		t.Error("expected DepthFirst true")
	}
	if !cfg.CrossDomains() {
		t.Error("expected CrossDomains true")
	}
	if len(cfg.Domains()) != 1 || cfg.Domains()[0] != "other.example.com" {
		t.Errorf("expected Domains [other.example.com], got %v", cfg.Domains())
	}
	if !cfg.NoParent() {
		t.Error("expected NoParent true")
	}
	if cfg.MaxRetries() != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries())
	}
	if cfg.FailSleep() != 2*time.Second {
		t.Errorf("expected FailSleep 2s, got %v", cfg.FailSleep())
	}
	if !cfg.StopOn404() {
		t.Error("expected StopOn404 true")
	}
	if !cfg.RequeueCloudflare() {
		t.Error("expected RequeueCloudflare true")
	}
	// a zero end collapses to start (single-value shorthand)
	if cfg.EmailNamesLinesStart() != 2 || cfg.EmailNamesLinesEnd() != 2 {
		t.Errorf("expected EmailNamesLines (2,2), got (%d,%d)", cfg.EmailNamesLinesStart(), cfg.EmailNamesLinesEnd())
	}
}

func TestWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	payload := map[string]any{
		"seeds":      []string{"https://docs.example.com"},
		"maxDepth":   4,
		"maxThreads": 5,
		"outDir":     "from-file-output",
		"searchEmails": true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := config.WithConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxDepth() != 4 {
		t.Errorf("expected MaxDepth 4, got %d", cfg.MaxDepth())
	}
	if cfg.MaxThreads() != 5 {
		t.Errorf("expected MaxThreads 5, got %d", cfg.MaxThreads())
	}
	if cfg.OutDir() != "from-file-output" {
		t.Errorf("expected OutDir 'from-file-output', got %q", cfg.OutDir())
	}
	if !cfg.SearchEmails() {
		t.Error("expected SearchEmails true")
	}
	if cfg.ConfigFile() != path {
		t.Errorf("expected ConfigFile %q, got %q", path, cfg.ConfigFile())
	}
}

func TestWithConfigFileMissing(t *testing.T) {
	_, err := config.WithConfigFile("/nonexistent/path/config.json")
	if !errors.Is(err, config.ErrFileDoesNotExist) {
		t.Errorf("expected ErrFileDoesNotExist, got %v", err)
	}
}

func TestWithConfigFileInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	_, err := config.WithConfigFile(path)
	if !errors.Is(err, config.ErrConfigParsingFail) {
		t.Errorf("expected ErrConfigParsingFail, got %v", err)
	}
}
