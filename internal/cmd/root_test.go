package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/masahif/sitedex/internal/cache"
)

// resetConfig clears viper state and re-registers flags and defaults
func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	initConfig()
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2023-12-01T10:00:00Z")

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
	if got := generateUserAgent(); got != "SiteDex/1.2.3" {
		t.Errorf("Expected versioned user agent, got %s", got)
	}

	SetVersionInfo("dev", "unknown")
	if got := generateUserAgent(); got != "SiteDex/dev" {
		t.Errorf("Expected dev user agent, got %s", got)
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "sitedex" {
		t.Errorf("Expected use 'sitedex', got %s", rootCmd.Use)
	}
	if rootCmd.RunE == nil {
		t.Error("RunE should be set")
	}

	want := map[string]bool{"index": false, "query": false, "tree": false, "indexes": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}

func TestFlagBinding(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	expectedFlags := []string{
		"config",
		"show-config",
		"depth",
		"concurrency",
		"delay",
		"timeout",
		"user-agent",
		"respect-robots",
		"limit",
		"header",
		"include-patterns",
		"exclude-patterns",
		"cache-dir",
		"index-dir",
		"mode",
		"chunk-size",
		"chunk-overlap",
		"provider",
		"log-level",
		"progress",
	}
	for _, flagName := range expectedFlags {
		if flags.Lookup(flagName) == nil {
			t.Errorf("Expected flag %s to be defined", flagName)
		}
	}

	if queryCmd.Flags().Lookup("prompt") == nil {
		t.Error("Expected query flag 'prompt' to be defined")
	}
	if indexCmd.Flags().Lookup("rebuild") == nil {
		t.Error("Expected index flag 'rebuild' to be defined")
	}
}

func TestInitConfig(t *testing.T) {
	resetConfig(t)

	configFile := filepath.Join(t.TempDir(), "sitedex.yml")
	configContent := `
crawl:
  max_depth: 3
  request_delay: 2s
  user_agent: "TestAgent/1.0"
chunk:
  size: 500
  overlap: 25
index:
  mode: graph
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfgFile = configFile
	initConfig()

	if viper.ConfigFileUsed() != configFile {
		t.Errorf("Expected config file %s, got %s", configFile, viper.ConfigFileUsed())
	}

	cfg, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Crawl.MaxDepth != 3 || cfg.Crawl.RequestDelay != 2*time.Second {
		t.Errorf("Crawl section not loaded: %+v", cfg.Crawl)
	}
	if cfg.Crawl.UserAgent != "TestAgent/1.0" {
		t.Errorf("Expected explicit user agent kept, got %s", cfg.Crawl.UserAgent)
	}
	if cfg.Chunk.Size != 500 || cfg.Chunk.Overlap != 25 || cfg.Index.Mode != "graph" {
		t.Errorf("Unexpected config: chunk %+v, mode %s", cfg.Chunk, cfg.Index.Mode)
	}
	// Keys absent from the file keep their defaults
	if cfg.Cache.LockTimeout != 30*time.Second {
		t.Errorf("Expected default lock timeout, got %v", cfg.Cache.LockTimeout)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SD_CRAWL_MAX_DEPTH", "4")
	t.Setenv("SD_CACHE_LOCK_TIMEOUT", "5s")
	t.Setenv("SD_EMBEDDING_PROVIDER", "openai")
	resetConfig(t)

	cfg, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Crawl.MaxDepth != 4 {
		t.Errorf("Expected max depth 4 from env, got %d", cfg.Crawl.MaxDepth)
	}
	if cfg.Cache.LockTimeout != 5*time.Second {
		t.Errorf("Expected lock timeout 5s from env, got %v", cfg.Cache.LockTimeout)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Expected provider openai from env, got %s", cfg.Embedding.Provider)
	}
}

func TestShowCurrentConfig(t *testing.T) {
	resetConfig(t)

	cfg, err := loadConfig(rootCmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	var buf bytes.Buffer
	if err := showCurrentConfig(&buf, cfg); err != nil {
		t.Fatalf("showCurrentConfig failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"# Current SiteDex Configuration", "max_depth: 1", "lock_timeout: 30s", "mode: flat", "SD_ prefix"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	if err := showCurrentConfig(&buf, nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func newSiteServer() *httptest.Server {
	mux := http.NewServeMux()
	page := func(title, body string) string {
		return fmt.Sprintf(`<html><head><title>%s</title></head><body><main>%s</main></body></html>`, title, body)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page("Help", `<h1>Help center</h1><p>Browse the topics below.</p>
			<a href="/password">Password</a> <a href="/billing">Billing</a>`))
	})
	mux.HandleFunc("/password", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page("Password", `<h2>Password</h2><p>To reset your password open account settings and choose reset password.</p>`))
	})
	mux.HandleFunc("/billing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page("Billing", `<h2>Billing</h2><p>Invoices are emailed on the first day of every month.</p>`))
	})
	return httptest.NewServer(mux)
}

// runCommand calls a command's RunE directly with a context and captured output
func runCommand(t *testing.T, c *cobra.Command, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetContext(context.Background())
	defer c.SetOut(nil)

	if err := c.RunE(c, args); err != nil {
		t.Fatalf("%s %v failed: %v", c.Name(), args, err)
	}
	return buf.String()
}

func TestIndexQueryTreeCommands(t *testing.T) {
	server := newSiteServer()
	defer server.Close()

	resetConfig(t)
	dir := t.TempDir()
	viper.Set("cache.dir", filepath.Join(dir, "cache"))
	viper.Set("index.dir", filepath.Join(dir, "indexes"))
	viper.Set("crawl.respect_robots", false)
	viper.Set("crawl.request_delay", "0s")
	viper.Set("crawl.max_depth", 2)
	viper.Set("chunk.size", 120)
	viper.Set("chunk.overlap", 10)
	viper.Set("index.top_k", 2)
	viper.Set("log.level", "error")

	rootURL := server.URL + "/"
	name := cache.SanitizeSite(rootURL)

	out := runCommand(t, indexCmd, rootURL)
	if !strings.Contains(out, "Index "+name+" ready") {
		t.Errorf("Unexpected index output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "indexes", name+".index")); err != nil {
		t.Errorf("Expected index file: %v", err)
	}

	out = runCommand(t, queryCmd, name, "how", "do", "I", "reset", "my", "password")
	if !strings.HasPrefix(out, "1. [") || !strings.Contains(out, "reset your password") {
		t.Errorf("Unexpected query output:\n%s", out)
	}
	if strings.Contains(out, "3. [") {
		t.Errorf("Expected at most top_k=2 results:\n%s", out)
	}

	if err := queryCmd.Flags().Set("prompt", "true"); err != nil {
		t.Fatal(err)
	}
	out = runCommand(t, queryCmd, name, "reset password")
	_ = queryCmd.Flags().Set("prompt", "false")
	if !strings.HasPrefix(out, "Using the information below") || !strings.Contains(out, "User question: reset password") {
		t.Errorf("Unexpected prompt output:\n%s", out)
	}

	out = runCommand(t, treeCmd, rootURL)
	for _, want := range []string{"└── " + rootURL + " (Depth: 0)", "/password (Depth: 1)", "/billing (Depth: 1)", "3 pages"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in tree output:\n%s", want, out)
		}
	}
	// The tree run is served from the cache filled by the index run
	if !strings.Contains(out, "cached 3") {
		t.Errorf("Expected pages served from cache:\n%s", out)
	}

	out = runCommand(t, indexesCmd)
	if !strings.Contains(out, "NAME") || !strings.Contains(out, name) {
		t.Errorf("Unexpected indexes output:\n%s", out)
	}

	out = runCommand(t, removeIndexCmd, name)
	if !strings.Contains(out, "Removed "+name) {
		t.Errorf("Unexpected rm output:\n%s", out)
	}
	out = runCommand(t, indexesCmd)
	if !strings.Contains(out, "No indexes") {
		t.Errorf("Expected empty listing after rm:\n%s", out)
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	resetConfig(t)
	viper.Set("chunk.overlap", 1000)

	if _, _, err := setup(rootCmd); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got %v", err)
	}
}

func TestQueryMissingIndex(t *testing.T) {
	resetConfig(t)
	viper.Set("index.dir", t.TempDir())
	viper.Set("log.level", "error")

	queryCmd.SetContext(context.Background())
	if err := runQuery(queryCmd, []string{"missing", "anything"}); err == nil {
		t.Error("Expected error for a missing index")
	}
}
