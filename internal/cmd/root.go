// Package cmd provides the command-line interface for SiteDex.
// It handles command parsing, configuration loading and wiring of the
// crawl, index and query pipeline.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/sitedex/internal/config"
	"github.com/masahif/sitedex/internal/logging"
)

const defaultUserAgent = "SiteDex/1.0"

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitedex",
	Short: "Crawl a website into a searchable vector index",
	Long: `SiteDex builds a searchable knowledge base from a website.

It crawls pages reachable from a root URL, caches their content, splits the
text into overlapping chunks, embeds them and answers nearest-neighbour
queries that ground an external answer generator.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute adds all child commands to the root command and runs it until
// completion or an interrupt.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is ./sitedex.yml)")
	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")
	flags.Bool("progress", true, "Show crawl progress on stderr")

	// Crawl flags
	flags.IntP("depth", "d", defaults.Crawl.MaxDepth, "Maximum crawl depth (root is depth 0)")
	flags.IntP("concurrency", "c", defaults.Crawl.Concurrency, "Pages fetched in parallel")
	flags.DurationP("delay", "r", defaults.Crawl.RequestDelay, "Minimum delay between requests to one host")
	flags.DurationP("timeout", "t", defaults.Crawl.RequestTimeout, "HTTP request timeout")
	flags.StringP("user-agent", "u", defaults.Crawl.UserAgent, "HTTP User-Agent header")
	flags.Bool("respect-robots", defaults.Crawl.RespectRobots, "Respect robots.txt rules")
	flags.Bool("follow-external-hosts", defaults.Crawl.FollowExternalHosts, "Allow crawling external hosts")
	flags.IntP("limit", "l", defaults.Crawl.Limit, "Maximum pages in the crawl tree (0=unlimited)")
	flags.StringSliceP("header", "H", []string{}, "Custom HTTP headers in 'Name: Value' format (use multiple times for multiple headers)")
	flags.StringSlice("include-patterns", []string{}, "Regex patterns for URLs to include")
	flags.StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")
	flags.StringSlice("exclude-paths", []string{}, "Glob patterns for URL paths to skip (e.g. '/blog/**', '/**/*.pdf')")

	// Storage flags
	flags.String("cache-dir", defaults.Cache.Dir, "Directory of the page cache")
	flags.String("index-dir", defaults.Index.Dir, "Directory of persisted indexes")
	flags.String("mode", defaults.Index.Mode, "Index mode: 'flat' or 'graph'")

	// Chunking and embedding flags
	flags.Int("chunk-size", defaults.Chunk.Size, "Chunk size in characters")
	flags.Int("chunk-overlap", defaults.Chunk.Overlap, "Characters shared by consecutive chunks")
	flags.String("provider", defaults.Embedding.Provider, "Embedding provider: 'hash' or 'openai'")
	flags.String("model", defaults.Embedding.Model, "Embedding model for the openai provider")
	flags.String("base-url", defaults.Embedding.BaseURL, "OpenAI-compatible endpoint")
	flags.Int("dimensions", defaults.Embedding.Dimensions, "Embedding dimensions")

	// Logging flags
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	flags.String("log-format", defaults.Log.Format, "Log format: text or json")
	flags.String("log-file", defaults.Log.File, "Also write logs to this rotated file")

	rootCmd.AddCommand(indexCmd, queryCmd, treeCmd, indexesCmd)
}

// bindConfigFlags binds the configuration flags to their viper keys
func bindConfigFlags() {
	flags := rootCmd.PersistentFlags()

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"crawl.max_depth", "depth"},
		{"crawl.concurrency", "concurrency"},
		{"crawl.request_delay", "delay"},
		{"crawl.request_timeout", "timeout"},
		{"crawl.user_agent", "user-agent"},
		{"crawl.respect_robots", "respect-robots"},
		{"crawl.follow_external_hosts", "follow-external-hosts"},
		{"crawl.limit", "limit"},
		{"crawl.headers", "header"},
		{"crawl.include_patterns", "include-patterns"},
		{"crawl.exclude_patterns", "exclude-patterns"},
		{"crawl.exclude_paths", "exclude-paths"},
		{"cache.dir", "cache-dir"},
		{"index.dir", "index-dir"},
		{"index.mode", "mode"},
		{"chunk.size", "chunk-size"},
		{"chunk.overlap", "chunk-overlap"},
		{"embedding.provider", "provider"},
		{"embedding.model", "model"},
		{"embedding.base_url", "base-url"},
		{"embedding.dimensions", "dimensions"},
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"log.file", "log-file"},
	}

	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
	if err := viper.BindPFlag("index.top_k", queryCmd.Flags().Lookup("top-k")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind flag top-k: %v\n", err)
	}
}

// initConfig binds flags and reads in config file and ENV variables if set.
func initConfig() {
	bindConfigFlags()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("sitedex")
	}

	viper.SetEnvPrefix("SD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// Register every key so SD_ variables work for settings without a flag
	if err := setDefaults(config.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to register defaults: %v\n", err)
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers cfg's values under their dotted viper keys
func setDefaults(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}

	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			viper.SetDefault(key, v)
		}
	}
	walk("", tree)
	return nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("SiteDex/%s", version)
	}
	return "SiteDex/dev"
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Update User-Agent with dynamic version if not explicitly set
	if !cmd.Flags().Changed("user-agent") && cfg.Crawl.UserAgent == defaultUserAgent {
		cfg.Crawl.UserAgent = generateUserAgent()
	}
	return cfg, nil
}

// setup loads and validates the configuration and installs the logger.
// The returned function closes the log file, if any.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.SetDefault(logging.FromConfig(cfg.Log))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, func() { _ = closer.Close() }, nil
}

func showCurrentConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current SiteDex Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./sitedex.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: SD_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (SD_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (sitedex.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

// handleShowConfig prints the configuration when --show-config is set and
// reports whether it did.
func handleShowConfig(cmd *cobra.Command) (bool, error) {
	show, _ := cmd.Flags().GetBool("show-config")
	if !show {
		return false, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return true, err
	}
	return true, showCurrentConfig(cmd.OutOrStdout(), cfg)
}

func runRoot(cmd *cobra.Command, args []string) error {
	if shown, err := handleShowConfig(cmd); shown {
		return err
	}
	return cmd.Help()
}
