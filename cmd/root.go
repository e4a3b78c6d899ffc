package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	u "net/url"

	"github.com/spf13/cobra"

	"github.com/mirrorget/mirrorget/internal/config"
	"github.com/mirrorget/mirrorget/internal/download"
	"github.com/mirrorget/mirrorget/internal/listing"
	"github.com/mirrorget/mirrorget/internal/output"
	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/scheduler"
	"github.com/mirrorget/mirrorget/internal/utils"
)

var (
	folder           string
	outputDir        string
	threads          int
	retries          int
	chunked          bool
	chunkSizeMB      int
	chunkThresholdMB int
	transferTimeout  time.Duration
	probeTimeout     time.Duration
	userAgent        string
	proxyURL         string
	proxyUsername    string
	proxyPassword    string
	headers          []string
	configPath       string
	urlListFile      string
	listOnly         bool
	cleanOutput      bool
	debug            bool
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "mirrorget [URL]",
	Short:   "mirrorget mirrors directory trees from autoindex-style HTTP listings",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				output.PrintError(fmt.Sprintf("Failed to load config: %v", err))
				os.Exit(1)
			}
			cfg = loaded
		}
		applyFlagOverrides(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
			os.Exit(1)
		}

		if cleanOutput {
			if err := utils.Clean(cfg.OutputDir); err != nil {
				output.PrintError("Error cleaning up temporary files")
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
			return
		}

		if len(args) == 0 && urlListFile == "" {
			output.PrintError("No URL or mirror list provided")
			os.Exit(1)
		}
		if len(args) > 0 && urlListFile != "" {
			output.PrintError("Cannot specify a URL argument and --urllist together, choose one")
			os.Exit(1)
		}

		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// proxy URL may carry credentials
		if parsedProxy, err := u.Parse(proxyURL); err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		client := utils.NewHTTPClient(utils.HTTPClientConfig{
			Timeout:       cfg.TransferTimeout.Std(),
			ProbeTimeout:  cfg.ProbeTimeout.Std(),
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var roots []config.MirrorEntry
		if urlListFile != "" {
			entries, err := config.ReadMirrorList(urlListFile)
			if err != nil {
				output.PrintError(fmt.Sprintf("Failed to read mirror list: %v", err))
				os.Exit(1)
			}
			roots = entries
		} else {
			roots = []config.MirrorEntry{{URL: args[0], Folder: cfg.Folder, Output: cfg.OutputDir}}
		}

		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.Retries
		limiter := download.NewLimiter(cfg.Threads)

		start := time.Now()
		var total scheduler.Summary
		crawlFailed := false
		for _, root := range roots {
			if root.Output == "" {
				root.Output = cfg.OutputDir
			}
			rootURL := joinRoot(root.URL, root.Folder)
			if _, err := u.Parse(rootURL); err != nil {
				output.PrintWarning(fmt.Sprintf("Skipping invalid URL %q", root.URL))
				crawlFailed = true
				continue
			}

			crawler := listing.NewCrawler(client, listing.HTMLParser{}, root.Output)
			found, err := crawler.Discover(ctx, rootURL)
			if err != nil {
				// other roots still run; the failure is reflected in the exit code
				output.PrintWarning(fmt.Sprintf("Failed to crawl %s: %v", rootURL, err))
				crawlFailed = true
				continue
			}
			if listOnly {
				paths := make([]string, 0, len(found))
				for _, file := range found {
					paths = append(paths, file.LocalPath)
				}
				output.PrintListing(paths)
				continue
			}

			tasks := make([]*download.FileTask, 0, len(found))
			for _, file := range found {
				tasks = append(tasks, download.NewFileTask(file.URL, file.LocalPath))
			}
			runner := download.NewRunner(client, policy, limiter)
			runner.Chunked = cfg.Chunked
			runner.ChunkSize = cfg.ChunkSize()
			runner.ChunkThreshold = cfg.ChunkThreshold()

			sum := scheduler.Run(ctx, runner, tasks, cfg.Threads)
			total.Succeeded += sum.Succeeded
			total.Failed += sum.Failed
			total.Bytes += sum.Bytes
			total.Failures = append(total.Failures, sum.Failures...)
		}

		if !listOnly {
			output.PrintSummary(total, time.Since(start))
		}
		if total.Failed > 0 || crawlFailed || ctx.Err() != nil {
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides lets explicitly set flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("folder") {
		cfg.Folder = folder
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("threads") {
		cfg.Threads = threads
	}
	if flags.Changed("retries") {
		cfg.Retries = retries
	}
	if flags.Changed("chunked") {
		cfg.Chunked = chunked
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSizeMB = chunkSizeMB
	}
	if flags.Changed("chunk-threshold") {
		cfg.ChunkThresholdMB = chunkThresholdMB
	}
	if flags.Changed("timeout") {
		cfg.TransferTimeout = config.Duration(transferTimeout)
	}
	if flags.Changed("probe-timeout") {
		cfg.ProbeTimeout = config.Duration(probeTimeout)
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = userAgent
	}
	if cfg.UserAgent != "" && !flags.Changed("user-agent") {
		userAgent = cfg.UserAgent
	}
}

// joinRoot appends the optional folder subpath to the base URL, keeping the
// trailing slash that marks a listing. A bare URL is passed through
// untouched so a direct file link still short-circuits in the crawler.
func joinRoot(base, folderPath string) string {
	if folderPath == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.Trim(folderPath, "/") + "/"
}

func init() {
	rootCmd.Flags().StringVarP(&folder, "folder", "f", "", "Subpath under the base URL to mirror (default: root)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "downloads", "Local output directory")
	rootCmd.Flags().IntVarP(&threads, "threads", "t", 8, "Number of parallel workers")
	rootCmd.Flags().IntVarP(&retries, "retries", "r", 5, "Maximum retry attempts per transfer")
	rootCmd.Flags().BoolVarP(&chunked, "chunked", "c", false, "Enable chunked parallel transfer for large files")
	rootCmd.Flags().IntVar(&chunkSizeMB, "chunk-size", 10, "Chunk size in MB for chunked transfers")
	rootCmd.Flags().IntVar(&chunkThresholdMB, "chunk-threshold", 20, "Minimum file size in MB before chunking applies")
	rootCmd.Flags().DurationVar(&transferTimeout, "timeout", 30*time.Second, "Per-request transfer timeout (eg. 30s, 5m)")
	rootCmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 10*time.Second, "Metadata probe timeout")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('randomize' picks one)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.Flags().StringVarP(&urlListFile, "urllist", "l", "", "Path to YAML file listing mirror roots")
	rootCmd.Flags().BoolVar(&listOnly, "list-only", false, "Crawl and print discovered files without downloading")

	// flags without shorthand
	rootCmd.Flags().BoolVar(&cleanOutput, "clean", false, "Clean up leftover chunk temp files under the output directory")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
