package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sharefetch/downloader"
	"sharefetch/internal"
	"sharefetch/utils"
)

// Exit codes reported by the CLI
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnavailable = 2 // link not found, expired or out of downloads
	ExitConnection  = 3
)

// options holds flag values; cfg is filled in before any command runs
type options struct {
	configPath string
	apiBase    string
	route      string
	timeout    int
	proxyURL   string
	cookies    string
	userAgent  string
	format     string
	quiet      bool
	debug      bool
	logLevel   string
	logFile    string

	outputDir string
	rateLimit string
	infoOnly  bool

	concurrency int

	expiresHours int
	maxDownloads int
	qr           bool

	cfg *internal.Config
}

// stateError reports a link that did not end up downloadable. The display
// has already shown the state, so Execute does not print it again.
type stateError struct {
	state internal.ResolutionState
	msg   string
}

func (e *stateError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	if e.state.Message != "" {
		return fmt.Sprintf("share link %s: %s", e.state.Kind, e.state.Message)
	}
	return fmt.Sprintf("share link %s", e.state.Kind)
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *stateError
	if errors.As(err, &se) {
		return exitCodeForState(se.state.Kind)
	}
	if internal.IsErrorType(err, internal.ErrConnection) {
		return ExitConnection
	}
	return ExitFailure
}

func exitCodeForState(kind internal.StateKind) int {
	switch kind {
	case internal.StateInfo:
		return ExitOK
	case internal.StateNotFound, internal.StateExpired, internal.StateLimitReached:
		return ExitUnavailable
	case internal.StateConnectionError:
		return ExitConnection
	default:
		return ExitFailure
	}
}

// NewRootCommand builds the sharefetch command tree
func NewRootCommand() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:     "sharefetch [flags] <SHARE_LINK>",
		Short:   "Inspect and download files shared through expiring share links",
		Version: "v1.0.0",
		Long: `sharefetch resolves a share link, shows what it points to and downloads
the file when the link still has downloads left.

A share link may be a full URL (https://files.example.com/share/abc123,
https://files.example.com/share.html?token=abc123) or a bare token.

Examples:
  sharefetch https://files.example.com/share/abc123
  sharefetch --info-only abc123
  sharefetch -o ~/Downloads -r 2M abc123
  sharefetch info abc123 def456 --format json
  sharefetch create 42 --expires-hours 48 --max-downloads 3 -c cookies.txt --qr

Environment Variables:
  SHAREFETCH_CONFIG          Path to a TOML config file
  SHAREFETCH_API_BASE        Share API base URL
  SHAREFETCH_DOWNLOAD_ROUTE  direct or download
  SHAREFETCH_TIMEOUT         HTTP timeout in seconds (0 = none)
  SHAREFETCH_PROXY           Proxy URL
  SHAREFETCH_COOKIES         Path to cookie file
  SHAREFETCH_OUTPUT_DIR      Download directory
  SHAREFETCH_FORMAT          text, json or yaml
  SHAREFETCH_RATE_LIMIT      Bandwidth limit (e.g., 5M)`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, o)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			o.cfg = cfg

			if err := internal.InitLogger(cfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			internal.LogDebug("Configuration loaded: api=%s, route=%s, timeout=%d, format=%s",
				cfg.APIBase, cfg.DownloadRoute, cfg.Timeout, cfg.Format)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), o, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to TOML config file (env: SHAREFETCH_CONFIG)")
	pf.StringVar(&o.apiBase, "api-base", "", "Share API base URL (env: SHAREFETCH_API_BASE)")
	pf.StringVar(&o.route, "route", "", "Download route: direct or download (env: SHAREFETCH_DOWNLOAD_ROUTE)")
	pf.IntVar(&o.timeout, "timeout", 0, "HTTP timeout in seconds, 0 for none (env: SHAREFETCH_TIMEOUT)")
	pf.StringVar(&o.proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: SHAREFETCH_PROXY)")
	pf.StringVarP(&o.cookies, "cookies", "c", "", "Path to Netscape-format cookie file (env: SHAREFETCH_COOKIES)")
	pf.StringVar(&o.userAgent, "user-agent", "", "User-Agent header")
	pf.StringVarP(&o.format, "format", "f", "", "Output format: text, json or yaml (env: SHAREFETCH_FORMAT)")
	pf.BoolVarP(&o.quiet, "quiet", "q", false, "Suppress progress bar and informational logs")
	pf.BoolVarP(&o.debug, "debug", "d", false, "Enable debug logging with file and line information (env: SHAREFETCH_DEBUG)")
	pf.StringVar(&o.logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: SHAREFETCH_LOG_LEVEL)")
	pf.StringVar(&o.logFile, "log-file", "", "Write logs to file instead of stderr (env: SHAREFETCH_LOG_FILE)")

	rootCmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "Directory to save downloads in (env: SHAREFETCH_OUTPUT_DIR)")
	rootCmd.Flags().StringVarP(&o.rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s) (env: SHAREFETCH_RATE_LIMIT)")
	rootCmd.Flags().BoolVar(&o.infoOnly, "info-only", false, "Show link information without downloading")

	rootCmd.AddCommand(newInfoCommand(o), newCreateCommand(o))
	return rootCmd
}

// Execute runs the CLI until it finishes or SIGINT/SIGTERM arrives
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		var se *stateError
		if !errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		internal.LogDebug("Exiting with error: %v", err)
	}
	_ = internal.GetLogger().Sync()
	return err
}

// loadConfiguration merges defaults, config file, environment and flags, in
// increasing priority
func loadConfiguration(cmd *cobra.Command, o *options) (*internal.Config, error) {
	cfg := internal.DefaultConfig()

	path := o.configPath
	if path == "" {
		path = os.Getenv("SHAREFETCH_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("api-base") {
		cfg.APIBase = o.apiBase
	}
	if flags.Changed("route") {
		cfg.DownloadRoute = o.route
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("proxy") {
		cfg.ProxyURL = o.proxyURL
	}
	if flags.Changed("cookies") {
		cfg.CookiesPath = o.cookies
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = o.userAgent
	}
	if flags.Changed("format") {
		cfg.Format = o.format
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("limit-rate") {
		cfg.RateLimit = o.rateLimit
	}
	if o.debug {
		cfg.EnableDebug = true
		cfg.LogLevel = "debug"
	}
	if o.quiet {
		cfg.QuietMode = true
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient builds the HTTP client described by cfg
func newClient(cfg *internal.Config) (*utils.HTTPClient, error) {
	return utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		ProxyURL:  cfg.ProxyURL,
		UserAgent: cfg.UserAgent,
	})
}

// attachSession loads the cookie file named in cfg and installs the session
// in client's cookie jar. With requireValid an expired session is refreshed
// once and any remaining problem is returned; otherwise problems are logged.
func attachSession(ctx context.Context, client *utils.HTTPClient, cfg *internal.Config, requireValid bool) (*internal.AuthContext, error) {
	if cfg.CookiesPath == "" {
		if requireValid {
			return nil, internal.NewValidationError("cookies", "a cookie file is required for this command").
				WithSuggestion("Export your session cookies in Netscape format and pass --cookies")
		}
		return nil, nil
	}

	authManager := downloader.NewCookieAuthManager(client, cfg.APIBase)
	auth, err := authManager.LoadCookies(cfg.CookiesPath)
	if err != nil {
		return nil, internal.NewValidationErrorWithValue("cookies", err.Error(), cfg.CookiesPath).
			WithSuggestion("Ensure the file exists and is in Netscape cookie format")
	}

	jar, err := authManager.Jar(auth, cfg.APIBase)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	internal.LogDebug("Loaded %d cookies from %s", len(auth.Cookies), cfg.CookiesPath)

	err = authManager.ValidateSession(auth)
	if err == nil {
		return auth, nil
	}
	if !requireValid {
		internal.LogWarn("Session from %s is not usable: %v", cfg.CookiesPath, err)
		return auth, nil
	}

	se, ok := internal.AsShareError(err)
	if !ok {
		return nil, err
	}
	if refreshable, _ := se.Context["refreshable"].(bool); !refreshable {
		return nil, err
	}
	internal.LogInfo("Session expired, refreshing")
	if err := authManager.RefreshSession(ctx, auth); err != nil {
		return nil, err
	}
	return auth, nil
}

// runFetch resolves link, renders the state and downloads when allowed
func runFetch(ctx context.Context, o *options, link string, out, errOut io.Writer) error {
	cfg := o.cfg

	var rateLimitBytes int64
	if cfg.RateLimit != "" {
		var err error
		rateLimitBytes, err = utils.ParseRateLimit(cfg.RateLimit)
		if err != nil {
			validationErr := internal.NewValidationErrorWithValue("rate_limit", "invalid format", cfg.RateLimit).
				WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s), 2G (2 GB/s), or 1024 (1024 bytes/s)")
			internal.LogValidationError(validationErr)
			return validationErr
		}
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if _, err := attachSession(ctx, client, cfg, false); err != nil {
		return err
	}

	display, err := utils.NewDisplay(cfg.Format, out)
	if err != nil {
		return err
	}

	api := downloader.NewHTTPShareAPI(client, cfg.APIBase, cfg.DownloadRoute)
	saver := downloader.NewDiskSaver(cfg.OutputDir, cfg.QuietMode).
		WithRateLimit(rateLimitBytes).
		WithProgressOutput(errOut)
	resolver := downloader.NewShareLinkResolver(api, saver, display)

	token := utils.ExtractToken(link)
	internal.LogDebug("Resolving share link %s", token)

	state := resolver.Resolve(ctx, token)
	if o.infoOnly || !state.DownloadAvailable() {
		if state.Kind == internal.StateInfo {
			return nil
		}
		return &stateError{state: state}
	}

	state, err = resolver.Download(ctx, token)
	if err != nil {
		if se, ok := internal.AsShareError(err); ok && se.StateKind() == state.Kind {
			return &stateError{state: state}
		}
		return err
	}

	internal.LogInfo("Download complete: %s", saver.LastSaved())
	return nil
}
