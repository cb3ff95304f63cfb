package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-relay/internal/logging"
	"media-relay/internal/memory"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	ScratchDir   string
	DatabaseDir  string
	DatabasePath string

	FFmpegPath       string
	FFprobePath      string
	TranscodeTimeout time.Duration
	TranscodeWorkers int

	VideoReleaseDelay    time.Duration
	ScratchMaxAge        time.Duration
	ScratchSweepSchedule string
	JournalRetention     time.Duration
	MaxUploadBytes       int64

	TelegramBotToken string
}

// TransportEnabled reports whether a messaging transport is configured.
func (c *Config) TransportEnabled() bool {
	return c.TelegramBotToken != ""
}

// LoadConfig loads and validates configuration from environment variables.
// A .env file in the working directory, if present, is loaded first and never
// overrides variables already set in the environment.
func LoadConfig() (*Config, error) {
	envFileLoaded := loadDotEnv(".env")

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if envFileLoaded {
		logging.Info("  Loaded variables from .env")
	}

	scratchDir := getEnv("SCRATCH_DIR", filepath.Join(os.TempDir(), "media-relay"))
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := getEnv("FFPROBE_PATH", "ffprobe")
	transcodeTimeout := getEnvDuration("TRANSCODE_TIMEOUT", 5*time.Minute)
	transcodeWorkers := getEnvInt("TRANSCODE_WORKERS", 0)
	videoReleaseDelay := getEnvDuration("VIDEO_RELEASE_DELAY", 60*time.Second)
	scratchMaxAge := getEnvDuration("SCRATCH_MAX_AGE", time.Hour)
	sweepSchedule := getEnv("SCRATCH_SWEEP_SCHEDULE", "@every 10m")
	journalRetention := getEnvDuration("JOURNAL_RETENTION", 30*24*time.Hour)
	maxUploadMB := getEnvInt("MAX_UPLOAD_MB", 50)
	botToken := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if maxUploadMB <= 0 {
		logging.Warn("  Invalid MAX_UPLOAD_MB, using default: 50")
		maxUploadMB = 50
	}

	logging.Info("  PORT:                   %s", port)
	logging.Info("  METRICS_PORT:           %s", metricsPort)
	logging.Info("  METRICS_ENABLED:        %v", metricsEnabled)
	logging.Info("  SCRATCH_DIR:            %s", scratchDir)
	logging.Info("  DATABASE_DIR:           %s", databaseDir)
	logging.Info("  FFMPEG_PATH:            %s", ffmpegPath)
	logging.Info("  FFPROBE_PATH:           %s", ffprobePath)
	logging.Info("  TRANSCODE_TIMEOUT:      %v", transcodeTimeout)
	if transcodeWorkers > 0 {
		logging.Info("  TRANSCODE_WORKERS:      %d", transcodeWorkers)
	} else {
		logging.Info("  TRANSCODE_WORKERS:      auto")
	}
	logging.Info("  VIDEO_RELEASE_DELAY:    %v", videoReleaseDelay)
	logging.Info("  SCRATCH_MAX_AGE:        %v", scratchMaxAge)
	logging.Info("  SCRATCH_SWEEP_SCHEDULE: %s", sweepSchedule)
	logging.Info("  JOURNAL_RETENTION:      %v", journalRetention)
	logging.Info("  MAX_UPLOAD_MB:          %d (%s)", maxUploadMB, memory.FormatBytes(int64(maxUploadMB)<<20))
	logging.Info("  TELEGRAM_BOT_TOKEN:     %s", maskSecret(botToken))
	logging.Info("  LOG_HEALTH_CHECKS:      %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	scratchDir, err := filepath.Abs(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch directory path: %w", err)
	}
	logging.Info("  Scratch directory (absolute): %s", scratchDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	config := &Config{
		Port:                 port,
		MetricsPort:          metricsPort,
		MetricsEnabled:       metricsEnabled,
		LogHealthChecks:      logHealthChecks,
		ScratchDir:           scratchDir,
		DatabaseDir:          databaseDir,
		DatabasePath:         filepath.Join(databaseDir, "media-relay.db"),
		FFmpegPath:           ffmpegPath,
		FFprobePath:          ffprobePath,
		TranscodeTimeout:     transcodeTimeout,
		TranscodeWorkers:     transcodeWorkers,
		VideoReleaseDelay:    videoReleaseDelay,
		ScratchMaxAge:        scratchMaxAge,
		ScratchSweepSchedule: sweepSchedule,
		JournalRetention:     journalRetention,
		MaxUploadBytes:       int64(maxUploadMB) << 20,
		TelegramBotToken:     botToken,
	}

	// Every dispatch stages artifacts here, so it is required.
	if err := ensureDirectory(scratchDir, "scratch"); err != nil {
		return nil, fmt.Errorf("scratch directory error: %w", err)
	}
	if err := testWriteAccess(scratchDir); err != nil {
		return nil, fmt.Errorf("scratch directory is not writable: %w", err)
	}
	logging.Info("  [OK] Scratch directory is writable")

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for dispatch journal): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Journal:     ENABLED (required)")
	logging.Info("    Transport:   %s", enabledString(config.TransportEnabled()))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func loadDotEnv(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := godotenv.Load(path); err != nil {
		logging.Warn("Failed to load %s: %v", path, err)
		return false
	}
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func maskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit logs transcoder initialization and checks FFmpeg
func LogTranscoderInit(ffmpegPath string, workers int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Concurrent jobs: %d", workers)

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Audio and video conversion will fail until FFmpeg is installed")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogTransportInit logs messaging transport setup
func LogTransportInit(enabled bool, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSPORT INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	switch {
	case !enabled:
		logging.Info("  Transport disabled (TELEGRAM_BOT_TOKEN not set)")
		logging.Info("  Dispatch requests will run as dry runs only")
	case err != nil:
		logging.Warn("  Telegram transport unavailable: %v", err)
		logging.Warn("  Dispatch requests will run as dry runs only")
	default:
		logging.Info("  [OK] Telegram transport ready")
	}
}

// LogSweeperInit logs the scratch sweeper schedule
func LogSweeperInit(schedule string, maxAge time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SCRATCH SWEEPER")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Schedule: %s", schedule)
	logging.Info("  Max age:  %v", maxAge)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         ____       __
   /  |/  /__  ____/ (_)___ _  / __ \___  / /___ ___  __
  / /|_/ / _ \/ __  / / __ '/ / /_/ / _ \/ / __ '/ / / /
 / /  / /  __/ /_/ / / /_/ / / _, _/  __/ / /_/ / /_/ /
/_/  /_/\___/\__,_/_/\__,_/ /_/ |_|\___/_/\__,_/\__, /
                                               /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return errors.New("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(ffmpegPath string) error {
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return fmt.Errorf("%s not found: %w", ffmpegPath, err)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(line))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
