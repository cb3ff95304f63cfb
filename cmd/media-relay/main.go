package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-relay/internal/database"
	"media-relay/internal/dispatch"
	"media-relay/internal/handlers"
	"media-relay/internal/logging"
	"media-relay/internal/memory"
	"media-relay/internal/metrics"
	"media-relay/internal/middleware"
	"media-relay/internal/normalizer"
	"media-relay/internal/startup"
	"media-relay/internal/tempfiles"
	"media-relay/internal/transcoder"
	"media-relay/internal/transport/telegram"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
)

// journalMaintenanceSchedule is when old journal entries are pruned.
const journalMaintenanceSchedule = "@every 6h"

func main() {
	startTime := time.Now()

	// Before anything allocates large buffers.
	memory.Configure(os.Getenv)

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	// Database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))
	journal := database.NewAsyncJournal(db, 0)

	// Transcoder
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
		JobTimeout:  config.TranscodeTimeout,
		Workers:     config.TranscodeWorkers,
	})
	startup.LogTranscoderInit(config.FFmpegPath, trans.Workers())

	// Scratch artifacts
	temp := tempfiles.New(config.ScratchDir)
	startup.LogSweeperInit(config.ScratchSweepSchedule, config.ScratchMaxAge)
	if removed := temp.Sweep(config.ScratchMaxAge); removed > 0 {
		logging.Info("Removed %d artifacts left over from a previous run", removed)
	}
	if err := temp.StartSweeper(config.ScratchSweepSchedule, config.ScratchMaxAge); err != nil {
		startup.LogFatal("Failed to start scratch sweeper: %v", err)
	}

	// Transport
	var transport dispatch.Transport
	var transportErr error
	if config.TransportEnabled() {
		var tg *telegram.Transport
		tg, transportErr = telegram.New(config.TelegramBotToken, telegram.DefaultConfig())
		if transportErr == nil {
			transport = tg
		}
	}
	startup.LogTransportInit(config.TransportEnabled(), transportErr)

	dispatcher := dispatch.New(trans, temp, transport, journal, dispatch.Config{
		VideoReleaseDelay: config.VideoReleaseDelay,
	})
	audio := normalizer.New(trans, temp)

	maintenance := startJournalMaintenance(db, config.JournalRetention)

	collector := metrics.NewCollector(temp, time.Minute)
	collector.Start()

	h := handlers.New(handlers.Deps{
		Audio:      audio,
		Dispatcher: dispatcher,
		Journal:    db,
		Scratch:    temp,
		Engine:     trans,
	}, config)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and transcodes can legitimately take minutes.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: config.TranscodeTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h)
	}

	shutdownDone := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, shutdownDeps{
			collector:   collector,
			maintenance: maintenance,
			temp:        temp,
			trans:       trans,
			journal:     journal,
			db:          db,
		})
		close(shutdownDone)
	}()

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-shutdownDone
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Probes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Recorder clients
	api.HandleFunc("/audio/process", h.ProcessAudio).Methods("POST")
	api.HandleFunc("/audio/convert", h.ConvertAudio).Methods("POST")

	// Dispatch
	api.HandleFunc("/dispatch", h.Dispatch).Methods("POST")
	api.HandleFunc("/dispatches", h.ListDispatches).Methods("GET")

	// Operator
	api.HandleFunc("/scratch/clear", h.ClearScratch).Methods("POST")

	return r
}

func startMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

// journalStore is the part of *database.Database the maintenance job uses.
type journalStore interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Vacuum() error
}

// pruneJournal deletes journal entries older than retention and compacts the
// database when anything was removed.
func pruneJournal(ctx context.Context, store journalStore, retention time.Duration) {
	if retention <= 0 {
		return
	}
	removed, err := store.Prune(ctx, retention)
	if err != nil {
		logging.Warn("Journal prune failed: %v", err)
		return
	}
	if removed == 0 {
		return
	}
	logging.Info("Pruned %d journal entries older than %v", removed, retention)
	if err := store.Vacuum(); err != nil {
		logging.Warn("Database vacuum failed: %v", err)
	}
}

func startJournalMaintenance(store journalStore, retention time.Duration) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(journalMaintenanceSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pruneJournal(ctx, store, retention)
	})
	if err != nil {
		logging.Warn("Failed to schedule journal maintenance: %v", err)
	}
	c.Start()
	return c
}

type shutdownDeps struct {
	collector   *metrics.Collector
	maintenance *cron.Cron
	temp        *tempfiles.Manager
	trans       *transcoder.Transcoder
	journal     *database.AsyncJournal
	db          *database.Database
}

func handleShutdown(srv, metricsSrv *http.Server, deps shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Stopping background jobs")
	deps.collector.Stop()
	<-deps.maintenance.Stop().Done()
	deps.temp.Stop()
	startup.LogShutdownStepComplete("Background jobs stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	deps.trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownStep("Releasing scratch artifacts")
	deps.temp.Flush()
	startup.LogShutdownStepComplete("Scratch artifacts released")

	startup.LogShutdownStep("Flushing dispatch journal")
	deps.journal.Close()
	if err := deps.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	}
	startup.LogShutdownStepComplete("Dispatch journal closed")

	startup.LogShutdownComplete()
}
