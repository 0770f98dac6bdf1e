// kiro-memory-worker is the long-running session memory worker: it owns the
// database, the embedded event bus, the SSE hub, the plugin host, and the
// loopback HTTP surface, wired together here in one composition root.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kiro-memory/worker/internal/backup"
	"github.com/kiro-memory/worker/internal/config"
	"github.com/kiro-memory/worker/internal/embedding"
	"github.com/kiro-memory/worker/internal/eventbus"
	"github.com/kiro-memory/worker/internal/httpapi"
	"github.com/kiro-memory/worker/internal/hybrid"
	"github.com/kiro-memory/worker/internal/ingest"
	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/pluginhost"
	"github.com/kiro-memory/worker/internal/retrieval"
	"github.com/kiro-memory/worker/internal/scheduler"
	"github.com/kiro-memory/worker/internal/session"
	"github.com/kiro-memory/worker/internal/smartcontext"
	"github.com/kiro-memory/worker/internal/sse"
	"github.com/kiro-memory/worker/internal/store"
	"github.com/kiro-memory/worker/internal/vectorindex"
)

const version = "1.0.0"

// shutdownGrace is how long in-flight requests get to drain before the
// worker force-exits.
const shutdownGrace = 5 * time.Second

// embedQueueSize bounds the best-effort async embedding queue.
const embedQueueSize = 256

func main() {
	os.Exit(run())
}

func run() int {
	settingsPath := flag.String("settings", "", "Path to settings.json (default <data-dir>/settings.json)")
	port := flag.Int("port", 0, "Override listener port (0 = use config)")
	flag.Parse()

	cfg, err := config.Load(resolveSettingsPath(*settingsPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiro-memory-worker: %v\n", err)
		return 1
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "kiro-memory-worker: create data dir: %v\n", err)
		return 1
	}

	log, closeLog, err := logging.NewDaily("worker", cfg.LogLevel, cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiro-memory-worker: init logging: %v\n", err)
		return 1
	}
	defer closeLog()

	log.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("starting kiro-memory worker")

	db, err := store.Open(cfg.DBPath(), log.With("store"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return 1
	}
	defer db.Close()

	bus, err := eventbus.Start(0)
	if err != nil {
		log.Error().Err(err).Msg("failed to start embedded event bus")
		return 1
	}
	defer bus.Shutdown()

	hub := sse.NewHub()
	wireBusToHub(bus, hub, log)

	provider := buildEmbeddingProvider(cfg)
	index := vectorindex.New(db)
	retriever := retrieval.New(db)
	searcher := hybrid.New(retriever, index, provider, db)
	smart := smartcontext.New(db, searcher)
	sessions := session.New(db, buildSummaryGenerator(cfg, log))

	host := pluginhost.New(version, pluginhost.NewProcessFactory(), log.With("plugins"))
	initPlugins(cfg, host, log)
	defer destroyPlugins(host, log)
	hooks := &pluginHooks{host: host}

	pipeline := ingest.New(db, index, bus, hooks, log.With("ingest"), embedQueueSize)

	embedCtx, stopEmbed := context.WithCancel(context.Background())
	defer stopEmbed()
	go ingest.RunEmbedWorker(embedCtx, pipeline, index, provider, log.With("embed"))

	backups := backup.New(db, cfg.DBPath(), filepath.Join(cfg.DataDir, "backups"), cfg.BackupMaxKeep)
	sched := scheduler.New(db, scheduler.RetentionConfig{
		ObservationDays: cfg.RetentionDaysObs,
		SummaryDays:     cfg.RetentionDaysSumm,
		PromptDays:      cfg.RetentionDaysProm,
		KnowledgeDays:   cfg.RetentionDaysKnow,
	}, backups.Create, log.With("scheduler"))
	sched.SetBackfill(func(ctx context.Context) (int, error) {
		return index.Backfill(ctx, provider, 100, time.Now().UnixMilli(), nil)
	})
	sched.Start(cfg.RetentionHours, cfg.BackupHours)
	defer sched.Stop()

	token := uuid.NewString()
	pidPath := filepath.Join(cfg.DataDir, "worker.pid")
	tokenPath := filepath.Join(cfg.DataDir, "worker.token")
	if err := writeRuntimeFiles(pidPath, tokenPath, token); err != nil {
		log.Error().Err(err).Msg("failed to write pid/token files")
		return 1
	}
	defer removeRuntimeFiles(pidPath, tokenPath)

	server := httpapi.NewServer(httpapi.Deps{
		Config:    cfg,
		Store:     db,
		Pipeline:  pipeline,
		Retriever: retriever,
		Hybrid:    searcher,
		Smart:     smart,
		Sessions:  sessions,
		Backups:   backups,
		Scheduler: sched,
		Index:     index,
		Provider:  provider,
		Hub:       hub,
		Bus:       bus,
		Hooks:     hooks,
		Log:       log.With("http"),
		Token:     token,
		Version:   version,
	})

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			return 1
		}
	}

	// Stop accepting new connections, end the SSE streams, and give
	// in-flight requests the grace window; past it, force exit.
	hub.Shutdown()
	stopEmbed()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown after drain timeout")
		_ = httpServer.Close()
		return 1
	}
	log.Info().Msg("clean shutdown")
	return 0
}

// resolveSettingsPath falls back to <data-dir>/settings.json when no flag
// is given, honoring KIRO_MEMORY_DATA_DIR the same way config.Load will.
func resolveSettingsPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	dataDir := os.Getenv("KIRO_MEMORY_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataDir = filepath.Join(home, ".kiro-memory")
	}
	return filepath.Join(dataDir, "settings.json")
}

// buildEmbeddingProvider picks the configured HTTP provider, falling back
// to the deterministic local-hash provider so the worker is usable with no
// embedding service running.
func buildEmbeddingProvider(cfg *config.Config) embedding.Provider {
	if cfg.EmbeddingBaseURL != "" {
		return embedding.NewHTTPProvider(cfg.EmbeddingBaseURL, cfg.EmbeddingModel, "", cfg.EmbeddingDims)
	}
	return embedding.NewLocalHashProvider(cfg.EmbeddingDims)
}

// buildSummaryGenerator maps the configured summary provider onto a
// session.Generator; every LLM variant degrades to the template generator
// on failure.
func buildSummaryGenerator(cfg *config.Config, log *logging.Logger) session.Generator {
	switch cfg.SummaryProvider {
	case config.SummaryProviderOpenAI, config.SummaryProviderAnthropic, config.SummaryProviderOllama:
		baseURL := cfg.SummaryBaseURL
		if baseURL == "" {
			switch cfg.SummaryProvider {
			case config.SummaryProviderOpenAI:
				baseURL = "https://api.openai.com/v1"
			case config.SummaryProviderAnthropic:
				baseURL = "https://api.anthropic.com/v1"
			case config.SummaryProviderOllama:
				baseURL = "http://localhost:11434/v1"
			}
		}
		return session.NewLLMGenerator(baseURL, cfg.SummaryModel, cfg.SummaryAPIKey, log.With("summary"))
	default:
		return session.NewTemplateGenerator()
	}
}

// initPlugins discovers and initializes every enabled plugin; a plugin that
// fails init stays in the error state without affecting its siblings.
func initPlugins(cfg *config.Config, host *pluginhost.Host, log *logging.Logger) {
	configured := make([]pluginhost.ConfiguredPlugin, 0, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		configured = append(configured, pluginhost.ConfiguredPlugin{Name: p.Name, Path: p.Path, Enabled: p.Enabled})
	}
	manifests, err := pluginhost.Discover(cfg.PluginDepRoot, cfg.PluginUserDir, configured)
	if err != nil {
		log.Warn().Err(err).Msg("plugin discovery failed")
		return
	}
	for _, m := range manifests {
		if !m.Enabled {
			continue
		}
		if err := host.Register(m); err != nil {
			log.Warn().Str("plugin", m.Name).Err(err).Msg("plugin rejected")
			continue
		}
		if err := host.Initialize(context.Background(), m.Name); err != nil {
			log.Warn().Str("plugin", m.Name).Err(err).Msg("plugin init failed")
		}
	}
}

func destroyPlugins(host *pluginhost.Host, log *logging.Logger) {
	for _, name := range host.Names() {
		if err := host.Destroy(context.Background(), name); err != nil {
			log.Warn().Str("plugin", name).Err(err).Msg("plugin destroy failed")
		}
	}
}

// pluginHooks adapts the plugin host onto the narrow dispatch interfaces
// ingest and the HTTP session routes depend on.
type pluginHooks struct {
	host *pluginhost.Host
}

func (h *pluginHooks) OnObservation(ctx context.Context, o *store.Observation) {
	h.host.Emit(ctx, pluginhost.HookOnObservation, eventbus.ObservationCreatedEvent{
		ID: o.ID, Project: o.Project, Type: o.Type, Title: o.Title, CreatedAtEpoch: o.CreatedAtEpoch,
	})
}

func (h *pluginHooks) OnSummary(ctx context.Context, sm *store.Summary) {
	h.host.Emit(ctx, pluginhost.HookOnSummary, eventbus.SummaryCreatedEvent{
		ID: sm.ID, SessionID: sm.SessionID, Project: sm.Project, CreatedAtEpoch: sm.CreatedAtEpoch,
	})
}

func (h *pluginHooks) OnSessionStart(ctx context.Context, sess *store.Session) {
	h.host.Emit(ctx, pluginhost.HookOnSessionStart, eventbus.SessionStartedEvent{
		ID: sess.ID, ContentSessionID: sess.ContentSessionID, Project: sess.Project, StartedAtEpoch: sess.StartedAtEpoch,
	})
}

func (h *pluginHooks) OnSessionEnd(ctx context.Context, sess *store.Session) {
	completed := time.Now().UnixMilli()
	if sess.CompletedAtEpoch != nil {
		completed = *sess.CompletedAtEpoch
	}
	h.host.Emit(ctx, pluginhost.HookOnSessionEnd, eventbus.SessionCompletedEvent{
		ID: sess.ID, ContentSessionID: sess.ContentSessionID, Project: sess.Project, CompletedAtEpoch: completed,
	})
}

// wireBusToHub forwards every published bus event to the SSE hub under its
// dashed SSE event name.
func wireBusToHub(bus *eventbus.Bus, hub *sse.Hub, log *logging.Logger) {
	subjects := []string{
		eventbus.SubjectObservationCreated,
		eventbus.SubjectSummaryCreated,
		eventbus.SubjectCheckpointCreated,
		eventbus.SubjectSessionStarted,
		eventbus.SubjectSessionCompleted,
	}
	for _, subject := range subjects {
		name := strings.ReplaceAll(subject, ".", "-")
		if _, err := bus.Subscribe(subject, func(msg eventbus.Message) {
			hub.Broadcast(sse.Event{Name: name, Data: json.RawMessage(msg.Data)})
		}); err != nil {
			log.Warn().Str("subject", subject).Err(err).Msg("bus subscription failed")
		}
	}
}

func writeRuntimeFiles(pidPath, tokenPath, token string) error {
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return err
	}
	return os.WriteFile(tokenPath, []byte(token), 0o600)
}

func removeRuntimeFiles(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
