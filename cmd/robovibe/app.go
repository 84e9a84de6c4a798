package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/robovibe-agent/internal/adapters/backup"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/llm"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/settings"
	firestorestore "github.com/PabloGalante/robovibe-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/robovibe-agent/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/robovibe-agent/internal/adapters/storage/redis"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/studio"
	"github.com/PabloGalante/robovibe-agent/internal/app/conversation"
	"github.com/PabloGalante/robovibe-agent/internal/app/planner"
	"github.com/PabloGalante/robovibe-agent/internal/config"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/knowledge"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// application holds the wired components shared by the commands.
type application struct {
	cfg     *config.Config
	svc     *conversation.Service
	client  *studio.Client
	monitor *studio.Monitor
	model   domain.ModelClient

	closers []func() error
}

func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// loadConfig reads the environment and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("mcp-url"); v != "" {
		cfg.MCPURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	observability.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func buildApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	log := observability.Logger()
	app := &application{cfg: cfg}

	kb, err := knowledge.NewStore()
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	var (
		store domain.ConversationStore
		plans domain.PlanLog
	)
	switch cfg.StorageBackend {
	case "redis":
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		store, plans = rs, rs
		app.closers = append(app.closers, rs.Close)
	case "firestore":
		if cfg.GCPProjectID == "" {
			return nil, errors.New("ROBOVIBE_GCP_PROJECT is required for the firestore storage backend")
		}
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, fmt.Errorf("initializing firestore store: %w", err)
		}
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		// 1 store, implements 2 interfaces
		store, plans = fs, fs
		app.closers = append(app.closers, fs.Close)
	default:
		log.Info("using in-memory storage")
		store, plans = memstore.NewConversationStore(), memstore.NewPlanLog()
	}

	var transport studio.Transport
	switch cfg.MCPTransport {
	case "mcp":
		mt := studio.NewMCPTransport(cfg.MCPURL, cfg.MCPCallTimeout)
		app.closers = append(app.closers, mt.Close)
		transport = mt
	default:
		transport = studio.NewRESTTransport(cfg.MCPURL, cfg.MCPCallTimeout)
	}
	log.Info("studio gateway", "transport", cfg.MCPTransport, "url", cfg.MCPURL)
	app.client = studio.NewClient(transport)
	app.monitor = studio.NewMonitor(app.client, cfg.StatusInterval)

	if cfg.UseMockLLM {
		log.Info("using mock model client")
		app.model = llm.NewMockLLM()
	} else {
		gc := llm.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			ModelName: cfg.ModelName,
		}
		if cfg.Mode == config.ModeGCP {
			gc.Project = cfg.GCPProjectID
			gc.Location = cfg.GCPLocation
		}
		g, err := llm.NewGeminiClient(ctx, gc, kb.SystemContext())
		if err != nil {
			return nil, fmt.Errorf("initializing gemini client: %w", err)
		}
		log.Info("using gemini model client", "model", cfg.ModelName, "configured", g.Configured())
		app.model = g
	}

	settingsStore := settings.NewFileStore(cfg.SettingsPath, domain.Settings{MCPURL: cfg.MCPURL})
	snapshots := backup.NewSnapshotter(cfg.BackupDir, cfg.SettingsPath, store)

	p := planner.New(planner.Deps{
		Model:     app.model,
		Studio:    app.client,
		Store:     store,
		Knowledge: kb,
		Plans:     plans,
		Backups:   snapshots,
		Connected: app.monitor.Connected,
	}, planner.Config{
		HistoryLimit:  cfg.HistoryLimit,
		ContextBudget: cfg.ContextBudget,
		RejectBusy:    cfg.RejectBusy,
	})

	app.svc = conversation.NewService(conversation.Deps{
		Planner:  p,
		Model:    app.model,
		Store:    store,
		Plans:    plans,
		Studio:   app.client,
		Settings: settingsStore,
		Backups:  snapshots,
	})

	if err := app.svc.ApplyStoredSettings(ctx); err != nil {
		log.Warn("ignoring stored settings", "path", cfg.SettingsPath, "error", err)
	}

	return app, nil
}
