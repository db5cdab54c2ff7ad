// Package app is the composition root: it constructs the store, the LLM
// client, the gate and the router, and wires them into the HTTP server.
// Lifecycle is owned here; nothing hangs off ambient global state.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/auth"
	"github.com/markdave123-py/memora/internal/config"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core"
	db "github.com/markdave123-py/memora/internal/core/database"
	"github.com/markdave123-py/memora/internal/core/llm"
)

type App struct {
	Store  core.ContextStore
	LLM    *llm.GeminiLLM
	Gate   *auth.Gate
	Router *contextpipe.Router
	Server *Server
	log    *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	gate := auth.NewGate(store, log, cfg.PermissiveAuth, cfg.DefaultTenant)

	// Connector fetchers (GitHub, Obsidian, ...) are registered here when
	// configured; an empty table means every domain serves its cache.
	router := contextpipe.NewRouter(store, llmProvider, contextpipe.Fetchers{}, log)

	server := NewServer(cfg, store, gate, router, log)

	return &App{Store: store, LLM: llmProvider, Gate: gate, Router: router, Server: server, log: log}, nil
}

func (a *App) Close() {
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
