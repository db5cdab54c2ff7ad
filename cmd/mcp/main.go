package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/auth"
	"github.com/markdave123-py/memora/internal/config"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	db "github.com/markdave123-py/memora/internal/core/database"
	"github.com/markdave123-py/memora/internal/core/llm"
	"github.com/markdave123-py/memora/internal/logger"
	"github.com/markdave123-py/memora/internal/mcpserver"
)

func main() {
	ctx := context.Background()

	cfg := config.LoadConfig()

	// Stdio carries the protocol, so logs must stay off stdout.
	zlog, err := logger.New("production", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	store, err := db.NewDatabaseClient(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("database init failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	llmProvider, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		zlog.Fatal("llm init failed", zap.Error(err))
	}
	defer func() { _ = llmProvider.Close() }()

	gate := auth.NewGate(store, zlog, cfg.PermissiveAuth, cfg.DefaultTenant)
	router := contextpipe.NewRouter(store, llmProvider, contextpipe.Fetchers{}, zlog)

	s := mcpserver.New(gate, router, store, zlog)
	if err := mcpserver.ServeStdio(s); err != nil {
		zlog.Fatal("mcp server error", zap.Error(err))
	}
}
