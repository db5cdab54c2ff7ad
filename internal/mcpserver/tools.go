package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/auth"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

// resolveIdentity authenticates a tool call. Desktop clients run the
// server as a subprocess, so the credential arrives via environment
// rather than per-request transport headers.
func resolveIdentity(ctx context.Context, gate *auth.Gate) (*models.Identity, error) {
	credential := os.Getenv("MEMORA_API_KEY")

	var claimed *int64
	if raw := os.Getenv("MEMORA_USER_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			claimed = &id
		}
	}

	return gate.Resolve(ctx, credential, claimed)
}

// StoreTool handles the store_context MCP tool.
type StoreTool struct {
	gate  *auth.Gate
	store core.ContextStore
	log   *zap.Logger
}

func NewStoreTool(gate *auth.Gate, store core.ContextStore, log *zap.Logger) *StoreTool {
	return &StoreTool{gate: gate, store: store, log: log}
}

func (t *StoreTool) Definition() mcp.Tool {
	return mcp.NewTool("store_context",
		mcp.WithDescription(
			"Store a piece of personal context for the user: a note, a fact, a preference, "+
				"or a record from an external system. Re-storing the same source_identifier "+
				"updates the existing entry instead of duplicating it.",
		),
		mcp.WithString("context_type",
			mcp.Required(),
			mcp.Description("Category of the entry, e.g. note, values, github"),
		),
		mcp.WithObject("content",
			mcp.Required(),
			mcp.Description("The structured payload to store"),
		),
		mcp.WithString("source_identifier",
			mcp.Description("Natural key from the origin system (commit id, file path, note id). Omit for free-form entries."),
		),
		mcp.WithObject("metadata",
			mcp.Description("Optional tags and provenance"),
		),
	)
}

func (t *StoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := resolveIdentity(ctx, t.gate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	contextType := req.GetString("context_type", "")
	if contextType == "" {
		return mcp.NewToolResultError("context_type is required"), nil
	}

	args := req.GetArguments()
	content, ok := args["content"].(map[string]any)
	if !ok || len(content) == 0 {
		return mcp.NewToolResultError("content must be a non-empty object"), nil
	}
	var metadata models.JSONDoc
	if m, ok := args["metadata"].(map[string]any); ok {
		metadata = m
	}
	var source *string
	if s := req.GetString("source_identifier", ""); s != "" {
		source = &s
	}

	entry, err := t.store.UpsertEntry(ctx, id.UserID, id.TenantID, contextType, content, source, metadata)
	if err != nil {
		t.log.Error("store_context failed", zap.Error(err))
		return mcp.NewToolResultError("could not store the entry"), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Stored entry %d in the %q bank.", entry.ID, contextType)), nil
}

// RetrieveTool handles the retrieve_context MCP tool.
type RetrieveTool struct {
	gate   *auth.Gate
	router *contextpipe.Router
	log    *zap.Logger
}

func NewRetrieveTool(gate *auth.Gate, router *contextpipe.Router, log *zap.Logger) *RetrieveTool {
	return &RetrieveTool{gate: gate, router: router, log: log}
}

func (t *RetrieveTool) Definition() mcp.Tool {
	return mcp.NewTool("retrieve_context",
		mcp.WithDescription(
			"Retrieve relevant personal context for a natural-language query. The query is "+
				"classified to one context domain (github, notes, values, conversations, tasks, "+
				"work, media, locations) and summarized against the stored entries.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What you want to know about the user"),
		),
		mcp.WithString("context_type",
			mcp.Description("Explicit domain override; skips classification when it names a known domain"),
		),
	)
}

func (t *RetrieveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := resolveIdentity(ctx, t.gate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	override := req.GetString("context_type", "")

	result, err := t.router.Retrieve(ctx, *id, query, override)
	if err != nil {
		t.log.Error("retrieve_context failed", zap.Error(err))
		return mcp.NewToolResultError("could not retrieve context"), nil
	}

	header := fmt.Sprintf("[domain: %s, entries: %d]\n", result.Domain, result.RawEntryCount)
	return mcp.NewToolResultText(header + result.Text), nil
}
