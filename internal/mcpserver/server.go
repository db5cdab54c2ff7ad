// Package mcpserver exposes the context pipeline to AI clients over MCP.
// It is wiring only: tool definitions and the translation between tool
// arguments and the core's store/retrieve operations.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/auth"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core"
)

// Version is set at build time via ldflags.
var Version = "dev"

const serverInstructions = "Memora is the user's personal context layer. " +
	"Call retrieve_context with a natural-language query whenever personal context " +
	"(notes, code activity, preferences, past conversations) would improve an answer; " +
	"call store_context to remember new facts the user shares."

// New creates the MCP server with the store and retrieve tools registered.
func New(gate *auth.Gate, router *contextpipe.Router, store core.ContextStore, log *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"memora",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	storeTool := NewStoreTool(gate, store, log)
	s.AddTool(storeTool.Definition(), storeTool.Handle)

	retrieveTool := NewRetrieveTool(gate, router, log)
	s.AddTool(retrieveTool.Definition(), retrieveTool.Handle)

	return s
}

// ServeStdio runs the server over stdio until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
