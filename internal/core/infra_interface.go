package core

import (
	"context"

	"github.com/markdave123-py/memora/internal/models"
)

// ContextStore defines all persistence operations the pipeline needs.
// It abstracts Postgres so higher layers never depend on a specific DB.
// Every call is tenant-scoped; isolation is enforced here, at the query
// layer, so a handler bug cannot leak cross-tenant data by construction.
type ContextStore interface {
	// CreateOrGetUser upserts by (tenantID, externalID) and returns the
	// user. A fresh access credential is generated only on first creation.
	CreateOrGetUser(ctx context.Context, tenantID, externalID, email string) (*models.User, error)
	// ResolveCredential maps an access credential to its owner, or a
	// NotFound error.
	ResolveCredential(ctx context.Context, apiKey string) (*models.Identity, error)
	GetUserByExternalID(ctx context.Context, tenantID, externalID string) (*models.User, error)
	UpdateUserSettings(ctx context.Context, userID int64, tenantID string, settings models.JSONDoc) error
	TouchLastActive(ctx context.Context, userID int64) error
	// DeleteUser removes the user and cascades to all context entries.
	DeleteUser(ctx context.Context, userID int64, tenantID string) error

	// UpsertEntry inserts, or on upsert-key collision replaces content and
	// metadata and bumps updated_at. Idempotent under retry. The returned
	// entry reflects the row after the write.
	UpsertEntry(ctx context.Context, userID int64, tenantID, contextType string, content models.JSONDoc, sourceIdentifier *string, metadata models.JSONDoc) (*models.ContextEntry, error)
	// GetEntries returns entries most recent first; an empty slice, not
	// an error, when nothing matches.
	GetEntries(ctx context.Context, userID int64, tenantID, contextType string, sourceIdentifier *string, limit int) ([]models.ContextEntry, error)
	// SearchEntries is a best-effort substring match over serialized
	// content, recency as the only ranking.
	SearchEntries(ctx context.Context, userID int64, tenantID, query string, limit int) ([]models.ContextEntry, error)
	// The delete calls verify ownership and treat a non-owned or absent
	// target as a no-op success.
	DeleteEntry(ctx context.Context, id, userID int64, tenantID string) error
	DeleteByType(ctx context.Context, userID int64, tenantID, contextType string) error
	DeleteAllForUser(ctx context.Context, userID int64, tenantID string) error

	Close() error
}

// LLMProvider generates text from a system instruction and a user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
