package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/config"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

const defaultEntryLimit = 50

type DatabaseClient struct {
	db  *sql.DB
	log *zap.Logger
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (core.ContextStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, log: log}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// generateAPIKey returns a 64-char hex credential from 32 random bytes.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User management

func (c *DatabaseClient) CreateOrGetUser(ctx context.Context, tenantID, externalID, email string) (*models.User, error) {
	if externalID == "" {
		return nil, errors.New("external id is required")
	}
	if tenantID == "" {
		tenantID = "default"
	}

	existing, err := c.GetUserByExternalID(ctx, tenantID, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO users (tenant_id, external_id, email, api_key)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING id, tenant_id, external_id, COALESCE(email, ''), api_key, is_active, settings, created_at, last_active
	`
	u, err := c.scanUser(c.db.QueryRowContext(ctx, q, tenantID, externalID, email, apiKey))
	if err == nil {
		c.log.Info("created user",
			zap.String("tenant_id", tenantID),
			zap.Int64("user_id", u.ID))
		return u, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Another request created the same user between the select and the
	// insert; the stored credential wins.
	existing, err = c.GetUserByExternalID(ctx, tenantID, externalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("user vanished after unique violation: tenant=%s", tenantID)
	}
	return existing, nil
}

func (c *DatabaseClient) GetUserByExternalID(ctx context.Context, tenantID, externalID string) (*models.User, error) {
	const q = `
		SELECT id, tenant_id, external_id, COALESCE(email, ''), api_key, is_active, settings, created_at, last_active
		FROM users WHERE tenant_id = $1 AND external_id = $2
	`
	u, err := c.scanUser(c.db.QueryRowContext(ctx, q, tenantID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (c *DatabaseClient) ResolveCredential(ctx context.Context, apiKey string) (*models.Identity, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.NotFound, "unknown credential")
	}
	const q = `SELECT id, tenant_id FROM users WHERE api_key = $1 AND is_active`
	var id models.Identity
	err := c.db.QueryRowContext(ctx, q, apiKey).Scan(&id.UserID, &id.TenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "unknown credential")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	return &id, nil
}

func (c *DatabaseClient) UpdateUserSettings(ctx context.Context, userID int64, tenantID string, settings models.JSONDoc) error {
	raw, err := settings.Marshal()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if raw == nil {
		raw = []byte("{}")
	}
	const q = `UPDATE users SET settings = $3 WHERE id = $1 AND tenant_id = $2`
	if _, err := c.db.ExecContext(ctx, q, userID, tenantID, raw); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

func (c *DatabaseClient) TouchLastActive(ctx context.Context, userID int64) error {
	const q = `UPDATE users SET last_active = now() WHERE id = $1`
	if _, err := c.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("touch last_active: %w", err)
	}
	return nil
}

// DeleteUser removes the user row; the foreign key cascades to every
// context entry the user owns.
func (c *DatabaseClient) DeleteUser(ctx context.Context, userID int64, tenantID string) error {
	const q = `DELETE FROM users WHERE id = $1 AND tenant_id = $2`
	res, err := c.db.ExecContext(ctx, q, userID, tenantID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.log.Info("deleted user and cascaded context",
			zap.Int64("user_id", userID),
			zap.String("tenant_id", tenantID))
	}
	return nil
}

// Context entries

func (c *DatabaseClient) UpsertEntry(ctx context.Context, userID int64, tenantID, contextType string, content models.JSONDoc, sourceIdentifier *string, metadata models.JSONDoc) (*models.ContextEntry, error) {
	if contextType == "" {
		return nil, errors.New("context type is required")
	}
	if content == nil {
		return nil, errors.New("content is required")
	}

	contentJSON, err := content.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	metadataJSON, err := metadata.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	// The upsert key is (tenant_id, user_id, context_type, source_identifier).
	// NULL source identifiers never collide, so entries without an origin
	// key always insert fresh rows.
	const q = `
		INSERT INTO context (user_id, tenant_id, context_type, source_identifier, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id, context_type, source_identifier)
		DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			updated_at = now()
		RETURNING id, user_id, tenant_id, context_type, source_identifier, content, metadata, created_at, updated_at
	`
	entry, err := scanEntryRow(c.db.QueryRowContext(ctx, q, userID, tenantID, contextType, sourceIdentifier, contentJSON, metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}
	return entry, nil
}

func (c *DatabaseClient) GetEntries(ctx context.Context, userID int64, tenantID, contextType string, sourceIdentifier *string, limit int) ([]models.ContextEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	q := `
		SELECT id, user_id, tenant_id, context_type, source_identifier, content, metadata, created_at, updated_at
		FROM context
		WHERE tenant_id = $1 AND user_id = $2 AND context_type = $3
	`
	args := []any{tenantID, userID, contextType}
	if sourceIdentifier != nil {
		q += ` AND source_identifier = $4`
		args = append(args, *sourceIdentifier)
	}
	q += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (c *DatabaseClient) SearchEntries(ctx context.Context, userID int64, tenantID, query string, limit int) ([]models.ContextEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	// Best-effort substring match over the serialized content; recency is
	// the only ranking.
	const q = `
		SELECT id, user_id, tenant_id, context_type, source_identifier, content, metadata, created_at, updated_at
		FROM context
		WHERE tenant_id = $1 AND user_id = $2 AND content::text ILIKE '%' || $3 || '%'
		ORDER BY updated_at DESC
		LIMIT $4
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// The delete calls are scoped by tenant and user so a request can never
// remove another tenant's rows. Deleting nothing is a no-op success.

func (c *DatabaseClient) DeleteEntry(ctx context.Context, id, userID int64, tenantID string) error {
	const q = `DELETE FROM context WHERE id = $1 AND user_id = $2 AND tenant_id = $3`
	if _, err := c.db.ExecContext(ctx, q, id, userID, tenantID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (c *DatabaseClient) DeleteByType(ctx context.Context, userID int64, tenantID, contextType string) error {
	const q = `DELETE FROM context WHERE user_id = $1 AND tenant_id = $2 AND context_type = $3`
	if _, err := c.db.ExecContext(ctx, q, userID, tenantID, contextType); err != nil {
		return fmt.Errorf("delete by type: %w", err)
	}
	return nil
}

func (c *DatabaseClient) DeleteAllForUser(ctx context.Context, userID int64, tenantID string) error {
	const q = `DELETE FROM context WHERE user_id = $1 AND tenant_id = $2`
	if _, err := c.db.ExecContext(ctx, q, userID, tenantID); err != nil {
		return fmt.Errorf("delete all for user: %w", err)
	}
	return nil
}

// Row scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *DatabaseClient) scanUser(row rowScanner) (*models.User, error) {
	var (
		u        models.User
		settings []byte
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.Email, &u.APIKey, &u.IsActive, &settings, &u.CreatedAt, &u.LastActive); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &u.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &u, nil
}

func scanEntryRow(row rowScanner) (*models.ContextEntry, error) {
	var (
		e        models.ContextEntry
		content  []byte
		metadata []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.TenantID, &e.ContextType, &e.SourceIdentifier, &content, &metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &e.Content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]models.ContextEntry, error) {
	out := []models.ContextEntry{}
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
