package models

import (
	"encoding/json"
	"time"
)

// JSONDoc is a semi-structured document stored as JSONB.
type JSONDoc map[string]any

// Marshal serializes the document for a JSONB column. A nil document
// marshals to SQL NULL rather than the string "null".
func (d JSONDoc) Marshal() ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// User represents one human within one tenant.
type User struct {
	ID         int64     `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Email      string    `db:"email" json:"email"`
	APIKey     string    `db:"api_key" json:"-"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	Settings   JSONDoc   `db:"settings" json:"settings"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastActive time.Time `db:"last_active" json:"last_active"`
}

// ContextEntry is one unit of stored raw or derived context. TenantID is
// duplicated from the owning user so every query can be tenant-scoped
// without a join.
type ContextEntry struct {
	ID               int64     `db:"id" json:"id"`
	UserID           int64     `db:"user_id" json:"user_id"`
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	ContextType      string    `db:"context_type" json:"context_type"`
	SourceIdentifier *string   `db:"source_identifier" json:"source_identifier,omitempty"`
	Content          JSONDoc   `db:"content" json:"content"`
	Metadata         JSONDoc   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Identity is a resolved (tenant, user) pair. Everything past the access
// gate works with this, never with raw credentials.
type Identity struct {
	TenantID string `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
}

// RetrievalResult is what the context router hands back to the caller.
type RetrievalResult struct {
	Domain        string `json:"domain"`
	Text          string `json:"text"`
	RawEntryCount int    `json:"raw_entry_count"`
	// Defaulted reports that the classifier fell back to the default
	// domain instead of matching the query to one.
	Defaulted bool `json:"defaulted,omitempty"`
}
