// Package coretest provides in-memory fakes of the core interfaces for
// pipeline tests. The fake store mirrors the real store's semantics:
// tenant-scoped queries, upsert-by-key, recency ordering, idempotent
// deletes and cascade on user removal.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

type FakeStore struct {
	mu          sync.Mutex
	users       []models.User
	entries     []models.ContextEntry
	nextUserID  int64
	nextEntryID int64
	// TouchedUsers records TouchLastActive calls for assertions.
	TouchedUsers []int64

	now time.Time
}

var _ core.ContextStore = (*FakeStore)(nil)

func NewFakeStore() *FakeStore {
	return &FakeStore{nextUserID: 1, nextEntryID: 1, now: time.Now()}
}

// tick advances the fake clock so recency ordering is deterministic even
// within one test.
func (s *FakeStore) tick() time.Time {
	s.now = s.now.Add(time.Millisecond)
	return s.now
}

func (s *FakeStore) CreateOrGetUser(_ context.Context, tenantID, externalID, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenantID == "" {
		tenantID = "default"
	}
	for i := range s.users {
		if s.users[i].TenantID == tenantID && s.users[i].ExternalID == externalID {
			u := s.users[i]
			return &u, nil
		}
	}
	u := models.User{
		ID:         s.nextUserID,
		TenantID:   tenantID,
		ExternalID: externalID,
		Email:      email,
		APIKey:     fmt.Sprintf("key-%d-%s", s.nextUserID, tenantID),
		IsActive:   true,
		CreatedAt:  s.tick(),
		LastActive: s.now,
	}
	s.nextUserID++
	s.users = append(s.users, u)
	return &u, nil
}

func (s *FakeStore) ResolveCredential(_ context.Context, apiKey string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].APIKey == apiKey && s.users[i].IsActive {
			return &models.Identity{TenantID: s.users[i].TenantID, UserID: s.users[i].ID}, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "unknown credential")
}

func (s *FakeStore) GetUserByExternalID(_ context.Context, tenantID, externalID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].TenantID == tenantID && s.users[i].ExternalID == externalID {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) UpdateUserSettings(_ context.Context, userID int64, tenantID string, settings models.JSONDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID && s.users[i].TenantID == tenantID {
			s.users[i].Settings = settings
		}
	}
	return nil
}

func (s *FakeStore) TouchLastActive(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TouchedUsers = append(s.TouchedUsers, userID)
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i].LastActive = s.tick()
		}
	}
	return nil
}

func (s *FakeStore) DeleteUser(_ context.Context, userID int64, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.users[:0]
	for _, u := range s.users {
		if u.ID == userID && u.TenantID == tenantID {
			continue
		}
		users = append(users, u)
	}
	s.users = users

	// cascade
	entries := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID == userID && e.TenantID == tenantID {
			continue
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func (s *FakeStore) UpsertEntry(_ context.Context, userID int64, tenantID, contextType string, content models.JSONDoc, sourceIdentifier *string, metadata models.JSONDoc) (*models.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sourceIdentifier != nil {
		for i := range s.entries {
			e := &s.entries[i]
			if e.TenantID == tenantID && e.UserID == userID && e.ContextType == contextType &&
				e.SourceIdentifier != nil && *e.SourceIdentifier == *sourceIdentifier {
				e.Content = content
				e.Metadata = metadata
				e.UpdatedAt = s.tick()
				out := *e
				return &out, nil
			}
		}
	}
	now := s.tick()
	e := models.ContextEntry{
		ID:               s.nextEntryID,
		UserID:           userID,
		TenantID:         tenantID,
		ContextType:      contextType,
		SourceIdentifier: sourceIdentifier,
		Content:          content,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.nextEntryID++
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *FakeStore) GetEntries(_ context.Context, userID int64, tenantID, contextType string, sourceIdentifier *string, limit int) ([]models.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ContextEntry{}
	for _, e := range s.entries {
		if e.TenantID != tenantID || e.UserID != userID || e.ContextType != contextType {
			continue
		}
		if sourceIdentifier != nil && (e.SourceIdentifier == nil || *e.SourceIdentifier != *sourceIdentifier) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FakeStore) SearchEntries(_ context.Context, userID int64, tenantID, query string, limit int) ([]models.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ContextEntry{}
	for _, e := range s.entries {
		if e.TenantID != tenantID || e.UserID != userID {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(map[string]any(e.Content))), strings.ToLower(query)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FakeStore) DeleteEntry(_ context.Context, id, userID int64, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[:0]
	for _, e := range s.entries {
		if e.ID == id && e.UserID == userID && e.TenantID == tenantID {
			continue
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func (s *FakeStore) DeleteByType(_ context.Context, userID int64, tenantID, contextType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID == userID && e.TenantID == tenantID && e.ContextType == contextType {
			continue
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func (s *FakeStore) DeleteAllForUser(_ context.Context, userID int64, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID == userID && e.TenantID == tenantID {
			continue
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func (s *FakeStore) Close() error { return nil }

// BackdateEntries shifts every stored entry into the past, for staleness
// tests.
func (s *FakeStore) BackdateEntries(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		s.entries[i].CreatedAt = s.entries[i].CreatedAt.Add(-d)
		s.entries[i].UpdatedAt = s.entries[i].UpdatedAt.Add(-d)
	}
}

// EntryCount reports how many entries currently exist across all tenants.
func (s *FakeStore) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
