package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/memora/internal/api/middlewares"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

// ContextHandler exposes the store and retrieve operations over HTTP.
type ContextHandler struct {
	store  core.ContextStore
	router *contextpipe.Router
	log    *zap.Logger
}

func NewContextHandler(store core.ContextStore, router *contextpipe.Router, log *zap.Logger) *ContextHandler {
	return &ContextHandler{store: store, router: router, log: log}
}

type storeRequest struct {
	ContextType      string         `json:"context_type"`
	Content          models.JSONDoc `json:"content"`
	SourceIdentifier *string        `json:"source_identifier,omitempty"`
	Metadata         models.JSONDoc `json:"metadata,omitempty"`
}

// Store upserts one context entry for the authenticated user.
func (h *ContextHandler) Store(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContextType == "" || req.Content == nil {
		http.Error(w, "context_type and content are required", http.StatusBadRequest)
		return
	}

	entry, err := h.store.UpsertEntry(r.Context(), id.UserID, id.TenantID, req.ContextType, req.Content, req.SourceIdentifier, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type retrieveRequest struct {
	Query       string `json:"query"`
	ContextType string `json:"context_type,omitempty"`
}

// Retrieve runs the full pipeline: classify (unless overridden), fetch,
// summarize.
func (h *ContextHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	result, err := h.router.Retrieve(r.Context(), id, req.Query, req.ContextType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// List returns raw entries of one type, most recent first.
func (h *ContextHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	contextType := r.URL.Query().Get("context_type")
	if contextType == "" {
		http.Error(w, "context_type is required", http.StatusBadRequest)
		return
	}
	var source *string
	if s := r.URL.Query().Get("source_identifier"); s != "" {
		source = &s
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.store.GetEntries(r.Context(), id.UserID, id.TenantID, contextType, source, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Search runs the best-effort substring search over stored content.
func (h *ContextHandler) Search(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.store.SearchEntries(r.Context(), id.UserID, id.TenantID, query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// DeleteEntry removes one owned entry; deleting an absent or non-owned id
// succeeds without effect.
func (h *ContextHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteEntry(r.Context(), entryID, id.UserID, id.TenantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByType removes every owned entry of one type.
func (h *ContextHandler) DeleteByType(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	contextType := chi.URLParam(r, "type")
	if err := h.store.DeleteByType(r.Context(), id.UserID, id.TenantID, contextType); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll removes every owned entry across all types.
func (h *ContextHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.store.DeleteAllForUser(r.Context(), id.UserID, id.TenantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount removes the user and cascades to all context entries.
func (h *ContextHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.store.DeleteUser(r.Context(), id.UserID, id.TenantID); err != nil {
		writeError(w, err)
		return
	}
	h.log.Info("account deleted", zap.Int64("user_id", id.UserID), zap.String("tenant_id", id.TenantID))
	w.WriteHeader(http.StatusNoContent)
}

// Refresh re-syncs every connector-backed domain for the user.
func (h *ContextHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.router.RefreshAll(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
