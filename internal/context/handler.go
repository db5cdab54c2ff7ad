package contextpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

const (
	// defaultMaxEntries bounds how many rows feed one summarization prompt.
	defaultMaxEntries = 20
	// defaultMaxEntryChars bounds the serialized content of a single entry.
	defaultMaxEntryChars = 1000
	// defaultStaleAfter is how old the newest cached row may be before an
	// upstream-backed handler refreshes.
	defaultStaleAfter = time.Hour
	// summaryRetryBackoff is the pause before the single summarization retry.
	summaryRetryBackoff = 500 * time.Millisecond
)

// domainHeaders label the formatted block per domain.
var domainHeaders = map[Domain]string{
	DomainGitHub:        "GITHUB ACTIVITY:",
	DomainNotes:         "PERSONAL NOTES:",
	DomainValues:        "PERSONAL VALUES & PREFERENCES:",
	DomainConversations: "CONVERSATION HISTORY:",
	DomainTasks:         "TASKS & PLANS:",
	DomainWork:          "WORK CONTEXT:",
	DomainMedia:         "MEDIA HISTORY:",
	DomainLocations:     "LOCATIONS & TRAVEL:",
}

// UpstreamItem is one record produced by a connector fetch.
type UpstreamItem struct {
	SourceIdentifier string
	Content          models.JSONDoc
	Metadata         models.JSONDoc
}

// UpstreamFetcher pulls fresh records for a domain from its origin system.
// Connectors are opaque to the pipeline; only the cache-then-serve contract
// matters here.
type UpstreamFetcher interface {
	Fetch(ctx context.Context, id models.Identity) ([]UpstreamItem, error)
}

// Handler owns fetch-or-refresh and summarization for one domain. All
// domains share this implementation; they differ only in prompt, header
// and (optionally) an upstream fetcher.
type Handler struct {
	domain        Domain
	store         core.ContextStore
	summarizer    *Summarizer
	fetcher       UpstreamFetcher // nil when the domain has no upstream source
	log           *zap.Logger
	maxEntries    int
	maxEntryChars int
	staleAfter    time.Duration
}

func NewHandler(domain Domain, store core.ContextStore, summarizer *Summarizer, fetcher UpstreamFetcher, log *zap.Logger) *Handler {
	return &Handler{
		domain:        domain,
		store:         store,
		summarizer:    summarizer,
		fetcher:       fetcher,
		log:           log,
		maxEntries:    defaultMaxEntries,
		maxEntryChars: defaultMaxEntryChars,
		staleAfter:    defaultStaleAfter,
	}
}

// Domain returns the domain this handler serves.
func (h *Handler) Domain() Domain { return h.domain }

// GetContext fetches (refreshing from upstream first when the cache is
// empty or stale), formats and summarizes this domain's context. The
// caller always sees post-refresh data; a failed refresh may still serve
// the stale cache.
func (h *Handler) GetContext(ctx context.Context, id models.Identity, query string) (string, int, error) {
	entries, err := h.store.GetEntries(ctx, id.UserID, id.TenantID, string(h.domain), nil, h.maxEntries)
	if err != nil {
		return "", 0, err
	}

	if h.fetcher != nil && h.needsRefresh(entries) {
		if refreshErr := h.Refresh(ctx, id); refreshErr != nil {
			if len(entries) == 0 {
				return "", 0, refreshErr
			}
			h.log.Warn("upstream refresh failed, serving cached entries",
				zap.String("domain", string(h.domain)),
				zap.Error(refreshErr))
		} else {
			entries, err = h.store.GetEntries(ctx, id.UserID, id.TenantID, string(h.domain), nil, h.maxEntries)
			if err != nil {
				return "", 0, err
			}
		}
	}

	if len(entries) == 0 {
		return fmt.Sprintf("No stored %s context yet.", h.domain), 0, nil
	}

	formatted := h.formatEntries(entries)

	text, err := h.summarizer.Process(ctx, h.domain, formatted, query)
	if err == nil {
		return text, len(entries), nil
	}
	if !apperr.Is(err, apperr.SummarizationFailure) {
		return "", 0, err
	}

	// One retry with backoff, then propagate. Never paper over the failure
	// with fabricated text.
	select {
	case <-time.After(summaryRetryBackoff):
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
	text, err = h.summarizer.Process(ctx, h.domain, formatted, query)
	if err != nil {
		return "", 0, err
	}
	return text, len(entries), nil
}

// Refresh pulls fresh records from the upstream source and upserts them,
// so a subsequent read sees consistent post-refresh data.
func (h *Handler) Refresh(ctx context.Context, id models.Identity) error {
	if h.fetcher == nil {
		return nil
	}
	items, err := h.fetcher.Fetch(ctx, id)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamFetchFailure,
			fmt.Sprintf("could not refresh %s context", h.domain), err)
	}
	for _, item := range items {
		src := item.SourceIdentifier
		if src == "" {
			// Cached upstream items need a stable row; derive a key when
			// the origin system has none.
			src = uuid.NewString()
		}
		if _, err := h.store.UpsertEntry(ctx, id.UserID, id.TenantID, string(h.domain), item.Content, &src, item.Metadata); err != nil {
			return err
		}
	}
	h.log.Debug("refreshed domain from upstream",
		zap.String("domain", string(h.domain)),
		zap.Int("items", len(items)))
	return nil
}

func (h *Handler) needsRefresh(entries []models.ContextEntry) bool {
	if len(entries) == 0 {
		return true
	}
	if h.staleAfter <= 0 {
		return false
	}
	newest := entries[0].UpdatedAt
	for _, e := range entries[1:] {
		if e.UpdatedAt.After(newest) {
			newest = e.UpdatedAt
		}
	}
	return time.Since(newest) > h.staleAfter
}

// formatEntries renders entries into the bounded block the summarizer
// consumes: most recent first, capped at maxEntries rows and
// maxEntryChars serialized content per row. Truncation is deterministic.
func (h *Handler) formatEntries(entries []models.ContextEntry) string {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	if len(entries) > h.maxEntries {
		entries = entries[:h.maxEntries]
	}

	var b strings.Builder
	b.WriteString(domainHeaders[h.domain])
	b.WriteString("\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "--- Entry (ID: %d, Updated: %s", e.ID, e.UpdatedAt.UTC().Format(time.RFC3339))
		if e.SourceIdentifier != nil {
			fmt.Fprintf(&b, ", Source: %s", *e.SourceIdentifier)
		}
		b.WriteString(") ---\n")
		b.WriteString(truncate(renderContent(e.Content), h.maxEntryChars))
		b.WriteString("\n")
		if e.Metadata != nil {
			fmt.Fprintf(&b, "Metadata: %s\n", truncate(renderContent(e.Metadata), h.maxEntryChars))
		}
	}
	return b.String()
}

func renderContent(doc models.JSONDoc) string {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(doc))
	}
	return string(raw)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
