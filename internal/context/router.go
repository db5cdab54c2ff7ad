package contextpipe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

// Router is the top-level entry point of the pipeline: override or
// classify, then dispatch to the matching domain handler. It holds no
// business logic beyond that.
type Router struct {
	classifier *Classifier
	handlers   map[Domain]*Handler
	log        *zap.Logger
}

// Fetchers optionally binds connector-backed domains to their upstream
// sources. Domains without a fetcher serve the cache only.
type Fetchers map[Domain]UpstreamFetcher

// NewRouter builds the dispatch table over the full closed domain set.
func NewRouter(store core.ContextStore, llm core.LLMProvider, fetchers Fetchers, log *zap.Logger) *Router {
	summarizer := NewSummarizer(llm, log)
	handlers := make(map[Domain]*Handler, len(AllDomains))
	for _, d := range AllDomains {
		handlers[d] = NewHandler(d, store, summarizer, fetchers[d], log)
	}
	return &Router{
		classifier: NewClassifier(llm, log),
		handlers:   handlers,
		log:        log,
	}
}

// Retrieve answers a query from the caller's stored context. A
// requestedDomain naming a known domain bypasses the classifier entirely;
// unknown values fall through to classification rather than erroring, to
// stay forgiving toward imperfect tool-call arguments.
func (r *Router) Retrieve(ctx context.Context, id models.Identity, query, requestedDomain string) (*models.RetrievalResult, error) {
	domain, defaulted := Domain(""), false
	if d, ok := ParseDomain(requestedDomain); ok {
		domain = d
	} else {
		domain, defaulted = r.classifier.Classify(ctx, query)
	}

	handler, ok := r.handlers[domain]
	if !ok {
		// Unreachable while the dispatch table covers AllDomains; kept as
		// a guard against a half-wired table.
		return nil, fmt.Errorf("no handler for domain %q", domain)
	}

	r.log.Debug("dispatching retrieval",
		zap.String("domain", string(domain)),
		zap.Bool("defaulted", defaulted),
		zap.Int64("user_id", id.UserID))

	text, count, err := handler.GetContext(ctx, id, query)
	if err != nil {
		return nil, err
	}
	return &models.RetrievalResult{
		Domain:        string(domain),
		Text:          text,
		RawEntryCount: count,
		Defaulted:     defaulted,
	}, nil
}

// RefreshAll refreshes every connector-backed domain concurrently. The
// first failure cancels the remaining fetches and is returned.
func (r *Router) RefreshAll(ctx context.Context, id models.Identity) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range AllDomains {
		h := r.handlers[d]
		if h.fetcher == nil {
			continue
		}
		g.Go(func() error {
			return h.Refresh(gctx, id)
		})
	}
	return g.Wait()
}
