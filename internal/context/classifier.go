package contextpipe

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/core"
)

// Classifier maps a free-text query to one domain. It is total: every
// input, including the empty string, resolves to a known domain. The
// heuristic runs first so the common case never pays for an LLM call.
type Classifier struct {
	llm core.LLMProvider
	log *zap.Logger
}

func NewClassifier(llm core.LLMProvider, log *zap.Logger) *Classifier {
	return &Classifier{llm: llm, log: log}
}

// Classify returns the chosen domain and whether the classifier fell back
// to DefaultDomain because neither the heuristic nor the model produced a
// usable label. Callers that need determinism should pass an explicit
// domain override instead of relying on classification.
func (c *Classifier) Classify(ctx context.Context, query string) (Domain, bool) {
	if d, ok := classifyByKeywords(query); ok {
		c.log.Debug("classified by keyword heuristic",
			zap.String("domain", string(d)))
		return d, false
	}

	if c.llm != nil {
		if d, ok := c.classifyByLLM(ctx, query); ok {
			return d, false
		}
	}

	c.log.Debug("classification defaulted", zap.String("domain", string(DefaultDomain)))
	return DefaultDomain, true
}

// classifyByKeywords scores each domain by keyword hits and returns a
// domain only when exactly one has the strictly positive maximum score.
func classifyByKeywords(query string) (Domain, bool) {
	tokens := tokenize(query)
	lower := strings.ToLower(query)

	best, bestScore, tied := Domain(""), 0, false
	for _, d := range AllDomains {
		score := 0
		for _, kw := range domainKeywords[d] {
			if strings.ContainsRune(kw, ' ') {
				if strings.Contains(lower, kw) {
					score++
				}
			} else if tokens[kw] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = d, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore > 0 && !tied {
		return best, true
	}
	return "", false
}

func tokenize(query string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

const classifySystemPrompt = "You classify a personal-context query into exactly one category. " +
	"Reply with the single category name and nothing else."

func (c *Classifier) classifyByLLM(ctx context.Context, query string) (Domain, bool) {
	names := make([]string, len(AllDomains))
	for i, d := range AllDomains {
		names[i] = string(d)
	}
	prompt := fmt.Sprintf("Categories: %s\n\nQuery: %q\n\nCategory:", strings.Join(names, ", "), query)

	label, err := c.llm.Generate(ctx, classifySystemPrompt, prompt)
	if err != nil {
		c.log.Warn("llm classification failed", zap.Error(err))
		return "", false
	}
	d, ok := ParseDomain(label)
	if !ok {
		c.log.Warn("llm returned unrecognized domain label", zap.String("label", label))
		return "", false
	}
	return d, true
}
