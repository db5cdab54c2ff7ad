package contextpipe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/core"
)

// domainInstructions holds the per-domain system instruction for the
// summarization pass.
var domainInstructions = map[Domain]string{
	DomainGitHub:        "You are analyzing the user's GitHub repositories, commits and code activity.",
	DomainNotes:         "You are analyzing the user's personal notes and documents.",
	DomainValues:        "You are analyzing the user's stated personal values and preferences.",
	DomainConversations: "You are analyzing the user's past conversation history.",
	DomainTasks:         "You are analyzing the user's tasks, plans, goals and deadlines.",
	DomainWork:          "You are analyzing the user's work and career context.",
	DomainMedia:         "You are analyzing the user's media consumption: books, music, films and shows.",
	DomainLocations:     "You are analyzing the user's locations, travel and environment.",
}

// Summarizer sends a domain-shaped prompt plus raw context to the language
// model. It never fabricates an answer: any upstream failure surfaces as a
// SummarizationFailure for the handler to retry or propagate.
type Summarizer struct {
	llm core.LLMProvider
	log *zap.Logger
}

func NewSummarizer(llm core.LLMProvider, log *zap.Logger) *Summarizer {
	return &Summarizer{llm: llm, log: log}
}

// Process summarizes formattedContext against query under the given
// domain's instruction and returns the model's text verbatim.
func (s *Summarizer) Process(ctx context.Context, domain Domain, formattedContext, query string) (string, error) {
	system, ok := domainInstructions[domain]
	if !ok {
		system = "You are an AI assistant analyzing personal context to answer a user query."
	}

	prompt := fmt.Sprintf(
		"USER QUERY: %s\n\nAVAILABLE CONTEXT INFORMATION:\n%s\n\n"+
			"Based only on the context information provided above, answer the user query concisely. "+
			"Focus on extracting directly relevant facts or summaries. "+
			"If the context doesn't contain the answer, state that explicitly.",
		query, formattedContext)

	text, err := s.llm.Generate(ctx, system, prompt)
	if err != nil {
		s.log.Warn("summarization failed",
			zap.String("domain", string(domain)),
			zap.Error(err))
		return "", apperr.Wrap(apperr.SummarizationFailure, "could not summarize context", err)
	}
	return text, nil
}
