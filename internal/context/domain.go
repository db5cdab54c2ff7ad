// Package contextpipe implements the classification-and-retrieval pipeline:
// a closed set of context domains, a query classifier, per-domain handlers
// over the context store, and the summarization pass that turns raw entries
// into a bounded answer.
package contextpipe

import "strings"

// Domain is one of the fixed context categories. The set is closed; the
// dispatch table in Router enumerates it exhaustively.
type Domain string

const (
	DomainGitHub        Domain = "github"
	DomainNotes         Domain = "notes"
	DomainValues        Domain = "values"
	DomainConversations Domain = "conversations"
	DomainTasks         Domain = "tasks"
	DomainWork          Domain = "work"
	DomainMedia         Domain = "media"
	DomainLocations     Domain = "locations"
)

// DefaultDomain is where ambiguous queries land.
const DefaultDomain = DomainNotes

// AllDomains lists every domain in stable order.
var AllDomains = []Domain{
	DomainGitHub,
	DomainNotes,
	DomainValues,
	DomainConversations,
	DomainTasks,
	DomainWork,
	DomainMedia,
	DomainLocations,
}

// domainKeywords drives the cheap classification heuristic. Single words
// are matched against query tokens; phrases are matched as substrings.
var domainKeywords = map[Domain][]string{
	DomainGitHub:        {"code", "repository", "repo", "github", "commit", "commits", "branch", "merge", "pull request", "pr", "issue"},
	DomainNotes:         {"note", "notes", "wrote", "writing", "document", "obsidian", "journal"},
	DomainValues:        {"value", "values", "preference", "preferences", "prefer", "belief", "important to me", "i like", "i dislike"},
	DomainConversations: {"conversation", "conversations", "discussed", "said", "told", "meeting", "chat", "talked"},
	DomainTasks:         {"task", "tasks", "todo", "deadline", "milestone", "goal", "project plan"},
	DomainWork:          {"work", "job", "career", "colleague", "office", "employer", "client"},
	DomainMedia:         {"movie", "film", "music", "song", "book", "show", "podcast", "watched", "listened"},
	DomainLocations:     {"location", "place", "travel", "trip", "visited", "city", "moved", "lived"},
}

// ParseDomain maps a free-form label to a known domain. It is forgiving
// toward imperfect LLM-generated arguments: the label is trimmed and
// lower-cased, then matched exactly or by prefix in either direction.
func ParseDomain(label string) (Domain, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.Trim(norm, `."'`)
	if norm == "" {
		return "", false
	}
	for _, d := range AllDomains {
		if norm == string(d) {
			return d, true
		}
	}
	for _, d := range AllDomains {
		if strings.HasPrefix(string(d), norm) || strings.HasPrefix(norm, string(d)) {
			return d, true
		}
	}
	return "", false
}
