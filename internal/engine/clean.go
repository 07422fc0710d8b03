package engine

import (
	"regexp"
	"strings"
)

// Cleaner strips reasoning annotations and boilerplate from raw model output
// until a single plausible text-message line remains. The rules are
// heuristics over observed model behavior; they live here as an ordered,
// swappable rule set so new model quirks can be handled without touching
// orchestration.
type Cleaner struct {
	strip     []*regexp.Regexp
	metaWords []string
	minLen    int
}

var defaultStripRules = []*regexp.Regexp{
	// bracket-tag spans with their content, e.g. <think>...</think>
	regexp.MustCompile(`(?s)<[^>]*>.*?</[^>]*>`),
	// residual bare tags
	regexp.MustCompile(`<[^>]*>`),
	// horizontal rules and known lead-ins
	regexp.MustCompile(`---+`),
	regexp.MustCompile(`(?i)Final Response:\s*`),
	regexp.MustCompile(`(?i)Here's a.*?response.*?:`),
	regexp.MustCompile(`(?i)Certainly!\s*`),
	regexp.MustCompile(`(?i)Sure!\s*`),
}

// metaWords flags lines that read like commentary about the reply rather
// than the reply itself.
var defaultMetaWords = []string{"response", "strategy", "based on", "structured"}

func NewCleaner() *Cleaner {
	return &Cleaner{
		strip:     defaultStripRules,
		metaWords: defaultMetaWords,
		minLen:    4,
	}
}

// Clean reduces raw model output to reply text. personaName, when set, is
// stripped as a self-prefix ("Margaret: hi" -> "hi"). An empty result means
// the model produced nothing usable.
func (c *Cleaner) Clean(raw, personaName string) string {
	if raw == "" {
		return ""
	}

	cleaned := raw
	for _, re := range c.strip {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	if personaName != "" {
		prefix := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(personaName) + `[\s:]+`)
		cleaned = prefix.ReplaceAllString(cleaned, "")
	}

	for _, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) < c.minLen {
			continue
		}
		if c.looksMeta(trimmed) {
			continue
		}
		return trimmed
	}

	// Fallback: first non-empty line of the cleaned text verbatim.
	for _, line := range strings.Split(strings.TrimSpace(cleaned), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(cleaned)
}

func (c *Cleaner) looksMeta(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range c.metaWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
