package planner

import (
	"strings"
	"unicode"
)

// Strategy is the routing decision for one query.
type Strategy string

const (
	// StrategyVector answers with nearest-neighbor search alone.
	StrategyVector Strategy = "vector"

	// StrategyGraph answers by traversing relations from a named symbol.
	StrategyGraph Strategy = "graph"

	// StrategyHybrid runs both and fuses the scores.
	StrategyHybrid Strategy = "hybrid"
)

// Mode is the caller's routing request.
type Mode string

const (
	// ModeAuto lets the planner pick a strategy from the query shape.
	ModeAuto Mode = "auto"

	// ModeVector, ModeGraph and ModeHybrid force a strategy.
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a mode string to a Mode. Empty means auto; "smart" is an
// alias for hybrid.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, true
	case "vector", "semantic":
		return ModeVector, true
	case "graph", "structural":
		return ModeGraph, true
	case "hybrid", "smart":
		return ModeHybrid, true
	default:
		return "", false
	}
}

// relationVerbs maps a relation verb in the query to the edge kinds worth
// traversing for it. The lists are tunable heuristics, not precision
// requirements.
var relationVerbs = map[string][]string{
	"calls":      {"calls"},
	"call":       {"calls"},
	"called":     {"calls"},
	"uses":       {"uses"},
	"use":        {"uses"},
	"used":       {"uses"},
	"imports":    {"uses"},
	"implements": {"inherits"},
	"implement":  {"inherits"},
	"inherits":   {"inherits"},
	"extends":    {"inherits"},
	"defines":    {"defines"},
}

// relationPhrases are multi-word relation markers checked by substring.
var relationPhrases = map[string][]string{
	"depends on": {"uses"},
	"who uses":   {"uses"},
	"who calls":  {"calls"},
}

// stopwords are query words that can never be the symbol being asked
// about.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "by": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"this": {}, "to": {}, "what": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "with": {},
}

// route is the outcome of classifying one query.
type route struct {
	strategy Strategy

	// symbol is the entity name to look up in the graph, when one was
	// detected.
	symbol string

	// kinds restricts graph traversal to the edge kinds the relation
	// verbs named; empty follows all kinds.
	kinds []string
}

// classify picks a strategy for a query. Deterministic and rule-based:
// relation verbs or a named code symbol route to the graph, free-form
// natural language routes to vectors, and mixed signals run both.
func classify(query string) route {
	lower := strings.ToLower(query)
	words := splitWords(lower)

	var kinds []string
	verbAt := -1
	for i, w := range words {
		if k, ok := relationVerbs[w]; ok {
			kinds = append(kinds, k...)
			if verbAt < 0 {
				verbAt = i
			}
		}
	}
	for phrase, k := range relationPhrases {
		if strings.Contains(lower, phrase) {
			kinds = append(kinds, k...)
		}
	}
	kinds = dedupStrings(kinds)

	symbol := findSymbol(query, words, verbAt)

	switch {
	case len(kinds) > 0 && symbol != "":
		return route{strategy: StrategyGraph, symbol: symbol, kinds: kinds}
	case len(kinds) > 0 || (symbol != "" && len(words) > 4):
		// A relation verb with no clear target, or a symbol buried in a
		// long natural-language question: mixed signals.
		return route{strategy: StrategyHybrid, symbol: symbol, kinds: kinds}
	case symbol != "" && len(words) <= 4:
		return route{strategy: StrategyGraph, symbol: symbol}
	default:
		return route{strategy: StrategyVector}
	}
}

// findSymbol picks the entity name a query asks about: the first
// identifier-looking token, or failing that the first non-stopword after
// a relation verb.
func findSymbol(original string, words []string, verbAt int) string {
	for _, w := range splitWords(original) {
		if looksLikeIdentifier(w) {
			return strings.TrimSuffix(w, "()")
		}
	}
	if verbAt >= 0 {
		for _, w := range words[verbAt+1:] {
			if _, stop := stopwords[w]; stop {
				continue
			}
			if _, verb := relationVerbs[w]; verb {
				continue
			}
			return w
		}
	}
	return ""
}

// looksLikeIdentifier reports whether a token reads as code rather than
// prose: snake_case, dotted, call syntax, or mixed case.
func looksLikeIdentifier(w string) bool {
	if len(w) < 2 {
		return false
	}
	if strings.HasSuffix(w, "()") {
		return true
	}
	if strings.ContainsAny(w, "_.") && !strings.HasSuffix(w, ".") {
		return true
	}
	hasUpper, hasLower := false, false
	for _, r := range w {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}
	return hasUpper && hasLower
}

// splitWords breaks a query into tokens, keeping the characters that make
// identifiers recognizable.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '_', '.', '(', ')':
			return false
		}
		return true
	})
}

func dedupStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
