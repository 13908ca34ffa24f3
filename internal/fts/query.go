// Package fts turns free-form user text into FTS5 MATCH expressions that
// cannot carry query syntax of their own.
package fts

import (
	"regexp"
	"strings"
)

var tokenRE = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Tokenize extracts lowercase word tokens from text. Anything that is not a
// letter, digit or underscore separates tokens, so quotes, wildcards,
// parentheses and column filters never survive. Tokens shorter than minLen
// or present in stopWords (case-insensitive) are dropped.
func Tokenize(text string, stopWords []string, minLen int) []string {
	if minLen < 1 {
		minLen = 1
	}
	var stop map[string]struct{}
	if len(stopWords) > 0 {
		stop = make(map[string]struct{}, len(stopWords))
		for _, w := range stopWords {
			stop[strings.ToLower(w)] = struct{}{}
		}
	}

	var tokens []string
	for _, tok := range tokenRE.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < minLen {
			continue
		}
		if _, skip := stop[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// EscapeTerm quotes a single term as an FTS5 string literal.
func EscapeTerm(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// BuildOrQuery builds a disjunction of quoted tokens from text.
// "NOT NEAR" → `"not" OR "near"`
//
// An empty result means there is nothing to search for; callers must treat it
// as no match and not pass it to MATCH.
func BuildOrQuery(text string, stopWords []string, minLen int) string {
	tokens := Tokenize(text, stopWords, minLen)
	for i, tok := range tokens {
		tokens[i] = EscapeTerm(tok)
	}
	return strings.Join(tokens, " OR ")
}
