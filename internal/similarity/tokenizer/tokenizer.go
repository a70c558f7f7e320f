// Package tokenizer turns note text into index terms. It lower-cases input,
// splits on non-alphanumeric boundaries, and drops short tokens and
// stop-words.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTermLength is exclusive: a term needs at least minTermLength+1 runes.
const minTermLength = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "about": {},
	"as": {}, "of": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {}, "we": {},
	"us": {}, "our": {}, "you": {}, "your": {}, "he": {}, "him": {},
	"his": {}, "she": {}, "her": {}, "hers": {}, "i": {}, "me": {},
	"my": {}, "mine": {}, "be": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "shall": {}, "should": {}, "can": {}, "could": {},
	"may": {}, "might": {}, "must": {}, "from": {},
}

// Tokenize breaks text into lower-cased terms in their original order.
// Repeated terms are kept so callers can count term frequency.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) <= minTermLength {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// IsStopWord reports whether term belongs to the fixed stop-word set.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}
