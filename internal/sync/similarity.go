package sync

import (
	"regexp"
	"strings"
)

// stopwords is the fixed set excluded from normalized title tokens.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "for": true, "of": true,
	"and": true, "or": true, "with": true, "on": true, "in": true, "at": true,
	"is": true, "it": true, "this": true, "that": true, "please": true,
}

var (
	parenQualifier = regexp.MustCompile(`\([^)]*\)`)
	nonAlphaSpace  = regexp.MustCompile(`[^a-z0-9\s]`)
	digits         = regexp.MustCompile(`[0-9]+`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// normalizeTitle strips digits, punctuation, parenthesised qualifiers,
// and stopwords, then stems each surviving token.
func normalizeTitle(title string) []string {
	s := strings.ToLower(title)
	s = parenQualifier.ReplaceAllString(s, " ")
	s = digits.ReplaceAllString(s, " ")
	s = nonAlphaSpace.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	var out []string
	for _, tok := range strings.Fields(s) {
		if !stopwords[tok] {
			out = append(out, stem(tok))
		}
	}
	return out
}

// suffixes is checked longest-first so "ies"/"ing" aren't shadowed by a
// shorter overlapping suffix.
var stemSuffixes = []string{"ing", "ies", "ed", "es", "s"}

// stem applies a fixed-suffix light stemmer so inflected forms of the
// same word normalize identically, so "Follow up with Alice" and
// "Continue following up with Alice" are detected as the same job.
// This is deliberately not a
// full Porter stemmer — just enough to collapse -ing/-ed/-s variants
// without mangling short words.
func stem(tok string) string {
	if len(tok) <= 4 {
		return tok
	}
	for _, suf := range stemSuffixes {
		if strings.HasSuffix(tok, suf) && len(tok)-len(suf) >= 3 {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}

// jaccard computes the Jaccard similarity of two token sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := toSet(a)
	setB := toSet(b)
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	s := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

// bigrams produces the set of adjacent-token bigrams of a normalized
// token slice, used for the bigram-Jaccard leg of the similarity check.
func bigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// similarTitles reports whether a and b name the same piece of work:
// substring containment (when the shorter
// normalized form has length >= 4), or bigram Jaccard >= 0.5.
func similarTitles(a, b string) bool {
	tokA := normalizeTitle(a)
	tokB := normalizeTitle(b)
	joinedA := strings.Join(tokA, " ")
	joinedB := strings.Join(tokB, " ")

	shorter, longer := joinedA, joinedB
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 4 && strings.Contains(longer, shorter) {
		return true
	}

	if jaccard(bigrams(tokA), bigrams(tokB)) >= 0.5 {
		return true
	}
	return false
}
