// Package intent provides deterministic, side-effect free classifiers for single
// user messages: reply polarity, plan requests, body-part mentions and preference
// edits. All matching happens on a normalized form of the text.
package intent

import (
	"strings"
	"unicode"
)

var accentFolder = strings.NewReplacer(
	"à", "a", "á", "a",
	"è", "e", "é", "e",
	"ì", "i", "í", "i",
	"ò", "o", "ó", "o",
	"ù", "u", "ú", "u",
)

// Normalize lower-cases text, folds Italian accents, turns punctuation into spaces
// and collapses runs of whitespace.
func Normalize(text string) string {
	text = accentFolder.Replace(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if r == '-' {
			// push-up, step-up
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// containsPhrase reports whether the normalized text contains phrase on word boundaries.
func containsPhrase(norm, phrase string) bool {
	return strings.Contains(" "+norm+" ", " "+phrase+" ")
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(norm, p) {
			return true
		}
	}
	return false
}

// normalizeAll prepares a keyword list so it can be matched against Normalize output.
func normalizeAll(phrases ...string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, Normalize(p))
	}
	return out
}
