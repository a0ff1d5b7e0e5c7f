// Package generator produces hashtag suggestions for a keyword. This is
// the built-in backend; the API accepts any implementation of its
// Generator interface, so a model-backed service can replace this one
// without touching the metering path.
package generator

import (
	"context"
	"strings"
	"unicode"
)

var modifiers = []string{
	"", "daily", "life", "love", "gram", "oftheday", "community", "inspiration",
	"tips", "vibes", "world", "lover", "addict", "goals", "style", "time",
	"nation", "hub", "ideas", "trends", "now", "forever", "mood", "energy",
	"journey", "culture", "spot", "zone", "club", "squad",
}

// Keyword turns hashtag suggestions out of keyword variations.
type Keyword struct{}

// New creates the keyword-expansion generator.
func New() *Keyword {
	return &Keyword{}
}

// Generate implements the API's Generator interface. The output is
// deterministic for a given keyword and always starts with the bare
// keyword tag.
func (g *Keyword) Generate(_ context.Context, keyword string, count int) ([]string, error) {
	base := normalize(keyword)
	if base == "" {
		return nil, nil
	}
	if count > len(modifiers) {
		count = len(modifiers)
	}

	hashtags := make([]string, 0, count)
	for _, mod := range modifiers {
		if len(hashtags) == count {
			break
		}
		hashtags = append(hashtags, "#"+base+mod)
	}
	return hashtags, nil
}

// normalize lowercases the keyword and strips everything that cannot
// appear in a hashtag.
func normalize(keyword string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(keyword)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
