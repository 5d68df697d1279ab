// Package textnorm maps raw message tokens to canonical matching keys so that
// keyword matching tolerates inflected word forms.
package textnorm

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	cyrillicPattern = regexp.MustCompile(`\p{Cyrillic}`)
)

// Normalizer reduces tokens to canonical keys. Tokens written in the primary
// alphabet are stemmed with the primary language's stemmer; everything else
// falls back to the English stemmer. Unknown or unstemmable input degrades to
// a lowercase identity, never an error.
type Normalizer struct {
	primaryLanguage string
}

// New returns a Normalizer for the given primary language. The language must
// be one of the snowball language names (e.g. "russian"); an empty value
// defaults to "russian".
func New(primaryLanguage string) *Normalizer {
	if primaryLanguage == "" {
		primaryLanguage = "russian"
	}
	return &Normalizer{primaryLanguage: primaryLanguage}
}

// Normalize returns the canonical key for a single token. It is deterministic
// and pure.
func (n *Normalizer) Normalize(token string) string {
	token = strings.ToLower(token)

	lang := "english"
	if cyrillicPattern.MatchString(token) {
		lang = n.primaryLanguage
	}

	stemmed, err := snowball.Stem(token, lang, false)
	if err != nil || stemmed == "" {
		return token
	}
	return stemmed
}

// Tokenize splits text into lowercase word-boundary tokens.
func (n *Normalizer) Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// CanonicalKeys tokenizes text and normalizes every token, returning the set
// of canonical keys present in the message.
func (n *Normalizer) CanonicalKeys(text string) map[string]struct{} {
	tokens := n.Tokenize(text)
	keys := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		keys[n.Normalize(tok)] = struct{}{}
	}
	return keys
}
