// Package match evaluates inbound messages against a monitor's include and
// exclusion keyword sets.
package match

import (
	"github.com/keywatch/keywatch/internal/textnorm"
)

// Engine performs pure keyword match decisioning over normalized word sets.
type Engine struct {
	norm *textnorm.Normalizer
}

// NewEngine returns an Engine backed by the given normalizer.
func NewEngine(norm *textnorm.Normalizer) *Engine {
	return &Engine{norm: norm}
}

// Evaluate tests a message against include and exclusion keywords.
//
// The message is tokenized and normalized into a set of canonical keys.
// Include keywords are tested in stored order; the first one present in the
// set wins, unless any normalized exclusion keyword is present anywhere in
// the message's key set, in which case that include keyword is vetoed and
// evaluation continues. Exclusion scope is the whole message, not words
// adjacent to the matched keyword. Returns the matched keyword as stored
// (pre-normalization) and true, or "" and false when nothing matched.
//
// Evaluate has no side effects; recording the result and notifying are the
// caller's concern.
func (e *Engine) Evaluate(messageText string, includes, excludes []string) (string, bool) {
	if len(includes) == 0 {
		return "", false
	}

	keys := e.norm.CanonicalKeys(messageText)
	if len(keys) == 0 {
		return "", false
	}

	excluded := false
	for _, ex := range excludes {
		if _, ok := keys[e.norm.Normalize(ex)]; ok {
			excluded = true
			break
		}
	}

	for _, kw := range includes {
		if _, ok := keys[e.norm.Normalize(kw)]; !ok {
			continue
		}
		if excluded {
			continue
		}
		return kw, true
	}
	return "", false
}
