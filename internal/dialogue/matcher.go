package dialogue

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultMatchThreshold is the minimum Jaro-Winkler similarity for a
// fuzzy phrase match. Exact substring hits bypass the threshold.
const DefaultMatchThreshold = 0.85

// Matcher resolves an utterance against per-intent example phrases
// before the LLM classifier is consulted. Read-only, safe to share.
type Matcher struct {
	threshold float64
}

// NewMatcher builds a Matcher; threshold defaults to
// DefaultMatchThreshold when zero.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{threshold: threshold}
}

// Match returns the best-scoring intent for text among the candidate
// phrase sets. A phrase appearing verbatim in the utterance scores 1.0;
// otherwise the best Jaro-Winkler similarity decides, subject to the
// threshold.
func (m *Matcher) Match(text string, candidates map[Intent][]string) (Intent, float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(candidates) == 0 {
		return IntentNone, 0, false
	}

	var (
		bestIntent Intent
		bestScore  float64
	)
	for intent, phrases := range candidates {
		for _, phrase := range phrases {
			score := phraseScore(text, phrase)
			if score > bestScore {
				bestIntent, bestScore = intent, score
			}
		}
	}
	if bestScore >= 1.0 {
		return bestIntent, bestScore, true
	}
	if bestScore >= m.threshold {
		return bestIntent, bestScore, true
	}
	return IntentNone, bestScore, false
}

func phraseScore(text, phrase string) float64 {
	if phrase == "" {
		return 0
	}
	if strings.Contains(text, phrase) {
		return 1.0
	}
	return matchr.JaroWinkler(text, phrase, false)
}
