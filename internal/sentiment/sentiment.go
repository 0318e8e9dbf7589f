// CLAUDE:SUMMARY Pure lexicon sentiment scorer: value in [-1,1], label, confidence.
// Package sentiment scores text with a fixed lexicon lookup.
//
// The scorer is pure and synchronous: one pass over the tokens, no I/O.
// Negation flips the polarity of the following sentiment-bearing token.
package sentiment

import "strings"

// Score is the outcome of scoring one text.
type Score struct {
	Value      float64 `json:"value"` // [-1, 1]
	Label      string  `json:"label"` // positive | negative | neutral
	Confidence float64 `json:"confidence"`
}

var lexicon = map[string]float64{
	"great": 1, "excellent": 1, "amazing": 1, "love": 1, "perfect": 1,
	"good": 0.6, "nice": 0.6, "useful": 0.6, "helpful": 0.6, "works": 0.4,
	"recommend": 0.8, "fast": 0.4, "easy": 0.4, "best": 1, "awesome": 1,
	"bad": -0.6, "poor": -0.6, "slow": -0.4, "buggy": -0.8, "broken": -0.8,
	"terrible": -1, "awful": -1, "hate": -1, "worst": -1, "scam": -1,
	"crash": -0.8, "crashes": -0.8, "useless": -0.8, "annoying": -0.6,
	"expensive": -0.4, "confusing": -0.4, "waste": -0.8,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "isnt": true, "isn't": true,
	"dont": true, "don't": true, "doesnt": true, "doesn't": true,
	"wont": true, "won't": true, "cant": true, "can't": true,
}

// Analyze scores a text. Empty or lexicon-free text is neutral with zero confidence.
func Analyze(text string) Score {
	var sum float64
	var hits int
	negate := false

	for _, raw := range strings.Fields(strings.ToLower(text)) {
		tok := strings.Trim(raw, ".,!?;:\"'()[]")
		if negations[tok] {
			negate = true
			continue
		}
		if v, ok := lexicon[tok]; ok {
			if negate {
				v = -v
			}
			sum += v
			hits++
		}
		negate = false
	}

	if hits == 0 {
		return Score{Label: "neutral"}
	}

	value := sum / float64(hits)
	if value > 1 {
		value = 1
	}
	if value < -1 {
		value = -1
	}

	s := Score{Value: value}
	switch {
	case value > 0.1:
		s.Label = "positive"
	case value < -0.1:
		s.Label = "negative"
	default:
		s.Label = "neutral"
	}

	// Confidence grows with the number of lexicon hits, capped at 1.
	s.Confidence = float64(hits) / (float64(hits) + 2)
	return s
}
