// Package estimate prices message text in credits.
package estimate

import (
	"math"
	"regexp"
)

// BaseModelRate is the default credit rate per 100 tokens.
const BaseModelRate = 40.0

// CharsPerToken is the number of qualifying characters counted as one token.
const CharsPerToken = 4

// MinCredits is the floor applied to every text-costed message.
const MinCredits = 1.00

// wordPattern matches runs of ASCII letters, apostrophes and hyphens.
var wordPattern = regexp.MustCompile(`[-a-zA-Z']+`)

// EstimateTokens returns the estimated token count for text. Only ASCII
// letters, apostrophes and hyphens count; the result is not rounded.
func EstimateTokens(text string) float64 {
	total := 0
	for _, word := range wordPattern.FindAllString(text, -1) {
		total += len(word)
	}
	return float64(total) / CharsPerToken
}

// CalculateCredits returns the credits used by text at the given rate,
// rounded half-to-even to two decimals and floored at MinCredits.
func CalculateCredits(text string, rate float64) float64 {
	tokens := EstimateTokens(text)
	credits := (tokens / 100) * rate
	credits = math.RoundToEven(credits*100) / 100
	return math.Max(MinCredits, credits)
}
