// Package tokens estimates model token counts from text length.
package tokens

import "unicode/utf8"

// CharsPerToken is the heuristic ratio used for every estimate.
const CharsPerToken = 4

// Estimate returns ceil(characters/4). It never fails and does not allocate.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateAll sums Estimate over texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
