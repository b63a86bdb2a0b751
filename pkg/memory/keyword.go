package memory

import (
	"sort"
	"strings"
	"unicode"
)

const substringBonus = 0.3

// tokenize lowercases text and splits it into a set of word tokens.
func tokenize(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// KeywordSearch ranks records against the query by Jaccard overlap of
// their token sets, plus a flat bonus when the lowercased query appears
// verbatim in the content. Zero-score records are dropped.
func KeywordSearch(query string, records []Record, limit int) []Match {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}
	queryLower := strings.ToLower(query)

	matches := make([]Match, 0, limit)
	for _, rec := range records {
		contentTokens := tokenize(rec.Content)
		if len(contentTokens) == 0 {
			continue
		}

		intersection := 0
		for tok := range queryTokens {
			if _, ok := contentTokens[tok]; ok {
				intersection++
			}
		}
		union := len(queryTokens) + len(contentTokens) - intersection

		score := float64(intersection) / float64(union)
		if strings.Contains(strings.ToLower(rec.Content), queryLower) {
			score += substringBonus
		}
		if score > 0 {
			matches = append(matches, Match{ID: rec.ID, Score: score})
		}
	}

	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
