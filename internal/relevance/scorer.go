// Package relevance scores accumulated article text for topical fit.
// Scoring is deterministic and pure: the same input always yields the same
// score, and an empty input yields 0 rather than an error.
package relevance

import "strings"

// Keyword lists for formulation-research relevance. Matching is by substring
// presence over lowercased text, not occurrence count.
var formulationKeywords = []string{
	"formulation", "extract", "extraction", "cannabinoid", "terpene",
	"stability", "bioavailability", "dosage", "delivery", "pharmaceutical",
	"purification", "distillation", "concentration", "potency",
}

var cannabisTerms = []string{
	"cannabis", "marijuana", "hemp", "cbd", "thc", "cannabinoid",
	"terpene", "myrcene", "limonene", "pinene", "linalool",
}

// Input carries the text accumulated across completed stages. Fields may be
// empty; whatever is present contributes with fixed weights.
type Input struct {
	Title    string
	Abstract string
	Body     string   // full text or OCR output, whichever completed last
	Keywords []string // author keywords plus MeSH terms
}

// Score computes a relevance score in [0,1]. Title and abstract/body text
// carry weight 0.4 each, keywords 0.2. Words from the search categories that
// surfaced the article count as additional match terms, so an article found
// under "Cannabis Formulation" scores those words even if the built-in lists
// ever change.
func Score(in Input, categories []string) float64 {
	extra := categoryTerms(categories)

	title := textRelevance(in.Title, extra)
	body := textRelevance(strings.TrimSpace(in.Abstract+" "+in.Body), extra)
	keywords := textRelevance(strings.Join(in.Keywords, " "), extra)

	score := title*0.4 + body*0.4 + keywords*0.2
	if score > 1 {
		return 1
	}
	return score
}

// textRelevance scores a single text by keyword density, scaled so that a
// handful of matches in a short abstract saturates the scale.
func textRelevance(text string, extra []string) float64 {
	text = strings.ToLower(text)
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	formulation := countPresent(text, formulationKeywords)
	formulation += countPresent(text, extra)
	cannabis := countPresent(text, cannabisTerms)

	formulationDensity := float64(formulation) / float64(len(words))
	cannabisDensity := float64(cannabis) / float64(len(words))

	score := (formulationDensity*0.6 + cannabisDensity*0.4) * 10
	if score > 1 {
		return 1
	}
	return score
}

// countPresent counts how many of the terms appear in text at least once.
func countPresent(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}

// categoryTerms lowercases and splits category names into match terms,
// dropping words too short to be meaningful.
func categoryTerms(categories []string) []string {
	var terms []string
	for _, c := range categories {
		for _, w := range strings.Fields(strings.ToLower(c)) {
			if len(w) >= 4 {
				terms = append(terms, w)
			}
		}
	}
	return terms
}
