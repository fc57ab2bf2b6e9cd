package catalog

import (
	"strings"

	"github.com/bademirci/prediction-markets/internal/model"
)

// Keywords that mark a question as sports when the API category is missing.
var sportsKeywords = []string{
	" vs ", "League", "Cup", "Tournament", "Championship", "NBA", "NFL",
	"Premier League", "Champions League", "UFC", "F1", "Grand Prix",
}

// computeCategory derives a usable category for a market. The Gamma API
// leaves the category blank on many sports markets; a keyword pass over
// the question fills most of those in.
func computeCategory(m model.Market) string {
	if m.Category == "Sports" {
		return "Sports"
	}

	for _, kw := range sportsKeywords {
		if strings.Contains(m.Question, kw) {
			return "Sports"
		}
	}

	if m.Category != "" {
		return m.Category
	}
	return "Other"
}
