// Package recommend diffs a wallet's ranked positions against the market's
// top opportunities and emits qualitative rebalancing suggestions.
package recommend

import "github.com/curatorops/signalrun/internal/curation"

// Kind classifies a suggestion.
type Kind string

const (
	// KindMove suggests moving signal off one deployment onto another.
	KindMove Kind = "move"
	// KindIncrease suggests adding signal to a deployment already held.
	KindIncrease Kind = "increase"
)

// Suggestion pairs a held deployment with a market one at the same rank.
// For KindIncrease both ids are the same deployment.
type Suggestion struct {
	Rank    int     `json:"rank"`
	Kind    Kind    `json:"kind"`
	FromID  string  `json:"from_id"`
	FromAPR float64 `json:"from_apr"`
	ToID    string  `json:"to_id"`
	ToAPR   float64 `json:"to_apr"`
}

// Compare walks the wallet's positions and the market's top-N opportunities
// in parallel by rank index: rank 1 against rank 1, rank 2 against rank 2,
// and so on, stopping at the shorter list. Slots with matching ids and no
// APR upside produce nothing. The comparison is strictly positional; whether
// a given pairing is economically meaningful is up to the reader.
func Compare(positions []curation.Position, market []curation.Opportunity, topN int) []Suggestion {
	if topN < len(market) {
		market = market[:topN]
	}

	n := len(positions)
	if len(market) < n {
		n = len(market)
	}

	var suggestions []Suggestion
	for i := 0; i < n; i++ {
		held, candidate := positions[i], market[i]

		switch {
		case held.ID != candidate.ID:
			suggestions = append(suggestions, Suggestion{
				Rank:    i + 1,
				Kind:    KindMove,
				FromID:  held.ID,
				FromAPR: held.APR,
				ToID:    candidate.ID,
				ToAPR:   candidate.APR,
			})
		case held.APR < candidate.APR:
			suggestions = append(suggestions, Suggestion{
				Rank:    i + 1,
				Kind:    KindIncrease,
				FromID:  held.ID,
				FromAPR: held.APR,
				ToID:    candidate.ID,
				ToAPR:   candidate.APR,
			})
		}
	}

	return suggestions
}
