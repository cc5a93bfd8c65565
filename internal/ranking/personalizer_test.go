package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
)

func TestPersonalize_FreshHighImportanceRelevantItemScoresHigh(t *testing.T) {
	in := PersonalizeInput{
		Candidate: Candidate{NewsID: 1, Importance: 9.0},
		AgeHours:  1,
		Tickers:   []string{"005930"},
		Keywords:  []string{"실적"},
		Preference: domain.UserPreference{
			InterestTickers:  []string{"005930"},
			InterestKeywords: []string{"실적"},
		},
		History: ClickHistory{
			ClickedTickers:  map[string]struct{}{"005930": {}},
			ClickedKeywords: map[string]struct{}{"실적": {}},
		},
	}

	score := Personalize(in)
	assert.Greater(t, score, 0.8)
	assert.LessOrEqual(t, score, 1.0)
}

func TestPersonalize_StaleIrrelevantItemScoresLow(t *testing.T) {
	in := PersonalizeInput{
		Candidate: Candidate{NewsID: 2, Importance: 1.0},
		AgeHours:  240,
		Tickers:   []string{"999999"},
		Keywords:  []string{"스포츠"},
	}

	score := Personalize(in)
	assert.Less(t, score, 0.2)
}

func TestPersonalize_NoveltyPenalizesSimilarityToRecentClicks(t *testing.T) {
	withoutHistory := Personalize(PersonalizeInput{
		Candidate: Candidate{NewsID: 3, Importance: 5, Embedding: []float32{1, 0}},
		AgeHours:  12,
	})
	withSimilarHistory := Personalize(PersonalizeInput{
		Candidate: Candidate{NewsID: 3, Importance: 5, Embedding: []float32{1, 0}},
		AgeHours:  12,
		History:   ClickHistory{ClickedEmbeddings: [][]float32{{1, 0}}},
	})

	assert.Less(t, withSimilarHistory, withoutHistory)
}

func TestPersonalize_ClickHistoryAffinityBoostsRepeatItem(t *testing.T) {
	withoutClick := Personalize(PersonalizeInput{
		Candidate: Candidate{NewsID: 4, Importance: 5},
		AgeHours:  12,
	})
	withClick := Personalize(PersonalizeInput{
		Candidate: Candidate{NewsID: 4, Importance: 5},
		AgeHours:  12,
		History:   ClickHistory{ClickedNewsIDs: []int64{4}},
	})

	assert.Greater(t, withClick, withoutClick)
}
