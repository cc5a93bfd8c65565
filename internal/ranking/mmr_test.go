package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectDiverse_PrefersDissimilarCandidatesOverPureRankOrder(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{NewsID: 1, TopicID: 1, RankScore: 0.9, Embedding: []float32{1, 0}, PublishedAt: now},
		{NewsID: 2, TopicID: 2, RankScore: 0.85, Embedding: []float32{0.99, 0.01}, PublishedAt: now},
		{NewsID: 3, TopicID: 3, RankScore: 0.6, Embedding: []float32{0, 1}, PublishedAt: now},
	}

	selected := SelectDiverse(candidates, 2, MMRConfig{Lambda: 0.7, MaxPerTopic: 2})
	assert.Len(t, selected, 2)
	assert.Equal(t, int64(1), selected[0].NewsID)
	assert.Equal(t, int64(3), selected[1].NewsID, "item 2 is near-identical to item 1, so the dissimilar item 3 should win the second slot")
}

func TestSelectDiverse_CapsItemsPerTopic(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{NewsID: 1, TopicID: 1, RankScore: 0.9, PublishedAt: now},
		{NewsID: 2, TopicID: 1, RankScore: 0.8, PublishedAt: now},
		{NewsID: 3, TopicID: 1, RankScore: 0.7, PublishedAt: now},
		{NewsID: 4, TopicID: 2, RankScore: 0.6, PublishedAt: now},
	}

	selected := SelectDiverse(candidates, 3, MMRConfig{Lambda: 0.7, MaxPerTopic: 2})
	topicCounts := make(map[int64]int)
	for _, c := range selected {
		topicCounts[c.TopicID]++
	}
	assert.LessOrEqual(t, topicCounts[int64(1)], 2)
	assert.Len(t, selected, 3)
}

func TestSelectDiverse_ReturnsFewerThanNWhenTopicCapExhaustsInventory(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{NewsID: 1, TopicID: 1, RankScore: 0.9, PublishedAt: now},
		{NewsID: 2, TopicID: 1, RankScore: 0.8, PublishedAt: now},
		{NewsID: 3, TopicID: 1, RankScore: 0.7, PublishedAt: now},
	}

	selected := SelectDiverse(candidates, 5, MMRConfig{Lambda: 0.7, MaxPerTopic: 2})

	assert.Len(t, selected, 2, "every candidate shares one topic already at cap, so fewer than n must be returned")
}

func TestSelectDiverse_FallsBackToJaccardWithoutEmbeddings(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{NewsID: 1, TopicID: 1, RankScore: 0.9, Tokens: []string{"삼성전자", "실적"}, PublishedAt: now},
		{NewsID: 2, TopicID: 2, RankScore: 0.85, Tokens: []string{"삼성전자", "실적"}, PublishedAt: now},
		{NewsID: 3, TopicID: 3, RankScore: 0.6, Tokens: []string{"카카오", "규제"}, PublishedAt: now},
	}

	selected := SelectDiverse(candidates, 2, MMRConfig{Lambda: 0.7, MaxPerTopic: 2})
	assert.Len(t, selected, 2)
	assert.Equal(t, int64(3), selected[1].NewsID)
}

func TestSelectDiverse_EmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, SelectDiverse(nil, 5, MMRConfig{}))
	assert.Nil(t, SelectDiverse([]Candidate{{NewsID: 1}}, 0, MMRConfig{}))
}
