package clustering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/logger"
)

type fakeEmbeddingReader struct {
	embeddings []*domain.NewsEmbedding
}

func (f *fakeEmbeddingReader) ListRecentEmbeddings(ctx context.Context, since time.Time) ([]*domain.NewsEmbedding, error) {
	return f.embeddings, nil
}

func (f *fakeEmbeddingReader) GetByID(ctx context.Context, id int64) (*domain.News, error) {
	return &domain.News{ID: id}, nil
}

type fakeCentroidStore struct {
	centroids map[int64]domain.TopicCentroid
	nextID    int64
}

func newFakeCentroidStore() *fakeCentroidStore {
	return &fakeCentroidStore{centroids: make(map[int64]domain.TopicCentroid)}
}

func (f *fakeCentroidStore) ListCentroids(ctx context.Context) ([]domain.TopicCentroid, error) {
	out := make([]domain.TopicCentroid, 0, len(f.centroids))
	for _, c := range f.centroids {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCentroidStore) NextTopicID(ctx context.Context) (int64, error) {
	f.nextID++
	return f.nextID, nil
}

func (f *fakeCentroidStore) UpsertCentroid(ctx context.Context, c domain.TopicCentroid) error {
	f.centroids[c.TopicID] = c
	return nil
}

type fakeTopicWriter struct {
	saved []*domain.NewsTopic
}

func (f *fakeTopicWriter) SaveTopic(ctx context.Context, t *domain.NewsTopic) error {
	f.saved = append(f.saved, t)
	return nil
}

func testConfig() Config {
	return Config{
		Algorithm:           AlgorithmCosine,
		CosineJoinThreshold: 0.75,
		NearDuplicateThresh: 0.9,
		Lookback:            72 * time.Hour,
	}
}

func TestClusterer_CosineJoinsSimilarEmbeddingsIntoOneTopic(t *testing.T) {
	embeddings := []*domain.NewsEmbedding{
		{NewsID: 1, Vector: []float32{1, 0, 0}},
		{NewsID: 2, Vector: []float32{0.99, 0.01, 0}},
	}
	reader := &fakeEmbeddingReader{embeddings: embeddings}
	centroids := newFakeCentroidStore()
	topics := &fakeTopicWriter{}
	c := New(reader, centroids, topics, nil, logger.New("test"))

	result, err := c.Run(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewTopics)
	assert.Equal(t, 2, result.TopicsAssigned)
	assert.Equal(t, topics.saved[0].TopicID, topics.saved[1].TopicID)
}

func TestClusterer_CosineStartsNewTopicBelowThreshold(t *testing.T) {
	embeddings := []*domain.NewsEmbedding{
		{NewsID: 1, Vector: []float32{1, 0, 0}},
		{NewsID: 2, Vector: []float32{0, 1, 0}},
	}
	reader := &fakeEmbeddingReader{embeddings: embeddings}
	centroids := newFakeCentroidStore()
	topics := &fakeTopicWriter{}
	c := New(reader, centroids, topics, nil, logger.New("test"))

	result, err := c.Run(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewTopics)
	assert.NotEqual(t, topics.saved[0].TopicID, topics.saved[1].TopicID)
}

func TestClusterer_NearDuplicateOverlayShareGroupID(t *testing.T) {
	embeddings := []*domain.NewsEmbedding{
		{NewsID: 1, Vector: []float32{1, 0, 0}},
		{NewsID: 2, Vector: []float32{0.999, 0.001, 0}},
		{NewsID: 3, Vector: []float32{0, 1, 0}},
	}
	reader := &fakeEmbeddingReader{embeddings: embeddings}
	centroids := newFakeCentroidStore()
	topics := &fakeTopicWriter{}
	c := New(reader, centroids, topics, nil, logger.New("test"))

	result, err := c.Run(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsFormed)

	byID := make(map[int64]*domain.NewsTopic)
	for _, topic := range topics.saved {
		byID[topic.NewsID] = topic
	}
	require.NotNil(t, byID[1].GroupID)
	require.NotNil(t, byID[2].GroupID)
	assert.Equal(t, *byID[1].GroupID, *byID[2].GroupID)
	assert.Nil(t, byID[3].GroupID)
}

func TestClusterer_RemoteAlgorithmWithoutClustererErrors(t *testing.T) {
	embeddings := []*domain.NewsEmbedding{{NewsID: 1, Vector: []float32{1, 0, 0}}}
	reader := &fakeEmbeddingReader{embeddings: embeddings}
	centroids := newFakeCentroidStore()
	topics := &fakeTopicWriter{}
	c := New(reader, centroids, topics, nil, logger.New("test"))

	cfg := testConfig()
	cfg.Algorithm = AlgorithmHDBSCAN
	_, err := c.Run(context.Background(), cfg)
	assert.Error(t, err)
}

func TestExtractKeywords_ReturnsMostFrequentTokens(t *testing.T) {
	keywords := ExtractKeywords([]string{"삼성전자 실적 호조", "삼성전자 주가 상승"}, 2)
	require.Len(t, keywords, 2)
	assert.Equal(t, "삼성전자", keywords[0])
}
