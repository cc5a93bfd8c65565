package application

import (
	"testing"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
)

func TestRuleScorer_SourceWeightDominatesWhenNoTickersOrKeywords(t *testing.T) {
	matcher := NewTickerMatcher(nil)
	scorer := NewRuleScorer(matcher)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	body := "오늘 시장은 전반적으로 보합세를 보이며 특별한 이슈 없이 마감되었다"
	newsA := &domain.News{Title: "시장 동향", Body: body, PublishedAt: now}
	newsB := &domain.News{Title: "시장 동향", Body: body, PublishedAt: now}

	scoreA := scorer.Score(newsA, domain.Source{Weight: 1.0}, now)
	scoreB := scorer.Score(newsB, domain.Source{Weight: 0.5}, now)

	if scoreA.Importance <= scoreB.Importance {
		t.Fatalf("expected higher-weight source to score higher, got A=%f B=%f", scoreA.Importance, scoreB.Importance)
	}
	ratio := scoreA.Importance / scoreB.Importance
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("expected ~2x ratio per spec scenario 2, got %f", ratio)
	}
}

func TestRuleScorer_ImportanceAndRankScoreBounded(t *testing.T) {
	matcher := NewTickerMatcher(nil)
	scorer := NewRuleScorer(matcher)
	now := time.Now().UTC()

	news := &domain.News{
		Title:       "삼성전자 실적 배당 IPO 투자 수익",
		Body:        "삼성전자 005930 실적 발표 배당 IPO 투자 수익 전망이 밝다는 평가가 나왔다",
		PublishedAt: now,
	}
	score := scorer.Score(news, domain.Source{Weight: 1.0}, now)

	if score.Importance < 0 || score.Importance > 10 {
		t.Fatalf("expected importance in [0,10], got %f", score.Importance)
	}
	if score.RankScore < 0 || score.RankScore > 1 {
		t.Fatalf("expected rankScore in [0,1], got %f", score.RankScore)
	}
	if score.RankScore != score.Importance/10 {
		t.Fatalf("expected rankScore == importance/10, got %f vs %f", score.RankScore, score.Importance/10)
	}
}

func TestRuleScorer_FreshnessBuckets(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{1 * time.Hour, 1.0},
		{10 * time.Hour, 0.5},
		{48 * time.Hour, 0.2},
		{100 * time.Hour, 0},
	}
	for _, c := range cases {
		got := freshnessScore(now.Add(-c.age), now)
		if got != c.want {
			t.Fatalf("age %v: expected freshness %f, got %f", c.age, c.want, got)
		}
	}
}

func TestRuleScorer_QualityPenaltyForShortContent(t *testing.T) {
	matcher := NewTickerMatcher(nil)
	scorer := NewRuleScorer(matcher)
	now := time.Now().UTC()

	longNews := &domain.News{Title: "시장 속보", Body: "오늘 코스피 지수는 상승 마감하며 투자자들의 관심을 끌었다는 소식이 전해졌다", PublishedAt: now}
	shortNews := &domain.News{Title: "시장 속보", Body: "짧음", PublishedAt: now}

	longScore := scorer.Score(longNews, domain.Source{Weight: 0.5}, now)
	shortScore := scorer.Score(shortNews, domain.Source{Weight: 0.5}, now)

	if shortScore.Importance >= longScore.Importance {
		t.Fatalf("expected quality penalty to lower short-content score, long=%f short=%f", longScore.Importance, shortScore.Importance)
	}
	if _, ok := shortScore.ReasonJSON["quality_penalty"]; !ok {
		t.Fatal("expected quality_penalty present in reasonJson for short content")
	}
}
