package application

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizer_CleanStripsHTMLAndCollapsesWhitespace(t *testing.T) {
	n := NewNormalizer()
	raw := "<p>삼성전자\n\n\t실적   발표</p>&amp;"
	got := n.Clean(raw)
	if strings.Contains(got, "<p>") || strings.Contains(got, "</p>") {
		t.Fatalf("expected tags stripped, got %q", got)
	}
	if strings.Contains(got, "\n") || strings.Contains(got, "\t") {
		t.Fatalf("expected whitespace collapsed, got %q", got)
	}
}

func TestNormalizer_CleanIsIdempotent(t *testing.T) {
	n := NewNormalizer()
	raw := "<div>  hello   world  </div>"
	once := n.Clean(raw)
	twice := n.Clean(once)
	if once != twice {
		t.Fatalf("expected clean(clean(x)) == clean(x), got %q vs %q", once, twice)
	}
}

func TestNormalizer_CleanTruncatesAt5000(t *testing.T) {
	n := NewNormalizer()
	raw := strings.Repeat("a", 6000)
	got := n.Clean(raw)
	runes := []rune(got)
	if runes[len(runes)-1] != '…' {
		t.Fatalf("expected ellipsis at truncation point, got suffix %q", string(runes[len(runes)-5:]))
	}
	if len(runes) != 5001 {
		t.Fatalf("expected 5000 chars + ellipsis, got %d runes", len(runes))
	}
}

func TestNormalizer_ExtractBestContentPrefersLonger(t *testing.T) {
	n := NewNormalizer()
	got := n.ExtractBestContent("short", "a much longer piece of content here")
	if got != "a much longer piece of content here" {
		t.Fatalf("expected longer content to win, got %q", got)
	}
}

func TestNormalizer_ExtractBestContentFallsBackToDescription(t *testing.T) {
	n := NewNormalizer()
	got := n.ExtractBestContent("description text", "")
	if got != "description text" {
		t.Fatalf("expected description fallback, got %q", got)
	}
}

func TestNormalizer_IsContentTooShort(t *testing.T) {
	n := NewNormalizer()
	if !n.IsContentTooShort("짧은 내용") {
		t.Fatal("expected short content to be flagged")
	}
	if n.IsContentTooShort(strings.Repeat("가", 100)) {
		t.Fatal("expected long content not to be flagged")
	}
}

func TestNormalizer_IsContentSuspiciousRepeatedGram(t *testing.T) {
	n := NewNormalizer()
	repeated := strings.Repeat("buy now click here ", 10)
	if !n.IsContentSuspicious(repeated) {
		t.Fatal("expected repeated 3-gram to be flagged suspicious")
	}
}

func TestNormalizer_DedupKeyStableAcrossCalls(t *testing.T) {
	n := NewNormalizer()
	ts := time.Date(2026, 7, 31, 10, 30, 45, 0, time.UTC)
	k1 := n.DedupKey("삼성전자 실적 발표", "naver", ts)
	k2 := n.DedupKey("삼성전자 실적 발표", "naver", ts.Add(10*time.Second))
	if k1 != k2 {
		t.Fatalf("expected dedup key stable within the same minute, got %q vs %q", k1, k2)
	}
}

func TestNormalizer_DedupKeyDiffersOnDifferentMinute(t *testing.T) {
	n := NewNormalizer()
	ts := time.Date(2026, 7, 31, 10, 30, 45, 0, time.UTC)
	k1 := n.DedupKey("삼성전자 실적 발표", "naver", ts)
	k2 := n.DedupKey("삼성전자 실적 발표", "naver", ts.Add(time.Minute))
	if k1 == k2 {
		t.Fatal("expected dedup key to differ across minutes")
	}
}
