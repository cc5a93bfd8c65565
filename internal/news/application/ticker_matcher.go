package application

import "strings"

// TickerAlias maps a 6-digit Korean issuer code to its Korean/English
// company-name aliases, used to spot a ticker mention by name even
// when the code itself doesn't appear in the text.
type TickerAlias struct {
	Code    string
	Aliases []string // Korean and English company names
}

// defaultTickers is a small static seed of well-known KOSPI issuers;
// a production deployment would load this from the reference-data
// table the ingestor's source config also lives in.
var defaultTickers = []TickerAlias{
	{Code: "005930", Aliases: []string{"삼성전자", "Samsung Electronics"}},
	{Code: "000660", Aliases: []string{"SK하이닉스", "SK Hynix"}},
	{Code: "035420", Aliases: []string{"NAVER", "네이버"}},
	{Code: "035720", Aliases: []string{"카카오", "Kakao"}},
	{Code: "005380", Aliases: []string{"현대차", "Hyundai Motor"}},
	{Code: "051910", Aliases: []string{"LG화학", "LG Chem"}},
	{Code: "006400", Aliases: []string{"삼성SDI", "Samsung SDI"}},
	{Code: "207940", Aliases: []string{"삼성바이오로직스", "Samsung Biologics"}},
	{Code: "068270", Aliases: []string{"셀트리온", "Celltrion"}},
	{Code: "105560", Aliases: []string{"KB금융", "KB Financial"}},
}

// TickerMatcher finds 6-digit Korean issuer codes and company-name
// aliases in free text.
type TickerMatcher struct {
	tickers []TickerAlias
}

// NewTickerMatcher builds a matcher over the given reference table,
// falling back to a small built-in set when none is supplied.
func NewTickerMatcher(tickers []TickerAlias) *TickerMatcher {
	if len(tickers) == 0 {
		tickers = defaultTickers
	}
	return &TickerMatcher{tickers: tickers}
}

// FindTickers returns the set of issuer codes whose literal code or
// any alias occurs in text.
func (m *TickerMatcher) FindTickers(text string) []string {
	found := make([]string, 0, 2)
	for _, t := range m.tickers {
		if strings.Contains(text, t.Code) {
			found = append(found, t.Code)
			continue
		}
		for _, alias := range t.Aliases {
			if strings.Contains(text, alias) {
				found = append(found, t.Code)
				break
			}
		}
	}
	return found
}

// CalculateTickerMatchStrength returns a bounded [0,1] score
// reflecting occurrence count, the number of distinct codes matched,
// and whether the primary match occurs in the title.
func (m *TickerMatcher) CalculateTickerMatchStrength(title, body string) float64 {
	full := title + " " + body
	codes := m.FindTickers(full)
	if len(codes) == 0 {
		return 0
	}

	occurrences := 0
	titleHit := false
	for _, t := range m.tickers {
		count := m.countOccurrences(full, t)
		occurrences += count
		if count > 0 && m.countOccurrences(title, t) > 0 {
			titleHit = true
		}
	}

	score := 0.3*float64(len(codes)) + 0.1*float64(occurrences)
	if titleHit {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (m *TickerMatcher) countOccurrences(text string, t TickerAlias) int {
	count := strings.Count(text, t.Code)
	for _, alias := range t.Aliases {
		count += strings.Count(text, alias)
	}
	return count
}
