package application

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const maxContentLength = 5000

var (
	htmlTagPattern       = regexp.MustCompile(`<[^>]*>`)
	repeatedSpacePattern = regexp.MustCompile(`[\s\x{00A0}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]+`)
	punctuationPattern   = regexp.MustCompile(`[\p{P}\p{S}]`)
)

// Normalizer strips markup, collapses whitespace, and computes the
// dedup key two otherwise-identical items converge on.
type Normalizer struct{}

// NewNormalizer builds a Normalizer. It is stateless, so a single
// instance is safely shared across goroutines.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Clean strips HTML tags, unescapes entities, collapses every Unicode
// whitespace run (including \n\t) to a single space, and truncates at
// 5000 characters appending "…". Idempotent: Clean(Clean(x)) == Clean(x).
func (n *Normalizer) Clean(raw string) string {
	stripped := htmlTagPattern.ReplaceAllString(raw, " ")
	unescaped := html.UnescapeString(stripped)
	collapsed := strings.TrimSpace(repeatedSpacePattern.ReplaceAllString(unescaped, " "))

	if len([]rune(collapsed)) <= maxContentLength {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:maxContentLength]) + "…"
}

// ExtractBestContent returns the longer of description/content once
// both are cleaned; content wins ties, description is used when
// content is empty.
func (n *Normalizer) ExtractBestContent(description, content string) string {
	cleanedContent := n.Clean(content)
	if cleanedContent == "" {
		return n.Clean(description)
	}
	cleanedDescription := n.Clean(description)
	if len([]rune(cleanedDescription)) > len([]rune(cleanedContent)) {
		return cleanedDescription
	}
	return cleanedContent
}

// IsContentTooShort flags near-empty bodies (<=50 chars).
func (n *Normalizer) IsContentTooShort(content string) bool {
	return len([]rune(content)) <= 50
}

// IsContentSuspicious flags bodies that are >=60% punctuation/symbol
// runes, or where some 3-gram of words repeats >=5 times — both cheap
// signals of feed boilerplate or scraping artifacts.
func (n *Normalizer) IsContentSuspicious(content string) bool {
	runes := []rune(content)
	if len(runes) == 0 {
		return false
	}

	punctCount := 0
	for _, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		if punctuationPattern.MatchString(string(r)) {
			punctCount++
		}
	}
	nonSpace := 0
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	if nonSpace > 0 && float64(punctCount)/float64(nonSpace) >= 0.6 {
		return true
	}

	words := strings.Fields(content)
	if len(words) < 3 {
		return false
	}
	grams := make(map[string]int, len(words))
	for i := 0; i+3 <= len(words); i++ {
		gram := strings.Join(words[i:i+3], " ")
		grams[gram]++
		if grams[gram] >= 5 {
			return true
		}
	}
	return false
}

// DedupKey computes the stable hash the ingestor uses to skip
// re-saving the same story: hash(normalize(title) + source +
// iso(publishedAt) truncated to the minute).
func (n *Normalizer) DedupKey(title, source string, publishedAt time.Time) string {
	canonicalTitle := strings.ToLower(n.Clean(title))
	truncated := publishedAt.UTC().Truncate(time.Minute).Format(time.RFC3339)

	h := sha256.New()
	h.Write([]byte(canonicalTitle))
	h.Write([]byte("|"))
	h.Write([]byte(source))
	h.Write([]byte("|"))
	h.Write([]byte(truncated))
	return hex.EncodeToString(h.Sum(nil))
}
