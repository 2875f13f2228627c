package crawler

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	derivedKeywordLimit = 15
	keywordLimit        = 20
	minKeywordRunes     = 3
)

var (
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	nonWordPattern = regexp.MustCompile(`[^a-zA-ZąćęłńóśźżĄĆĘŁŃÓŚŹŻ0-9\s-]`)
)

var stopWords = toSet(strings.Fields(`
	i oraz lub ale więc że to jest są był była było być byćże na w we do od
	a o z za dla przez bez pod nad po przy jak jakby gdy gdyż gdyby też teżże
	the and or of in on at to from with for by as into over under about
`))

// ExtractKeywords returns up to k tokens from text ordered by descending frequency.
// Ties keep first-occurrence order.
func ExtractKeywords(text string, k int) []string {
	if text == "" || k <= 0 {
		return nil
	}
	text = tagPattern.ReplaceAllString(text, " ")
	text = nonWordPattern.ReplaceAllString(text, " ")

	counts := make(map[string]int)
	var order []string
	for _, tok := range strings.Fields(text) {
		tok = strings.ToLower(tok)
		if utf8.RuneCountInString(tok) < minKeywordRunes || isAllDigits(tok) {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > k {
		order = order[:k]
	}
	return order
}

// MergeKeywords concatenates meta keywords (comma separated) with derived
// keywords, drops duplicates keeping the first, and caps the result.
func MergeKeywords(metaKeywords string, derived []string) []string {
	var all []string
	for _, kw := range strings.Split(metaKeywords, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			all = append(all, kw)
		}
	}
	all = append(all, derived...)

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, kw := range all {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == keywordLimit {
			break
		}
	}
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
