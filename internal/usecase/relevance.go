package usecase

import "strings"

// DefaultKeywords are the domain terms that make a message NSFAS-related.
var DefaultKeywords = []string{
	"nsfas",
	"funding",
	"bursary",
	"loan",
	"allowance",
	"scholarship",
	"application",
	"university",
	"college",
	"financial aid",
}

// IsRelevant reports whether text contains at least one keyword,
// case-insensitively. Blank text is never relevant.
func IsRelevant(text string, keywords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
