package chat

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Filter matches chat content against a list of forbidden terms.
// Matching is done on NFKC-normalized, case-folded text so that full-width
// or differently cased spellings of a term are caught too.
type Filter struct {
	terms []string
}

// NewFilter builds a filter from raw terms; blank terms are ignored
func NewFilter(terms []string) *Filter {
	f := &Filter{}
	for _, term := range terms {
		normalized := normalize(term)
		if normalized == "" {
			continue
		}
		f.terms = append(f.terms, normalized)
	}
	return f
}

// Match reports whether content contains any forbidden term
func (f *Filter) Match(content string) bool {
	if f == nil || len(f.terms) == 0 {
		return false
	}
	normalized := normalize(content)
	for _, term := range f.terms {
		if strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}

// Len returns the number of active terms
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.terms)
}

func normalize(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	return cases.Fold().String(s)
}
