package source

import "strings"

// DefaultFutureKeywords mark text that talks about something still to come.
var DefaultFutureKeywords = []string{
	"예정", "계획", "출시예정", "발표예정", "공개예정", "상반기", "하반기",
	"upcoming", "scheduled", "expected", "planned", "will launch", "to be released",
}

// DefaultPastIndicators mark headlines about things that already happened.
var DefaultPastIndicators = []string{
	"출시했", "발표했", "공개했", "선보였", "개최했", "열렸", "발매됐", "나왔",
	"launched", "released", "announced", "unveiled", "revealed", "debuted",
}

// Filter holds keyword lists for tense matching.
type Filter struct {
	future []string
	past   []string
}

// NewFilter creates a filter with the default keyword lists plus extras.
func NewFilter(extraFuture, extraPast []string) *Filter {
	return &Filter{
		future: lowerAll(append(append([]string{}, DefaultFutureKeywords...), extraFuture...)),
		past:   lowerAll(append(append([]string{}, DefaultPastIndicators...), extraPast...)),
	}
}

// HasFutureKeyword reports whether any of texts mentions a future marker.
func (f *Filter) HasFutureKeyword(texts ...string) bool {
	for _, t := range texts {
		if containsAny(strings.ToLower(t), f.future) {
			return true
		}
	}
	return false
}

// IsPastTense reports whether text reads as an already-happened event.
func (f *Filter) IsPastTense(text string) bool {
	return containsAny(strings.ToLower(text), f.past)
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
