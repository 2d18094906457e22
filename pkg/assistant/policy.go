package assistant

import "strings"

// VisualPolicy decides whether the latest camera frame should ride along with a user message.
type VisualPolicy interface {
	WantsImage(text string) bool
}

type keywordPolicy struct {
	keywords []string
}

// NewKeywordPolicy matches case-insensitive substrings. An empty list never matches.
func NewKeywordPolicy(keywords []string) VisualPolicy {
	kp := keywordPolicy{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kp.keywords = append(kp.keywords, k)
		}
	}
	return kp
}

func (k keywordPolicy) WantsImage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range k.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// PolicyFunc adapts a plain predicate.
type PolicyFunc func(text string) bool

func (f PolicyFunc) WantsImage(text string) bool { return f(text) }
