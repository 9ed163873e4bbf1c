package domain

import "strings"

// UncategorizedTopic groups items that carry no topic at all.
const UncategorizedTopic = "Uncategorized"

// TopicCategories is the fixed classification vocabulary.
var TopicCategories = []string{
	"LLMs",
	"AI Agents",
	"AI Safety",
	"MLOps",
	"Computer Vision",
	"NLP",
	"Open Source",
	"Products",
	"Research",
	"Industry",
}

var topicIndex = func() map[string]string {
	idx := make(map[string]string, len(TopicCategories))
	for _, topic := range TopicCategories {
		idx[strings.ToLower(topic)] = topic
	}
	return idx
}()

// CanonicalTopic maps a free-form topic onto the fixed vocabulary.
func CanonicalTopic(topic string) (string, bool) {
	canonical, ok := topicIndex[strings.ToLower(strings.TrimSpace(topic))]
	return canonical, ok
}

// FilterTopics keeps known categories in their canonical spelling, in input
// order and without repeats.
func FilterTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		canonical, ok := CanonicalTopic(t)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// ParseArticleType accepts any casing of a known article type.
func ParseArticleType(value string) (ArticleType, bool) {
	v := ArticleType(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range ArticleTypes {
		if v == t {
			return t, true
		}
	}
	return "", false
}

// PrimaryTopic is the first topic of an item, used for grouping.
func (p ProcessedItem) PrimaryTopic() string {
	if len(p.Topics) == 0 {
		return UncategorizedTopic
	}
	return p.Topics[0]
}
