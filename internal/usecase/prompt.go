package usecase

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"NewsAggregator/internal/domain"
)

// DefaultMaxContentRunes truncates article bodies before they are sent out.
const DefaultMaxContentRunes = 8000

var summarizePrompt = template.Must(template.New("summarize").Parse(`You are an AI news analyst helping ML practitioners stay informed.
Analyze the following article and reply with a single JSON object.

ARTICLE TITLE: {{.Title}}
ARTICLE CONTENT:
{{.Content}}

SOURCE: {{.SourceKind}} from {{.SourceID}}
PUBLISHED: {{.PublishedAt}}

Reply with these fields:
- "title": a concise, informative title; keep the original if it is good
- "summary": a 2-3 paragraph summary of the main content
- "key_points": an array of 3 to 5 distinct takeaways
- "topics": an array of 1 to 3 values taken only from: {{.Topics}}
- "article_type": "news" or "tutorial"
- "relevance_score": a number between 0 and 1 for how useful this is to ML practitioners

Guidelines:
- Focus on practical implications for AI/ML practitioners
- Highlight technical details, new capabilities, or industry impact
- "news": announcements, industry updates, product launches, company news, events, research papers
- "tutorial": how-to guides, step-by-step walkthroughs, educational content, code examples, best practices
`))

type promptData struct {
	Title       string
	Content     string
	SourceKind  domain.SourceKind
	SourceID    string
	PublishedAt string
	Topics      string
}

// buildPrompt renders the summarization prompt for one item.
func buildPrompt(item domain.RawItem, maxContentRunes int) (string, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "No title"
	}

	data := promptData{
		Title:       title,
		Content:     truncateRunes(item.Content, maxContentRunes),
		SourceKind:  item.SourceKind,
		SourceID:    item.SourceID,
		PublishedAt: item.PublishedAt.UTC().Format(time.RFC3339),
		Topics:      strings.Join(domain.TopicCategories, ", "),
	}

	var buf bytes.Buffer
	if err := summarizePrompt.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
