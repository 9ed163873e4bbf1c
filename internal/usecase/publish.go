package usecase

import (
	"sort"
	"time"

	"NewsAggregator/internal/domain"
)

// PayloadVersion is the schema version stamped on every payload.
const PayloadVersion = "1.0"

// Payload is the publication output of one run.
type Payload struct {
	Meta    PayloadMeta                `json:"meta"`
	Stats   PayloadStats               `json:"stats"`
	ByTopic map[string][]PublishedItem `json:"by_topic"`
	Items   []PublishedItem            `json:"items"`
	Errors  []domain.CollectionError   `json:"errors"`
}

type PayloadMeta struct {
	RunID       string    `json:"run_id"`
	RunDate     time.Time `json:"run_date"`
	GeneratedAt time.Time `json:"generated_at"`
	Version     string    `json:"version"`
}

type PayloadStats struct {
	TotalItems              int            `json:"total_items"`
	PersistedCount          int            `json:"persisted_count"`
	CollectionErrors        int            `json:"collection_errors"`
	TopicDistribution       map[string]int `json:"topic_distribution"`
	SourceDistribution      map[string]int `json:"source_distribution"`
	ArticleTypeDistribution map[string]int `json:"article_type_distribution"`
}

// PublishedItem is the public view of a processed item; the embedding is
// never exposed.
type PublishedItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	KeyPoints      []string  `json:"key_points"`
	Topics         []string  `json:"topics"`
	ArticleType    string    `json:"article_type"`
	RelevanceScore float64   `json:"relevance_score"`
	URLs           []string  `json:"urls"`
	Sources        []string  `json:"sources"`
	PublishedAt    time.Time `json:"published_at"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// PublishInput is everything the publisher reads.
type PublishInput struct {
	RunID            string
	RunDate          time.Time
	Items            []domain.ProcessedItem
	PersistedCount   int
	CollectionErrors []domain.CollectionError
}

// Publisher assembles the payload. It performs no I/O.
type Publisher struct {
	now func() time.Time
}

func NewPublisher() *Publisher {
	return &Publisher{now: time.Now}
}

// Publish builds the payload for a run.
func (p *Publisher) Publish(in PublishInput) Payload {
	items := append([]domain.ProcessedItem(nil), in.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ItemID < items[j].ItemID
	})

	payload := Payload{
		Meta: PayloadMeta{
			RunID:       in.RunID,
			RunDate:     in.RunDate.UTC(),
			GeneratedAt: p.now().UTC(),
			Version:     PayloadVersion,
		},
		Stats: PayloadStats{
			TotalItems:              len(items),
			PersistedCount:          in.PersistedCount,
			CollectionErrors:        len(in.CollectionErrors),
			TopicDistribution:       map[string]int{},
			SourceDistribution:      map[string]int{},
			ArticleTypeDistribution: map[string]int{},
		},
		ByTopic: map[string][]PublishedItem{},
		Items:   make([]PublishedItem, 0, len(items)),
		Errors:  append([]domain.CollectionError{}, in.CollectionErrors...),
	}

	for _, item := range items {
		published := ToPublished(item)
		payload.Items = append(payload.Items, published)

		primary := item.PrimaryTopic()
		payload.ByTopic[primary] = append(payload.ByTopic[primary], published)

		for _, topic := range item.Topics {
			payload.Stats.TopicDistribution[topic]++
		}
		for _, kind := range item.SourceKinds {
			payload.Stats.SourceDistribution[string(kind)]++
		}
		payload.Stats.ArticleTypeDistribution[string(item.ArticleType)]++
	}
	return payload
}

// ToPublished converts a processed item into its public view.
func ToPublished(item domain.ProcessedItem) PublishedItem {
	sources := make([]string, 0, len(item.SourceKinds))
	for _, kind := range item.SourceKinds {
		sources = append(sources, string(kind))
	}
	return PublishedItem{
		ID:             item.ItemID,
		Title:          item.Title,
		Summary:        item.Summary,
		KeyPoints:      append([]string(nil), item.KeyPoints...),
		Topics:         append([]string(nil), item.Topics...),
		ArticleType:    string(item.ArticleType),
		RelevanceScore: item.RelevanceScore,
		URLs:           append([]string(nil), item.OriginalURLs...),
		Sources:        sources,
		PublishedAt:    item.PublishedAt.UTC(),
		ProcessedAt:    item.ProcessedAt.UTC(),
	}
}
