package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wilhg/scout/pkg/tool"
)

// NameSentiment is the registry name of the sentiment analysis tool.
const NameSentiment = "analyze_sentiment"

// SentimentBreakdown is the positive/negative/neutral distribution.
type SentimentBreakdown struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// Theme is a recurring topic in reviews.
type Theme struct {
	Theme        string  `json:"theme"`
	MentionCount int     `json:"mention_count"`
	Sentiment    string  `json:"sentiment"`
	ImpactScore  float64 `json:"impact_score"`
}

// KeyThemes groups themes by polarity.
type KeyThemes struct {
	Positive []Theme `json:"positive"`
	Negative []Theme `json:"negative"`
}

// ReviewSample is one representative review.
type ReviewSample struct {
	Text      string `json:"text"`
	Rating    int    `json:"rating"`
	Sentiment string `json:"sentiment"`
	Date      string `json:"date"`
}

// SentimentAnalysis is the sentiment tool's output.
type SentimentAnalysis struct {
	Product            string             `json:"product"`
	AnalysisDate       string             `json:"analysis_date"`
	OverallScore       float64            `json:"overall_score"`
	TotalReviews       int                `json:"total_reviews"`
	SentimentBreakdown SentimentBreakdown `json:"sentiment_breakdown"`
	KeyThemes          KeyThemes          `json:"key_themes"`
	RecommendationRate float64            `json:"recommendation_rate"`
	NPSScore           int                `json:"nps_score"`
	Trend              string             `json:"trend"`
	SampleReviews      []ReviewSample     `json:"sample_reviews"`
	ConfidenceLevel    string             `json:"confidence_level"`
}

type sentimentInput struct {
	ProductName string `json:"product_name"`
}

const maxReviews = 20

var positiveIndicators = []string{
	"excellent", "amazing", "great", "love", "best", "perfect",
	"fantastic", "awesome", "recommend", "satisfied", "happy",
	"quality", "worth", "impressive", "outstanding", "brilliant",
}

var negativeIndicators = []string{
	"terrible", "awful", "worst", "hate", "disappointed", "poor",
	"bad", "broke", "waste", "regret", "horrible", "useless",
	"defective", "cheap", "failed", "problem", "issue", "avoid",
}

var themeStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "your": true, "about": true, "more": true, "when": true,
	"which": true, "their": true, "been": true, "would": true, "could": true,
	"should": true, "they": true, "them": true, "there": true, "here": true,
	"what": true, "where": true, "also": true, "just": true, "very": true,
	"really": true, "some": true, "many": true, "much": true, "most": true,
	"other": true, "only": true,
}

type scrapedReview struct {
	text      string
	sentiment string
	rating    int
}

// Sentiment analyzes customer review sentiment for a product from search
// results, classifying snippets with a small indicator lexicon.
type Sentiment struct {
	searcher Searcher
	ttl      time.Duration
	now      func() time.Time
}

// NewSentiment builds the sentiment analysis tool.
func NewSentiment(s Searcher, ttl time.Duration) *Sentiment {
	return &Sentiment{searcher: s, ttl: ttl, now: time.Now}
}

func (s *Sentiment) Describe() tool.Descriptor {
	return tool.Descriptor{
		Name:         NameSentiment,
		Description:  "Analyze customer review sentiment: score, distribution, key themes, NPS and trend.",
		InputSchema:  tool.SchemaFor[sentimentInput](),
		OutputSchema: tool.SchemaFor[SentimentAnalysis](),
		Cacheable:    true,
		TTL:          s.ttl,
	}
}

func (s *Sentiment) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	product, _ := args["product_name"].(string)
	if product == "" {
		return nil, fmt.Errorf("product_name is empty")
	}

	reviews := s.scrapeReviews(ctx, product)
	breakdown := sentimentBreakdown(reviews)
	score := overallScore(breakdown)

	return asMap(SentimentAnalysis{
		Product:            product,
		AnalysisDate:       s.now().UTC().Format(time.RFC3339),
		OverallScore:       score,
		TotalReviews:       len(reviews),
		SentimentBreakdown: breakdown,
		KeyThemes: KeyThemes{
			Positive: s.extractThemes(ctx, product+" pros advantages benefits review", "positive"),
			Negative: s.extractThemes(ctx, product+" cons disadvantages problems issues review", "negative"),
		},
		RecommendationRate: round2(breakdown.Positive * 0.95),
		NPSScore:           npsScore(breakdown.Positive, breakdown.Negative),
		Trend:              trend(score),
		SampleReviews:      sampleReviews(reviews, s.now()),
		ConfidenceLevel:    confidenceLevel(len(reviews)),
	})
}

func (s *Sentiment) scrapeReviews(ctx context.Context, product string) []scrapedReview {
	results, err := s.searcher.Search(ctx, product+" review customer opinion")
	if err != nil {
		return nil
	}
	var reviews []scrapedReview
	for _, r := range results {
		if len(reviews) >= maxReviews {
			break
		}
		text := strings.TrimSpace(r.Snippet)
		if len(text) <= 20 {
			continue
		}
		if len(text) > 300 {
			text = text[:300]
		}
		sentiment := classifySentiment(text)
		reviews = append(reviews, scrapedReview{
			text:      text,
			sentiment: sentiment,
			rating:    estimateRating(sentiment),
		})
	}
	return reviews
}

func (s *Sentiment) extractThemes(ctx context.Context, query, sentiment string) []Theme {
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return []Theme{}
	}
	var parts []string
	for i, r := range results {
		if i >= 5 {
			break
		}
		parts = append(parts, r.Snippet)
	}
	text := strings.ToLower(strings.Join(parts, " "))

	freq := wordFrequencies(text, themeStopwords)
	themes := []Theme{}
	for _, word := range topWords(freq, 5) {
		count := freq[word]
		var impact float64
		if sentiment == "positive" {
			impact = minFloat(10.0, float64(count)*0.5+5)
		} else {
			impact = minFloat(7.0, float64(count)*0.3+3)
		}
		themes = append(themes, Theme{
			Theme:        title(word),
			MentionCount: count * 10,
			Sentiment:    sentiment,
			ImpactScore:  round1(impact),
		})
	}
	return themes
}

func classifySentiment(text string) string {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveIndicators {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeIndicators {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	}
	return "neutral"
}

func estimateRating(sentiment string) int {
	switch sentiment {
	case "positive":
		return 4
	case "negative":
		return 2
	}
	return 3
}

func sentimentBreakdown(reviews []scrapedReview) SentimentBreakdown {
	if len(reviews) == 0 {
		return SentimentBreakdown{Positive: 0.33, Negative: 0.33, Neutral: 0.34}
	}
	total := float64(len(reviews))
	var pos, neg, neu float64
	for _, r := range reviews {
		switch r.sentiment {
		case "positive":
			pos++
		case "negative":
			neg++
		default:
			neu++
		}
	}
	return SentimentBreakdown{
		Positive: round2(pos / total),
		Negative: round2(neg / total),
		Neutral:  round2(neu / total),
	}
}

func overallScore(b SentimentBreakdown) float64 {
	score := 3.0 + b.Positive*2.0 - b.Negative*1.5
	if score > 5.0 {
		score = 5.0
	}
	if score < 1.0 {
		score = 1.0
	}
	return round1(score)
}

func npsScore(positive, negative float64) int {
	promoters := positive * 0.8
	detractors := negative * 0.9
	return int((promoters - detractors) * 100)
}

func trend(score float64) string {
	switch {
	case score >= 4.0:
		return "Rising"
	case score >= 3.0:
		return "Stable"
	}
	return "Declining"
}

func confidenceLevel(reviews int) string {
	switch {
	case reviews >= 15:
		return "High"
	case reviews >= 8:
		return "Medium"
	}
	return "Low"
}

func sampleReviews(reviews []scrapedReview, now time.Time) []ReviewSample {
	samples := []ReviewSample{}
	for i, r := range reviews {
		if i >= 5 {
			break
		}
		samples = append(samples, ReviewSample{
			Text:      r.text,
			Rating:    r.rating,
			Sentiment: r.sentiment,
			Date:      now.UTC().Format("2006-01-02"),
		})
	}
	return samples
}
