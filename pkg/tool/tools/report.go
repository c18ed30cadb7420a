package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wilhg/scout/pkg/tool"
)

// NameReport is the registry name of the report synthesis tool.
const NameReport = "generate_report"

// ReportOutput is the report tool's output.
type ReportOutput struct {
	Report          string   `json:"report"`
	MissingSections []string `json:"missing_sections"`
	GeneratedAt     string   `json:"generated_at"`
}

type reportInput struct {
	ProductName            string         `json:"product_name"`
	Data                   map[string]any `json:"data,omitempty"`
	IncludeRecommendations bool           `json:"include_recommendations,omitempty"`
}

// Report synthesizes the final markdown report from collected tool
// outputs. It depends on run state rather than its arguments alone, so it
// is not cacheable through the argument-keyed cache.
type Report struct {
	now func() time.Time
}

// NewReport builds the report synthesis tool.
func NewReport() *Report {
	return &Report{now: time.Now}
}

func (r *Report) Describe() tool.Descriptor {
	return tool.Descriptor{
		Name:         NameReport,
		Description:  "Synthesize the final strategic report in markdown from all collected analysis data.",
		InputSchema:  tool.SchemaFor[reportInput](),
		OutputSchema: tool.SchemaFor[ReportOutput](),
		Cacheable:    false,
	}
}

func (r *Report) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["product_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("product_name is empty")
	}
	data, _ := args["data"].(map[string]any)
	includeRecs, _ := args["include_recommendations"].(bool)

	product := subMap(data, NameProduct)
	competitors := subMap(data, NameCompetitor)
	sentiment := subMap(data, NameSentiment)

	var missing []string
	if product == nil {
		missing = append(missing, "product")
	}
	if competitors == nil {
		missing = append(missing, "competitors")
	}
	if sentiment == nil {
		missing = append(missing, "sentiment")
	}
	if missing == nil {
		missing = []string{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Market Analysis Report\n\n")
	fmt.Fprintf(&b, "**Product:** %s\n\n", name)
	fmt.Fprintf(&b, "**Generation Date:** %s\n\n---\n\n", r.now().UTC().Format("01/02/2006 15:04"))

	writeExecutiveSummary(&b, name, product, sentiment)
	writeProductSection(&b, product)
	writeCompetitorSection(&b, competitors)
	writeSentimentSection(&b, sentiment)
	if includeRecs {
		writeRecommendations(&b, product, competitors, sentiment)
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "### Missing Data\n\nNo data was collected for: %s.\n",
			strings.Join(missing, ", "))
	}

	return asMap(ReportOutput{
		Report:          strings.TrimSpace(b.String()),
		MissingSections: missing,
		GeneratedAt:     r.now().UTC().Format(time.RFC3339),
	})
}

func writeExecutiveSummary(b *strings.Builder, name string, product, sentiment map[string]any) {
	b.WriteString("### Executive Summary\n\n")
	score := "N/A"
	if v, ok := sentiment["overall_score"].(float64); ok {
		score = fmt.Sprintf("%.1f", v)
	}
	recommendation := getFloat(sentiment, "recommendation_rate") * 100
	fmt.Fprintf(b, "**%s** presents a market positioning with a customer satisfaction score of **%s/5** and a recommendation rate of **%.0f%%**.\n\n",
		name, score, recommendation)
	if desc := getString(product, "description"); desc != "" {
		fmt.Fprintf(b, "**Product Description:** %s\n\n", desc)
	}
}

func writeProductSection(b *strings.Builder, product map[string]any) {
	b.WriteString("### 1. Product Analysis\n\n")
	if product == nil {
		b.WriteString("*Data not available*\n\n")
		return
	}
	priceRange := subMap(product, "price_range")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(b, "| **Product** | %s |\n", getString(product, "name"))
	fmt.Fprintf(b, "| **Average Price** | $%.2f |\n", getFloat(product, "average_price"))
	fmt.Fprintf(b, "| **Price Range** | $%.2f - $%.2f |\n",
		getFloat(priceRange, "min"), getFloat(priceRange, "max"))
	fmt.Fprintf(b, "| **Availability** | %s |\n", getString(product, "availability"))
	fmt.Fprintf(b, "| **Number of Sellers** | %.0f |\n", getFloat(product, "sellers_count"))
	fmt.Fprintf(b, "| **Category** | %s |\n\n", getString(product, "category"))

	sellers := subSlice(product, "top_sellers")
	if len(sellers) > 0 {
		b.WriteString("**Top Sellers:**\n")
		for i, s := range sellers {
			if i >= 3 {
				break
			}
			if m, ok := s.(map[string]any); ok {
				fmt.Fprintf(b, "  - %s: $%.2f\n", getString(m, "name"), getFloat(m, "price"))
			}
		}
		b.WriteString("\n")
	}
}

func writeCompetitorSection(b *strings.Builder, competitors map[string]any) {
	b.WriteString("### 2. Competitive Analysis\n\n")
	if competitors == nil {
		b.WriteString("*Data not available*\n\n")
		return
	}
	fmt.Fprintf(b, "**Market Concentration:** %s\n\n", getString(competitors, "market_concentration"))

	b.WriteString("| Competitor | Market Share | Strategy | Segment |\n")
	b.WriteString("|------------|--------------|----------|---------|\n")
	for i, c := range subSlice(competitors, "competitors") {
		if i >= 5 {
			break
		}
		if m, ok := c.(map[string]any); ok {
			fmt.Fprintf(b, "| %s | %.1f%% | %s | %s |\n",
				getString(m, "name"), getFloat(m, "market_share"),
				getString(m, "price_strategy"), getString(m, "target_segment"))
		}
	}
	b.WriteString("\n")

	writeBulletList(b, "**Identified Opportunities:**", subSlice(competitors, "opportunities"))
	writeBulletList(b, "**Threats:**", subSlice(competitors, "threats"))
}

func writeSentimentSection(b *strings.Builder, sentiment map[string]any) {
	b.WriteString("### 3. Customer Sentiment Analysis\n\n")
	if sentiment == nil {
		b.WriteString("*Data not available*\n\n")
		return
	}
	b.WriteString("| Indicator | Value |\n|-----------|-------|\n")
	fmt.Fprintf(b, "| **Overall Score** | %.1f/5 |\n", getFloat(sentiment, "overall_score"))
	fmt.Fprintf(b, "| **Number of Reviews** | %.0f |\n", getFloat(sentiment, "total_reviews"))
	fmt.Fprintf(b, "| **Recommendation Rate** | %.0f%% |\n", getFloat(sentiment, "recommendation_rate")*100)
	fmt.Fprintf(b, "| **NPS** | %.0f |\n", getFloat(sentiment, "nps_score"))
	fmt.Fprintf(b, "| **Trend** | %s |\n", getString(sentiment, "trend"))
	fmt.Fprintf(b, "| **Confidence** | %s |\n\n", getString(sentiment, "confidence_level"))

	if breakdown := subMap(sentiment, "sentiment_breakdown"); breakdown != nil {
		b.WriteString("**Sentiment Distribution:**\n")
		fmt.Fprintf(b, "- Positive: %.0f%%\n", getFloat(breakdown, "positive")*100)
		fmt.Fprintf(b, "- Negative: %.0f%%\n", getFloat(breakdown, "negative")*100)
		fmt.Fprintf(b, "- Neutral: %.0f%%\n\n", getFloat(breakdown, "neutral")*100)
	}

	themes := subMap(sentiment, "key_themes")
	writeThemeList(b, "**Major Positive Themes:**", subSlice(themes, "positive"), 4)
	writeThemeList(b, "**Areas for Improvement:**", subSlice(themes, "negative"), 3)
}

func writeRecommendations(b *strings.Builder, product, competitors, sentiment map[string]any) {
	b.WriteString("### 4. Strategic Recommendations\n\n")
	var recs []string
	if priceRange := subMap(product, "price_range"); priceRange != nil {
		recs = append(recs, fmt.Sprintf(
			"**Pricing Strategy:** Position price around $%.2f to be competitive while preserving margins",
			getFloat(priceRange, "min")*1.1))
	}
	if opps := subSlice(competitors, "opportunities"); len(opps) > 0 {
		if s, ok := opps[0].(string); ok {
			recs = append(recs, "**Market Opportunity:** "+s)
		}
	}
	if themes := subMap(sentiment, "key_themes"); themes != nil {
		if neg := subSlice(themes, "negative"); len(neg) > 0 {
			if m, ok := neg[0].(map[string]any); ok {
				recs = append(recs, fmt.Sprintf(
					"**Priority Improvement:** Address the %s issue identified in reviews",
					getString(m, "theme")))
			}
		}
		if pos := subSlice(themes, "positive"); len(pos) > 0 {
			if m, ok := pos[0].(map[string]any); ok {
				recs = append(recs, fmt.Sprintf(
					"**Competitive Advantage:** Capitalize on %s in marketing communications",
					getString(m, "theme")))
			}
		}
	}
	recs = append(recs,
		"**Distribution:** Strengthen presence on high-traffic platforms (Amazon, Walmart, Target, Best Buy)",
		"**Retention:** Implement post-purchase follow-up program to improve NPS")
	if len(recs) > 6 {
		recs = recs[:6]
	}
	for i, r := range recs {
		fmt.Fprintf(b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\n")
}

func writeBulletList(b *strings.Builder, heading string, items []any) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading + "\n")
	for _, it := range items {
		if s, ok := it.(string); ok {
			fmt.Fprintf(b, "- %s\n", s)
		}
	}
	b.WriteString("\n")
}

func writeThemeList(b *strings.Builder, heading string, themes []any, max int) {
	if len(themes) == 0 {
		return
	}
	b.WriteString(heading + "\n")
	for i, t := range themes {
		if i >= max {
			break
		}
		if m, ok := t.(map[string]any); ok {
			fmt.Fprintf(b, "- **%s** (impact: %.1f/10, mentions: %.0f)\n",
				getString(m, "theme"), getFloat(m, "impact_score"), getFloat(m, "mention_count"))
		}
	}
	b.WriteString("\n")
}

func subMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

func subSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].([]any)
	return sub
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getFloat(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
