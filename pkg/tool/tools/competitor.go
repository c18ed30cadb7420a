package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/wilhg/scout/pkg/tool"
)

// NameCompetitor is the registry name of the competitor analysis tool.
const NameCompetitor = "analyze_competitors"

// CompetitorProfile describes one competitor in the category.
type CompetitorProfile struct {
	Name                string   `json:"name"`
	MarketShare         float64  `json:"market_share"`
	PriceStrategy       string   `json:"price_strategy"`
	PriceIndex          float64  `json:"price_index"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	TargetSegment       string   `json:"target_segment"`
	OnlinePresenceScore float64  `json:"online_presence_score"`
}

// CompetitorAnalysis is the competitor tool's output.
type CompetitorAnalysis struct {
	Category                 string              `json:"category"`
	AnalysisDate             string              `json:"analysis_date"`
	Competitors              []CompetitorProfile `json:"competitors"`
	MarketConcentration      string              `json:"market_concentration"`
	TotalMarketShareAnalyzed float64             `json:"total_market_share_analyzed"`
	Opportunities            []string            `json:"opportunities"`
	Threats                  []string            `json:"threats"`
}

type competitorInput struct {
	ProductCategory string `json:"product_category"`
}

var (
	companyPattern = regexp.MustCompile(`(?:^|\s)([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\s*(?:Inc|Corp|LLC|Ltd|Company)?`)
	percentPattern = regexp.MustCompile(`(\d{1,2}(?:\.\d)?)\s*%`)
)

// Competitor discovers and profiles competitors for a product category
// from search results.
type Competitor struct {
	searcher Searcher
	ttl      time.Duration
	now      func() time.Time
}

// NewCompetitor builds the competitor analysis tool.
func NewCompetitor(s Searcher, ttl time.Duration) *Competitor {
	return &Competitor{searcher: s, ttl: ttl, now: time.Now}
}

func (c *Competitor) Describe() tool.Descriptor {
	return tool.Descriptor{
		Name:         NameCompetitor,
		Description:  "Profile the main competitors of a product category: market shares, strengths, weaknesses, opportunities and threats.",
		InputSchema:  tool.SchemaFor[competitorInput](),
		OutputSchema: tool.SchemaFor[CompetitorAnalysis](),
		Cacheable:    true,
		TTL:          c.ttl,
	}
}

func (c *Competitor) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	category, _ := args["product_category"].(string)
	if category == "" {
		return nil, fmt.Errorf("product_category is empty")
	}

	names := c.discoverCompetitors(ctx, category)
	competitors := make([]CompetitorProfile, 0, len(names))
	for _, name := range names {
		strengths, weaknesses := c.scrapeProfile(ctx, name, category)
		competitors = append(competitors, CompetitorProfile{
			Name:                name,
			MarketShare:         round1(c.estimateMarketShare(ctx, name, category)),
			PriceStrategy:       "Market-based",
			PriceIndex:          1.0,
			Strengths:           strengths,
			Weaknesses:          weaknesses,
			TargetSegment:       "General market",
			OnlinePresenceScore: 7.0,
		})
	}

	var total float64
	for _, p := range competitors {
		total += p.MarketShare
	}
	return asMap(CompetitorAnalysis{
		Category:                 category,
		AnalysisDate:             c.now().UTC().Format(time.RFC3339),
		Competitors:              competitors,
		MarketConcentration:      marketConcentration(competitors),
		TotalMarketShareAnalyzed: total,
		Opportunities:            opportunities(competitors),
		Threats:                  threats(competitors),
	})
}

func (c *Competitor) discoverCompetitors(ctx context.Context, category string) []string {
	results, err := c.searcher.Search(ctx, "top companies "+category+" market share")
	var names []string
	if err == nil {
		seen := make(map[string]bool)
		for i, r := range results {
			if i >= 10 || len(names) >= 5 {
				break
			}
			for _, name := range extractCompanyNames(r.Title) {
				if len(names) >= 5 {
					break
				}
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	if len(names) == 0 {
		return []string{
			"Leading " + category + " Brand",
			category + " Market Challenger",
			"Emerging " + category + " Player",
		}
	}
	return names
}

func extractCompanyNames(text string) []string {
	var out []string
	for _, m := range companyPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		switch name {
		case "The", "And", "For":
			continue
		}
		if len(name) > 2 {
			out = append(out, name)
		}
	}
	return out
}

func (c *Competitor) scrapeProfile(ctx context.Context, name, category string) (strengths, weaknesses []string) {
	strengths = c.scrapeSnippets(ctx, name+" "+category+" strengths advantages")
	if len(strengths) == 0 {
		strengths = []string{"Established market presence"}
	}
	weaknesses = c.scrapeSnippets(ctx, name+" "+category+" weaknesses problems reviews")
	if len(weaknesses) == 0 {
		weaknesses = []string{"Limited information available"}
	}
	if len(strengths) > 4 {
		strengths = strengths[:4]
	}
	if len(weaknesses) > 3 {
		weaknesses = weaknesses[:3]
	}
	return strengths, weaknesses
}

func (c *Competitor) scrapeSnippets(ctx context.Context, query string) []string {
	results, err := c.searcher.Search(ctx, query)
	if err != nil {
		return nil
	}
	var out []string
	for i, r := range results {
		if i >= 3 {
			break
		}
		s := r.Snippet
		if s == "" {
			continue
		}
		if len(s) > 100 {
			s = s[:100]
		}
		out = append(out, s)
	}
	return out
}

func (c *Competitor) estimateMarketShare(ctx context.Context, name, category string) float64 {
	results, err := c.searcher.Search(ctx, name+" "+category+" market share percentage")
	if err != nil {
		return 10.0
	}
	for _, r := range results {
		if m := percentPattern.FindStringSubmatch(r.Title + " " + r.Snippet); m != nil {
			share, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				return minFloat(share, 50.0)
			}
		}
	}
	return 10.0
}

func marketConcentration(competitors []CompetitorProfile) string {
	shares := make([]float64, 0, len(competitors))
	for _, c := range competitors {
		shares = append(shares, c.MarketShare)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(shares)))
	var top3 float64
	for i, s := range shares {
		if i >= 3 {
			break
		}
		top3 += s
	}
	switch {
	case top3 > 70:
		return "Highly concentrated"
	case top3 > 50:
		return "Moderately concentrated"
	}
	return "Fragmented"
}

func opportunities(competitors []CompetitorProfile) []string {
	var out []string
	var sumIndex float64
	weakPresence := false
	for _, c := range competitors {
		sumIndex += c.PriceIndex
		if c.OnlinePresenceScore < 7 {
			weakPresence = true
		}
	}
	if len(competitors) > 0 && sumIndex/float64(len(competitors)) > 1.1 {
		out = append(out, "Opportunity for aggressive price positioning")
	}
	if weakPresence {
		out = append(out, "Digital differentiation potential")
	}
	out = append(out, "Customer service differentiation", "Innovation in underserved segments")
	if len(out) > 4 {
		out = out[:4]
	}
	return out
}

func threats(competitors []CompetitorProfile) []string {
	out := []string{"Potential price war", "New disruptive entrants"}
	for _, c := range competitors {
		if c.MarketShare > 25 {
			out = append(out, "Dominant position of a major player")
			break
		}
	}
	return out
}
