package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wilhg/scout/pkg/tool"
)

// NameProduct is the registry name of the product data tool.
const NameProduct = "scrape_product_data"

// Seller is one price source found for the product.
type Seller struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Availability string  `json:"availability"`
	Rating       float64 `json:"rating,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// PriceRange brackets the observed prices.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ProductInfo is the product tool's output.
type ProductInfo struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	AveragePrice    float64    `json:"average_price"`
	PriceRange      PriceRange `json:"price_range"`
	Availability    string     `json:"availability"`
	SellersCount    int        `json:"sellers_count"`
	Category        string     `json:"category"`
	TopSellers      []Seller   `json:"top_sellers"`
	ScrapedAt       string     `json:"scraped_at"`
	ConfidenceScore float64    `json:"confidence_score"`
}

type productInput struct {
	ProductName string `json:"product_name"`
}

const maxSellers = 10

var (
	dollarPrice  = regexp.MustCompile(`\$(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)`)
	suffixPrice  = regexp.MustCompile(`(?i)(\d{1,4}(?:,\d{3})*(?:\.\d{2})?)\s*(?:USD|dollars?)`)
	ratingOutOf  = regexp.MustCompile(`(?i)(\d(?:\.\d)?)\s*(?:out of\s*5|/5|stars?)`)
	ratingLabel  = regexp.MustCompile(`(?i)rating[:\s]+(\d(?:\.\d)?)`)
	domainOfURL  = regexp.MustCompile(`(?:www\.)?([a-zA-Z0-9-]+)\.`)
	categoryHint = []*regexp.Regexp{
		regexp.MustCompile(`category[:\s]+([a-z\s/&]+?)(?:\.|,|\s{2})`),
		regexp.MustCompile(`(?:type|kind)\s+of\s+([a-z\s]+?)(?:\.|,|\s{2})`),
		regexp.MustCompile(`(?:shop|buy|browse)\s+([a-z\s]+?)(?:\s+at|\s+from|\.|,)`),
		regexp.MustCompile(`in\s+(?:the\s+)?([a-z\s]+?)\s+(?:category|section|department)`),
	}
)

var knownSellers = map[string]string{
	"amazon":  "Amazon",
	"walmart": "Walmart",
	"target":  "Target",
	"bestbuy": "Best Buy",
	"costco":  "Costco",
	"ebay":    "eBay",
	"newegg":  "Newegg",
}

var categoryStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "your": true, "about": true, "more": true, "when": true,
	"which": true, "their": true, "been": true, "would": true, "could": true,
	"should": true, "price": true, "prices": true, "shop": true,
	"product": true, "products": true, "best": true, "review": true,
	"reviews": true, "online": true, "store": true, "stores": true,
	"sale": true, "deal": true,
}

// Product collects pricing, availability and category data for a product
// from search results.
type Product struct {
	searcher Searcher
	ttl      time.Duration
	now      func() time.Time
}

// NewProduct builds the product data tool.
func NewProduct(s Searcher, ttl time.Duration) *Product {
	return &Product{searcher: s, ttl: ttl, now: time.Now}
}

func (p *Product) Describe() tool.Descriptor {
	return tool.Descriptor{
		Name:         NameProduct,
		Description:  "Collect product pricing, availability, sellers and category from e-commerce sources.",
		InputSchema:  tool.SchemaFor[productInput](),
		OutputSchema: tool.SchemaFor[ProductInfo](),
		Cacheable:    true,
		TTL:          p.ttl,
	}
}

func (p *Product) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, _ := args["product_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("product_name is empty")
	}

	sellers := p.searchPrices(ctx, name)
	description := p.scrapeDescription(ctx, name)
	category := p.detectCategory(ctx, name)

	info := ProductInfo{
		Name:         name,
		Description:  description,
		Availability: "Unknown",
		Category:     category,
		PriceRange:   PriceRange{},
		TopSellers:   []Seller{},
		ScrapedAt:    p.now().UTC().Format(time.RFC3339),
	}
	if len(sellers) == 0 {
		if info.Description == "" {
			info.Description = fmt.Sprintf("No detailed information found for %s", name)
		}
		return asMap(info)
	}

	var sum float64
	min, max := sellers[0].Price, sellers[0].Price
	for _, s := range sellers {
		sum += s.Price
		if s.Price < min {
			min = s.Price
		}
		if s.Price > max {
			max = s.Price
		}
	}
	sort.Slice(sellers, func(i, j int) bool { return sellers[i].Price < sellers[j].Price })
	top := sellers
	if len(top) > 5 {
		top = top[:5]
	}

	info.AveragePrice = round2(sum / float64(len(sellers)))
	info.PriceRange = PriceRange{Min: min, Max: max}
	info.Availability = overallAvailability(sellers)
	info.SellersCount = len(sellers)
	info.TopSellers = top
	info.ConfidenceScore = round2(minFloat(float64(len(sellers))/maxSellers, 1.0))
	return asMap(info)
}

func (p *Product) searchPrices(ctx context.Context, name string) []Seller {
	results, err := p.searcher.Search(ctx, name+" price buy")
	if err != nil {
		return nil
	}
	var sellers []Seller
	for _, r := range results {
		if len(sellers) >= maxSellers {
			break
		}
		if r.Title == "" {
			continue
		}
		price, ok := extractPrice(r.Snippet + " " + r.Title)
		if !ok {
			continue
		}
		sellers = append(sellers, Seller{
			Name:         extractSellerName(r.URL),
			Price:        price,
			Availability: extractAvailability(r.Snippet),
			Rating:       extractRating(r.Snippet),
			Source:       r.URL,
		})
	}
	return sellers
}

func (p *Product) scrapeDescription(ctx context.Context, name string) string {
	results, err := p.searcher.Search(ctx, name+" product description features")
	if err != nil || len(results) == 0 || results[0].Snippet == "" {
		return fmt.Sprintf("%s - Product information scraped from online sources.", name)
	}
	desc := results[0].Snippet
	if len(desc) > 300 {
		desc = desc[:300]
	}
	return desc
}

func (p *Product) detectCategory(ctx context.Context, name string) string {
	results, err := p.searcher.Search(ctx, name+" category type product")
	if err != nil || len(results) == 0 {
		return "General Product"
	}
	var parts []string
	for i, r := range results {
		if i >= 5 {
			break
		}
		parts = append(parts, r.Snippet)
	}
	combined := strings.ToLower(strings.Join(parts, " "))

	isA := regexp.MustCompile(regexp.QuoteMeta(strings.ToLower(name)) + `\s+is\s+(?:a|an)\s+([a-z\s]+?)(?:\.|,|that)`)
	for _, re := range append([]*regexp.Regexp{isA}, categoryHint...) {
		if m := re.FindStringSubmatch(combined); m != nil {
			cat := strings.TrimSpace(m[1])
			if len(cat) > 2 && len(cat) < 50 {
				return title(cat)
			}
		}
	}

	// No explicit category phrase; fall back to the dominant terms.
	top := topWords(wordFrequencies(combined, categoryStopwords), 2)
	if len(top) == 0 {
		return "General Product"
	}
	for i, w := range top {
		top[i] = title(w)
	}
	return strings.Join(top, " ")
}

func extractPrice(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{dollarPrice, suffixPrice} {
		if m := re.FindStringSubmatch(text); m != nil {
			raw := strings.ReplaceAll(m[1], ",", "")
			price, err := strconv.ParseFloat(raw, 64)
			if err == nil && price > 0.01 && price < 100000 {
				return round2(price), true
			}
		}
	}
	return 0, false
}

func extractSellerName(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for key, name := range knownSellers {
		if strings.Contains(lower, key) {
			return name
		}
	}
	if m := domainOfURL.FindStringSubmatch(rawURL); m != nil {
		return title(m[1])
	}
	return "Online Retailer"
}

func extractAvailability(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "out of stock") || strings.Contains(lower, "unavailable"):
		return "Out of Stock"
	case strings.Contains(lower, "limited") || strings.Contains(lower, "few left"):
		return "Limited Stock"
	case strings.Contains(lower, "in stock") || strings.Contains(lower, "available"):
		return "In Stock"
	}
	return "Check Website"
}

func extractRating(text string) float64 {
	for _, re := range []*regexp.Regexp{ratingOutOf, ratingLabel} {
		if m := re.FindStringSubmatch(text); m != nil {
			rating, err := strconv.ParseFloat(m[1], 64)
			if err == nil && rating >= 0 && rating <= 5 {
				return round1(rating)
			}
		}
	}
	return 0
}

func overallAvailability(sellers []Seller) string {
	limited := false
	for _, s := range sellers {
		switch s.Availability {
		case "In Stock":
			return "In Stock"
		case "Limited Stock":
			limited = true
		}
	}
	if limited {
		return "Limited Stock"
	}
	return "Check Website"
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
