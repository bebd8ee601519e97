package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignite/leadflow/internal/domain"
)

// ArtifactStore persists raw scrape snapshots for forensic traceability.
// The returned path goes on the SignalSet next to the content hash.
type ArtifactStore interface {
	Put(ctx context.Context, leadID, name string, data []byte) (string, error)
}

// platformSignatures maps a platform name to markers found in storefront HTML.
var platformSignatures = map[string][]string{
	"shopify":     {"cdn.shopify.com", "shopify.theme", "myshopify.com"},
	"bigcommerce": {"bigcommerce.com", "stencil-utils"},
	"woocommerce": {"woocommerce", "wp-content/plugins/woocommerce"},
	"magento":     {"magento", "mage/cookies"},
	"amazon":      {"amazon.com", "amzn.to"},
	"walmart":     {"walmart.com"},
}

var mapKeywords = []string{
	"map pricing",
	"minimum advertised price",
	"msrp",
	"pricing policy",
	"authorized dealer",
}

var skuCountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*products?\b`),
	regexp.MustCompile(`(?i)(\d+)\s*items?\b`),
	regexp.MustCompile(`(?i)showing.*?of\s*(\d+)`),
}

var productHrefMarkers = []string{"/products/", "/product/", "/dp/", "/item/"}

const (
	maxBodyBytes    = 512 * 1024
	excerptBytes    = 2000
	maxCategories   = 20
	maxBrands       = 50
	maxProductLinks = 10
)

// StorefrontScraper fetches a lead's storefront within the scrape budget and
// extracts the raw signal set. The homepage snapshot is persisted with its
// SHA-256 hash before any extraction begins.
type StorefrontScraper struct {
	client *http.Client
	store  ArtifactStore
}

// NewStorefrontScraper builds a scraper over the given artifact store.
func NewStorefrontScraper(store ArtifactStore) *StorefrontScraper {
	return &StorefrontScraper{
		client: &http.Client{Timeout: 15 * time.Second},
		store:  store,
	}
}

// Research implements Researcher. Budget and page cap come from the scrape
// job; the caller brackets this call with the scrape audit entries.
func (s *StorefrontScraper) Research(ctx context.Context, lead *domain.Lead, budget domain.ScrapeJob) (*domain.SignalSet, error) {
	deadline := time.Now().Add(time.Duration(budget.BudgetMS) * time.Millisecond)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	html, finalURL, err := s.fetch(ctx, lead.WebsiteURL)
	if err != nil {
		return nil, fmt.Errorf("fetch homepage: %w", err)
	}

	signals := &domain.SignalSet{LeadID: lead.ID}

	// Snapshot before extraction so a later parse bug never loses evidence.
	path, err := s.store.Put(ctx, lead.ID, "home.html", []byte(html))
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	signals.ArtifactPath = path
	signals.ArtifactHash = fmt.Sprintf("%x", sha256.Sum256([]byte(html)))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse homepage: %w", err)
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > excerptBytes {
		text = text[:excerptBytes]
	}
	signals.SiteExcerpt = text
	signals.DetectedPlatform = detectPlatform(html)
	signals.Categories = extractCategories(doc)
	signals.SKUEstimate = estimateSKUs(doc, html)

	found, excerpt := detectMAP(html)
	signals.MAPTextFound = found
	signals.MAPTextExcerpt = excerpt

	// Sample product pages, within what the budget and page cap allow.
	pagesLeft := budget.MaxPages - 1
	for _, purl := range findProductURLs(doc, finalURL) {
		if pagesLeft <= 0 || time.Now().After(deadline) {
			break
		}
		product, perr := s.fetchProduct(ctx, purl)
		if perr != nil {
			log.Printf("[Scraper] Product fetch failed %s: %v", purl, perr)
			continue
		}
		if product != nil {
			signals.SampleProducts = append(signals.SampleProducts, *product)
			pagesLeft--
		}
	}

	for _, p := range signals.SampleProducts {
		if p.Price <= 0 {
			continue
		}
		if signals.PriceRangeMin == 0 || p.Price < signals.PriceRangeMin {
			signals.PriceRangeMin = p.Price
		}
		if p.Price > signals.PriceRangeMax {
			signals.PriceRangeMax = p.Price
		}
	}

	signals.BrandMentionsRaw = extractBrands(doc, signals.SampleProducts)
	signals.PrivateLabelRatio = privateLabelRatio(doc, signals.SampleProducts)

	return signals, nil
}

func (s *StorefrontScraper) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadflowBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", err
	}
	return string(body), resp.Request.URL.String(), nil
}

// ldProduct is the subset of schema.org Product JSON-LD the scraper reads.
type ldProduct struct {
	Type   string `json:"@type"`
	Name   string `json:"name"`
	Offers struct {
		Price json.Number `json:"price"`
	} `json:"offers"`
	Brand struct {
		Name string `json:"name"`
	} `json:"brand"`
}

func (s *StorefrontScraper) fetchProduct(ctx context.Context, rawURL string) (*domain.SampleProduct, error) {
	html, _, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var p domain.SampleProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var ld ldProduct
		if json.Unmarshal([]byte(sel.Text()), &ld) != nil || ld.Type != "Product" {
			return true
		}
		p.Title = ld.Name
		p.Vendor = ld.Brand.Name
		if price, err := ld.Offers.Price.Float64(); err == nil {
			p.Price = price
		}
		return false
	})

	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
		if len(p.Title) > 200 {
			p.Title = p.Title[:200]
		}
	}
	if p.Price == 0 {
		if content, ok := doc.Find(`meta[property="product:price:amount"]`).First().Attr("content"); ok {
			if price, err := strconv.ParseFloat(content, 64); err == nil {
				p.Price = price
			}
		}
	}
	if p.Title == "" {
		return nil, nil
	}
	return &p, nil
}

func detectPlatform(html string) string {
	lowered := strings.ToLower(html)
	for platform, sigs := range platformSignatures {
		for _, sig := range sigs {
			if strings.Contains(lowered, sig) {
				return platform
			}
		}
	}
	return "custom"
}

var navSkipWords = map[string]bool{
	"home": true, "about": true, "contact": true, "blog": true, "faq": true,
	"cart": true, "login": true, "register": true, "account": true,
	"search": true, "help": true,
}

func extractCategories(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var cats []string
	doc.Find("nav a").Each(func(_ int, sel *goquery.Selection) {
		t := strings.TrimSpace(sel.Text())
		if len(t) <= 2 || len(t) >= 50 || navSkipWords[strings.ToLower(t)] || seen[t] {
			return
		}
		seen[t] = true
		if len(cats) < maxCategories {
			cats = append(cats, t)
		}
	})
	return cats
}

func findProductURLs(doc *goquery.Document, base string) []string {
	baseURL, _ := url.Parse(base)
	seen := make(map[string]bool)
	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		isProduct := false
		for _, marker := range productHrefMarkers {
			if strings.Contains(href, marker) {
				isProduct = true
				break
			}
		}
		if !isProduct || len(urls) >= maxProductLinks {
			return
		}
		if strings.HasPrefix(href, "/") && baseURL != nil {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			href = baseURL.ResolveReference(ref).String()
		}
		if !strings.HasPrefix(href, "http") || seen[href] {
			return
		}
		seen[href] = true
		urls = append(urls, href)
	})
	return urls
}

func estimateSKUs(doc *goquery.Document, html string) int {
	for _, pat := range skuCountPatterns {
		if m := pat.FindStringSubmatch(html); m != nil {
			if count, err := strconv.Atoi(m[1]); err == nil && count > 1 && count < 100000 {
				return count
			}
		}
	}
	count := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.Contains(href, "/product") {
			count++
		}
	})
	return count
}

func extractBrands(doc *goquery.Document, products []domain.SampleProduct) []string {
	seen := make(map[string]bool)
	var brands []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] || len(brands) >= maxBrands {
			return
		}
		seen[name] = true
		brands = append(brands, name)
	}
	for _, p := range products {
		add(p.Vendor)
	}
	doc.Find(`meta[property="product:brand"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok {
			add(content)
		}
	})
	return brands
}

func detectMAP(html string) (bool, string) {
	lowered := strings.ToLower(html)
	for _, kw := range mapKeywords {
		i := strings.Index(lowered, kw)
		if i < 0 {
			continue
		}
		start := i - 100
		if start < 0 {
			start = 0
		}
		end := i + 200
		if end > len(html) {
			end = len(html)
		}
		excerpt := regexp.MustCompile(`<[^>]+>`).ReplaceAllString(html[start:end], " ")
		excerpt = strings.TrimSpace(excerpt)
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}
		return true, excerpt
	}
	return false, ""
}

// privateLabelRatio estimates the fraction of sampled products carrying the
// store's own name, read off the title tag.
func privateLabelRatio(doc *goquery.Document, products []domain.SampleProduct) float64 {
	if len(products) == 0 {
		return 0
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	storeName := title
	if i := strings.IndexAny(storeName, "|-"); i > 0 {
		storeName = storeName[:i]
	}
	storeName = strings.ToLower(strings.TrimSpace(storeName))
	if storeName == "" {
		return 0
	}
	count := 0
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Vendor), storeName) ||
			strings.Contains(strings.ToLower(p.Title), storeName) {
			count++
		}
	}
	return float64(count) / float64(len(products))
}
