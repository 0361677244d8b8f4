package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Scraper collects headlines from financial news sites' topic pages.
type Scraper struct {
	sources []Source
	timeout time.Duration
}

var _ interfaces.HeadlineSource = (*Scraper)(nil)

// Source is one site to scrape. SearchPath contains {topic}.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string
	Item       string // container of one story
	Title      string // headline within Item
	RateLimit  time.Duration
}

// NewScraper uses the default Indian market sources unless sources are given.
func NewScraper(timeout time.Duration, sources ...Source) *Scraper {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &Scraper{sources: sources, timeout: timeout}
}

func DefaultSources() []Source {
	return []Source{
		{
			Name:       "MoneyControl",
			BaseURL:    "https://www.moneycontrol.com",
			SearchPath: "/news/tags/{topic}.html",
			Item:       "li.clearfix",
			Title:      "h2 a, h3 a",
			RateLimit:  2 * time.Second,
		},
		{
			Name:       "EconomicTimes",
			BaseURL:    "https://economictimes.indiatimes.com",
			SearchPath: "/topic/{topic}",
			Item:       "div.story-box",
			Title:      "a",
			RateLimit:  2 * time.Second,
		},
		{
			Name:       "BusinessStandard",
			BaseURL:    "https://www.business-standard.com",
			SearchPath: "/search?q={topic}",
			Item:       "div.listing-txt",
			Title:      "a.Hdng",
			RateLimit:  2 * time.Second,
		},
	}
}

// Topic turns a boolean search query into a site tag: the first
// alternative, lowercased and hyphenated.
func Topic(query string) string {
	first, _, _ := strings.Cut(query, " OR ")
	return strings.Join(strings.Fields(strings.ToLower(first)), "-")
}

// Headlines scrapes sources in order until limit distinct headlines are
// collected. A failing source is logged and skipped.
func (s *Scraper) Headlines(ctx context.Context, query string, limit int) ([]string, error) {
	topic := Topic(query)
	seen := map[string]bool{}
	var out []string

	for i, src := range s.sources {
		if len(out) >= limit {
			break
		}
		if i > 0 && src.RateLimit > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(src.RateLimit):
			}
		}

		got, err := s.scrapeSource(ctx, src, topic, limit-len(out))
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", src.Name, "topic", topic)
			continue
		}
		for _, h := range got {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}

	logger.Debug(ctx, "Headline scraping completed", "topic", topic, "headlines", len(out))
	return out, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, topic string, want int) ([]string, error) {
	var headlines []string
	seen := map[string]bool{}

	c := colly.NewCollector(
		colly.AllowedDomains(hostname(src.BaseURL)),
		colly.MaxDepth(1),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnHTML(src.Item, func(e *colly.HTMLElement) {
		if len(headlines) >= want {
			return
		}
		if title := headline(e.DOM, src.Title); title != "" && !seen[title] {
			seen[title] = true
			headlines = append(headlines, title)
		}
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("%s: HTTP %d: %w", r.Request.URL, r.StatusCode, err)
	})

	target := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{topic}", url.PathEscape(topic))
	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", target, err)
	}
	c.Wait()

	if scrapeErr != nil && len(headlines) == 0 {
		return nil, scrapeErr
	}
	return headlines, nil
}

// headline is the whitespace-collapsed text of the first match of sel.
func headline(sel *goquery.Selection, title string) string {
	return strings.Join(strings.Fields(sel.Find(title).First().Text()), " ")
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
