package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/hihihowru/forum-autoposter-sub005/internal/fetch"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schemas"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Source kinds
const (
	KindFeed   = "rss"
	KindPage   = "page"
	KindQuotes = "quotes"
)

// LimitMovePct is the daily price limit on the Taiwan exchanges
const LimitMovePct = 9.5

// Candidate is a raw topic before classification
type Candidate struct {
	// Key identifies the candidate across discovery runs
	Key         string
	Title       string
	Body        string
	URL         string
	Origin      types.Origin
	EventTags   []string
	Instruments []string
	PublishedAt time.Time
}

// Source produces candidates
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]Candidate, error)
}

// SourceConfig declares one source
type SourceConfig struct {
	Name string `yaml:"name" validate:"required"`
	Kind string `yaml:"kind" validate:"required,oneof=rss page quotes"`
	URL  string `yaml:"url" validate:"required,url"`
	// ItemSelector, TitleSelector and LinkSelector apply to page sources
	ItemSelector  string `yaml:"item_selector"`
	TitleSelector string `yaml:"title_selector"`
	LinkSelector  string `yaml:"link_selector"`
	// ThresholdPct applies to quotes sources
	ThresholdPct float64 `yaml:"threshold_pct"`
	// MaxAge drops older feed items
	MaxAge time.Duration `yaml:"max_age"`
}

// BuildSources turns configs into sources sharing client
func BuildSources(cfgs []SourceConfig, client *fetch.Client) ([]Source, error) {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case KindFeed:
			out = append(out, NewFeedSource(c.Name, c.URL, c.MaxAge, client))
		case KindPage:
			if c.ItemSelector == "" {
				return nil, fmt.Errorf("source %s: page sources need item_selector", c.Name)
			}
			out = append(out, &PageSource{
				name: c.Name, url: c.URL, client: client,
				itemSelector: c.ItemSelector, titleSelector: c.TitleSelector, linkSelector: c.LinkSelector,
			})
		case KindQuotes:
			out = append(out, NewPriceEventSource(c.Name, c.URL, c.ThresholdPct, client))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", c.Name, c.Kind)
		}
	}
	return out, nil
}

// FeedSource reads an RSS or Atom feed of trending discussions
type FeedSource struct {
	name   string
	url    string
	maxAge time.Duration
	client *fetch.Client
	parser *gofeed.Parser
	now    func() time.Time
}

// NewFeedSource creates a feed source; maxAge of zero keeps every item
func NewFeedSource(name, feedURL string, maxAge time.Duration, client *fetch.Client) *FeedSource {
	return &FeedSource{name: name, url: feedURL, maxAge: maxAge, client: client, parser: gofeed.NewParser(), now: time.Now}
}

// Name implements Source
func (f *FeedSource) Name() string { return f.name }

// Discover implements Source
func (f *FeedSource) Discover(ctx context.Context) ([]Candidate, error) {
	res, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, err
	}
	feed, err := f.parser.ParseString(string(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", f.name, err)
	}

	now := f.now()
	out := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		pub := now
		if item.PublishedParsed != nil {
			pub = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pub = *item.UpdatedParsed
		}
		if f.maxAge > 0 && pub.Before(now.Add(-f.maxAge)) {
			continue
		}
		title := fetch.Text(item.Title)
		if title == "" {
			continue
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		key := item.GUID
		if key == "" {
			key = item.Link
		}
		if key == "" {
			key = title
		}
		out = append(out, Candidate{
			Key:         "feed|" + key,
			Title:       title,
			Body:        truncate(fetch.Text(desc), 2000),
			URL:         item.Link,
			Origin:      types.OriginTrending,
			PublishedAt: pub,
		})
	}
	return out, nil
}

// PageSource scrapes a trending list from an HTML page
type PageSource struct {
	name          string
	url           string
	client        *fetch.Client
	itemSelector  string
	titleSelector string
	linkSelector  string
}

// Name implements Source
func (p *PageSource) Name() string { return p.name }

// Discover implements Source
func (p *PageSource) Discover(ctx context.Context) ([]Candidate, error) {
	res, err := p.client.Get(ctx, p.url)
	if err != nil {
		return nil, err
	}
	doc, err := fetch.Document(res)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(p.url)

	var out []Candidate
	doc.Find(p.itemSelector).Each(func(_ int, item *goquery.Selection) {
		titleSel := item
		if p.titleSelector != "" {
			titleSel = item.Find(p.titleSelector).First()
		}
		title := fetch.CleanWhitespace(strings.TrimSpace(titleSel.Text()))
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return
		}

		linkSel := item.Find("a").First()
		if p.linkSelector != "" {
			linkSel = item.Find(p.linkSelector).First()
		} else if goquery.NodeName(item) == "a" {
			linkSel = item
		}
		link := resolve(base, linkSel.AttrOr("href", ""))

		key := link
		if key == "" {
			key = title
		}
		out = append(out, Candidate{
			Key:    "page|" + p.name + "|" + key,
			Title:  title,
			URL:    link,
			Origin: types.OriginTrending,
		})
	})
	return out, nil
}

// PriceEventSource turns large daily moves from a quotes endpoint into topics
type PriceEventSource struct {
	name      string
	url       string
	threshold float64
	client    *fetch.Client
	now       func() time.Time
}

// NewPriceEventSource creates a quotes source; a zero threshold defaults to 5%
func NewPriceEventSource(name, quotesURL string, thresholdPct float64, client *fetch.Client) *PriceEventSource {
	if thresholdPct <= 0 {
		thresholdPct = 5
	}
	return &PriceEventSource{name: name, url: quotesURL, threshold: thresholdPct, client: client, now: time.Now}
}

type quoteFeed struct {
	AsOf   string  `json:"as_of"`
	Quotes []quote `json:"quotes"`
}

type quote struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}

// Name implements Source
func (s *PriceEventSource) Name() string { return s.name }

// Discover implements Source
func (s *PriceEventSource) Discover(ctx context.Context) ([]Candidate, error) {
	res, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	if err := schemas.ValidateJSONString(schemas.Quotes, string(res.Body)); err != nil {
		return nil, fmt.Errorf("quotes from %s: %w", s.name, err)
	}
	var feed quoteFeed
	if err := json.Unmarshal(res.Body, &feed); err != nil {
		return nil, fmt.Errorf("decoding quotes from %s: %w", s.name, err)
	}

	day := s.now().Format("2006-01-02")
	if t, err := time.Parse(time.RFC3339, feed.AsOf); err == nil {
		day = t.Format("2006-01-02")
	} else if len(feed.AsOf) >= 10 {
		day = feed.AsOf[:10]
	}

	var out []Candidate
	for _, q := range feed.Quotes {
		if math.Abs(q.ChangePct) < s.threshold {
			continue
		}
		event := EventForMove(q.ChangePct)
		name := q.Name
		if name == "" {
			name = q.Symbol
		}
		out = append(out, Candidate{
			Key:         fmt.Sprintf("price|%s|%s|%s", q.Symbol, day, event),
			Title:       fmt.Sprintf("%s(%s) %s %+.2f%%", name, q.Symbol, eventLabel[event], q.ChangePct),
			Body:        fmt.Sprintf("%s 收盤價 %.2f，單日漲跌幅 %+.2f%%。", name, q.Price, q.ChangePct),
			Origin:      types.OriginPriceEvent,
			EventTags:   []string{event},
			Instruments: []string{strings.ToLower(q.Symbol)},
		})
	}
	return out, nil
}

// EventForMove names a daily move
func EventForMove(changePct float64) string {
	switch {
	case changePct >= LimitMovePct:
		return "limit_up"
	case changePct <= -LimitMovePct:
		return "limit_down"
	case changePct > 0:
		return "surge"
	default:
		return "plunge"
	}
}

var eventLabel = map[string]string{
	"limit_up":   "漲停",
	"limit_down": "跌停",
	"surge":      "大漲",
	"plunge":     "重挫",
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
