// Package feed fetches vendor security bulletins from an RSS or Atom feed.
// A feed is a Tier-3 enrichment source: items mentioning the advisory id
// contribute bulletin links and, when nothing better exists, a narrative
// description. Both RSS 2.0 and Atom documents are understood.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/httpx"
)

// SourceName identifies this fetcher in provenance lists.
const SourceName = "feed"

// Config holds configuration for the feed fetcher.
type Config struct {
	// FeedURL is the bulletin feed location. Required.
	FeedURL string

	// Name overrides the provenance name, letting several feeds coexist.
	Name string
}

// Fetcher scans a security bulletin feed for advisory mentions.
type Fetcher struct {
	client  *httpx.Client
	feedURL string
	name    string
}

// New creates a feed fetcher backed by the shared resilient client.
func New(client *httpx.Client, cfg Config) *Fetcher {
	name := cfg.Name
	if name == "" {
		name = SourceName
	}
	return &Fetcher{client: client, feedURL: cfg.FeedURL, name: name}
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return f.name }

// Tier returns the priority class.
func (f *Fetcher) Tier() domain.Tier { return domain.TierEnrichment }

// Fetch downloads the feed (usually a cache hit) and collects items that
// mention the advisory id. Returns (nil, nil) when nothing matches.
func (f *Fetcher) Fetch(ctx context.Context, advisoryID string) (*domain.PartialRecord, error) {
	payload, err := f.client.Do(ctx, httpx.Request{URL: f.feedURL})
	if err != nil {
		return nil, fmt.Errorf("feed %s: download: %w", f.name, err)
	}

	items, err := ParseItems(payload.Body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.name, err)
	}

	return f.match(items, advisoryID), nil
}

// Item is one feed entry in provider-neutral form.
type Item struct {
	Title       string
	Link        string
	Description string
	Published   time.Time
}

// rssDocument covers RSS 2.0.
type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// atomDocument covers Atom feeds.
type atomDocument struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary string `xml:"summary"`
		Content string `xml:"content"`
		Updated string `xml:"updated"`
	} `xml:"entry"`
}

// ParseItems decodes an RSS 2.0 or Atom document into neutral items.
// Pure function.
func ParseItems(body []byte) ([]Item, error) {
	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		items := make([]Item, 0, len(rss.Channel.Items))
		for _, it := range rss.Channel.Items {
			items = append(items, Item{
				Title:       strings.TrimSpace(it.Title),
				Link:        strings.TrimSpace(it.Link),
				Description: strings.TrimSpace(it.Description),
				Published:   parseFeedTime(it.PubDate),
			})
		}
		return items, nil
	}

	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		items := make([]Item, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			description := entry.Summary
			if description == "" {
				description = entry.Content
			}
			items = append(items, Item{
				Title:       strings.TrimSpace(entry.Title),
				Link:        strings.TrimSpace(link),
				Description: strings.TrimSpace(description),
				Published:   parseFeedTime(entry.Updated),
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("%w: neither RSS nor Atom", domain.ErrParse)
}

// match assembles a partial record from the items mentioning the id.
func (f *Fetcher) match(items []Item, advisoryID string) *domain.PartialRecord {
	needle := strings.ToLower(advisoryID)
	record := &domain.PartialRecord{SourceName: f.name}

	for _, item := range items {
		haystack := strings.ToLower(item.Title + " " + item.Description)
		if !strings.Contains(haystack, needle) {
			continue
		}
		if item.Link != "" {
			record.References = append(record.References, item.Link)
		}
		if record.Description == "" && item.Description != "" {
			record.Description = item.Description
		}
		if record.PublishedAt == nil && !item.Published.IsZero() {
			published := item.Published
			record.PublishedAt = &published
		}
	}

	if record.Empty() {
		return nil
	}
	return record
}

// feedTimeFormats are the timestamp layouts seen across vendor feeds.
var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02",
}

// parseFeedTime tries the known layouts, returning zero time on failure.
func parseFeedTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range feedTimeFormats {
		if at, err := time.Parse(layout, value); err == nil {
			return at
		}
	}
	return time.Time{}
}
