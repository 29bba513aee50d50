// Package feed parses RSS 2.0 and Atom 1.0 feeds into ranked items.
//
// Auto-detects format from the XML root element:
//   - <rss ...> / <rdf ...> → RSS 2.0
//   - <feed ...> → Atom 1.0
//
// Item order is preserved: a feed is treated as a ranked list, so the
// first item carries rank 1 when handed to the trend engine.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Item is one ranked entry in a feed.
type Item struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
}

// Feed is a parsed RSS or Atom document.
type Feed struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Items []Item `json:"items"`
}

// Parse auto-detects and parses RSS 2.0 or Atom 1.0 XML.
func Parse(data []byte) (*Feed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("feed: empty data")
	}

	switch detectFormat(trimmed) {
	case "rss":
		return parseRSS(data)
	case "atom":
		return parseAtom(data)
	default:
		return nil, fmt.Errorf("feed: unknown format (expected <rss> or <feed>)")
	}
}

func detectFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			}
			return ""
		}
	}
}

// --- RSS 2.0 ---

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Link  string    `xml:"link"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

func parseRSS(data []byte) (*Feed, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse rss: %w", err)
	}

	ch := root.Channel
	feed := &Feed{
		Title: strings.TrimSpace(ch.Title),
		Link:  strings.TrimSpace(ch.Link),
		Items: make([]Item, 0, len(ch.Items)),
	}
	for _, item := range ch.Items {
		feed.Items = append(feed.Items, Item{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Published: strings.TrimSpace(item.PubDate),
		})
	}
	return feed, nil
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

func parseAtom(data []byte) (*Feed, error) {
	var root atomFeed
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse atom: %w", err)
	}

	feed := &Feed{
		Title: strings.TrimSpace(root.Title),
		Link:  alternateLink(root.Links),
		Items: make([]Item, 0, len(root.Entries)),
	}
	for _, entry := range root.Entries {
		published := strings.TrimSpace(entry.Published)
		if published == "" {
			published = strings.TrimSpace(entry.Updated)
		}
		feed.Items = append(feed.Items, Item{
			Title:     strings.TrimSpace(entry.Title),
			Link:      alternateLink(entry.Links),
			Published: published,
		})
	}
	return feed, nil
}

func alternateLink(links []atomLink) string {
	// Prefer rel="alternate", then first href.
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}
