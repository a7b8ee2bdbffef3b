// Package feeds renders RSS 2.0 feeds from record-store snapshots: a main
// feed of recently updated articles, one feed per search category, and a
// daily feed of today's discoveries. Feeds are written into the published
// docs directory for the git publisher to pick up.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/blob"
	"github.com/f8ai/pubpipe/internal/store"
)

const (
	mainFeedWindow = 30 * 24 * time.Hour
	maxDescription = 500
	rfc822GMT      = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Generator renders the feed set.
type Generator struct {
	records store.RecordStore
	blobs   blob.Store
	dir     string
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

// NewGenerator creates a Generator writing into dir. baseURL is the public
// location the feeds are served from.
func NewGenerator(records store.RecordStore, blobs blob.Store, dir, baseURL string, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		records: records,
		blobs:   blobs,
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// GenerateAll writes every feed and returns the paths written. Feeds with no
// eligible articles are skipped.
func (g *Generator) GenerateAll(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feed directory: %w", err)
	}
	snaps, err := g.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	entries := g.collect(ctx, snaps)
	now := g.now()
	var written []string

	write := func(name string, feed *rssFeed) error {
		if len(feed.Channel.Items) == 0 {
			return nil
		}
		path := filepath.Join(g.dir, name)
		if err := g.save(path, feed); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	main := g.newFeed(
		"Formulation PubMed Research Feed",
		"Latest cannabis formulation research articles from PubMed",
		g.baseURL+"/rss/feed.xml", now)
	cutoff := now.Add(-mainFeedWindow)
	for _, e := range entries {
		if e.article.UpdatedAt.After(cutoff) {
			main.Channel.Items = append(main.Channel.Items, g.item(e))
		}
	}
	if err := write("feed.xml", main); err != nil {
		return written, err
	}

	for _, cat := range categories(entries) {
		slug := categorySlug(cat)
		feed := g.newFeed(
			"Formulation PubMed - "+cat,
			"Latest "+strings.ToLower(cat)+" research articles",
			g.baseURL+"/rss/"+slug+".xml", now)
		for _, e := range entries {
			if hasCategory(e.article, cat) {
				feed.Channel.Items = append(feed.Channel.Items, g.item(e))
			}
		}
		if err := write(slug+".xml", feed); err != nil {
			return written, err
		}
	}

	today := now.Truncate(24 * time.Hour)
	daily := g.newFeed(
		fmt.Sprintf("Formulation PubMed - Daily Feed (%s)", now.Format("2006-01-02")),
		"Articles discovered on "+now.Format("January 2, 2006"),
		g.baseURL+"/rss/daily.xml", now)
	for _, e := range entries {
		if !e.article.DiscoveredAt.Before(today) {
			daily.Channel.Items = append(daily.Channel.Items, g.item(e))
		}
	}
	if err := write("daily.xml", daily); err != nil {
		return written, err
	}

	g.log.Info("feeds generated", "count", len(written))
	return written, nil
}

type entry struct {
	article     *article.Article
	description string
}

// collect keeps articles that have metadata and pairs each with its abstract
// text for the item description, newest first.
func (g *Generator) collect(ctx context.Context, snaps []*store.Snapshot) []entry {
	var entries []entry
	for _, snap := range snaps {
		a := snap.Article
		if a.Metadata == nil || a.Metadata.Title == "" {
			continue
		}
		entries = append(entries, entry{article: a, description: g.abstract(ctx, a)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].article.UpdatedAt.After(entries[j].article.UpdatedAt)
	})
	return entries
}

func (g *Generator) abstract(ctx context.Context, a *article.Article) string {
	rec := a.Stage(article.StageAbstract)
	if rec.Status != article.StatusDone || rec.ArtifactRef == "" {
		return ""
	}
	data, err := g.blobs.Get(ctx, rec.ArtifactRef)
	if err != nil {
		g.log.Warn("abstract artifact unreadable", "pmid", a.PMID, "error", err)
		return ""
	}
	text := string(data)
	if len(text) > maxDescription {
		text = text[:maxDescription] + "..."
	}
	return text
}

func (g *Generator) newFeed(title, description, link string, now time.Time) *rssFeed {
	return &rssFeed{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: channel{
			Title:         title,
			Description:   description,
			Link:          link,
			Language:      "en-us",
			LastBuildDate: now.UTC().Format(rfc822GMT),
			Generator:     "pubpipe",
			AtomLink:      atomLink{Href: link, Rel: "self", Type: "application/rss+xml"},
		},
	}
}

func (g *Generator) item(e entry) item {
	a := e.article
	md := a.Metadata
	it := item{
		Title:       md.Title,
		Link:        md.URL,
		Description: e.description,
		GUID:        guid{IsPermaLink: "false", Value: "pmid:" + a.PMID},
		PubDate:     a.UpdatedAt.UTC().Format(rfc822GMT),
		Categories:  a.SearchCategories,
	}
	if it.Link == "" {
		it.Link = "https://pubmed.ncbi.nlm.nih.gov/" + a.PMID + "/"
	}
	switch {
	case len(md.Authors) == 1:
		it.Author = md.Authors[0]
	case len(md.Authors) > 1:
		it.Author = md.Authors[0] + " et al."
	}
	return it
}

func (g *Generator) save(path string, feed *rssFeed) error {
	data, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write feed %s: %w", path, err)
	}
	return nil
}

func categories(entries []entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		for _, c := range e.article.SearchCategories {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

func hasCategory(a *article.Article, cat string) bool {
	for _, c := range a.SearchCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func categorySlug(cat string) string {
	return strings.ReplaceAll(strings.ToLower(cat), " ", "_")
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	AtomNS  string   `xml:"xmlns:atom,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string   `xml:"title"`
	Description   string   `xml:"description"`
	Link          string   `xml:"link"`
	Language      string   `xml:"language"`
	LastBuildDate string   `xml:"lastBuildDate"`
	Generator     string   `xml:"generator"`
	AtomLink      atomLink `xml:"atom:link"`
	Items         []item   `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type item struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description,omitempty"`
	GUID        guid     `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category,omitempty"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}
