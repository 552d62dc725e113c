package parser

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/scanner"
)

const defaultBodySelectors = "#telegram,#content,body"

var (
	frbMention = regexp.MustCompile(`(?i)\bFRBs?\b|fast radio bursts?`)
	atelNumber = regexp.MustCompile(`(?i)(?:read=|ATel\s*#\s*)(\d+)`)
)

// ATelFetcher reads the Astronomer's Telegram RSS feed and keeps FRB telegrams.
type ATelFetcher struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ scanner.Fetcher = (*ATelFetcher)(nil)

// NewATelFetcher wires an HTTP client used for the feed and telegram pages.
func NewATelFetcher(client *http.Client, logger *slog.Logger) *ATelFetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ATelFetcher{client: defaultClient(client), logger: logger, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (f *ATelFetcher) Name() string {
	return "atel"
}

// Origin reports the document origin produced by this fetcher.
func (f *ATelFetcher) Origin() domain.Origin {
	return domain.OriginTelegram
}

// Fetch yields FRB telegrams published at or after req.Since. With FullText set
// the telegram page body replaces the feed summary; a page that cannot be read
// falls back to the summary.
func (f *ATelFetcher) Fetch(ctx context.Context, req scanner.Request) iter.Seq2[domain.SourceDocument, error] {
	return func(yield func(domain.SourceDocument, error) bool) {
		body, err := fetchBody(ctx, f.client, req.URL)
		if err != nil {
			yield(domain.SourceDocument{}, err)
			return
		}
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			yield(domain.SourceDocument{}, fmt.Errorf("parse rss: %w", err))
			return
		}

		fetchedAt := f.now().UTC()
		selectors := req.Option("body_selector", defaultBodySelectors)
		seen := map[string]struct{}{}
		emitted := 0

		for _, item := range feed.Items {
			if err := ctx.Err(); err != nil {
				yield(domain.SourceDocument{}, err)
				return
			}
			summary := htmlText(item.Description)
			if !frbMention.MatchString(item.Title) && !frbMention.MatchString(summary) {
				continue
			}
			published := itemTime(item)
			if !req.Since.IsZero() && !published.IsZero() && published.Before(req.Since) {
				continue
			}

			id := atelID(item)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			text := summary
			if req.FullText && item.Link != "" {
				if page, err := f.pageText(ctx, item.Link, selectors); err != nil {
					f.logger.Warn("telegram page unavailable, using feed summary", "id", id, "error", err)
				} else if page != "" {
					text = page
				}
			}

			title := collapseSpace(item.Title)
			doc := domain.SourceDocument{
				ID:          id,
				Origin:      domain.OriginTelegram,
				URL:         item.Link,
				Title:       title,
				Authors:     joinAuthors(item.Authors),
				PublishedAt: published,
				FetchedAt:   fetchedAt,
				RawText:     strings.TrimSpace(title + "\n\n" + text),
			}
			if !yield(doc, nil) {
				return
			}
			emitted++
			if req.MaxItems > 0 && emitted >= req.MaxItems {
				return
			}
		}
	}
}

func (f *ATelFetcher) pageText(ctx context.Context, link, selectors string) (string, error) {
	body, err := fetchBody(ctx, f.client, link)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse telegram page: %w", err)
	}
	doc.Find("script,style,nav,header,footer").Remove()

	for _, sel := range strings.Split(selectors, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if text := collapseSpace(doc.Find(sel).First().Text()); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func atelID(item *gofeed.Item) string {
	for _, ref := range []string{item.Link, item.GUID, item.Title} {
		if match := atelNumber.FindStringSubmatch(ref); match != nil {
			return "ATel#" + match[1]
		}
	}
	return ""
}

// htmlText flattens an HTML fragment to whitespace-collapsed text.
func htmlText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	doc.Find("script,style").Remove()
	return collapseSpace(doc.Text())
}
