package parser

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/scanner"
)

const (
	defaultArxivQuery  = `all:"fast radio burst" OR all:FRB AND cat:astro-ph*`
	defaultArxivPage   = 50
	maxAbstractRunes   = 2000
	arxivDocumentIDFmt = "arXiv:%s"
)

var arxivIDExpr = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([^\s?#]+?)(?:v\d+)?(?:\.pdf)?$`)

// ArxivFetcher pages through the arXiv Atom API newest-first and stops once
// entries fall behind the requested window.
type ArxivFetcher struct {
	client *http.Client
	now    func() time.Time
}

var _ scanner.Fetcher = (*ArxivFetcher)(nil)

// NewArxivFetcher wires an HTTP client; a nil client gets a 30s timeout.
func NewArxivFetcher(client *http.Client) *ArxivFetcher {
	return &ArxivFetcher{client: defaultClient(client), now: time.Now}
}

// Name identifies the strategy inside the registry.
func (a *ArxivFetcher) Name() string {
	return "arxiv"
}

// Origin reports the document origin produced by this fetcher.
func (a *ArxivFetcher) Origin() domain.Origin {
	return domain.OriginPreprint
}

// Fetch yields preprints submitted at or after req.Since.
func (a *ArxivFetcher) Fetch(ctx context.Context, req scanner.Request) iter.Seq2[domain.SourceDocument, error] {
	return func(yield func(domain.SourceDocument, error) bool) {
		pageSize := req.PageSize
		if pageSize <= 0 {
			pageSize = defaultArxivPage
		}
		query := req.Option("search_query", defaultArxivQuery)
		seen := map[string]struct{}{}
		emitted := 0

		for start := 0; ; start += pageSize {
			if err := ctx.Err(); err != nil {
				yield(domain.SourceDocument{}, err)
				return
			}

			pageURL, err := buildQueryURL(req.URL, query, start, pageSize)
			if err != nil {
				yield(domain.SourceDocument{}, err)
				return
			}
			body, err := fetchBody(ctx, a.client, pageURL)
			if err != nil {
				yield(domain.SourceDocument{}, err)
				return
			}
			feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
			if err != nil {
				yield(domain.SourceDocument{}, fmt.Errorf("parse atom page: %w", err))
				return
			}

			fetchedAt := a.now().UTC()
			stale := false
			for _, item := range feed.Items {
				if published := itemTime(item); !req.Since.IsZero() && !published.IsZero() && published.Before(req.Since) {
					stale = true
					break
				}
				doc, ok := arxivDocument(item, fetchedAt)
				if !ok {
					continue
				}
				if _, dup := seen[doc.ID]; dup {
					continue
				}
				seen[doc.ID] = struct{}{}
				if !yield(doc, nil) {
					return
				}
				emitted++
				if req.MaxItems > 0 && emitted >= req.MaxItems {
					return
				}
			}

			if stale || len(feed.Items) < pageSize {
				return
			}
		}
	}
}

func arxivDocument(item *gofeed.Item, fetchedAt time.Time) (domain.SourceDocument, bool) {
	id := arxivID(item.GUID)
	if id == "" {
		id = arxivID(item.Link)
	}
	if id == "" {
		return domain.SourceDocument{}, false
	}

	title := collapseSpace(item.Title)
	abstract := truncateRunes(collapseSpace(item.Description), maxAbstractRunes)

	return domain.SourceDocument{
		ID:          fmt.Sprintf(arxivDocumentIDFmt, id),
		Origin:      domain.OriginPreprint,
		URL:         preferredLink(item),
		Title:       title,
		Authors:     joinAuthors(item.Authors),
		PublishedAt: itemTime(item),
		FetchedAt:   fetchedAt,
		RawText:     strings.TrimSpace(title + "\n\n" + abstract),
	}, true
}

func arxivID(ref string) string {
	match := arxivIDExpr.FindStringSubmatch(strings.TrimSpace(ref))
	if match == nil {
		return ""
	}
	return match[1]
}

// preferredLink returns the PDF link, derived from the abstract page when the
// feed does not list one.
func preferredLink(item *gofeed.Item) string {
	for _, link := range item.Links {
		if strings.Contains(link, "/pdf/") {
			return link
		}
	}
	if strings.Contains(item.Link, "/abs/") {
		return strings.Replace(item.Link, "/abs/", "/pdf/", 1)
	}
	return item.Link
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

func joinAuthors(authors []*gofeed.Person) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			names = append(names, strings.TrimSpace(a.Name))
		}
	}
	return strings.Join(names, ", ")
}

func buildQueryURL(base, query string, start, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid api url %s: %w", base, err)
	}

	q := parsed.Query()
	q.Set("search_query", query)
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	q.Set("start", strconv.Itoa(start))
	q.Set("max_results", strconv.Itoa(pageSize))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
