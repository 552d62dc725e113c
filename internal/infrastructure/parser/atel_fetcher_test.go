package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/scanner"
)

func newATelServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("read") {
		case "16501":
			_, _ = w.Write([]byte(`<html><body><nav>Menu</nav>
				<div id="telegram"><p>We report the localization of FRB 20251107A
				to RA 10h00m00s, Dec -09d00m00s.</p></div></body></html>`))
			return
		case "16502":
			http.Error(w, "gone", http.StatusGone)
			return
		}
		rss := fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>The Astronomer's Telegram</title>
  <link>%[1]s</link>
  <description>ATel</description>
  <item>
    <title>ATel #16501: Arcsecond localization of FRB 20251107A</title>
    <link>%[1]s/?read=16501</link>
    <description>&lt;p&gt;CHIME/FRB reports a bright burst.&lt;/p&gt;</description>
    <pubDate>Sat, 08 Nov 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>ATel #16502: Host galaxy redshift</title>
    <link>%[1]s/?read=16502</link>
    <description>Spectroscopy of the fast radio burst host.</description>
    <pubDate>Fri, 07 Nov 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>ATel #16503: Optical flare from a blazar</title>
    <link>%[1]s/?read=16503</link>
    <description>No radio bursts here.</description>
    <pubDate>Fri, 07 Nov 2025 09:00:00 GMT</pubDate>
  </item>
  <item>
    <title>ATel #16100: Old FRB follow-up</title>
    <link>%[1]s/?read=16100</link>
    <description>FRB follow-up.</description>
    <pubDate>Mon, 01 Sep 2025 10:00:00 GMT</pubDate>
  </item>
</channel></rss>`, server.URL)
		_, _ = w.Write([]byte(rss))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestATelFetcherKeepsRecentFRBTelegrams(t *testing.T) {
	t.Parallel()

	server := newATelServer(t)
	fetcher := NewATelFetcher(server.Client(), nil)
	req := scanner.Request{
		Since: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
		URL:   server.URL + "/?rss",
	}

	var docs []domain.SourceDocument
	for doc, err := range fetcher.Fetch(context.Background(), req) {
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		docs = append(docs, doc)
	}

	if len(docs) != 2 {
		t.Fatalf("expected 2 FRB telegrams, got %d", len(docs))
	}
	if docs[0].ID != "ATel#16501" || docs[1].ID != "ATel#16502" {
		t.Fatalf("unexpected ids: %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[0].Origin != domain.OriginTelegram {
		t.Fatalf("unexpected origin: %s", docs[0].Origin)
	}
	if strings.Contains(docs[0].RawText, "<p>") {
		t.Fatalf("html not stripped: %q", docs[0].RawText)
	}
	if !strings.Contains(docs[0].RawText, "CHIME/FRB reports a bright burst.") {
		t.Fatalf("summary missing: %q", docs[0].RawText)
	}
}

func TestATelFetcherFullTextFallsBackToSummary(t *testing.T) {
	t.Parallel()

	server := newATelServer(t)
	fetcher := NewATelFetcher(server.Client(), nil)
	req := scanner.Request{
		Since:    time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
		URL:      server.URL + "/?rss",
		FullText: true,
	}

	var docs []domain.SourceDocument
	for doc, err := range fetcher.Fetch(context.Background(), req) {
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if !strings.Contains(docs[0].RawText, "RA 10h00m00s") || strings.Contains(docs[0].RawText, "Menu") {
		t.Fatalf("page body not used: %q", docs[0].RawText)
	}
	if !strings.Contains(docs[1].RawText, "Spectroscopy of the fast radio burst host.") {
		t.Fatalf("expected summary fallback, got %q", docs[1].RawText)
	}
}

func TestHTMLText(t *testing.T) {
	t.Parallel()

	got := htmlText("<p>FRB  20230101A</p>\n<script>alert(1)</script><b>localized</b>")
	if got != "FRB 20230101A localized" {
		t.Fatalf("htmlText = %q", got)
	}
	if got := htmlText("plain   text"); got != "plain text" {
		t.Fatalf("htmlText plain = %q", got)
	}
}
