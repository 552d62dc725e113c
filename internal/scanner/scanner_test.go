package scanner

import (
	"context"
	"iter"
	"reflect"
	"testing"

	"FRBScanner/internal/domain"
)

type stubFetcher struct{ name string }

func (s stubFetcher) Name() string          { return s.name }
func (s stubFetcher) Origin() domain.Origin { return domain.OriginTelegram }
func (s stubFetcher) Fetch(context.Context, Request) iter.Seq2[domain.SourceDocument, error] {
	return func(func(domain.SourceDocument, error) bool) {}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(stubFetcher{name: "atel"}, stubFetcher{name: "arxiv"})

	if _, err := reg.Resolve("atel"); err != nil {
		t.Fatalf("Resolve(atel) returned error: %v", err)
	}
	if _, err := reg.Resolve("ieee"); err == nil {
		t.Fatal("expected error for unregistered fetcher")
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"arxiv", "atel"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"search_query": "cat:astro-ph.HE", "empty": ""}}
	if got := req.Option("search_query", "x"); got != "cat:astro-ph.HE" {
		t.Fatalf("Option returned %q", got)
	}
	if got := req.Option("empty", "fallback"); got != "fallback" {
		t.Fatalf("empty option should fall back, got %q", got)
	}
	if got := (Request{}).Option("missing", "fallback"); got != "fallback" {
		t.Fatalf("nil options should fall back, got %q", got)
	}
}
