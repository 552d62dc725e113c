package scanner

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"FRBScanner/internal/domain"
)

// Request carries all parameters required to fetch one configured source.
type Request struct {
	Since    time.Time
	Source   string
	URL      string
	PageSize int
	MaxItems int
	FullText bool
	Options  map[string]string
}

// Option returns a source option or the fallback when unset.
func (r Request) Option(key, fallback string) string {
	if v, ok := r.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Fetcher captures a single feed strategy (ATel RSS, arXiv Atom, etc.).
// Fetch is lazy: upstream pages are requested only as the sequence is consumed,
// and a yielded error ends the sequence.
type Fetcher interface {
	Name() string
	Origin() domain.Origin
	Fetch(ctx context.Context, req Request) iter.Seq2[domain.SourceDocument, error]
}

// Registry keeps a mapping from fetcher names to their implementations.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds a registry holding the given fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: map[string]Fetcher{}}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[string]Fetcher{}
	}
	r.fetchers[f.Name()] = f
}

// Resolve returns a fetcher by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Fetcher, error) {
	if f, ok := r.fetchers[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("fetcher %s is not registered", name)
}

// Names lists registered fetchers in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
