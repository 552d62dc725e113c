package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

// KeywordScreen keeps documents mentioning at least one localization phrase.
// Each call builds a throwaway in-memory index over the run's documents.
type KeywordScreen struct {
	keywords []string
}

var _ ports.RelevanceScreen = (*KeywordScreen)(nil)

type indexedDocument struct {
	Title string
	Text  string
}

// NewKeywordScreen builds a screen; blank keywords are ignored and an empty list disables screening.
func NewKeywordScreen(keywords []string) *KeywordScreen {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &KeywordScreen{keywords: cleaned}
}

// Enabled reports whether the screen filters anything.
func (s *KeywordScreen) Enabled() bool {
	return s != nil && len(s.keywords) > 0
}

// Screen returns the matching documents in their original order.
func (s *KeywordScreen) Screen(docs []domain.SourceDocument) ([]domain.SourceDocument, error) {
	if !s.Enabled() || len(docs) == 0 {
		return docs, nil
	}

	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, indexedDocument{Title: doc.Title, Text: doc.RawText}); err != nil {
			return nil, fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	phrases := make([]query.Query, 0, len(s.keywords)*2)
	for _, k := range s.keywords {
		for _, field := range []string{"Title", "Text"} {
			q := bleve.NewMatchPhraseQuery(k)
			q.SetField(field)
			phrases = append(phrases, q)
		}
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(phrases...), len(docs), 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make(map[string]struct{}, len(res.Hits))
	for _, hit := range res.Hits {
		hits[hit.ID] = struct{}{}
	}
	kept := make([]domain.SourceDocument, 0, len(hits))
	for _, doc := range docs {
		if _, ok := hits[doc.ID]; ok {
			kept = append(kept, doc)
		}
	}
	return kept, nil
}

func buildIndexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	text.Store = false
	text.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", text)
	docMapping.AddFieldMappingsAt("Text", text)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
