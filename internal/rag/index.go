package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	logx "github.com/gorodbot/server/pkg/logger"
)

// Document is one knowledge-base chunk about a city procedure or service.
type Document struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	SourceURL string  `json:"source_url,omitempty"`
	Score     float64 `json:"-"`
}

// Searcher retrieves knowledge-base chunks for a free-form question.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
}

// Index is a Bleve-backed Searcher over the city knowledge base.
type Index struct {
	idx bleve.Index
}

// NewMemoryIndex builds an in-memory index, for tests and the CLI.
func NewMemoryIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(documentMapping())
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Open opens the index at path, creating it when absent.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, documentMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func documentMapping() mapping.IndexMapping {
	// Cyrillic content tokenizes fine with the standard analyzer; a
	// language-specific stemmer is not required for short KB chunks.
	return bleve.NewIndexMapping()
}

// Add indexes one document under a fresh id.
func (i *Index) Add(doc Document) error {
	if err := i.idx.Index(uuid.NewString(), doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

// LoadCorpus ingests a JSON-lines corpus file, one Document per line.
func (i *Index) LoadCorpus(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(line, &doc); err != nil {
			logx.Warn().Err(err).Int("line", count+1).Msg("skipping malformed corpus line")
			continue
		}
		if err := i.Add(doc); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read corpus: %w", err)
	}
	return count, nil
}

// Search runs a match query and returns the topK chunks by score.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 3
	}
	match := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(match, topK, 0, false)
	req.Fields = []string{"title", "content", "source_url"}

	result, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	docs := make([]Document, 0, len(result.Hits))
	for _, hit := range result.Hits {
		doc := Document{Score: hit.Score}
		if v, ok := hit.Fields["title"].(string); ok {
			doc.Title = v
		}
		if v, ok := hit.Fields["content"].(string); ok {
			doc.Content = v
		}
		if v, ok := hit.Fields["source_url"].(string); ok {
			doc.SourceURL = v
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close releases the underlying index.
func (i *Index) Close() error {
	return i.idx.Close()
}

var _ Searcher = (*Index)(nil)
