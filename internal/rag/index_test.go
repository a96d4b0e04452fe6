package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchReturnsMatchingDocuments(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Add(Document{
		Title:     "Оформление загранпаспорта",
		Content:   "Загранпаспорт оформляется через Госуслуги или МФЦ.",
		SourceURL: "https://example.org/zagran",
	}))
	require.NoError(t, idx.Add(Document{
		Title:   "Запись в детский сад",
		Content: "Заявление подаётся через портал Госуслуг.",
	}))

	docs, err := idx.Search(context.Background(), "загранпаспорта", 3)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "Оформление загранпаспорта", docs[0].Title)
	assert.Equal(t, "https://example.org/zagran", docs[0].SourceURL)
	assert.Greater(t, docs[0].Score, 0.0)
}

func TestSearchHonorsTopK(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Add(Document{Title: "МФЦ", Content: "МФЦ принимает документы"}))
	}

	docs, err := idx.Search(context.Background(), "МФЦ", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSearchNoMatch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Add(Document{Title: "Школы", Content: "Запись в первый класс"}))

	docs, err := idx.Search(context.Background(), "qwertyzzz", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSeedDefault(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, SeedDefault(idx))

	docs, err := idx.Search(context.Background(), "загранпаспорт", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestLoadCorpusSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := `{"title": "Первая", "content": "регистрация по месту жительства"}
not json at all

{"title": "Вторая", "content": "замена паспорта"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	idx := newTestIndex(t)
	n, err := idx.LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := idx.Search(context.Background(), "регистрация", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestLoadCorpusMissingFile(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.LoadCorpus(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}
