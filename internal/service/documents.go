package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/quizsync-go/internal/db"
	"github.com/raphaelgruber/quizsync-go/internal/history"
	"github.com/raphaelgruber/quizsync-go/internal/models"
	"github.com/raphaelgruber/quizsync-go/internal/parser"
)

// DocumentStore holds the source documents tasks are generated from.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

var (
	_ DocumentStore = (*db.Client)(nil)
	_ DocumentStore = (*MemoryDocuments)(nil)
)

// MemoryDocuments is an in-memory DocumentStore.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

// NewMemoryDocuments creates an empty store.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]models.Document)}
}

func (m *MemoryDocuments) UpsertDocument(_ context.Context, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryDocuments) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", history.ErrNotFound, id)
	}
	return &doc, nil
}

// ListDocuments returns all documents ordered by title.
func (m *MemoryDocuments) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b models.Document) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// LoadDocuments reads every Markdown file below dir into store. Documents
// without a repository in their frontmatter get defaultRepo.
func LoadDocuments(ctx context.Context, store DocumentStore, dir, defaultRepo string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	docs, err := parser.LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if doc.RepositoryID == "" {
			doc.RepositoryID = defaultRepo
		}
		if err := store.UpsertDocument(ctx, doc); err != nil {
			return 0, fmt.Errorf("store document %s: %w", doc.ID, err)
		}
		logger.Debug("document loaded", "document_id", doc.ID, "path", doc.Path, "bytes", len(doc.Content))
	}
	logger.Info("documents loaded", "dir", dir, "count", len(docs))
	return len(docs), nil
}
