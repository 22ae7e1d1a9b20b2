package parser

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/quizsync-go/internal/models"
)

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a stable document ID from a file path.
func Slug(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(base), "-"), "-")
}

// NewDocument builds a document from Markdown source. Frontmatter keys id,
// title and repository override the derived values.
func NewDocument(path, content string) (models.Document, error) {
	md, err := ParseMarkdown(content)
	if err != nil {
		return models.Document{}, fmt.Errorf("parse %s: %w", path, err)
	}

	doc := models.Document{
		ID:           md.FrontmatterString("id"),
		Title:        md.Title,
		Path:         path,
		Content:      md.Content,
		RepositoryID: md.FrontmatterString("repository"),
	}
	if doc.ID == "" {
		doc.ID = Slug(path)
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}
	return doc, nil
}

// LoadDir reads every Markdown file below dir as a document, sorted by path.
func LoadDir(dir string) ([]models.Document, error) {
	var docs []models.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		doc, err := NewDocument(rel, string(data))
		if err != nil {
			return err
		}
		if info, err := d.Info(); err == nil {
			doc.CreatedAt = models.At(info.ModTime().UTC().Truncate(time.Second))
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load documents from %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// DocumentChunks chunks a document and stamps each chunk with its identity.
func DocumentChunks(doc models.Document, config ChunkConfig) []Chunk {
	md, _ := ParseMarkdown(doc.Content)
	chunks := ChunkMarkdown(md, config)
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].ID = fmt.Sprintf("%s#%d", doc.ID, chunks[i].Position)
	}
	return chunks
}

// Spread picks up to n chunks, taking them round-robin across documents so
// every document contributes before any contributes twice.
func Spread(perDocument [][]Chunk, n int) []Chunk {
	var out []Chunk
	for round := 0; len(out) < n; round++ {
		added := false
		for _, chunks := range perDocument {
			if round < len(chunks) && len(out) < n {
				out = append(out, chunks[round])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return out
}
