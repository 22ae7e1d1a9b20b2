package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is one passage of a document, sized to generate a few tasks from.
type Chunk struct {
	ID          string
	DocumentID  string
	Position    int
	HeadingPath string
	Content     string
}

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// Threshold: documents up to this length stay a single chunk
	Threshold int
	// TargetSize: ideal chunk size when splitting by sentences
	TargetSize int
	// MinSize: smaller sections merge into the previous chunk
	MinSize int
	// MaxSize: larger sections split at paragraphs, then sentences
	MaxSize int
	// Overlap: characters of context carried over from the previous chunk
	Overlap int
}

// DefaultChunkConfig returns defaults sized for question generation prompts.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Threshold:  2000,
		TargetSize: 1200,
		MinSize:    200,
		MaxSize:    1600,
		Overlap:    150,
	}
}

// ChunkMarkdown splits a document into chunks, preferring section boundaries,
// then paragraphs, then sentences. Blank content yields no chunks.
func ChunkMarkdown(doc *MarkdownDoc, config ChunkConfig) []Chunk {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil
	}
	if len(content) <= config.Threshold {
		return []Chunk{{Content: content}}
	}

	var chunks []Chunk
	if len(doc.Sections) > 0 {
		chunks = chunkBySections(doc.Sections, config)
	} else {
		chunks = chunkByParagraphs(content, config)
	}
	return applyOverlap(chunks, config.Overlap)
}

func chunkBySections(sections []Section, config ChunkConfig) []Chunk {
	var chunks []Chunk

	for _, section := range sections {
		content := strings.TrimSpace(section.Content)
		if content == "" {
			continue
		}

		if len(content) > config.MaxSize {
			for _, pc := range chunkByParagraphs(content, config) {
				pc.HeadingPath = section.Path
				chunks = append(chunks, pc)
			}
			continue
		}

		if len(content) < config.MinSize && len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			last.Content += "\n\n" + content
			continue
		}
		chunks = append(chunks, Chunk{Content: content, HeadingPath: section.Path})
	}

	return renumber(chunks)
}

func chunkByParagraphs(content string, config ChunkConfig) []Chunk {
	var chunks []Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{Content: strings.TrimSpace(current.String())})
			current.Reset()
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > config.MaxSize {
			flush()
			for _, s := range chunkBySentences(para, config) {
				chunks = append(chunks, Chunk{Content: s})
			}
			continue
		}

		if current.Len()+len(para) > config.MaxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return renumber(chunks)
}

func chunkBySentences(text string, config ChunkConfig) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len()+len(sentence) > config.TargetSize && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitSentences splits text after '.', '!' or '?' followed by whitespace.
// A period after a capital letter ("J.R.") does not end a sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && i > 1 && unicode.IsUpper(runes[i-1]) {
			continue
		}
		sentences = append(sentences, current.String())
		current.Reset()
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}

// applyOverlap prefixes each chunk with the tail of the previous one. The tail
// starts at a sentence boundary when there is one, else at a word boundary.
func applyOverlap(chunks []Chunk, overlap int) []Chunk {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]Chunk, len(chunks))
	copy(result, chunks)

	for i := 1; i < len(result); i++ {
		if tail := overlapTail(chunks[i-1].Content, overlap); tail != "" {
			result[i].Content = tail + " " + result[i].Content
		}
	}

	return result
}

func overlapTail(prev string, overlap int) string {
	if len(prev) <= overlap {
		return prev
	}

	start := len(prev) - overlap
	for start < len(prev) && !utf8.RuneStart(prev[start]) {
		start++
	}
	tail := prev[start:]

	if idx := sentenceBoundary(tail); idx >= 0 {
		return strings.TrimSpace(tail[idx:])
	}
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return ""
}

// sentenceBoundary returns the index just past the first ". ", "! " or "? " in s, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				return i + 2
			}
		}
	}
	return -1
}

func renumber(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Position = i
	}
	return chunks
}
