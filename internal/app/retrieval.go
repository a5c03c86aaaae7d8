package app

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"kbassist/internal/model"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultTopK         = 6
	defaultSnippetRunes = 240
	embeddingBatchSize  = 10 // DashScope and similar APIs often limit batch size
)

const maxTagRunes = 120

// textChunk is a chunk with the rune range it was cut from.
type textChunk struct {
	Text       string
	Start, End int
}

// chunkText splits text into overlapping chunks by rune count, dropping blank chunks.
func chunkText(text string, size, overlap int) []string {
	spans := splitChunks([]rune(strings.TrimSpace(text)), size, overlap)
	out := make([]string, len(spans))
	for i, c := range spans {
		out[i] = c.Text
	}
	return out
}

func splitChunks(runes []rune, size, overlap int) []textChunk {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []textChunk
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, textChunk{Text: chunk, Start: start, End: end})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

type heading struct {
	offset int
	text   string
}

// markdownHeadings finds ATX headings ("# Title" to "###### Title") with the rune
// offset of their line.
func markdownHeadings(runes []rune) []heading {
	var out []heading
	offset := 0
	for _, line := range strings.Split(string(runes), "\n") {
		if h := headingText(line); h != "" {
			out = append(out, heading{offset: offset, text: h})
		}
		offset += len([]rune(line)) + 1
	}
	return out
}

func headingText(line string) string {
	line = strings.TrimSpace(line)
	hashes := len(line) - len(strings.TrimLeft(line, "#"))
	if hashes == 0 || hashes > 6 || !strings.HasPrefix(line[hashes:], " ") {
		return ""
	}
	return truncateRunes(strings.TrimSpace(strings.TrimRight(line[hashes:], "# ")), maxTagRunes)
}

// chunkTags labels each chunk with the first heading that starts inside it, else
// the heading in force where it starts, else fallback.
func chunkTags(runes []rune, chunks []textChunk, fallback string) []string {
	headings := markdownHeadings(runes)
	fallback = truncateRunes(strings.TrimSpace(fallback), maxTagRunes)
	tags := make([]string, len(chunks))
	h := 0
	current := fallback
	for i, c := range chunks {
		for h < len(headings) && headings[h].offset < c.Start {
			current = headings[h].text
			h++
		}
		tags[i] = current
		if h < len(headings) && headings[h].offset < c.End {
			tags[i] = headings[h].text
		}
	}
	return tags
}

// joinChunks rebuilds document text from ordered chunks, stripping the overlap prefix
// of every chunk after the first.
func joinChunks(chunks []model.Chunk, overlap, limit int) string {
	var b strings.Builder
	written := 0
	for i, c := range chunks {
		runes := []rune(c.Content)
		if i > 0 && overlap > 0 {
			if overlap >= len(runes) {
				continue
			}
			runes = runes[overlap:]
		}
		if limit > 0 && written+len(runes) > limit {
			b.WriteString(string(runes[:limit-written]))
			break
		}
		b.WriteString(string(runes))
		written += len(runes)
	}
	return b.String()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type scoredChunk struct {
	chunk model.Chunk
	score float64
}

// rankChunks returns the k chunks most similar to query, best first.
// Ties keep storage order.
func rankChunks(query []float32, chunks []model.Chunk, k int) []scoredChunk {
	if k <= 0 || len(chunks) == 0 {
		return nil
	}
	scored := make([]scoredChunk, 0, len(chunks))
	for i := range chunks {
		scored = append(scored, scoredChunk{
			chunk: chunks[i],
			score: cosineSimilarity(query, chunks[i].EmbeddingVector()),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// snippet cuts s to n runes, marking truncation with an ellipsis.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		n = defaultSnippetRunes
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func buildSources(ranked []scoredChunk, docs map[uint]*model.Document, snippetRunes int) []model.Source {
	sources := make([]model.Source, 0, len(ranked))
	for _, r := range ranked {
		src := model.Source{
			Ord:        r.chunk.Ord,
			Score:      math.Round(r.score*10000) / 10000,
			Snippet:    snippet(r.chunk.Content, snippetRunes),
			KBID:       r.chunk.KnowledgeBaseID,
			DocumentID: r.chunk.DocumentID,
		}
		if doc := docs[r.chunk.DocumentID]; doc != nil {
			src.Title = doc.Title
			src.Source = doc.StorageURI
		}
		if src.Title == "" {
			src.Title = fmt.Sprintf("Document %d", r.chunk.DocumentID)
		}
		sources = append(sources, src)
	}
	return sources
}

func buildContextBlock(sources []model.Source, ranked []scoredChunk) string {
	if len(ranked) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range ranked {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, sources[i].Title, strings.TrimSpace(r.chunk.Content))
	}
	return strings.TrimSpace(b.String())
}
