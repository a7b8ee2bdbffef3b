package engine

import (
	"encoding/json"
	"strings"

	"github.com/f8ai/pubpipe/internal/article"
)

// Chunking parameters: sliding word windows sized for embedding, with enough
// overlap that a sentence split across a boundary still appears whole in one
// chunk. Fragments under minChunkLen carry no retrievable signal.
const (
	chunkWords   = 1000
	overlapWords = 200
	minChunkLen  = 50
)

// ragChunk is one indexable slice of an article's text.
type ragChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ragDocument is the stage artifact written by the indexing stage: the
// article's accumulated text split into overlapping chunks, ready for an
// embedding consumer.
type ragDocument struct {
	PMID   string     `json:"pmid"`
	Title  string     `json:"title,omitempty"`
	Source string     `json:"source"`
	Chunks []ragChunk `json:"chunks"`
}

func buildRagDocument(a *article.Article, abstract, body string) *ragDocument {
	doc := &ragDocument{PMID: a.PMID, Source: "abstract"}
	if a.Metadata != nil {
		doc.Title = a.Metadata.Title
	}
	text := abstract
	if body != "" {
		text = abstract + "\n\n" + body
		doc.Source = "fulltext"
	}
	for i, c := range chunkText(text) {
		doc.Chunks = append(doc.Chunks, ragChunk{Index: i, Text: c})
	}
	return doc
}

func (d *ragDocument) marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// chunkText splits text into windows of chunkWords words advancing by
// chunkWords-overlapWords, dropping fragments shorter than minChunkLen.
func chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := chunkWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if len(chunk) >= minChunkLen {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}
	return chunks
}
