// Package document loads the static reference document and builds the
// similarity-searchable embedding index used to ground responses.
//
// The index is built once at startup and is read-only afterwards, so it is
// safe for unsynchronized concurrent reads.
package document

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultChunkWordBudget is the maximum number of words per chunk.
const DefaultChunkWordBudget = 500

// LoadReference reads the reference document at path. Files ending in .pdf go
// through plain-text extraction; everything else is read as raw text.
func LoadReference(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("reference document path not set")
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return loadPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read reference document: %w", err)
	}
	slog.Debug("LoadReference: text document loaded", "path", path, "bytes", len(data))
	return string(data), nil
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF document: %w", err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	slog.Debug("LoadReference: PDF document extracted", "path", path, "bytes", buf.Len())
	return buf.String(), nil
}

// ChunkWords splits text into chunks of at most budget whitespace-separated
// words, by greedy accumulation. A chunk may split mid-sentence; the final
// partial chunk is kept.
func ChunkWords(text string, budget int) []string {
	if budget <= 0 {
		budget = DefaultChunkWordBudget
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(words)+budget-1)/budget)
	for start := 0; start < len(words); start += budget {
		end := start + budget
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
