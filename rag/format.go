package rag

import (
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

const (
	// NoDocumentsPlaceholder 检索结果为空时的上下文占位文本
	NoDocumentsPlaceholder = "(No relevant documents found.)"
	documentSeparator      = "\n\n---\n\n"
)

// FormatDocuments renders documents as numbered context blocks for a prompt.
// Page and row are shown one-indexed; page wins when both are present.
func FormatDocuments(docs []types.Document) string {
	if len(docs) == 0 {
		return NoDocumentsPlaceholder
	}
	blocks := make([]string, 0, len(docs))
	for i, d := range docs {
		header := fmt.Sprintf("[Document %d] (Source: %s", i+1, d.Metadata.SourceOrUnknown())
		switch {
		case d.Metadata.Page != nil:
			header += fmt.Sprintf(", page %d", *d.Metadata.Page+1)
		case d.Metadata.Row != nil:
			header += fmt.Sprintf(", row %d", *d.Metadata.Row+1)
		}
		blocks = append(blocks, header+")\n"+d.Content)
	}
	return strings.Join(blocks, documentSeparator)
}

// ExtractCitations projects document metadata to one-indexed citations,
// deduplicated by (source, page, row) in first-seen order.
func ExtractCitations(docs []types.Document) []types.Citation {
	seen := make(map[types.CitationKey]struct{}, len(docs))
	citations := make([]types.Citation, 0, len(docs))
	for _, d := range docs {
		c := CitationFromMetadata(d.Metadata)
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}
		citations = append(citations, c)
	}
	return citations
}

// CitationFromMetadata converts zero-indexed page/row to one-indexed.
func CitationFromMetadata(m types.Metadata) types.Citation {
	c := types.Citation{Source: m.SourceOrUnknown(), Title: m.Title, Type: m.Type}
	if m.Page != nil {
		c.Page = types.IntPtr(*m.Page + 1)
	}
	if m.Row != nil {
		c.Row = types.IntPtr(*m.Row + 1)
	}
	return c
}
