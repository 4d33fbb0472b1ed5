package fixtures

import (
	"fmt"

	"github.com/BaSui01/ragflow/types"
)

// PDFPassage 带页码的段落（页码零起始）
func PDFPassage(source string, page int, content string) types.Document {
	return types.Document{Content: content, Metadata: types.Metadata{Source: source, Page: types.IntPtr(page)}}
}

// CSVRow 带行号的段落（行号零起始）
func CSVRow(source string, row int, content string) types.Document {
	return types.Document{Content: content, Metadata: types.Metadata{Source: source, Row: types.IntPtr(row)}}
}

// Passages 生成 n 条内容互不相同的段落
func Passages(source string, n int) []types.Document {
	docs := make([]types.Document, n)
	for i := range docs {
		docs[i] = PDFPassage(source, i, fmt.Sprintf("%s passage %d about retrieval augmented generation", source, i))
	}
	return docs
}
