package types

import "strings"

// Metadata 描述一个段落的来源。Page 与 Row 在检索阶段为零起始，
// 仅在生成 Citation 时转换为一起始。
type Metadata struct {
	Source string `json:"source,omitempty"`
	Page   *int   `json:"page,omitempty"`
	Row    *int   `json:"row,omitempty"`
	Title  string `json:"title,omitempty"`
	Type   string `json:"type,omitempty"`
}

// SourceOrUnknown returns the source, or "unknown" when none was recorded.
func (m Metadata) SourceOrUnknown() string {
	if strings.TrimSpace(m.Source) == "" {
		return "unknown"
	}
	return m.Source
}

// Document is a passage returned by a similarity index or web search.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Citation is the one-indexed, deduplicated projection of a Document's metadata.
type Citation struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
	Row    *int   `json:"row,omitempty"`
	Title  string `json:"title,omitempty"`
	Type   string `json:"type,omitempty"`
}

// CitationKey is the uniqueness key of a citation: (source, page, row).
type CitationKey struct {
	Source string
	Page   int
	Row    int
}

// Key returns the deduplication key. Absent page/row map to -1.
func (c Citation) Key() CitationKey {
	k := CitationKey{Source: c.Source, Page: -1, Row: -1}
	if c.Page != nil {
		k.Page = *c.Page
	}
	if c.Row != nil {
		k.Row = *c.Row
	}
	return k
}

// SubAnswer is the answer to one sub-question on the decomposition path.
type SubAnswer struct {
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	Sources  []Metadata `json:"sources"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
