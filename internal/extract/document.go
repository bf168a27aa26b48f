package extract

import (
	"encoding/json"
	"fmt"
)

// StructuredDoc is the validated view of the extractor's .json artifact.
// The raw bytes are kept alongside it so the response can pass the document
// through unmodified; this type exists so nothing downstream has to poke at
// untyped maps.
type StructuredDoc struct {
	Metadata   Metadata    `json:"metadata"`
	Content    Content     `json:"content"`
	Index      []IndexItem `json:"index"`
	Statistics *Statistics `json:"statistics,omitempty"`
}

type Metadata struct {
	OriginalFilename    string `json:"original_filename"`
	ExtractionTimestamp string `json:"extraction_timestamp"`
	ExtractionMethod    string `json:"extraction_method"`
	RawTextLength       int    `json:"raw_text_length"`
	CleanedTextLength   int    `json:"cleaned_text_length"`
	HasIndex            bool   `json:"has_index"`
}

type Content struct {
	FullText string `json:"full_text"`
}

// IndexItem is one table-of-contents entry recovered from the document.
type IndexItem struct {
	Index      int    `json:"index"`
	Title      string `json:"title"`
	PageNumber string `json:"page_number"`
}

type Statistics struct {
	TotalIndexItems int `json:"total_index_items"`
	TotalCharacters int `json:"total_characters"`
	TotalWords      int `json:"total_words"`
	TotalLines      int `json:"total_lines"`
	Paragraphs      int `json:"paragraphs"`
}

// DecodeStructured parses the .json artifact and checks the minimum the
// pipeline relies on: a metadata object must be present. Everything else in
// the document is extractor-owned and passed through as-is.
func DecodeStructured(raw []byte) (*StructuredDoc, error) {
	var probe struct {
		Metadata *json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode structured artifact: %w", err)
	}
	if probe.Metadata == nil {
		return nil, fmt.Errorf("structured artifact has no metadata object")
	}

	var doc StructuredDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode structured artifact: %w", err)
	}
	return &doc, nil
}
