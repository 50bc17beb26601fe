package model

// WebSearchDocumentID marks a context fragment built from web results.
const WebSearchDocumentID = "web-search"

type ContextFragment struct {
	Content    string                 `json:"content"`
	DocumentID string                 `json:"documentId"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (f ContextFragment) IsWeb() bool {
	return f.DocumentID == WebSearchDocumentID
}

type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Source  string `json:"source"`
}
