package model

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID                  string                 `json:"id"`
	Filename            string                 `json:"filename"`
	OriginalName        string                 `json:"originalName"`
	MimeType            string                 `json:"mimeType"`
	Size                int64                  `json:"size"`
	Content             string                 `json:"content,omitempty"`
	Metadata            map[string]interface{} `json:"metadata"`
	Status              DocumentStatus         `json:"status"`
	UploadedAt          int64                  `json:"uploadedAt"`
	ProcessedAt         int64                  `json:"processedAt,omitempty"`
	// ProcessingStartedAt identifies the pipeline run that owns a processing document.
	ProcessingStartedAt int64                  `json:"processingStartedAt,omitempty"`
}
