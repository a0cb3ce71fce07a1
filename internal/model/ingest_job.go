package model

// IngestJob is the queued form of an ingestion request. The document record
// already exists with status pending when the job is published.
type IngestJob struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
}
