package model

import "time"

const (
	DocumentStatusPending = "pending"
	DocumentStatusReady   = "ready"
	DocumentStatusFailed  = "failed"
)

// Document is the metadata record of an ingested file. Its chunks live in the
// vector store.
type Document struct {
	ID         string    `gorm:"size:36;primaryKey" json:"id"`
	TenantID   string    `gorm:"size:64;not null;index" json:"tenant_id"`
	Name       string    `gorm:"size:256;not null" json:"name"`
	ObjectKey  string    `gorm:"size:512" json:"-"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `gorm:"not null;default:0" json:"chunk_count"`
	Status     string    `gorm:"size:16;not null;default:ready" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
