package model

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// IndexEntry is one chunk vector row in the SQL vector store. The embedding
// is a JSON array of float32.
type IndexEntry struct {
	ID         string `gorm:"size:36;primaryKey" json:"id"`
	TenantID   string `gorm:"size:64;not null;index:idx_index_tenant_doc,priority:1" json:"tenant_id"`
	DocumentID string `gorm:"size:36;not null;index:idx_index_tenant_doc,priority:2" json:"document_id"`
	Ordinal    int    `gorm:"not null" json:"ordinal"`
	Text       string `gorm:"type:text;not null" json:"text"`
	SourceName string `gorm:"size:256;not null" json:"source_name"`
	Embedding  string `gorm:"type:mediumtext" json:"-"`
}

func (IndexEntry) TableName() string {
	return "rag_index_entries"
}

// EmbeddingVector parses the stored embedding.
func (e *IndexEntry) EmbeddingVector() ([]float32, error) {
	if e.Embedding == "" {
		return nil, nil
	}
	var v []float32
	if err := sonic.UnmarshalString(e.Embedding, &v); err != nil {
		return nil, fmt.Errorf("parse embedding of %s failed: %w", e.ID, err)
	}
	return v, nil
}

// SetEmbedding stores vec as JSON.
func (e *IndexEntry) SetEmbedding(vec []float32) error {
	if len(vec) == 0 {
		e.Embedding = "[]"
		return nil
	}
	raw, err := sonic.MarshalString(vec)
	if err != nil {
		return fmt.Errorf("encode embedding of %s failed: %w", e.ID, err)
	}
	e.Embedding = raw
	return nil
}
