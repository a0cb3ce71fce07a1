// Package sqlstore keeps index entries in a relational table through gorm and
// ranks them in process with exact cosine similarity. It suits corpora small
// enough to scan per tenant.
package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docqa/internal/model"
	"docqa/internal/rag"
	"docqa/internal/vectorstore"
)

const upsertBatchSize = 100

type Store struct {
	db        *gorm.DB
	dimension int
}

func New(db *gorm.DB, dimension int) *Store {
	return &Store{db: db, dimension: dimension}
}

// Migrate creates or updates the index table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.IndexEntry{}); err != nil {
		return fmt.Errorf("migrate index entries failed: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []rag.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := vectorstore.CheckEntries(entries, s.dimension); err != nil {
		return err
	}

	rows := make([]model.IndexEntry, len(entries))
	for i, e := range entries {
		rows[i] = model.IndexEntry{
			ID:         e.ID,
			TenantID:   e.TenantID,
			DocumentID: e.DocumentID,
			Ordinal:    e.Ordinal,
			Text:       e.Text,
			SourceName: e.SourceName,
		}
		if err := rows[i].SetEmbedding(e.Vector); err != nil {
			return err
		}
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return &rag.IndexUnavailableError{Op: "upsert", Err: fmt.Errorf("upsert index entries failed: %w", err)}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, tenantID string, vector []float32, topK int, filter rag.Filter) (rag.Retrieval, error) {
	if err := vectorstore.CheckQuery(tenantID, vector, s.dimension); err != nil {
		return rag.Retrieval{}, err
	}

	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if len(filter.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}
	var rows []model.IndexEntry
	if err := q.Find(&rows).Error; err != nil {
		return rag.Retrieval{}, &rag.IndexUnavailableError{Op: "query", Err: fmt.Errorf("list index entries failed: %w", err)}
	}

	scored := make([]rag.SearchResult, 0, len(rows))
	for i := range rows {
		vec, err := rows[i].EmbeddingVector()
		if err != nil {
			return rag.Retrieval{}, &rag.IndexUnavailableError{Op: "query", Err: err}
		}
		scored = append(scored, rag.SearchResult{
			ChunkID:    rows[i].ID,
			DocumentID: rows[i].DocumentID,
			Text:       rows[i].Text,
			SourceName: rows[i].SourceName,
			Score:      vectorstore.Cosine(vector, vec),
		})
	}
	return rag.Retrieval{Results: vectorstore.TopK(scored, topK)}, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return rag.ErrTenantRequired
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if documentID != "" {
		q = q.Where("document_id = ?", documentID)
	}
	if err := q.Delete(&model.IndexEntry{}).Error; err != nil {
		return &rag.IndexUnavailableError{Op: "delete", Err: fmt.Errorf("delete index entries failed: %w", err)}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
