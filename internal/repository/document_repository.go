package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docqa/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Save inserts doc, or updates the row with the same id. An update keeps the
// row's owner and creation time.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "object_key", "size_bytes", "chunk_count", "status", "updated_at"}),
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("save document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByIDAndTenant(ctx context.Context, id, tenantID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, status string, chunkCount int) error {
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "chunk_count": chunkCount}).Error
	if err != nil {
		return fmt.Errorf("update document status failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByIDAndTenant(ctx context.Context, id, tenantID string) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&model.Document{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete tenant documents failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
