package sqlstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docqa/internal/model"
	"docqa/internal/rag"
	"docqa/internal/vectorstore/vectorstoretest"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	s := New(newTestDB(t), vectorstoretest.Dimension)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStore(t *testing.T) {
	vectorstoretest.Run(t, func(t *testing.T) vectorstoretest.Store {
		return newTestStore(t)
	})
}

func TestUpsertPersistsRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []rag.IndexEntry{{
		ID: "c1", TenantID: "t1", DocumentID: "d1", Ordinal: 2,
		Vector: []float32{0.5, 0.25, 0}, Text: "hello", SourceName: "a.pdf",
	}}))

	var row model.IndexEntry
	require.NoError(t, s.db.First(&row, "id = ?", "c1").Error)
	assert.Equal(t, 2, row.Ordinal)
	vec, err := row.EmbeddingVector()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0}, vec)
}

func TestCorruptEmbeddingIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.db.Create(&model.IndexEntry{
		ID: "bad", TenantID: "t1", DocumentID: "d1", Text: "x", SourceName: "x", Embedding: "not json",
	}).Error)

	_, err := s.Query(context.Background(), "t1", []float32{1, 0, 0}, 5, rag.Filter{})
	assert.True(t, rag.IsIndexUnavailable(err))
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.Query(context.Background(), "t1", []float32{1, 0, 0}, 5, rag.Filter{})
	assert.True(t, rag.IsIndexUnavailable(err))
	err = s.Upsert(context.Background(), []rag.IndexEntry{{ID: "a", TenantID: "t1", DocumentID: "d", Vector: []float32{1, 0, 0}}})
	assert.True(t, rag.IsIndexUnavailable(err))
	assert.Error(t, s.Ping(context.Background()))
}
