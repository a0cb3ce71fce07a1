// Package milvusstore keeps index entries in a Milvus collection keyed by
// chunk id, with tenant and document scoping done by filter expressions.
package milvusstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"docqa/internal/rag"
	"docqa/internal/vectorstore"
)

const (
	fieldID         = "id"
	fieldTenantID   = "tenant_id"
	fieldDocumentID = "document_id"
	fieldOrdinal    = "ordinal"
	fieldText       = "text"
	fieldSourceName = "source_name"
	fieldEmbedding  = "embedding"

	maxTextBytes   = 65535
	maxSourceBytes = 512
	ivfNList       = 128
)

var outputFields = []string{fieldDocumentID, fieldText, fieldSourceName}

type Store struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	log        *zap.Logger
}

func New(client *milvusclient.Client, collection string, dimension int, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, collection: collection, dimension: dimension, log: log.Named("milvusstore")}
}

// EnsureCollection creates, indexes and loads the collection if it does not
// exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("check collection failed: %w", err)}
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("document chunks").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldTenantID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldOrdinal).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextBytes)).
			WithField(entity.NewField().WithName(fieldSourceName).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxSourceBytes)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dimension)))

		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, schema)); err != nil {
			return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("create collection failed: %w", err)}
		}
		idx := index.NewIvfFlatIndex(entity.COSINE, ivfNList)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, fieldEmbedding, idx))
		if err != nil {
			return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("create index failed: %w", err)}
		}
		if err := task.Await(ctx); err != nil {
			return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("wait for index failed: %w", err)}
		}
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("load collection failed: %w", err)}
	}
	if err := loadTask.Await(ctx); err != nil {
		return &rag.IndexUnavailableError{Op: "ensure_collection", Err: fmt.Errorf("wait for collection load failed: %w", err)}
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

	n := len(entries)
	ids := make([]string, n)
	tenants := make([]string, n)
	docs := make([]string, n)
	ordinals := make([]int64, n)
	texts := make([]string, n)
	sources := make([]string, n)
	vectors := make([][]float32, n)
	for i, e := range entries {
		ids[i] = e.ID
		tenants[i] = e.TenantID
		docs[i] = e.DocumentID
		ordinals[i] = int64(e.Ordinal)
		texts[i] = s.storedText(e)
		sources[i] = clip(e.SourceName, maxSourceBytes)
		vectors[i] = e.Vector
	}

	opt := milvusclient.NewColumnBasedInsertOption(s.collection,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldTenantID, tenants),
		column.NewColumnVarChar(fieldDocumentID, docs),
		column.NewColumnInt64(fieldOrdinal, ordinals),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnVarChar(fieldSourceName, sources),
		column.NewColumnFloatVector(fieldEmbedding, s.dimension, vectors),
	)
	if _, err := s.client.Upsert(ctx, opt); err != nil {
		return &rag.IndexUnavailableError{Op: "upsert", Err: fmt.Errorf("upsert into %s failed: %w", s.collection, err)}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, tenantID string, vector []float32, topK int, filter rag.Filter) (rag.Retrieval, error) {
	if err := vectorstore.CheckQuery(tenantID, vector, s.dimension); err != nil {
		return rag.Retrieval{}, err
	}
	if topK <= 0 {
		return rag.Retrieval{}, nil
	}

	opt := milvusclient.NewSearchOption(s.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithFilter(FilterExpr(tenantID, filter.DocumentIDs...)).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClStrong)
	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return rag.Retrieval{}, &rag.IndexUnavailableError{Op: "query", Err: fmt.Errorf("search %s failed: %w", s.collection, err)}
	}
	if len(resultSets) == 0 {
		return rag.Retrieval{}, nil
	}

	rs := resultSets[0]
	results := make([]rag.SearchResult, rs.ResultCount)
	if ids, ok := rs.IDs.(*column.ColumnVarChar); ok {
		for i := 0; i < rs.ResultCount; i++ {
			results[i].ChunkID = ids.Data()[i]
		}
	}
	for i := 0; i < rs.ResultCount; i++ {
		results[i].Score = vectorstore.ClampScore(float64(rs.Scores[i]))
	}
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		for i := 0; i < rs.ResultCount; i++ {
			switch col.Name() {
			case fieldDocumentID:
				results[i].DocumentID = col.Data()[i]
			case fieldText:
				results[i].Text = col.Data()[i]
			case fieldSourceName:
				results[i].SourceName = col.Data()[i]
			}
		}
	}
	return rag.Retrieval{Results: vectorstore.TopK(results, topK)}, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return rag.ErrTenantRequired
	}
	var expr string
	if documentID == "" {
		expr = FilterExpr(tenantID)
	} else {
		expr = FilterExpr(tenantID, documentID)
	}
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return &rag.IndexUnavailableError{Op: "delete", Err: fmt.Errorf("delete from %s failed: %w", s.collection, err)}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("ping milvus failed: %w", err)
	}
	return nil
}

// FilterExpr builds the boolean expression scoping a search or delete to a
// tenant and, optionally, to a set of documents.
func FilterExpr(tenantID string, documentIDs ...string) string {
	expr := fieldTenantID + " == " + strconv.Quote(tenantID)
	if len(documentIDs) == 0 {
		return expr
	}
	quoted := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		quoted[i] = strconv.Quote(id)
	}
	return expr + " && " + fieldDocumentID + " in [" + strings.Join(quoted, ", ") + "]"
}

// storedText fits an entry's text into the VarChar column. Only a single
// sentence longer than the column can be cut, and the stored text then no
// longer matches the embedded one.
func (s *Store) storedText(e rag.IndexEntry) string {
	text := clip(e.Text, maxTextBytes)
	if len(text) < len(e.Text) {
		s.log.Warn("chunk text clipped to column limit",
			zap.String("tenant_id", e.TenantID),
			zap.String("document_id", e.DocumentID),
			zap.Int("ordinal", e.Ordinal),
			zap.Int("text_bytes", len(e.Text)),
			zap.Int("stored_bytes", len(text)))
	}
	return text
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
