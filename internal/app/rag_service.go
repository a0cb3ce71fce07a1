package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/objectstore"
	"docqa/internal/rag"
)

const (
	defaultTopK             = 5
	defaultMaxTokens        = 4000
	defaultMaxQueryLength   = 1000
	defaultEmbedBatchSize   = 16
	defaultEmbedConcurrency = 4
	defaultDocumentName     = "Untitled"
)

// RAGDeps are the collaborators of RAGService. Objects, Publisher and Prompts
// may be nil.
type RAGDeps struct {
	Chunker   *rag.Chunker
	Embedder  Embedder
	Store     VectorStore
	Cache     ResponseCache
	Generator Generator
	Documents DocumentStore
	Objects   ObjectStore
	Publisher JobPublisher
	Prompts   PromptSource
	Metrics   *metrics.RAG
	Logger    *zap.Logger
}

type RAGOptions struct {
	Defaults              rag.AskSettings
	CacheTTL              time.Duration
	MaxQueryLength        int
	MaxSystemPromptLength int
	EmbedBatchSize        int
	EmbedConcurrency      int
	// AskTimeout bounds a coalesced ask. The ask is cancelled earlier when
	// every caller waiting on it has gone.
	AskTimeout time.Duration
}

// RAGService runs ingestion and question answering over a tenant's documents.
type RAGService struct {
	deps     RAGDeps
	opts     RAGOptions
	log      *zap.Logger
	pool     *ants.Pool
	inflight singleflight.Group

	mu      sync.Mutex
	flights map[string]*askFlight
}

// askFlight is the shared work of identical concurrent asks.
type askFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewRAGService(deps RAGDeps, opts RAGOptions) (*RAGService, error) {
	if deps.Chunker == nil || deps.Embedder == nil || deps.Store == nil ||
		deps.Cache == nil || deps.Generator == nil || deps.Documents == nil {
		return nil, errors.New("rag service: missing required dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.Defaults.SystemPrompt) == "" {
		opts.Defaults.SystemPrompt = rag.DefaultSystemPrompt
	}
	if opts.Defaults.TopK <= 0 {
		opts.Defaults.TopK = defaultTopK
	}
	if opts.Defaults.MaxTokens <= 0 {
		opts.Defaults.MaxTokens = defaultMaxTokens
	}
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = defaultMaxQueryLength
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatchSize
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = defaultEmbedConcurrency
	}
	if opts.AskTimeout <= 0 {
		opts.AskTimeout = 2 * time.Minute
	}

	pool, err := ants.NewPool(opts.EmbedConcurrency, ants.WithExpiryDuration(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("create embedding pool failed: %w", err)
	}

	return &RAGService{
		deps: deps,
		opts: opts,
		log:     deps.Logger.Named("rag"),
		pool:    pool,
		flights: make(map[string]*askFlight),
	}, nil
}

// Close releases the embedding worker pool.
func (s *RAGService) Close() {
	s.pool.Release()
}

type IngestInput struct {
	TenantID string
	// DocumentID is assigned when empty. Reusing an id replaces that
	// document's index entries.
	DocumentID string
	Name       string
	Text       string
	// Raw is the uploaded file, kept in object storage when set.
	Raw []byte
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
}

// Ingest chunks, embeds and indexes a document, then records it. Any
// embedding or index write failure aborts the ingest and rolls back what was
// written.
func (s *RAGService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = defaultDocumentName
	}
	docID := strings.TrimSpace(input.DocumentID)
	replacing := docID != ""
	if !replacing {
		docID = uuid.NewString()
	}
	log := s.log.With(zap.String("tenant_id", tenantID), zap.String("document_id", docID), zap.String("op", "ingest"))

	started := time.Now()
	chunks := s.deps.Chunker.Chunk(rag.Document{ID: docID, TenantID: tenantID, Name: name, Text: input.Text})
	s.deps.Metrics.ObserveStage("chunk", started)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	var objectKey string
	if len(input.Raw) > 0 && s.deps.Objects != nil {
		objectKey = objectstore.Key(tenantID, docID, name)
		if err := s.deps.Objects.Put(ctx, objectKey, input.Raw); err != nil {
			log.Error("store raw file failed", zap.Error(err))
			return nil, err
		}
	}
	rollbackObject := func() {
		if objectKey == "" {
			return
		}
		if err := s.deps.Objects.Delete(context.WithoutCancel(ctx), objectKey); err != nil {
			log.Warn("remove raw file after failed ingest failed", zap.Error(err))
		}
	}

	started = time.Now()
	vectors, err := s.embedChunks(ctx, chunks)
	s.deps.Metrics.ObserveStage("embed_chunks", started)
	if err != nil {
		log.Error("embed chunks failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		rollbackObject()
		return nil, err
	}

	entries := make([]rag.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = rag.IndexEntry{
			ID:         c.ID,
			TenantID:   tenantID,
			DocumentID: docID,
			Ordinal:    c.Ordinal,
			Vector:     vectors[i],
			Text:       c.Content,
			SourceName: name,
		}
	}

	if replacing {
		if err := s.deps.Store.DeleteByFilter(ctx, tenantID, docID); err != nil {
			log.Error("clear previous index entries failed", zap.Error(err))
			rollbackObject()
			return nil, err
		}
	}

	started = time.Now()
	err = s.deps.Store.Upsert(ctx, entries)
	s.deps.Metrics.ObserveStage("upsert", started)
	if err != nil {
		log.Error("upsert index entries failed", zap.Int("chunks", len(entries)), zap.Error(err))
		s.dropEntries(ctx, log, tenantID, docID)
		rollbackObject()
		return nil, err
	}

	doc := &model.Document{
		ID:         docID,
		TenantID:   tenantID,
		Name:       name,
		ObjectKey:  objectKey,
		SizeBytes:  int64(len(input.Raw)),
		ChunkCount: len(chunks),
		Status:     model.DocumentStatusReady,
	}
	if doc.SizeBytes == 0 {
		doc.SizeBytes = int64(len(input.Text))
	}
	if err := s.deps.Documents.Save(ctx, doc); err != nil {
		log.Error("record document failed", zap.Error(err))
		s.dropEntries(ctx, log, tenantID, docID)
		rollbackObject()
		return nil, err
	}

	s.invalidate(ctx, tenantID)
	s.deps.Metrics.IngestedChunks(len(chunks))
	log.Info("document ingested", zap.Int("chunks", len(chunks)), zap.Int("text_len", len(input.Text)))

	return &IngestResult{DocumentID: docID, Name: name, ChunkCount: len(chunks), Status: doc.Status}, nil
}

// EnqueueIngest records a pending document and publishes an ingest job for
// the worker. The returned id is final.
func (s *RAGService) EnqueueIngest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if s.deps.Publisher == nil {
		return nil, ErrQueueUnavailable
	}
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, ErrEmptyDocument
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = defaultDocumentName
	}

	doc := &model.Document{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		SizeBytes: int64(len(input.Text)),
		Status:    model.DocumentStatusPending,
	}
	if err := s.deps.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}

	job := model.IngestJob{DocumentID: doc.ID, TenantID: tenantID, Name: name, Text: input.Text}
	if err := s.deps.Publisher.PublishIngest(ctx, job); err != nil {
		s.log.Error("publish ingest job failed",
			zap.String("tenant_id", tenantID), zap.String("document_id", doc.ID), zap.String("op", "enqueue"), zap.Error(err))
		_ = s.deps.Documents.DeleteByIDAndTenant(context.WithoutCancel(ctx), doc.ID, tenantID)
		return nil, err
	}
	return &IngestResult{DocumentID: doc.ID, Name: name, Status: doc.Status}, nil
}

// IngestPending runs a queued job. A job whose document was deleted while
// queued is dropped. On failure the document is marked failed.
func (s *RAGService) IngestPending(ctx context.Context, job model.IngestJob) error {
	doc, err := s.deps.Documents.GetByIDAndTenant(ctx, job.DocumentID, job.TenantID)
	if err != nil {
		return err
	}
	if doc == nil {
		s.log.Info("skip ingest job for deleted document",
			zap.String("tenant_id", job.TenantID), zap.String("document_id", job.DocumentID))
		return nil
	}

	_, err = s.Ingest(ctx, IngestInput{
		TenantID:   job.TenantID,
		DocumentID: job.DocumentID,
		Name:       job.Name,
		Text:       job.Text,
	})
	if err != nil {
		if markErr := s.deps.Documents.UpdateStatus(context.WithoutCancel(ctx), job.DocumentID, model.DocumentStatusFailed, 0); markErr != nil {
			s.log.Warn("mark document failed failed", zap.String("document_id", job.DocumentID), zap.Error(markErr))
		}
		return err
	}
	return nil
}

type AskInput struct {
	TenantID string
	Question string
	// SystemPrompt overrides the tenant's configured prompt when set.
	SystemPrompt string
}

// Ask answers a question from the tenant's documents. Identical asks within
// the cache TTL return the stored answer; concurrent identical asks share one
// retrieval and generation.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*rag.Answer, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	question := strings.TrimSpace(input.Question)
	if tenantID == "" || question == "" {
		return nil, ErrInvalidInput
	}
	if utf8.RuneCountInString(question) > s.opts.MaxQueryLength {
		return nil, ErrQueryTooLong
	}
	if err := rag.ValidateSystemPrompt(strings.TrimSpace(input.SystemPrompt), s.opts.MaxSystemPromptLength); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("tenant_id", tenantID), zap.String("op", "ask"))

	settings := s.settingsFor(ctx, log, tenantID, input.SystemPrompt)

	// Answers are keyed by the tenant's cache epoch so one computed
	// before a delete is never served after it.
	cacheable := true
	epoch, err := s.deps.Cache.Epoch(ctx, tenantID)
	if err != nil {
		log.Warn("answer cache epoch read failed, bypassing cache", zap.Error(err))
		s.deps.Metrics.CacheError("epoch")
		cacheable = false
	}
	key := rag.WithEpoch(rag.Fingerprint(tenantID, question, settings.SystemPrompt), epoch)

	if cacheable {
		started := time.Now()
		cached, hit, err := s.deps.Cache.Get(ctx, key)
		s.deps.Metrics.ObserveStage("cache_get", started)
		if err != nil {
			log.Warn("answer cache read failed, treating as miss", zap.Error(err))
			s.deps.Metrics.CacheError("get")
		}
		if err == nil && hit {
			s.deps.Metrics.Ask(metrics.OutcomeCacheHit)
			answer := cached.Answer
			answer.Sources = slices.Clone(answer.Sources)
			return &answer, nil
		}
	} else {
		key += ":nocache"
	}

	flight := s.joinFlight(key)
	ch := s.inflight.DoChan(key, func() (any, error) {
		defer s.endFlight(key, flight)
		return s.answer(flight.ctx, log, tenantID, question, settings, key, cacheable)
	})

	select {
	case <-ctx.Done():
		s.leaveFlight(key, flight)
		return nil, ctx.Err()
	case res := <-ch:
		s.leaveFlight(key, flight)
		if res.Shared {
			s.deps.Metrics.Coalesced()
		}
		if res.Err != nil {
			s.deps.Metrics.Ask(metrics.OutcomeError)
			return nil, res.Err
		}
		answer := res.Val.(rag.Answer)
		answer.Sources = slices.Clone(answer.Sources)
		return &answer, nil
	}
}

// joinFlight registers a waiter on the shared work for key. The work context
// is detached from any one caller and bounded by AskTimeout.
func (s *RAGService) joinFlight(key string) *askFlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flights[key]; ok {
		f.waiters++
		return f
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AskTimeout)
	f := &askFlight{ctx: ctx, cancel: cancel, waiters: 1}
	s.flights[key] = f
	return f
}

// leaveFlight drops a waiter. The last waiter to leave cancels the work and
// makes the next identical ask start afresh.
func (s *RAGService) leaveFlight(key string, f *askFlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
		s.inflight.Forget(key)
	}
}

func (s *RAGService) endFlight(key string, f *askFlight) {
	s.mu.Lock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.mu.Unlock()
	f.cancel()
}

func (s *RAGService) answer(ctx context.Context, log *zap.Logger, tenantID, question string, settings rag.AskSettings, key string, cacheable bool) (rag.Answer, error) {
	started := time.Now()
	vector, err := s.deps.Embedder.Embed(ctx, question)
	s.deps.Metrics.ObserveStage("embed_query", started)
	if err != nil {
		log.Error("embed question failed", zap.Int("question_len", len(question)), zap.Error(err))
		return rag.Answer{}, err
	}

	started = time.Now()
	retrieval, err := s.deps.Store.Query(ctx, tenantID, vector, settings.TopK, rag.Filter{})
	s.deps.Metrics.ObserveStage("retrieve", started)
	if err != nil {
		if !rag.IsIndexUnavailable(err) {
			log.Error("vector query failed", zap.Error(err))
			return rag.Answer{}, err
		}
		log.Warn("vector index unavailable, answering without context", zap.Error(err))
		s.deps.Metrics.DegradedRead()
		retrieval = rag.Retrieval{}
	}

	if !retrieval.Found() {
		s.deps.Metrics.Ask(metrics.OutcomeFallback)
		return rag.NoContext(), nil
	}

	prompt := rag.BuildPrompt(settings.SystemPrompt, question, retrieval.Results)

	started = time.Now()
	text, err := s.deps.Generator.Complete(ctx, prompt, settings.MaxTokens)
	s.deps.Metrics.ObserveStage("generate", started)
	if err != nil {
		log.Error("generate answer failed", zap.Int("chunks", len(retrieval.Results)), zap.Error(err))
		return rag.Answer{}, err
	}

	answer := rag.NewAnswer(strings.TrimSpace(text), retrieval.Results)

	// Nobody is waiting any more. Leave the cache untouched.
	if err := ctx.Err(); err != nil {
		return rag.Answer{}, err
	}

	if cacheable {
		started = time.Now()
		if err := s.deps.Cache.Set(ctx, key, answer, s.opts.CacheTTL); err != nil {
			log.Warn("answer cache write failed", zap.Error(err))
			s.deps.Metrics.CacheError("set")
		}
		s.deps.Metrics.ObserveStage("cache_set", started)
	}

	s.deps.Metrics.Ask(metrics.OutcomeGenerated)
	log.Info("question answered", zap.Int("chunks", answer.ChunkCount), zap.Int("answer_len", len(answer.Answer)))
	return answer, nil
}

// DeleteDocument removes a document's index entries, raw file and record, in
// that order. A failed index delete leaves the record in place.
func (s *RAGService) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	tenantID = strings.TrimSpace(tenantID)
	documentID = strings.TrimSpace(documentID)
	if tenantID == "" || documentID == "" {
		return ErrInvalidInput
	}
	log := s.log.With(zap.String("tenant_id", tenantID), zap.String("document_id", documentID), zap.String("op", "delete_document"))

	doc, err := s.deps.Documents.GetByIDAndTenant(ctx, documentID, tenantID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.deps.Store.DeleteByFilter(ctx, tenantID, documentID); err != nil {
		log.Error("delete index entries failed", zap.Error(err))
		return err
	}
	if doc.ObjectKey != "" && s.deps.Objects != nil {
		if err := s.deps.Objects.Delete(ctx, doc.ObjectKey); err != nil {
			log.Warn("delete raw file failed", zap.Error(err))
		}
	}
	if err := s.deps.Documents.DeleteByIDAndTenant(ctx, documentID, tenantID); err != nil {
		return err
	}

	s.invalidate(ctx, tenantID)
	log.Info("document deleted")
	return nil
}

// DeleteAllForTenant removes every document the tenant owns and returns how
// many records were deleted.
func (s *RAGService) DeleteAllForTenant(ctx context.Context, tenantID string) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, ErrInvalidInput
	}
	log := s.log.With(zap.String("tenant_id", tenantID), zap.String("op", "delete_all"))

	if err := s.deps.Store.DeleteByFilter(ctx, tenantID, ""); err != nil {
		log.Error("delete tenant index entries failed", zap.Error(err))
		return 0, err
	}
	if s.deps.Objects != nil {
		if err := s.deps.Objects.DeletePrefix(ctx, objectstore.TenantPrefix(tenantID)); err != nil {
			log.Warn("delete tenant raw files failed", zap.Error(err))
		}
	}
	deleted, err := s.deps.Documents.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, tenantID)
	log.Info("tenant documents deleted", zap.Int64("documents", deleted))
	return deleted, nil
}

func (s *RAGService) ListDocuments(ctx context.Context, tenantID string) ([]model.Document, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	return s.deps.Documents.ListByTenant(ctx, tenantID)
}

func (s *RAGService) settingsFor(ctx context.Context, log *zap.Logger, tenantID, override string) rag.AskSettings {
	settings := s.opts.Defaults
	if s.deps.Prompts != nil {
		prompt, err := s.deps.Prompts.SystemPrompt(ctx, tenantID)
		if err != nil {
			log.Warn("load tenant system prompt failed, using default", zap.Error(err))
		} else {
			settings = settings.Merge(rag.AskSettings{SystemPrompt: prompt})
		}
	}
	return settings.Merge(rag.AskSettings{SystemPrompt: override})
}

// embedChunks embeds chunk contents in batches on the worker pool, keeping
// chunk order.
func (s *RAGService) embedChunks(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += s.opts.EmbedBatchSize {
		end := min(start+s.opts.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		wg.Add(1)
		offset := start
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			batch, err := s.deps.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			copy(vectors[offset:], batch)
		})
		if err != nil {
			wg.Done()
			fail(&rag.EmbeddingError{Op: "batch", Err: fmt.Errorf("submit embedding batch failed: %w", err)})
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &rag.EmbeddingError{Op: "batch", Err: err}
	}
	return vectors, nil
}

func (s *RAGService) dropEntries(ctx context.Context, log *zap.Logger, tenantID, documentID string) {
	if err := s.deps.Store.DeleteByFilter(context.WithoutCancel(ctx), tenantID, documentID); err != nil {
		log.Warn("roll back index entries failed", zap.Error(err))
	}
}

func (s *RAGService) invalidate(ctx context.Context, tenantID string) {
	if err := s.deps.Cache.InvalidateTenant(context.WithoutCancel(ctx), tenantID); err != nil {
		s.log.Warn("invalidate cached answers failed", zap.String("tenant_id", tenantID), zap.Error(err))
		s.deps.Metrics.CacheError("invalidate")
	}
}
