package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/wekui/ragcore/internal/common"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// chunkRow is the GORM model backing pgvector storage, grounded on the
// teacher's postgres.pgVector.
type chunkRow struct {
	ID        string              `gorm:"column:id;primarykey"`
	Source    string              `gorm:"column:source;not null"`
	Content   string              `gorm:"column:content;not null"`
	Dimension int                 `gorm:"column:dimension;not null"`
	Embedding pgvector.HalfVector `gorm:"column:embedding;not null"`
	CreatedAt time.Time           `gorm:"column:created_at"`
}

type chunkRowWithScore struct {
	chunkRow
	Score float64 `gorm:"column:score"`
}

func (chunkRow) TableName() string         { return "chunks" }
func (chunkRowWithScore) TableName() string { return "chunks" }

// PGVectorStore implements VectorStore atop Postgres + pgvector.
type PGVectorStore struct {
	db *gorm.DB
}

// NewPGVectorStore wraps an already-connected *gorm.DB.
func NewPGVectorStore(db *gorm.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

func (s *PGVectorStore) Search(ctx context.Context, query []float32, topK int, sources []string) ([]Scored, error) {
	dimension := len(query)
	vec := pgvector.NewHalfVector(query)

	conds := []clause.Expression{
		clause.Expr{SQL: "dimension = ?", Vars: []interface{}{dimension}},
	}
	if len(sources) > 0 {
		conds = append(conds, clause.IN{Column: "source", Values: common.ToInterfaceSlice(sources)})
	}
	conds = append(conds, clause.OrderBy{Expression: clause.Expr{
		SQL:  fmt.Sprintf("embedding::halfvec(%d) <=> ?::halfvec", dimension),
		Vars: []interface{}{vec},
	}})

	var rows []chunkRowWithScore
	err := s.db.WithContext(ctx).Clauses(conds...).
		Select(fmt.Sprintf(
			"id, source, content, dimension, embedding, created_at, "+
				"(1 - (embedding::halfvec(%d) <=> ?::halfvec)) as score", dimension), vec).
		Limit(topK).
		Find(&rows).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger(ctx).Errorf("vectorstore: search failed: %v", err)
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	out := make([]Scored, len(rows))
	for i, r := range rows {
		out[i] = Scored{
			Chunk: core.Chunk{
				ID:        r.ID,
				Source:    r.Source,
				Content:   r.Content,
				CreatedAt: r.CreatedAt,
			},
			Score: r.Score,
		}
	}
	return out, nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, chunk core.Chunk) error {
	row := chunkRow{
		ID:        chunk.ID,
		Source:    chunk.Source,
		Content:   chunk.Content,
		Dimension: len(chunk.Embedding),
		Embedding: pgvector.NewHalfVector(chunk.Embedding),
		CreatedAt: chunk.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

func (s *PGVectorStore) DeleteBySource(ctx context.Context, source string) error {
	if err := s.db.WithContext(ctx).Where("source = ?", source).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("vectorstore: delete by source: %w", err)
	}
	return nil
}

// ListAllChunks feeds BM25's Initialize/Refresh, grounded on the
// teacher's watermark-based incremental scan pattern.
func (s *PGVectorStore) ListAllChunks(ctx context.Context, sinceWatermark time.Time) ([]core.Chunk, error) {
	q := s.db.WithContext(ctx).Model(&chunkRow{}).Order("created_at asc")
	if !sinceWatermark.IsZero() {
		q = q.Where("created_at > ?", sinceWatermark)
	}

	var rows []chunkRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("vectorstore: list all chunks: %w", err)
	}

	out := make([]core.Chunk, len(rows))
	for i, r := range rows {
		out[i] = core.Chunk{ID: r.ID, Source: r.Source, Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return out, nil
}
