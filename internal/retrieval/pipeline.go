// Package retrieval implements the RetrievalPipeline of spec.md §4.1:
// cache probe, optional HyDE expansion, parallel dense+sparse retrieval,
// reciprocal rank fusion, optional rerank and answer generation, and
// cache writeback. Grounded on the teacher's chat_pipline package's
// staged-plugin pipeline, but expressed as a straight-line sequence of
// stage functions rather than an event-bus — every stage here always
// runs in the same fixed order, so the indirection the teacher's plugin
// chain buys (arbitrary activation-event routing) isn't needed.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/wekui/ragcore/internal/bm25"
	"github.com/wekui/ragcore/internal/cache"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/embeddingclient"
	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
	"github.com/wekui/ragcore/internal/rerank"
	"github.com/wekui/ragcore/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// Config tunes the pipeline's default feature values and prompts, the
// RetrievalConfig section of the application configuration.
type Config struct {
	DefaultTopK        int
	DefaultRerankTopK  int
	MinFanoutK         int
	RRFConstant        int
	HyDEPrompt         string
	AnswerPromptSystem string
	AnswerPromptUser   string
	NoMatchAnswer      string
	MergeExcerpts      bool
}

// Pipeline wires together every collaborator the RetrievalPipeline of
// spec.md §4.1 depends on.
type Pipeline struct {
	cache      *cache.Cache
	embedder   embeddingclient.Embedder
	vectors    vectorstore.VectorStore
	sparse     *bm25.Index
	reranker   rerank.Reranker
	chat       llmclient.Chat
	cfg        Config
}

// New builds a Pipeline. cache and sparse may be nil (degraded local-
// only cache, sparse-disabled deployments) — every stage that touches
// them already tolerates a nil collaborator.
func New(c *cache.Cache, embedder embeddingclient.Embedder, vectors vectorstore.VectorStore,
	sparse *bm25.Index, reranker rerank.Reranker, chat llmclient.Chat, cfg Config,
) *Pipeline {
	return &Pipeline{cache: c, embedder: embedder, vectors: vectors, sparse: sparse, reranker: reranker, chat: chat, cfg: cfg}
}

// Run executes the full seven-stage pipeline of spec.md §4.1 and
// returns its Result. history, if non-empty, drives the query-rewrite
// supplement before the cache probe; pass nil for a standalone query.
func (p *Pipeline) Run(ctx context.Context, query core.Query, history []Turn) (*core.Result, error) {
	if query.TopK <= 0 {
		query.TopK = p.cfg.DefaultTopK
	}
	if query.Features.RerankTopK <= 0 {
		query.Features.RerankTopK = p.cfg.DefaultRerankTopK
	}

	question := query.Text
	if len(history) > 0 {
		question = rewriteQuery(ctx, p.chat, question, history)
	}

	// Stage 1: cache probe.
	if query.Features.UseCache && p.cache != nil {
		fpQuery := query
		fpQuery.Text = question
		if result, status, err := p.cache.Get(ctx, fpQuery); err == nil && status == "hit" {
			result.Metadata.Cache = "hit"
			return result, nil
		}
	}

	metadata := core.Metadata{}
	if query.Features.UseCache {
		metadata.Cache = "miss"
	}

	// Stage 2: HyDE expansion.
	denseQueryText := question
	if query.Features.UseHyDE {
		expanded, used, failed := expandHyDE(ctx, p.chat, p.cfg.HyDEPrompt, question)
		denseQueryText = expanded
		switch {
		case used:
			metadata.HyDE = "used"
		case failed:
			metadata.HyDE = "failed"
		}
	}

	// Stage 3: parallel dense + sparse retrieval.
	fanout := query.TopK
	if fanout < p.cfg.MinFanoutK {
		fanout = p.cfg.MinFanoutK
	}

	dense, sparseHits, hybrid, err := p.retrieve(ctx, denseQueryText, question, query, fanout)
	if err != nil {
		return nil, err
	}
	metadata.Hybrid = hybrid

	// Stage 4: reciprocal rank fusion.
	hits := fuse(dense, sparseHits, p.cfg.RRFConstant)

	// Stage 5: rerank (optional).
	if query.Features.UseReranker && len(hits) > 0 {
		hits, metadata.Rerank = p.rerank(ctx, question, hits, query.Features.RerankTopK)
	}

	if p.cfg.MergeExcerpts {
		hits = mergeAdjacent(hits)
	}

	if len(hits) > query.TopK {
		hits = hits[:query.TopK]
	}

	// Stage 6: answer generation.
	answer, answerStatus := p.generateAnswer(ctx, question, hits)
	metadata.Answer = answerStatus

	result := &core.Result{Answer: answer, Hits: hits, Metadata: metadata}

	// Stage 7: cache writeback.
	if query.Features.UseCache && p.cache != nil {
		fpQuery := query
		fpQuery.Text = question
		p.cache.Put(ctx, fpQuery, *result)
	}

	return result, nil
}

// retrieve runs the dense and (if enabled) sparse legs concurrently via
// an errgroup, per spec.md §4.1 step 3's "launch ... concurrently"
// contract; the stage hard-fails only when no leg that ran succeeded
// (both legs failed, or the dense leg failed and was the only one run).
func (p *Pipeline) retrieve(ctx context.Context, denseQueryText, sparseQueryText string, query core.Query, fanout int) ([]vectorstore.Scored, []bm25.Hit, string, error) {
	var dense []vectorstore.Scored
	var sparse []bm25.Hit
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := p.embedder.Embed(gctx, denseQueryText)
		if err != nil {
			denseErr = fmt.Errorf("retrieval: embed query: %w", err)
			return nil
		}
		dense, denseErr = p.vectors.Search(gctx, vec, fanout, query.Sources)
		return nil
	})
	sparseRan := query.Features.UseHybrid && p.sparse != nil
	if sparseRan {
		g.Go(func() error {
			sparse, sparseErr = p.sparse.Search(sparseQueryText, fanout, query.Sources)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case denseErr != nil && (sparseErr != nil || !sparseRan):
		return nil, nil, "", core.New(core.KindRetrievalUnavailable, "no retrieval path succeeded", denseErr)
	case denseErr != nil:
		logger.GetLogger(ctx).Warnf("retrieval: dense leg failed, degrading to sparse only: %v", denseErr)
		return nil, sparse, "sparse_only", nil
	case sparseErr != nil:
		logger.GetLogger(ctx).Warnf("retrieval: sparse leg failed, degrading to dense only: %v", sparseErr)
		return dense, nil, "dense_only", nil
	case sparseRan:
		return dense, sparse, "both", nil
	default:
		return dense, nil, "dense_only", nil
	}
}

// rerank drives the LLM reranker over hits' chunk content and reorders by
// score, degrading silently to fused order on failure per spec.md §4.1
// step 5. rerank.Reranker itself never errors (it falls back internally
// to lexical overlap), so this only ever reports "used".
func (p *Pipeline) rerank(ctx context.Context, question string, hits []core.RankedHit, topK int) ([]core.RankedHit, string) {
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Chunk.Content
	}

	results, err := p.reranker.Rerank(ctx, question, passages)
	if err != nil {
		logger.GetLogger(ctx).Warnf("retrieval: rerank failed, keeping fused order: %v", err)
		return hits, "failed"
	}

	ranked := rerank.SortByScore(results)
	out := make([]core.RankedHit, 0, len(ranked))
	for _, r := range ranked {
		score := r.Score
		hit := hits[r.Index]
		hit.RerankScore = &score
		hit.FinalScore = score
		out = append(out, hit)
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, "used"
}

func (p *Pipeline) generateAnswer(ctx context.Context, question string, hits []core.RankedHit) (string, string) {
	if len(hits) == 0 {
		return p.cfg.NoMatchAnswer, "generated"
	}

	prompt := buildAnswerPrompt(p.cfg.AnswerPromptUser, question, hits)
	resp, err := p.chat.Complete(ctx, []llmclient.Message{
		{Role: "system", Content: p.cfg.AnswerPromptSystem},
		{Role: "user", Content: prompt},
	}, nil, &llmclient.Options{Temperature: 0.2})
	if err != nil {
		logger.GetLogger(ctx).Errorf("retrieval: answer generation failed: %v", err)
		return "", "failed"
	}
	return resp.Content, "generated"
}

func buildAnswerPrompt(template, question string, hits []core.RankedHit) string {
	ordered := append([]core.RankedHit(nil), hits...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FinalScore > ordered[j].FinalScore })

	prompt := template + "\n\nQuestion: " + question + "\n\nSources:\n"
	for i, h := range ordered {
		excerpt := h.Excerpt
		if excerpt == "" {
			excerpt = h.Chunk.Content
		}
		prompt += fmt.Sprintf("[%d] (%s) %s\n", i+1, h.Chunk.Source, excerpt)
	}
	return prompt
}
