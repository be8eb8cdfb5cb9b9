package embeddingclient

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool fans batch-embed requests out across a bounded goroutine pool,
// grounded on the teacher's internal/models/embedding/batch.go.
type Pool struct {
	pool      *ants.Pool
	batchSize int
}

// NewPool wraps an ants.Pool for batched embedding work.
func NewPool(pool *ants.Pool, batchSize int) *Pool {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Pool{pool: pool, batchSize: batchSize}
}

type batchItem struct {
	text   string
	vector []float32
}

// run splits texts into batchSize-sized groups and submits each to the
// pool, calling embed once per group; the first error wins.
func (p *Pool) run(ctx context.Context, texts []string, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	items := make([]*batchItem, len(texts))
	for i, t := range texts {
		items[i] = &batchItem{text: t}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	chunk := func(group []*batchItem) func() {
		return func() {
			defer wg.Done()
			mu.Lock()
			if firstErr != nil {
				mu.Unlock()
				return
			}
			mu.Unlock()

			in := make([]string, len(group))
			for i, it := range group {
				in[i] = it.text
			}
			vectors, err := embed(ctx, in)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			for i, it := range group {
				it.vector = vectors[i]
			}
			mu.Unlock()
		}
	}

	for start := 0; start < len(items); start += p.batchSize {
		end := min(start+p.batchSize, len(items))
		wg.Add(1)
		if err := p.pool.Submit(chunk(items[start:end])); err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	out := make([][]float32, len(items))
	for i, it := range items {
		out[i] = it.vector
	}
	return out, nil
}
