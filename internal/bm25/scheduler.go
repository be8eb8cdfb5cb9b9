package bm25

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/wekui/ragcore/internal/logger"
)

// TypeRefresh and TypeRebuildSweep are the asynq task types driving the
// index's two periodic maintenance jobs, grounded on the teacher's
// types.TypeChunkExtract task-type constant pattern.
const (
	TypeRefresh      = "bm25:refresh"
	TypeRebuildSweep = "bm25:rebuild_sweep"
)

// RefreshHandler builds the asynq handler for TypeRefresh: it runs
// Refresh, then re-enqueues itself after every, since asynq has no
// first-class recurring task short of its separate scheduler binary.
func (idx *Index) RefreshHandler(client *asynq.Client, every time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := idx.Refresh(ctx); err != nil {
			logger.GetLogger(ctx).Warnf("bm25: scheduled refresh failed: %v", err)
		}
		if err := enqueueIn(client, TypeRefresh, every); err != nil {
			logger.GetLogger(ctx).Errorf("bm25: failed to reschedule refresh: %v", err)
		}
		return nil
	}
}

// RebuildSweepHandler builds the asynq handler for TypeRebuildSweep,
// the periodic tombstone sweep of SPEC_FULL.md's lazy-deletion decision.
func (idx *Index) RebuildSweepHandler(client *asynq.Client, every time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := idx.RebuildSweep(ctx); err != nil {
			logger.GetLogger(ctx).Warnf("bm25: scheduled rebuild sweep failed: %v", err)
		}
		if err := enqueueIn(client, TypeRebuildSweep, every); err != nil {
			logger.GetLogger(ctx).Errorf("bm25: failed to reschedule rebuild sweep: %v", err)
		}
		return nil
	}
}

// EnqueueInitial kicks off the first round of each periodic job; every
// handler re-enqueues itself from then on. Grounded on the teacher's
// NewChunkExtractTask enqueue-and-log shape.
func EnqueueInitial(ctx context.Context, client *asynq.Client, refreshEvery, sweepEvery time.Duration) error {
	if err := enqueueIn(client, TypeRefresh, refreshEvery); err != nil {
		return fmt.Errorf("bm25: schedule refresh: %w", err)
	}
	if err := enqueueIn(client, TypeRebuildSweep, sweepEvery); err != nil {
		return fmt.Errorf("bm25: schedule rebuild sweep: %w", err)
	}
	logger.GetLogger(ctx).Infof("bm25: scheduled refresh every %s, rebuild sweep every %s", refreshEvery, sweepEvery)
	return nil
}

func enqueueIn(client *asynq.Client, taskType string, delay time.Duration) error {
	payload, err := json.Marshal(struct{}{})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, payload, asynq.MaxRetry(1), asynq.Queue("low"))
	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	return err
}
