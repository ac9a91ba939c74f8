package core

// Sync service: one driver loop per shard composing client → processor →
// writer → cursor. Fetches fan out across workers_per_shard disjoint
// windows; applies are strictly serialized in ascending block order. A
// shard failing does not stop the others.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

// BatchSink is the writer's surface the driver depends on.
type BatchSink interface {
	Apply(ctx context.Context, batch *BatchedData) error
}

// CursorTracker is the cursor store's surface the driver depends on.
type CursorTracker interface {
	Load(ctx context.Context, shardID uint32) (uint64, bool, error)
	Advance(ctx context.Context, shardID uint32, newBlock uint64) error
}

// SyncOptions configures the driver.
type SyncOptions struct {
	// ShardIDs to drive; empty means every shard reported by GetInfo.
	ShardIDs []uint32
	// BatchSize caps stop-start per fetch window.
	BatchSize uint32
	// WorkersPerShard is the fetch fan-out; each worker owns a disjoint
	// window.
	WorkersPerShard uint32
	// StartBlockHeight overrides the cursor at startup for a bounded
	// backfill.
	StartBlockHeight *uint64
	// StopBlockHeight terminates the shard driver after this height.
	StopBlockHeight *uint64
	// SyncInterval is the poll cadence at tip.
	SyncInterval time.Duration
	// EnableHistorical runs catch-up from the cursor to the tip.
	EnableHistorical bool
	// EnableRealtime keeps polling after catch-up.
	EnableRealtime bool
}

func (o *SyncOptions) normalize() {
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	if o.WorkersPerShard == 0 {
		o.WorkersPerShard = 1
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = time.Second
	}
}

// transientRetryBudget bounds per-window retries before a shard is marked
// Failed.
const transientRetryBudget = 5

// SyncService drives the ingestion pipeline.
type SyncService struct {
	client    HubClient
	processor *Processor
	writer    BatchSink
	cursors   CursorTracker
	opts      SyncOptions
	state     *SyncState
	metrics   *Metrics
	logger    *logrus.Logger

	mu     sync.Mutex
	active bool
	quit   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncService wires the driver. metrics may be nil.
func NewSyncService(client HubClient, writer BatchSink, cursors CursorTracker, opts SyncOptions, metrics *Metrics, lg *logrus.Logger) *SyncService {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	opts.normalize()
	return &SyncService{
		client:    client,
		processor: NewProcessor(lg),
		writer:    writer,
		cursors:   cursors,
		opts:      opts,
		state:     NewSyncState(uuid.NewString()),
		metrics:   metrics,
		logger:    lg,
	}
}

// State exposes the run state for status reporting.
func (s *SyncService) State() *SyncState { return s.state }

// Status returns a snapshot of every driven shard.
func (s *SyncService) Status() map[uint32]ShardSnapshot { return s.state.Snapshot() }

// Start launches one driver goroutine per shard. It is a no-op when the
// service is already running.
func (s *SyncService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.quit = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	shards := s.opts.ShardIDs
	if len(shards) == 0 {
		info, err := s.client.GetInfo(runCtx)
		if err != nil {
			s.markStopped()
			return utils.Wrap(err, "resolve shards")
		}
		for _, si := range info.ShardInfos {
			shards = append(shards, si.ShardID)
		}
	}
	if len(shards) == 0 {
		s.markStopped()
		return fmt.Errorf("no shards to drive")
	}

	s.logger.WithFields(logrus.Fields{
		"run":     s.state.RunID(),
		"shards":  shards,
		"batch":   s.opts.BatchSize,
		"workers": s.opts.WorkersPerShard,
	}).Info("sync started")

	for _, shard := range shards {
		s.wg.Add(1)
		go func(shardID uint32) {
			defer s.wg.Done()
			s.runShard(runCtx, shardID)
		}(shard)
	}
	return nil
}

func (s *SyncService) markStopped() {
	s.mu.Lock()
	s.active = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// Stop signals every shard driver to exit after its current commit. With
// force, in-flight fetches are cancelled as well; the next run may repeat
// work, which hash idempotency absorbs.
func (s *SyncService) Stop(force bool) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.quit)
	if force && s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.WithField("force", force).Info("sync stopping")
}

// Wait blocks until every shard driver has exited.
func (s *SyncService) Wait() {
	s.wg.Wait()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

func (s *SyncService) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return true
	}
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// windowResult is one fetched-and-processed window awaiting in-order apply.
type windowResult struct {
	start   uint64
	stop    uint64
	batches []*BatchedData // one per chunk, ascending block order
	err     error
}

// runShard is the per-shard driver loop.
func (s *SyncService) runShard(ctx context.Context, shardID uint32) {
	shardLabel := fmt.Sprintf("%d", shardID)
	log := s.logger.WithField("shard", shardID)

	lastApplied, haveCursor, err := s.cursors.Load(ctx, shardID)
	if err != nil {
		log.WithError(err).Error("cursor load failed")
		s.failShard(shardID, shardLabel, err)
		return
	}
	var start uint64
	switch {
	case s.opts.StartBlockHeight != nil:
		start = *s.opts.StartBlockHeight
	case haveCursor:
		start = lastApplied + 1
	default:
		start = 0
	}
	s.state.SetCursor(shardID, lastApplied)
	s.state.SetStatus(shardID, StatusCatchingUp)

	retries := 0
	firstRound := true
	for {
		if s.stopping() || ctx.Err() != nil {
			s.state.SetStatus(shardID, StatusPaused)
			return
		}

		info, err := s.client.GetInfo(ctx)
		if err != nil {
			if !s.retryable(err, &retries, shardID, shardLabel, log, "get info") {
				return
			}
			continue
		}
		si, ok := info.Shard(shardID)
		if !ok {
			s.failShard(shardID, shardLabel, utils.Wrapf(ErrShardUnknown, "shard %d", shardID))
			return
		}
		tip := si.MaxHeight

		if firstRound {
			firstRound = false
			if !s.opts.EnableHistorical && s.opts.StartBlockHeight == nil {
				// Realtime-only runs begin at the tip instead of catching up.
				start = tip + 1
			}
		}

		// Exclusive upper bound of the fetchable range.
		upper := tip + 1
		if s.opts.StopBlockHeight != nil && *s.opts.StopBlockHeight+1 < upper {
			upper = *s.opts.StopBlockHeight + 1
		}

		if s.opts.StopBlockHeight != nil && start > *s.opts.StopBlockHeight {
			s.state.SetStatus(shardID, StatusCompleted)
			log.WithField("block", start-1).Info("shard sync completed")
			return
		}
		if start >= upper {
			if !s.opts.EnableRealtime {
				s.state.SetStatus(shardID, StatusCompleted)
				log.Info("caught up; realtime disabled")
				return
			}
			s.state.SetStatus(shardID, StatusRealtime)
			if !s.sleep(ctx, s.opts.SyncInterval) {
				s.state.SetStatus(shardID, StatusPaused)
				return
			}
			continue
		}

		s.state.SetStatus(shardID, StatusCatchingUp)
		applied, err := s.runRound(ctx, shardID, shardLabel, start, upper)
		if err != nil {
			if !s.retryable(err, &retries, shardID, shardLabel, log, "round") {
				return
			}
			// Resume from the gap, never past it.
			if applied > 0 {
				start = applied + 1
			}
			continue
		}
		retries = 0
		if applied >= start {
			start = applied + 1
		}
	}
}

// retryable records err and backs off; it returns false when the shard must
// stop (permanent error or exhausted budget).
func (s *SyncService) retryable(err error, retries *int, shardID uint32, shardLabel string, log *logrus.Entry, what string) bool {
	if s.stopping() {
		s.state.SetStatus(shardID, StatusPaused)
		return false
	}
	s.state.RecordError(shardID, err.Error())
	if IsPermanentRPC(err) || !IsTransientStoreOrRPC(err) || *retries >= transientRetryBudget {
		log.WithError(err).Errorf("%s failed", what)
		s.failShard(shardID, shardLabel, err)
		return false
	}
	*retries++
	delay := time.Duration(1<<uint(*retries)) * 100 * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	log.WithError(err).WithField("retry", *retries).Warnf("%s retrying", what)
	if !s.sleep(context.Background(), delay) {
		s.state.SetStatus(shardID, StatusPaused)
		return false
	}
	return true
}

func (s *SyncService) failShard(shardID uint32, shardLabel string, err error) {
	s.state.RecordError(shardID, err.Error())
	s.state.SetStatus(shardID, StatusFailed)
	s.metrics.recordFailure(shardLabel)
}

// runRound fetches up to workersPerShard windows in parallel and applies
// them strictly in ascending order. It returns the highest block committed.
func (s *SyncService) runRound(ctx context.Context, shardID uint32, shardLabel string, start, upper uint64) (uint64, error) {
	windows := splitWindows(start, upper, uint64(s.opts.BatchSize), s.opts.WorkersPerShard)

	// One slot per window keeps completed fetches bounded: a fast worker
	// parks its result and memory stays within workers × batch × chunk.
	results := make([]chan windowResult, len(windows))
	for i := range results {
		results[i] = make(chan windowResult, 1)
	}
	var fetchWG sync.WaitGroup
	for i, w := range windows {
		fetchWG.Add(1)
		go func(idx int, wstart, wstop uint64) {
			defer fetchWG.Done()
			results[idx] <- s.fetchWindow(ctx, shardID, wstart, wstop)
		}(i, w[0], w[1])
	}
	defer fetchWG.Wait()

	applied := uint64(0)
	for i := range windows {
		res := <-results[i]
		if res.err != nil {
			return applied, res.err
		}
		for _, batch := range res.batches {
			if s.stopping() || ctx.Err() != nil {
				return applied, nil
			}
			blockApplied, err := s.applyChunkBatch(ctx, shardID, shardLabel, batch)
			if err != nil {
				return applied, err
			}
			if blockApplied > applied {
				applied = blockApplied
			}
		}
		if res.stop > 0 && res.stop-1 > applied {
			// Empty window: the range held no chunks, but progress is real.
			applied = res.stop - 1
		}
	}
	return applied, nil
}

// fetchWindow fetches and processes one [start, stop) window. Processing is
// CPU-only; no store access happens here.
func (s *SyncService) fetchWindow(ctx context.Context, shardID uint32, start, stop uint64) windowResult {
	res := windowResult{start: start, stop: stop}
	chunks, err := s.client.GetShardChunks(ctx, shardID, start, &stop)
	if err != nil {
		res.err = err
		return res
	}
	for _, chunk := range chunks {
		res.batches = append(res.batches, s.processor.HandleChunk(shardID, chunk))
	}
	return res
}

// applyChunkBatch commits one chunk's batch and advances the cursor. Blocks
// at or below the committed cursor are re-deliveries; their rows upsert to
// no-ops and the cursor is left alone.
func (s *SyncService) applyChunkBatch(ctx context.Context, shardID uint32, shardLabel string, batch *BatchedData) (uint64, error) {
	began := time.Now()
	if err := s.writer.Apply(ctx, batch); err != nil {
		return 0, err
	}
	s.metrics.observeBatch(shardLabel, batch, time.Since(began))

	block := batch.MaxBlock
	cursor, haveCursor, err := s.cursors.Load(ctx, shardID)
	if err != nil {
		return 0, err
	}
	if !haveCursor || block > cursor {
		if err := s.cursors.Advance(ctx, shardID, block); err != nil {
			return 0, err
		}
		s.state.SetCursor(shardID, block)
		s.metrics.setCursor(shardLabel, block)
	}
	blockCopy := block
	s.state.RecordChunk(shardID, &blockCopy, batch.MessageCount)
	return block, nil
}

// PollOnce fetches and applies a single block; used by `sync test`. The
// cursor is left untouched.
func (s *SyncService) PollOnce(ctx context.Context, shardID uint32, block uint64) (*BatchedData, error) {
	stop := block + 1
	chunks, err := s.client.GetShardChunks(ctx, shardID, block, &stop)
	if err != nil {
		return nil, err
	}
	total := NewBatchedData()
	for _, chunk := range chunks {
		batch := s.processor.HandleChunk(shardID, chunk)
		if err := s.writer.Apply(ctx, batch); err != nil {
			return nil, err
		}
		total.Merge(batch)
	}
	return total, nil
}

// sleep waits for d unless the stop signal or ctx fires first; the return
// is false when the wait was interrupted.
func (s *SyncService) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	quit := s.quit
	s.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// splitWindows carves [start, upper) into at most workers contiguous
// windows of batchSize blocks each.
func splitWindows(start, upper, batchSize uint64, workers uint32) [][2]uint64 {
	if batchSize == 0 {
		batchSize = 1
	}
	var windows [][2]uint64
	for i := uint32(0); i < workers && start < upper; i++ {
		stop := start + batchSize
		if stop > upper {
			stop = upper
		}
		windows = append(windows, [2]uint64{start, stop})
		start = stop
	}
	return windows
}

// IsTransientStoreOrRPC folds the two transient classes for the driver's
// retry decision.
func IsTransientStoreOrRPC(err error) bool {
	return IsTransientRPC(err) || IsTransientStore(err)
}
