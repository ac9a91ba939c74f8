package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

//---------------------------------------------------------------------
// Fakes
//---------------------------------------------------------------------

type fakeHub struct {
	mu       sync.Mutex
	tips     map[uint32]uint64
	chunks   map[uint32]map[uint64]*ShardChunk
	delays   map[uint64]time.Duration // keyed by window start block
	failWith map[uint32]error
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		tips:     make(map[uint32]uint64),
		chunks:   make(map[uint32]map[uint64]*ShardChunk),
		delays:   make(map[uint64]time.Duration),
		failWith: make(map[uint32]error),
	}
}

func (h *fakeHub) addChunk(shardID uint32, chunk *ShardChunk) {
	h.mu.Lock()
	defer h.mu.Unlock()
	block, _ := chunk.BlockNumber()
	if _, ok := h.chunks[shardID]; !ok {
		h.chunks[shardID] = make(map[uint64]*ShardChunk)
	}
	h.chunks[shardID][block] = chunk
	if cur, ok := h.tips[shardID]; !ok || block > cur {
		h.tips[shardID] = block
	}
}

func (h *fakeHub) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resp := &GetInfoResponse{Version: "fake"}
	for shard, tip := range h.tips {
		resp.ShardInfos = append(resp.ShardInfos, &ShardInfo{ShardID: shard, MaxHeight: tip})
	}
	return resp, nil
}

func (h *fakeHub) GetShardChunks(ctx context.Context, shardID uint32, start uint64, stop *uint64) ([]*ShardChunk, error) {
	h.mu.Lock()
	fail := h.failWith[shardID]
	delay := h.delays[start]
	blocks := h.chunks[shardID]
	h.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	end := start + 100
	if stop != nil {
		end = *stop
	}
	var out []*ShardChunk
	for b := start; b < end; b++ {
		if c, ok := blocks[b]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (h *fakeHub) Close() error { return nil }

// memorySink records applied batches in commit order.
type memorySink struct {
	mu            sync.Mutex
	appliedBlocks []uint64
	applyCalls    int
	castHashes    map[string]int
}

func newMemorySink() *memorySink {
	return &memorySink{castHashes: make(map[string]int)}
}

func (s *memorySink) Apply(ctx context.Context, batch *BatchedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	s.appliedBlocks = append(s.appliedBlocks, batch.MaxBlock)
	for _, c := range batch.Casts {
		s.castHashes[string(c.Hash)]++
	}
	return nil
}

func (s *memorySink) blocks() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.appliedBlocks...)
}

// memoryCursors is an in-memory monotonic cursor store.
type memoryCursors struct {
	mu       sync.Mutex
	cursors  map[uint32]uint64
	advances int
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: make(map[uint32]uint64)}
}

func (c *memoryCursors) Load(ctx context.Context, shardID uint32) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	block, ok := c.cursors[shardID]
	return block, ok, nil
}

func (c *memoryCursors) Advance(ctx context.Context, shardID uint32, newBlock uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.cursors[shardID]; ok && newBlock <= cur {
		return ErrCursorRegression
	}
	c.cursors[shardID] = newBlock
	c.advances++
	return nil
}

func castChunk(shardID uint32, block uint64, fid uint64, hash byte, text string) *ShardChunk {
	return &ShardChunk{
		Header: &ShardHeader{Height: &BlockHeight{ShardIndex: shardID, BlockNumber: block}},
		Transactions: []*Transaction{{
			FID: fid,
			UserMessages: []*UserMessage{{
				Hash: HexBytes{hash},
				Data: &MessageData{
					Type: MessageTypeCastAdd, FID: fid, Timestamp: 1700000000 + block,
					CastAddBody: &CastAddBody{Text: text},
				},
			}},
		}},
	}
}

func newTestService(hub HubClient, sink BatchSink, cursors CursorTracker, opts SyncOptions) *SyncService {
	return NewSyncService(hub, sink, cursors, opts, nil, nil)
}

func uint64Ptr(v uint64) *uint64 { return &v }

//---------------------------------------------------------------------
// Tests
//---------------------------------------------------------------------

func TestSplitWindows(t *testing.T) {
	tests := []struct {
		name    string
		start   uint64
		upper   uint64
		batch   uint64
		workers uint32
		want    [][2]uint64
	}{
		{"SingleWindow", 0, 5, 10, 1, [][2]uint64{{0, 5}}},
		{"FourWorkers", 0, 8, 2, 4, [][2]uint64{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"ShortRange", 10, 13, 2, 4, [][2]uint64{{10, 12}, {12, 13}}},
		{"Empty", 5, 5, 2, 4, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := splitWindows(tc.start, tc.upper, tc.batch, tc.workers)
			if len(got) != len(tc.want) {
				t.Fatalf("windows=%v want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("window[%d]=%v want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestDriverOutOfOrderFetchInOrderCommit(t *testing.T) {
	hub := newFakeHub()
	for b := uint64(0); b <= 7; b++ {
		hub.addChunk(1, castChunk(1, b, 100+b, byte(b+1), fmt.Sprintf("cast %d", b)))
	}
	// Early windows are the slowest, so late windows complete first.
	hub.delays[0] = 60 * time.Millisecond
	hub.delays[2] = 30 * time.Millisecond

	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		ShardIDs:         []uint32{1},
		BatchSize:        2,
		WorkersPerShard:  4,
		EnableHistorical: true,
		EnableRealtime:   false,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	blocks := sink.blocks()
	if len(blocks) != 8 {
		t.Fatalf("applied %d blocks want 8: %v", len(blocks), blocks)
	}
	for i, b := range blocks {
		if b != uint64(i) {
			t.Fatalf("commit order %v not ascending", blocks)
		}
	}
	if cur := cursors.cursors[1]; cur != 7 {
		t.Fatalf("cursor=%d want 7", cur)
	}
	if got := svc.State().Status(1); got != StatusCompleted {
		t.Fatalf("status=%s want Completed", got)
	}
}

func TestDriverIdempotentReplay(t *testing.T) {
	hub := newFakeHub()
	hub.addChunk(1, castChunk(1, 0, 99, 0xaa, "hello"))

	sink := newMemorySink()
	cursors := newMemoryCursors()
	opts := SyncOptions{
		ShardIDs:         []uint32{1},
		BatchSize:        10,
		WorkersPerShard:  1,
		StartBlockHeight: uint64Ptr(0),
		StopBlockHeight:  uint64Ptr(0),
		EnableHistorical: true,
		EnableRealtime:   false,
	}
	for run := 0; run < 2; run++ {
		svc := newTestService(hub, sink, cursors, opts)
		if err := svc.Start(context.Background()); err != nil {
			t.Fatalf("start #%d: %v", run+1, err)
		}
		svc.Wait()
		if got := svc.State().Status(1); got != StatusCompleted {
			t.Fatalf("run #%d status=%s want Completed", run+1, got)
		}
	}

	// The chunk was fetched and applied twice; rows stay unique by hash and
	// the cursor only advanced once.
	if sink.applyCalls != 2 {
		t.Fatalf("apply calls=%d want 2", sink.applyCalls)
	}
	if n := len(sink.castHashes); n != 1 {
		t.Fatalf("distinct cast hashes=%d want 1", n)
	}
	if cursors.advances != 1 {
		t.Fatalf("cursor advances=%d want 1", cursors.advances)
	}
}

func TestDriverShardFailureIsolated(t *testing.T) {
	hub := newFakeHub()
	hub.addChunk(1, castChunk(1, 0, 10, 0x01, "shard one"))
	hub.addChunk(2, castChunk(2, 0, 20, 0x02, "shard two"))
	hub.failWith[1] = status.Error(codes.InvalidArgument, "bad request")

	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		ShardIDs:         []uint32{1, 2},
		BatchSize:        10,
		WorkersPerShard:  1,
		EnableHistorical: true,
		EnableRealtime:   false,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	if got := svc.State().Status(1); got != StatusFailed {
		t.Fatalf("shard 1 status=%s want Failed", got)
	}
	if got := svc.State().Status(2); got != StatusCompleted {
		t.Fatalf("shard 2 status=%s want Completed", got)
	}
	if cur := cursors.cursors[2]; cur != 0 {
		t.Fatalf("shard 2 cursor=%d want 0", cur)
	}
	if _, ok := cursors.cursors[1]; ok {
		t.Fatal("shard 1 cursor advanced despite failure")
	}
	if errs := svc.Status()[1].Errors; len(errs) == 0 {
		t.Fatal("shard 1 errors tail empty")
	}
}

func TestDriverStopPausesShards(t *testing.T) {
	hub := newFakeHub()
	hub.addChunk(1, castChunk(1, 0, 10, 0x01, "one"))
	hub.addChunk(2, castChunk(2, 0, 20, 0x02, "two"))

	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		ShardIDs:         []uint32{1, 2},
		BatchSize:        10,
		WorkersPerShard:  1,
		SyncInterval:     5 * time.Millisecond,
		EnableHistorical: true,
		EnableRealtime:   true,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Wait until both shards reach realtime, then stop gracefully.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if svc.State().Status(1) == StatusRealtime && svc.State().Status(2) == StatusRealtime {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("shards never reached realtime: %s / %s",
				svc.State().Status(1), svc.State().Status(2))
		}
		time.Sleep(time.Millisecond)
	}
	svc.Stop(false)
	svc.Wait()

	for _, shard := range []uint32{1, 2} {
		if got := svc.State().Status(shard); got != StatusPaused {
			t.Fatalf("shard %d status=%s want Paused", shard, got)
		}
		if cur := cursors.cursors[shard]; cur != 0 {
			t.Fatalf("shard %d cursor=%d want 0", shard, cur)
		}
	}
}

func TestDriverStopHeight(t *testing.T) {
	hub := newFakeHub()
	for b := uint64(0); b <= 10; b++ {
		hub.addChunk(1, castChunk(1, b, 5, byte(b+1), "x"))
	}
	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		ShardIDs:         []uint32{1},
		BatchSize:        2,
		WorkersPerShard:  2,
		StopBlockHeight:  uint64Ptr(3),
		EnableHistorical: true,
		EnableRealtime:   true,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	if got := svc.State().Status(1); got != StatusCompleted {
		t.Fatalf("status=%s want Completed", got)
	}
	if cur := cursors.cursors[1]; cur != 3 {
		t.Fatalf("cursor=%d want 3", cur)
	}
	if blocks := sink.blocks(); len(blocks) != 4 {
		t.Fatalf("applied=%v want blocks 0..3", blocks)
	}
}

func TestDriverRealtimeOnlySkipsHistory(t *testing.T) {
	hub := newFakeHub()
	for b := uint64(0); b <= 4; b++ {
		hub.addChunk(1, castChunk(1, b, 5, byte(b+1), "x"))
	}
	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		ShardIDs:         []uint32{1},
		BatchSize:        10,
		WorkersPerShard:  1,
		EnableHistorical: false,
		EnableRealtime:   false,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	if got := svc.State().Status(1); got != StatusCompleted {
		t.Fatalf("status=%s want Completed", got)
	}
	if sink.applyCalls != 0 {
		t.Fatalf("apply calls=%d want 0", sink.applyCalls)
	}
}

func TestDriverResolvesShardsFromInfo(t *testing.T) {
	hub := newFakeHub()
	hub.addChunk(3, castChunk(3, 0, 7, 0x01, "auto"))

	sink := newMemorySink()
	cursors := newMemoryCursors()
	svc := newTestService(hub, sink, cursors, SyncOptions{
		BatchSize:        10,
		WorkersPerShard:  1,
		EnableHistorical: true,
		EnableRealtime:   false,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()
	if got := svc.State().Status(3); got != StatusCompleted {
		t.Fatalf("status=%s want Completed", got)
	}
}
