package core

import (
	"encoding/json"
	"net/http"
	"context"
	"net/http/httptest"
	"testing"
)

func newTestStatusServer(t *testing.T) (*StatusServer, *SyncService) {
	t.Helper()
	hub := newFakeHub()
	hub.addChunk(1, castChunk(1, 0, 9, 0x01, "x"))
	svc := newTestService(hub, newMemorySink(), newMemoryCursors(), SyncOptions{
		ShardIDs:         []uint32{1},
		BatchSize:        10,
		EnableHistorical: true,
		EnableRealtime:   false,
	})
	return NewStatusServer("127.0.0.1:0", nil, svc, nil), svc
}

func TestStatusEndpoint(t *testing.T) {
	srv, svc := newTestStatusServer(t)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code=%d", rec.Code)
	}
	var payload struct {
		RunID  string                   `json:"run_id"`
		Shards map[uint32]ShardSnapshot `json:"shards"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RunID == "" {
		t.Fatal("missing run id")
	}
	snap, ok := payload.Shards[1]
	if !ok || snap.Status != StatusCompleted {
		t.Fatalf("shard snapshot: %+v ok=%t", snap, ok)
	}
}

func TestHealthEndpointWithoutDatabase(t *testing.T) {
	srv, _ := newTestStatusServer(t)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health code=%d", rec.Code)
	}
}

func TestStopEndpoint(t *testing.T) {
	srv, svc := newTestStatusServer(t)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stop?force=true", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop code=%d", rec.Code)
	}
	svc.Wait()
}
