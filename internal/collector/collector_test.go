package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/backend/embedded"
	"github.com/seshuthota/gamearena-store/internal/config"
	"github.com/seshuthota/gamearena-store/internal/domain"
	"github.com/seshuthota/gamearena-store/internal/stats"
	"github.com/seshuthota/gamearena-store/internal/stats/cache"
	"github.com/seshuthota/gamearena-store/internal/storagemgr"
)

func newTestManager(t *testing.T) *storagemgr.Manager {
	t.Helper()
	store := embedded.New(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { store.Disconnect(ctx) })

	engine := stats.NewEngine(store, cache.New(100))
	return storagemgr.New(store, engine, zap.NewNop().Sugar())
}

func fillTestDefaults(cfg config.CollectorConfig) config.CollectorConfig {
	cfg.Enabled = true
	cfg.AsyncProcessing = true
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 100
	}
	if cfg.WorkerThreads == 0 {
		cfg.WorkerThreads = 2
	}
	if cfg.MaxCollectionLatencyMS == 0 {
		cfg.MaxCollectionLatencyMS = 1000
	}
	return cfg
}

func newTestCollector(t *testing.T, cfg config.CollectorConfig) *Collector {
	t.Helper()
	c := New(newTestManager(t), fillTestDefaults(cfg), zap.NewNop().Sugar())
	c.Start(context.Background())
	t.Cleanup(func() { c.Stop(2 * time.Second) })
	return c
}

func testGame(id string) *domain.Game {
	return &domain.Game{
		GameID: id,
		Players: map[int]domain.PlayerInfo{
			domain.Black: {PlayerID: "p1", ModelName: "m", ModelProvider: "prov", AgentType: "a"},
			domain.White: {PlayerID: "p2", ModelName: "m", ModelProvider: "prov", AgentType: "a"},
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}

func TestCollectorStartGameIsPersisted(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{CollectRethinkData: true})
	g := testGame("g1")
	accepted, err := c.StartGame(g)
	if err != nil || !accepted {
		t.Fatalf("expected game accepted, got accepted=%v err=%v", accepted, err)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := c.ActiveGameMoveCount("g1")
		return ok
	})
}

func TestCollectorRecordMoveIncrementsActiveCount(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	g := testGame("g1")
	if _, err := c.StartGame(g); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitFor(t, time.Second, func() bool { _, ok := c.ActiveGameMoveCount("g1"); return ok })

	mv := &domain.Move{
		GameID: "g1", MoveNumber: 1, Player: domain.White,
		FENBefore: "start", FENAfter: "after", MoveSAN: "e4", MoveUCI: "e2e4",
		IsLegal: true, PromptText: "p", RawResponse: "r", ParsingAttempts: 1,
	}
	if _, err := c.RecordMove("g1", mv); err != nil {
		t.Fatalf("record move: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		n, ok := c.ActiveGameMoveCount("g1")
		return ok && n == 1
	})
}

func TestCollectorEndGameClearsActiveEntry(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	g := testGame("g1")
	if _, err := c.StartGame(g); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitFor(t, time.Second, func() bool { _, ok := c.ActiveGameMoveCount("g1"); return ok })

	outcome := &domain.GameOutcome{Result: domain.ResultDraw}
	if _, err := c.EndGame("g1", outcome, "final-fen", 0); err != nil {
		t.Fatalf("end game: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := c.ActiveGameMoveCount("g1")
		return !ok
	})
}

func TestCollectorRecordRethinkAttemptSkippedWhenDisabled(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{CollectRethinkData: false})
	accepted, err := c.RecordRethinkAttempt("g1", 1, domain.White, &domain.RethinkAttempt{AttemptNumber: 1, PromptText: "p", RawResponse: "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted {
		t.Fatal("expected rethink attempt to be skipped, not enqueued, when collection is disabled")
	}
}

func TestCollectorRecordErrorIsAccepted(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	accepted, err := c.RecordError("g1", "timeout", "agent timed out", map[string]any{"move": 5})
	if err != nil || !accepted {
		t.Fatalf("expected error event accepted, got accepted=%v err=%v", accepted, err)
	}
}

func TestCollectorQueueOverflowRejectsSecondEvent(t *testing.T) {
	// workers never started, so the first event stays queued
	cfg := fillTestDefaults(config.CollectorConfig{QueueSize: 1, MaxCollectionLatencyMS: 10, ContinueOnCollectionError: true})
	c := New(newTestManager(t), cfg, zap.NewNop().Sugar())

	accepted, err := c.StartGame(testGame("g1"))
	if err != nil || !accepted {
		t.Fatalf("first event should be accepted, got accepted=%v err=%v", accepted, err)
	}
	accepted, err = c.StartGame(testGame("g2"))
	if err != nil {
		t.Fatalf("continue_on_collection_error should suppress the error, got %v", err)
	}
	if accepted {
		t.Fatal("second event should be rejected with the queue full")
	}
	if got := c.Snapshot().EventsReceived; got != 1 {
		t.Fatalf("events_received should count accepted events only, got %d", got)
	}
	if c.QueueDepth() != 1 {
		t.Fatalf("expected queue depth 1, got %d", c.QueueDepth())
	}
}

func TestCollectorQueueOverflowSurfacesErrorWhenConfigured(t *testing.T) {
	cfg := fillTestDefaults(config.CollectorConfig{MaxCollectionLatencyMS: 10})
	cfg.QueueSize = 1
	cfg.ContinueOnCollectionError = false
	c := New(newTestManager(t), cfg, zap.NewNop().Sugar())

	if accepted, err := c.StartGame(testGame("g1")); err != nil || !accepted {
		t.Fatalf("first event should be accepted, got accepted=%v err=%v", accepted, err)
	}
	if _, err := c.StartGame(testGame("g2")); err == nil {
		t.Fatal("expected an error at the producer call site when continue_on_collection_error is disabled")
	}
}

func TestCollectorDisabledRejectsWithoutError(t *testing.T) {
	cfg := fillTestDefaults(config.CollectorConfig{})
	cfg.Enabled = false
	c := New(newTestManager(t), cfg, zap.NewNop().Sugar())
	c.Start(context.Background())

	accepted, err := c.StartGame(testGame("g1"))
	if err != nil {
		t.Fatalf("disabled collector must not error, got %v", err)
	}
	if accepted {
		t.Fatal("disabled collector must not accept events")
	}
	if got := c.Snapshot().EventsReceived; got != 0 {
		t.Fatalf("disabled collector must not count events, got %d", got)
	}
}

func TestCollectorSynchronousModeProcessesOnCallerThread(t *testing.T) {
	cfg := fillTestDefaults(config.CollectorConfig{})
	cfg.AsyncProcessing = false
	c := New(newTestManager(t), cfg, zap.NewNop().Sugar())
	// no Start: synchronous mode needs no workers

	accepted, err := c.StartGame(testGame("g1"))
	if err != nil || !accepted {
		t.Fatalf("expected synchronous acceptance, got accepted=%v err=%v", accepted, err)
	}
	// the write completed before the producer call returned
	if n, ok := c.ActiveGameMoveCount("g1"); !ok || n != 0 {
		t.Fatalf("expected g1 active with 0 moves immediately, got n=%d ok=%v", n, ok)
	}
	if got := c.Snapshot().EventsProcessed; got != 1 {
		t.Fatalf("expected events_processed=1 immediately, got %d", got)
	}
}

func TestCollectorTwoMoveDrawEndToEnd(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	ctx := context.Background()

	if _, err := c.StartGame(testGame("g1")); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitFor(t, time.Second, func() bool { _, ok := c.ActiveGameMoveCount("g1"); return ok })

	for _, mv := range []*domain.Move{
		{GameID: "g1", MoveNumber: 1, Player: domain.White, FENBefore: "start", FENAfter: "after-e4",
			MoveSAN: "e4", MoveUCI: "e2e4", IsLegal: true, PromptText: "p", RawResponse: "r", ParsingAttempts: 1},
		{GameID: "g1", MoveNumber: 1, Player: domain.Black, FENBefore: "after-e4", FENAfter: "after-e5",
			MoveSAN: "e5", MoveUCI: "e7e5", IsLegal: true, PromptText: "p", RawResponse: "r", ParsingAttempts: 1},
	} {
		if accepted, err := c.RecordMove("g1", mv); err != nil || !accepted {
			t.Fatalf("record move: accepted=%v err=%v", accepted, err)
		}
	}

	outcome := &domain.GameOutcome{Result: domain.ResultDraw, Termination: domain.TerminationStalemate}
	if _, err := c.EndGame("g1", outcome, "after-e5", 1); err != nil {
		t.Fatalf("end game: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { _, ok := c.ActiveGameMoveCount("g1"); return !ok })

	g, err := c.manager.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if g.Outcome == nil || g.Outcome.Result != domain.ResultDraw {
		t.Fatalf("expected draw outcome persisted, got %+v", g.Outcome)
	}
	moves, err := c.manager.GetMoves(ctx, "g1", nil)
	if err != nil || len(moves) != 2 {
		t.Fatalf("expected 2 persisted moves, got %d (err=%v)", len(moves), err)
	}

	for _, pid := range []string{"p1", "p2"} {
		ps, err := c.manager.GetPlayerStats(ctx, pid)
		if err != nil {
			t.Fatalf("get %s stats: %v", pid, err)
		}
		if ps.Draws != 1 {
			t.Errorf("%s: expected 1 draw, got %d", pid, ps.Draws)
		}
		if ps.EloRating != 1200 {
			t.Errorf("%s: expected rating unchanged at 1200 after a draw, got %v", pid, ps.EloRating)
		}
	}
}

func TestCollectorConcurrentMoveIngestionIntegrity(t *testing.T) {
	cfg := config.CollectorConfig{QueueSize: 1000, WorkerThreads: 4}
	c := newTestCollector(t, cfg)

	g := testGame("g1")
	if _, err := c.StartGame(g); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitFor(t, time.Second, func() bool { _, ok := c.ActiveGameMoveCount("g1"); return ok })

	// Unique move numbers 1..100, one per ply, player alternating from 0.
	const totalMoves = 100
	for i := 1; i <= totalMoves; i++ {
		mv := &domain.Move{
			GameID: "g1", MoveNumber: i, Player: (i - 1) % 2,
			FENBefore: "before", FENAfter: "after", MoveSAN: "e4", MoveUCI: "e2e4",
			IsLegal: true, PromptText: "p", RawResponse: "r", ParsingAttempts: 1,
		}
		if accepted, err := c.RecordMove("g1", mv); err != nil || !accepted {
			t.Fatalf("move %d rejected: accepted=%v err=%v", i, accepted, err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		n, _ := c.ActiveGameMoveCount("g1")
		return n == totalMoves
	})

	moves, err := c.manager.GetMoves(context.Background(), "g1", nil)
	if err != nil {
		t.Fatalf("get moves: %v", err)
	}
	if len(moves) != totalMoves {
		t.Fatalf("expected %d persisted moves, got %d", totalMoves, len(moves))
	}
	seen := make(map[[2]int]bool)
	for i, mv := range moves {
		key := [2]int{mv.MoveNumber, mv.Player}
		if seen[key] {
			t.Fatalf("duplicate (move_number, player) pair %v", key)
		}
		seen[key] = true
		if i > 0 {
			prev := moves[i-1]
			if mv.MoveNumber < prev.MoveNumber || (mv.MoveNumber == prev.MoveNumber && mv.Player < prev.Player) {
				t.Fatalf("moves not ordered by (move_number, player) at index %d", i)
			}
		}
	}
}

func TestCollectorSnapshotTracksCounters(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	g := testGame("g1")
	if _, err := c.StartGame(g); err != nil {
		t.Fatalf("start game: %v", err)
	}

	waitFor(t, time.Second, func() bool { return c.Snapshot().EventsProcessed >= 1 })

	snap := c.Snapshot()
	if snap.EventsReceived < 1 {
		t.Fatalf("expected events_received >= 1, got %d", snap.EventsReceived)
	}
	if snap.EventsProcessed < 1 {
		t.Fatalf("expected events_processed >= 1, got %d", snap.EventsProcessed)
	}
	if snap.LastUpdated.IsZero() {
		t.Fatal("expected last-updated timestamp to be set")
	}
	found := false
	for _, id := range snap.ActiveGameIDs {
		if id == "g1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected g1 in active game ids, got %v", snap.ActiveGameIDs)
	}
}

func TestCollectorHealthReflectsBackendStatus(t *testing.T) {
	c := newTestCollector(t, config.CollectorConfig{})
	health := c.Health("ok")
	if health.BackendHealth != "ok" {
		t.Fatalf("expected backend health %q, got %q", "ok", health.BackendHealth)
	}
	if health.QueueDepth < 0 || health.EventsFailed < 0 {
		t.Fatalf("expected non-negative health fields, got %+v", health)
	}
}
