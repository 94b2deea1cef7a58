package stats

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/domain"
	"github.com/seshuthota/gamearena-store/internal/stats/cache"
)

func newTestEngine(fb *fakeBackend) *Engine {
	return NewEngine(fb, cache.New(100))
}

func TestPlayerStatisticsTalliesOutcomesAndRates(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultWhiteWins, base, 20), // p2 is white -> p1 loses
		completedGame("g2", "p1", "p2", domain.ResultBlackWins, base.Add(time.Hour), 30), // p1 is black -> p1 wins
		completedGame("g3", "p1", "p2", domain.ResultDraw, base.Add(2*time.Hour), 40),
	}

	e := newTestEngine(fb)
	result, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.GamesPlayed != 3 {
		t.Fatalf("expected 3 games played, got %d", result.GamesPlayed)
	}
	if result.Wins != 1 || result.Losses != 1 || result.Draws != 1 {
		t.Fatalf("expected 1 win/1 loss/1 draw, got wins=%d losses=%d draws=%d", result.Wins, result.Losses, result.Draws)
	}
	if result.WinRate != 1.0/3.0 {
		t.Errorf("expected win rate 1/3, got %v", result.WinRate)
	}
}

func TestPlayerStatisticsExcludesIncompleteGames(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ongoing := completedGame("g1", "p1", "p2", domain.ResultWhiteWins, base, 10)
	ongoing.Outcome = nil
	ongoing.EndTime = nil
	fb.games = []*domain.Game{ongoing}

	e := newTestEngine(fb)
	result, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.GamesPlayed != 0 {
		t.Fatalf("expected ongoing game excluded, got GamesPlayed=%d", result.GamesPlayed)
	}
	if result.DataQuality.ExclusionReasons["not_completed"] != 1 {
		t.Fatalf("expected not_completed exclusion recorded, got %v", result.DataQuality.ExclusionReasons)
	}
}

func TestPlayerStatisticsIsCached(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{completedGame("g1", "p1", "p2", domain.ResultDraw, base, 10)}

	e := newTestEngine(fb)
	first, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fb.games = append(fb.games, completedGame("g2", "p1", "p2", domain.ResultDraw, base.Add(time.Hour), 10))
	second, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.GamesPlayed != first.GamesPlayed {
		t.Fatalf("expected cached result reused despite new game added, first=%d second=%d", first.GamesPlayed, second.GamesPlayed)
	}

	e.InvalidatePlayer("p1")
	third, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.GamesPlayed != 2 {
		t.Fatalf("expected invalidation to force recompute, got GamesPlayed=%d", third.GamesPlayed)
	}
}

func TestPlayerStatisticsRecentFormAndStreak(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// p1 is black in each; black_wins -> p1 wins.
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultWhiteWins, base, 10),
		completedGame("g2", "p1", "p2", domain.ResultBlackWins, base.Add(time.Hour), 10),
		completedGame("g3", "p1", "p2", domain.ResultBlackWins, base.Add(2*time.Hour), 10),
	}

	e := newTestEngine(fb)
	result, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CurrentStreakKind != OutcomeWin || result.CurrentStreakLen != 2 {
		t.Fatalf("expected current streak of 2 wins, got %v x%d", result.CurrentStreakKind, result.CurrentStreakLen)
	}
	if result.LongestWinStreak != 2 {
		t.Fatalf("expected longest win streak 2, got %d", result.LongestWinStreak)
	}
	if len(result.RecentGames) != 3 {
		t.Fatalf("expected 3 recent games, got %d", len(result.RecentGames))
	}
	if result.RecentGames[0].GameID != "g3" {
		t.Fatalf("expected most recent game first, got %s", result.RecentGames[0].GameID)
	}
}

func TestHeadToHeadTalliesBothDirections(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultWhiteWins, base, 10), // p2 white wins
		completedGame("g2", "p2", "p1", domain.ResultWhiteWins, base.Add(time.Hour), 10), // p1 white wins
	}

	e := newTestEngine(fb)
	h2h, err := e.HeadToHead(context.Background(), "p1", "p2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2h.P1Wins != 1 || h2h.P2Wins != 1 {
		t.Fatalf("expected 1-1 record, got p1=%d p2=%d", h2h.P1Wins, h2h.P2Wins)
	}
	if len(h2h.Games) != 2 {
		t.Fatalf("expected 2 shared games, got %d", len(h2h.Games))
	}
}

func TestHeadToHeadIgnoresGamesWithoutBothPlayers(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p3", domain.ResultDraw, base, 10),
	}
	e := newTestEngine(fb)
	h2h, err := e.HeadToHead(context.Background(), "p1", "p2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h2h.Games) != 0 {
		t.Fatalf("expected no shared games, got %d", len(h2h.Games))
	}
}

func TestPerformanceTrendsBucketsByDay(t *testing.T) {
	fb := newFakeBackend()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultBlackWins, now.AddDate(0, 0, -1), 10),
		completedGame("g2", "p1", "p2", domain.ResultWhiteWins, now.AddDate(0, 0, -1).Add(time.Hour), 10),
		completedGame("g3", "p1", "p2", domain.ResultDraw, now.AddDate(0, 0, -5), 10),
	}

	e := newTestEngine(fb)
	buckets, err := e.PerformanceTrends(context.Background(), "p1", 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(buckets))
	}
	for _, b := range buckets {
		if b.Date.Equal(now.AddDate(0, 0, -1).Truncate(24 * time.Hour)) {
			if b.Games != 2 {
				t.Fatalf("expected 2 games on the -1 day bucket, got %d", b.Games)
			}
		}
	}
}

func TestPerformanceTrendsExcludesGamesOutsideWindow(t *testing.T) {
	fb := newFakeBackend()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultDraw, now.AddDate(0, 0, -30), 10),
	}
	e := newTestEngine(fb)
	buckets, err := e.PerformanceTrends(context.Background(), "p1", 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 0 {
		t.Fatalf("expected a 30-day-old game excluded from a 7-day window, got %d buckets", len(buckets))
	}
}

func TestLeaderboardRanksByCurrentEloDescending(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultBlackWins, base, 10), // p1 (black) wins, gains elo
	}

	e := newTestEngine(fb)
	entries, err := e.Leaderboard(context.Background(), "elo", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 players ranked, got %d", len(entries))
	}
	if entries[0].PlayerID != "p1" {
		t.Fatalf("expected p1 (winner) ranked first, got %s", entries[0].PlayerID)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("expected ranks 1 and 2, got %d and %d", entries[0].Rank, entries[1].Rank)
	}
}

func TestLeaderboardExcludesPlayersBelowMinGames(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultDraw, base, 10),
	}
	e := newTestEngine(fb)
	entries, err := e.Leaderboard(context.Background(), "elo", 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected both players excluded by min_games=2, got %d", len(entries))
	}
}

func TestLeaderboardRespectsLimit(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{
		completedGame("g1", "p1", "p2", domain.ResultDraw, base, 10),
		completedGame("g2", "p1", "p3", domain.ResultDraw, base, 10),
	}
	e := newTestEngine(fb)
	entries, err := e.Leaderboard(context.Background(), "elo", 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected limit=1 to cap results, got %d", len(entries))
	}
}

// TestInvalidationRoutesThroughBroadcasterWhenAttached exercises the
// optional cross-process path: even when the Redis publish itself fails
// (no broker reachable at the dummy address), the local cache invalidation
// must still happen so a single process never serves stale entries because
// a sibling broker is unavailable.
func TestInvalidationRoutesThroughBroadcasterWhenAttached(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fb.games = []*domain.Game{completedGame("g1", "p1", "p2", domain.ResultDraw, base, 10)}

	c := cache.New(100)
	e := NewEngine(fb, c)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 10 * time.Millisecond,
	})
	defer client.Close()
	e.SetBroadcaster(cache.NewBroadcaster(c, client, zap.NewNop().Sugar()))

	first, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fb.games = append(fb.games, completedGame("g2", "p1", "p2", domain.ResultDraw, base.Add(time.Hour), 10))
	e.InvalidatePlayer("p1")

	second, err := e.PlayerStatistics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.GamesPlayed == first.GamesPlayed {
		t.Fatalf("expected broadcaster-routed invalidation to still clear the local cache, got stale GamesPlayed=%d", second.GamesPlayed)
	}
}
