// Package stats computes per-player summaries, Elo trajectories,
// head-to-head records, performance trends, and leaderboards, with an
// in-process cache in front of the expensive aggregations. The engine only
// calls Backend read operations; it never writes.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/domain"
	"github.com/seshuthota/gamearena-store/internal/stats/cache"
)

// EloPoint is one sample in a player's Elo trajectory.
type EloPoint struct {
	Timestamp time.Time
	Elo       float64
}

// PersonalOutcome is a game's result from one specific player's point of
// view, distinct from domain.GameResult which is board-color-relative.
type PersonalOutcome string

const (
	OutcomeWin  PersonalOutcome = "win"
	OutcomeLoss PersonalOutcome = "loss"
	OutcomeDraw PersonalOutcome = "draw"
)

// RecentGameSummary is one entry in a player's recent-form window.
type RecentGameSummary struct {
	GameID    string
	StartTime time.Time
	Result    domain.GameResult
	Position  int
}

// DataQuality reports how much of a player's game history is usable.
type DataQuality struct {
	TotalGames       int
	CompleteGames    int
	Completeness     float64
	Confidence       float64
	ExclusionReasons map[string]int
}

// PlayerStatisticsResult is the full per-player computation: outcome
// tallies and rates, Elo trajectory, performance metrics, recent form,
// opponent analysis, and data quality.
type PlayerStatisticsResult struct {
	PlayerID string

	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
	WinRate     float64
	LossRate    float64
	DrawRate    float64

	EloHistory []EloPoint
	CurrentElo float64
	PeakElo    float64

	TotalMoves          int
	AverageGameDuration float64 // seconds

	RecentGames       []RecentGameSummary
	CurrentStreakKind PersonalOutcome
	CurrentStreakLen  int
	LongestWinStreak  int

	OpponentEloAvg float64
	OpponentEloMax float64
	OpponentEloMin float64

	DataQuality DataQuality
}

// HeadToHeadGameSummary is one game's detail in a head-to-head report.
type HeadToHeadGameSummary struct {
	GameID          string
	StartTime       time.Time
	Result          domain.GameResult
	WinnerPosition  *int
	P1Position      int
	P2Position      int
	TotalMoves      int
	DurationMinutes *float64
}

// HeadToHeadResult tallies two players' shared game history.
type HeadToHeadResult struct {
	Player1ID   string
	Player2ID   string
	P1Wins      int
	P2Wins      int
	Draws       int
	P1WinRate   float64
	P2WinRate   float64
	Games       []HeadToHeadGameSummary
}

// DayBucket is one day's tally in a performance-trends report.
type DayBucket struct {
	Date            time.Time
	Games           int
	Wins            int
	Losses          int
	Draws           int
	WinRate         float64
	AverageDuration float64
}

// LeaderboardEntry ranks one player.
type LeaderboardEntry struct {
	Rank        int
	PlayerID    string
	Score       float64
	GamesPlayed int
}

// Engine computes derived statistics over a Backend's read surface.
type Engine struct {
	backend     backend.Backend
	cache       *cache.Cache
	broadcaster *cache.Broadcaster
}

// NewEngine wires an Engine to its backend and cache.
func NewEngine(b backend.Backend, c *cache.Cache) *Engine {
	return &Engine{backend: b, cache: c}
}

// SetBroadcaster attaches a cross-process cache invalidation broadcaster.
// Optional: when unset, invalidation stays local to this process's cache.
func (e *Engine) SetBroadcaster(b *cache.Broadcaster) {
	e.broadcaster = b
}

const (
	defaultTTL     = 5 * time.Minute
	recentWindowN  = 10
)

func tagForPlayer(id string) string { return "player:" + id }

// InvalidatePlayer drops every cached entry tagged for this player, locally
// and (if a broadcaster is attached) across every sibling process.
func (e *Engine) InvalidatePlayer(playerID string) {
	e.invalidate(tagForPlayer(playerID))
}

// InvalidateLeaderboard drops every cached leaderboard entry, locally and
// (if a broadcaster is attached) across every sibling process.
func (e *Engine) InvalidateLeaderboard() {
	e.invalidate("leaderboard")
}

func (e *Engine) invalidate(tag string) {
	if e.broadcaster != nil {
		e.broadcaster.Invalidate(context.Background(), tag)
		return
	}
	e.cache.Invalidate(tag)
}

// PlayerStatistics computes (or returns cached) per-player statistics.
func (e *Engine) PlayerStatistics(ctx context.Context, playerID string) (*PlayerStatisticsResult, error) {
	key := "player_stats:" + playerID
	if v, ok := e.cache.Get(key); ok {
		return v.(*PlayerStatisticsResult), nil
	}

	games, err := e.backend.QueryGames(ctx, backend.GameFilter{PlayerID: &playerID}, -1, 0)
	if err != nil {
		return nil, err
	}

	valid, exclusions := categorizeGames(games)

	result := &PlayerStatisticsResult{PlayerID: playerID}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wins, losses, draws := tallyOutcomes(valid, playerID)
		result.Wins, result.Losses, result.Draws = wins, losses, draws
		result.GamesPlayed = len(valid)
		if len(valid) > 0 {
			result.WinRate = float64(wins) / float64(len(valid))
			result.LossRate = float64(losses) / float64(len(valid))
			result.DrawRate = float64(draws) / float64(len(valid))
		}
		return nil
	})

	g.Go(func() error {
		history, current, peak, err := e.eloTrajectory(ctx, playerID, valid)
		if err != nil {
			return err
		}
		result.EloHistory = history
		result.CurrentElo = current
		result.PeakElo = peak
		return nil
	})

	g.Go(func() error {
		totalMoves, avgDuration := performanceMetrics(valid)
		result.TotalMoves = totalMoves
		result.AverageGameDuration = avgDuration
		return nil
	})

	g.Go(func() error {
		recent, streakKind, streakLen, longestWin := recentForm(valid, playerID)
		result.RecentGames = recent
		result.CurrentStreakKind = streakKind
		result.CurrentStreakLen = streakLen
		result.LongestWinStreak = longestWin
		return nil
	})

	g.Go(func() error {
		avg, max, min := opponentAnalysis(valid, playerID)
		result.OpponentEloAvg = avg
		result.OpponentEloMax = max
		result.OpponentEloMin = min
		return nil
	})

	g.Go(func() error {
		result.DataQuality = dataQuality(games, valid, exclusions)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.cache.Put(key, result, defaultTTL, tagForPlayer(playerID))
	return result, nil
}

// categorizeGames splits games into valid (completed, well-formed) and
// invalid, tallying exclusion reasons for the invalid ones.
func categorizeGames(games []*domain.Game) ([]*domain.Game, map[string]int) {
	var valid []*domain.Game
	exclusions := map[string]int{}
	for _, g := range games {
		if !g.IsCompleted() {
			exclusions["not_completed"]++
			continue
		}
		if g.Outcome.Result == domain.ResultOngoing {
			exclusions["no_result"]++
			continue
		}
		if g.TotalMoves < 0 {
			exclusions["negative_move_count"]++
			continue
		}
		if len(g.Players) != 2 {
			exclusions["malformed_players"]++
			continue
		}
		valid = append(valid, g)
	}
	return valid, exclusions
}

func playerPosition(g *domain.Game, playerID string) (int, bool) {
	for pos, p := range g.Players {
		if p.PlayerID == playerID {
			return pos, true
		}
	}
	return 0, false
}

// tallyOutcomes maps each game's (result, board position) pair onto this
// player's win/loss/draw tally.
func tallyOutcomes(games []*domain.Game, playerID string) (wins, losses, draws int) {
	for _, g := range games {
		pos, ok := playerPosition(g, playerID)
		if !ok {
			continue
		}
		switch g.Outcome.Result {
		case domain.ResultDraw:
			draws++
		case domain.ResultWhiteWins:
			if pos == domain.White {
				wins++
			} else {
				losses++
			}
		case domain.ResultBlackWins:
			if pos == domain.Black {
				wins++
			} else {
				losses++
			}
		}
	}
	return
}

// eloTrajectory replays the player's completed games in start-time order,
// carrying a running rating: look up each opponent's stored rating (default
// when absent), apply one Elo update per game, track the peak.
func (e *Engine) eloTrajectory(ctx context.Context, playerID string, games []*domain.Game) ([]EloPoint, float64, float64, error) {
	sorted := append([]*domain.Game(nil), games...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

	opponentEloCache := map[string]float64{}
	current := domain.DefaultElo
	peak := current
	var history []EloPoint

	for _, g := range sorted {
		pos, ok := playerPosition(g, playerID)
		if !ok {
			continue
		}
		var opponentID string
		for p, info := range g.Players {
			if p != pos {
				opponentID = info.PlayerID
			}
		}
		opponentElo, ok := opponentEloCache[opponentID]
		if !ok {
			opponentElo = domain.DefaultElo
			if ps, err := e.backend.GetPlayerStats(ctx, opponentID); err == nil {
				opponentElo = ps.EloRating
			}
			opponentEloCache[opponentID] = opponentElo
		}

		var score float64
		switch g.Outcome.Result {
		case domain.ResultDraw:
			score = 0.5
		case domain.ResultWhiteWins:
			if pos == domain.White {
				score = 1
			}
		case domain.ResultBlackWins:
			if pos == domain.Black {
				score = 1
			}
		}

		newElo, _ := ComputeEloUpdate(current, opponentElo, score, domain.DefaultKFactor)
		current = newElo
		if current > peak {
			peak = current
		}
		history = append(history, EloPoint{Timestamp: g.StartTime, Elo: current})
	}
	return history, current, peak, nil
}

// performanceMetrics sums per-game move counts (halved, one side's share)
// and averages duration over games that have one.
func performanceMetrics(games []*domain.Game) (totalMoves int, avgDuration float64) {
	sum := 0
	var durSum float64
	durCount := 0
	for _, g := range games {
		sum += g.TotalMoves
		if g.GameDurationSeconds != nil {
			durSum += *g.GameDurationSeconds
			durCount++
		}
	}
	totalMoves = sum / 2
	if durCount > 0 {
		avgDuration = durSum / float64(durCount)
	}
	return
}

// recentForm reports the most recent 10 completed games (most-recent-first),
// the current streak (longest run of the same result at the head), and the
// longest win streak over the window.
func recentForm(games []*domain.Game, playerID string) ([]RecentGameSummary, PersonalOutcome, int, int) {
	sorted := append([]*domain.Game(nil), games...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.After(sorted[j].StartTime) })
	if len(sorted) > recentWindowN {
		sorted = sorted[:recentWindowN]
	}

	summaries := make([]RecentGameSummary, 0, len(sorted))
	playerResults := make([]PersonalOutcome, 0, len(sorted))
	for _, g := range sorted {
		pos, ok := playerPosition(g, playerID)
		if !ok {
			continue
		}
		playerResult := playerOutcomeFor(g, pos)
		summaries = append(summaries, RecentGameSummary{
			GameID: g.GameID, StartTime: g.StartTime, Result: g.Outcome.Result, Position: pos,
		})
		playerResults = append(playerResults, playerResult)
	}

	var streakKind PersonalOutcome
	streakLen := 0
	if len(playerResults) > 0 {
		streakKind = playerResults[0]
		for _, r := range playerResults {
			if r != streakKind {
				break
			}
			streakLen++
		}
	}

	longestWin, run := 0, 0
	for _, r := range playerResults {
		if r == OutcomeWin {
			run++
			if run > longestWin {
				longestWin = run
			}
		} else {
			run = 0
		}
	}

	return summaries, streakKind, streakLen, longestWin
}

// playerOutcomeFor maps a game's Result to this player's personal outcome
// given their board position.
func playerOutcomeFor(g *domain.Game, pos int) PersonalOutcome {
	switch g.Outcome.Result {
	case domain.ResultDraw:
		return OutcomeDraw
	case domain.ResultWhiteWins:
		if pos == domain.White {
			return OutcomeWin
		}
		return OutcomeLoss
	case domain.ResultBlackWins:
		if pos == domain.Black {
			return OutcomeWin
		}
		return OutcomeLoss
	}
	return OutcomeLoss
}

// opponentAnalysis reports the average, max, and min of opponents' ratings
// as recorded on each game across the player's games, counting an
// unrecorded rating as the default.
func opponentAnalysis(games []*domain.Game, playerID string) (avg, max, min float64) {
	var sum float64
	count := 0
	max, min = 0, 0
	for _, g := range games {
		pos, ok := playerPosition(g, playerID)
		if !ok {
			continue
		}
		for p, info := range g.Players {
			if p == pos {
				continue
			}
			elo := domain.DefaultElo
			if info.EloRating != nil {
				elo = *info.EloRating
			}
			sum += elo
			if count == 0 || elo > max {
				max = elo
			}
			if count == 0 || elo < min {
				min = elo
			}
			count++
		}
	}
	if count > 0 {
		avg = sum / float64(count)
	}
	return
}

// dataQuality reports how much of the player's history was usable and why
// the rest was excluded.
func dataQuality(all, valid []*domain.Game, exclusions map[string]int) DataQuality {
	total := len(all)
	complete := len(valid)
	completeness := 0.0
	if total > 0 {
		completeness = float64(complete) / float64(total)
	}
	outcomeCoverage := completeness // both counted off the same "valid" definition here
	confidence := completeness
	if outcomeCoverage < confidence {
		confidence = outcomeCoverage
	}
	return DataQuality{
		TotalGames:       total,
		CompleteGames:    complete,
		Completeness:     completeness,
		Confidence:       confidence,
		ExclusionReasons: exclusions,
	}
}

// HeadToHead loads games containing both players and tallies the record.
func (e *Engine) HeadToHead(ctx context.Context, p1, p2 string) (*HeadToHeadResult, error) {
	key := "h2h:" + p1 + ":" + p2
	if v, ok := e.cache.Get(key); ok {
		return v.(*HeadToHeadResult), nil
	}

	games, err := e.backend.QueryGames(ctx, backend.GameFilter{Players: []string{p1, p2}}, -1, 0)
	if err != nil {
		return nil, err
	}

	result := &HeadToHeadResult{Player1ID: p1, Player2ID: p2}
	for _, g := range games {
		if !g.IsCompleted() {
			continue
		}
		pos1, ok1 := playerPosition(g, p1)
		pos2, ok2 := playerPosition(g, p2)
		if !ok1 || !ok2 {
			continue
		}
		var winner *int
		switch g.Outcome.Result {
		case domain.ResultDraw:
			result.Draws++
		case domain.ResultWhiteWins:
			w := domain.White
			winner = &w
			if pos1 == domain.White {
				result.P1Wins++
			} else {
				result.P2Wins++
			}
		case domain.ResultBlackWins:
			b := domain.Black
			winner = &b
			if pos1 == domain.Black {
				result.P1Wins++
			} else {
				result.P2Wins++
			}
		}
		result.Games = append(result.Games, HeadToHeadGameSummary{
			GameID: g.GameID, StartTime: g.StartTime, Result: g.Outcome.Result,
			WinnerPosition: winner, P1Position: pos1, P2Position: pos2,
			TotalMoves: g.TotalMoves, DurationMinutes: g.DurationMinutes(),
		})
	}
	total := result.P1Wins + result.P2Wins + result.Draws
	if total > 0 {
		result.P1WinRate = float64(result.P1Wins) / float64(total)
		result.P2WinRate = float64(result.P2Wins) / float64(total)
	}

	e.cache.Put(key, result, defaultTTL, tagForPlayer(p1), tagForPlayer(p2))
	return result, nil
}

// PerformanceTrends buckets a player's completed games over the trailing
// window by calendar date. Not cached: the window shifts with `now` on
// every call, so a cached entry would be stale before its TTL ever kicked in.
func (e *Engine) PerformanceTrends(ctx context.Context, playerID string, days int, now time.Time) ([]DayBucket, error) {
	since := now.AddDate(0, 0, -days)

	games, err := e.backend.QueryGames(ctx, backend.GameFilter{PlayerID: &playerID, StartAfter: &since}, -1, 0)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*DayBucket{}
	var order []string
	for _, g := range games {
		if !g.IsCompleted() {
			continue
		}
		day := g.StartTime.Truncate(24 * time.Hour)
		dayKey := day.Format("2006-01-02")
		b, ok := buckets[dayKey]
		if !ok {
			b = &DayBucket{Date: day}
			buckets[dayKey] = b
			order = append(order, dayKey)
		}
		pos, ok := playerPosition(g, playerID)
		if !ok {
			continue
		}
		b.Games++
		switch playerOutcomeFor(g, pos) {
		case OutcomeWin:
			b.Wins++
		case OutcomeLoss:
			b.Losses++
		case OutcomeDraw:
			b.Draws++
		}
		if g.GameDurationSeconds != nil {
			b.AverageDuration += *g.GameDurationSeconds
		}
	}

	sort.Strings(order)
	out := make([]DayBucket, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		if b.Games > 0 {
			b.WinRate = float64(b.Wins) / float64(b.Games)
			b.AverageDuration /= float64(b.Games)
		}
		out = append(out, *b)
	}

	return out, nil
}

// Leaderboard enumerates unique player ids across all games, computes
// per-player statistics, excludes players under min_games, ranks by the
// chosen score, and assigns ranks 1..limit.
func (e *Engine) Leaderboard(ctx context.Context, sortBy string, minGames, limit int) ([]LeaderboardEntry, error) {
	key := fmt.Sprintf("leaderboard:%s:%d", sortBy, minGames)
	if v, ok := e.cache.Get(key); ok {
		entries := v.([]LeaderboardEntry)
		if limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		return entries, nil
	}

	games, err := e.backend.QueryGames(ctx, backend.GameFilter{}, -1, 0)
	if err != nil {
		return nil, err
	}
	ids := map[string]struct{}{}
	for _, g := range games {
		for _, p := range g.Players {
			ids[p.PlayerID] = struct{}{}
		}
	}

	type scored struct {
		id    string
		score float64
		games int
	}
	var all []scored
	for id := range ids {
		result, err := e.PlayerStatistics(ctx, id)
		if err != nil {
			continue
		}
		if result.GamesPlayed < minGames {
			continue
		}
		var score float64
		switch sortBy {
		case "win_rate":
			score = result.WinRate
		case "games_played":
			score = float64(result.GamesPlayed)
		default:
			score = result.CurrentElo
		}
		all = append(all, scored{id: id, score: score, games: result.GamesPlayed})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	entries := make([]LeaderboardEntry, 0, len(all))
	for i, s := range all {
		entries = append(entries, LeaderboardEntry{Rank: i + 1, PlayerID: s.id, Score: s.score, GamesPlayed: s.games})
	}

	e.cache.Put(key, entries, defaultTTL, "leaderboard")

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}
