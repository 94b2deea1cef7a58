package collector

import "github.com/seshuthota/gamearena-store/internal/domain"

// StartGame enqueues a GameStart event. accepted reports whether the event
// was queued within the latency ceiling; err is non-nil only when rejection
// must be observable (continue_on_collection_error disabled) or validation
// fails outright.
func (c *Collector) StartGame(g *domain.Game) (accepted bool, err error) {
	ev := newEvent(KindGameStart, g.GameID, gameStartPayload{Game: g})
	return c.enqueue(ev)
}

// RecordMove enqueues a MoveMade event.
func (c *Collector) RecordMove(gameID string, mv *domain.Move) (accepted bool, err error) {
	ev := newEvent(KindMoveMade, gameID, movePayload{Move: mv})
	return c.enqueue(ev)
}

// EndGame enqueues a GameEnd event.
func (c *Collector) EndGame(gameID string, outcome *domain.GameOutcome, finalFEN string, totalMoves int) (accepted bool, err error) {
	ev := newEvent(KindGameEnd, gameID, gameEndPayload{Outcome: outcome, FinalFEN: finalFEN, TotalMoves: totalMoves})
	return c.enqueue(ev)
}

// RecordRethinkAttempt enqueues a RethinkAttempt event, skipped entirely
// when rethink collection is disabled.
func (c *Collector) RecordRethinkAttempt(gameID string, moveNumber, player int, attempt *domain.RethinkAttempt) (accepted bool, err error) {
	if !c.cfg.CollectRethinkData {
		return false, nil
	}
	ev := newEvent(KindRethinkAttempt, gameID, rethinkPayload{MoveNumber: moveNumber, Player: player, Attempt: attempt})
	return c.enqueue(ev)
}

// RecordError enqueues an ErrorOccurred event. Currently only logged by the
// handler, not persisted.
func (c *Collector) RecordError(gameID, kind, message string, context map[string]any) (accepted bool, err error) {
	ev := newEvent(KindErrorOccurred, gameID, errorPayload{Kind: kind, Message: message, Context: context})
	return c.enqueue(ev)
}

// ActiveGameMoveCount returns the in-memory move counter for a game still
// being tracked as active (0, false once the game has ended or was never
// started through this collector).
func (c *Collector) ActiveGameMoveCount(gameID string) (int, bool) {
	c.gamesMu.Lock()
	defer c.gamesMu.Unlock()
	n, ok := c.activeMoves[gameID]
	return n, ok
}
