package collector

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seshuthota/gamearena-store/internal/domain"
)

// EventKind is the closed set of event kinds the collector dispatches on.
type EventKind string

const (
	KindGameStart      EventKind = "GameStart"
	KindMoveMade       EventKind = "MoveMade"
	KindGameEnd        EventKind = "GameEnd"
	KindRethinkAttempt EventKind = "RethinkAttempt"
	KindErrorOccurred  EventKind = "ErrorOccurred"
)

// Event is one unit of work moving through the collector's queue: an id,
// kind, owning game, timestamp, and a kind-specific typed payload.
type Event struct {
	ID         string
	Kind       EventKind
	GameID     string
	Timestamp  time.Time
	Payload    any
	RetryCount int
}

// Validate rejects empty ids and negative retry counts.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}
	if e.GameID == "" {
		return fmt.Errorf("game id cannot be empty")
	}
	if e.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative")
	}
	return nil
}

func newEvent(kind EventKind, gameID string, payload any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		GameID:    gameID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

type gameStartPayload struct {
	Game *domain.Game
}

type movePayload struct {
	Move *domain.Move
}

type gameEndPayload struct {
	Outcome    *domain.GameOutcome
	FinalFEN   string
	TotalMoves int
}

type rethinkPayload struct {
	MoveNumber int
	Player     int
	Attempt    *domain.RethinkAttempt
}

type errorPayload struct {
	Kind    string
	Message string
	Context map[string]any
}
