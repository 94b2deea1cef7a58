// Package storagemgr is the single entry point for writes and most reads:
// it validates inputs, enforces invariants beyond basic type validation,
// coordinates the one compound write (CompleteGame), and tracks active
// transaction ids for diagnostics.
package storagemgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
	"github.com/seshuthota/gamearena-store/internal/backend"
	"github.com/seshuthota/gamearena-store/internal/stats"
)

// Manager fronts a Backend with validation, invariant enforcement, and
// derived-aggregate coordination.
type Manager struct {
	backend backend.Backend
	engine  *stats.Engine
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	activeTx map[string]time.Time
}

// New wires a Manager to its backend and statistics engine.
func New(b backend.Backend, engine *stats.Engine, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		backend:  b,
		engine:   engine,
		logger:   logger,
		activeTx: make(map[string]time.Time),
	}
}

// beginTx registers a diagnostic transaction id; it does not open a
// backend transaction itself (each backend call manages its own).
func (m *Manager) beginTx() string {
	id := uuid.NewString()
	m.mu.Lock()
	m.activeTx[id] = time.Now()
	m.mu.Unlock()
	return id
}

func (m *Manager) endTx(id string) {
	m.mu.Lock()
	delete(m.activeTx, id)
	m.mu.Unlock()
}

// ActiveTransactionCount reports the number of in-flight compound writes.
func (m *Manager) ActiveTransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeTx)
}

// Shutdown waits briefly for in-flight transactions before closing the
// backend.
func (m *Manager) Shutdown(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if m.ActiveTransactionCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := m.ActiveTransactionCount(); n > 0 {
		m.logger.Warnw("shutting down with transactions still in flight", "count", n)
	}
	return m.backend.Disconnect(ctx)
}

func wrapUnlessTyped(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.Is(err, apperrors.KindValidation) || apperrors.Is(err, apperrors.KindNotFound) ||
		apperrors.Is(err, apperrors.KindDuplicate) || apperrors.Is(err, apperrors.KindBackend) ||
		apperrors.Is(err, apperrors.KindTransaction) || apperrors.Is(err, apperrors.KindPerformance) {
		return err
	}
	return apperrors.Transaction(op, err)
}
