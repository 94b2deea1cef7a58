// Package collector is the event collector: a bounded worker pool that
// accepts telemetry events from many concurrent game-playing callers under
// a hard per-call latency budget and applies them to the storage manager
// asynchronously. Producers never block on downstream I/O; a full queue
// sheds load instead.
package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seshuthota/gamearena-store/internal/config"
	"github.com/seshuthota/gamearena-store/internal/monitoring"
	"github.com/seshuthota/gamearena-store/internal/storagemgr"
)

const maxErrorTail = 100

// Collector ingests agent-side events through a bounded queue drained by a
// fixed pool of workers.
type Collector struct {
	manager *storagemgr.Manager
	cfg     config.CollectorConfig
	logger  *zap.SugaredLogger
	metrics *monitoring.Metrics

	queue    chan *Event
	baseCtx  context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	gamesMu     sync.Mutex
	activeMoves map[string]int

	errMu     sync.Mutex
	errorTail []error

	durations *durationWindow

	orphans *orphanBuffer

	eventsReceived  atomic.Int64
	eventsProcessed atomic.Int64
	eventsFailed    atomic.Int64
	eventsRetried   atomic.Int64
	lastUpdated     atomic.Int64 // unix nanos
}

// Snapshot is a point-in-time view of the collector's observable state.
type Snapshot struct {
	EventsReceived  int64
	EventsProcessed int64
	EventsFailed    int64
	EventsRetried   int64
	RecentErrors    []error
	AvgHandlerTime  time.Duration
	QueueDepth      int
	LastUpdated     time.Time
	ActiveGameIDs   []string
}

// Snapshot returns a lock-guarded point-in-time view of the collector's
// counters, recent errors, queue depth, and active-game set.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		EventsReceived:  c.eventsReceived.Load(),
		EventsProcessed: c.eventsProcessed.Load(),
		EventsFailed:    c.eventsFailed.Load(),
		EventsRetried:   c.eventsRetried.Load(),
		RecentErrors:    c.RecentErrors(),
		AvgHandlerTime:  c.AverageHandlerDuration(),
		QueueDepth:      c.QueueDepth(),
		LastUpdated:     time.Unix(0, c.lastUpdated.Load()),
		ActiveGameIDs:   c.ActiveGameIDs(),
	}
}

// Health reports the collector's contribution to the process-wide health
// status, folding in the given backend health indicator.
func (c *Collector) Health(backendHealth string) monitoring.HealthStatus {
	snap := c.Snapshot()
	return c.metrics.Status(float64(snap.QueueDepth), float64(snap.EventsFailed), backendHealth)
}

// ActiveGameIDs returns the set of game ids currently tracked as in-flight
// (started but not yet ended) by this collector.
func (c *Collector) ActiveGameIDs() []string {
	c.gamesMu.Lock()
	defer c.gamesMu.Unlock()
	ids := make([]string, 0, len(c.activeMoves))
	for id := range c.activeMoves {
		ids = append(ids, id)
	}
	return ids
}

// New wires a Collector to its storage manager and configuration.
func New(mgr *storagemgr.Manager, cfg config.CollectorConfig, logger *zap.SugaredLogger) *Collector {
	return &Collector{
		manager:     mgr,
		cfg:         cfg,
		logger:      logger,
		metrics:     monitoring.Global(),
		queue:       make(chan *Event, cfg.QueueSize),
		baseCtx:     context.Background(),
		stop:        make(chan struct{}),
		activeMoves: make(map[string]int),
		durations:   newDurationWindow(1000),
		orphans:     newOrphanBuffer(5 * time.Second),
	}
}

// Start launches the configured worker count plus the orphan sweep ticker.
// ctx is the base context handlers use for storage-manager calls; shutdown
// is signalled separately so queued events can still drain after Stop.
func (c *Collector) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.Info("collector disabled, not starting workers")
		return
	}
	c.baseCtx = ctx

	workers := c.cfg.WorkerThreads
	if workers < 1 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.wg.Add(1)
	go c.sweepOrphans()

	c.logger.Infow("collector started", "workers", workers, "queue_size", c.cfg.QueueSize)
}

// Stop stops accepting new work, waits up to maxWait for in-flight events
// to drain, and abandons the remainder with a warning.
func (c *Collector) Stop(maxWait time.Duration) {
	c.logger.Info("stopping collector")
	c.stopOnce.Do(func() { close(c.stop) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(maxWait):
		c.logger.Warnw("collector shutdown timed out with workers still draining", "max_wait", maxWait)
	}
}

// QueueDepth reports the current number of queued, undispatched events.
func (c *Collector) QueueDepth() int {
	return len(c.queue)
}

// enqueue attempts a bounded-wait send, the ceiling enforced via
// context.WithTimeout over the enqueue attempt itself, not the downstream
// storage-manager call.
func (c *Collector) enqueue(ev *Event) (bool, error) {
	if !c.cfg.Enabled {
		return false, nil
	}
	if err := ev.Validate(); err != nil {
		return false, err
	}

	if !c.cfg.AsyncProcessing {
		// synchronous mode: the producer call path absorbs the storage
		// write itself; no queue, no workers
		c.metrics.EventsIngested.Inc()
		c.eventsReceived.Add(1)
		c.processSync(ev)
		return true, nil
	}

	ceiling := time.Duration(c.cfg.MaxCollectionLatencyMS) * time.Millisecond
	timeoutCtx, cancel := context.WithTimeout(context.Background(), ceiling)
	defer cancel()

	select {
	case c.queue <- ev:
		c.metrics.EventsIngested.Inc()
		c.metrics.CollectorQueueDepth.Set(float64(len(c.queue)))
		c.eventsReceived.Add(1)
		c.lastUpdated.Store(time.Now().UnixNano())
		return true, nil
	case <-timeoutCtx.Done():
		c.metrics.EventsLoadShed.Inc()
		if c.cfg.ContinueOnCollectionError {
			return false, nil
		}
		return false, context.DeadlineExceeded
	case <-c.stop:
		return false, context.Canceled
	}
}

func (c *Collector) worker(id int) {
	defer c.wg.Done()
	c.logger.Infow("collector worker started", "worker", id)

	for {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				return
			}
			c.process(ev)
		case <-c.stop:
			// drain whatever is already queued before exiting
			for {
				select {
				case ev := <-c.queue:
					c.process(ev)
				default:
					return
				}
			}
		}
	}
}

// runHandler dispatches one event, records its duration in the rolling
// window and metrics, and warns when the duration exceeds the configured
// latency ceiling.
func (c *Collector) runHandler(ev *Event) error {
	start := time.Now()
	err := c.dispatch(ev)
	elapsed := time.Since(start)

	c.durations.record(elapsed)
	c.metrics.HandlerDuration.WithLabelValues(string(ev.Kind)).Observe(elapsed.Seconds())
	c.lastUpdated.Store(time.Now().UnixNano())

	if ceiling := time.Duration(c.cfg.MaxCollectionLatencyMS) * time.Millisecond; elapsed > ceiling {
		c.logger.Warnw("event handler exceeded latency ceiling", "event_id", ev.ID, "kind", ev.Kind, "elapsed", elapsed, "ceiling", ceiling)
	}
	return err
}

func (c *Collector) process(ev *Event) {
	err := c.runHandler(ev)
	if err == nil {
		c.metrics.EventsProcessed.Inc()
		c.eventsProcessed.Add(1)
		return
	}

	if ev.RetryCount < c.cfg.MaxRetryAttempts {
		ev.RetryCount++
		c.metrics.EventsRetried.Inc()
		c.eventsRetried.Add(1)
		delay := time.Duration(c.cfg.RetryDelaySeconds * float64(time.Second))
		time.Sleep(delay)
		select {
		case c.queue <- ev:
		default:
			c.recordFailure(ev, err)
		}
		return
	}
	c.recordFailure(ev, err)
}

// processSync runs an event to completion on the producer's own goroutine,
// retrying inline since no worker will ever pick a re-enqueued event up in
// synchronous mode.
func (c *Collector) processSync(ev *Event) {
	for {
		err := c.runHandler(ev)
		if err == nil {
			c.metrics.EventsProcessed.Inc()
			c.eventsProcessed.Add(1)
			return
		}
		if ev.RetryCount >= c.cfg.MaxRetryAttempts {
			c.recordFailure(ev, err)
			return
		}
		ev.RetryCount++
		c.metrics.EventsRetried.Inc()
		c.eventsRetried.Add(1)
		time.Sleep(time.Duration(c.cfg.RetryDelaySeconds * float64(time.Second)))
	}
}

func (c *Collector) recordFailure(ev *Event, err error) {
	c.metrics.EventsFailed.Inc()
	c.eventsFailed.Add(1)
	c.logger.Warnw("event processing failed permanently", "event_id", ev.ID, "kind", ev.Kind, "game_id", ev.GameID, "error", err)

	c.errMu.Lock()
	c.errorTail = append(c.errorTail, err)
	if len(c.errorTail) > maxErrorTail {
		c.errorTail = c.errorTail[len(c.errorTail)-maxErrorTail:]
	}
	c.errMu.Unlock()
}

// RecentErrors returns a snapshot of the bounded error tail.
func (c *Collector) RecentErrors() []error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	out := make([]error, len(c.errorTail))
	copy(out, c.errorTail)
	return out
}

// AverageHandlerDuration reports the running average over the most recent
// samples (default window size 1000).
func (c *Collector) AverageHandlerDuration() time.Duration {
	return c.durations.average()
}

func (c *Collector) dispatch(ev *Event) error {
	switch ev.Kind {
	case KindGameStart:
		return c.handleGameStart(ev)
	case KindMoveMade:
		return c.handleMoveMade(ev)
	case KindGameEnd:
		return c.handleGameEnd(ev)
	case KindRethinkAttempt:
		return c.handleRethinkAttempt(ev)
	case KindErrorOccurred:
		return c.handleErrorOccurred(ev)
	default:
		return nil
	}
}

func (c *Collector) handleGameStart(ev *Event) error {
	p := ev.Payload.(gameStartPayload)
	_, err := c.manager.CreateGame(c.baseCtx, p.Game)
	if err != nil {
		return err
	}
	c.gamesMu.Lock()
	c.activeMoves[ev.GameID] = 0
	c.gamesMu.Unlock()
	return nil
}

func (c *Collector) handleMoveMade(ev *Event) error {
	p := ev.Payload.(movePayload)
	if _, err := c.manager.AddMove(c.baseCtx, p.Move); err != nil {
		return err
	}
	c.gamesMu.Lock()
	c.activeMoves[ev.GameID]++
	c.gamesMu.Unlock()

	if c.cfg.CollectRethinkData {
		for _, a := range c.orphans.take(ev.GameID, p.Move.MoveNumber, p.Move.Player) {
			if _, err := c.manager.AddRethinkAttempt(c.baseCtx, ev.GameID, p.Move.MoveNumber, p.Move.Player, a); err != nil {
				c.logger.Warnw("replaying buffered rethink attempt failed", "game_id", ev.GameID, "error", err)
			}
		}
	}
	return nil
}

func (c *Collector) handleGameEnd(ev *Event) error {
	p := ev.Payload.(gameEndPayload)
	if _, err := c.manager.CompleteGame(c.baseCtx, ev.GameID, p.Outcome, p.FinalFEN, p.TotalMoves); err != nil {
		return err
	}
	c.gamesMu.Lock()
	delete(c.activeMoves, ev.GameID)
	c.gamesMu.Unlock()
	return nil
}

func (c *Collector) handleRethinkAttempt(ev *Event) error {
	if !c.cfg.CollectRethinkData {
		return nil
	}
	p := ev.Payload.(rethinkPayload)
	outcome, err := c.manager.AddRethinkAttempt(c.baseCtx, ev.GameID, p.MoveNumber, p.Player, p.Attempt)
	if err != nil {
		return err
	}
	if outcome == storagemgr.RethinkOrphaned {
		c.orphans.add(ev.GameID, p.MoveNumber, p.Player, p.Attempt)
	}
	return nil
}

func (c *Collector) handleErrorOccurred(ev *Event) error {
	p := ev.Payload.(errorPayload)
	c.logger.Warnw("game reported an error", "game_id", ev.GameID, "kind", p.Kind, "message", p.Message, "context", p.Context)
	return nil
}

func (c *Collector) sweepOrphans() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if dropped := c.orphans.sweep(time.Now()); dropped > 0 {
				c.metrics.OrphanRethinksDropped.Add(float64(dropped))
				c.logger.Warnw("dropped buffered rethink attempts past TTL", "count", dropped)
			}
		case <-c.stop:
			return
		}
	}
}
