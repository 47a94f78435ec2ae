// Package engine orchestrates the signal lifecycle: raw messages enter a
// bounded queue, are deduplicated and classified, gated by risk policy,
// matched to open positions and executed against the configured venue. One
// worker goroutine owns each symbol, so operations on the same symbol
// serialize while distinct symbols proceed in parallel. The portfolio store
// is the only shared mutable state and is never held across broker I/O.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradeagent/pkg/broker"
	"tradeagent/pkg/classify"
	"tradeagent/pkg/intake"
	"tradeagent/pkg/journal"
	"tradeagent/pkg/portfolio"
	"tradeagent/pkg/risk"
	"tradeagent/pkg/signal"
)

// opTimeout bounds one handler's venue round-trips, including retry backoff.
const opTimeout = 30 * time.Second

// ErrStopped is returned by Submit once shutdown has begun.
var ErrStopped = errors.New("engine: stopped")

// Recorder receives a copy of every outcome record alongside the journal.
// The Postgres trade history implements it; a nil recorder disables it.
type Recorder interface {
	Record(ctx context.Context, rec *journal.Record) error
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store      *portfolio.Store
	Venue      broker.Adapter
	Classifier *classify.Classifier
	Risk       risk.Config
	Journal    *journal.Writer
	History    Recorder // optional

	// Logger and Retryer are optional; nil selects the logx-backed logger
	// and a retryer with stock backoff.
	Logger  Logger
	Retryer *broker.Retryer
}

type workItem struct {
	msg intake.Message
	sig signal.Signal
}

// Engine routes classified signals to per-symbol workers and owns the
// process lifecycle: snapshot restore on start, periodic snapshots and
// status reports while running, graceful drain and a final snapshot on stop.
type Engine struct {
	cfg        *Config
	store      *portfolio.Store
	venue      broker.Adapter
	classifier *classify.Classifier
	riskCfg    risk.Config
	journal    *journal.Writer
	history    Recorder
	logger     Logger
	retryer    *broker.Retryer

	queue   chan intake.Message
	workers map[string]chan workItem // touched only by the dispatcher

	stopChan chan struct{}
	stopOnce sync.Once

	workerWg sync.WaitGroup
	bgWg     sync.WaitGroup

	fatalMu  sync.Mutex
	fatalErr error

	nowFn func() time.Time
}

// New constructs an engine. A nil cfg selects defaults.
func New(cfg *Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = Default()
	} else {
		cfg.applyDefaults()
		if err := cfg.parseDurations(); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if deps.Store == nil {
		return nil, errors.New("engine: portfolio store is required")
	}
	if deps.Venue == nil {
		return nil, errors.New("engine: broker adapter is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("engine: classifier is required")
	}
	if deps.Journal == nil {
		return nil, errors.New("engine: journal writer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = NewLogger()
	}
	retryer := deps.Retryer
	if retryer == nil {
		retryer = broker.NewRetryer(broker.RetryConfig{})
	}

	return &Engine{
		cfg:        cfg,
		store:      deps.Store,
		venue:      deps.Venue,
		classifier: deps.Classifier,
		riskCfg:    deps.Risk,
		journal:    deps.Journal,
		history:    deps.History,
		logger:     logger,
		retryer:    retryer,
		queue:      make(chan intake.Message, cfg.QueueSize),
		workers:    make(map[string]chan workItem),
		stopChan:   make(chan struct{}),
		nowFn:      time.Now,
	}, nil
}

// Submit enqueues one raw message. It blocks when the queue is full so
// backpressure reaches the source, and fails once shutdown has begun.
func (e *Engine) Submit(ctx context.Context, msg intake.Message) error {
	select {
	case <-e.stopChan:
		return ErrStopped
	default:
	}
	select {
	case e.queue <- msg:
		return nil
	case <-e.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run restores the last snapshot and processes queued messages until ctx is
// canceled or Stop is called. On the way out it stops intake, waits for
// in-flight workers up to the shutdown grace, and persists a final snapshot.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.restoreSnapshot(ctx); err != nil {
		return err
	}

	e.bgWg.Add(1)
	go e.housekeeping(ctx)

	e.dispatch(ctx)

	e.Stop()
	for _, ch := range e.workers {
		close(ch)
	}
	e.awaitWorkers(ctx)
	e.bgWg.Wait()
	e.saveSnapshot(context.Background())

	if err := e.fatal(); err != nil {
		return err
	}
	return nil
}

// Stop begins shutdown: Submit starts failing and workers stop picking up
// queued work. Safe to call more than once and from any goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}

func (e *Engine) stopped() bool {
	select {
	case <-e.stopChan:
		return true
	default:
		return false
	}
}

// halt records the first fatal error and begins shutdown.
func (e *Engine) halt(err error) {
	e.fatalMu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.fatalMu.Unlock()
	e.Stop()
}

func (e *Engine) fatal() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatalErr
}

func (e *Engine) now() time.Time { return e.nowFn() }

// dispatch consumes the intake queue until shutdown. It owns the worker map.
func (e *Engine) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case msg := <-e.queue:
			e.route(ctx, msg)
		}
	}
}

// route runs the pre-execution pipeline inline: dedup, classification and
// symbol resolution. Unparseable and duplicate messages never reach a
// worker; everything else is handed to the symbol's goroutine.
func (e *Engine) route(ctx context.Context, msg intake.Message) {
	if msg.SourceID != "" && e.store.Seen(msg.SourceID) {
		e.logger.Debug(ctx, "duplicate message skipped", Fields{"source_id": msg.SourceID})
		e.record(ctx, &journal.Record{
			SourceID:    msg.SourceID,
			Disposition: journal.DispositionDuplicate,
			Reason:      "source id already processed",
		})
		return
	}

	sig, err := e.classifier.Classify(ctx, msg)
	if err != nil {
		// Backend failure, not a verdict: leave the id unprocessed so a
		// redelivery can classify again once the backend recovers.
		e.logger.Error(ctx, err, Fields{"source_id": msg.SourceID, "stage": "classify"})
		e.record(ctx, &journal.Record{
			SourceID:    msg.SourceID,
			Kind:        string(sig.Kind),
			Disposition: journal.DispositionFailed,
			Reason:      err.Error(),
		})
		return
	}

	if sig.Kind == signal.KindUnparseable {
		e.logger.Debug(ctx, "message carries no trading intent", Fields{"source_id": msg.SourceID})
		e.finish(ctx, sig, journal.DispositionIgnored, "no trading intent", nil, nil)
		return
	}

	symbol := sig.Symbol
	if symbol == "" && sig.Kind.RequiresPosition() {
		// The message names no instrument. Resolve it against the open set
		// now to pick the owning worker; the worker re-matches under its
		// own serialization before touching anything.
		view := e.store.View(e.now())
		pos, _, err := Match(sig, view.Open)
		if err != nil {
			e.finish(ctx, sig, journal.DispositionRejected, "no_open_position", nil, nil)
			return
		}
		symbol = pos.Symbol
		sig.Symbol = symbol
	}

	select {
	case e.workerFor(symbol) <- workItem{msg: msg, sig: sig}:
	case <-e.stopChan:
	case <-ctx.Done():
	}
}

// workerFor returns the symbol's queue, creating the worker on first use.
func (e *Engine) workerFor(symbol string) chan workItem {
	ch, ok := e.workers[symbol]
	if !ok {
		ch = make(chan workItem, e.cfg.WorkerQueueSize)
		e.workers[symbol] = ch
		e.workerWg.Add(1)
		go e.worker(symbol, ch)
	}
	return ch
}

func (e *Engine) worker(symbol string, ch chan workItem) {
	defer e.workerWg.Done()
	for item := range ch {
		if e.stopped() {
			// Queued but never started: the id stays unprocessed so the
			// next run picks the message up again.
			continue
		}
		e.process(item)
	}
}

// process executes one signal with its own deadline, detached from the run
// context so an in-flight broker call survives shutdown up to the grace.
func (e *Engine) process(item workItem) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Re-check the dedup set inside the serialized worker: a duplicate can
	// slip past the intake check while the original is still in flight.
	if item.sig.SourceID != "" && e.store.Seen(item.sig.SourceID) {
		e.record(ctx, &journal.Record{
			SourceID:    item.sig.SourceID,
			Kind:        string(item.sig.Kind),
			Symbol:      item.sig.Symbol,
			Disposition: journal.DispositionDuplicate,
			Reason:      "source id already processed",
		})
		return
	}

	switch item.sig.Kind {
	case signal.KindEntry:
		e.handleEntry(ctx, item.sig)
	case signal.KindEntryAlert:
		e.handleAlert(ctx, item.sig)
	case signal.KindPartialExit, signal.KindStopMove, signal.KindClose:
		e.handlePositionOp(ctx, item.sig)
	default:
		e.logger.Warn(ctx, "worker received unexpected kind", Fields{
			"source_id": item.sig.SourceID,
			"kind":      item.sig.Kind,
		})
	}
}

// awaitWorkers blocks until every worker drained or the grace period ends.
func (e *Engine) awaitWorkers(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownGrace):
		e.logger.Warn(ctx, "shutdown grace elapsed with workers still busy", Fields{
			"grace": e.cfg.ShutdownGrace,
		})
	}
}

// housekeeping drives the periodic snapshot and the status report.
func (e *Engine) housekeeping(ctx context.Context) {
	defer e.bgWg.Done()

	snapshotTicker := time.NewTicker(e.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()
	statusTicker := time.NewTicker(e.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-snapshotTicker.C:
			e.saveSnapshot(ctx)
		case <-statusTicker.C:
			e.logStatus(ctx)
		}
	}
}

func (e *Engine) restoreSnapshot(ctx context.Context) error {
	snap, err := portfolio.LoadSnapshot(e.cfg.SnapshotPath)
	if err != nil {
		return fmt.Errorf("engine: restore snapshot: %w", err)
	}
	if snap == nil {
		e.logger.Info(ctx, "no snapshot found, starting from empty portfolio", Fields{
			"path": e.cfg.SnapshotPath,
		})
		return nil
	}
	if err := e.store.Restore(snap); err != nil {
		return fmt.Errorf("engine: restore snapshot: %w", err)
	}
	e.logger.Info(ctx, "portfolio snapshot restored", Fields{
		"path":      e.cfg.SnapshotPath,
		"saved_at":  snap.SavedAt,
		"balance":   snap.Balance,
		"positions": len(snap.Positions),
	})
	return nil
}

func (e *Engine) saveSnapshot(ctx context.Context) {
	snap := e.store.Export(e.now())
	if err := portfolio.SaveSnapshot(e.cfg.SnapshotPath, snap); err != nil {
		e.logger.Error(ctx, err, Fields{"path": e.cfg.SnapshotPath})
		return
	}
	e.logger.Debug(ctx, "portfolio snapshot saved", Fields{
		"path":      e.cfg.SnapshotPath,
		"positions": len(snap.Positions),
	})
}

// logStatus emits the periodic portfolio summary line.
func (e *Engine) logStatus(ctx context.Context) {
	view := e.store.View(e.now())
	e.logger.Info(ctx, "portfolio status", Fields{
		"balance":        view.Balance,
		"open_positions": view.OpenCount(),
		"daily_pnl":      view.DailyRealizedPnL,
	})
}

// record writes one journal entry, stamping the timestamp, and forwards it
// to the trade history when one is configured. A history failure is logged
// and never blocks processing; the journal remains the authoritative trail.
func (e *Engine) record(ctx context.Context, rec *journal.Record) {
	rec.Timestamp = e.now()
	if err := e.journal.Write(rec); err != nil {
		e.logger.Error(ctx, err, Fields{"source_id": rec.SourceID})
	}
	if e.history != nil {
		if err := e.history.Record(ctx, rec); err != nil {
			e.logger.Error(ctx, err, Fields{"source_id": rec.SourceID, "stage": "history"})
		}
	}
}
