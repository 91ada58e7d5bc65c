package weights

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/ajitpratap0/memereact/internal/metrics"
)

const (
	// DefaultInterval is how often weights are written to the snapshot.
	DefaultInterval = 2 * time.Minute

	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// FlusherOptions tunes the periodic snapshot task.
type FlusherOptions struct {
	Interval time.Duration
	// Attempts is the number of save attempts per flush.
	Attempts int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
}

// Flusher saves the store on a fixed schedule, independent of update
// traffic, and once more when stopped.
type Flusher struct {
	store    *Store
	snap     Snapshotter
	opts     FlusherOptions
	logger   *slog.Logger
	cron     *cron.Cron
	started  bool
	lifeMu   sync.Mutex
	flushMu  sync.Mutex
	savedVer uint64
}

// NewFlusher creates a flusher. The store's current contents are treated as
// already saved, so create it after loading the snapshot.
func NewFlusher(store *Store, snap Snapshotter, opts FlusherOptions, logger *slog.Logger) *Flusher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	cl := cronLogger{logger}
	return &Flusher{
		store:    store,
		snap:     snap,
		opts:     opts,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		savedVer: store.Version(),
	}
}

// Start schedules the periodic flush.
func (f *Flusher) Start() error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	if f.started {
		return nil
	}
	spec := fmt.Sprintf("@every %s", f.opts.Interval)
	if _, err := f.cron.AddFunc(spec, f.tick); err != nil {
		return fmt.Errorf("weights: scheduling flush: %w", err)
	}
	f.cron.Start()
	f.started = true
	f.logger.Info("weight flusher started", "interval", f.opts.Interval)
	return nil
}

func (f *Flusher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.Interval)
	defer cancel()
	if _, err := f.Flush(ctx); err != nil {
		f.logger.Error("periodic weight flush failed; will retry next interval", "error", err)
	}
}

// Stop halts the schedule, waits for a running flush, and performs a final
// flush so no update made before Stop is lost.
func (f *Flusher) Stop(ctx context.Context) error {
	f.lifeMu.Lock()
	if f.started {
		done := f.cron.Stop()
		f.started = false
		f.lifeMu.Unlock()
		select {
		case <-done.Done():
		case <-ctx.Done():
			return fmt.Errorf("weights: waiting for running flush: %w", ctx.Err())
		}
	} else {
		f.lifeMu.Unlock()
	}

	if _, err := f.Flush(ctx); err != nil {
		return fmt.Errorf("weights: final flush: %w", err)
	}
	f.logger.Info("weight flusher stopped")
	return nil
}

// Flush saves the store if it changed since the last successful save. It
// retries failed saves with exponential backoff and reports whether a save
// happened.
func (f *Flusher) Flush(ctx context.Context) (bool, error) {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	if f.store.Version() == f.savedVer {
		return false, nil
	}

	attempt := 0
	var version uint64
	save := func() error {
		attempt++
		v, err := f.store.SaveSnapshot(ctx, f.snap)
		if err != nil {
			metrics.SnapshotFailures.Inc()
			f.logger.Warn("weight flush attempt failed", "attempt", attempt, "error", err)
			return err
		}
		version = v
		return nil
	}
	if err := backoff.Retry(save, f.retryPolicy(ctx)); err != nil {
		return false, err
	}

	f.savedVer = version
	metrics.SnapshotSaves.Inc()
	f.logger.Debug("weights flushed", "entries", f.store.Len(), "version", version)
	return true, nil
}

// retryPolicy allows Attempts saves in total, doubling the delay between
// them from Backoff, and stops early when ctx is done.
func (f *Flusher) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.Attempts-1)), ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
