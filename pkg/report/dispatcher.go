package report

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/wellscope/pkg/domain"
)

// Store is the report persistence the dispatcher drives
type Store interface {
	ClaimPending(ctx context.Context, limit int) ([]domain.Report, error)
	Complete(ctx context.Context, id string, result *Result) error
	Fail(ctx context.Context, id, reason string) error
}

// Runner produces one report, satisfied by the Orchestrator
type Runner interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// DispatcherConfig holds dispatcher tuning
type DispatcherConfig struct {
	PollInterval time.Duration // how often to look for pending reports
	Workers      int           // concurrent report runs
	RunTimeout   time.Duration // per-report deadline
}

// Dispatcher polls the store for pending reports and processes them with a
// bounded worker pool. Claiming flips pending to processing, so a crashed run
// stays visible to operators instead of being silently retried forever.
type Dispatcher struct {
	store  Store
	runner Runner
	cfg    DispatcherConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store Store, runner Runner, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Dispatcher{store: store, runner: runner, cfg: cfg}
}

// Start begins polling, returns immediately
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.pollLoop(ctx)

	lgr.Printf("[INFO] report dispatcher started, poll interval %v, %d workers", d.cfg.PollInterval, d.cfg.Workers)
}

// Stop gracefully stops the dispatcher, waiting for in-flight runs
func (d *Dispatcher) Stop() {
	lgr.Printf("[INFO] stopping report dispatcher...")
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	lgr.Printf("[INFO] report dispatcher stopped")
}

// pollLoop claims and processes pending reports until the context ends
func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	// run immediately on start
	d.processPending(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.processPending(ctx)
		}
	}
}

// processPending claims a batch and runs each report under the worker pool
func (d *Dispatcher) processPending(ctx context.Context) {
	reports, err := d.store.ClaimPending(ctx, d.cfg.Workers)
	if err != nil {
		lgr.Printf("[ERROR] failed to claim pending reports: %v", err)
		return
	}
	if len(reports) == 0 {
		return
	}

	lgr.Printf("[INFO] processing %d pending reports", len(reports))

	sem := make(chan struct{}, d.cfg.Workers)
	var wg sync.WaitGroup

	for _, r := range reports {
		wg.Add(1)
		go func(rep domain.Report) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			d.runReport(ctx, rep)
		}(r)
	}

	wg.Wait()
}

// runReport executes one report and records its terminal state
func (d *Dispatcher) runReport(ctx context.Context, rep domain.Report) {
	lgr.Printf("[DEBUG] running report %s", rep.ID)

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()

	result, err := d.runner.Analyze(runCtx, Request{Token: rep.Token, MaxItems: rep.MaxItems})
	if err != nil {
		lgr.Printf("[WARN] report %s failed: %v", rep.ID, err)
		if storeErr := d.store.Fail(ctx, rep.ID, err.Error()); storeErr != nil {
			lgr.Printf("[ERROR] failed to record failure for report %s: %v", rep.ID, storeErr)
		}
		return
	}

	if err := d.store.Complete(ctx, rep.ID, result); err != nil {
		lgr.Printf("[ERROR] failed to store completed report %s: %v", rep.ID, err)
		return
	}

	lgr.Printf("[INFO] report %s completed with %d insights", rep.ID, len(result.Insights))
}
