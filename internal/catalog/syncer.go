// Package catalog keeps the panel's project set in step with the upstream catalog.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skridlevsky/panel-vote/internal/panel"
)

// Reconciler pulls the upstream catalog into the project set
type Reconciler interface {
	Sync(ctx context.Context) (panel.SyncReport, error)
}

// Syncer periodically reconciles the catalog in the background
type Syncer struct {
	reconciler Reconciler
	interval   time.Duration

	// Status tracking for health endpoint
	lastRun    time.Time
	lastReport panel.SyncReport
	status     string
	runs       int
	statusMu   sync.RWMutex

	// Lifecycle
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Status is a snapshot of the syncer for the health endpoint
type Status struct {
	Interval   time.Duration    `json:"-"`
	LastRun    time.Time        `json:"last_run,omitempty"`
	Status     string           `json:"status"`
	Runs       int              `json:"runs"`
	LastReport panel.SyncReport `json:"last_report"`
}

// NewSyncer creates a syncer. A non-positive interval disables the loop.
func NewSyncer(reconciler Reconciler, interval time.Duration) *Syncer {
	status := "idle"
	if interval <= 0 {
		status = "disabled"
	}
	return &Syncer{
		reconciler: reconciler,
		interval:   interval,
		status:     status,
		stopCh:     make(chan struct{}),
	}
}

// Run starts the polling loop. It returns immediately.
func (s *Syncer) Run(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("Catalog syncer disabled")
		return
	}

	slog.Info("Catalog syncer starting", "interval", s.interval)

	s.wg.Add(1)
	go s.poll(ctx)
}

// Stop gracefully shuts down the syncer. Safe to call multiple times.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		slog.Info("Catalog syncer stopped")
	})
}

func (s *Syncer) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sync immediately on startup
	s.SyncOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.SyncOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce runs a single reconciliation and records its outcome
func (s *Syncer) SyncOnce(ctx context.Context) (panel.SyncReport, error) {
	s.statusMu.Lock()
	s.lastRun = time.Now()
	s.status = "running"
	s.statusMu.Unlock()

	report, err := s.reconciler.Sync(ctx)

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.runs++
	if err != nil {
		slog.Error("Catalog sync failed", "error", err)
		s.status = "error: " + err.Error()
		return report, err
	}
	s.status = "ok"
	s.lastReport = report
	return report, nil
}

// Status returns the current syncer status
func (s *Syncer) Status() *Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	return &Status{
		Interval:   s.interval,
		LastRun:    s.lastRun,
		Status:     s.status,
		Runs:       s.runs,
		LastReport: s.lastReport,
	}
}
