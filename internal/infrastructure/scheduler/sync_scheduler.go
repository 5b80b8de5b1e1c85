package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgerapp "github.com/varejo/backend/internal/application/ledger"
	"github.com/varejo/backend/internal/domain/ledger"
)

// ReconciliationSchedulerConfig holds configuration for the periodic
// reconciliation job
type ReconciliationSchedulerConfig struct {
	// Enabled indicates if the scheduler starts with the process
	Enabled bool
	// Interval is the time between sync runs
	Interval time.Duration
	// JobTimeout is the maximum time a single sync run can take
	JobTimeout time.Duration
}

// DefaultReconciliationSchedulerConfig returns default configuration
func DefaultReconciliationSchedulerConfig() ReconciliationSchedulerConfig {
	return ReconciliationSchedulerConfig{
		Enabled:    true,
		Interval:   30 * time.Minute,
		JobTimeout: 10 * time.Minute,
	}
}

// Validate validates the configuration
func (c *ReconciliationSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// JobResult is the record of a single sync run. Only the most recent
// result is retained, in process memory.
type JobResult struct {
	Success              bool          `json:"success"`
	JobID                string        `json:"job_id"`
	StartTime            time.Time     `json:"start_time"`
	EndTime              time.Time     `json:"end_time"`
	Duration             time.Duration `json:"duration"`
	InconsistenciesFound int           `json:"inconsistencies_found"`
	OrdersSynced         int           `json:"orders_synced"`
	PaymentsSynced       int           `json:"payments_synced"`
	FixesApplied         int           `json:"fixes_applied"`
	Errors               []string      `json:"errors"`
	Message              string        `json:"message"`
}

// SyncStatus is the scheduler's externally visible state
type SyncStatus struct {
	IsRunning     bool          `json:"is_running"`
	LastJobResult *JobResult    `json:"last_job_result"`
	Uptime        time.Duration `json:"uptime"`
}

// DetailedStats is a live aggregate over a fresh drift scan. It is
// recomputed on every call, never served from cache.
type DetailedStats struct {
	TotalInconsistencies int                              `json:"total_inconsistencies"`
	BySeverity           map[ledger.Severity]int          `json:"by_severity"`
	ByType               map[ledger.InconsistencyType]int `json:"by_type"`
	GeneratedAt          time.Time                        `json:"generated_at"`
}

// ReconciliationScheduler drives the periodic scan/backfill/remediate
// cycle. It composes the drift scanner, event processor and remediator;
// none of those depend on each other.
type ReconciliationScheduler struct {
	config     ReconciliationSchedulerConfig
	scanner    *ledgerapp.DriftScanner
	processor  *ledgerapp.EventProcessor
	remediator *ledgerapp.Remediator
	clock      Clock
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	startedAt time.Time

	resultMu      sync.RWMutex
	lastJobResult *JobResult
}

// NewReconciliationScheduler creates a new scheduler
func NewReconciliationScheduler(
	config ReconciliationSchedulerConfig,
	scanner *ledgerapp.DriftScanner,
	processor *ledgerapp.EventProcessor,
	remediator *ledgerapp.Remediator,
	clock Clock,
	logger *zap.Logger,
) (*ReconciliationScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReconciliationScheduler{
		config:     config,
		scanner:    scanner,
		processor:  processor,
		remediator: remediator,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Start runs one sync immediately, then on the configured interval.
// Idempotent: a no-op when already running or when the scheduler is
// disabled by configuration.
func (s *ReconciliationScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("reconciliation scheduler disabled, periodic sync will not run")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.startedAt = s.clock.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("reconciliation scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels future ticks. An in-flight run is not interrupted: jobs
// execute on their own timeout context, detached from the loop's.
func (s *ReconciliationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("reconciliation scheduler stop timed out")
		return ctx.Err()
	}
}

// loop runs the first sync immediately and then on every tick
func (s *ReconciliationScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.RunSyncJob(ctx)

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.RunSyncJob(ctx)
		}
	}
}

// RunSyncJob executes one reconciliation cycle: drift scan, historical
// backfill, then remediation over the pre-backfill inconsistency list.
// The list is deliberately not re-scanned after the backfill; the
// backfill may already have resolved some items, and every remediation
// action is idempotent, so remediating against the stale list is
// redundant but harmless.
//
// RunSyncJob is total: it never returns an error or panics to the
// caller, making it safe to drive from an unattended timer. The result
// overwrites the previous one; no history is retained.
func (s *ReconciliationScheduler) RunSyncJob(ctx context.Context) (result *JobResult) {
	// Jobs run on their own timeout, detached from the scheduler
	// loop's context, so Stop only prevents future ticks.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	result = &JobResult{
		JobID:     fmt.Sprintf("sync-%s", uuid.New()),
		StartTime: start,
		Success:   true,
		Errors:    []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("panic during sync run: %v", r))
			result.Message = "sync run aborted"
			s.logger.Error("panic during sync run", zap.Any("panic", r), zap.String("job_id", result.JobID))
		}
		result.EndTime = s.clock.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		s.storeResult(result)
		s.logger.Info("sync job finished",
			zap.String("job_id", result.JobID),
			zap.Bool("success", result.Success),
			zap.Int("inconsistencies_found", result.InconsistenciesFound),
			zap.Int("orders_synced", result.OrdersSynced),
			zap.Int("payments_synced", result.PaymentsSynced),
			zap.Int("fixes_applied", result.FixesApplied),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration),
		)
	}()

	s.logger.Info("sync job started", zap.String("job_id", result.JobID))

	inconsistencies, err := s.scanner.DetectInconsistencies(jobCtx)
	if err != nil {
		// A failed scan is the one condition that fails the whole run:
		// without the pre-backfill list neither reporting nor
		// remediation is meaningful.
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("drift scan failed: %v", err))
		result.Message = "sync run aborted: drift scan failed"
		return result
	}
	result.InconsistenciesFound = len(inconsistencies)

	backfill, err := s.processor.SyncHistoricalData(jobCtx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("historical sync failed: %v", err))
	} else {
		result.OrdersSynced = backfill.OrdersSynced
		result.PaymentsSynced = backfill.PaymentsSynced
		result.Errors = append(result.Errors, backfill.Errors...)
	}

	fixes := s.remediator.FixCriticalInconsistencies(jobCtx, inconsistencies)
	result.FixesApplied = fixes.Fixed
	result.Errors = append(result.Errors, fixes.Errors...)

	result.Message = fmt.Sprintf("found %d inconsistencies, backfilled %d orders and %d payments, applied %d fixes",
		result.InconsistenciesFound, result.OrdersSynced, result.PaymentsSynced, result.FixesApplied)
	return result
}

func (s *ReconciliationScheduler) storeResult(result *JobResult) {
	s.resultMu.Lock()
	s.lastJobResult = result
	s.resultMu.Unlock()
}

// GetStatus returns the scheduler state and the most recent job result
func (s *ReconciliationScheduler) GetStatus() SyncStatus {
	s.mu.Lock()
	isRunning := s.isRunning
	startedAt := s.startedAt
	s.mu.Unlock()

	var uptime time.Duration
	if isRunning {
		uptime = s.clock.Now().Sub(startedAt)
	}

	s.resultMu.RLock()
	last := s.lastJobResult
	s.resultMu.RUnlock()

	return SyncStatus{
		IsRunning:     isRunning,
		LastJobResult: last,
		Uptime:        uptime,
	}
}

// GetDetailedStats recomputes live aggregate counts from a fresh drift
// scan
func (s *ReconciliationScheduler) GetDetailedStats(ctx context.Context) (*DetailedStats, error) {
	inconsistencies, err := s.scanner.DetectInconsistencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	stats := &DetailedStats{
		TotalInconsistencies: len(inconsistencies),
		BySeverity:           make(map[ledger.Severity]int),
		ByType:               make(map[ledger.InconsistencyType]int),
		GeneratedAt:          s.clock.Now(),
	}
	for _, inc := range inconsistencies {
		stats.BySeverity[inc.Severity]++
		stats.ByType[inc.Type]++
	}
	return stats, nil
}
