package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/varejo/backend/internal/domain/ledger"
)

// FixReport summarizes a remediation pass
type FixReport struct {
	Fixed  int      `json:"fixed"`
	Errors []string `json:"errors"`
}

// Remediator applies corrective writes for the drift categories that
// have an unambiguous correct value. Duplicate transactions and
// order-level amount mismatches are surfaced only: picking which
// duplicate to keep, or rewriting a monetary mismatch that might
// reflect a legitimate price change, requires human judgment.
type Remediator struct {
	processor *EventProcessor
	accounts  ledger.CreditAccountRepository
	logger    *zap.Logger
}

// NewRemediator creates a new remediator
func NewRemediator(processor *EventProcessor, accounts ledger.CreditAccountRepository, logger *zap.Logger) *Remediator {
	return &Remediator{
		processor: processor,
		accounts:  accounts,
		logger:    logger,
	}
}

// FixCriticalInconsistencies iterates the given list and applies the
// defined corrective action for each auto-fixable item. Items are
// handled independently: a failure is logged and collected but never
// blocks the rest. All actions are idempotent, so re-running over a
// stale list is harmless.
func (r *Remediator) FixCriticalInconsistencies(ctx context.Context, inconsistencies []ledger.Inconsistency) *FixReport {
	report := &FixReport{Errors: []string{}}

	for _, inc := range inconsistencies {
		if !inc.IsAutoFixable() {
			continue
		}

		var err error
		switch {
		case inc.Type == ledger.InconsistencyMissingTransaction:
			_, err = r.processor.ProcessOrderConfirmation(ctx, inc.EntityID)
		case inc.Type == ledger.InconsistencyAmountMismatch && inc.EntityType == ledger.EntityTypeCreditAccount:
			err = r.fixRemainingAmount(ctx, inc)
		case inc.Type == ledger.InconsistencyStatusMismatch && inc.EntityType == ledger.EntityTypeCreditAccount:
			err = r.fixStatus(ctx, inc)
		}

		if err != nil {
			r.logger.Warn("failed to remediate inconsistency",
				zap.String("type", string(inc.Type)),
				zap.String("entity_type", string(inc.EntityType)),
				zap.String("entity_id", inc.EntityID.String()),
				zap.Error(err),
			)
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s %s: %v", inc.Type, inc.EntityType, inc.EntityID, err))
			continue
		}

		r.logger.Info("inconsistency remediated",
			zap.String("type", string(inc.Type)),
			zap.String("entity_type", string(inc.EntityType)),
			zap.String("entity_id", inc.EntityID.String()),
		)
		report.Fixed++
	}

	return report
}

// fixRemainingAmount force-writes the remaining amount back to the
// invariant-derived value max(0, total - paid).
func (r *Remediator) fixRemainingAmount(ctx context.Context, inc ledger.Inconsistency) error {
	account, err := r.accounts.FindByID(ctx, inc.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load credit account: %w", err)
	}
	account.RemainingAmount = account.ExpectedRemainingAmount()
	if err := r.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update credit account: %w", err)
	}
	return nil
}

// fixStatus force-writes the status back to the invariant-derived value
func (r *Remediator) fixStatus(ctx context.Context, inc ledger.Inconsistency) error {
	account, err := r.accounts.FindByID(ctx, inc.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load credit account: %w", err)
	}
	account.Status = account.ExpectedStatus()
	if err := r.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update credit account: %w", err)
	}
	return nil
}
