package ledger

import "github.com/google/uuid"

// InconsistencyType classifies detected drift between derived and
// stored state
type InconsistencyType string

const (
	InconsistencyMissingTransaction   InconsistencyType = "MISSING_TRANSACTION"
	InconsistencyDuplicateTransaction InconsistencyType = "DUPLICATE_TRANSACTION"
	InconsistencyAmountMismatch       InconsistencyType = "AMOUNT_MISMATCH"
	InconsistencyStatusMismatch       InconsistencyType = "STATUS_MISMATCH"
)

// EntityType identifies which record an inconsistency refers to
type EntityType string

const (
	EntityTypeOrder         EntityType = "ORDER"
	EntityTypeCreditAccount EntityType = "CREDIT_ACCOUNT"
)

// Severity ranks how urgently an inconsistency needs attention
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Inconsistency is a transient drift record produced by a scan. It is
// never persisted.
type Inconsistency struct {
	Type          InconsistencyType `json:"type"`
	EntityType    EntityType        `json:"entity_type"`
	EntityID      uuid.UUID         `json:"entity_id"`
	Description   string            `json:"description"`
	ExpectedValue string            `json:"expected_value"`
	ActualValue   string            `json:"actual_value"`
	Severity      Severity          `json:"severity"`
}

// IsAutoFixable returns true for the drift categories the remediator is
// allowed to correct. Duplicate transactions and order-level amount
// mismatches require human judgment and are surfaced only.
func (i Inconsistency) IsAutoFixable() bool {
	switch {
	case i.Type == InconsistencyMissingTransaction:
		return true
	case i.Type == InconsistencyAmountMismatch && i.EntityType == EntityTypeCreditAccount:
		return true
	case i.Type == InconsistencyStatusMismatch && i.EntityType == EntityTypeCreditAccount:
		return true
	}
	return false
}
