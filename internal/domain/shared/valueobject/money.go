package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyBRL is the only currency the back office operates in
const CurrencyBRL = "BRL"

// Tolerance is the business tolerance for monetary equality checks.
// Two amounts within one centavo of each other are considered equal.
var Tolerance = decimal.NewFromFloat(0.01)

// Money is an immutable BRL amount. All monetary fields in the domain
// use it; arithmetic stays in decimal space, never float.
type Money struct {
	amount decimal.Decimal
}

// NewMoneyBRL creates Money from a decimal amount
func NewMoneyBRL(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

// NewMoneyBRLFromFloat creates Money from a float64
func NewMoneyBRLFromFloat(amount float64) Money {
	return Money{amount: decimal.NewFromFloat(amount)}
}

// NewMoneyBRLFromString creates Money from a decimal string, the form
// monetary values arrive in over the wire.
func NewMoneyBRLFromString(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return Money{amount: d}, nil
}

// ZeroBRL returns a zero-value Money
func ZeroBRL() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Subtract returns a new Money with the difference
func (m Money) Subtract(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// Equals returns true if both amounts are exactly equal
func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

// EqualsWithinTolerance returns true if both amounts differ by at most
// the business tolerance
func (m Money) EqualsWithinTolerance(other Money) bool {
	return m.amount.Sub(other.amount).Abs().LessThanOrEqual(Tolerance)
}

// IsSettled returns true if the amount is within tolerance of zero
func (m Money) IsSettled() bool {
	return m.amount.LessThanOrEqual(Tolerance)
}

// String returns the amount with two decimal places and the currency
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), CurrencyBRL)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: CurrencyBRL,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Currency != "" && v.Currency != CurrencyBRL {
		return fmt.Errorf("unsupported currency %q", v.Currency)
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.amount = amount
	return nil
}

// Value implements driver.Valuer; stores the bare amount
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}

// Scan implements sql.Scanner for numeric columns
func (m *Money) Scan(value any) error {
	if value == nil {
		m.amount = decimal.Zero
		return nil
	}

	var strVal string
	switch v := value.(type) {
	case string:
		strVal = v
	case []byte:
		strVal = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}

	amount, err := decimal.NewFromString(strVal)
	if err != nil {
		return fmt.Errorf("invalid decimal value: %w", err)
	}
	m.amount = amount
	return nil
}
