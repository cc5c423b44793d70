package domain

import "github.com/shopspring/decimal"

// PaymentOutcome is the normalized result reported by a provider.
type PaymentOutcome string

const (
	OutcomeSucceeded  PaymentOutcome = "succeeded"
	OutcomeProcessing PaymentOutcome = "processing"
	OutcomeFailed     PaymentOutcome = "failed"
)

// PaymentEvent is a provider notification reduced to what reconciliation needs.
type PaymentEvent struct {
	Provider  PaymentMethod
	EventID   string
	PaymentID string
	OrderID   string
	UserID    string
	CourseID  string
	Outcome   PaymentOutcome
	Amount    *decimal.Decimal
	Raw       []byte
}

// BankDetails are the payee coordinates shown for bank transfers.
type BankDetails struct {
	AccountName string `json:"account_name"`
	IBAN        string `json:"iban"`
	BIC         string `json:"bic"`
	BankName    string `json:"bank_name"`
}

// MinorUnits converts amount to the smallest currency unit, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
