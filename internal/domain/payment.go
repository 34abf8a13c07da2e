package domain

import "time"

type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "cash"
	PaymentModeMobileMoney  PaymentMode = "mobile_money"
	PaymentModeBankTransfer PaymentMode = "bank_transfer"
	PaymentModeCard         PaymentMode = "card"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeMobileMoney, PaymentModeBankTransfer, PaymentModeCard:
		return true
	}
	return false
}

// MinJustificationLength is the shortest written justification accepted in
// place of an uploaded proof of payment.
const MinJustificationLength = 20

// Payment is immutable once appended to a request.
type Payment struct {
	ID                string      `json:"id"`
	RequestID         string      `json:"request_id"`
	Amount            int64       `json:"amount"` // smallest currency unit; negative only for reversals
	Mode              PaymentMode `json:"mode"`
	PaidAt            time.Time   `json:"paid_at"`
	AcceptedByID      string      `json:"accepted_by_id"`
	AcceptedByName    string      `json:"accepted_by_name"`
	ProofURL          string      `json:"proof_url,omitempty"`
	Justification     string      `json:"justification,omitempty"`
	IsFee             bool        `json:"is_fee"`
	ReversesPaymentID string      `json:"reverses_payment_id,omitempty"`
	IdempotencyKey    string      `json:"idempotency_key,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// PaymentInput is what an admin records at the desk.
type PaymentInput struct {
	Amount            int64       `json:"amount"`
	Mode              PaymentMode `json:"mode"`
	PaidAt            time.Time   `json:"paid_at"`
	ProofURL          string      `json:"proof_url,omitempty"`
	Justification     string      `json:"justification,omitempty"`
	IsFee             bool        `json:"is_fee"`
	ReversesPaymentID string      `json:"reverses_payment_id,omitempty"`
	IdempotencyKey    string      `json:"idempotency_key,omitempty"`
}

// TotalPaid is the signed sum of every recorded payment.
func TotalPaid(payments []Payment) int64 {
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}

// FindPayment returns the payment with the given id.
func FindPayment(payments []Payment, id string) (Payment, bool) {
	for _, p := range payments {
		if p.ID == id {
			return p, true
		}
	}
	return Payment{}, false
}

// FindByIdempotencyKey returns the payment previously recorded under key.
func FindByIdempotencyKey(payments []Payment, key string) (Payment, bool) {
	if key == "" {
		return Payment{}, false
	}
	for _, p := range payments {
		if p.IdempotencyKey == key {
			return p, true
		}
	}
	return Payment{}, false
}
