package service

import (
	"strings"
	"time"
	"unicode/utf8"

	"membership-backend/internal/domain"

	"github.com/google/uuid"
)

type paymentLedger struct {
	fee int64
}

func NewPaymentLedger(fee int64) PaymentLedger {
	return &paymentLedger{fee: fee}
}

func (l *paymentLedger) Fee() int64 { return l.fee }

// IsPaid reports whether the signed sum of payments covers the fee.
func (l *paymentLedger) IsPaid(payments []domain.Payment) bool {
	return domain.TotalPaid(payments) >= l.fee
}

// Append validates in and returns a copy of req with the payment appended
// and IsPaid recomputed. req itself is never modified.
func (l *paymentLedger) Append(req *domain.MembershipRequest, in domain.PaymentInput, admin domain.AdminIdentity, now time.Time) (*domain.MembershipRequest, error) {
	if err := admin.Validate("accepted_by"); err != nil {
		return nil, err
	}
	if !in.Mode.Valid() {
		return nil, domain.NewValidationError("mode", "unknown payment mode")
	}
	if err := l.validateAmount(req, in); err != nil {
		return nil, err
	}

	proof := strings.TrimSpace(in.ProofURL)
	justification := strings.TrimSpace(in.Justification)
	if proof == "" && utf8.RuneCountInString(justification) < domain.MinJustificationLength {
		return nil, domain.NewValidationError("proof", "attach a proof of payment or write a justification of at least 20 characters")
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	next := req.Clone()
	next.Payments = append(next.Payments, domain.Payment{
		ID:                uuid.New().String(),
		RequestID:         req.ID,
		Amount:            in.Amount,
		Mode:              in.Mode,
		PaidAt:            paidAt.UTC(),
		AcceptedByID:      admin.ID,
		AcceptedByName:    admin.Name,
		ProofURL:          proof,
		Justification:     justification,
		IsFee:             in.IsFee,
		ReversesPaymentID: in.ReversesPaymentID,
		IdempotencyKey:    in.IdempotencyKey,
		CreatedAt:         now,
	})
	next.IsPaid = l.IsPaid(next.Payments)
	return next, nil
}

// validateAmount accepts positive amounts, and negative amounts only as a
// reversal of an existing positive payment that is not already fully reversed.
func (l *paymentLedger) validateAmount(req *domain.MembershipRequest, in domain.PaymentInput) error {
	switch {
	case in.Amount == 0:
		return domain.NewValidationError("amount", "amount must be greater than zero")
	case in.Amount > 0:
		if in.ReversesPaymentID != "" {
			return domain.NewValidationError("amount", "a reversal must carry a negative amount")
		}
		return nil
	}

	if in.ReversesPaymentID == "" {
		return domain.NewValidationError("amount", "amount must be greater than zero")
	}
	original, ok := domain.FindPayment(req.Payments, in.ReversesPaymentID)
	if !ok || original.Amount <= 0 {
		return domain.NewValidationError("reverses_payment_id", "no payment to reverse with this id")
	}
	var reversed int64
	for _, p := range req.Payments {
		if p.ReversesPaymentID == original.ID {
			reversed += -p.Amount
		}
	}
	if reversed-in.Amount > original.Amount {
		return domain.NewValidationError("amount", "reversal exceeds the remaining amount of the original payment")
	}
	return nil
}
