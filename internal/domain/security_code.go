package domain

import "time"

// VerifyResult is the outcome of checking a candidate correction code.
type VerifyResult string

const (
	VerifyValid           VerifyResult = "valid"
	VerifyCodeIncorrect   VerifyResult = "code_incorrect"
	VerifyCodeExpired     VerifyResult = "code_expired"
	VerifyCodeAlreadyUsed VerifyResult = "code_already_used"
)

// Err maps a non-valid result onto the error taxonomy; Valid maps to nil.
func (v VerifyResult) Err() error {
	switch v {
	case VerifyValid:
		return nil
	case VerifyCodeExpired:
		return ErrCodeExpired
	case VerifyCodeAlreadyUsed:
		return ErrCodeAlreadyUsed
	default:
		return ErrCodeIncorrect
	}
}

// IssuedCode is returned to the admin when a correction code is (re)issued.
type IssuedCode struct {
	Code         string    `json:"code"`
	Expiry       time.Time `json:"expiry"`
	Message      string    `json:"message,omitempty"`
	WhatsAppLink string    `json:"whatsapp_link,omitempty"`
}
