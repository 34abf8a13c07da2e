package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	matriculeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// no 0/O, 1/l/I in passwords that are read off a document
	passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	MatriculeSuffixLength   = 6
	TemporaryPasswordLength = 12
)

func randomString(alphabet string, n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// GenerateMatricule returns "<prefix>-<YYYY>-<6 uppercase alphanumerics>".
func GenerateMatricule(prefix string, now time.Time) (string, error) {
	suffix, err := randomString(matriculeAlphabet, MatriculeSuffixLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate matricule: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), suffix), nil
}

// FormatMemberNumber renders a sequence value as "<prefix>-000042".
func FormatMemberNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

func GenerateTemporaryPassword() (string, error) {
	pw, err := randomString(passwordAlphabet, TemporaryPasswordLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return pw, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
