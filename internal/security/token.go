package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"membership-backend/internal/domain"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAdmin      TokenType = "admin"
	TokenTypeCorrection TokenType = "correction"
)

const issuer = "membership-backend"

// Claims are shared by admin access tokens and correction-session tokens.
// RequestID and Code are only set on correction sessions.
type Claims struct {
	AdminID   string    `json:"admin_id,omitempty"`
	AdminName string    `json:"admin_name,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Code      string    `json:"code,omitempty"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

type TokenManager interface {
	GenerateAdminToken(admin domain.AdminIdentity, ttl time.Duration) (string, error)
	GenerateCorrectionToken(requestID, code string, ttl time.Duration) (string, error)
	ValidateAdminToken(tokenString string) (*Claims, error)
	ValidateCorrectionToken(tokenString, requestID string) (*Claims, error)
}

type tokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret string) TokenManager {
	return &tokenManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (m *tokenManager) sign(claims Claims, subject, audience string, ttl time.Duration) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// GenerateAdminToken refuses placeholder identities so no token can ever
// carry one into a decision record.
func (m *tokenManager) GenerateAdminToken(admin domain.AdminIdentity, ttl time.Duration) (string, error) {
	if err := admin.Validate("admin"); err != nil {
		return "", err
	}
	return m.sign(Claims{AdminID: admin.ID, AdminName: admin.Name, Type: TokenTypeAdmin}, admin.ID, "admin-console", ttl)
}

func (m *tokenManager) GenerateCorrectionToken(requestID, code string, ttl time.Duration) (string, error) {
	return m.sign(Claims{RequestID: requestID, Code: code, Type: TokenTypeCorrection}, requestID, "applicant-portal", ttl)
}

func (m *tokenManager) parse(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (m *tokenManager) ValidateAdminToken(tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString, "admin-console")
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAdmin {
		return nil, ErrWrongTokenType
	}
	if err := claims.Admin().Validate("admin"); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateCorrectionToken also checks that the session was opened for
// requestID.
func (m *tokenManager) ValidateCorrectionToken(tokenString, requestID string) (*Claims, error) {
	claims, err := m.parse(tokenString, "applicant-portal")
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeCorrection {
		return nil, ErrWrongTokenType
	}
	if claims.RequestID != requestID || claims.Code == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) Admin() domain.AdminIdentity {
	return domain.AdminIdentity{ID: c.AdminID, Name: c.AdminName}
}
