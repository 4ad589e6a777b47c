package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginDisabled      = errors.New("operator login is not configured")
)

// Operator is the single account allowed to request tokens.
type Operator struct {
	Email        string
	PasswordHash string
	TenantID     string
	RoleName     string
}

type Service struct {
	secret   string
	ttl      time.Duration
	operator Operator
	logger   *slog.Logger
}

func NewService(secret string, ttl time.Duration, operator Operator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if operator.RoleName == "" {
		operator.RoleName = RolePayrollAdmin
	}
	return &Service{secret: secret, ttl: ttl, operator: operator, logger: logger}
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	TenantID  string    `json:"tenantId"`
	Role      string    `json:"role"`
}

// Login checks the operator credentials and issues a signed token for the
// operator's tenant.
func (s *Service) Login(_ context.Context, email, password string) (Token, error) {
	if s.operator.Email == "" || s.operator.PasswordHash == "" {
		return Token{}, ErrLoginDisabled
	}
	email = strings.TrimSpace(strings.ToLower(email))
	emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(strings.ToLower(s.operator.Email))) == 1
	passwordErr := CheckPassword(s.operator.PasswordHash, password)
	if !emailMatch || passwordErr != nil {
		s.logger.Warn("operator login rejected", "email", email)
		return Token{}, ErrInvalidCredentials
	}

	expires := time.Now().Add(s.ttl)
	token, err := GenerateToken(s.secret, Claims{
		UserID:   email,
		TenantID: s.operator.TenantID,
		RoleName: s.operator.RoleName,
	}, s.ttl)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: token, ExpiresAt: expires, TenantID: s.operator.TenantID, Role: s.operator.RoleName}, nil
}

func (s *Service) Parse(token string) (UserContext, error) {
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		return UserContext{}, err
	}
	return claims.User(), nil
}
