package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
)

var (
	ErrInvalidCredentials = apperr.Unauthorized("Invalid credentials")
	ErrMissingDetails     = apperr.Validation("Missing details")
)

// Service signs in the single configured administrator. There is no admin
// table; the credential comes from configuration.
type Service struct {
	cred   auth.AdminCredential
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(cred auth.AdminCredential, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{cred: cred, tokens: tokens, logger: logger.With().Str("component", "admin").Logger()}
}

// Login checks email and password against the configured credential and
// returns an admin token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", ErrMissingDetails
	}
	ok, err := s.cred.Verify(email, password)
	if errors.Is(err, auth.ErrAdminNotConfigured) {
		s.logger.Warn().Msg("admin login attempted but no admin credential is configured")
		return "", ErrInvalidCredentials
	}
	if !ok {
		s.logger.Info().Str("email", email).Msg("admin login rejected")
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(auth.AdminSubject, auth.RoleAdmin)
}
