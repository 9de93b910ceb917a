package patient

import (
	"context"
	"errors"
	"io"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/media"
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in RegisterInput) Validate() error {
	missing := validation.Required.Error("Missing details")
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, missing),
		validation.Field(&in.Email, missing, is.EmailFormat.Error("Invalid email")),
		validation.Field(&in.Password, missing,
			validation.Length(auth.MinPasswordLength, 0).Error("Password must be at least 8 characters long")),
	)
}

// ProfileInput is the editable part of a patient profile.
type ProfileInput struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
	DOB     string  `json:"dob"`
	Gender  string  `json:"gender"`
}

func (in ProfileInput) Validate() error {
	missing := validation.Required.Error("Missing details")
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, missing),
		validation.Field(&in.Phone, missing),
		validation.Field(&in.DOB, missing),
		validation.Field(&in.Gender, missing),
	)
}

type Service struct {
	repo   Repository
	media  media.Store
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(repo Repository, m media.Store, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		media:  m,
		tokens: tokens,
		logger: logger.With().Str("component", "patient").Logger(),
	}
}

// Register creates a patient account and returns a user token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		return "", apperr.FromValidation(err, "name", "email", "password")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", err
	}
	u := &User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	u.applyDefaults()
	if err := s.repo.Create(ctx, u); err != nil {
		return "", err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("patient registered")
	return s.tokens.Issue(u.ID, auth.RoleUser)
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", apperr.Validation("Missing details")
	}
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(u.ID, auth.RoleUser)
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile replaces the profile fields and, when image is non-nil,
// the profile picture.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput, image io.Reader) error {
	if err := in.Validate(); err != nil {
		return apperr.FromValidation(err, "name", "phone", "dob", "gender")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	update := ProfileUpdate{
		Name:    strings.TrimSpace(in.Name),
		Phone:   in.Phone,
		Address: in.Address,
		DOB:     in.DOB,
		Gender:  in.Gender,
	}
	if image != nil {
		url, err := s.media.Save(ctx, "users", image)
		if err != nil {
			return uploadError(err)
		}
		update.Image = url
	}
	if err := s.repo.UpdateProfile(ctx, id, update); err != nil {
		if update.Image != "" {
			if derr := s.media.Delete(context.WithoutCancel(ctx), update.Image); derr != nil {
				s.logger.Warn().Err(derr).Str("image", update.Image).Msg("failed to remove orphaned profile image")
			}
		}
		return err
	}
	return nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, media.ErrInvalidContentType), errors.Is(err, media.ErrEmptyFile):
		return apperr.Validation("Image must be a PNG, JPEG, GIF or WebP file")
	case errors.Is(err, media.ErrFileTooLarge):
		return apperr.Validation("Image exceeds the 5 MB limit")
	default:
		return apperr.Upstream("image upload failed", err)
	}
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
