package doctor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/cache"
	"github.com/medibook/medibook/internal/platform/media"
)

const publicListKey = "doctors:public"

var ErrImageRequired = apperr.Validation("Image not selected")

// CreateInput is what the admin submits to add a doctor.
type CreateInput struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Specialty  string  `json:"specialty"`
	Degree     string  `json:"degree"`
	Experience string  `json:"experience"`
	About      string  `json:"about"`
	Fees       float64 `json:"fees"`
	Address    Address `json:"address"`
}

func positive(value interface{}) error {
	if f, _ := value.(float64); f <= 0 {
		return errors.New("Fees must be a positive amount")
	}
	return nil
}

func (in CreateInput) Validate() error {
	missing := validation.Required.Error("Missing details")
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, missing),
		validation.Field(&in.Email, missing, is.EmailFormat.Error("Enter a valid email")),
		validation.Field(&in.Password, missing,
			validation.Length(auth.MinPasswordLength, 0).Error("Enter a valid password")),
		validation.Field(&in.Specialty, missing),
		validation.Field(&in.Degree, missing),
		validation.Field(&in.Experience, missing),
		validation.Field(&in.About, missing),
		validation.Field(&in.Fees, missing, validation.By(positive)),
		validation.Field(&in.Address, validation.By(func(interface{}) error {
			if strings.TrimSpace(in.Address.Line1) == "" {
				return errors.New("Missing details")
			}
			return nil
		})),
	)
}

var createFieldOrder = []string{"name", "email", "password", "specialty", "degree", "experience", "about", "fees", "address"}

// ProfileInput is what a doctor may change on their own profile.
type ProfileInput struct {
	Fees      float64 `json:"fees"`
	Address   Address `json:"address"`
	About     string  `json:"about"`
	Available bool    `json:"available"`
}

type Service struct {
	store    Repository
	cache    cache.Cache
	cacheTTL time.Duration
	media    media.Store
	tokens   *auth.TokenIssuer
	logger   zerolog.Logger
	now      func() time.Time
	// listGen is bumped by every invalidation. A list load that overlaps one
	// does not fill the cache.
	listGen atomic.Uint64
}

func NewService(store Repository, c cache.Cache, cacheTTL time.Duration, m media.Store, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		media:    m,
		tokens:   tokens,
		logger:   logger.With().Str("component", "doctor").Logger(),
		now:      time.Now,
	}
}

// Create validates the input, stores the image and inserts an available
// doctor with an empty ledger.
func (s *Service) Create(ctx context.Context, in CreateInput, image io.Reader) (*Doctor, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		return nil, apperr.FromValidation(err, createFieldOrder...)
	}
	if image == nil {
		return nil, ErrImageRequired
	}

	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	imageURL, err := s.media.Save(ctx, "doctors", image)
	if err != nil {
		return nil, uploadError(err)
	}

	d := &Doctor{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		Image:        imageURL,
		Specialty:    in.Specialty,
		Degree:       in.Degree,
		Experience:   in.Experience,
		About:        in.About,
		Fees:         in.Fees,
		Address:      in.Address,
		Available:    true,
		Date:         s.now().UnixMilli(),
		SlotsBooked:  Ledger{},
	}
	if err := s.store.Create(ctx, d); err != nil {
		s.discardImage(ctx, imageURL)
		return nil, err
	}
	s.InvalidateList(ctx)
	s.logger.Info().Str("doctor_id", d.ID).Str("specialty", d.Specialty).Msg("doctor added")
	return d, nil
}

// discardImage removes an upload whose doctor record was never written.
func (s *Service) discardImage(ctx context.Context, url string) {
	if err := s.media.Delete(context.WithoutCancel(ctx), url); err != nil {
		s.logger.Warn().Err(err).Str("image", url).Msg("failed to remove orphaned doctor image")
	}
}

// uploadError maps media failures onto the error taxonomy.
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

func (s *Service) Get(ctx context.Context, id string) (*Doctor, error) {
	return s.store.GetByID(ctx, id)
}

// ListAll returns every doctor for the admin panel.
func (s *Service) ListAll(ctx context.Context) ([]*Doctor, error) {
	return s.store.List(ctx)
}

// ListPublic returns the public projection, served from the cache when warm.
func (s *Service) ListPublic(ctx context.Context) ([]Public, error) {
	var cached []Public
	ok, err := cache.GetJSON(ctx, s.cache, publicListKey, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Msg("doctor list cache read failed")
	}
	if ok {
		return cached, nil
	}

	gen := s.listGen.Load()
	doctors, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Public, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, d.Public())
	}
	if s.listGen.Load() != gen {
		return out, nil
	}
	if err := cache.SetJSON(ctx, s.cache, publicListKey, out, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("doctor list cache write failed")
	}
	return out, nil
}

// InvalidateList drops the cached public list. It is called after any change
// visible in it, including slot ledger changes. Loads running in this process
// when it is called skip their cache fill; fills from other instances are
// bounded by the cache TTL.
func (s *Service) InvalidateList(ctx context.Context) {
	s.listGen.Add(1)
	if err := s.cache.Delete(ctx, publicListKey); err != nil {
		s.logger.Warn().Err(err).Msg("doctor list cache invalidation failed")
	}
}

func (s *Service) ToggleAvailability(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.Validation("Missing details")
	}
	available, err := s.store.ToggleAvailability(ctx, id)
	if err != nil {
		return false, err
	}
	s.InvalidateList(ctx)
	s.logger.Info().Str("doctor_id", id).Bool("available", available).Msg("availability changed")
	return available, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Fees, validation.Required.Error("Missing details"), validation.By(positive)),
	)
	if err != nil {
		return apperr.FromValidation(err)
	}
	if err := s.store.UpdateProfile(ctx, id, ProfileUpdate(in)); err != nil {
		return err
	}
	s.InvalidateList(ctx)
	return nil
}

// Login checks the doctor's credentials and issues a doctor token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", apperr.Validation("Missing details")
	}
	d, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !auth.CheckPassword(d.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(d.ID, auth.RoleDoctor)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
