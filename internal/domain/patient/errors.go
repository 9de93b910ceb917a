package patient

import "github.com/medibook/medibook/internal/platform/apperr"

var (
	ErrNotFound           = apperr.New(apperr.KindNotFound, "User does not exist")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "User already exists")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid credentials")
)
