package doctor

import "github.com/medibook/medibook/internal/platform/apperr"

var (
	ErrNotFound           = apperr.New(apperr.KindNotFound, "Doctor not found")
	ErrUnavailable        = apperr.New(apperr.KindDoctorUnavailable, "Doctor is not available")
	ErrSlotUnavailable    = apperr.New(apperr.KindConflict, "Slot not available")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "A doctor with this email already exists")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid credentials")
)
