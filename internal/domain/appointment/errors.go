package appointment

import (
	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/apperr"
)

// Ledger failures surfaced by the engine.
var (
	ErrSlotUnavailable   = doctor.ErrSlotUnavailable
	ErrDoctorUnavailable = doctor.ErrUnavailable
	ErrDoctorNotFound    = doctor.ErrNotFound
)

var (
	ErrNotFound            = apperr.New(apperr.KindNotFound, "Appointment not found")
	ErrForbidden           = apperr.New(apperr.KindForbidden, "You cannot cancel this appointment")
	ErrNotPayable          = apperr.New(apperr.KindNotFound, "Appointment cancelled or not found")
	ErrPaymentNotCompleted = apperr.New(apperr.KindConflict, "Payment Failed")
	ErrCancelled           = apperr.New(apperr.KindConflict, "Appointment is cancelled")
	ErrInvalidSlotDate     = apperr.New(apperr.KindValidation, "Invalid slot date")
	ErrInvalidSlotTime     = apperr.New(apperr.KindValidation, "Invalid slot time")
)
