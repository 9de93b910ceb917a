package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/internal/platform/notification"
	"github.com/medibook/medibook/internal/platform/payment"
	"github.com/medibook/medibook/pkg/pagination"
)

const latestLimit = 5

var (
	ErrNotOwner     = apperr.New(apperr.KindForbidden, "Appointment does not belong to you")
	ErrAlreadyPaid  = apperr.New(apperr.KindConflict, "Appointment already paid")
	ErrOrderUnknown = apperr.New(apperr.KindNotFound, "Payment order not found")
)

// DoctorReader is the part of the doctor store the booking flow reads.
type DoctorReader interface {
	GetByID(ctx context.Context, id string) (*doctor.Doctor, error)
	Count(ctx context.Context) (int, error)
}

type PatientReader interface {
	GetByID(ctx context.Context, id string) (*patient.User, error)
	Count(ctx context.Context) (int, error)
}

// ListInvalidator drops cached doctor listings that embed the ledger.
type ListInvalidator interface {
	InvalidateList(ctx context.Context)
}

type Deps struct {
	Appointments Repository
	Doctors      DoctorReader
	Patients     PatientReader
	Ledger       doctor.LedgerStore
	// Tx defaults to db.NoTx.
	Tx       db.TxRunner
	Lists    ListInvalidator
	Payments payment.Processor
	Currency string
	// Notifier is optional.
	Notifier *notification.Notifier
	Logger   zerolog.Logger
}

type Service struct {
	repo     Repository
	doctors  DoctorReader
	patients PatientReader
	engine   *SlotEngine
	tx       db.TxRunner
	lists    ListInvalidator
	payments payment.Processor
	currency string
	notifier *notification.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	tx := d.Tx
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		repo:     d.Appointments,
		doctors:  d.Doctors,
		patients: d.Patients,
		engine:   NewSlotEngine(d.Ledger),
		tx:       tx,
		lists:    d.Lists,
		payments: d.Payments,
		currency: d.Currency,
		notifier: d.Notifier,
		logger:   d.Logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

// Engine exposes the slot engine backing the service.
func (s *Service) Engine() *SlotEngine { return s.engine }

// Book reserves the slot and records the appointment as one unit. If the
// appointment cannot be recorded the reservation is released before the
// error is returned, so no reservation outlives a failed booking.
func (s *Service) Book(ctx context.Context, userID, docID, date, slotTime string) (*Appointment, error) {
	if userID == "" || docID == "" || date == "" || slotTime == "" {
		return nil, apperr.Validation("Missing details")
	}
	slot, err := ParseSlot(date, slotTime)
	if err != nil {
		return nil, err
	}

	doc, err := s.doctors.GetByID(ctx, docID)
	if errors.Is(err, doctor.ErrNotFound) {
		return nil, ErrDoctorUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !doc.Available {
		return nil, ErrDoctorUnavailable
	}

	var appt *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.engine.Reserve(ctx, docID, slot); err != nil {
			return err
		}
		a, err := s.record(ctx, userID, doc, slot)
		if err != nil {
			s.compensate(ctx, docID, slot)
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateLists(ctx)
	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("doctor_id", docID).
		Str("user_id", userID).
		Str("slot_date", slot.Date).
		Str("slot_time", slot.Time).
		Msg("appointment booked")
	s.notify(notification.TemplateAppointmentBooked, appt)
	return appt, nil
}

// record snapshots the patient and doctor into a new appointment.
func (s *Service) record(ctx context.Context, userID string, doc *doctor.Doctor, slot Slot) (*Appointment, error) {
	user, err := s.patients.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	a := &Appointment{
		UserID:   userID,
		DocID:    doc.ID,
		SlotDate: slot.Date,
		SlotTime: slot.Time,
		UserData: user.Snapshot(),
		DocData:  doc.Snapshot(),
		Amount:   doc.Fees,
		Date:     s.now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// compensate undoes a reservation whose appointment was not recorded. Inside
// a database transaction the rollback discards it instead.
func (s *Service) compensate(ctx context.Context, docID string, slot Slot) {
	if db.TxFromContext(ctx) != nil {
		return
	}
	if err := s.engine.Release(context.WithoutCancel(ctx), docID, slot); err != nil {
		s.logger.Error().Err(err).
			Str("doctor_id", docID).
			Str("slot_date", slot.Date).
			Str("slot_time", slot.Time).
			Msg("failed to release reservation after booking failure")
	}
}

// Cancel cancels the user's own appointment.
func (s *Service) Cancel(ctx context.Context, userID, appointmentID string) error {
	a, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrForbidden
	}
	return s.cancel(ctx, a, "user")
}

// AdminCancel cancels any appointment.
func (s *Service) AdminCancel(ctx context.Context, appointmentID string) error {
	a, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	return s.cancel(ctx, a, "admin")
}

// DoctorCancel cancels an appointment with the doctor.
func (s *Service) DoctorCancel(ctx context.Context, doctorID, appointmentID string) error {
	a, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.DocID != doctorID {
		return ErrForbidden
	}
	return s.cancel(ctx, a, "doctor")
}

func (s *Service) load(ctx context.Context, appointmentID string) (*Appointment, error) {
	if appointmentID == "" {
		return nil, apperr.Validation("Missing details")
	}
	return s.repo.GetByID(ctx, appointmentID)
}

// cancel marks a cancelled and frees its slot. Only the call that flips the
// flag releases, so repeated cancels never touch the ledger.
func (s *Service) cancel(ctx context.Context, a *Appointment, by string) error {
	slot := Slot{Date: a.SlotDate, Time: a.SlotTime}
	var changed bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		changed, err = s.repo.MarkCancelled(ctx, a.ID)
		if err != nil || !changed {
			return err
		}
		err = s.engine.Release(ctx, a.DocID, slot)
		if errors.Is(err, ErrDoctorNotFound) {
			s.logger.Warn().Str("doctor_id", a.DocID).Msg("releasing slot of unknown doctor")
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.invalidateLists(ctx)
	s.logger.Info().
		Str("appointment_id", a.ID).
		Str("doctor_id", a.DocID).
		Str("cancelled_by", by).
		Msg("appointment cancelled")
	a.Cancelled = true
	s.notify(notification.TemplateAppointmentCancelled, a)
	return nil
}

// Complete marks the doctor's appointment as completed.
func (s *Service) Complete(ctx context.Context, doctorID, appointmentID string) error {
	a, err := s.load(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.DocID != doctorID {
		return ErrNotOwner
	}
	if err := s.repo.MarkCompleted(ctx, a.ID); err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", a.ID).Str("doctor_id", doctorID).Msg("appointment completed")
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Appointment, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

func (s *Service) List(ctx context.Context, p pagination.Params) ([]*Appointment, int, error) {
	return s.repo.List(ctx, p)
}

// Dashboard summarizes the whole clinic for the admin.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	doctors, err := s.doctors.Count(ctx)
	if err != nil {
		return nil, err
	}
	patients, err := s.patients.Count(ctx)
	if err != nil {
		return nil, err
	}
	latest, total, err := s.repo.List(ctx, pagination.New(latestLimit, 0))
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Doctors:            doctors,
		Appointments:       total,
		Patients:           patients,
		LatestAppointments: latest,
	}, nil
}

// DoctorDashboard summarizes one doctor's appointments. Earnings count
// appointments that were completed or paid.
func (s *Service) DoctorDashboard(ctx context.Context, doctorID string) (*DoctorDashboard, error) {
	appts, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	dash := &DoctorDashboard{Appointments: len(appts)}
	patients := make(map[string]struct{})
	for _, a := range appts {
		if a.IsCompleted || a.Payment {
			dash.Earnings += a.Amount
		}
		patients[a.UserID] = struct{}{}
	}
	dash.Patients = len(patients)
	if len(appts) > latestLimit {
		appts = appts[:latestLimit]
	}
	dash.LatestAppointments = appts
	return dash, nil
}

// CreatePaymentOrder opens a processor order for the fee of the user's
// active appointment. The order receipt is the appointment id.
func (s *Service) CreatePaymentOrder(ctx context.Context, userID, appointmentID string) (*payment.Order, error) {
	a, err := s.load(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotPayable
	}
	if err != nil {
		return nil, err
	}
	if a.Cancelled {
		return nil, ErrNotPayable
	}
	if a.UserID != userID {
		return nil, ErrNotOwner
	}
	if a.Payment {
		return nil, ErrAlreadyPaid
	}

	order, err := s.payments.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(math.Round(a.Amount * 100)),
		Currency: s.currency,
		Receipt:  a.ID,
	})
	if err != nil {
		return nil, apperr.Upstream("payment provider unavailable", err)
	}
	s.logger.Info().Str("appointment_id", a.ID).Str("order_id", order.ID).Msg("payment order created")
	return order, nil
}

// VerifyPayment marks the appointment behind a paid order as paid.
func (s *Service) VerifyPayment(ctx context.Context, userID, orderID string) error {
	if orderID == "" {
		return apperr.Validation("Missing details")
	}
	order, err := s.payments.FetchOrder(ctx, orderID)
	if errors.Is(err, payment.ErrOrderNotFound) {
		return ErrOrderUnknown
	}
	if err != nil {
		return apperr.Upstream("payment provider unavailable", err)
	}
	if !order.Paid() {
		return ErrPaymentNotCompleted
	}

	a, err := s.repo.GetByID(ctx, order.Receipt)
	if errors.Is(err, ErrNotFound) {
		return ErrNotPayable
	}
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrNotOwner
	}
	if err := s.repo.MarkPaid(ctx, a.ID); err != nil {
		return err
	}

	s.logger.Info().Str("appointment_id", a.ID).Str("order_id", order.ID).Msg("payment verified")
	a.Payment = true
	s.notify(notification.TemplatePaymentReceived, a)
	return nil
}

func (s *Service) invalidateLists(ctx context.Context) {
	if s.lists != nil {
		s.lists.InvalidateList(ctx)
	}
}

func (s *Service) notify(templateID string, a *Appointment) {
	if s.notifier == nil || a.UserData.Email == "" {
		return
	}
	s.notifier.NotifyAsync(templateID, a.UserData.Email, map[string]string{
		"patient_name": a.UserData.Name,
		"doctor_name":  a.DocData.Name,
		"specialty":    a.DocData.Specialty,
		"slot_date":    displayDate(a.SlotDate),
		"slot_time":    a.SlotTime,
		"amount":       fmt.Sprintf("%.2f %s", a.Amount, s.currency),
	})
}

// displayDate renders a date key as "5 Aug 2024".
func displayDate(key string) string {
	t, err := ParseDateKey(key)
	if err != nil {
		return key
	}
	return t.Format("2 Jan 2006")
}
