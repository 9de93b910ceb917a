package appointment

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/domain/doctor"
)

// Finding kinds reported by the ledger audit.
const (
	// FindingStaleReservation is a ledger entry with no active appointment.
	FindingStaleReservation = "stale_reservation"
	// FindingUnreservedAppointment is an active appointment whose slot is
	// missing from the ledger.
	FindingUnreservedAppointment = "unreserved_appointment"
	// FindingDuplicateEntry is a time listed more than once under one date.
	FindingDuplicateEntry = "duplicate_entry"
	// FindingDoubleBooking is a slot held by more than one active appointment.
	FindingDoubleBooking = "double_booking"
)

type Finding struct {
	Kind          string `json:"kind"`
	DoctorID      string `json:"doctorId"`
	SlotDate      string `json:"slotDate"`
	SlotTime      string `json:"slotTime"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

type Report struct {
	CheckedAt    time.Time `json:"checkedAt"`
	Doctors      int       `json:"doctors"`
	Appointments int       `json:"appointments"`
	Findings     []Finding `json:"findings"`
	// Transient counts findings seen on the first pass that were gone on
	// the confirming pass, such as a booking between its reserve and record.
	Transient int `json:"transient"`
}

func (r *Report) Clean() bool { return len(r.Findings) == 0 }

// DoctorLister lists doctors with their ledgers.
type DoctorLister interface {
	List(ctx context.Context) ([]*doctor.Doctor, error)
}

// DefaultSettleDelay is how long the auditor waits before re-checking
// first-pass findings.
const DefaultSettleDelay = 2 * time.Second

// Auditor compares slot ledgers with active appointments. It only reports;
// it never repairs either side.
//
// Ledgers and appointments are read separately, so a booking or cancellation
// in progress can look inconsistent. Findings are therefore confirmed by a
// second pass after the settle delay and only those seen twice are reported.
type Auditor struct {
	doctors DoctorLister
	appts   Repository
	logger  zerolog.Logger
	now     func() time.Time
	settle  time.Duration
}

func NewAuditor(doctors DoctorLister, appts Repository, logger zerolog.Logger) *Auditor {
	return &Auditor{
		doctors: doctors,
		appts:   appts,
		logger:  logger.With().Str("component", "ledger-audit").Logger(),
		now:     time.Now,
		settle:  DefaultSettleDelay,
	}
}

// SetSettleDelay changes the wait before the confirming pass.
func (a *Auditor) SetSettleDelay(d time.Duration) { a.settle = d }

func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	first, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}
	report := first
	if !first.Clean() {
		timer := time.NewTimer(a.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		second, err := a.scan(ctx)
		if err != nil {
			return nil, err
		}
		seen := make(map[Finding]bool, len(first.Findings))
		for _, f := range first.Findings {
			seen[f] = true
		}
		confirmed := make([]Finding, 0, len(second.Findings))
		for _, f := range second.Findings {
			if seen[f] {
				confirmed = append(confirmed, f)
			}
		}
		second.Transient = len(first.Findings) - len(confirmed)
		second.Findings = confirmed
		report = second
	}

	evt := a.logger.Info()
	if !report.Clean() {
		evt = a.logger.Warn()
	}
	evt.Int("doctors", report.Doctors).
		Int("appointments", report.Appointments).
		Int("findings", len(report.Findings)).
		Int("transient", report.Transient).
		Msg("ledger audit finished")
	for _, f := range report.Findings {
		a.logger.Warn().
			Str("kind", f.Kind).
			Str("doctor_id", f.DoctorID).
			Str("slot_date", f.SlotDate).
			Str("slot_time", f.SlotTime).
			Str("appointment_id", f.AppointmentID).
			Msg("ledger inconsistency")
	}
	return report, nil
}

// scan is one unconfirmed pass over ledgers and active appointments.
func (a *Auditor) scan(ctx context.Context) (*Report, error) {
	doctors, err := a.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.appts.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{CheckedAt: a.now().UTC(), Doctors: len(doctors), Appointments: len(active), Findings: []Finding{}}

	booked := make(map[slotKey]string, len(active))
	for _, appt := range active {
		k := slotKey{appt.DocID, appt.SlotDate, appt.SlotTime}
		if _, dup := booked[k]; dup {
			report.Findings = append(report.Findings, Finding{
				Kind: FindingDoubleBooking, DoctorID: k.doc, SlotDate: k.date, SlotTime: k.time, AppointmentID: appt.ID,
			})
			continue
		}
		booked[k] = appt.ID
	}

	ledgers := make(map[string]doctor.Ledger, len(doctors))
	for _, d := range doctors {
		ledgers[d.ID] = d.SlotsBooked
		for _, date := range d.SlotsBooked.Dates() {
			seen := make(map[string]bool)
			for _, t := range d.SlotsBooked[date] {
				if seen[t] {
					report.Findings = append(report.Findings, Finding{
						Kind: FindingDuplicateEntry, DoctorID: d.ID, SlotDate: date, SlotTime: t,
					})
					continue
				}
				seen[t] = true
				if _, ok := booked[slotKey{d.ID, date, t}]; !ok {
					report.Findings = append(report.Findings, Finding{
						Kind: FindingStaleReservation, DoctorID: d.ID, SlotDate: date, SlotTime: t,
					})
				}
			}
		}
	}

	for k, id := range booked {
		if !ledgers[k.doc].Has(k.date, k.time) {
			report.Findings = append(report.Findings, Finding{
				Kind: FindingUnreservedAppointment, DoctorID: k.doc, SlotDate: k.date, SlotTime: k.time, AppointmentID: id,
			})
		}
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		fi, fj := report.Findings[i], report.Findings[j]
		if fi.DoctorID != fj.DoctorID {
			return fi.DoctorID < fj.DoctorID
		}
		if fi.SlotDate != fj.SlotDate {
			return fi.SlotDate < fj.SlotDate
		}
		if fi.SlotTime != fj.SlotTime {
			return fi.SlotTime < fj.SlotTime
		}
		return fi.Kind < fj.Kind
	})
	return report, nil
}
