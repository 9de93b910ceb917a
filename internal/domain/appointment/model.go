package appointment

import (
	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
)

// Appointment is a booking of one doctor slot by one patient. Records are
// never deleted; cancellation only sets Cancelled.
type Appointment struct {
	ID          string           `json:"_id"`
	UserID      string           `json:"userId"`
	DocID       string           `json:"docId"`
	SlotDate    string           `json:"slotDate"`
	SlotTime    string           `json:"slotTime"`
	UserData    patient.Snapshot `json:"userData"`
	DocData     doctor.Snapshot  `json:"docData"`
	Amount      float64          `json:"amount"`
	Date        int64            `json:"date"`
	Cancelled   bool             `json:"cancelled"`
	Payment     bool             `json:"payment"`
	IsCompleted bool             `json:"isCompleted"`
}

// Active reports whether the appointment still holds its slot.
func (a *Appointment) Active() bool { return !a.Cancelled }

// Dashboard is the admin overview.
type Dashboard struct {
	Doctors            int            `json:"doctors"`
	Appointments       int            `json:"appointments"`
	Patients           int            `json:"patients"`
	LatestAppointments []*Appointment `json:"latestAppointments"`
}

// DoctorDashboard is a doctor's overview of their own practice.
type DoctorDashboard struct {
	Earnings           float64        `json:"earnings"`
	Appointments       int            `json:"appointments"`
	Patients           int            `json:"patients"`
	LatestAppointments []*Appointment `json:"latestAppointments"`
}
