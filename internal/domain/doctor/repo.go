package doctor

import "context"

// Repository persists doctor records. No method writes SlotsBooked; the
// ledger changes only through LedgerStore.
type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	List(ctx context.Context) ([]*Doctor, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error
	// ToggleAvailability flips Available atomically and returns the new value.
	ToggleAvailability(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// LedgerStore performs the only writes to a doctor's slot ledger. Each call
// is a single conditional update scoped to one (doctor, date) entry.
type LedgerStore interface {
	// ReserveSlot appends time under date when the doctor exists, is
	// available and time is not yet booked on date. It fails with
	// ErrNotFound, ErrUnavailable or ErrSlotUnavailable.
	ReserveSlot(ctx context.Context, doctorID, date, time string) error
	// ReleaseSlot removes time from date. Releasing an absent time is a
	// no-op; the only failure is ErrNotFound.
	ReleaseSlot(ctx context.Context, doctorID, date, time string) error
}

// Store is implemented by every backend.
type Store interface {
	Repository
	LedgerStore
}

// ProfileUpdate carries the fields a doctor may edit on their own record.
type ProfileUpdate struct {
	Fees      float64
	Address   Address
	About     string
	Available bool
}
