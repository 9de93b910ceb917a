package appointment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medibook/medibook/internal/domain/doctor"
)

// DateKey formats t as a ledger date key: day_month_year without leading
// zeros, e.g. 5_8_2024.
func DateKey(t time.Time) string {
	return fmt.Sprintf("%d_%d_%d", t.Day(), int(t.Month()), t.Year())
}

// ParseDateKey parses a canonical date key. Leading zeros, out-of-range
// components and dates that do not exist (31_2_2024) are rejected.
func ParseDateKey(key string) (time.Time, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return time.Time{}, ErrInvalidSlotDate
	}
	var nums [3]int
	for i, p := range parts {
		if p == "" || p[0] == '0' {
			return time.Time{}, ErrInvalidSlotDate
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return time.Time{}, ErrInvalidSlotDate
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if month > 12 || day > 31 || year < 1000 || year > 9999 {
		return time.Time{}, ErrInvalidSlotDate
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, ErrInvalidSlotDate
	}
	return t, nil
}

// timeLayouts are tried in order; all input is upper-cased first.
var timeLayouts = []string{"03:04 PM", "3:04 PM", "03:04PM", "3:04PM", "15:04"}

// CanonicalTime normalizes a slot time to "hh:mm AM|PM". 24-hour input
// ("14:00") and a missing leading zero ("9:30 am") are accepted.
func CanonicalTime(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("03:04 PM"), nil
		}
	}
	return "", ErrInvalidSlotTime
}

// Slot is a validated (date, time) pair in canonical form.
type Slot struct {
	Date string
	Time string
}

// ParseSlot validates a date key and canonicalizes the time.
func ParseSlot(date, slotTime string) (Slot, error) {
	if _, err := ParseDateKey(date); err != nil {
		return Slot{}, err
	}
	t, err := CanonicalTime(slotTime)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Date: date, Time: t}, nil
}

// SlotEngine is the only writer of doctor slot ledgers. Each operation is a
// single conditional write on one (doctor, date) entry.
type SlotEngine struct {
	ledger doctor.LedgerStore
}

func NewSlotEngine(ledger doctor.LedgerStore) *SlotEngine {
	return &SlotEngine{ledger: ledger}
}

// Reserve books slot for the doctor. It fails with ErrDoctorNotFound,
// ErrDoctorUnavailable or ErrSlotUnavailable and leaves the ledger unchanged
// on failure.
func (e *SlotEngine) Reserve(ctx context.Context, doctorID string, slot Slot) error {
	return e.ledger.ReserveSlot(ctx, doctorID, slot.Date, slot.Time)
}

// Release frees slot. Releasing a slot that is not booked is a no-op.
func (e *SlotEngine) Release(ctx context.Context, doctorID string, slot Slot) error {
	return e.ledger.ReleaseSlot(ctx, doctorID, slot.Date, slot.Time)
}
