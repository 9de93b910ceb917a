package doctor

import (
	"sort"
)

// Address is a two-line postal address.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Ledger maps a date key ("D_M_YYYY") to the times booked on that date, in
// booking order. A date whose last time was released keeps an empty list.
type Ledger map[string][]string

// Has reports whether time is booked on date.
func (l Ledger) Has(date, time string) bool {
	for _, t := range l[date] {
		if t == time {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = append([]string{}, v...)
	}
	return out
}

// Dates returns the date keys in lexical order.
func (l Ledger) Dates() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Doctor struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Image        string  `json:"image"`
	Specialty    string  `json:"specialty"`
	Degree       string  `json:"degree"`
	Experience   string  `json:"experience"`
	About        string  `json:"about"`
	Fees         float64 `json:"fees"`
	Address      Address `json:"address"`
	Available    bool    `json:"available"`
	// Date is the creation time in milliseconds since the epoch.
	Date        int64  `json:"date"`
	SlotsBooked Ledger `json:"slots_booked"`
}

// Public is the doctor as listed to anonymous visitors: no email, no
// credential.
type Public struct {
	ID          string  `json:"_id"`
	Name        string  `json:"name"`
	Image       string  `json:"image"`
	Specialty   string  `json:"specialty"`
	Degree      string  `json:"degree"`
	Experience  string  `json:"experience"`
	About       string  `json:"about"`
	Fees        float64 `json:"fees"`
	Address     Address `json:"address"`
	Available   bool    `json:"available"`
	SlotsBooked Ledger  `json:"slots_booked"`
}

func (d *Doctor) Public() Public {
	slots := d.SlotsBooked
	if slots == nil {
		slots = Ledger{}
	}
	return Public{
		ID:          d.ID,
		Name:        d.Name,
		Image:       d.Image,
		Specialty:   d.Specialty,
		Degree:      d.Degree,
		Experience:  d.Experience,
		About:       d.About,
		Fees:        d.Fees,
		Address:     d.Address,
		Available:   d.Available,
		SlotsBooked: slots,
	}
}

// Snapshot is the copy of a doctor embedded in an appointment at booking
// time. It never carries the credential or the live slot ledger.
type Snapshot struct {
	ID         string  `json:"_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Image      string  `json:"image"`
	Specialty  string  `json:"specialty"`
	Degree     string  `json:"degree"`
	Experience string  `json:"experience"`
	About      string  `json:"about"`
	Fees       float64 `json:"fees"`
	Address    Address `json:"address"`
}

func (d *Doctor) Snapshot() Snapshot {
	return Snapshot{
		ID:         d.ID,
		Name:       d.Name,
		Email:      d.Email,
		Image:      d.Image,
		Specialty:  d.Specialty,
		Degree:     d.Degree,
		Experience: d.Experience,
		About:      d.About,
		Fees:       d.Fees,
		Address:    d.Address,
	}
}
