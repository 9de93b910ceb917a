package doctor

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.RWMutex
	doctors map[string]*Doctor
	order   []string
}

// NewMemoryStore returns a Store that keeps doctors in process memory.
func NewMemoryStore() Store {
	return &memoryStore{doctors: make(map[string]*Doctor)}
}

func clone(d *Doctor) *Doctor {
	cp := *d
	cp.SlotsBooked = d.SlotsBooked.Clone()
	return &cp
}

func (s *memoryStore) Create(_ context.Context, d *Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.doctors {
		if strings.EqualFold(existing.Email, d.Email) {
			return ErrEmailTaken
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = Ledger{}
	}
	s.doctors[d.ID] = clone(d)
	s.order = append(s.order, d.ID)
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

func (s *memoryStore) GetByEmail(_ context.Context, email string) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.doctors {
		if strings.EqualFold(d.Email, email) {
			return clone(d), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) List(_ context.Context) ([]*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Doctor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.doctors[id]))
	}
	return out, nil
}

func (s *memoryStore) UpdateProfile(_ context.Context, id string, p ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return ErrNotFound
	}
	d.Fees = p.Fees
	d.Address = p.Address
	d.About = p.About
	d.Available = p.Available
	return nil
}

func (s *memoryStore) ToggleAvailability(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return false, ErrNotFound
	}
	d.Available = !d.Available
	return d.Available, nil
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doctors), nil
}

func (s *memoryStore) ReserveSlot(_ context.Context, doctorID, date, time string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[doctorID]
	if !ok {
		return ErrNotFound
	}
	if !d.Available {
		return ErrUnavailable
	}
	if d.SlotsBooked.Has(date, time) {
		return ErrSlotUnavailable
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = Ledger{}
	}
	d.SlotsBooked[date] = append(d.SlotsBooked[date], time)
	return nil
}

func (s *memoryStore) ReleaseSlot(_ context.Context, doctorID, date, time string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[doctorID]
	if !ok {
		return ErrNotFound
	}
	times, ok := d.SlotsBooked[date]
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(times))
	for _, t := range times {
		if t != time {
			kept = append(kept, t)
		}
	}
	d.SlotsBooked[date] = kept
	return nil
}
