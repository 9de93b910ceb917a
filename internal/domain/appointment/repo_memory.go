package appointment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medibook/medibook/pkg/pagination"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[string]*Appointment)}
}

type slotKey struct{ doc, date, time string }

func (r *memoryRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !a.Cancelled {
		want := slotKey{a.DocID, a.SlotDate, a.SlotTime}
		for _, existing := range r.items {
			if !existing.Cancelled && (slotKey{existing.DocID, existing.SlotDate, existing.SlotTime}) == want {
				return ErrSlotUnavailable
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// filter returns matching copies, newest first.
func (r *memoryRepo) filter(keep func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, a := range r.items {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memoryRepo) ListByUser(_ context.Context, userID string) ([]*Appointment, error) {
	return r.filter(func(a *Appointment) bool { return a.UserID == userID }), nil
}

func (r *memoryRepo) ListByDoctor(_ context.Context, docID string) ([]*Appointment, error) {
	return r.filter(func(a *Appointment) bool { return a.DocID == docID }), nil
}

func (r *memoryRepo) List(_ context.Context, p pagination.Params) ([]*Appointment, int, error) {
	all := r.filter(func(*Appointment) bool { return true })
	start, end := p.Bounds(len(all))
	return all[start:end], len(all), nil
}

func (r *memoryRepo) ListActive(_ context.Context) ([]*Appointment, error) {
	return r.filter(func(a *Appointment) bool { return !a.Cancelled }), nil
}

func (r *memoryRepo) MarkCancelled(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Cancelled {
		return false, nil
	}
	a.Cancelled = true
	return true, nil
}

func (r *memoryRepo) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if a.Cancelled {
		return ErrCancelled
	}
	a.IsCompleted = true
	return nil
}

func (r *memoryRepo) MarkPaid(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok || a.Cancelled {
		return ErrNotPayable
	}
	a.Payment = true
	return nil
}

func (r *memoryRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}
