package appointment

import (
	"context"

	"github.com/medibook/medibook/pkg/pagination"
)

// Repository persists appointments. Lists are newest first.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	ListByUser(ctx context.Context, userID string) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, docID string) ([]*Appointment, error)
	List(ctx context.Context, p pagination.Params) ([]*Appointment, int, error)
	// ListActive returns every non-cancelled appointment.
	ListActive(ctx context.Context) ([]*Appointment, error)
	// MarkCancelled sets cancelled on an active appointment and reports
	// whether this call changed it.
	MarkCancelled(ctx context.Context, id string) (bool, error)
	// MarkCompleted sets isCompleted unless the appointment is cancelled.
	MarkCompleted(ctx context.Context, id string) error
	// MarkPaid sets payment unless the appointment is cancelled.
	MarkPaid(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
