package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository over the appointments table. Calls join the
// transaction carried by ctx, if any.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, user_id, doc_id, slot_date, slot_time, user_data, doc_data,
	amount, date, cancelled, payment, is_completed`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.DocID, &a.SlotDate, &a.SlotTime, &a.UserData, &a.DocData,
		&a.Amount, &a.Date, &a.Cancelled, &a.Payment, &a.IsCompleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	return &a, nil
}

func (r *repoPG) queryList(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	items := make([]*Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (`+apptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.UserID, a.DocID, a.SlotDate, a.SlotTime, a.UserData, a.DocData,
		a.Amount, a.Date, a.Cancelled, a.Payment, a.IsCompleted)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSlotUnavailable
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	return r.queryList(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE user_id = $1 ORDER BY date DESC, id DESC`, userID)
}

func (r *repoPG) ListByDoctor(ctx context.Context, docID string) ([]*Appointment, error) {
	return r.queryList(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE doc_id = $1 ORDER BY date DESC, id DESC`, docID)
}

func (r *repoPG) List(ctx context.Context, p pagination.Params) ([]*Appointment, int, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.queryList(ctx,
		`SELECT `+apptCols+` FROM appointments ORDER BY date DESC, id DESC LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Appointment, error) {
	return r.queryList(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE NOT cancelled ORDER BY date DESC, id DESC`)
}

func (r *repoPG) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup appointment: %w", err)
	}
	return ok, nil
}

func (r *repoPG) MarkCancelled(ctx context.Context, id string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET cancelled = TRUE WHERE id = $1 AND NOT cancelled`, id)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *repoPG) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET is_completed = TRUE WHERE id = $1 AND NOT cancelled`, id)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrCancelled
}

func (r *repoPG) MarkPaid(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET payment = TRUE WHERE id = $1 AND NOT cancelled`, id)
	if err != nil {
		return fmt.Errorf("mark appointment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPayable
	}
	return nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}
