package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/medibook/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

// NewStorePG returns a Store over the doctors table. Calls join the
// transaction carried by ctx, if any.
func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (r *storePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, email, password_hash, image, specialty, degree, experience,
	about, fees, address, available, date, slots_booked`

func (r *storePG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.Image, &d.Specialty,
		&d.Degree, &d.Experience, &d.About, &d.Fees, &d.Address, &d.Available, &d.Date, &d.SlotsBooked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = Ledger{}
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *storePG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = Ledger{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (`+doctorCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.Name, d.Email, d.PasswordHash, d.Image, d.Specialty, d.Degree, d.Experience,
		d.About, d.Fees, d.Address, d.Available, d.Date, d.SlotsBooked)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *storePG) GetByID(ctx context.Context, id string) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *storePG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE lower(email) = lower($1)`, email))
}

func (r *storePG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *storePG) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET fees = $2, address = $3, about = $4, available = $5
		WHERE id = $1`,
		id, p.Fees, p.Address, p.About, p.Available)
	if err != nil {
		return fmt.Errorf("update doctor profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storePG) ToggleAvailability(ctx context.Context, id string) (bool, error) {
	var available bool
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE doctors SET available = NOT available WHERE id = $1 RETURNING available`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle availability: %w", err)
	}
	return available, nil
}

func (r *storePG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count doctors: %w", err)
	}
	return n, nil
}

// ReserveSlot appends in one statement. Under concurrent reservations the
// row lock serializes writers and the WHERE clause is re-checked against the
// latest row, so a time can never be appended twice.
func (r *storePG) ReserveSlot(ctx context.Context, doctorID, date, time string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors
		SET slots_booked = jsonb_set(
			slots_booked,
			ARRAY[$2::text],
			COALESCE(slots_booked -> $2::text, '[]'::jsonb) || to_jsonb($3::text),
			true)
		WHERE id = $1
			AND available
			AND NOT (COALESCE(slots_booked -> $2::text, '[]'::jsonb) ? $3::text)`,
		doctorID, date, time)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var available, booked bool
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT available, COALESCE(slots_booked -> $2::text, '[]'::jsonb) ? $3::text
		FROM doctors WHERE id = $1`,
		doctorID, date, time).Scan(&available, &booked)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("reserve slot: %w", err)
	case !available:
		return ErrUnavailable
	default:
		return ErrSlotUnavailable
	}
}

func (r *storePG) ReleaseSlot(ctx context.Context, doctorID, date, time string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors
		SET slots_booked = jsonb_set(
			slots_booked,
			ARRAY[$2::text],
			COALESCE((
				SELECT jsonb_agg(e.v ORDER BY e.i)
				FROM jsonb_array_elements(slots_booked -> $2::text) WITH ORDINALITY AS e(v, i)
				WHERE e.v <> to_jsonb($3::text)
			), '[]'::jsonb))
		WHERE id = $1 AND slots_booked ? $2::text`,
		doctorID, date, time)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
