package pgdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/showgrid/seatbooking/internal/domain"
	"github.com/showgrid/seatbooking/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

// Repository owns all durable state: shows, bookings, seat assignments and
// the outbox. The reservation engine is its only writer for bookings and
// seat assignments.
type Repository struct {
	pool        *pgxpool.Pool
	stmtTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, stmtTimeout time.Duration) *Repository {
	return &Repository{pool: pool, stmtTimeout: stmtTimeout}
}

// WithTx runs fn inside one SERIALIZABLE transaction. The transaction is the
// unit of mutual exclusion between racing reservation attempts: the
// check-then-insert inside fn is conflict-serializable against every other
// call, and the partial unique index on active seat assignments is the
// commit-time backstop. A bounded statement timeout keeps lock waits finite.
// Serialization failures (pg code 40001) surface as
// domain.ErrSerializationFailure so callers can signal a retryable conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}
	if r.stmtTimeout > 0 {
		q := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", r.stmtTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, q); err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}
	return nil
}

func (r *Repository) CreateShow(ctx context.Context, show *domain.Show) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shows (id, name, start_time, total_seats)
		VALUES ($1, $2, $3, $4)
	`, show.ID, show.Name, show.StartTime, show.TotalSeats)
	return err
}

func (r *Repository) GetShow(ctx context.Context, id uuid.UUID) (*domain.Show, error) {
	var show domain.Show
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, start_time, total_seats, created_at
		FROM shows WHERE id = $1
	`, id).Scan(&show.ID, &show.Name, &show.StartTime, &show.TotalSeats, &show.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}

func (r *Repository) ListShows(ctx context.Context) ([]domain.Show, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, start_time, total_seats, created_at
		FROM shows ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shows := make([]domain.Show, 0)
	for rows.Next() {
		var s domain.Show
		if err := rows.Scan(&s.ID, &s.Name, &s.StartTime, &s.TotalSeats, &s.CreatedAt); err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

// OccupiedSeats returns the seat numbers of showID that belong to a booking
// in PENDING or CONFIRMED status, restricted to the requested seats when the
// slice is non-empty. Inside a reserve transaction tx is the transaction
// handle; the availability read passes tx == nil and runs on the pool.
func (r *Repository) OccupiedSeats(ctx context.Context, tx pgx.Tx, showID uuid.UUID, seats []int) ([]int, error) {
	const base = `
		SELECT sa.seat_number
		FROM seat_assignments sa
		JOIN bookings b ON b.id = sa.booking_id
		WHERE sa.show_id = $1 AND b.status IN ('PENDING', 'CONFIRMED')`

	var (
		rows pgx.Rows
		err  error
	)
	q := base + ` ORDER BY sa.seat_number`
	if len(seats) > 0 {
		q = base + ` AND sa.seat_number = ANY($2) ORDER BY sa.seat_number`
	}
	switch {
	case tx != nil && len(seats) > 0:
		rows, err = tx.Query(ctx, q, showID, seats)
	case tx != nil:
		rows, err = tx.Query(ctx, q, showID)
	case len(seats) > 0:
		rows, err = r.pool.Query(ctx, q, showID, seats)
	default:
		rows, err = r.pool.Query(ctx, q, showID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		occupied = append(occupied, n)
	}
	return occupied, rows.Err()
}

// CreateBooking inserts the booking row and one seat assignment per seat
// within tx. Each assignment insert is guarded by the partial unique index
// on active (show_id, seat_number) pairs; an insert that affects zero rows
// means another transaction claimed the seat between the availability check
// and this write, and the whole transaction is aborted with a ConflictError
// for that seat.
func (r *Repository) CreateBooking(ctx context.Context, tx pgx.Tx, booking *domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, show_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, booking.ID, booking.UserID, booking.ShowID, booking.Status, booking.CreatedAt)
	if err != nil {
		return err
	}

	for _, seat := range booking.Seats {
		result, err := tx.Exec(ctx, `
			INSERT INTO seat_assignments (id, booking_id, show_id, seat_number)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (show_id, seat_number) WHERE released = FALSE DO NOTHING
		`, uuid.New(), booking.ID, booking.ShowID, seat)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return &domain.ConflictError{Seats: []int{seat}}
		}
	}
	return nil
}

// CancelBooking transitions an active booking to CANCELLED and releases its
// seat assignments in the same transaction, freeing the seats for the
// partial unique index. Returns the show ID so callers can invalidate the
// availability cache.
func (r *Repository) CancelBooking(ctx context.Context, tx pgx.Tx, id uuid.UUID) (uuid.UUID, error) {
	var showID uuid.UUID
	err := tx.QueryRow(ctx, `
		UPDATE bookings SET status = 'CANCELLED'
		WHERE id = $1 AND status IN ('PENDING', 'CONFIRMED')
		RETURNING show_id
	`, id).Scan(&showID)
	if err == pgx.ErrNoRows {
		return uuid.Nil, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE seat_assignments SET released = TRUE
		WHERE booking_id = $1 AND released = FALSE
	`, id)
	if err != nil {
		return uuid.Nil, err
	}
	return showID, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var booking domain.Booking
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, show_id, status, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&booking.ID, &booking.UserID, &booking.ShowID, &booking.Status, &booking.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT seat_number FROM seat_assignments
		WHERE booking_id = $1 ORDER BY seat_number
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		booking.Seats = append(booking.Seats, n)
	}
	return &booking, rows.Err()
}

// ExpiredPending lists PENDING bookings created before the cutoff. The
// engine itself only ever produces CONFIRMED bookings; a PENDING row can
// only come from an external flow, and the sweep keeps an orphaned one from
// occupying seats forever.
func (r *Repository) ExpiredPending(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM bookings
		WHERE status = 'PENDING' AND created_at <= $1
		LIMIT 100
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
