package pgdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/showgrid/seatbooking/internal/adapters/pgdb"
	"github.com/showgrid/seatbooking/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (*pgdb.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	endpoint, err := pgContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgres://booking:booking@"+endpoint+"/booking?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := pgdb.NewRepository(pool, 5*time.Second)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return repo, pool
}

func createShow(t *testing.T, repo *pgdb.Repository, totalSeats int) uuid.UUID {
	t.Helper()
	show := &domain.Show{
		ID:         uuid.New(),
		Name:       "The Tempest",
		StartTime:  time.Now().Add(24 * time.Hour),
		TotalSeats: totalSeats,
	}
	if err := repo.CreateShow(context.Background(), show); err != nil {
		t.Fatal(err)
	}
	return show.ID
}

// reserve performs the check-then-insert the reservation engine runs: read
// the occupied subset inside the transaction, abort on any overlap, insert
// the booking, its assignments and the outbox event otherwise.
func reserve(ctx context.Context, repo *pgdb.Repository, showID, userID uuid.UUID, seats []int) (uuid.UUID, error) {
	booking := domain.NewBooking(showID, userID, seats)
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		taken, err := repo.OccupiedSeats(ctx, tx, showID, seats)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &domain.ConflictError{Seats: taken}
		}
		if err := repo.CreateBooking(ctx, tx, booking); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, "booking.confirmed", booking)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return booking.ID, nil
}

func TestRepository_ReserveAndConflict(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	firstID, err := reserve(ctx, repo, showID, uuid.New(), []int{1, 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	fetched, err := repo.GetBooking(ctx, firstID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.BookingConfirmed {
		t.Errorf("expected CONFIRMED, got %s", fetched.Status)
	}
	if len(fetched.Seats) != 2 || fetched.Seats[0] != 1 || fetched.Seats[1] != 2 {
		t.Errorf("expected seats [1 2], got %v", fetched.Seats)
	}

	// overlapping request fails as a whole and names the colliding seat
	_, err = reserve(ctx, repo, showID, uuid.New(), []int{2, 3})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Seats) != 1 || conflict.Seats[0] != 2 {
		t.Errorf("expected conflicting seats [2], got %v", conflict.Seats)
	}

	// the rejected request must leave nothing behind, seat 3 included
	occupied, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(occupied) != 2 || occupied[0] != 1 || occupied[1] != 2 {
		t.Errorf("expected occupied [1 2], got %v", occupied)
	}
}

func TestRepository_RollbackOnWriteConflict(t *testing.T) {
	repo, pool := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	if _, err := reserve(ctx, repo, showID, uuid.New(), []int{4}); err != nil {
		t.Fatal(err)
	}

	// skip the availability check so the partial unique index is what
	// rejects the write; the booking row inserted before it must roll back
	booking := domain.NewBooking(showID, uuid.New(), []int{3, 4})
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CreateBooking(ctx, tx, booking)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	if _, err := repo.GetBooking(ctx, booking.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected rolled back booking to be absent, got %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM seat_assignments WHERE show_id = $1 AND released = FALSE
	`, showID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 active assignment, got %d", count)
	}
}

func TestRepository_ConcurrentOverlappingReserve(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reserve(ctx, repo, showID, uuid.New(), []int{5})
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrConflict):
		case errors.Is(err, domain.ErrSerializationFailure):
		default:
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner for seat 5, got %d", successes)
	}

	occupied, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(occupied) != 1 || occupied[0] != 5 {
		t.Errorf("expected occupied [5], got %v", occupied)
	}
}

func TestRepository_ConcurrentDisjointReserve(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 20)

	seatSets := [][]int{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	errs := make([]error, len(seatSets))
	var wg sync.WaitGroup
	for i, seats := range seatSets {
		wg.Add(1)
		go func(i int, seats []int) {
			defer wg.Done()
			// disjoint writers can still trip serializable predicate
			// checks against each other; retrying must converge
			for attempt := 0; attempt < 5; attempt++ {
				_, errs[i] = reserve(ctx, repo, showID, uuid.New(), seats)
				if !errors.Is(errs[i], domain.ErrSerializationFailure) {
					return
				}
			}
		}(i, seats)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("seat set %v: expected success, got %v", seatSets[i], err)
		}
	}

	occupied, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(occupied) != 8 {
		t.Fatalf("expected 8 occupied seats, got %v", occupied)
	}
	for i, n := range occupied {
		if n != i+1 {
			t.Errorf("expected occupied seats 1..8 in order, got %v", occupied)
			break
		}
	}
}

func TestRepository_CancelReleasesSeats(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	bookingID, err := reserve(ctx, repo, showID, uuid.New(), []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.CancelBooking(ctx, tx, bookingID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := repo.GetBooking(ctx, bookingID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.BookingCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	occupied, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(occupied) != 0 {
		t.Errorf("expected no occupied seats after cancel, got %v", occupied)
	}

	// released seats are free for the next booking
	if _, err := reserve(ctx, repo, showID, uuid.New(), []int{1, 2}); err != nil {
		t.Errorf("expected rebooking released seats to succeed, got %v", err)
	}

	// a second cancel targets no active booking
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.CancelBooking(ctx, tx, bookingID)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found on double cancel, got %v", err)
	}
}

func TestRepository_OccupiedSeatsReadIsStable(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	if _, err := reserve(ctx, repo, showID, uuid.New(), []int{9, 3, 7}); err != nil {
		t.Fatal(err)
	}

	first, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || first[0] != 3 || first[1] != 7 || first[2] != 9 {
		t.Errorf("expected sorted occupied [3 7 9], got %v", first)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical reads, got %v then %v", first, second)
		}
	}

	subset, err := repo.OccupiedSeats(ctx, nil, showID, []int{7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(subset) != 1 || subset[0] != 7 {
		t.Errorf("expected restricted read [7], got %v", subset)
	}
}

func TestRepository_OutboxLifecycle(t *testing.T) {
	repo, _ := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	bookingID, err := reserve(ctx, repo, showID, uuid.New(), []int{1})
	if err != nil {
		t.Fatal(err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 unpublished record, got %d", len(records))
	}
	rec := records[0]
	if rec.EventType != "booking.confirmed" || rec.AggregateID != bookingID {
		t.Errorf("unexpected record %+v", rec)
	}

	if err := repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
		t.Fatal(err)
	}

	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected drained outbox, got %d records", len(records))
	}
}

func TestRepository_ExpiredPending(t *testing.T) {
	repo, pool := startPostgres(t)
	ctx := context.Background()
	showID := createShow(t, repo, 10)

	staleID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO bookings (id, user_id, show_id, status, created_at)
		VALUES ($1, $2, $3, 'PENDING', now() - interval '1 hour')
	`, staleID, uuid.New(), showID)
	if err != nil {
		t.Fatal(err)
	}

	freshID, err := reserve(ctx, repo, showID, uuid.New(), []int{1})
	if err != nil {
		t.Fatal(err)
	}

	ids, err := repo.ExpiredPending(ctx, time.Now().Add(-15*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != staleID {
		t.Errorf("expected [%s], got %v", staleID, ids)
	}
	for _, id := range ids {
		if id == freshID {
			t.Error("confirmed booking must not be swept")
		}
	}
}
