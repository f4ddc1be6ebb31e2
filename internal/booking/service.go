// Package booking implements the seat reservation engine: the atomic
// check-and-commit of a seat set for a show, with overbooking prevention
// under concurrent racing requests.
package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	redisadapter "github.com/showgrid/seatbooking/internal/adapters/redis"
	"github.com/showgrid/seatbooking/internal/domain"
	"github.com/showgrid/seatbooking/internal/observability"
)

// Store is the durable state the engine coordinates through. All mutual
// exclusion between concurrent Reserve calls is delegated to the store's
// transactions; the engine holds no shared in-process mutable state.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetShow(ctx context.Context, id uuid.UUID) (*domain.Show, error)
	OccupiedSeats(ctx context.Context, tx pgx.Tx, showID uuid.UUID, seats []int) ([]int, error)
	CreateBooking(ctx context.Context, tx pgx.Tx, booking *domain.Booking) error
	CancelBooking(ctx context.Context, tx pgx.Tx, id uuid.UUID) (uuid.UUID, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ExpiredPending(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, eventType string, booking *domain.Booking) error
}

// Auditor records reservation outcomes out-of-band after the transaction
// has resolved.
type Auditor interface {
	LogReservation(ctx context.Context, booking *domain.Booking) error
	LogConflict(ctx context.Context, showID, userID uuid.UUID, seats []int) error
	LogCancellation(ctx context.Context, booking *domain.Booking) error
}

type Service struct {
	store  Store
	cache  *redisadapter.SeatCache
	audit  Auditor
	logger observability.Logger
}

func NewService(store Store, cache *redisadapter.SeatCache, audit Auditor, logger observability.Logger) *Service {
	return &Service{store: store, cache: cache, audit: audit, logger: logger}
}

// Reserve attempts to claim the given seats for userID on showID as one
// atomic unit: inside a single serializable transaction it reads the
// occupied subset of the requested seats, rejects the whole request with the
// exact colliding seats if any, and otherwise creates a CONFIRMED booking
// with one assignment per seat plus the outbox event. Either everything
// commits or nothing persists; a write-time collision or serialization
// failure aborts the transaction entirely.
func (s *Service) Reserve(ctx context.Context, showID, userID uuid.UUID, seatNumbers []int) (uuid.UUID, error) {
	show, err := s.store.GetShow(ctx, showID)
	if err != nil {
		return uuid.Nil, err
	}
	seats, err := domain.NormalizeSeats(seatNumbers, show.TotalSeats)
	if err != nil {
		return uuid.Nil, err
	}

	booking := domain.NewBooking(showID, userID, seats)
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		taken, err := s.store.OccupiedSeats(ctx, tx, showID, seats)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &domain.ConflictError{Seats: taken}
		}
		if err := s.store.CreateBooking(ctx, tx, booking); err != nil {
			return err
		}
		return s.store.AppendEvent(ctx, tx, "booking.confirmed", booking)
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			observability.ReserveConflicts.Inc()
			if auditErr := s.audit.LogConflict(ctx, showID, userID, conflict.Seats); auditErr != nil {
				s.logger.WithError(auditErr).Warn("audit write failed")
			}
		}
		return uuid.Nil, err
	}

	if cacheErr := s.cache.Invalidate(ctx, showID); cacheErr != nil {
		s.logger.WithError(cacheErr).Warn("seat cache invalidation failed")
	}
	if auditErr := s.audit.LogReservation(ctx, booking); auditErr != nil {
		s.logger.WithError(auditErr).Warn("audit write failed")
	}
	return booking.ID, nil
}

// UnavailableSeats returns the seat numbers of showID held by any PENDING or
// CONFIRMED booking. Reads go through the short-TTL cache; a miss falls
// through to a read-committed query, which never omits a seat committed
// before the read began. An unknown show yields an empty set, matching the
// empty-bookings case.
func (s *Service) UnavailableSeats(ctx context.Context, showID uuid.UUID) ([]int, error) {
	if seats, ok, err := s.cache.GetUnavailable(ctx, showID); err != nil {
		s.logger.WithError(err).Warn("seat cache read failed")
	} else if ok {
		return seats, nil
	}

	seats, err := s.store.OccupiedSeats(ctx, nil, showID, nil)
	if err != nil {
		return nil, err
	}
	if cacheErr := s.cache.SetUnavailable(ctx, showID, seats); cacheErr != nil {
		s.logger.WithError(cacheErr).Warn("seat cache write failed")
	}
	return seats, nil
}

// Cancel transitions an active booking to CANCELLED and releases its seats.
// This is the only operation that produces CANCELLED; cancelled bookings no
// longer count toward occupancy.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	var showID uuid.UUID
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		showID, err = s.store.CancelBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		booking.Status = domain.BookingCancelled
		return s.store.AppendEvent(ctx, tx, "booking.cancelled", booking)
	})
	if err != nil {
		return err
	}

	if cacheErr := s.cache.Invalidate(ctx, showID); cacheErr != nil {
		s.logger.WithError(cacheErr).Warn("seat cache invalidation failed")
	}
	if auditErr := s.audit.LogCancellation(ctx, booking); auditErr != nil {
		s.logger.WithError(auditErr).Warn("audit write failed")
	}
	return nil
}

// GetBooking returns a booking with its seat numbers.
func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// SweepExpiredPending cancels PENDING bookings older than ttl. Nothing in
// this engine creates PENDING bookings; the sweep is a backstop so a claim
// left pending by an external flow cannot hold seats indefinitely.
func (s *Service) SweepExpiredPending(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := s.store.ExpiredPending(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		if err := s.Cancel(ctx, id); err != nil {
			s.logger.WithField("booking_id", id).WithError(err).Error("failed to cancel expired booking")
			continue
		}
		swept++
	}
	return swept, nil
}
