package domain

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// NewBooking builds a confirmed booking over the given seat numbers. The
// reservation engine has no separate confirmation step; a booking that
// commits is immediately CONFIRMED.
func NewBooking(showID, userID uuid.UUID, seats []int) *Booking {
	return &Booking{
		ID:        uuid.New(),
		UserID:    userID,
		ShowID:    showID,
		Status:    BookingConfirmed,
		Seats:     seats,
		CreatedAt: time.Now().UTC(),
	}
}

// NormalizeSeats validates a requested seat set against a show's inventory
// and returns it deduplicated and sorted. The set must be non-empty and every
// seat number must lie in [1, totalSeats]; out-of-range seats are rejected
// rather than admitted into the availability index.
func NormalizeSeats(seats []int, totalSeats int) ([]int, error) {
	if len(seats) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "seat_numbers must not be empty")
	}
	seen := make(map[int]struct{}, len(seats))
	out := make([]int, 0, len(seats))
	for _, n := range seats {
		if n < 1 || n > totalSeats {
			return nil, errors.Wrapf(ErrInvalidInput, "seat number %d outside [1, %d]", n, totalSeats)
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}
