package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// ActiveStatuses are the booking statuses that count toward seat occupancy.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

type Show struct {
	ID         uuid.UUID
	Name       string
	StartTime  time.Time
	TotalSeats int
	CreatedAt  time.Time
}

// Booking is one user's atomic claim over a set of seats for a show.
type Booking struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ShowID    uuid.UUID
	Status    BookingStatus
	Seats     []int
	CreatedAt time.Time
}

type SeatAssignment struct {
	ID         uuid.UUID
	BookingID  uuid.UUID
	ShowID     uuid.UUID
	SeatNumber int
	Released   bool
}
