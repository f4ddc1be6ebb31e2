package pgdb

import "context"

// Schema for the booking store. The partial unique index on active seat
// assignments enforces the overbooking invariant at commit time: for any
// show, at most one unreleased assignment may exist per seat number.
const schema = `
CREATE TABLE IF NOT EXISTS shows (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	total_seats INT NOT NULL CHECK (total_seats > 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	show_id UUID NOT NULL REFERENCES shows(id),
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seat_assignments (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings(id),
	show_id UUID NOT NULL,
	seat_number INT NOT NULL CHECK (seat_number > 0),
	released BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (booking_id, seat_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS seat_assignments_active_seat
	ON seat_assignments (show_id, seat_number) WHERE released = FALSE;

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
