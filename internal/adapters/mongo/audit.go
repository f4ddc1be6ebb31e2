package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/showgrid/seatbooking/internal/domain"
	"github.com/showgrid/seatbooking/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger records reservation outcomes out-of-band. Writes are
// best-effort: the booking transaction has already committed or rolled back
// by the time an audit document is written.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogReservation(ctx context.Context, booking *domain.Booking) error {
	data := map[string]interface{}{
		"booking_id":   booking.ID,
		"show_id":      booking.ShowID,
		"seat_numbers": booking.Seats,
		"status":       booking.Status,
	}
	return a.LogEvent(ctx, "booking.confirmed", booking.UserID, data)
}

func (a *AuditLogger) LogConflict(ctx context.Context, showID, userID uuid.UUID, seats []int) error {
	data := map[string]interface{}{
		"show_id":           showID,
		"conflicting_seats": seats,
	}
	return a.LogEvent(ctx, "booking.conflict", userID, data)
}

func (a *AuditLogger) LogCancellation(ctx context.Context, booking *domain.Booking) error {
	data := map[string]interface{}{
		"booking_id": booking.ID,
		"show_id":    booking.ShowID,
	}
	return a.LogEvent(ctx, "booking.cancelled", booking.UserID, data)
}
