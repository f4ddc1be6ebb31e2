package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/showgrid/seatbooking/internal/adapters/pgdb"
	"github.com/showgrid/seatbooking/internal/booking"
	"github.com/showgrid/seatbooking/internal/config"
	"github.com/showgrid/seatbooking/internal/domain"
	"github.com/showgrid/seatbooking/internal/idempotency"
)

type Handlers struct {
	cfg   *config.Config
	repo  *pgdb.Repository
	svc   *booking.Service
	idemp *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, repo *pgdb.Repository, svc *booking.Service, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{cfg: cfg, repo: repo, svc: svc, idemp: idemp}
}

type errorResponse struct {
	Error            string `json:"error"`
	ConflictingSeats []int  `json:"conflicting_seats,omitempty"`
}

type showResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	TotalSeats int       `json:"total_seats"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeError maps the error taxonomy onto status codes: seat conflicts and
// retryable serialization failures are 409, validation is 400, unknown
// entities are 404, everything else is an infrastructure failure.
func writeError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:            "one or more seats are already booked",
			ConflictingSeats: conflict.Seats,
		})
	case errors.Is(err, domain.ErrSerializationFailure):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting request in flight, try again"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handlers) CreateShow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string    `json:"name"`
		StartTime  time.Time `json:"start_time"`
		TotalSeats int       `json:"total_seats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" || req.StartTime.IsZero() || req.TotalSeats < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name, start_time and total_seats are required"})
		return
	}

	show := &domain.Show{
		ID:         uuid.New(),
		Name:       req.Name,
		StartTime:  req.StartTime.UTC(),
		TotalSeats: req.TotalSeats,
	}
	if err := h.repo.CreateShow(r.Context(), show); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, showResponse{
		ID:         show.ID,
		Name:       show.Name,
		StartTime:  show.StartTime,
		TotalSeats: show.TotalSeats,
	})
}

func (h *Handlers) ListShows(w http.ResponseWriter, r *http.Request) {
	shows, err := h.repo.ListShows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]showResponse, 0, len(shows))
	for _, s := range shows {
		resp = append(resp, showResponse{ID: s.ID, Name: s.Name, StartTime: s.StartTime, TotalSeats: s.TotalSeats})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetUnavailableSeats(w http.ResponseWriter, r *http.Request) {
	showID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid show id"})
		return
	}
	seats, err := h.svc.UnavailableSeats(r.Context(), showID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Unavailable []int `json:"unavailable"`
	}{Unavailable: seats})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ShowID      uuid.UUID `json:"show_id"`
		UserID      uuid.UUID `json:"user_id"`
		SeatNumbers []int     `json:"seat_numbers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ShowID == uuid.Nil || req.UserID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "show_id and user_id are required"})
		return
	}

	bookingID, err := h.svc.Reserve(r.Context(), req.ShowID, req.UserID, req.SeatNumbers)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, struct {
		BookingID uuid.UUID            `json:"booking_id"`
		Status    domain.BookingStatus `json:"status"`
	}{BookingID: bookingID, Status: domain.BookingConfirmed})

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid booking id"})
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		BookingID   uuid.UUID            `json:"booking_id"`
		ShowID      uuid.UUID            `json:"show_id"`
		UserID      uuid.UUID            `json:"user_id"`
		Status      domain.BookingStatus `json:"status"`
		SeatNumbers []int                `json:"seat_numbers"`
		CreatedAt   time.Time            `json:"created_at"`
	}{
		BookingID:   b.ID,
		ShowID:      b.ShowID,
		UserID:      b.UserID,
		Status:      b.Status,
		SeatNumbers: b.Seats,
		CreatedAt:   b.CreatedAt,
	})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid booking id"})
		return
	}
	if err := h.svc.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status domain.BookingStatus `json:"status"`
	}{Status: domain.BookingCancelled})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
