// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/apperror"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/validator"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BookingService is the booking behaviour the handlers need.
type BookingService interface {
	FindBooking(ctx context.Context, userID int) (*model.Booking, error)
	CreateBooking(ctx context.Context, userID, roomID int) (*model.Booking, error)
	UpdateBooking(ctx context.Context, bookingID, userID, roomID int) (*model.Booking, error)
	Ping(ctx context.Context) error
}

// BookingHandler holds the HTTP handlers for the booking API.
type BookingHandler struct {
	svc      BookingService
	validate *validator.BookingValidator
	log      *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, validate: validator.NewBookingValidator(), log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps every error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindNotEligible, apperror.KindRoomFull:
		return http.StatusForbidden
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.As(err)
	status := statusFor(appErr.Kind)

	resp := model.ErrorResponse{Error: appErr.Message, Details: appErr.Details}
	if appErr.Kind == apperror.KindInternal {
		h.log.Error("request failed",
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp = model.ErrorResponse{Error: "internal server error"}
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeRoomRequest decodes and validates a create or update body.
func (h *BookingHandler) decodeRoomRequest(r *http.Request) (*model.RoomRequest, error) {
	var req model.RoomRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, apperror.Validation("invalid request body", map[string]any{"body": err.Error()})
	}
	if err := h.validate.ValidateRoomRequest(&req); err != nil {
		return nil, validationError(err)
	}
	return &req, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperror.Validation("invalid request", verrs.Details())
	}
	return apperror.Validation("invalid request", nil)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// GetBooking handles GET /booking
// Returns the authenticated user's booking with its room.
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized("missing user"))
		return
	}

	booking, err := h.svc.FindBooking(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// CreateBooking handles POST /booking
// Books a place in the requested room for the authenticated user.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized("missing user"))
		return
	}

	req, err := h.decodeRoomRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.svc.CreateBooking(r.Context(), userID, req.RoomID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.BookingIDResponse{BookingID: booking.ID})
}

// UpdateBooking handles PUT /booking/{bookingId}
// Moves the authenticated user's booking to another room.
func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized("missing user"))
		return
	}

	bookingID, err := h.validate.ParseBookingID(chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, r, validationError(err))
		return
	}

	req, err := h.decodeRoomRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.svc.UpdateBooking(r.Context(), bookingID, userID, req.RoomID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.BookingIDResponse{BookingID: booking.ID})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func (h *BookingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
