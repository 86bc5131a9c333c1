// Package service implements the booking rules and orchestrates the
// eligibility lookups, the room check and the store write.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/apperror"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/events"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/repository"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "hotel-booking/service"

const publishTimeout = 5 * time.Second

// EventPublisher receives an event for every committed booking change.
type EventPublisher interface {
	Publish(ctx context.Context, e events.BookingEvent) error
}

// BookingService orchestrates booking operations.
type BookingService struct {
	bookings    repository.BookingStore
	eligibility repository.EligibilityStore
	publisher   EventPublisher
	log         *zap.Logger
	tracer      trace.Tracer
}

// NewBookingService constructs a BookingService. A nil publisher drops
// events.
func NewBookingService(
	bookings repository.BookingStore,
	eligibility repository.EligibilityStore,
	publisher EventPublisher,
	log *zap.Logger,
) *BookingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BookingService{
		bookings:    bookings,
		eligibility: eligibility,
		publisher:   publisher,
		log:         log,
		tracer:      otel.Tracer(tracerName),
	}
}

// FindBooking returns the user's booking with its room.
func (s *BookingService) FindBooking(ctx context.Context, userID int) (_ *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.FindBooking",
		trace.WithAttributes(attribute.Int("user.id", userID)))
	defer func() { endSpan(span, err) }()

	booking, err := s.bookings.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("booking")
		}
		return nil, s.internal("find booking", err)
	}
	return booking, nil
}

// CreateBooking books a place in roomID for the user.
//
// Enrollment and ticket are checked before the room is looked at. The room
// check and the insert run in one transaction holding the room lock, so
// concurrent requests for the same room see each other's bookings. A user
// who already has a booking may create another one.
func (s *BookingService) CreateBooking(ctx context.Context, userID, roomID int) (_ *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.CreateBooking",
		trace.WithAttributes(attribute.Int("user.id", userID), attribute.Int("room.id", roomID)))
	defer func() { endSpan(span, err) }()

	enrolled, ticket, err := s.loadEligibility(ctx, userID)
	if err != nil {
		return nil, err
	}
	if d := validator.Eligibility(enrolled, ticket); !d.Allowed {
		return nil, s.deny("create", userID, roomID, d)
	}

	var booking *model.Booking
	err = s.bookings.InTx(ctx, func(tx repository.BookingTx) error {
		room, err := findRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		d := validator.Decide(validator.Input{
			Enrolled:  enrolled,
			Ticket:    ticket,
			Room:      room,
			Occupancy: occupancy(room),
		})
		if !d.Allowed {
			return s.deny("create", userID, roomID, d)
		}
		booking, err = tx.Insert(ctx, userID, roomID)
		return err
	})
	if err != nil {
		return nil, s.storeError("create booking", "room", roomID, err)
	}

	s.log.Info("booking created",
		zap.Int("booking_id", booking.ID),
		zap.Int("user_id", userID),
		zap.Int("room_id", roomID),
	)
	s.publish(ctx, events.NewBookingCreated(booking))
	return booking, nil
}

// UpdateBooking moves the user's booking to roomID. Only the user's own
// booking can be moved; enrollment and ticket are not re-checked.
//
// The target room's occupancy includes the booking being moved, so moving
// into the room the booking already occupies is denied when that room is
// full.
func (s *BookingService) UpdateBooking(ctx context.Context, bookingID, userID, roomID int) (_ *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.UpdateBooking",
		trace.WithAttributes(
			attribute.Int("booking.id", bookingID),
			attribute.Int("user.id", userID),
			attribute.Int("room.id", roomID),
		))
	defer func() { endSpan(span, err) }()

	current, err := s.bookings.FindByUser(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, s.deny("update", userID, roomID, validator.Decision{
			Reason: validator.ReasonNotEligible,
			Detail: "user has no booking",
		})
	case err != nil:
		return nil, s.internal("find booking", err)
	case current.ID != bookingID:
		return nil, s.deny("update", userID, roomID, validator.Decision{
			Reason: validator.ReasonNotEligible,
			Detail: "booking does not belong to user",
		})
	}

	var updated *model.Booking
	err = s.bookings.InTx(ctx, func(tx repository.BookingTx) error {
		room, err := findRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if d := validator.Vacancy(room, occupancy(room)); !d.Allowed {
			return s.deny("update", userID, roomID, d)
		}
		updated, err = tx.UpdateRoom(ctx, bookingID, roomID)
		return err
	})
	if err != nil {
		return nil, s.storeError("update booking", "booking", roomID, err)
	}

	s.log.Info("booking moved",
		zap.Int("booking_id", updated.ID),
		zap.Int("user_id", userID),
		zap.Int("from_room_id", current.RoomID),
		zap.Int("to_room_id", roomID),
	)
	s.publish(ctx, events.NewBookingMoved(updated, current.RoomID))
	return updated, nil
}

// Ping reports whether the booking store is reachable.
func (s *BookingService) Ping(ctx context.Context) error {
	return s.bookings.Ping(ctx)
}

// loadEligibility fetches the enrollment and, for enrolled users, the
// ticket. Absence is not an error.
func (s *BookingService) loadEligibility(ctx context.Context, userID int) (bool, *model.Ticket, error) {
	enrollment, err := s.eligibility.FindEnrollmentByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, s.internal("find enrollment", err)
	}

	ticket, err := s.eligibility.FindTicketByEnrollment(ctx, enrollment.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil, nil
		}
		return false, nil, s.internal("find ticket", err)
	}
	return true, ticket, nil
}

// findRoom returns nil for a missing room so the validator reports it.
func findRoom(ctx context.Context, tx repository.BookingTx, roomID int) (*model.Room, error) {
	room, err := tx.FindRoom(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return room, err
}

func occupancy(room *model.Room) int {
	if room == nil {
		return 0
	}
	return room.Occupancy()
}

func (s *BookingService) deny(op string, userID, roomID int, d validator.Decision) error {
	s.log.Info("booking denied",
		zap.String("op", op),
		zap.Int("user_id", userID),
		zap.Int("room_id", roomID),
		zap.String("reason", d.Reason.String()),
		zap.String("detail", d.Detail),
	)

	switch d.Reason {
	case validator.ReasonRoomNotFound:
		return apperror.NotFound("room")
	case validator.ReasonRoomFull:
		return apperror.RoomFull(roomID)
	default:
		return apperror.NotEligible(d.Detail)
	}
}

// storeError translates a transaction failure. Denials pass through; the
// capacity backstop becomes RoomFull; anything else is internal.
func (s *BookingService) storeError(op, missing string, roomID int, err error) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrRoomFull):
		s.log.Info("booking denied by capacity constraint", zap.String("op", op), zap.Int("room_id", roomID))
		return apperror.RoomFull(roomID)
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(missing)
	default:
		return s.internal(op, err)
	}
}

func (s *BookingService) internal(op string, err error) error {
	s.log.Error("booking store failure", zap.String("op", op), zap.Error(err))
	return apperror.Internal(op+" failed", err)
}

// publish delivers e after the transaction committed. Failures are logged
// and do not affect the result.
func (s *BookingService) publish(ctx context.Context, e events.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish booking event failed",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.EventID),
			zap.Int("booking_id", e.BookingID),
			zap.Error(err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		kind := apperror.KindOf(err)
		span.SetAttributes(attribute.String("booking.outcome", kind.String()))
		if kind == apperror.KindInternal {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
