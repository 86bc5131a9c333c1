// Package repository implements persistence for bookings, rooms and the
// enrollment and ticket lookups booking decisions depend on.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrRoomFull is returned when a write would put a room over capacity.
var ErrRoomFull = errors.New("room is fully booked")

// BookingTx is the set of booking queries available inside and outside a
// transaction. Inside InTx, FindRoom locks the room row until the
// transaction ends.
type BookingTx interface {
	// FindByUser returns the user's earliest booking with its Room embedded.
	FindByUser(ctx context.Context, userID int) (*model.Booking, error)
	// FindRoom returns the room with its current occupants.
	FindRoom(ctx context.Context, roomID int) (*model.Room, error)
	Insert(ctx context.Context, userID, roomID int) (*model.Booking, error)
	UpdateRoom(ctx context.Context, bookingID, roomID int) (*model.Booking, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	BookingTx
	// InTx runs fn in a single transaction. It commits when fn returns nil
	// and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx BookingTx) error) error
	Ping(ctx context.Context) error
}

// EligibilityStore reads the enrollment and ticket state of a user.
type EligibilityStore interface {
	FindEnrollmentByUser(ctx context.Context, userID int) (*model.Enrollment, error)
	// FindTicketByEnrollment returns the ticket with its TicketType.
	FindTicketByEnrollment(ctx context.Context, enrollmentID int) (*model.Ticket, error)
}

// SessionStore checks issued session tokens.
type SessionStore interface {
	SessionExists(ctx context.Context, token string) (bool, error)
}
