// Package model defines the core domain types for the hotel booking system.
package model

import "time"

// Booking assigns one user to one hotel room.
type Booking struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	RoomID    int       `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Room is populated by lookups that embed the booked room.
	Room *Room `json:"Room,omitempty"`
}

// Room is a hotel room with a fixed number of places.
type Room struct {
	ID        int       `json:"id"`
	HotelID   int       `json:"hotelId"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Occupants are the bookings currently referencing the room.
	Occupants []Booking `json:"-"`
}

// Occupancy returns the number of bookings currently in the room.
func (r *Room) Occupancy() int {
	return len(r.Occupants)
}

// IsFull returns true when no places remain.
func (r *Room) IsFull() bool {
	return r.Occupancy() >= r.Capacity
}

// Enrollment proves a user registered for the event.
type Enrollment struct {
	ID         int  `json:"id"`
	UserID     int  `json:"userId"`
	HasAddress bool `json:"hasAddress"`
}

// TicketStatus is the payment state of a ticket.
type TicketStatus string

const (
	TicketStatusReserved TicketStatus = "RESERVED"
	TicketStatusPaid     TicketStatus = "PAID"
)

// TicketType describes what a ticket grants.
type TicketType struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	IsRemote      bool   `json:"isRemote"`
	IncludesHotel bool   `json:"includesHotel"`
	Price         int    `json:"price"`
}

// Ticket is the access credential bought for an enrollment.
type Ticket struct {
	ID           int          `json:"id"`
	EnrollmentID int          `json:"enrollmentId"`
	Status       TicketStatus `json:"status"`
	TicketType   TicketType   `json:"TicketType"`
}

// RoomRequest is the payload for creating or moving a booking.
type RoomRequest struct {
	RoomID int `json:"roomId" validate:"required,min=1"`
}

// BookingIDResponse is returned by the create and update endpoints.
type BookingIDResponse struct {
	BookingID int `json:"bookingId"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// Hotel groups rooms.
type Hotel struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
