package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
)

// MemoryStore is an in-process BookingStore, EligibilityStore and
// SessionStore. A single mutex guards all state; InTx holds it for the whole
// callback, which serialises read-check-write sequences the way a room row
// lock does in Postgres.
type MemoryStore struct {
	mu sync.Mutex

	hotels      map[int]model.Hotel
	rooms       map[int]model.Room
	bookings    map[int]model.Booking
	enrollments map[int]model.Enrollment // by user id
	tickets     map[int]model.Ticket     // by enrollment id
	sessions    map[string]int           // token to user id

	lastID map[string]int
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hotels:      make(map[int]model.Hotel),
		rooms:       make(map[int]model.Room),
		bookings:    make(map[int]model.Booking),
		enrollments: make(map[int]model.Enrollment),
		tickets:     make(map[int]model.Ticket),
		sessions:    make(map[string]int),
		lastID:      make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) nextID(table string) int {
	s.lastID[table]++
	return s.lastID[table]
}

// AddHotel seeds a hotel and returns it with its id.
func (s *MemoryStore) AddHotel(name string) model.Hotel {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	h := model.Hotel{ID: s.nextID("hotels"), Name: name, CreatedAt: now, UpdatedAt: now}
	s.hotels[h.ID] = h
	return h
}

// AddRoom seeds a room in an existing hotel.
func (s *MemoryStore) AddRoom(hotelID int, name string, capacity int) (model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hotels[hotelID]; !ok {
		return model.Room{}, fmt.Errorf("add room: hotel %d: %w", hotelID, ErrNotFound)
	}
	now := s.now()
	r := model.Room{ID: s.nextID("rooms"), HotelID: hotelID, Name: name, Capacity: capacity, CreatedAt: now, UpdatedAt: now}
	s.rooms[r.ID] = r
	return r, nil
}

// AddEnrollment enrolls a user.
func (s *MemoryStore) AddEnrollment(userID int) model.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := model.Enrollment{ID: s.nextID("enrollments"), UserID: userID, HasAddress: true}
	s.enrollments[userID] = e
	return e
}

// AddTicket attaches a ticket to an enrollment, replacing any previous one.
func (s *MemoryStore) AddTicket(enrollmentID int, status model.TicketStatus, tt model.TicketType) model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tt.ID == 0 {
		tt.ID = s.nextID("ticket_types")
	}
	t := model.Ticket{ID: s.nextID("tickets"), EnrollmentID: enrollmentID, Status: status, TicketType: tt}
	s.tickets[enrollmentID] = t
	return t
}

// AddSession registers a session token for a user.
func (s *MemoryStore) AddSession(userID int, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = userID
}

// InTx runs fn with the store locked. Booking writes made by fn are discarded
// when it returns an error.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx BookingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	bookings := maps.Clone(s.bookings)
	lastBookingID := s.lastID["bookings"]

	if err := fn(memoryTx{s}); err != nil {
		s.bookings = bookings
		s.lastID["bookings"] = lastBookingID
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) FindByUser(ctx context.Context, userID int) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByUser(userID)
}

func (s *MemoryStore) FindRoom(ctx context.Context, roomID int) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findRoom(roomID)
}

func (s *MemoryStore) Insert(ctx context.Context, userID, roomID int) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(userID, roomID)
}

func (s *MemoryStore) UpdateRoom(ctx context.Context, bookingID, roomID int) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRoom(bookingID, roomID)
}

func (s *MemoryStore) FindEnrollmentByUser(ctx context.Context, userID int) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) FindTicketByEnrollment(ctx context.Context, enrollmentID int) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[enrollmentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) SessionExists(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[token]
	return ok, nil
}

// The lowercase methods assume s.mu is held.

func (s *MemoryStore) findByUser(userID int) (*model.Booking, error) {
	var found *model.Booking
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		if found == nil || b.ID < found.ID {
			found = &b
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	room := s.rooms[found.RoomID]
	found.Room = &room
	return found, nil
}

func (s *MemoryStore) findRoom(roomID int) (*model.Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, b := range s.bookings {
		if b.RoomID == roomID {
			room.Occupants = append(room.Occupants, b)
		}
	}
	slices.SortFunc(room.Occupants, func(a, b model.Booking) int { return a.ID - b.ID })
	return &room, nil
}

// checkCapacity mirrors the capacity trigger: it counts the room's bookings
// other than the one being written.
func (s *MemoryStore) checkCapacity(roomID, bookingID int) error {
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	taken := 0
	for _, b := range s.bookings {
		if b.RoomID == roomID && b.ID != bookingID {
			taken++
		}
	}
	if taken >= room.Capacity {
		return ErrRoomFull
	}
	return nil
}

func (s *MemoryStore) insert(userID, roomID int) (*model.Booking, error) {
	if err := s.checkCapacity(roomID, 0); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	now := s.now()
	b := model.Booking{ID: s.nextID("bookings"), UserID: userID, RoomID: roomID, CreatedAt: now, UpdatedAt: now}
	s.bookings[b.ID] = b
	return &b, nil
}

func (s *MemoryStore) updateRoom(bookingID, roomID int) (*model.Booking, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := s.checkCapacity(roomID, bookingID); err != nil {
		return nil, fmt.Errorf("update booking room: %w", err)
	}
	b.RoomID = roomID
	b.UpdatedAt = s.now()
	s.bookings[bookingID] = b
	return &b, nil
}

// memoryTx runs queries against a MemoryStore whose mutex InTx already holds.
type memoryTx struct {
	s *MemoryStore
}

func (t memoryTx) FindByUser(ctx context.Context, userID int) (*model.Booking, error) {
	return t.s.findByUser(userID)
}

func (t memoryTx) FindRoom(ctx context.Context, roomID int) (*model.Room, error) {
	return t.s.findRoom(roomID)
}

func (t memoryTx) Insert(ctx context.Context, userID, roomID int) (*model.Booking, error) {
	return t.s.insert(userID, roomID)
}

func (t memoryTx) UpdateRoom(ctx context.Context, bookingID, roomID int) (*model.Booking, error) {
	return t.s.updateRoom(bookingID, roomID)
}
