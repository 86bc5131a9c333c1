package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/apperror"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/events"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/Shivanand-hulikatti/hotel-booking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

var (
	hotelTicket  = model.TicketType{Name: "Presencial com hotel", IncludesHotel: true, Price: 600}
	remoteTicket = model.TicketType{Name: "Online", IsRemote: true, Price: 100}
	noHotel      = model.TicketType{Name: "Presencial", Price: 250}
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) published() []events.BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BookingEvent(nil), p.events...)
}

type fixture struct {
	store     *repository.MemoryStore
	publisher *recordingPublisher
	svc       *BookingService
	hotelID   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		publisher: pub,
		svc:       NewBookingService(store, store, pub, zaptest.NewLogger(t)),
		hotelID:   store.AddHotel("Driven Resort").ID,
	}
}

func (f *fixture) room(t *testing.T, capacity int) model.Room {
	t.Helper()
	r, err := f.store.AddRoom(f.hotelID, "room", capacity)
	require.NoError(t, err)
	return r
}

// eligibleUser enrolls the user with a paid ticket that includes the hotel.
func (f *fixture) eligibleUser(userID int) {
	e := f.store.AddEnrollment(userID)
	f.store.AddTicket(e.ID, model.TicketStatusPaid, hotelTicket)
}

// fill books every place of the room for fresh users.
func (f *fixture) fill(t *testing.T, room model.Room, firstUserID int) {
	t.Helper()
	for i := 0; i < room.Capacity; i++ {
		_, err := f.store.Insert(context.Background(), firstUserID+i, room.ID)
		require.NoError(t, err)
	}
}

func TestFindBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 2)

	_, err := f.svc.FindBooking(ctx, 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	f.eligibleUser(1)
	created, err := f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)

	first, err := f.svc.FindBooking(ctx, 1)
	require.NoError(t, err)
	second, err := f.svc.FindBooking(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, created.ID, first.ID)
	require.NotNil(t, first.Room)
	assert.Equal(t, room.ID, first.Room.ID)
	assert.Equal(t, first, second)
}

func TestCreateBooking_Eligibility(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture, userID int)
	}{
		{
			name:  "not enrolled",
			setup: func(*fixture, int) {},
		},
		{
			name: "no ticket",
			setup: func(f *fixture, userID int) {
				f.store.AddEnrollment(userID)
			},
		},
		{
			name: "remote ticket",
			setup: func(f *fixture, userID int) {
				e := f.store.AddEnrollment(userID)
				f.store.AddTicket(e.ID, model.TicketStatusPaid, remoteTicket)
			},
		},
		{
			name: "reserved ticket",
			setup: func(f *fixture, userID int) {
				e := f.store.AddEnrollment(userID)
				f.store.AddTicket(e.ID, model.TicketStatusReserved, hotelTicket)
			},
		},
		{
			name: "ticket without hotel",
			setup: func(f *fixture, userID int) {
				e := f.store.AddEnrollment(userID)
				f.store.AddTicket(e.ID, model.TicketStatusPaid, noHotel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			tt.setup(f, 1)

			// Ineligibility wins over a missing room and over a full one.
			full := f.room(t, 1)
			f.fill(t, full, 100)

			for _, roomID := range []int{full.ID, full.ID + 99} {
				_, err := f.svc.CreateBooking(ctx, 1, roomID)
				assert.ErrorIs(t, err, apperror.ErrNotEligible)
			}

			_, err := f.store.FindByUser(ctx, 1)
			assert.ErrorIs(t, err, repository.ErrNotFound)
			assert.Empty(t, f.publisher.published())
		})
	}
}

func TestCreateBooking_RoomNotFound(t *testing.T) {
	f := newFixture(t)
	f.eligibleUser(1)

	_, err := f.svc.CreateBooking(context.Background(), 1, 999)

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateBooking_RoomFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 3)
	f.fill(t, room, 100)
	f.eligibleUser(1)

	_, err := f.svc.CreateBooking(ctx, 1, room.ID)

	assert.ErrorIs(t, err, apperror.ErrRoomFull)
	got, err := f.store.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Occupancy())
}

func TestCreateBooking_LastPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 3)
	for i := 0; i < 2; i++ {
		_, err := f.store.Insert(ctx, 100+i, room.ID)
		require.NoError(t, err)
	}
	f.eligibleUser(1)

	booking, err := f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, booking.UserID)
	assert.Equal(t, room.ID, booking.RoomID)
	got, err := f.store.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Occupancy())

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.BookingCreated, published[0].Type)
	assert.Equal(t, booking.ID, published[0].BookingID)
}

// A user who already holds a booking is not stopped from creating another.
func TestCreateBooking_SecondBookingAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 5)
	f.eligibleUser(1)

	first, err := f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)
	second, err := f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	got, err := f.svc.FindBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestCreateBooking_ConcurrentRequestsNeverOverbook(t *testing.T) {
	const (
		capacity = 4
		taken    = 1
		requests = 20
	)
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, capacity)
	_, err := f.store.Insert(ctx, 1000, room.ID)
	require.NoError(t, err)

	for userID := 1; userID <= requests; userID++ {
		f.eligibleUser(userID)
	}

	var success, full atomic.Int32
	var g errgroup.Group
	for userID := 1; userID <= requests; userID++ {
		g.Go(func() error {
			_, err := f.svc.CreateBooking(ctx, userID, room.ID)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, apperror.ErrRoomFull):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, capacity-taken, success.Load())
	assert.EqualValues(t, requests-(capacity-taken), full.Load())
	got, err := f.store.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, got.Occupancy())
}

func TestCreateBooking_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	room := f.room(t, 1)
	f.eligibleUser(1)

	booking, err := f.svc.CreateBooking(context.Background(), 1, room.ID)

	require.NoError(t, err)
	assert.NotZero(t, booking.ID)
}

func TestUpdateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.room(t, 1)
	to := f.room(t, 2)
	f.eligibleUser(1)
	booking, err := f.svc.CreateBooking(ctx, 1, from.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateBooking(ctx, booking.ID, 1, to.ID)
	require.NoError(t, err)

	assert.Equal(t, booking.ID, updated.ID)
	assert.Equal(t, to.ID, updated.RoomID)

	got, err := f.svc.FindBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, to.ID, got.RoomID)

	published := f.publisher.published()
	require.Len(t, published, 2)
	moved := published[1]
	assert.Equal(t, events.BookingMoved, moved.Type)
	require.NotNil(t, moved.PreviousRoomID)
	assert.Equal(t, from.ID, *moved.PreviousRoomID)
}

func TestUpdateBooking_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 3)
	f.eligibleUser(1)
	f.eligibleUser(2)
	theirs, err := f.svc.CreateBooking(ctx, 2, room.ID)
	require.NoError(t, err)

	// user 1 has no booking at all
	_, err = f.svc.UpdateBooking(ctx, theirs.ID, 1, room.ID)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	// user 1 has a booking, but targets someone else's
	_, err = f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateBooking(ctx, theirs.ID, 1, room.ID)
	assert.ErrorIs(t, err, apperror.ErrNotEligible)

	got, err := f.store.FindByUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.RoomID)
}

func TestUpdateBooking_SkipsTicketRecheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.room(t, 1)
	to := f.room(t, 1)
	f.eligibleUser(1)
	booking, err := f.svc.CreateBooking(ctx, 1, from.ID)
	require.NoError(t, err)

	e, err := f.store.FindEnrollmentByUser(ctx, 1)
	require.NoError(t, err)
	f.store.AddTicket(e.ID, model.TicketStatusReserved, remoteTicket)

	_, err = f.svc.UpdateBooking(ctx, booking.ID, 1, to.ID)
	assert.NoError(t, err)
}

func TestUpdateBooking_TargetRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.room(t, 2)
	full := f.room(t, 2)
	f.fill(t, full, 100)
	f.eligibleUser(1)
	booking, err := f.svc.CreateBooking(ctx, 1, from.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateBooking(ctx, booking.ID, 1, full.ID)
	assert.ErrorIs(t, err, apperror.ErrRoomFull)

	_, err = f.svc.UpdateBooking(ctx, booking.ID, 1, 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := f.svc.FindBooking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, from.ID, got.RoomID)
}

// The booking being moved counts toward the target room, so a move into
// its own full room is denied.
func TestUpdateBooking_SameFullRoomDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, 1)
	f.eligibleUser(1)
	booking, err := f.svc.CreateBooking(ctx, 1, room.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateBooking(ctx, booking.ID, 1, room.ID)

	assert.ErrorIs(t, err, apperror.ErrRoomFull)
}

// fakeStore is a BookingStore and EligibilityStore whose behaviour is set
// per test.
type fakeStore struct {
	FindByUserFunc             func(ctx context.Context, userID int) (*model.Booking, error)
	FindRoomFunc               func(ctx context.Context, roomID int) (*model.Room, error)
	InsertFunc                 func(ctx context.Context, userID, roomID int) (*model.Booking, error)
	UpdateRoomFunc             func(ctx context.Context, bookingID, roomID int) (*model.Booking, error)
	InTxFunc                   func(ctx context.Context, fn func(tx repository.BookingTx) error) error
	FindEnrollmentByUserFunc   func(ctx context.Context, userID int) (*model.Enrollment, error)
	FindTicketByEnrollmentFunc func(ctx context.Context, enrollmentID int) (*model.Ticket, error)
}

func (f *fakeStore) FindByUser(ctx context.Context, userID int) (*model.Booking, error) {
	if f.FindByUserFunc != nil {
		return f.FindByUserFunc(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) FindRoom(ctx context.Context, roomID int) (*model.Room, error) {
	if f.FindRoomFunc != nil {
		return f.FindRoomFunc(ctx, roomID)
	}
	return &model.Room{ID: roomID, Capacity: 1}, nil
}

func (f *fakeStore) Insert(ctx context.Context, userID, roomID int) (*model.Booking, error) {
	if f.InsertFunc != nil {
		return f.InsertFunc(ctx, userID, roomID)
	}
	return &model.Booking{ID: 1, UserID: userID, RoomID: roomID}, nil
}

func (f *fakeStore) UpdateRoom(ctx context.Context, bookingID, roomID int) (*model.Booking, error) {
	if f.UpdateRoomFunc != nil {
		return f.UpdateRoomFunc(ctx, bookingID, roomID)
	}
	return &model.Booking{ID: bookingID, RoomID: roomID}, nil
}

func (f *fakeStore) InTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	if f.InTxFunc != nil {
		return f.InTxFunc(ctx, fn)
	}
	return fn(f)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) FindEnrollmentByUser(ctx context.Context, userID int) (*model.Enrollment, error) {
	if f.FindEnrollmentByUserFunc != nil {
		return f.FindEnrollmentByUserFunc(ctx, userID)
	}
	return &model.Enrollment{ID: 1, UserID: userID}, nil
}

func (f *fakeStore) FindTicketByEnrollment(ctx context.Context, enrollmentID int) (*model.Ticket, error) {
	if f.FindTicketByEnrollmentFunc != nil {
		return f.FindTicketByEnrollmentFunc(ctx, enrollmentID)
	}
	return &model.Ticket{ID: 1, EnrollmentID: enrollmentID, Status: model.TicketStatusPaid, TicketType: hotelTicket}, nil
}

func TestStoreFailuresAreInternal(t *testing.T) {
	storeDown := errors.New("connection refused")
	fail := func() (*model.Booking, error) { return nil, storeDown }

	tests := []struct {
		name  string
		store *fakeStore
		call  func(svc *BookingService) error
	}{
		{
			name:  "find booking",
			store: &fakeStore{FindByUserFunc: func(context.Context, int) (*model.Booking, error) { return fail() }},
			call: func(svc *BookingService) error {
				_, err := svc.FindBooking(context.Background(), 1)
				return err
			},
		},
		{
			name: "enrollment lookup",
			store: &fakeStore{FindEnrollmentByUserFunc: func(context.Context, int) (*model.Enrollment, error) {
				return nil, storeDown
			}},
			call: func(svc *BookingService) error {
				_, err := svc.CreateBooking(context.Background(), 1, 1)
				return err
			},
		},
		{
			name: "ticket lookup",
			store: &fakeStore{FindTicketByEnrollmentFunc: func(context.Context, int) (*model.Ticket, error) {
				return nil, storeDown
			}},
			call: func(svc *BookingService) error {
				_, err := svc.CreateBooking(context.Background(), 1, 1)
				return err
			},
		},
		{
			name: "room lookup",
			store: &fakeStore{FindRoomFunc: func(context.Context, int) (*model.Room, error) {
				return nil, storeDown
			}},
			call: func(svc *BookingService) error {
				_, err := svc.CreateBooking(context.Background(), 1, 1)
				return err
			},
		},
		{
			name:  "insert",
			store: &fakeStore{InsertFunc: func(context.Context, int, int) (*model.Booking, error) { return fail() }},
			call: func(svc *BookingService) error {
				_, err := svc.CreateBooking(context.Background(), 1, 1)
				return err
			},
		},
		{
			name: "begin transaction",
			store: &fakeStore{InTxFunc: func(context.Context, func(repository.BookingTx) error) error {
				return storeDown
			}},
			call: func(svc *BookingService) error {
				_, err := svc.CreateBooking(context.Background(), 1, 1)
				return err
			},
		},
		{
			name: "update",
			store: &fakeStore{
				FindByUserFunc: func(context.Context, int) (*model.Booking, error) {
					return &model.Booking{ID: 7, UserID: 1, RoomID: 2}, nil
				},
				UpdateRoomFunc: func(context.Context, int, int) (*model.Booking, error) { return fail() },
			},
			call: func(svc *BookingService) error {
				_, err := svc.UpdateBooking(context.Background(), 7, 1, 3)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewBookingService(tt.store, tt.store, nil, zaptest.NewLogger(t))

			err := tt.call(svc)

			require.Error(t, err)
			assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
			assert.ErrorIs(t, err, storeDown)
		})
	}
}

func TestCreateBooking_CapacityBackstopIsRoomFull(t *testing.T) {
	store := &fakeStore{InsertFunc: func(context.Context, int, int) (*model.Booking, error) {
		return nil, errors.Join(errors.New("insert booking"), repository.ErrRoomFull)
	}}
	svc := NewBookingService(store, store, nil, zaptest.NewLogger(t))

	_, err := svc.CreateBooking(context.Background(), 1, 4)

	assert.ErrorIs(t, err, apperror.ErrRoomFull)
}
