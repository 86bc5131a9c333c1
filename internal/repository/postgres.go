package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgCheckViolation      = "23514"
	pgForeignKeyViolation = "23503"

	roomCapacityConstraint = "bookings_room_capacity"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements BookingStore, EligibilityStore and SessionStore
// with pgx directly.
type PostgresStore struct {
	pool *pgxpool.Pool
	queries
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, queries: queries{db: pool}}
}

// InTx runs fn in a transaction whose FindRoom takes a row lock.
//
// Two requests booking the last place of a room would otherwise both read
// the same occupancy and both insert. SELECT … FOR UPDATE on the room row
// makes the second transaction wait until the first commits or rolls back,
// so it counts the first booking before deciding.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx BookingTx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(queries{db: tx, lockRooms: true}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// queries holds the SQL shared by pool and transaction access.
type queries struct {
	db        dbtx
	lockRooms bool
}

const bookingColumns = `b.id, b.user_id, b.room_id, b.created_at, b.updated_at`

const roomColumns = `r.id, r.hotel_id, r.name, r.capacity, r.created_at, r.updated_at`

func (q queries) FindByUser(ctx context.Context, userID int) (*model.Booking, error) {
	var (
		b    model.Booking
		room model.Room
	)
	err := q.db.QueryRow(ctx,
		`SELECT `+bookingColumns+`, `+roomColumns+`
		 FROM bookings b
		 JOIN rooms r ON r.id = b.room_id
		 WHERE b.user_id = $1
		 ORDER BY b.id
		 LIMIT 1`,
		userID,
	).Scan(
		&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt,
		&room.ID, &room.HotelID, &room.Name, &room.Capacity, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find booking by user: %w", err)
	}
	b.Room = &room
	return &b, nil
}

func (q queries) FindRoom(ctx context.Context, roomID int) (*model.Room, error) {
	sql := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.id = $1`
	if q.lockRooms {
		sql += ` FOR UPDATE`
	}

	var room model.Room
	err := q.db.QueryRow(ctx, sql, roomID).Scan(
		&room.ID, &room.HotelID, &room.Name, &room.Capacity, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.room_id = $1
		 ORDER BY b.id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list room bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		room.Occupants = append(room.Occupants, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list room bookings: %w", err)
	}
	return &room, nil
}

func (q queries) Insert(ctx context.Context, userID, roomID int) (*model.Booking, error) {
	var b model.Booking
	err := q.db.QueryRow(ctx,
		`INSERT INTO bookings AS b (user_id, room_id)
		 VALUES ($1, $2)
		 RETURNING `+bookingColumns,
		userID, roomID,
	).Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapWriteError("insert booking", err)
	}
	return &b, nil
}

func (q queries) UpdateRoom(ctx context.Context, bookingID, roomID int) (*model.Booking, error) {
	var b model.Booking
	err := q.db.QueryRow(ctx,
		`UPDATE bookings AS b
		 SET room_id = $2, updated_at = now()
		 WHERE b.id = $1
		 RETURNING `+bookingColumns,
		bookingID, roomID,
	).Scan(&b.ID, &b.UserID, &b.RoomID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapWriteError("update booking room", err)
	}
	return &b, nil
}

// mapWriteError turns the capacity trigger and room foreign key rejections
// into sentinels.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == roomCapacityConstraint:
			return fmt.Errorf("%s: %w", op, ErrRoomFull)
		case pgErr.Code == pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *PostgresStore) FindEnrollmentByUser(ctx context.Context, userID int) (*model.Enrollment, error) {
	var e model.Enrollment
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, has_address FROM enrollments WHERE user_id = $1`,
		userID,
	).Scan(&e.ID, &e.UserID, &e.HasAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) FindTicketByEnrollment(ctx context.Context, enrollmentID int) (*model.Ticket, error) {
	var t model.Ticket
	err := s.pool.QueryRow(ctx,
		`SELECT t.id, t.enrollment_id, t.status,
		        tt.id, tt.name, tt.is_remote, tt.includes_hotel, tt.price
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 WHERE t.enrollment_id = $1`,
		enrollmentID,
	).Scan(
		&t.ID, &t.EnrollmentID, &t.Status,
		&t.TicketType.ID, &t.TicketType.Name, &t.TicketType.IsRemote, &t.TicketType.IncludesHotel, &t.TicketType.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) SessionExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE token = $1)`,
		token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return exists, nil
}
