// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so queries run inside or
// outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries bundles all SQL access against a connection or transaction.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type Owner struct {
	ID             int64
	Email          string
	DisplayName    string
	PasswordHash   string
	RefreshToken   sql.NullString
	AccessToken    sql.NullString
	TokenExpiresAt sql.NullTime
	CreatedAt      time.Time
}

type BookingPreferencesRow struct {
	ID            int64
	OwnerID       int64
	MondayFrom    sql.NullString
	MondayTo      sql.NullString
	TuesdayFrom   sql.NullString
	TuesdayTo     sql.NullString
	WednesdayFrom sql.NullString
	WednesdayTo   sql.NullString
	ThursdayFrom  sql.NullString
	ThursdayTo    sql.NullString
	FridayFrom    sql.NullString
	FridayTo      sql.NullString
	SaturdayFrom  sql.NullString
	SaturdayTo    sql.NullString
	SundayFrom    sql.NullString
	SundayTo      sql.NullString
	LunchFrom     sql.NullString
	LunchTo       sql.NullString
	Increment     int64
	Duration      int64
	UpdatedAt     time.Time
}

type Booking struct {
	ID              int64
	OwnerID         int64
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int64
	FirstName       string
	LastName        string
	Email           string
	Phone           sql.NullString
	Subject         string
	OutlookID       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const createOwner = `
INSERT INTO owners (email, display_name, password_hash)
VALUES (?, ?, ?)
RETURNING id, email, display_name, password_hash, refresh_token, access_token, token_expires_at, created_at
`

type CreateOwnerParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

func (q *Queries) CreateOwner(ctx context.Context, arg CreateOwnerParams) (Owner, error) {
	row := q.db.QueryRowContext(ctx, createOwner, arg.Email, arg.DisplayName, arg.PasswordHash)
	return scanOwner(row)
}

const getOwnerByID = `
SELECT id, email, display_name, password_hash, refresh_token, access_token, token_expires_at, created_at
FROM owners WHERE id = ?
`

func (q *Queries) GetOwnerByID(ctx context.Context, id int64) (Owner, error) {
	return scanOwner(q.db.QueryRowContext(ctx, getOwnerByID, id))
}

const getOwnerByEmail = `
SELECT id, email, display_name, password_hash, refresh_token, access_token, token_expires_at, created_at
FROM owners WHERE email = ?
`

func (q *Queries) GetOwnerByEmail(ctx context.Context, email string) (Owner, error) {
	return scanOwner(q.db.QueryRowContext(ctx, getOwnerByEmail, email))
}

const updateOwnerTokens = `
UPDATE owners SET refresh_token = ?, access_token = ?, token_expires_at = ?
WHERE id = ?
`

type UpdateOwnerTokensParams struct {
	RefreshToken   sql.NullString
	AccessToken    sql.NullString
	TokenExpiresAt sql.NullTime
	OwnerID        int64
}

func (q *Queries) UpdateOwnerTokens(ctx context.Context, arg UpdateOwnerTokensParams) error {
	_, err := q.db.ExecContext(ctx, updateOwnerTokens,
		arg.RefreshToken, arg.AccessToken, arg.TokenExpiresAt, arg.OwnerID)
	return err
}

func scanOwner(row *sql.Row) (Owner, error) {
	var o Owner
	err := row.Scan(&o.ID, &o.Email, &o.DisplayName, &o.PasswordHash,
		&o.RefreshToken, &o.AccessToken, &o.TokenExpiresAt, &o.CreatedAt)
	return o, err
}

const getPreferencesByOwner = `
SELECT id, owner_id,
       monday_from, monday_to, tuesday_from, tuesday_to,
       wednesday_from, wednesday_to, thursday_from, thursday_to,
       friday_from, friday_to, saturday_from, saturday_to,
       sunday_from, sunday_to, lunch_from, lunch_to,
       availability_increment, booking_duration, updated_at
FROM booking_preferences WHERE owner_id = ?
`

func (q *Queries) GetPreferencesByOwner(ctx context.Context, ownerID int64) (BookingPreferencesRow, error) {
	row := q.db.QueryRowContext(ctx, getPreferencesByOwner, ownerID)
	var p BookingPreferencesRow
	err := row.Scan(&p.ID, &p.OwnerID,
		&p.MondayFrom, &p.MondayTo, &p.TuesdayFrom, &p.TuesdayTo,
		&p.WednesdayFrom, &p.WednesdayTo, &p.ThursdayFrom, &p.ThursdayTo,
		&p.FridayFrom, &p.FridayTo, &p.SaturdayFrom, &p.SaturdayTo,
		&p.SundayFrom, &p.SundayTo, &p.LunchFrom, &p.LunchTo,
		&p.Increment, &p.Duration, &p.UpdatedAt)
	return p, err
}

const upsertPreferences = `
INSERT INTO booking_preferences (
    owner_id,
    monday_from, monday_to, tuesday_from, tuesday_to,
    wednesday_from, wednesday_to, thursday_from, thursday_to,
    friday_from, friday_to, saturday_from, saturday_to,
    sunday_from, sunday_to, lunch_from, lunch_to,
    availability_increment, booking_duration, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(owner_id) DO UPDATE SET
    monday_from = excluded.monday_from, monday_to = excluded.monday_to,
    tuesday_from = excluded.tuesday_from, tuesday_to = excluded.tuesday_to,
    wednesday_from = excluded.wednesday_from, wednesday_to = excluded.wednesday_to,
    thursday_from = excluded.thursday_from, thursday_to = excluded.thursday_to,
    friday_from = excluded.friday_from, friday_to = excluded.friday_to,
    saturday_from = excluded.saturday_from, saturday_to = excluded.saturday_to,
    sunday_from = excluded.sunday_from, sunday_to = excluded.sunday_to,
    lunch_from = excluded.lunch_from, lunch_to = excluded.lunch_to,
    availability_increment = excluded.availability_increment,
    booking_duration = excluded.booking_duration,
    updated_at = CURRENT_TIMESTAMP
`

type UpsertPreferencesParams struct {
	OwnerID       int64
	MondayFrom    sql.NullString
	MondayTo      sql.NullString
	TuesdayFrom   sql.NullString
	TuesdayTo     sql.NullString
	WednesdayFrom sql.NullString
	WednesdayTo   sql.NullString
	ThursdayFrom  sql.NullString
	ThursdayTo    sql.NullString
	FridayFrom    sql.NullString
	FridayTo      sql.NullString
	SaturdayFrom  sql.NullString
	SaturdayTo    sql.NullString
	SundayFrom    sql.NullString
	SundayTo      sql.NullString
	LunchFrom     sql.NullString
	LunchTo       sql.NullString
	Increment     int64
	Duration      int64
}

func (q *Queries) UpsertPreferences(ctx context.Context, arg UpsertPreferencesParams) error {
	_, err := q.db.ExecContext(ctx, upsertPreferences,
		arg.OwnerID,
		arg.MondayFrom, arg.MondayTo, arg.TuesdayFrom, arg.TuesdayTo,
		arg.WednesdayFrom, arg.WednesdayTo, arg.ThursdayFrom, arg.ThursdayTo,
		arg.FridayFrom, arg.FridayTo, arg.SaturdayFrom, arg.SaturdayTo,
		arg.SundayFrom, arg.SundayTo, arg.LunchFrom, arg.LunchTo,
		arg.Increment, arg.Duration)
	return err
}

const createBooking = `
INSERT INTO bookings (
    owner_id, start_time, end_time, duration_minutes,
    first_name, last_name, email, phone, subject
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, owner_id, start_time, end_time, duration_minutes,
          first_name, last_name, email, phone, subject, outlook_id, created_at, updated_at
`

type CreateBookingParams struct {
	OwnerID         int64
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int64
	FirstName       string
	LastName        string
	Email           string
	Phone           sql.NullString
	Subject         string
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, createBooking,
		arg.OwnerID, arg.StartTime, arg.EndTime, arg.DurationMinutes,
		arg.FirstName, arg.LastName, arg.Email, arg.Phone, arg.Subject)
	return scanBooking(row)
}

const getBooking = `
SELECT id, owner_id, start_time, end_time, duration_minutes,
       first_name, last_name, email, phone, subject, outlook_id, created_at, updated_at
FROM bookings WHERE id = ?
`

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, getBooking, id))
}

const setBookingOutlookID = `
UPDATE bookings SET outlook_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

func (q *Queries) SetBookingOutlookID(ctx context.Context, id int64, outlookID string) error {
	_, err := q.db.ExecContext(ctx, setBookingOutlookID, outlookID, id)
	return err
}

const updateBookingTimes = `
UPDATE bookings
SET start_time = ?, end_time = ?, duration_minutes = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

type UpdateBookingTimesParams struct {
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int64
	ID              int64
}

func (q *Queries) UpdateBookingTimes(ctx context.Context, arg UpdateBookingTimesParams) error {
	_, err := q.db.ExecContext(ctx, updateBookingTimes,
		arg.StartTime, arg.EndTime, arg.DurationMinutes, arg.ID)
	return err
}

const deleteBooking = `
DELETE FROM bookings WHERE id = ?
`

func (q *Queries) DeleteBooking(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteBooking, id)
	return err
}

const listBookingsStartingBetween = `
SELECT id, owner_id, start_time, end_time, duration_minutes,
       first_name, last_name, email, phone, subject, outlook_id, created_at, updated_at
FROM bookings
WHERE start_time >= ? AND start_time < ?
ORDER BY start_time
`

func (q *Queries) ListBookingsStartingBetween(ctx context.Context, start, end time.Time) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, listBookingsStartingBetween, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.StartTime, &b.EndTime, &b.DurationMinutes,
			&b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Subject, &b.OutlookID,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row *sql.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.OwnerID, &b.StartTime, &b.EndTime, &b.DurationMinutes,
		&b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Subject, &b.OutlookID,
		&b.CreatedAt, &b.UpdatedAt)
	return b, err
}
