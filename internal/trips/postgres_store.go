package trips

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-capture/internal/geo"
	"github.com/example/trip-capture/internal/tripstate"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateTrip(ctx context.Context, t *Trip) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO trips(id, passenger_id, status, created_at, updated_at) VALUES($1,$2,$3,$4,$5)`,
		t.ID, t.PassengerID, t.Status.String(), t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*Trip, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, status,
		       origin_lat, origin_lng, origin_address, origin_phone, origin_description,
		       dest_lat, dest_lng, dest_address, dest_phone, dest_description,
		       fare_estimate, payment_hold, created_at, updated_at
		FROM trips WHERE id=$1`, id)

	var t Trip
	var status string
	var oLat, oLng, dLat, dLng sql.NullFloat64
	var oAddr, oPhone, oDesc, dAddr, dPhone, dDesc, hold sql.NullString
	var fare sql.NullInt64
	err := row.Scan(&t.ID, &t.PassengerID, &status,
		&oLat, &oLng, &oAddr, &oPhone, &oDesc,
		&dLat, &dLng, &dAddr, &dPhone, &dDesc,
		&fare, &hold, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status, err = tripstate.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("trip %s: %w", id, err)
	}
	t.Origin = scanLocation(oLat, oLng, oAddr, oPhone, oDesc)
	t.Destination = scanLocation(dLat, dLng, dAddr, dPhone, dDesc)
	t.FareEstimate = fare.Int64
	t.PaymentHold = hold.String
	return &t, nil
}

func scanLocation(lat, lng sql.NullFloat64, addr, phone, desc sql.NullString) CapturedLocation {
	loc := CapturedLocation{
		TextAddress: addr.String,
		PhoneNumber: phone.String,
		Description: desc.String,
	}
	if lat.Valid && lng.Valid {
		loc.Coordinate = &geo.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	return loc
}

func (p *PostgresStore) SetLocation(ctx context.Context, tripID string, which tripstate.CaptureContext, loc CapturedLocation) error {
	prefix := "origin"
	if which == tripstate.ContextDestination {
		prefix = "dest"
	}
	q := fmt.Sprintf(`UPDATE trips SET %[1]s_lat=$1, %[1]s_lng=$2, %[1]s_address=$3, %[1]s_phone=$4, %[1]s_description=$5, updated_at=$6 WHERE id=$7`, prefix)
	var lat, lng any
	if loc.Coordinate != nil {
		lat, lng = loc.Coordinate.Lat, loc.Coordinate.Lng
	}
	res, err := p.db.ExecContext(ctx, q, lat, lng, loc.TextAddress, loc.PhoneNumber, loc.Description, time.Now(), tripID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, tripID string, status tripstate.Status) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET status=$1, updated_at=$2 WHERE id=$3`,
		status.String(), time.Now(), tripID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *PostgresStore) SetPaymentHold(ctx context.Context, tripID, holdID string, fareEstimate int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET payment_hold=$1, fare_estimate=$2, updated_at=$3 WHERE id=$4`,
		holdID, fareEstimate, time.Now(), tripID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTripNotFound
	}
	return nil
}
