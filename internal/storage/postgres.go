package storage

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
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

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const orderColumns = `id, rider_id, pickup_location, dropoff_location, price, distance_km, status, driver_id, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO orders(rider_id, pickup_location, dropoff_location, price, distance_km, status)
		 VALUES($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		o.RiderID, o.Pickup, o.Dropoff, o.Price, o.DistanceKm, o.Status)
	return row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (p *PostgresStore) ListByRider(ctx context.Context, riderID int64) ([]models.Order, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE rider_id=$1 ORDER BY created_at DESC, id DESC`, riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// AcceptPending is the race decision point: one UPDATE guarded on
// status=PENDING. RowsAffected of that statement alone decides the
// winner; a zero means someone else already has the order (or it never
// existed) and the caller lost.
func (p *PostgresStore) AcceptPending(ctx context.Context, orderID, driverID int64) (*models.Order, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, driver_id=$2, updated_at=now() WHERE id=$3 AND status=$4`,
		models.StatusAccepted, driverID, orderID, models.StatusPending)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	return p.Get(ctx, orderID)
}

func (p *PostgresStore) TransitionStatus(ctx context.Context, orderID int64, from, to models.Status) (*models.Order, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		to, orderID, from)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	return p.Get(ctx, orderID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*models.Order, error) {
	var o models.Order
	var driverID sql.NullInt64
	err := s.Scan(&o.ID, &o.RiderID, &o.Pickup, &o.Dropoff, &o.Price, &o.DistanceKm, &o.Status, &driverID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		o.DriverID = &driverID.Int64
	}
	return &o, nil
}
