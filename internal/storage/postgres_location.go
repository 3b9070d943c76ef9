package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/models"
)

// Upsert writes the rider's position columns on profiles unless the stored
// updated_at is newer than the sample.
func (p *PostgresStore) Upsert(ctx context.Context, s models.Sample) (models.Sample, bool, error) {
	cur := models.Sample{RiderID: s.RiderID}
	err := p.db.QueryRowContext(ctx, `UPDATE profiles SET lat = $2, lng = $3, updated_at = $4
		WHERE id = $1 AND (updated_at IS NULL OR updated_at <= $4)
		RETURNING lat, lng, updated_at`, s.RiderID, s.Lat, s.Lng, s.Timestamp).Scan(&cur.Lat, &cur.Lng, &cur.Timestamp)
	if err == nil {
		cur.OrderID, cur.Accuracy = s.OrderID, s.Accuracy
		return cur, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Sample{}, false, fmt.Errorf("upsert rider %s: %w", s.RiderID, err)
	}
	cur, err = p.Current(ctx, s.RiderID)
	if err != nil {
		return models.Sample{}, false, err
	}
	return cur, false, nil
}

func (p *PostgresStore) Current(ctx context.Context, riderID string) (models.Sample, error) {
	var (
		lat, lng sql.NullFloat64
		at       sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `SELECT lat, lng, updated_at FROM profiles WHERE id = $1`, riderID).Scan(&lat, &lng, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sample{}, location.ErrNoLocation
	}
	if err != nil {
		return models.Sample{}, fmt.Errorf("current rider %s: %w", riderID, err)
	}
	if !lat.Valid || !lng.Valid || !at.Valid {
		return models.Sample{}, location.ErrNoLocation
	}
	return models.Sample{RiderID: riderID, Lat: lat.Float64, Lng: lng.Float64, Timestamp: at.Time}, nil
}

func (p *PostgresStore) AppendHistory(ctx context.Context, s models.Sample) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rider_location_history(rider_id, order_id, lat, lng, accuracy, timestamp)
		VALUES($1,$2,$3,$4,$5,$6)`, s.RiderID, s.OrderID, s.Lat, s.Lng, s.Accuracy, s.Timestamp)
	return err
}

func (p *PostgresStore) History(ctx context.Context, riderID, orderID string) ([]models.Sample, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT lat, lng, COALESCE(accuracy, 0), timestamp FROM rider_location_history
		WHERE rider_id = $1 AND order_id = $2 ORDER BY timestamp`, riderID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Sample, 0)
	for rows.Next() {
		s := models.Sample{RiderID: riderID, OrderID: orderID}
		if err := rows.Scan(&s.Lat, &s.Lng, &s.Accuracy, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
