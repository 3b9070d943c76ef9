package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/joloLG/joloRide/internal/models"
)

// PostgresStore backs orders, profiles and rider locations with the tables in
// migrations/001_dispatch.sql.
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
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

// Migrate executes a migration script as a single statement batch.
func (p *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := p.db.ExecContext(ctx, script)
	return err
}

const orderColumns = `o.id, o.status, o.user_id, o.rider_id, o.subtotal, o.delivery_fee, o.total_amount,
	o.dropoff_address, o.dropoff_lat, o.dropoff_lng, o.landmark, o.payment_method, o.payment_ref,
	o.created_at, o.updated_at, o.confirmed_at, o.delivered_at`

const profileColumns = `id, full_name, mobile, address, role, is_active, lat, lng, updated_at,
	daily_quota, total_deliveries, total_earnings, last_order_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanOrder(rs rowScanner, extra ...any) (models.Order, error) {
	var (
		o                    models.Order
		status               string
		rider, landmark, ref sql.NullString
		lat, lng             sql.NullFloat64
		confirmed, delivered sql.NullTime
	)
	dest := []any{&o.ID, &status, &o.UserID, &rider, &o.Subtotal, &o.DeliveryFee, &o.TotalAmount,
		&o.Address, &lat, &lng, &landmark, &o.PaymentMethod, &ref,
		&o.CreatedAt, &o.UpdatedAt, &confirmed, &delivered}
	if err := rs.Scan(append(dest, extra...)...); err != nil {
		return models.Order{}, err
	}
	o.Status = models.Status(status)
	o.RiderID = rider.String
	o.Landmark = landmark.String
	o.PaymentRef = ref.String
	if lat.Valid && lng.Valid {
		o.Destination = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	if confirmed.Valid {
		t := confirmed.Time
		o.ConfirmedAt = &t
	}
	if delivered.Valid {
		t := delivered.Time
		o.DeliveredAt = &t
	}
	return o, nil
}

func scanProfile(rs rowScanner) (models.Profile, error) {
	var (
		p         models.Profile
		role      string
		lat, lng  sql.NullFloat64
		posAt     sql.NullTime
		lastOrder sql.NullTime
	)
	if err := rs.Scan(&p.ID, &p.FullName, &p.Mobile, &p.Address, &role, &p.Active, &lat, &lng, &posAt,
		&p.DailyQuota, &p.TotalDeliveries, &p.TotalEarnings, &lastOrder); err != nil {
		return models.Profile{}, err
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return models.Profile{}, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Role = r
	if lat.Valid && lng.Valid {
		p.Position = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	if posAt.Valid {
		t := posAt.Time
		p.PositionAt = &t
	}
	if lastOrder.Valid {
		t := lastOrder.Time
		p.LastOrderAt = &t
	}
	return p, nil
}

func (p *PostgresStore) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	prof, err := scanProfile(p.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return prof, err
}

func (p *PostgresStore) SetActive(ctx context.Context, id string, active bool) (models.Profile, error) {
	prof, err := scanProfile(p.db.QueryRowContext(ctx,
		`UPDATE profiles SET is_active = $2 WHERE id = $1 RETURNING `+profileColumns, id, active))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return prof, err
}

func (p *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lat, lng sql.NullFloat64
	if o.Destination != nil {
		lat = sql.NullFloat64{Float64: o.Destination.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: o.Destination.Lng, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO orders(id, status, user_id, rider_id, subtotal, delivery_fee, total_amount,
		dropoff_address, dropoff_lat, dropoff_lng, landmark, payment_method, payment_ref, created_at, updated_at)
		VALUES($1,$2,$3,NULL,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		o.ID, string(o.Status), o.UserID, o.Subtotal, o.DeliveryFee, o.TotalAmount,
		o.Address, lat, lng, nullString(o.Landmark), o.PaymentMethod, nullString(o.PaymentRef), o.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return fmt.Errorf("customer %s: %w", o.UserID, ErrNotFound)
		}
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO order_items(order_id, product_id, name, quantity, unit_price) VALUES($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Name, it.Quantity, it.UnitPrice); err != nil {
			return fmt.Errorf("insert order %s item %s: %w", o.ID, it.ProductID, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	o, err := getOrder(ctx, p.db, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := p.attachItems(ctx, []*models.Order{&o}); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

func getOrder(ctx context.Context, q queryer, id string) (models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, err
}

// UpdateOrderIf runs the guarded write as one UPDATE so that concurrent
// callers serialize on the row lock and re-check the guard after it.
func (p *PostgresStore) UpdateOrderIf(ctx context.Context, id string, g Guard, u Update) (models.Order, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, err
	}
	defer tx.Rollback()

	if g.Quota > 0 && u.AssignRider != "" {
		if err := checkQuota(ctx, tx, u.AssignRider, g); err != nil {
			if !errors.Is(err, ErrQuotaReached) {
				return models.Order{}, err
			}
			cur, gerr := getOrder(ctx, tx, id)
			if gerr != nil {
				return models.Order{}, gerr
			}
			return cur, ErrQuotaReached
		}
	}

	q, args := buildGuardedUpdate(id, g, u)
	o, err := scanOrder(tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		cur, gerr := getOrder(ctx, tx, id)
		if gerr != nil {
			return models.Order{}, gerr
		}
		return cur, ErrGuardFailed
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("update order %s: %w", id, err)
	}

	if u.CreditRider {
		if err := execOne(ctx, tx, `UPDATE profiles SET total_deliveries = total_deliveries + 1, total_earnings = total_earnings + $2 WHERE id = $1`,
			o.RiderID, o.DeliveryFee); err != nil {
			return models.Order{}, fmt.Errorf("credit rider %s: %w", o.RiderID, err)
		}
	}
	if u.TouchRider {
		if err := execOne(ctx, tx, `UPDATE profiles SET last_order_at = $2 WHERE id = $1`, o.RiderID, u.At); err != nil {
			return models.Order{}, fmt.Errorf("touch rider %s: %w", o.RiderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Order{}, fmt.Errorf("commit order %s: %w", id, err)
	}
	if err := p.attachItems(ctx, []*models.Order{&o}); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

func buildGuardedUpdate(id string, g Guard, u Update) (string, []any) {
	args := []any{id, string(u.Status), u.At}
	sets := []string{"status = $2", "updated_at = $3"}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	switch {
	case u.AssignRider != "":
		add("rider_id = $%d", u.AssignRider)
	case u.ClearRider:
		sets = append(sets, "rider_id = NULL")
	}
	if u.ConfirmedAt != nil {
		add("confirmed_at = $%d", *u.ConfirmedAt)
	}
	if u.ClearConfirmedAt {
		sets = append(sets, "confirmed_at = NULL")
	}
	if u.DeliveredAt != nil {
		add("delivered_at = $%d", *u.DeliveredAt)
	}

	where := []string{"o.id = $1"}
	args = append(args, pq.Array(statusStrings(g.Statuses)))
	where = append(where, fmt.Sprintf("o.status = ANY($%d)", len(args)))
	if g.Unassigned {
		where = append(where, "o.rider_id IS NULL")
	}
	if g.RiderID != "" {
		args = append(args, g.RiderID)
		where = append(where, fmt.Sprintf("o.rider_id = $%d", len(args)))
	}
	q := fmt.Sprintf(`UPDATE orders AS o SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), strings.Join(where, " AND "), orderColumns)
	return q, args
}

func (p *PostgresStore) ListCandidates(ctx context.Context, limit int) ([]models.Candidate, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+`, c.full_name, c.mobile, c.address
		FROM orders o JOIN profiles c ON c.id = o.user_id
		WHERE o.status = 'pending' AND o.rider_id IS NULL
		ORDER BY o.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Candidate, 0)
	for rows.Next() {
		var c models.Candidate
		o, err := scanOrder(rows, &c.CustomerName, &c.CustomerMobile, &c.CustomerAddress)
		if err != nil {
			return nil, err
		}
		c.Order = o
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*models.Order, len(out))
	for i := range out {
		ptrs[i] = &out[i].Order
	}
	return out, p.attachItems(ctx, ptrs)
}

func (p *PostgresStore) ListByRider(ctx context.Context, riderID string, statuses []models.Status) ([]models.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders o
		WHERE o.rider_id = $1 AND o.status = ANY($2) ORDER BY o.created_at DESC`,
		riderID, pq.Array(statusStrings(statuses)))
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
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*models.Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, p.attachItems(ctx, ptrs)
}

// checkQuota holds the rider's profile row until commit, so concurrent claims
// by one rider see each other's assignments in the count.
func checkQuota(ctx context.Context, tx *sql.Tx, riderID string, g Guard) error {
	var locked string
	err := tx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE id = $1 FOR UPDATE`, riderID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rider %s: %w", riderID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock rider %s: %w", riderID, err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM orders WHERE rider_id = $1 AND confirmed_at >= $2`,
		riderID, g.QuotaSince).Scan(&n); err != nil {
		return fmt.Errorf("count assigned %s: %w", riderID, err)
	}
	if n >= g.Quota {
		return ErrQuotaReached
	}
	return nil
}

func (p *PostgresStore) DeliveredSince(ctx context.Context, riderID string, since time.Time) (int, float64, error) {
	var (
		n    int
		fees float64
	)
	err := p.db.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(delivery_fee), 0) FROM orders
		WHERE rider_id = $1 AND status = 'delivered' AND delivered_at >= $2`, riderID, since).Scan(&n, &fees)
	return n, fees, err
}

func (p *PostgresStore) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}
	rows, err := p.db.QueryContext(ctx, `SELECT order_id, product_id, name, quantity, unit_price FROM order_items WHERE order_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			it      models.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func execOne(ctx context.Context, tx *sql.Tx, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrNotFound
	}
	return nil
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
