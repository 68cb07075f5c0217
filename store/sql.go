package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Capstone-2-FMSuggestion-System/backend/model"
)

const uniqueViolation = "23505"

// SQL implements Store on top of a *sql.DB (obtained from gorm's pool after
// AutoMigrate has run).
type SQL struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	q := `SELECT id, name, price FROM products WHERE id=$1`

	var p model.Product
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Name, &p.Price)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQL) CreateOrder(ctx context.Context, order *model.Order, items []model.OrderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertOrder := `
        INSERT INTO orders
        (user_id, total_amount, status, payment_method, recipient_name, recipient_phone,
         shipping_address, shipping_city, shipping_postal_code, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
        RETURNING id, created_at
    `

	err = tx.QueryRowContext(ctx, insertOrder,
		order.UserID, order.TotalAmount, order.Status, order.PaymentMethod,
		order.RecipientName, order.RecipientPhone,
		order.ShippingAddress, order.ShippingCity, order.ShippingPostalCode,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return err
	}

	insertItem := `
        INSERT INTO order_items (order_id, product_id, quantity, price)
        VALUES ($1,$2,$3,$4)
        RETURNING id
    `
	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowContext(ctx, insertItem,
			items[i].OrderID, items[i].ProductID, items[i].Quantity, items[i].Price,
		).Scan(&items[i].ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `id, user_id, total_amount, status, payment_method, recipient_name,
       recipient_phone, shipping_address, shipping_city, shipping_postal_code,
       created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.PaymentMethod,
		&o.RecipientName, &o.RecipientPhone, &o.ShippingAddress,
		&o.ShippingCity, &o.ShippingPostalCode, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQL) GetOrder(ctx context.Context, id uint) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`

	o, err := scanOrder(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQL) ListOrdersByUser(ctx context.Context, userID uint) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

func (s *SQL) MarkOrderStatus(ctx context.Context, orderID uint, status model.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) CreatePayment(ctx context.Context, payment *model.Payment) error {
	q := `
        INSERT INTO payments (order_id, amount, method, status, gateway_payload, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
        RETURNING id, created_at
    `

	err := s.db.QueryRowContext(ctx, q,
		payment.OrderID, payment.Amount, payment.Method, payment.Status, payment.GatewayPayload,
	).Scan(&payment.ID, &payment.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicatePayment
	}
	return err
}

const paymentColumns = `id, order_id, amount, method, status, external_ref, gateway_payload,
       created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	var ref sql.NullString
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &ref,
		&p.GatewayPayload, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		p.ExternalRef = &ref.String
	}
	return &p, nil
}

func (s *SQL) getPayment(ctx context.Context, where string, arg any) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where

	p, err := scanPayment(s.db.QueryRowContext(ctx, q, arg))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQL) GetPayment(ctx context.Context, id uint) (*model.Payment, error) {
	return s.getPayment(ctx, `id=$1`, id)
}

func (s *SQL) GetPaymentByOrder(ctx context.Context, orderID uint) (*model.Payment, error) {
	return s.getPayment(ctx, `order_id=$1`, orderID)
}

func (s *SQL) GetPaymentByExternalRef(ctx context.Context, ref string) (*model.Payment, error) {
	return s.getPayment(ctx, `external_ref=$1`, ref)
}

func (s *SQL) SetPaymentExternalRef(ctx context.Context, paymentID uint, ref, payload string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE payments SET external_ref=$1, gateway_payload=$2, updated_at=NOW()
        WHERE id=$3
    `, ref, payload, paymentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) MarkPaymentFailed(ctx context.Context, paymentID uint, payload string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE payments SET status=$1, gateway_payload=$2, updated_at=NOW()
        WHERE id=$3
    `, model.PaymentFailed, payload, paymentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) listPayments(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func (s *SQL) ListAllPayments(ctx context.Context) ([]model.Payment, error) {
	return s.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC`)
}

func (s *SQL) ListPendingPayments(ctx context.Context, olderThan time.Time) ([]model.Payment, error) {
	return s.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status=$1 AND created_at < $2 ORDER BY created_at`,
		model.PaymentPending, olderThan)
}

func (s *SQL) ApplyTransition(ctx context.Context, paymentID uint, from, to model.PaymentStatus, orderStatus model.OrderStatus, payload string) (*model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Conditional update: only the first signal to land moves the row.
	updatePayment := `
        UPDATE payments SET status=$1, gateway_payload=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
        RETURNING order_id
    `

	var orderID uint
	err = tx.QueryRowContext(ctx, updatePayment, to, payload, paymentID, from).Scan(&orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updateOrder := `
        UPDATE orders SET status=$1, updated_at=NOW()
        WHERE id=$2
        RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, updateOrder, orderStatus, orderID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}
