package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrProductUnavailable  = errors.New("product is not available")
	ErrOrderStatusConflict = errors.New("order status changed concurrently")
)

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID *uuid.UUID
	Status *domain.OrderStatus
}

// OrderRepository defines the interface for order data access. Stock
// reservation and restitution always happen in the same transaction as the
// order mutation, so a failure never leaves a partial stock change behind.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, deliveredAt *time.Time) error
	CancelAndRestock(ctx context.Context, id uuid.UUID) (restocked bool, err error)
	DeleteAndRestock(ctx context.Context, id uuid.UUID) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create reserves stock for every line and persists the order and its items
// in one transaction. Any line failing its conditional decrement rolls the
// whole reservation back, so earlier lines are never left decremented.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	decrementQuery := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND is_available = TRUE AND stock >= $2
	`

	for _, item := range order.Items {
		result, err := tx.ExecContext(ctx, decrementQuery, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return r.diagnoseReservationFailure(ctx, tx, item)
		}
	}

	orderQuery := `
		INSERT INTO orders (id, user_id, ship_street, ship_city, ship_postal_code, ship_country,
		                    payment_method, payment_status, paid_at, total_items, total_price,
		                    status, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = tx.ExecContext(
		ctx,
		orderQuery,
		order.ID,
		order.UserID,
		order.Shipping.Street,
		order.Shipping.City,
		order.Shipping.PostalCode,
		order.Shipping.Country,
		order.PaymentMethod,
		order.PaymentStatus,
		order.PaidAt,
		order.TotalItems,
		order.TotalPrice,
		order.Status,
		order.DeliveredAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, itemQuery, order.ID, item.ProductID, item.Name, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

// diagnoseReservationFailure maps a zero-rows conditional decrement to the
// precise domain error: missing product, unavailable product, or shortfall.
func (r *orderRepository) diagnoseReservationFailure(ctx context.Context, tx *sql.Tx, item domain.OrderItem) error {
	var stock int
	var isAvailable bool
	err := tx.QueryRowContext(ctx, `SELECT stock, is_available FROM products WHERE id = $1`, item.ProductID).
		Scan(&stock, &isAvailable)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect product: %w", err)
	}
	if !isAvailable {
		return fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
	}
	return fmt.Errorf("%w: product %s has %d available, %d requested", ErrInsufficientStock, item.ProductID, stock, item.Quantity)
}

const orderColumns = `id, user_id, ship_street, ship_city, ship_postal_code, ship_country,
	payment_method, payment_status, paid_at, total_items, total_price, status, delivered_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var paidAt, deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Shipping.Street,
		&order.Shipping.City,
		&order.Shipping.PostalCode,
		&order.Shipping.Country,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&paidAt,
		&order.TotalItems,
		&order.TotalPrice,
		&order.Status,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		item := domain.OrderItem{}
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	order.Items, err = r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}

	return order, nil
}

// List retrieves orders sorted by recency with optional user/status filter
func (r *orderRepository) List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if filter.UserID != nil {
		whereClause = fmt.Sprintf("WHERE user_id = $%d", argIndex)
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		if whereClause == "" {
			whereClause = fmt.Sprintf("WHERE status = $%d", argIndex)
		} else {
			whereClause += fmt.Sprintf(" AND status = $%d", argIndex)
		}
		args = append(args, *filter.Status)
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		order.Items, err = r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// UpdateStatus sets a non-cancellation status. Cancellation goes through
// CancelAndRestock so restitution stays tied to the status flip. The write is
// conditional on the status the caller observed, so a transition validated
// against a stale read never overwrites a concurrent cancellation.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, deliveredAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $2, delivered_at = COALESCE($3, delivered_at), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, id, to, deliveredAt, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var current domain.OrderStatus
		err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to re-read order status: %w", err)
		}
		return fmt.Errorf("%w: expected %s, found %s", ErrOrderStatusConflict, from, current)
	}

	return nil
}

// CancelAndRestock flips an order to cancelled and returns every line's stock
// in one transaction. The conditional status update makes restitution
// idempotent: an already-cancelled order is never credited again.
func (r *orderRepository) CancelAndRestock(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2
	`, id, domain.OrderStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the order does not exist or it is already cancelled
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("failed to check order existence: %w", err)
		}
		if !exists {
			return false, ErrOrderNotFound
		}
		return false, tx.Commit()
	}

	if err := restockItems(ctx, tx, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return true, nil
}

// DeleteAndRestock removes an order permanently, restituting stock exactly
// once unless the order was already cancelled (which restituted already).
func (r *orderRepository) DeleteAndRestock(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read order status: %w", err)
	}

	if status != domain.OrderStatusCancelled {
		if err := restockItems(ctx, tx, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete order items: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}

	return nil
}

func restockItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products p
		SET stock = p.stock + oi.quantity, updated_at = NOW()
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to restock order items: %w", err)
	}
	return nil
}
