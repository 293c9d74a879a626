package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// DefaultOrderDeadline bounds a single order operation
const DefaultOrderDeadline = 10 * time.Second

var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidOrder      = errors.New("invalid order request")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderTimeout      = errors.New("order operation timed out")
)

// CreateOrderItem is one requested line of a new order
type CreateOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderRequest is the payload for creating an order
type CreateOrderRequest struct {
	Items         []CreateOrderItem
	Shipping      domain.ShippingAddress
	PaymentMethod domain.PaymentMethod
}

// OrderService defines the order workflow business logic
type OrderService interface {
	Create(ctx context.Context, principal Principal, req CreateOrderRequest) (*domain.Order, error)
	Get(ctx context.Context, principal Principal, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, principal Principal, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, principal Principal, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, principal Principal, id uuid.UUID) (*domain.Order, error)
	Delete(ctx context.Context, principal Principal, id uuid.UUID) error
}

type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	policy      AuthorizationPolicy
	deadline    time.Duration
}

// NewOrderService creates a new instance of OrderService. A non-positive
// deadline falls back to DefaultOrderDeadline.
func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	policy AuthorizationPolicy,
	deadline time.Duration,
) OrderService {
	if deadline <= 0 {
		deadline = DefaultOrderDeadline
	}
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		policy:      policy,
		deadline:    deadline,
	}
}

// opContext bounds one workflow operation. All mutation is transactional, so
// hitting the deadline never leaves a partial stock change.
func (s *orderService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.deadline)
}

func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOrderTimeout, err)
	}
	return err
}

// Create validates every line against current stock without mutating, then
// applies all decrements and persists the order in one transaction.
func (s *orderService) Create(ctx context.Context, principal Principal, req CreateOrderRequest) (*domain.Order, error) {
	if decision := s.policy.CanCreateOrder(principal); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, decision.Reason)
	}

	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	// Validation pass: no stock is mutated until every line has checked out
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		product, err := s.productRepo.FindByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", repository.ErrProductNotFound, line.ProductID)
			}
			return nil, mapTimeout(err)
		}

		if !product.IsAvailable {
			return nil, fmt.Errorf("%w: %s", repository.ErrProductUnavailable, product.Name)
		}

		if product.Stock < line.Quantity {
			return nil, fmt.Errorf("%w: product %q has %d available, %d requested",
				repository.ErrInsufficientStock, product.Name, product.Stock, line.Quantity)
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     product.Price,
		})
	}

	totalItems, totalPrice := domain.ComputeTotals(items)

	now := time.Now()
	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        principal.ID,
		Items:         items,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
		TotalItems:    totalItems,
		TotalPrice:    totalPrice,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The repository re-applies every decrement conditionally inside one
	// transaction; a concurrent shopper losing the race surfaces here with
	// nothing reserved.
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, mapTimeout(err)
	}

	return order, nil
}

func validateCreateRequest(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrder)
		}
	}
	addr := req.Shipping
	if addr.Street == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrInvalidOrder)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, req.PaymentMethod)
	}
	return nil
}

// Get returns an order visible to the principal
func (s *orderService) Get(ctx context.Context, principal Principal, id uuid.UUID) (*domain.Order, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapTimeout(err)
	}

	if decision := s.policy.CanViewOrder(principal, order); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	return order, nil
}

// List returns orders visible to the principal, newest first. Non-admins only
// ever see their own orders regardless of the requested filter.
func (s *orderService) List(ctx context.Context, principal Principal, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	if principal.Zero() {
		return nil, 0, ErrUnauthenticated
	}

	if decision := s.policy.CanListAllOrders(principal); !decision.Allowed {
		userID := principal.ID
		filter.UserID = &userID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	orders, total, err := s.orderRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, mapTimeout(err)
	}

	return orders, total, nil
}

// UpdateStatus drives the order status machine. Cancelling restitutes stock
// exactly once; re-cancelling an already-cancelled order is a no-op.
func (s *orderService) UpdateStatus(ctx context.Context, principal Principal, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapTimeout(err)
	}

	if decision := s.policy.CanTransitionOrder(principal, order, status); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	if status == domain.OrderStatusCancelled {
		if order.Status != domain.OrderStatusCancelled && !order.Status.CanTransitionTo(status) {
			return nil, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, order.Status)
		}
		if _, err := s.orderRepo.CancelAndRestock(ctx, id); err != nil {
			return nil, mapTimeout(err)
		}
		return s.orderRepo.FindByID(ctx, id)
	}

	if !order.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	var deliveredAt *time.Time
	if status == domain.OrderStatusDelivered {
		now := time.Now()
		deliveredAt = &now
	}

	if err := s.orderRepo.UpdateStatus(ctx, id, order.Status, status, deliveredAt); err != nil {
		if errors.Is(err, repository.ErrOrderStatusConflict) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return nil, mapTimeout(err)
	}

	return s.orderRepo.FindByID(ctx, id)
}

// Cancel is the self-service cancellation path: only pending or processing
// orders may be cancelled here.
func (s *orderService) Cancel(ctx context.Context, principal Principal, id uuid.UUID) (*domain.Order, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapTimeout(err)
	}

	if decision := s.policy.CanTransitionOrder(principal, order, domain.OrderStatusCancelled); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, order.Status)
	}

	if _, err := s.orderRepo.CancelAndRestock(ctx, id); err != nil {
		return nil, mapTimeout(err)
	}

	return s.orderRepo.FindByID(ctx, id)
}

// Delete removes an order permanently, restituting stock exactly once for
// orders that were not already cancelled.
func (s *orderService) Delete(ctx context.Context, principal Principal, id uuid.UUID) error {
	if decision := s.policy.CanDeleteOrder(principal); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.orderRepo.DeleteAndRestock(ctx, id); err != nil {
		return mapTimeout(err)
	}

	return nil
}
