package service

import (
	"storefront/internal/domain"

	"github.com/google/uuid"
)

// Principal is an authenticated caller as resolved by the auth layer
type Principal struct {
	ID   uuid.UUID
	Role string
}

// IsAdmin reports whether the principal holds the admin role
func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// Zero reports whether no authenticated principal is present
func (p Principal) Zero() bool {
	return p.ID == uuid.Nil
}

// Decision is an explicit allow/deny with the reason for the denial
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// AuthorizationPolicy is the single decision point for order access. The
// workflow consults it at every transition instead of comparing roles inline.
type AuthorizationPolicy interface {
	CanCreateOrder(p Principal) Decision
	CanViewOrder(p Principal, order *domain.Order) Decision
	CanListAllOrders(p Principal) Decision
	CanTransitionOrder(p Principal, order *domain.Order, next domain.OrderStatus) Decision
	CanDeleteOrder(p Principal) Decision
}

type rolePolicy struct{}

// NewAuthorizationPolicy returns the role-based policy: admins manage any
// order, users create, view and cancel their own.
func NewAuthorizationPolicy() AuthorizationPolicy {
	return rolePolicy{}
}

func (rolePolicy) CanCreateOrder(p Principal) Decision {
	if p.Zero() {
		return deny("authentication required")
	}
	return allow()
}

func (rolePolicy) CanViewOrder(p Principal, order *domain.Order) Decision {
	if p.Zero() {
		return deny("authentication required")
	}
	if p.IsAdmin() || order.UserID == p.ID {
		return allow()
	}
	return deny("order belongs to another user")
}

func (rolePolicy) CanListAllOrders(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may list all orders")
}

func (rolePolicy) CanTransitionOrder(p Principal, order *domain.Order, next domain.OrderStatus) Decision {
	if p.Zero() {
		return deny("authentication required")
	}
	if p.IsAdmin() {
		return allow()
	}
	if order.UserID != p.ID {
		return deny("order belongs to another user")
	}
	if next != domain.OrderStatusCancelled {
		return deny("only admins may change order status")
	}
	return allow()
}

func (rolePolicy) CanDeleteOrder(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may delete orders")
}
