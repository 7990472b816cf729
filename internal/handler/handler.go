// Package handler exposes the checkout core over REST.
package handler

import (
	"net/http"

	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
)

// Handler serves the order, payment and membership endpoints.
type Handler struct {
	orders      *order.Service
	payments    *payment.Service
	memberships *membership.Service
	auth        *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	payments *payment.Service,
	memberships *membership.Service,
	authenticator *Authenticator,
) *Handler {
	return &Handler{
		orders:      orders,
		payments:    payments,
		memberships: memberships,
		auth:        authenticator,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	user, admin := h.auth.requireUser, h.auth.requireAdmin

	mux.HandleFunc("POST /api/orders", user(h.CreateOrder))
	mux.HandleFunc("POST /api/orders/preview", user(h.PreviewOrder))
	mux.HandleFunc("GET /api/orders", user(h.ListOrders))
	mux.HandleFunc("GET /api/orders/{orderNumber}", user(h.GetOrder))
	mux.HandleFunc("POST /api/orders/{orderNumber}/cancel", user(h.CancelOrder))
	mux.HandleFunc("POST /api/orders/{orderNumber}/confirm", user(h.CompleteOrder))

	mux.HandleFunc("POST /api/payments/confirm", user(h.ConfirmPayment))
	mux.HandleFunc("POST /api/payments/cancel", user(h.CancelPayment))
	// Authenticated by the per-payment secret instead of a token.
	mux.HandleFunc("POST /api/payments/webhook", h.DepositWebhook)

	mux.HandleFunc("POST /api/memberships/apply", user(h.ApplyMembership))

	mux.HandleFunc("GET /api/admin/orders/{orderNumber}", admin(h.AdminGetOrder))
	mux.HandleFunc("PATCH /api/admin/orders/{orderNumber}/status", admin(h.UpdateOrderStatus))
	mux.HandleFunc("POST /api/admin/memberships/{userID}/approve", admin(h.ApproveMembership))
	mux.HandleFunc("POST /api/admin/memberships/{userID}/reject", admin(h.RejectMembership))
}

// Routes returns a mux serving only the API routes.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
