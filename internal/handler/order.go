package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

// buyer resolves the caller and their membership discount flag.
func (h *Handler) buyer(r *http.Request) (order.Buyer, error) {
	p := principal(r)
	discounted, err := h.memberships.Discounted(r.Context(), p.UserID)
	if err != nil {
		return order.Buyer{}, err
	}
	return order.Buyer{UserID: p.UserID, Discounted: discounted}, nil
}

func (h *Handler) checkout(r *http.Request) (checkoutBody, order.CheckoutRequest, error) {
	body, err := decodeCheckout(r)
	if err != nil {
		return body, order.CheckoutRequest{}, err
	}
	b, err := h.buyer(r)
	if err != nil {
		return body, order.CheckoutRequest{}, err
	}
	return body, order.CheckoutRequest{
		Buyer:        b,
		Items:        body.Items,
		UserCouponID: body.UserCouponID,
		UsePoint:     body.UsePoint,
	}, nil
}

// CreateOrder places an order: prices, reserves stock and persists it.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, req, err := h.checkout(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CheckoutRequest: req,
		Recipient:       body.Recipient,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PreviewOrder prices a checkout without reserving or writing anything.
func (h *Handler) PreviewOrder(w http.ResponseWriter, r *http.Request) {
	_, req, err := h.checkout(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.orders.Preview(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), principal(r).UserID, r.PathValue("orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// AdminGetOrder returns any order by number.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetAny(r.Context(), r.PathValue("orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders returns the caller's most recent orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrderSummary(e, &orders[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// CancelOrder cancels a pending or paid order of the caller, cancelling its
// payment at the PSP when there is one.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reason == "" {
		reason = "cancelled by customer"
	}
	o, err := h.payments.Cancel(r.Context(), principal(r).UserID, r.PathValue("orderNumber"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CompleteOrder confirms the purchase of a delivered order.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Complete(r.Context(), principal(r).UserID, r.PathValue("orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderStatus advances fulfilment of any order.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	to, err := decodeStatus(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Advance(r.Context(), r.PathValue("orderNumber"), to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
