package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ConfirmPayment approves a PSP payment for the caller's pending order.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	body, err := decodeConfirmPayment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Confirm(r.Context(), principal(r).UserID, body.OrderID, body.PaymentKey, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, body.OrderID, p) })
}

// CancelPayment refunds a paid order through the PSP.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	body, err := decodeCancelPayment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rf, err := h.payments.Refund(r.Context(), principal(r).UserID, body.OrderNumber, body.CancelReason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRefund(e, body.OrderNumber, rf) })
}

// DepositWebhook receives virtual-account deposit notices from the PSP.
func (h *Handler) DepositWebhook(w http.ResponseWriter, r *http.Request) {
	n, err := decodeDeposit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.payments.HandleDeposit(r.Context(), n); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
