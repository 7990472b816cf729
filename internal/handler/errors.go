package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/pricing"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// Kind is the machine-readable error class clients branch on.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindOutOfStock        Kind = "OUT_OF_STOCK"
	KindProductInactive   Kind = "PRODUCT_INACTIVE"
	KindNotFound          Kind = "NOT_FOUND"
	KindOrderNotFound     Kind = "ORDER_NOT_FOUND"
	KindAmountMismatch    Kind = "AMOUNT_MISMATCH"
	KindPSPRejected       Kind = "PSP_REJECTED"
	KindInvalidState      Kind = "INVALID_STATE"
	KindCouponUnavailable Kind = "COUPON_UNAVAILABLE"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindInternal          Kind = "INTERNAL"
)

// apiError is the JSON error body.
type apiError struct {
	Code      int
	Kind      Kind
	Message   string
	ProductID *int64
	OptionID  *int64
	// PSPCode is the PSP's own error code for rejected payments.
	PSPCode string
}

func (e *apiError) encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Code)
	enc.FieldStart("kind")
	enc.Str(string(e.Kind))
	enc.FieldStart("message")
	enc.Str(e.Message)
	if e.ProductID != nil {
		enc.FieldStart("productId")
		enc.Int64(*e.ProductID)
	}
	if e.OptionID != nil {
		enc.FieldStart("optionId")
		enc.Int64(*e.OptionID)
	}
	if e.PSPCode != "" {
		enc.FieldStart("pspCode")
		enc.Str(e.PSPCode)
	}
	enc.ObjEnd()
}

// badRequestError marks a body that could not be decoded.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "decode request: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// mapError converts domain errors to an HTTP status and error body.
func mapError(err error) *apiError {
	var (
		valErr   *validate.Error
		badReq   *badRequestError
		qtyErr   *order.InvalidQuantityError
		fieldErr *order.MissingFieldError
		invErr   *inventory.Error
		gwErr    *payment.GatewayError
	)
	switch {
	case errors.As(err, &valErr), errors.As(err, &badReq),
		errors.As(err, &qtyErr), errors.As(err, &fieldErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrNegativePoints):
		return &apiError{Code: http.StatusBadRequest, Kind: KindValidation, Message: err.Error()}
	case errors.Is(err, point.ErrInsufficientBalance):
		return &apiError{Code: http.StatusUnprocessableEntity, Kind: KindValidation, Message: err.Error()}
	case errors.As(err, &invErr):
		e := &apiError{Message: err.Error(), ProductID: &invErr.ProductID, OptionID: invErr.OptionID}
		switch invErr.Kind {
		case inventory.KindOutOfStock:
			e.Code, e.Kind = http.StatusConflict, KindOutOfStock
		case inventory.KindProductInactive:
			e.Code, e.Kind = http.StatusUnprocessableEntity, KindProductInactive
		default:
			e.Code, e.Kind = http.StatusNotFound, KindNotFound
		}
		return e
	case errors.Is(err, product.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, order.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Kind: KindOrderNotFound, Message: err.Error()}
	case errors.Is(err, payment.ErrAmountMismatch):
		return &apiError{Code: http.StatusBadRequest, Kind: KindAmountMismatch, Message: err.Error()}
	case errors.As(err, &gwErr):
		return &apiError{Code: http.StatusPaymentRequired, Kind: KindPSPRejected, Message: gwErr.Message, PSPCode: gwErr.Code}
	case errors.Is(err, payment.ErrOrderMismatch):
		return &apiError{Code: http.StatusBadGateway, Kind: KindPSPRejected, Message: err.Error()}
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, payment.ErrPaymentExists),
		errors.Is(err, membership.ErrInvalidTransition):
		return &apiError{Code: http.StatusConflict, Kind: KindInvalidState, Message: err.Error()}
	case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrExpired), errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrInactive):
		return &apiError{Code: http.StatusUnprocessableEntity, Kind: KindCouponUnavailable, Message: err.Error()}
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, payment.ErrSecretMismatch):
		return &apiError{Code: http.StatusUnauthorized, Kind: KindUnauthorized, Message: "unauthorized"}
	case errors.Is(err, auth.ErrForbidden):
		return &apiError{Code: http.StatusForbidden, Kind: KindForbidden, Message: "forbidden"}
	default:
		return &apiError{Code: http.StatusInternalServerError, Kind: KindInternal, Message: "internal error"}
	}
}

// writeError maps err and writes it. Unmapped errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	if e.Code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)
	e.encode(enc)
	writeBody(w, e.Code, enc.Bytes())
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSON encodes a response with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)
	fn(enc)
	writeBody(w, status, enc.Bytes())
}
