package payment

import (
	"context"
	"fmt"
	"time"
)

// GatewayStatus is the PSP-side state of a payment.
type GatewayStatus string

const (
	GatewayReady             GatewayStatus = "READY"
	GatewayInProgress        GatewayStatus = "IN_PROGRESS"
	GatewayWaitingForDeposit GatewayStatus = "WAITING_FOR_DEPOSIT"
	GatewayDone              GatewayStatus = "DONE"
	GatewayCanceled          GatewayStatus = "CANCELED"
	GatewayPartialCanceled   GatewayStatus = "PARTIAL_CANCELED"
	GatewayAborted           GatewayStatus = "ABORTED"
	GatewayExpired           GatewayStatus = "EXPIRED"
)

// ConfirmRequest approves a payment the buyer authorised at the PSP.
type ConfirmRequest struct {
	PaymentKey string
	// OrderID is the order number the payment was opened with.
	OrderID string
	Amount  int64
}

// CancelRequest cancels a confirmed payment. A nil Amount cancels in full.
type CancelRequest struct {
	PaymentKey string
	Reason     string
	Amount     *int64
}

// Confirmation is the PSP's view of a payment.
type Confirmation struct {
	PaymentKey      string
	OrderID         string
	Method          string
	Status          GatewayStatus
	TotalAmount     int64
	ApprovedAt      *time.Time
	ReceiptURL      string
	CardCompany     string
	CardNumber      string
	EasyPayProvider string
	VirtualAccount  *VirtualAccount
	Secret          string
	// Raw is the undecoded PSP response body.
	Raw []byte
}

// Gateway is the PSP client. Calls are never retried by the service.
type Gateway interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	Cancel(ctx context.Context, req CancelRequest) (*Confirmation, error)
}

// GatewayError is a PSP rejection.
type GatewayError struct {
	// StatusCode is the PSP's HTTP status.
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("psp rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
}
