package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/point"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusPreparing Status = "preparing"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Source states accepted by each guarded transition.
var (
	CancellableFrom = []Status{StatusPending, StatusPaid}
	RefundableFrom  = []Status{StatusPaid, StatusPreparing, StatusShipped, StatusDelivered}
	CompletableFrom = []Status{StatusDelivered}

	// fulfilmentFrom maps a seller-driven target state to its predecessor.
	fulfilmentFrom = map[Status]Status{
		StatusPreparing: StatusPaid,
		StatusShipped:   StatusPreparing,
		StatusDelivered: StatusShipped,
	}
)

var (
	// ErrNotFound is returned when the order does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("invalid order state")
	// ErrNumberExhausted is returned when no free order number was found.
	ErrNumberExhausted = errors.New("could not allocate a unique order number")
)

// StateError reports a transition that the order's current status forbids.
type StateError struct {
	Number string
	From   Status
	To     Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.Number, e.From, e.To)
}

// Is reports whether target is ErrInvalidState.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Recipient is the delivery address captured at checkout.
type Recipient struct {
	Name          string
	Phone         string
	Zipcode       string
	Address       string
	AddressDetail string
	DeliveryMemo  string
}

// Item is a purchased line. The embedded snapshot is a historical copy and
// never follows later product edits.
type Item struct {
	ID      int64
	OrderID int64
	inventory.Snapshot
}

// Order is the persisted aggregate: recipient, computed amounts and status.
type Order struct {
	ID                 int64
	Number             string
	UserID             int64
	Recipient          Recipient
	TotalAmount        int64
	DiscountAmount     int64
	MembershipDiscount int64
	CouponDiscount     int64
	ShippingFee        int64
	UsedPoint          int64
	EarnedPoint        int64
	UserCouponID       *int64
	Status             Status
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Items              []Item
}

// PayableAmount recomputes the amount to charge from the stored fields.
func (o *Order) PayableAmount() int64 {
	return o.TotalAmount - o.DiscountAmount - o.UsedPoint + o.ShippingFee
}

// Lines returns the reservation requests that produced the order's items.
func (o *Order) Lines() []inventory.Request {
	lines := make([]inventory.Request, len(o.Items))
	for i, it := range o.Items {
		lines[i] = inventory.Request{
			ProductID: it.ProductID,
			OptionID:  it.OptionID,
			Quantity:  it.Quantity,
		}
	}
	return lines
}

// In reports whether the order's status is one of statuses.
func (o *Order) In(statuses ...Status) bool {
	return slices.Contains(statuses, o.Status)
}

// Repository persists orders. Transition is a compare-and-set on status.
type Repository interface {
	// Insert stores o with its items and fills IDs and timestamps. It
	// reports false, without failing the transaction, when o.Number is taken.
	Insert(ctx context.Context, o *Order) (bool, error)
	// GetByNumber returns the order with items, or ErrNotFound.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// LockByNumber is GetByNumber holding a row lock until the transaction ends.
	LockByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error)
	// Transition sets status to `to` only when the stored status is in
	// from, and reports whether a row changed.
	Transition(ctx context.Context, orderID int64, from []Status, to Status, reason string) (bool, error)
}

// CartStore removes purchased cart rows.
type CartStore interface {
	RemoveProducts(ctx context.Context, userID int64, productIDs []int64) error
}

// Tx is the set of stores bound to one database transaction.
type Tx interface {
	Orders() Repository
	Inventory() inventory.Store
	Coupons() coupon.Store
	Points() point.Store
	Carts() CartStore
}

// Transactor runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
