package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/validate"

	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/pricing"
)

const maxBodySize = 1 << 20

var (
	quantityRule = validate.Int{MinSet: true, Min: 1}
	pointRule    = validate.Int{MinSet: true, Min: 0}
	requiredRule = validate.String{MinLengthSet: true, MinLength: 1}
)

// decodeBody reads the request body and walks its top-level object fields.
// Unknown fields are skipped.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &badRequestError{err: err}
	}
	if len(data) == 0 {
		return &badRequestError{err: errors.New("empty body")}
	}
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return &badRequestError{err: err}
	}
	return nil
}

// optInt64 decodes a nullable integer.
func optInt64(d *jx.Decoder) (*int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// fieldErrors accumulates validate.FieldError entries.
type fieldErrors []validate.FieldError

func (f *fieldErrors) check(name string, err error) {
	if err != nil {
		*f = append(*f, validate.FieldError{Name: name, Error: err})
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &validate.Error{Fields: f}
}

type checkoutBody struct {
	Items        []inventory.Request
	UserCouponID *int64
	UsePoint     int64
	Recipient    order.Recipient
}

func decodeCheckout(r *http.Request) (checkoutBody, error) {
	var b checkoutBody
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item inventory.Request
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
					switch string(key) {
					case "productId":
						item.ProductID, err = d.Int64()
					case "optionId":
						item.OptionID, err = optInt64(d)
					case "quantity":
						item.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				b.Items = append(b.Items, item)
				return nil
			})
		case "userCouponId":
			b.UserCouponID, err = optInt64(d)
		case "usePoint":
			b.UsePoint, err = d.Int64()
		case "recipientName":
			b.Recipient.Name, err = d.Str()
		case "recipientPhone":
			b.Recipient.Phone, err = d.Str()
		case "zipcode":
			b.Recipient.Zipcode, err = d.Str()
		case "address":
			b.Recipient.Address, err = d.Str()
		case "addressDetail":
			b.Recipient.AddressDetail, err = d.Str()
		case "deliveryMemo":
			b.Recipient.DeliveryMemo, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return b, err
	}

	var fe fieldErrors
	fe.check("usePoint", pointRule.Validate(b.UsePoint))
	for _, item := range b.Items {
		fe.check("items.quantity", quantityRule.Validate(int64(item.Quantity)))
	}
	return b, fe.err()
}

type confirmPaymentBody struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

func decodeConfirmPayment(r *http.Request) (confirmPaymentBody, error) {
	var b confirmPaymentBody
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "paymentKey":
			b.PaymentKey, err = d.Str()
		case "orderId":
			b.OrderID, err = d.Str()
		case "amount":
			b.Amount, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return b, err
	}
	var fe fieldErrors
	fe.check("paymentKey", requiredRule.Validate(b.PaymentKey))
	fe.check("orderId", requiredRule.Validate(b.OrderID))
	fe.check("amount", pointRule.Validate(b.Amount))
	return b, fe.err()
}

type cancelPaymentBody struct {
	OrderNumber  string
	CancelReason string
}

func decodeCancelPayment(r *http.Request) (cancelPaymentBody, error) {
	var b cancelPaymentBody
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "orderNumber":
			b.OrderNumber, err = d.Str()
		case "cancelReason":
			b.CancelReason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return b, err
	}
	var fe fieldErrors
	fe.check("orderNumber", requiredRule.Validate(b.OrderNumber))
	fe.check("cancelReason", requiredRule.Validate(b.CancelReason))
	return b, fe.err()
}

// decodeDeposit reads a PSP deposit callback.
func decodeDeposit(r *http.Request) (payment.DepositNotice, error) {
	var n payment.DepositNotice
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "orderId":
			n.OrderNumber, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			n.Status = payment.GatewayStatus(s)
		case "secret":
			n.Secret, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return n, err
	}
	var fe fieldErrors
	fe.check("orderId", requiredRule.Validate(n.OrderNumber))
	fe.check("status", requiredRule.Validate(string(n.Status)))
	return n, fe.err()
}

// decodeReason reads an optional {"reason": ...} body. An empty body is allowed.
func decodeReason(r *http.Request) (string, error) {
	if r.ContentLength == 0 {
		return "", nil
	}
	var reason string
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		if key == "reason" {
			reason, err = d.Str()
			return err
		}
		return d.Skip()
	})
	return reason, err
}

func decodeStatus(r *http.Request) (order.Status, error) {
	var status string
	err := decodeBody(r, func(d *jx.Decoder, key string) (err error) {
		if key == "status" {
			status, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		return "", err
	}
	var fe fieldErrors
	fe.check("status", requiredRule.Validate(status))
	return order.Status(status), fe.err()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

func encodeItem(e *jx.Encoder, s inventory.Snapshot) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Int64(s.ProductID)
	e.FieldStart("optionId")
	encodeOptInt64(e, s.OptionID)
	e.FieldStart("productName")
	e.Str(s.ProductName)
	e.FieldStart("optionLabel")
	e.Str(s.OptionLabel)
	e.FieldStart("basePrice")
	e.Int64(s.BasePrice)
	e.FieldStart("salePrice")
	encodeOptInt64(e, s.SalePrice)
	e.FieldStart("optionAdjustment")
	e.Int64(s.OptionAdjustment)
	e.FieldStart("unitPrice")
	e.Int64(s.UnitPrice)
	e.FieldStart("quantity")
	e.Int(s.Quantity)
	e.ObjEnd()
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.ObjStart()
	e.FieldStart("subtotal")
	e.Int64(b.Subtotal)
	e.FieldStart("membershipDiscount")
	e.Int64(b.MembershipDiscount)
	e.FieldStart("couponDiscount")
	e.Int64(b.CouponDiscount)
	e.FieldStart("couponApplied")
	e.Bool(b.CouponApplied)
	e.FieldStart("usedPoint")
	e.Int64(b.UsedPoints)
	e.FieldStart("shippingFee")
	e.Int64(b.ShippingFee)
	e.FieldStart("finalAmount")
	e.Int64(b.FinalAmount)
	e.FieldStart("earnedPoint")
	e.Int64(b.EarnedPoints)
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, s := range q.Items {
		encodeItem(e, s)
	}
	e.ArrEnd()
	e.FieldStart("breakdown")
	encodeBreakdown(e, q.Breakdown)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("totalAmount")
	e.Int64(o.TotalAmount)
	e.FieldStart("discountAmount")
	e.Int64(o.DiscountAmount)
	e.FieldStart("membershipDiscount")
	e.Int64(o.MembershipDiscount)
	e.FieldStart("couponDiscount")
	e.Int64(o.CouponDiscount)
	e.FieldStart("shippingFee")
	e.Int64(o.ShippingFee)
	e.FieldStart("usedPoint")
	e.Int64(o.UsedPoint)
	e.FieldStart("earnedPoint")
	e.Int64(o.EarnedPoint)
	e.FieldStart("payableAmount")
	e.Int64(o.PayableAmount())
	e.FieldStart("userCouponId")
	encodeOptInt64(e, o.UserCouponID)
	if o.CancelReason != "" {
		e.FieldStart("cancelReason")
		e.Str(o.CancelReason)
	}
	e.FieldStart("recipient")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(o.Recipient.Name)
	e.FieldStart("phone")
	e.Str(o.Recipient.Phone)
	e.FieldStart("zipcode")
	e.Str(o.Recipient.Zipcode)
	e.FieldStart("address")
	e.Str(o.Recipient.Address)
	e.FieldStart("addressDetail")
	e.Str(o.Recipient.AddressDetail)
	e.FieldStart("deliveryMemo")
	e.Str(o.Recipient.DeliveryMemo)
	e.ObjEnd()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeItem(e, it.Snapshot)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodeOrderSummary(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("totalAmount")
	e.Int64(o.TotalAmount)
	e.FieldStart("itemCount")
	e.Int(len(o.Items))
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, number string, p *payment.Payment) {
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(number)
	e.FieldStart("paymentKey")
	e.Str(p.PaymentKey)
	e.FieldStart("method")
	e.Str(p.Method)
	e.FieldStart("amount")
	e.Int64(p.Amount)
	e.FieldStart("status")
	e.Str(string(p.Status))
	if p.ApprovedAt != nil {
		e.FieldStart("approvedAt")
		encodeTime(e, *p.ApprovedAt)
	}
	if p.ReceiptURL != "" {
		e.FieldStart("receiptUrl")
		e.Str(p.ReceiptURL)
	}
	if va := p.VirtualAccount; va != nil {
		e.FieldStart("virtualAccount")
		e.ObjStart()
		e.FieldStart("accountNumber")
		e.Str(va.AccountNumber)
		e.FieldStart("bankCode")
		e.Str(va.BankCode)
		e.FieldStart("customerName")
		e.Str(va.CustomerName)
		if va.DueDate != nil {
			e.FieldStart("dueDate")
			encodeTime(e, *va.DueDate)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeRefund(e *jx.Encoder, number string, rf *payment.Refund) {
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(number)
	e.FieldStart("amount")
	e.Int64(rf.Amount)
	e.FieldStart("reason")
	e.Str(rf.Reason)
	e.FieldStart("status")
	e.Str(string(order.StatusRefunded))
	e.ObjEnd()
}
