package toss

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/oralcare-shop/internal/domain/payment"
)

func encodeConfirm(req payment.ConfirmRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("paymentKey", func(e *jx.Encoder) { e.Str(req.PaymentKey) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(req.OrderID) })
		e.Field("amount", func(e *jx.Encoder) { e.Int64(req.Amount) })
	})
	return e.Bytes()
}

func encodeCancel(req payment.CancelRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("cancelReason", func(e *jx.Encoder) { e.Str(req.Reason) })
		if req.Amount != nil {
			e.Field("cancelAmount", func(e *jx.Encoder) { e.Int64(*req.Amount) })
		}
	})
	return e.Bytes()
}

func decodeError(status int, body []byte) *payment.GatewayError {
	gwErr := &payment.GatewayError{StatusCode: status}
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "code":
			v, err := d.Str()
			gwErr.Code = v
			return err
		case "message":
			v, err := d.Str()
			gwErr.Message = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil || gwErr.Code == "" {
		gwErr.Code = "UNKNOWN_PAYMENT_ERROR"
		gwErr.Message = string(body)
	}
	return gwErr
}

// decodePayment reads a Toss payment object.
func decodePayment(body []byte) (*payment.Confirmation, error) {
	c := &payment.Confirmation{Raw: body}
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "paymentKey":
			return str(d, &c.PaymentKey)
		case "orderId":
			return str(d, &c.OrderID)
		case "method":
			return str(d, &c.Method)
		case "secret":
			return str(d, &c.Secret)
		case "status":
			var s string
			if err := str(d, &s); err != nil {
				return err
			}
			c.Status = payment.GatewayStatus(s)
			return nil
		case "totalAmount":
			v, err := d.Int64()
			c.TotalAmount = v
			return err
		case "approvedAt":
			t, err := timestamp(d)
			c.ApprovedAt = t
			return err
		case "receipt":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) == "url" {
					return str(d, &c.ReceiptURL)
				}
				return d.Skip()
			})
		case "card":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "issuerCode":
					return str(d, &c.CardCompany)
				case "number":
					return str(d, &c.CardNumber)
				default:
					return d.Skip()
				}
			})
		case "easyPay":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) == "provider" {
					return str(d, &c.EasyPayProvider)
				}
				return d.Skip()
			})
		case "virtualAccount":
			va := &payment.VirtualAccount{}
			c.VirtualAccount = va
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "accountNumber":
					return str(d, &va.AccountNumber)
				case "bankCode":
					return str(d, &va.BankCode)
				case "customerName":
					return str(d, &va.CustomerName)
				case "dueDate":
					t, err := timestamp(d)
					va.DueDate = t
					return err
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode payment")
	}
	return c, nil
}

func str(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func timestamp(d *jx.Decoder) (*time.Time, error) {
	var s string
	if err := str(d, &s); err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse time %q", s)
	}
	return &t, nil
}
