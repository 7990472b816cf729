package event

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

// Encode writes e as a JSON object.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("type", func(enc *jx.Encoder) { enc.Str(string(e.Type)) })
		enc.Field("orderNumber", func(enc *jx.Encoder) { enc.Str(e.Number) })
		enc.Field("userId", func(enc *jx.Encoder) { enc.Int64(e.UserID) })
		enc.Field("status", func(enc *jx.Encoder) { enc.Str(string(e.Status)) })
		enc.Field("amount", func(enc *jx.Encoder) { enc.Int64(e.Amount) })
		enc.Field("at", func(enc *jx.Encoder) { enc.Str(e.At.UTC().Format(time.RFC3339Nano)) })
	})
	return enc.Bytes()
}

// Decode reads an event written by Encode.
func Decode(data []byte) (order.Event, error) {
	var e order.Event
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			e.Type = order.EventType(v)
			return err
		case "orderNumber":
			v, err := d.Str()
			e.Number = v
			return err
		case "userId":
			v, err := d.Int64()
			e.UserID = v
			return err
		case "status":
			v, err := d.Str()
			e.Status = order.Status(v)
			return err
		case "amount":
			v, err := d.Int64()
			e.Amount = v
			return err
		case "at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			e.At, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}
