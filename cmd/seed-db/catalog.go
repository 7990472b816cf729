package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
)

type seedUser struct {
	ID         int64
	Email      string
	Name       string
	Role       string
	Point      int64
	Token      string
	Membership string
}

type seedOption struct {
	ID              int64
	Label           string
	PriceAdjustment int64
	Stock           int
}

type seedProduct struct {
	ID        int64
	Name      string
	BasePrice int64
	SalePrice *int64
	Stock     int
	Options   []seedOption
}

type seedCoupon struct {
	ID                int64
	Name              string
	DiscountType      coupon.DiscountType
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount *int64
	UsageLimit        int
	// GrantAll issues the coupon to every seeded user.
	GrantAll bool
}

type catalog struct {
	Users    []seedUser
	Products []seedProduct
	Coupons  []seedCoupon
}

func optInt64(d *jx.Decoder) (*int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	return &v, err
}

func decodeCatalog(data []byte) (*catalog, error) {
	var c catalog
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "users":
			return d.Arr(func(d *jx.Decoder) error {
				var u seedUser
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
					switch string(key) {
					case "id":
						u.ID, err = d.Int64()
					case "email":
						u.Email, err = d.Str()
					case "name":
						u.Name, err = d.Str()
					case "role":
						u.Role, err = d.Str()
					case "point":
						u.Point, err = d.Int64()
					case "token":
						u.Token, err = d.Str()
					case "membership":
						u.Membership, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				c.Users = append(c.Users, u)
				return nil
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				cp, err := decodeCoupon(d)
				if err != nil {
					return err
				}
				c.Coupons = append(c.Coupons, cp)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return &c, nil
}

func decodeProduct(d *jx.Decoder) (seedProduct, error) {
	var p seedProduct
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "basePrice":
			p.BasePrice, err = d.Int64()
		case "salePrice":
			p.SalePrice, err = optInt64(d)
		case "stock":
			p.Stock, err = d.Int()
		case "options":
			err = d.Arr(func(d *jx.Decoder) error {
				var o seedOption
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
					switch string(key) {
					case "id":
						o.ID, err = d.Int64()
					case "label":
						o.Label, err = d.Str()
					case "priceAdjustment":
						o.PriceAdjustment, err = d.Int64()
					case "stock":
						o.Stock, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Options = append(p.Options, o)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func decodeCoupon(d *jx.Decoder) (seedCoupon, error) {
	var c seedCoupon
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "id":
			c.ID, err = d.Int64()
		case "name":
			c.Name, err = d.Str()
		case "discountType":
			var s string
			s, err = d.Str()
			c.DiscountType = coupon.DiscountType(s)
		case "value":
			var s string
			if s, err = d.Str(); err == nil {
				c.Value, err = decimal.NewFromString(s)
			}
		case "minOrderAmount":
			c.MinOrderAmount, err = d.Int64()
		case "maxDiscountAmount":
			c.MaxDiscountAmount, err = optInt64(d)
		case "usageLimit":
			c.UsageLimit, err = d.Int()
		case "grantAll":
			c.GrantAll, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && c.DiscountType != coupon.DiscountPercentage && c.DiscountType != coupon.DiscountFixed {
		err = errors.Errorf("coupon %d: unknown discount type %q", c.ID, c.DiscountType)
	}
	return c, err
}
