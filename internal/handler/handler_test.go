package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/product"
	"github.com/xenking/oralcare-shop/internal/storage/memory"
)

var testPepper = []byte("test-pepper")

const (
	buyerToken = "buyer-token"
	otherToken = "other-token"
	adminToken = "admin-token"
	staleToken = "stale-token"
)

type tokenRepo map[string]*auth.TokenInfo

func (r tokenRepo) FindByHash(_ context.Context, hash string) (*auth.TokenInfo, error) {
	info, ok := r[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

type stubGateway struct {
	confirmErr error
	cancels    int
}

func (g *stubGateway) Confirm(_ context.Context, req payment.ConfirmRequest) (*payment.Confirmation, error) {
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &payment.Confirmation{
		PaymentKey:  req.PaymentKey,
		OrderID:     req.OrderID,
		Method:      "CARD",
		Status:      payment.GatewayDone,
		TotalAmount: req.Amount,
	}, nil
}

func (g *stubGateway) Cancel(_ context.Context, req payment.CancelRequest) (*payment.Confirmation, error) {
	g.cancels++
	return &payment.Confirmation{PaymentKey: req.PaymentKey, Status: payment.GatewayCanceled}, nil
}

func ptr[T any](v T) *T { return &v }

type testServer struct {
	store   *memory.Store
	gateway *stubGateway
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	store.PutProduct(product.Product{ID: 1, Name: "Soft toothbrush", BasePrice: 10000, SalePrice: ptr[int64](8000), Stock: 10, Active: true})
	store.PutProduct(product.Product{ID: 2, Name: "Floss", BasePrice: 3000, Stock: 1, Active: true})

	orders, err := order.NewService(store.OrderTransactor(), store.Products(), store.Coupons(), store.Points())
	require.NoError(t, err)
	gw := &stubGateway{}
	payments, err := payment.NewService(store.PaymentTransactor(), gw)
	require.NoError(t, err)
	members := membership.NewService(store.Memberships(), membership.DefaultValidity)

	past := time.Now().Add(-time.Hour)
	tokens := tokenRepo{
		TokenHash(testPepper, buyerToken): {TokenHash: TokenHash(testPepper, buyerToken), UserID: 7, Role: auth.RoleUser},
		TokenHash(testPepper, otherToken): {TokenHash: TokenHash(testPepper, otherToken), UserID: 8, Role: auth.RoleUser},
		TokenHash(testPepper, adminToken): {TokenHash: TokenHash(testPepper, adminToken), UserID: 1, Role: auth.RoleAdmin},
		TokenHash(testPepper, staleToken): {TokenHash: TokenHash(testPepper, staleToken), UserID: 7, Role: auth.RoleUser, ExpiresAt: &past},
	}

	h := NewHandler(orders, payments, members, NewAuthenticator(tokens, testPepper))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{store: store, gateway: gw, srv: srv}
}

type response struct {
	Code int
	Body []byte
}

func (s *testServer) do(t *testing.T, method, path, token, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{Code: resp.StatusCode, Body: data}
}

// field extracts a top-level string or number field as text.
func field(t *testing.T, body []byte, name string) string {
	t.Helper()
	var out string
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != name {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		out = strings.Trim(raw.String(), `"`)
		return nil
	})
	require.NoError(t, err)
	return out
}

const orderBody = `{
	"items": [{"productId": 1, "optionId": null, "quantity": 2}],
	"usePoint": 0,
	"recipientName": "Kim Minji",
	"recipientPhone": "010-1234-5678",
	"zipcode": "04524",
	"address": "Seoul"
}`

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	for _, tt := range []struct {
		name  string
		token string
	}{
		{"Missing", ""},
		{"Unknown", "nope"},
		{"Expired", staleToken},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, "/api/orders", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.Equal(t, string(KindUnauthorized), field(t, resp.Body, "kind"))
		})
	}

	t.Run("AdminOnly", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/admin/memberships/7/approve", buyerToken, "")
		assert.Equal(t, http.StatusForbidden, resp.Code)
		assert.Equal(t, string(KindForbidden), field(t, resp.Body, "kind"))
	})
}

func TestOrderFlow(t *testing.T) {
	s := newTestServer(t)

	created := s.do(t, http.MethodPost, "/api/orders", buyerToken, orderBody)
	require.Equal(t, http.StatusCreated, created.Code, string(created.Body))
	assert.Equal(t, "18500", field(t, created.Body, "payableAmount"))
	assert.Equal(t, "pending", field(t, created.Body, "status"))
	number := field(t, created.Body, "orderNumber")
	require.NotEmpty(t, number)
	assert.Equal(t, 8, s.store.Product(1).Stock)

	got := s.do(t, http.MethodGet, "/api/orders/"+number, buyerToken, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, number, field(t, got.Body, "orderNumber"))

	foreign := s.do(t, http.MethodGet, "/api/orders/"+number, otherToken, "")
	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, string(KindOrderNotFound), field(t, foreign.Body, "kind"))

	list := s.do(t, http.MethodGet, "/api/orders", buyerToken, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, string(list.Body), number)

	mismatch := s.do(t, http.MethodPost, "/api/payments/confirm", buyerToken,
		`{"paymentKey":"pk_1","orderId":"`+number+`","amount":1000}`)
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)
	assert.Equal(t, string(KindAmountMismatch), field(t, mismatch.Body, "kind"))

	paid := s.do(t, http.MethodPost, "/api/payments/confirm", buyerToken,
		`{"paymentKey":"pk_1","orderId":"`+number+`","amount":18500}`)
	require.Equal(t, http.StatusOK, paid.Code, string(paid.Body))
	assert.Equal(t, "done", field(t, paid.Body, "status"))

	shipped := s.do(t, http.MethodPatch, "/api/admin/orders/"+number+"/status", adminToken, `{"status":"shipped"}`)
	assert.Equal(t, http.StatusConflict, shipped.Code)
	assert.Equal(t, string(KindInvalidState), field(t, shipped.Body, "kind"))

	preparing := s.do(t, http.MethodPatch, "/api/admin/orders/"+number+"/status", adminToken, `{"status":"preparing"}`)
	require.Equal(t, http.StatusOK, preparing.Code)
	assert.Equal(t, "preparing", field(t, preparing.Body, "status"))

	seller := s.do(t, http.MethodGet, "/api/admin/orders/"+number, adminToken, "")
	require.Equal(t, http.StatusOK, seller.Code)
	assert.Equal(t, "preparing", field(t, seller.Body, "status"))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/orders/"+number, otherToken, "").Code)

	refunded := s.do(t, http.MethodPost, "/api/payments/cancel", buyerToken,
		`{"orderNumber":"`+number+`","cancelReason":"changed mind"}`)
	require.Equal(t, http.StatusOK, refunded.Code, string(refunded.Body))
	assert.Equal(t, "18500", field(t, refunded.Body, "amount"))
	assert.Equal(t, 10, s.store.Product(1).Stock)

	again := s.do(t, http.MethodPost, "/api/orders/"+number+"/cancel", buyerToken, "")
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestCreateOrder_Errors(t *testing.T) {
	s := newTestServer(t)

	for _, tt := range []struct {
		name string
		body string
		code int
		kind Kind
	}{
		{"Malformed", `{"items":`, http.StatusBadRequest, KindValidation},
		{"Empty", `{"items":[],"recipientName":"a","recipientPhone":"b","zipcode":"c","address":"d"}`, http.StatusBadRequest, KindValidation},
		{"ZeroQuantity", `{"items":[{"productId":1,"quantity":0}],"recipientName":"a","recipientPhone":"b","zipcode":"c","address":"d"}`, http.StatusBadRequest, KindValidation},
		{"MissingRecipient", `{"items":[{"productId":1,"quantity":1}]}`, http.StatusBadRequest, KindValidation},
		{"UnknownProduct", `{"items":[{"productId":99,"quantity":1}],"recipientName":"a","recipientPhone":"b","zipcode":"c","address":"d"}`, http.StatusNotFound, KindNotFound},
		{"OutOfStock", `{"items":[{"productId":2,"quantity":2}],"recipientName":"a","recipientPhone":"b","zipcode":"c","address":"d"}`, http.StatusConflict, KindOutOfStock},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/orders", buyerToken, tt.body)
			assert.Equal(t, tt.code, resp.Code, string(resp.Body))
			assert.Equal(t, string(tt.kind), field(t, resp.Body, "kind"))
		})
	}

	t.Run("OutOfStockNamesProduct", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/orders", buyerToken,
			`{"items":[{"productId":2,"quantity":5}],"recipientName":"a","recipientPhone":"b","zipcode":"c","address":"d"}`)
		assert.Equal(t, "2", field(t, resp.Body, "productId"))
	})
	assert.Empty(t, s.store.Orders())
}

func TestMembershipDiscount(t *testing.T) {
	s := newTestServer(t)

	applied := s.do(t, http.MethodPost, "/api/memberships/apply", buyerToken, "")
	require.Equal(t, http.StatusOK, applied.Code)
	assert.Equal(t, "pending", field(t, applied.Body, "status"))

	approved := s.do(t, http.MethodPost, "/api/admin/memberships/7/approve", adminToken, "")
	require.Equal(t, http.StatusOK, approved.Code)
	assert.NotEmpty(t, field(t, approved.Body, "expiresAt"))

	preview := s.do(t, http.MethodPost, "/api/orders/preview", buyerToken, orderBody)
	require.Equal(t, http.StatusOK, preview.Code, string(preview.Body))
	assert.Contains(t, string(preview.Body), `"finalAmount":13700`)
	assert.Contains(t, string(preview.Body), `"unitPrice":5600`)
	assert.Empty(t, s.store.Orders())

	rejected := s.do(t, http.MethodPost, "/api/admin/memberships/7/reject", adminToken, "")
	assert.Equal(t, http.StatusConflict, rejected.Code)
}

func TestDepositWebhook_RejectsUnknownOrder(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/payments/webhook", "", `{"orderId":"20250101-AAAAAAAAAA","status":"DONE","secret":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	invalid := s.do(t, http.MethodPost, "/api/payments/webhook", "", `{"status":"DONE"}`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestConfirmPayment_PSPRejected(t *testing.T) {
	s := newTestServer(t)
	s.gateway.confirmErr = &payment.GatewayError{
		StatusCode: http.StatusBadRequest,
		Code:       "REJECT_CARD_COMPANY",
		Message:    "card company declined",
	}

	created := s.do(t, http.MethodPost, "/api/orders", buyerToken, orderBody)
	require.Equal(t, http.StatusCreated, created.Code, string(created.Body))
	number := field(t, created.Body, "orderNumber")

	resp := s.do(t, http.MethodPost, "/api/payments/confirm", buyerToken,
		`{"paymentKey":"pk_1","orderId":"`+number+`","amount":18500}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.Equal(t, string(KindPSPRejected), field(t, resp.Body, "kind"))
	assert.Equal(t, "REJECT_CARD_COMPANY", field(t, resp.Body, "pspCode"))
	assert.Equal(t, "card company declined", field(t, resp.Body, "message"))

	got := s.do(t, http.MethodGet, "/api/orders/"+number, buyerToken, "")
	assert.Equal(t, "pending", field(t, got.Body, "status"))
}

func TestCancelOrder_PaidCancelsAtPSP(t *testing.T) {
	s := newTestServer(t)

	created := s.do(t, http.MethodPost, "/api/orders", buyerToken, orderBody)
	require.Equal(t, http.StatusCreated, created.Code, string(created.Body))
	number := field(t, created.Body, "orderNumber")

	paid := s.do(t, http.MethodPost, "/api/payments/confirm", buyerToken,
		`{"paymentKey":"pk_1","orderId":"`+number+`","amount":18500}`)
	require.Equal(t, http.StatusOK, paid.Code, string(paid.Body))

	cancelled := s.do(t, http.MethodPost, "/api/orders/"+number+"/cancel", buyerToken, `{"reason":"too slow"}`)
	require.Equal(t, http.StatusOK, cancelled.Code, string(cancelled.Body))
	assert.Equal(t, "cancelled", field(t, cancelled.Body, "status"))
	assert.Equal(t, 1, s.gateway.cancels)
	require.Len(t, s.store.Refunds(), 1)
	assert.Equal(t, int64(18500), s.store.Refunds()[0].Amount)
	assert.Equal(t, 10, s.store.Product(1).Stock)

	refund := s.do(t, http.MethodPost, "/api/payments/cancel", buyerToken,
		`{"orderNumber":"`+number+`","cancelReason":"twice"}`)
	assert.Equal(t, http.StatusConflict, refund.Code)
	assert.Equal(t, 1, s.gateway.cancels)
}
