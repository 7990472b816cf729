package toss

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oralcare-shop/internal/domain/payment"
)

const confirmedCard = `{
  "paymentKey": "tgen_20250615abc",
  "orderId": "20250615-K3QZ7M2XW4",
  "status": "DONE",
  "method": "카드",
  "totalAmount": 18500,
  "approvedAt": "2025-06-15T12:00:00+09:00",
  "receipt": {"url": "https://dashboard.tosspayments.com/receipt/abc"},
  "card": {"issuerCode": "61", "number": "43301234****123*", "installmentPlanMonths": 0},
  "easyPay": null,
  "virtualAccount": null,
  "secret": null
}`

const issuedAccount = `{
  "paymentKey": "tgen_va",
  "orderId": "20250615-K3QZ7M2XW4",
  "status": "WAITING_FOR_DEPOSIT",
  "method": "가상계좌",
  "totalAmount": 18500,
  "virtualAccount": {"accountNumber": "X6505636518308", "bankCode": "20", "customerName": "Kim Minji", "dueDate": "2025-06-22T23:59:59+09:00"},
  "secret": "ps_secret"
}`

func decodeObject(t *testing.T, body []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	d := jx.DecodeBytes(body)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = raw.String()
		return err
	}))
	return out
}

func TestClient_Confirm(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = decodeObject(t, body)
		_, _ = io.WriteString(w, confirmedCard)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, SecretKey: "test_sk"}, nil, nil)
	conf, err := c.Confirm(context.Background(), payment.ConfirmRequest{
		PaymentKey: "tgen_20250615abc",
		OrderID:    "20250615-K3QZ7M2XW4",
		Amount:     18500,
	})
	require.NoError(t, err)

	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("test_sk:")), gotAuth)
	assert.Equal(t, map[string]string{
		"paymentKey": `"tgen_20250615abc"`,
		"orderId":    `"20250615-K3QZ7M2XW4"`,
		"amount":     `18500`,
	}, gotBody)

	assert.Equal(t, payment.GatewayDone, conf.Status)
	assert.Equal(t, int64(18500), conf.TotalAmount)
	assert.Equal(t, "61", conf.CardCompany)
	assert.Equal(t, "https://dashboard.tosspayments.com/receipt/abc", conf.ReceiptURL)
	require.NotNil(t, conf.ApprovedAt)
	assert.True(t, conf.ApprovedAt.Equal(time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)))
	assert.Nil(t, conf.VirtualAccount)
	assert.Empty(t, conf.Secret)
	assert.NotEmpty(t, conf.Raw)
}

func TestClient_Confirm_VirtualAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, issuedAccount)
	}))
	defer srv.Close()

	conf, err := New(Config{BaseURL: srv.URL}, nil, nil).Confirm(context.Background(), payment.ConfirmRequest{PaymentKey: "tgen_va"})
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayWaitingForDeposit, conf.Status)
	assert.Equal(t, "ps_secret", conf.Secret)
	require.NotNil(t, conf.VirtualAccount)
	assert.Equal(t, "X6505636518308", conf.VirtualAccount.AccountNumber)
	require.NotNil(t, conf.VirtualAccount.DueDate)
}

func TestClient_Rejection(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:     "coded error",
			status:   http.StatusBadRequest,
			body:     `{"code":"REJECT_CARD_PAYMENT","message":"한도초과 혹은 잔액부족"}`,
			wantCode: "REJECT_CARD_PAYMENT",
		},
		{
			name:     "unparsable body",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantCode: "UNKNOWN_PAYMENT_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}, nil, nil).Confirm(context.Background(), payment.ConfirmRequest{})
			var gwErr *payment.GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.status, gwErr.StatusCode)
			assert.Equal(t, tt.wantCode, gwErr.Code)
		})
	}
}

func TestClient_Cancel(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = decodeObject(t, body)
		_, _ = io.WriteString(w, `{"paymentKey":"tgen_1","status":"CANCELED","totalAmount":18500}`)
	}))
	defer srv.Close()

	conf, err := New(Config{BaseURL: srv.URL}, nil, nil).Cancel(context.Background(), payment.CancelRequest{
		PaymentKey: "tgen_1",
		Reason:     "damaged",
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/payments/tgen_1/cancel", gotPath)
	assert.Equal(t, map[string]string{"cancelReason": `"damaged"`}, gotBody)
	assert.Equal(t, payment.GatewayCanceled, conf.Status)
}
