package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	order, err := f.CreateOrder(ctx, OrderRequest{Amount: 5000, Currency: "INR", Receipt: "appt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, order.Status)
	assert.Equal(t, "appt-1", order.Receipt)
	assert.False(t, order.Paid())

	require.NoError(t, f.MarkPaid(order.ID))
	fetched, err := f.FetchOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Paid())
	assert.Zero(t, fetched.AmountDue)
}

func TestFake_Errors(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	_, err := f.FetchOrder(ctx, "order_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, f.MarkPaid("order_missing"), ErrOrderNotFound)

	_, err = f.CreateOrder(ctx, OrderRequest{Amount: 0, Currency: "INR"})
	assert.Error(t, err)

	boom := errors.New("processor down")
	f.FailWith = boom
	_, err = f.CreateOrder(ctx, OrderRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, boom)
}

func TestRazorpayClient_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var req OrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(5000), req.Amount)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "appt-1", req.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_ABC","entity":"order","amount":5000,"amount_due":5000,"currency":"INR","receipt":"appt-1","status":"created","created_at":1722850000}`))
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL+"/v1/", "rzp_test_key", "rzp_test_secret")
	order, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 5000, Currency: "INR", Receipt: "appt-1"})
	require.NoError(t, err)
	assert.Equal(t, "order_ABC", order.ID)
	assert.Equal(t, StatusCreated, order.Status)
	assert.Equal(t, "rzp_test_key", client.KeyID())
}

func TestRazorpayClient_FetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/orders/order_PAID":
			_, _ = w.Write([]byte(`{"id":"order_PAID","amount":5000,"currency":"INR","receipt":"appt-1","status":"paid"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		}
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "k", "s")

	order, err := client.FetchOrder(context.Background(), "order_PAID")
	require.NoError(t, err)
	assert.True(t, order.Paid())
	assert.Equal(t, "appt-1", order.Receipt)

	_, err = client.FetchOrder(context.Background(), "order_NOPE")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRazorpayClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer srv.Close()

	_, err := NewRazorpayClient(srv.URL, "k", "bad").CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication failed")
}

func TestRazorpayClient_FetchOrderBadRequestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/order_UNKNOWN":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"GATEWAY_ERROR","description":"Upstream hiccup"}}`))
		}
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "k", "s")

	_, err := client.FetchOrder(context.Background(), "order_UNKNOWN")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = client.FetchOrder(context.Background(), "order_OTHER")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "GATEWAY_ERROR", apiErr.Code)
}

func TestRazorpayClient_CreateOrderBadRequestIsNotNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Order amount less than minimum amount allowed"}}`))
	}))
	defer srv.Close()

	_, err := NewRazorpayClient(srv.URL, "k", "s").CreateOrder(context.Background(), OrderRequest{Amount: 1, Currency: "INR"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
	assert.Contains(t, err.Error(), "minimum amount")
}
