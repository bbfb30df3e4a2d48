package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTransaction_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/transaction/verify/AB12CD34EF56" {
			t.Fatalf("path = %s, want /transaction/verify/AB12CD34EF56", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Fatalf("authorization = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"reference": "AB12CD34EF56",
				"amount": 150000,
				"gateway_response": "Successful",
				"channel": "card",
				"ip_address": "10.0.0.1",
				"paid_at": "2024-03-01T10:15:00.000Z",
				"authorization": {"authorization_code": "AUTH_abc"}
			}
		}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test", time.Second)

	res, err := client.VerifyTransaction(context.Background(), "AB12CD34EF56")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("1500.00")), "amount: %s", res.Amount)
	assert.Equal(t, "card", res.Channel)
	assert.Equal(t, "AUTH_abc", res.AuthorizationCode)
	assert.Equal(t, "10.0.0.1", res.IPAddress)
	require.NotNil(t, res.PaidAt)
	assert.Equal(t, 2024, res.PaidAt.Year())
}

func TestVerifyTransaction_Declined(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data":    map[string]any{"status": "failed", "reference": "REF", "amount": 100000, "gateway_response": "Declined"},
		})
	}))
	defer ts.Close()

	res, err := NewClient(ts.URL, "sk_test", time.Second).VerifyTransaction(context.Background(), "REF")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Declined", res.GatewayResponse)
}

func TestVerifyTransaction_UnknownReference(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status": false, "message": "Transaction reference not found"}`))
	}))
	defer ts.Close()

	res, err := NewClient(ts.URL, "sk_test", time.Second).VerifyTransaction(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "MISSING", res.Reference)
}

func TestVerifyTransaction_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "sk_test", time.Second).VerifyTransaction(context.Background(), "REF")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestVerifyTransaction_NotAPaymentOutcome(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "invalid key", status: http.StatusUnauthorized, body: `{"status": false, "message": "Invalid key"}`},
		{name: "forbidden", status: http.StatusForbidden, body: `{"status": false, "message": "Forbidden"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"status": false, "message": "Too many requests"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			res, err := NewClient(ts.URL, "sk_rotated", time.Second).VerifyTransaction(context.Background(), "REF")
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("status %d: err = %v, want ErrUnavailable", tt.status, err)
			}
			assert.Nil(t, res)
		})
	}
}

func TestVerifyTransaction_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(ts.URL, "sk_test", time.Second).VerifyTransaction(ctx, "REF")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifyTransaction_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", 0).VerifyTransaction(context.Background(), "REF")
	require.Error(t, err)
}

func TestInitializeTransaction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["amount"] != float64(250050) {
			t.Fatalf("amount = %v, want 250050 kobo", body["amount"])
		}
		if body["reference"] != "AB12CD34EF56" || body["email"] != "user@example.com" {
			t.Fatalf("unexpected body: %v", body)
		}

		_, _ = w.Write([]byte(`{"status": true, "message": "Authorization URL created",
			"data": {"authorization_url": "https://checkout.paystack.com/x", "access_code": "x", "reference": "AB12CD34EF56"}}`))
	}))
	defer ts.Close()

	p, err := NewClient(ts.URL, "sk_test", time.Second).InitializeTransaction(context.Background(), PaymentRequest{
		Email:       "user@example.com",
		Amount:      decimal.RequireFromString("2500.50"),
		Reference:   "AB12CD34EF56",
		CallbackURL: "https://example.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/x", p.AuthorizationURL)
}
