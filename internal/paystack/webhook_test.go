package paystack

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chargeSuccess = `{
	"event": "charge.success",
	"data": {
		"status": "success",
		"reference": "AB12CD34EF56",
		"amount": 500000,
		"gateway_response": "Approved",
		"channel": "bank",
		"ip_address": "10.0.0.2",
		"paid_at": "2024-03-01T10:15:00Z",
		"authorization": {"authorization_code": "AUTH_xyz"}
	}
}`

func TestParseEvent_ChargeSuccess(t *testing.T) {
	body := []byte(chargeSuccess)

	ev, err := ParseEvent("whsec", body, Sign("whsec", body))
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, ev.Name)
	require.NotNil(t, ev.Confirmation)
	assert.True(t, ev.Confirmation.Success)
	assert.Equal(t, "AB12CD34EF56", ev.Confirmation.Reference)
	assert.True(t, ev.Confirmation.Amount.Equal(decimal.RequireFromString("5000")))
	assert.Equal(t, "AUTH_xyz", ev.Confirmation.AuthorizationCode)
}

func TestParseEvent_Errors(t *testing.T) {
	body := []byte(chargeSuccess)

	tests := []struct {
		name      string
		body      []byte
		signature string
		wantErr   error
	}{
		{"wrong secret", body, Sign("other", body), ErrInvalidSignature},
		{"not hex", body, "zz", ErrInvalidSignature},
		{"missing signature", body, "", ErrInvalidSignature},
		{"broken json", []byte(`{`), Sign("whsec", []byte(`{`)), ErrInvalidPayload},
		{"missing event", []byte(`{"data": {}}`), Sign("whsec", []byte(`{"data": {}}`)), ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent("whsec", tt.body, tt.signature)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseEvent_OtherEvent(t *testing.T) {
	body := []byte(`{"event": "transfer.success", "data": {}}`)

	ev, err := ParseEvent("whsec", body, Sign("whsec", body))
	require.NoError(t, err)
	assert.Equal(t, "transfer.success", ev.Name)
	assert.Nil(t, ev.Confirmation)
}
