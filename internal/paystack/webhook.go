package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

// SignatureHeader содержит имя заголовка с подписью тела вебхука.
const SignatureHeader = "X-Paystack-Signature"

// EventChargeSuccess обозначает успешное списание с карты плательщика.
const EventChargeSuccess = "charge.success"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event описывает событие вебхука.
type Event struct {
	Name         string
	Confirmation *model.GatewayConfirmation
}

// VerifySignature проверяет HMAC-SHA512 подпись тела запроса.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign возвращает подпись тела запроса в формате заголовка X-Paystack-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent разбирает подписанное тело вебхука.
// Для charge.success заполняется Confirmation, для прочих событий только Name.
func ParseEvent(secret string, body []byte, signature string) (*Event, error) {
	if !VerifySignature(secret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var payload struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Event == "" {
		return nil, fmt.Errorf("%w: event type missing", ErrInvalidPayload)
	}

	ev := &Event{Name: payload.Event}
	if payload.Event != EventChargeSuccess {
		return ev, nil
	}

	var data transaction
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if data.Reference == "" {
		return nil, fmt.Errorf("%w: reference missing", ErrInvalidPayload)
	}

	ev.Confirmation = data.confirmation(true)
	return ev, nil
}
