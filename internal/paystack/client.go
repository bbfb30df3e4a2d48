// Package paystack предоставляет клиент платёжного шлюза Paystack.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

// DefaultBaseURL содержит адрес API Paystack.
const DefaultBaseURL = "https://api.paystack.co"

// ErrUnavailable возвращается, если шлюз не ответил или ответ не содержит результата платежа.
// Такой результат не означает отказ в платеже.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Client инкапсулирует HTTP-взаимодействие с Paystack.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient создаёт клиент Paystack с указанным секретным ключом.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type authorization struct {
	AuthorizationCode string `json:"authorization_code"`
}

// transaction содержит данные транзакции в ответах verify и в событиях вебхука.
type transaction struct {
	Status          string        `json:"status"`
	Reference       string        `json:"reference"`
	Amount          int64         `json:"amount"`
	GatewayResponse string        `json:"gateway_response"`
	Channel         string        `json:"channel"`
	IPAddress       string        `json:"ip_address"`
	PaidAt          *time.Time    `json:"paid_at"`
	Authorization   authorization `json:"authorization"`
}

func (t *transaction) confirmation(success bool) *model.GatewayConfirmation {
	return &model.GatewayConfirmation{
		Reference:         t.Reference,
		Success:           success,
		Amount:            fromKobo(t.Amount),
		GatewayResponse:   t.GatewayResponse,
		Channel:           t.Channel,
		AuthorizationCode: t.Authorization.AuthorizationCode,
		IPAddress:         t.IPAddress,
		PaidAt:            t.PaidAt,
	}
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func fromKobo(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func toKobo(v decimal.Decimal) int64 {
	return v.Shift(2).Round(0).IntPart()
}

// paymentOutcome сообщает, несёт ли ответ с данным статусом результат платежа.
// 400 и 404 шлюз отдаёт для неизвестного референса. Ошибки авторизации, лимитов
// и сервера результатом не являются.
func paymentOutcome(status int) bool {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return true
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	if c == nil || c.secretKey == "" {
		return 0, fmt.Errorf("paystack client not configured")
	}

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if !paymentOutcome(resp.StatusCode) {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, nil
}

// VerifyTransaction запрашивает у шлюза статус платежа по референсу.
// Ответ шлюза с отказом возвращается как подтверждение с Success=false без ошибки.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*model.GatewayConfirmation, error) {
	var res envelope[transaction]
	if _, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &res); err != nil {
		return nil, err
	}

	if !res.Status {
		return &model.GatewayConfirmation{Reference: reference, GatewayResponse: res.Message}, nil
	}

	if res.Data.Reference == "" {
		res.Data.Reference = reference
	}
	return res.Data.confirmation(res.Data.Status == "success"), nil
}

// PaymentRequest содержит параметры инициализации платежа.
type PaymentRequest struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
}

// Payment содержит результат инициализации платежа.
type Payment struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeTransaction регистрирует платёж в шлюзе и возвращает адрес страницы оплаты.
func (c *Client) InitializeTransaction(ctx context.Context, p PaymentRequest) (*Payment, error) {
	body := map[string]any{
		"email":        p.Email,
		"amount":       toKobo(p.Amount),
		"reference":    p.Reference,
		"callback_url": p.CallbackURL,
	}

	var res envelope[Payment]
	code, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &res)
	if err != nil {
		return nil, err
	}
	if !res.Status || res.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("initialize transaction: status %d: %s", code, res.Message)
	}

	return &res.Data, nil
}
