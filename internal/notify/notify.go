// Package notify доставляет уведомления о событиях кошелька.
// Доставка асинхронная и не влияет на результат операции, вызвавшей уведомление.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Типы событий.
const (
	EventDepositCompleted    = "deposit.completed"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalDeclined  = "withdrawal.declined"
	EventBundleWon           = "bundle.won"
	EventBundleLost          = "bundle.lost"
	EventBundleRoundAdvanced = "bundle.round_advanced"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_total",
			Help: "Total number of notification events by delivery result",
		},
		[]string{"event", "result"},
	)
)

// Event описывает уведомление для пользователя.
type Event struct {
	Type       string         `json:"event_type"`
	UserID     int64          `json:"user_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Notifier принимает уведомления без ожидания доставки.
type Notifier interface {
	Notify(userID int64, eventType string, payload map[string]any)
}

// Publisher доставляет событие во внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop отбрасывает уведомления.
type Nop struct{}

func (Nop) Notify(int64, string, map[string]any) {}

// Dispatcher ставит уведомления в очередь и доставляет их в фоне через Publisher.
// Если очередь заполнена, уведомление отбрасывается.
type Dispatcher struct {
	pub     Publisher
	logger  *zap.Logger
	events  chan Event
	timeout time.Duration

	closeOnce sync.Once
}

// NewDispatcher создаёт диспетчер с очередью указанного размера.
func NewDispatcher(pub Publisher, logger *zap.Logger, buffer int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		pub:     pub,
		logger:  logger,
		events:  make(chan Event, buffer),
		timeout: 5 * time.Second,
	}
}

// Notify ставит событие в очередь и сразу возвращает управление.
func (d *Dispatcher) Notify(userID int64, eventType string, payload map[string]any) {
	e := Event{
		Type:       eventType,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}

	select {
	case d.events <- e:
	default:
		notificationsTotal.WithLabelValues(eventType, "dropped").Inc()
		d.logger.Warn("notification queue is full, event dropped",
			zap.String("event", eventType),
			zap.Int64("user_id", userID),
		)
	}
}

// Run доставляет события, пока не отменён ctx. Оставшиеся в очереди события
// доставляются перед выходом.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case e := <-d.events:
			d.deliver(e)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.events:
			d.deliver(e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.pub.Publish(ctx, e); err != nil {
		notificationsTotal.WithLabelValues(e.Type, "failed").Inc()
		d.logger.Warn("notification delivery failed",
			zap.String("event", e.Type),
			zap.Int64("user_id", e.UserID),
			zap.Error(err),
		)
		return
	}
	notificationsTotal.WithLabelValues(e.Type, "delivered").Inc()
}

// Close закрывает publisher.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.pub.Close()
	})
	return err
}
