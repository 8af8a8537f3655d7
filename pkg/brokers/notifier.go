package brokers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// Notifier отправляет итоги операций в брокер
type Notifier struct {
	broker  MessageBroker
	session string
}

// NewNotifier - notifier поверх подключенного брокера
func NewNotifier(broker MessageBroker, session string) *Notifier {
	if session == "" {
		session = "default"
	}
	return &Notifier{broker: broker, session: session}
}

// Report - отправить итог операции; ключ сообщения = идентификатор операции
func (n *Notifier) Report(ctx context.Context, outcome diag.Outcome) error {
	payload, err := json.Marshal(diag.NewRecord(n.session, outcome))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := n.broker.Send(ctx, outcome.RequestID, payload); err != nil {
		return fmt.Errorf("%s notify failed: %w", n.broker.GetBrokerType(), err)
	}
	return nil
}

// Close закрывает брокер
func (n *Notifier) Close() error {
	return n.broker.Close()
}

// Decode разбирает сообщение, отправленное Notifier
func Decode(message []byte) (diag.Record, error) {
	var rec diag.Record
	if err := json.Unmarshal(message, &rec); err != nil {
		return rec, fmt.Errorf("invalid outcome message: %w", err)
	}
	return rec, nil
}
