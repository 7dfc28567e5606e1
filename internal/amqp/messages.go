package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledgerwidget/internal/core"
)

// EventType is carried in the AMQP Type property of every ledger event.
type EventType string

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventMonthRolledOver     EventType = "month.rolled_over"
)

// TransactionRecordedMessage is published after a transaction is persisted.
type TransactionRecordedMessage struct {
	Category  string    `json:"category"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

// MonthRolledOverMessage is published after an accounting month is folded
// into history.
type MonthRolledOverMessage struct {
	Month     string             `json:"month"`
	Totals    map[string]float64 `json:"totals"`
	NextMonth string             `json:"next_month"`
	Timestamp time.Time          `json:"timestamp"`
}

// Event is a decoded delivery. Exactly one payload field is set.
type Event struct {
	Type                EventType
	TransactionRecorded *TransactionRecordedMessage
	MonthRolledOver     *MonthRolledOverMessage
}

func NewTransactionRecordedMessage(tx core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		Category:  tx.Category,
		Amount:    tx.Amount,
		Date:      tx.Date,
		Timestamp: time.Now(),
	}
}

func NewMonthRolledOverMessage(month string, totals core.Totals, nextMonth string) *MonthRolledOverMessage {
	return &MonthRolledOverMessage{
		Month:     month,
		Totals:    totals.Clone(),
		NextMonth: nextMonth,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSON converts the message to JSON bytes
func (m *MonthRolledOverMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeEvent parses a delivery body according to its event type.
func DecodeEvent(eventType string, body []byte) (*Event, error) {
	ev := &Event{Type: EventType(eventType)}
	switch ev.Type {
	case EventTransactionRecorded:
		var msg TransactionRecordedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		ev.TransactionRecorded = &msg
	case EventMonthRolledOver:
		var msg MonthRolledOverMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if msg.Totals == nil {
			msg.Totals = map[string]float64{}
		}
		ev.MonthRolledOver = &msg
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	return ev, nil
}
