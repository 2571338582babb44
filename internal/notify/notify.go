// Package notify turns delivery notifications into realtime messages.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"property-delivery-api-server/internal/models"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks property-delivery-api-server/internal/notify Sender

// Sender is the transport, implemented by socket.Hub.
type Sender interface {
	Send(userID string, message []byte) error
}

// Message is the JSON frame pushed to clients.
type Message struct {
	Type       string            `json:"type"`
	DeliveryID string            `json:"deliveryId"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	SentAt     time.Time         `json:"sentAt"`
}

type Dispatcher struct {
	sender Sender
	now    func() time.Time
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, now: time.Now}
}

// Dispatch sends n about the given delivery to its recipient.
func (d *Dispatcher) Dispatch(deliveryID string, n models.Notification) error {
	payload, err := json.Marshal(Message{
		Type:       "delivery",
		DeliveryID: deliveryID,
		Title:      n.Title,
		Body:       n.Body,
		Data:       n.Data,
		SentAt:     d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := d.sender.Send(n.UserID.Hex(), payload); err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", n.UserID.Hex(), err)
	}
	return nil
}
