// internal/models/delivery_log.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryLog is one append-only audit entry. Action carries the status the
// delivery moved to.
type DeliveryLog struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DeliveryID       primitive.ObjectID  `bson:"deliveryId" json:"deliveryId"`
	PropertyID       primitive.ObjectID  `bson:"propertyId" json:"propertyId"`
	Action           DeliveryStatus      `bson:"action" json:"action"`
	Timestamp        time.Time           `bson:"timestamp" json:"timestamp"`
	PerformedBy      *primitive.ObjectID `bson:"performedBy,omitempty" json:"performedBy,omitempty"`
	Notes            string              `bson:"notes,omitempty" json:"notes,omitempty"`
	BlockchainTxHash string              `bson:"blockchainTxHash,omitempty" json:"blockchainTxHash,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
}
