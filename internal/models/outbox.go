// internal/models/outbox.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OutboxKind string

const (
	OutboxNotification OutboxKind = "notification"
	OutboxLedger       OutboxKind = "ledger"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxDone    OutboxStatus = "done"
	OutboxDead    OutboxStatus = "dead"
)

type Notification struct {
	UserID primitive.ObjectID `bson:"userId" json:"userId"`
	Title  string             `bson:"title" json:"title"`
	Body   string             `bson:"body" json:"body"`
	Data   map[string]string  `bson:"data,omitempty" json:"data,omitempty"`
}

type LedgerWrite struct {
	Function string         `bson:"function" json:"function"`
	Key      string         `bson:"key" json:"key"`
	Status   DeliveryStatus `bson:"status" json:"status"`
}

// OutboxEntry is a side effect committed together with a delivery change and
// delivered later, with retries, by the outbox worker. Sequence is the delivery
// version the entry was committed with; ledger entries of one delivery are
// delivered strictly in Sequence order.
type OutboxEntry struct {
	ID            string             `bson:"_id" json:"id"`
	Kind          OutboxKind         `bson:"kind" json:"kind"`
	DeliveryID    primitive.ObjectID `bson:"deliveryId" json:"deliveryId"`
	Sequence      int64              `bson:"sequence" json:"sequence"`
	Notification  *Notification      `bson:"notification,omitempty" json:"notification,omitempty"`
	Ledger        *LedgerWrite       `bson:"ledger,omitempty" json:"ledger,omitempty"`
	Status        OutboxStatus       `bson:"status" json:"status"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	NextAttemptAt time.Time          `bson:"nextAttemptAt" json:"nextAttemptAt"`
	LastError     string             `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}
