// internal/models/delivery.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	StatusRegistered DeliveryStatus = "registered"
	StatusArrived    DeliveryStatus = "arrived"
	StatusCollected  DeliveryStatus = "collected"
	StatusFailed     DeliveryStatus = "failed"
	StatusReturned   DeliveryStatus = "returned"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []DeliveryStatus{StatusRegistered, StatusArrived, StatusCollected, StatusFailed, StatusReturned}

func (s DeliveryStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type DeliveryType string

const (
	DeliveryPackage DeliveryType = "package"
	DeliveryFood    DeliveryType = "food"
	DeliveryGrocery DeliveryType = "grocery"
	DeliveryMail    DeliveryType = "mail"
	DeliveryOther   DeliveryType = "other"
)

var AllDeliveryTypes = []DeliveryType{DeliveryPackage, DeliveryFood, DeliveryGrocery, DeliveryMail, DeliveryOther}

func (t DeliveryType) Valid() bool {
	for _, known := range AllDeliveryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Delivery is a parcel tracked for a property, optionally addressed to one unit.
// A nil UnitID means the delivery is for the common area.
type Delivery struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PropertyID        primitive.ObjectID  `bson:"propertyId" json:"propertyId"`
	UnitID            *primitive.ObjectID `bson:"unitId,omitempty" json:"unitId,omitempty"`
	DeliveryType      DeliveryType        `bson:"deliveryType" json:"deliveryType"`
	SenderName        string              `bson:"senderName" json:"senderName"`
	SenderCompany     string              `bson:"senderCompany,omitempty" json:"senderCompany,omitempty"`
	RecipientName     string              `bson:"recipientName" json:"recipientName"`
	RecipientPhone    string              `bson:"recipientPhone,omitempty" json:"recipientPhone,omitempty"`
	RecipientEmail    string              `bson:"recipientEmail,omitempty" json:"recipientEmail,omitempty"`
	TrackingNumber    string              `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	Description       string              `bson:"description" json:"description"`
	EstimatedDelivery time.Time           `bson:"estimatedDelivery" json:"estimatedDelivery"`
	ActualDelivery    *time.Time          `bson:"actualDelivery,omitempty" json:"actualDelivery,omitempty"`
	Status            DeliveryStatus      `bson:"status" json:"status"`
	DeliveryLocation  string              `bson:"deliveryLocation,omitempty" json:"deliveryLocation,omitempty"`
	DeliveryNotes     string              `bson:"deliveryNotes,omitempty" json:"deliveryNotes,omitempty"`
	Photos            []string            `bson:"photos,omitempty" json:"photos,omitempty"`
	BlockchainTxHash  string              `bson:"blockchainTxHash,omitempty" json:"blockchainTxHash,omitempty"`
	PIIHash           string              `bson:"piiHash,omitempty" json:"piiHash,omitempty"`
	Version           int64               `bson:"version" json:"version"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// StatusPatch is a compare-and-swap status change. The patch only applies when the
// stored delivery still has ExpectedStatus and ExpectedVersion.
type StatusPatch struct {
	ExpectedStatus  DeliveryStatus
	ExpectedVersion int64
	Status          DeliveryStatus
	UnitID          *primitive.ObjectID
	ActualDelivery  *time.Time
	TxHash          string
	UpdatedAt       time.Time
}

// DeliveryFilter narrows a delivery history search. Zero values are ignored.
type DeliveryFilter struct {
	PropertyID primitive.ObjectID
	UnitID     *primitive.ObjectID
	// CommonArea also matches deliveries with no unit when UnitID is set.
	CommonArea     bool
	DeliveryType   DeliveryType
	Status         DeliveryStatus
	From           *time.Time
	To             *time.Time
	Text           string
	TrackingNumber string
}

// DeliveryReport aggregates deliveries of one property.
type DeliveryReport struct {
	PropertyID primitive.ObjectID       `json:"propertyId"`
	Total      int64                    `json:"total"`
	ByStatus   map[DeliveryStatus]int64 `json:"byStatus"`
	ByType     map[DeliveryType]int64   `json:"byType"`
	From       *time.Time               `json:"from,omitempty"`
	To         *time.Time               `json:"to,omitempty"`
}
