// internal/models/property.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Property struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Address   Address            `bson:"address" json:"address"`
	ManagerID primitive.ObjectID `bson:"managerId" json:"managerId"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type Unit struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PropertyID primitive.ObjectID  `bson:"propertyId" json:"propertyId"`
	UnitNumber string              `bson:"unitNumber" json:"unitNumber"`
	TenantID   *primitive.ObjectID `bson:"tenantId,omitempty" json:"tenantId,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
}
