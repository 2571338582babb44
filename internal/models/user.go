// internal/models/user.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Role string

const (
	RoleManager         Role = "manager"
	RoleTenant          Role = "tenant"
	RoleFieldTechnician Role = "field_technician"
)

const (
	UserActive   = "active"
	UserDisabled = "disabled"
)

// User matches the document in the users collection. PropertyID is the property a
// technician or tenant belongs to; UnitID is set for tenants only.
type User struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Email        string              `bson:"email" json:"email"`
	Name         string              `bson:"name" json:"name"`
	PasswordHash string              `bson:"password" json:"-"`
	Role         Role                `bson:"role" json:"role"`
	PropertyID   *primitive.ObjectID `bson:"propertyId,omitempty" json:"propertyId,omitempty"`
	UnitID       *primitive.ObjectID `bson:"unitId,omitempty" json:"unitId,omitempty"`
	Status       string              `bson:"status" json:"status"`
}
