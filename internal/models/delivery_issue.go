// internal/models/delivery_issue.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IssueType string

const (
	IssueDamaged        IssueType = "damaged"
	IssueMissing        IssueType = "missing"
	IssueWrongRecipient IssueType = "wrong_recipient"
	IssueLate           IssueType = "late"
	IssueOther          IssueType = "other"
)

func (t IssueType) Valid() bool {
	switch t {
	case IssueDamaged, IssueMissing, IssueWrongRecipient, IssueLate, IssueOther:
		return true
	}
	return false
}

// DeliveryIssue is a problem reported against a delivery.
type DeliveryIssue struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DeliveryID  primitive.ObjectID  `bson:"deliveryId" json:"deliveryId"`
	PropertyID  primitive.ObjectID  `bson:"propertyId" json:"propertyId"`
	IssueType   IssueType           `bson:"issueType" json:"issueType"`
	Description string              `bson:"description" json:"description"`
	ReportedBy  *primitive.ObjectID `bson:"reportedBy,omitempty" json:"reportedBy,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}
