package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/pii"
	"property-delivery-api-server/internal/policy"
)

// RegisterInput is a new delivery as submitted by a client.
type RegisterInput struct {
	PropertyID        string              `json:"propertyId"`
	UnitID            string              `json:"unitId,omitempty"`
	DeliveryType      models.DeliveryType `json:"deliveryType"`
	SenderName        string              `json:"senderName"`
	SenderCompany     string              `json:"senderCompany,omitempty"`
	RecipientName     string              `json:"recipientName"`
	RecipientPhone    string              `json:"recipientPhone,omitempty"`
	RecipientEmail    string              `json:"recipientEmail,omitempty"`
	TrackingNumber    string              `json:"trackingNumber,omitempty"`
	Description       string              `json:"description"`
	EstimatedDelivery time.Time           `json:"estimatedDelivery"`
	DeliveryLocation  string              `json:"deliveryLocation,omitempty"`
	DeliveryNotes     string              `json:"deliveryNotes,omitempty"`
}

func (in RegisterInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.PropertyID) == "":
		return fault.ErrRequiredProperty
	case !in.DeliveryType.Valid():
		return fault.ErrInvalidDeliveryType
	case strings.TrimSpace(in.SenderName) == "":
		return fault.ErrRequiredSender
	case strings.TrimSpace(in.RecipientName) == "":
		return fault.ErrRecipientRequired
	case strings.TrimSpace(in.Description) == "":
		return fault.ErrRequiredDescription
	case !in.EstimatedDelivery.After(now):
		return fault.ErrInvalidEstimatedTime
	}
	return nil
}

// Register records a delivery from the web dashboard. It starts in registered.
func (w *Workflow) Register(ctx context.Context, actor *models.User, in RegisterInput) (d *models.Delivery, err error) {
	defer func() { observe(err) }()
	return w.register(ctx, actor, in, policy.ActionRegister, false)
}

// RegisterMobile records a delivery from the mobile app. The recipient's PII is
// hashed and the registration mirrored to the ledger when one is configured.
func (w *Workflow) RegisterMobile(ctx context.Context, actor *models.User, in RegisterInput) (d *models.Delivery, err error) {
	defer func() { observe(err) }()
	return w.register(ctx, actor, in, policy.ActionRegisterMobile, true)
}

func (w *Workflow) register(ctx context.Context, actor *models.User, in RegisterInput, action policy.Action, mirrored bool) (*models.Delivery, error) {
	if actor == nil {
		return nil, fault.ErrIdentityRequired
	}
	now := w.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	propertyID, err := parseID(in.PropertyID, fault.ErrPropertyNotFound)
	if err != nil {
		return nil, err
	}
	property, err := w.store.Directory().GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	var unit *models.Unit
	if in.UnitID != "" {
		unitID, err := parseID(in.UnitID, fault.ErrUnitNotFound)
		if err != nil {
			return nil, err
		}
		unit, err = w.store.Directory().GetUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if unit.PropertyID != property.ID {
			return nil, fault.ErrUnitPropertyMismatch
		}
	}

	if err := policy.Authorize(actor, policy.Resource{Property: property, Unit: unit}, action); err != nil {
		return nil, err
	}

	d := &models.Delivery{
		ID:                primitive.NewObjectID(),
		PropertyID:        property.ID,
		DeliveryType:      in.DeliveryType,
		SenderName:        strings.TrimSpace(in.SenderName),
		SenderCompany:     strings.TrimSpace(in.SenderCompany),
		RecipientName:     strings.TrimSpace(in.RecipientName),
		RecipientPhone:    strings.TrimSpace(in.RecipientPhone),
		RecipientEmail:    strings.TrimSpace(in.RecipientEmail),
		TrackingNumber:    strings.TrimSpace(in.TrackingNumber),
		Description:       strings.TrimSpace(in.Description),
		EstimatedDelivery: in.EstimatedDelivery,
		Status:            models.StatusRegistered,
		DeliveryLocation:  in.DeliveryLocation,
		DeliveryNotes:     in.DeliveryNotes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if unit != nil {
		d.UnitID = &unit.ID
	}

	c := commit{
		delivery: d,
		create:   true,
		entry: models.DeliveryLog{
			Action:      models.StatusRegistered,
			PerformedBy: &actor.ID,
			Notes:       "Delivery registered",
		},
		notifications: tenantNotice(unit, "New delivery registered",
			fmt.Sprintf("A %s from %s is expected for you", d.DeliveryType, d.SenderName)),
	}

	if mirrored {
		d.PIIHash, err = w.hasher.Hash(pii.Recipient{Name: d.RecipientName, Phone: d.RecipientPhone, Email: d.RecipientEmail})
		if err != nil {
			if fault.IsErrInvalid(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", fault.ErrPIIHash, err)
		}
		if w.ledgerEnabled() {
			c.ledger, err = blockchain.Write(d.PIIHash, models.StatusRegistered)
			if err != nil {
				return nil, err
			}
		}
	}

	return w.apply(ctx, c)
}

// tenantNotice addresses the tenant of unit, if there is one.
func tenantNotice(unit *models.Unit, title, body string) []models.Notification {
	if unit == nil || unit.TenantID == nil {
		return nil
	}
	return []models.Notification{{UserID: *unit.TenantID, Title: title, Body: body}}
}

// managerNotice addresses the manager of property.
func managerNotice(property *models.Property, title, body string) []models.Notification {
	if property == nil || property.ManagerID.IsZero() {
		return nil
	}
	return []models.Notification{{UserID: property.ManagerID, Title: title, Body: body}}
}
