// Package policy decides whether an actor may perform an action on a property
// or on a delivery of that property. Every workflow operation asks it, so the
// ownership rules live in one place.
package policy

import (
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
)

type Action string

const (
	ActionRegister       Action = "register"
	ActionRegisterMobile Action = "register_mobile"
	ActionAssign         Action = "assign"
	ActionCollect        Action = "collect"
	ActionUpdateStatus   Action = "update_status"
	ActionConfirmReceipt Action = "confirm_receipt"
	ActionReportIssue    Action = "report_issue"
	ActionUploadPhoto    Action = "upload_photo"
	ActionView           Action = "view"
	ActionExport         Action = "export"
)

// Resource is what an action targets. Unit is the delivery's unit and is nil for
// property-level actions and common-area deliveries.
type Resource struct {
	Property *models.Property
	Unit     *models.Unit
}

// technicianActions are allowed to a technician on their assigned property.
var technicianActions = map[Action]bool{
	ActionRegister:     true,
	ActionAssign:       true,
	ActionCollect:      true,
	ActionUpdateStatus: true,
	ActionUploadPhoto:  true,
	ActionReportIssue:  true,
	ActionView:         true,
	ActionExport:       true,
}

// tenantActions are allowed to a tenant on deliveries addressed to them.
var tenantActions = map[Action]bool{
	ActionView:           true,
	ActionReportIssue:    true,
	ActionConfirmReceipt: true,
}

// Authorize returns nil when actor may perform action on res.
func Authorize(actor *models.User, res Resource, action Action) error {
	if actor == nil {
		return fault.ErrIdentityRequired
	}
	if res.Property == nil {
		return fault.ErrForbidden
	}

	switch actor.Role {
	case models.RoleManager:
		if res.Property.ManagerID == actor.ID {
			return nil
		}
	case models.RoleFieldTechnician:
		if technicianActions[action] && belongsTo(actor, res.Property) {
			return nil
		}
	case models.RoleTenant:
		if action == ActionRegisterMobile && belongsTo(actor, res.Property) {
			return nil
		}
		if tenantActions[action] && tenantOf(actor, res) {
			return nil
		}
	}
	return fault.ErrForbidden
}

func belongsTo(actor *models.User, p *models.Property) bool {
	return actor.PropertyID != nil && *actor.PropertyID == p.ID
}

// tenantOf: a unit delivery belongs to the unit's tenant, a common-area
// delivery to every tenant of the property.
func tenantOf(actor *models.User, res Resource) bool {
	if res.Unit == nil {
		return belongsTo(actor, res.Property)
	}
	if res.Unit.PropertyID != res.Property.ID {
		return false
	}
	if res.Unit.TenantID != nil && *res.Unit.TenantID == actor.ID {
		return true
	}
	return actor.UnitID != nil && *actor.UnitID == res.Unit.ID
}
