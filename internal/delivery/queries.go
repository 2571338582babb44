package delivery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/policy"
)

// Get returns a delivery the actor may view.
func (w *Workflow) Get(ctx context.Context, actor *models.User, id string) (*models.Delivery, error) {
	s, err := w.load(ctx, actor, id, policy.ActionView)
	if err != nil {
		return nil, err
	}
	return s.delivery, nil
}

// GetByPIIHash returns the newest delivery mirrored under piiHash.
func (w *Workflow) GetByPIIHash(ctx context.Context, actor *models.User, piiHash string) (*models.Delivery, error) {
	if actor == nil {
		return nil, fault.ErrIdentityRequired
	}
	if piiHash == "" {
		return nil, fault.ErrMissingPIIHash
	}
	d, err := w.store.Deliveries().GetByPIIHash(ctx, piiHash)
	if err != nil {
		return nil, err
	}
	if _, err := w.scopeOf(ctx, actor, d, policy.ActionView); err != nil {
		return nil, err
	}
	return d, nil
}

// ListLogs pages through the audit trail of a delivery, newest first.
func (w *Workflow) ListLogs(ctx context.Context, actor *models.User, id, cursor string, limit int) (models.Page[models.DeliveryLog], error) {
	s, err := w.load(ctx, actor, id, policy.ActionView)
	if err != nil {
		return models.Page[models.DeliveryLog]{}, err
	}
	return w.store.Logs().List(ctx, s.delivery.ID, cursor, limit)
}

// ListIssues returns the issues reported against a delivery.
func (w *Workflow) ListIssues(ctx context.Context, actor *models.User, id string) ([]models.DeliveryIssue, error) {
	s, err := w.load(ctx, actor, id, policy.ActionView)
	if err != nil {
		return nil, err
	}
	return w.store.Issues().ListByDelivery(ctx, s.delivery.ID)
}

// SearchInput narrows a delivery history search. PropertyID is required.
type SearchInput struct {
	PropertyID     string
	UnitID         string
	DeliveryType   models.DeliveryType
	Status         models.DeliveryStatus
	From           *time.Time
	To             *time.Time
	Text           string
	TrackingNumber string
}

// filterFor resolves in into a store filter and checks the actor may run it.
// Tenants only ever see their own unit and the property's common area.
func (w *Workflow) filterFor(ctx context.Context, actor *models.User, in SearchInput, action policy.Action) (models.DeliveryFilter, error) {
	if actor == nil {
		return models.DeliveryFilter{}, fault.ErrIdentityRequired
	}
	if strings.TrimSpace(in.PropertyID) == "" {
		return models.DeliveryFilter{}, fault.ErrRequiredProperty
	}
	if in.DeliveryType != "" && !in.DeliveryType.Valid() {
		return models.DeliveryFilter{}, fault.ErrInvalidDeliveryType
	}
	if in.Status != "" && !in.Status.Valid() {
		return models.DeliveryFilter{}, fault.ErrInvalidStatus
	}

	propertyID, err := parseID(in.PropertyID, fault.ErrPropertyNotFound)
	if err != nil {
		return models.DeliveryFilter{}, err
	}
	property, err := w.store.Directory().GetProperty(ctx, propertyID)
	if err != nil {
		return models.DeliveryFilter{}, err
	}

	unitRef := in.UnitID
	if actor.Role == models.RoleTenant {
		if actor.UnitID == nil {
			return models.DeliveryFilter{}, fault.ErrForbidden
		}
		unitRef = actor.UnitID.Hex()
	}

	var unit *models.Unit
	if unitRef != "" {
		unitID, err := parseID(unitRef, fault.ErrUnitNotFound)
		if err != nil {
			return models.DeliveryFilter{}, err
		}
		unit, err = w.store.Directory().GetUnit(ctx, unitID)
		if err != nil {
			return models.DeliveryFilter{}, err
		}
		if unit.PropertyID != property.ID {
			return models.DeliveryFilter{}, fault.ErrUnitPropertyMismatch
		}
	}

	if err := policy.Authorize(actor, policy.Resource{Property: property, Unit: unit}, action); err != nil {
		return models.DeliveryFilter{}, err
	}

	f := models.DeliveryFilter{
		PropertyID:     property.ID,
		DeliveryType:   in.DeliveryType,
		Status:         in.Status,
		From:           in.From,
		To:             in.To,
		Text:           strings.TrimSpace(in.Text),
		TrackingNumber: strings.TrimSpace(in.TrackingNumber),
	}
	if unit != nil {
		f.UnitID = &unit.ID
	}
	f.CommonArea = actor.Role == models.RoleTenant
	return f, nil
}

// Search pages through a property's deliveries, newest first.
func (w *Workflow) Search(ctx context.Context, actor *models.User, in SearchInput, cursor string, limit int) (models.Page[models.Delivery], error) {
	f, err := w.filterFor(ctx, actor, in, policy.ActionView)
	if err != nil {
		return models.Page[models.Delivery]{}, err
	}
	return w.store.Deliveries().Search(ctx, f, cursor, limit)
}

// ExportReport counts a property's deliveries by status and type.
func (w *Workflow) ExportReport(ctx context.Context, actor *models.User, in SearchInput) (*models.DeliveryReport, error) {
	f, err := w.filterFor(ctx, actor, in, policy.ActionExport)
	if err != nil {
		return nil, err
	}
	return w.store.Deliveries().Report(ctx, f)
}

// LedgerStatus reads the ledger's record of a mirrored delivery.
func (w *Workflow) LedgerStatus(ctx context.Context, actor *models.User, id string) (*blockchain.Record, error) {
	s, err := w.load(ctx, actor, id, policy.ActionView)
	if err != nil {
		return nil, err
	}
	if s.delivery.PIIHash == "" {
		return nil, fault.ErrMissingPIIHash
	}
	if !w.ledgerEnabled() {
		return nil, fault.ErrLedgerUnavailable
	}
	return w.ledger.Status(ctx, s.delivery.PIIHash)
}

// AddPhoto uploads a photo and appends its URL to the delivery.
func (w *Workflow) AddPhoto(ctx context.Context, actor *models.User, id string, file io.Reader, contentType string) (d *models.Delivery, err error) {
	defer func() { observe(err) }()

	if !strings.HasPrefix(contentType, "image/") {
		return nil, fault.ErrInvalidPhoto
	}
	s, err := w.load(ctx, actor, id, policy.ActionUploadPhoto)
	if err != nil {
		return nil, err
	}
	if w.photos == nil {
		return nil, fault.ErrStorageUnavailable
	}

	url, err := w.photos.Upload(ctx, "deliveries/"+s.delivery.ID.Hex(), file, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrPhotoUpload, err)
	}
	return w.store.Deliveries().AddPhoto(ctx, s.delivery.ID, url, w.now())
}
