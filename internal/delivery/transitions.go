package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/policy"
)

// StatusInput is a generic status change.
type StatusInput struct {
	Status         models.DeliveryStatus `json:"status"`
	Notes          string                `json:"notes,omitempty"`
	ActualDelivery *time.Time            `json:"actualDelivery,omitempty"`
}

// IssueInput is a problem reported against a delivery.
type IssueInput struct {
	IssueType   models.IssueType `json:"issueType"`
	Description string           `json:"description"`
}

// move builds the commit for s.delivery entering target. The caller has
// already authorized the actor.
func (w *Workflow) move(s scope, actor *models.User, target models.DeliveryStatus, notes string, actual *time.Time) (commit, error) {
	d := s.delivery
	if err := ValidateTransition(d.Status, target); err != nil {
		return commit{}, err
	}
	ledger, err := w.checkLedger(d, target)
	if err != nil {
		return commit{}, err
	}

	now := w.now()
	patch := &models.StatusPatch{
		ExpectedStatus:  d.Status,
		ExpectedVersion: d.Version,
		Status:          target,
		ActualDelivery:  actualFor(d, target, actual, now),
		UpdatedAt:       now,
	}
	if notes == "" {
		notes = fmt.Sprintf("Status changed from %s to %s", d.Status, target)
	}

	return commit{
		delivery: d,
		patch:    patch,
		entry: models.DeliveryLog{
			Action:      target,
			PerformedBy: &actor.ID,
			Notes:       notes,
		},
		ledger: ledger,
	}, nil
}

// actualFor returns the actualDelivery to write: an explicit value, or now when
// the delivery reaches the building and none is recorded yet.
func actualFor(d *models.Delivery, target models.DeliveryStatus, explicit *time.Time, now time.Time) *time.Time {
	if explicit != nil {
		return explicit
	}
	if d.ActualDelivery == nil && (target == models.StatusArrived || target == models.StatusCollected) {
		return &now
	}
	return nil
}

// AssignToUnit files a registered delivery under unitID and marks it arrived.
func (w *Workflow) AssignToUnit(ctx context.Context, actor *models.User, id, unitID string) (d *models.Delivery, err error) {
	defer func() { observe(err) }()

	s, err := w.load(ctx, actor, id, policy.ActionAssign)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(unitID, fault.ErrUnitNotFound)
	if err != nil {
		return nil, err
	}
	unit, err := w.store.Directory().GetUnit(ctx, uid)
	if err != nil {
		return nil, err
	}
	if unit.PropertyID != s.delivery.PropertyID {
		return nil, fault.ErrUnitPropertyMismatch
	}

	c, err := w.move(s, actor, models.StatusArrived, "Assigned to unit "+unit.UnitNumber, nil)
	if err != nil {
		return nil, err
	}
	c.patch.UnitID = &unit.ID
	c.notifications = tenantNotice(unit, "Delivery arrived",
		fmt.Sprintf("Your %s from %s has arrived", s.delivery.DeliveryType, s.delivery.SenderName))
	return w.apply(ctx, c)
}

// MarkCollected records that staff handed an arrived delivery over.
func (w *Workflow) MarkCollected(ctx context.Context, actor *models.User, id, notes string) (d *models.Delivery, err error) {
	defer func() { observe(err) }()
	return w.collect(ctx, actor, id, policy.ActionCollect, notesOr(notes, "Delivery collected"))
}

// ConfirmReceipt is the tenant's side of MarkCollected.
func (w *Workflow) ConfirmReceipt(ctx context.Context, actor *models.User, id string) (d *models.Delivery, err error) {
	defer func() { observe(err) }()
	return w.collect(ctx, actor, id, policy.ActionConfirmReceipt, "Receipt confirmed by recipient")
}

func (w *Workflow) collect(ctx context.Context, actor *models.User, id string, action policy.Action, notes string) (*models.Delivery, error) {
	s, err := w.load(ctx, actor, id, action)
	if err != nil {
		return nil, err
	}
	c, err := w.move(s, actor, models.StatusCollected, notes, nil)
	if err != nil {
		return nil, err
	}
	c.notifications = managerNotice(s.property, "Delivery collected",
		fmt.Sprintf("%s for %s was collected", s.delivery.DeliveryType, s.delivery.RecipientName))
	return w.apply(ctx, c)
}

// UpdateStatus moves a delivery to any status the transition table allows.
func (w *Workflow) UpdateStatus(ctx context.Context, actor *models.User, id string, in StatusInput) (d *models.Delivery, err error) {
	defer func() { observe(err) }()

	if !in.Status.Valid() {
		return nil, fault.ErrInvalidStatus
	}
	s, err := w.load(ctx, actor, id, policy.ActionUpdateStatus)
	if err != nil {
		return nil, err
	}
	c, err := w.move(s, actor, in.Status, strings.TrimSpace(in.Notes), in.ActualDelivery)
	if err != nil {
		return nil, err
	}
	c.notifications = tenantNotice(s.unit, "Delivery update",
		fmt.Sprintf("Your %s from %s is now %s", s.delivery.DeliveryType, s.delivery.SenderName, in.Status))
	return w.apply(ctx, c)
}

// ReportIssue records a problem with a delivery. An open delivery is forced to
// failed; a collected or returned one keeps its status and only gains the
// report. The audit entry is tagged failed either way.
func (w *Workflow) ReportIssue(ctx context.Context, actor *models.User, id string, in IssueInput) (d *models.Delivery, err error) {
	defer func() { observe(err) }()

	if !in.IssueType.Valid() {
		return nil, fault.ErrInvalidIssueType
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fault.ErrRequiredDescription
	}

	s, err := w.load(ctx, actor, id, policy.ActionReportIssue)
	if err != nil {
		return nil, err
	}
	notes := fmt.Sprintf("Issue reported (%s): %s", in.IssueType, description)

	var c commit
	switch current := s.delivery.Status; {
	case Terminal(current):
		c = commit{delivery: s.delivery}
	case current == models.StatusFailed:
		// already failed: keep the status, refresh the record
		now := w.now()
		c = commit{
			delivery: s.delivery,
			patch: &models.StatusPatch{
				ExpectedStatus:  current,
				ExpectedVersion: s.delivery.Version,
				Status:          current,
				UpdatedAt:       now,
			},
		}
	default:
		c, err = w.move(s, actor, models.StatusFailed, notes, nil)
		if err != nil {
			return nil, err
		}
	}

	c.entry = models.DeliveryLog{
		Action:      models.StatusFailed,
		PerformedBy: &actor.ID,
		Notes:       notes,
	}
	c.issue = &models.DeliveryIssue{
		IssueType:   in.IssueType,
		Description: description,
		ReportedBy:  &actor.ID,
	}
	c.notifications = managerNotice(s.property, "Delivery issue reported", notes)

	return w.apply(ctx, c)
}

func notesOr(notes, fallback string) string {
	if n := strings.TrimSpace(notes); n != "" {
		return n
	}
	return fallback
}
