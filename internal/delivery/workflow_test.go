package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/blockchain/mocks"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/pii"
	"property-delivery-api-server/internal/repository"
	"property-delivery-api-server/internal/repository/memory"
)

var clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	wf         *Workflow
	property   *models.Property
	other      *models.Property
	unit       *models.Unit
	vacant     *models.Unit
	foreign    *models.Unit
	manager    *models.User
	technician *models.User
	tenant     *models.User
	neighbour  *models.User
	stranger   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	f := &fixture{store: s}

	f.manager = &models.User{ID: primitive.NewObjectID(), Email: "manager@example.com", Role: models.RoleManager}
	f.stranger = &models.User{ID: primitive.NewObjectID(), Email: "other@example.com", Role: models.RoleManager}
	f.property = &models.Property{ID: primitive.NewObjectID(), Name: "Maple Court", ManagerID: f.manager.ID}
	f.other = &models.Property{ID: primitive.NewObjectID(), Name: "Oak House", ManagerID: f.stranger.ID}
	require.NoError(t, s.Directory().CreateProperty(ctx, f.property))
	require.NoError(t, s.Directory().CreateProperty(ctx, f.other))

	tenantID := primitive.NewObjectID()
	f.unit = &models.Unit{ID: primitive.NewObjectID(), PropertyID: f.property.ID, UnitNumber: "1A", TenantID: &tenantID}
	f.vacant = &models.Unit{ID: primitive.NewObjectID(), PropertyID: f.property.ID, UnitNumber: "1B"}
	f.foreign = &models.Unit{ID: primitive.NewObjectID(), PropertyID: f.other.ID, UnitNumber: "9Z"}
	for _, u := range []*models.Unit{f.unit, f.vacant, f.foreign} {
		require.NoError(t, s.Directory().CreateUnit(ctx, u))
	}

	f.technician = &models.User{ID: primitive.NewObjectID(), Role: models.RoleFieldTechnician, PropertyID: &f.property.ID}
	f.tenant = &models.User{ID: tenantID, Role: models.RoleTenant, PropertyID: &f.property.ID, UnitID: &f.unit.ID}
	f.neighbour = &models.User{ID: primitive.NewObjectID(), Role: models.RoleTenant, PropertyID: &f.property.ID, UnitID: &f.vacant.ID}

	f.wf = f.workflow(Deps{Store: s, Hasher: pii.NewHasher("test-secret")})
	return f
}

func (f *fixture) workflow(deps Deps) *Workflow {
	wf := NewWorkflow(deps)
	wf.now = func() time.Time { return clock }
	return wf
}

func (f *fixture) input() RegisterInput {
	return RegisterInput{
		PropertyID:        f.property.ID.Hex(),
		DeliveryType:      models.DeliveryPackage,
		SenderName:        "Courier Co",
		RecipientName:     "Ana Tenant",
		RecipientPhone:    "+1 555 0100",
		Description:       "Medium box",
		TrackingNumber:    "1Z999AA1",
		EstimatedDelivery: clock.Add(24 * time.Hour),
	}
}

func (f *fixture) register(t *testing.T) *models.Delivery {
	t.Helper()
	d, err := f.wf.Register(context.Background(), f.technician, f.input())
	require.NoError(t, err)
	return d
}

func (f *fixture) logs(t *testing.T, d *models.Delivery) []models.DeliveryLog {
	t.Helper()
	page, err := f.store.Logs().List(context.Background(), d.ID, "", repository.MaxPageSize)
	require.NoError(t, err)
	return page.Items
}

func (f *fixture) outbox(kind models.OutboxKind) []models.OutboxEntry {
	out := []models.OutboxEntry{}
	for _, e := range f.store.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestRegisterStartsRegistered(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.UnitID = f.unit.ID.Hex()

	d, err := f.wf.Register(context.Background(), f.manager, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, d.Status)
	assert.Equal(t, int64(0), d.Version)
	assert.Equal(t, f.unit.ID, *d.UnitID)
	assert.Empty(t, d.PIIHash)

	logs := f.logs(t, d)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusRegistered, logs[0].Action)
	assert.Equal(t, f.manager.ID, *logs[0].PerformedBy)
	assert.Equal(t, f.property.ID, logs[0].PropertyID)

	notes := f.outbox(models.OutboxNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, *f.unit.TenantID, notes[0].Notification.UserID)
	assert.Equal(t, d.ID, notes[0].DeliveryID)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.input()
	past.EstimatedDelivery = clock
	_, err := f.wf.Register(ctx, f.manager, past)
	assert.Equal(t, fault.ErrInvalidEstimatedTime, err)

	mismatch := f.input()
	mismatch.UnitID = f.foreign.ID.Hex()
	_, err = f.wf.Register(ctx, f.manager, mismatch)
	assert.Equal(t, fault.ErrUnitPropertyMismatch, err)

	missing := f.input()
	missing.PropertyID = primitive.NewObjectID().Hex()
	_, err = f.wf.Register(ctx, f.manager, missing)
	assert.Equal(t, fault.ErrPropertyNotFound, err)

	noUnit := f.input()
	noUnit.UnitID = primitive.NewObjectID().Hex()
	_, err = f.wf.Register(ctx, f.manager, noUnit)
	assert.Equal(t, fault.ErrUnitNotFound, err)

	badType := f.input()
	badType.DeliveryType = "pallet"
	_, err = f.wf.Register(ctx, f.manager, badType)
	assert.Equal(t, fault.ErrInvalidDeliveryType, err)

	noSender := f.input()
	noSender.SenderName = " "
	_, err = f.wf.Register(ctx, f.manager, noSender)
	assert.Equal(t, fault.ErrRequiredSender, err)

	_, err = f.wf.Register(ctx, f.tenant, f.input())
	assert.Equal(t, fault.ErrForbidden, err)

	_, err = f.wf.Register(ctx, f.stranger, f.input())
	assert.Equal(t, fault.ErrForbidden, err)

	_, err = f.wf.Register(ctx, nil, f.input())
	assert.Equal(t, fault.ErrIdentityRequired, err)

	page, err := f.store.Deliveries().Search(ctx, models.DeliveryFilter{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

// register, assign, collect: three log entries, newest first
func TestHappyPathLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	d, err := f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusArrived, d.Status)
	assert.Equal(t, f.unit.ID, *d.UnitID)
	require.NotNil(t, d.ActualDelivery)
	assert.Equal(t, clock, *d.ActualDelivery)

	d, err = f.wf.ConfirmReceipt(ctx, f.tenant, d.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCollected, d.Status)
	assert.Equal(t, int64(2), d.Version)

	logs := f.logs(t, d)
	require.Len(t, logs, 3)
	actions := []models.DeliveryStatus{}
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.ElementsMatch(t, []models.DeliveryStatus{models.StatusRegistered, models.StatusArrived, models.StatusCollected}, actions)

	var toManager int
	for _, e := range f.outbox(models.OutboxNotification) {
		if e.Notification.UserID == f.manager.ID {
			toManager++
		}
	}
	assert.Equal(t, 1, toManager)
}

func TestAssignRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	_, err := f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.foreign.ID.Hex())
	assert.Equal(t, fault.ErrUnitPropertyMismatch, err)

	_, err = f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), primitive.NewObjectID().Hex())
	assert.Equal(t, fault.ErrUnitNotFound, err)

	_, err = f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.vacant.ID.Hex())
	require.NoError(t, err)
	assert.Empty(t, f.outbox(models.OutboxNotification), "vacant unit has nobody to notify")

	_, err = f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	assert.True(t, fault.IsErrTransition(err))
}

// illegal transition: collected from registered is rejected and nothing is written
func TestIllegalTransitionLeavesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	_, err := f.wf.MarkCollected(ctx, f.technician, d.ID.Hex(), "")
	require.Error(t, err)
	assert.Equal(t, "Invalid status transition from registered to collected", err.Error())

	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, stored.Status)
	assert.Equal(t, int64(0), stored.Version)
	assert.Len(t, f.logs(t, d), 1)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	_, err := f.wf.UpdateStatus(ctx, f.technician, d.ID.Hex(), StatusInput{Status: "pending"})
	assert.Equal(t, fault.ErrInvalidStatus, err)

	d, err = f.wf.UpdateStatus(ctx, f.technician, d.ID.Hex(), StatusInput{Status: models.StatusFailed, Notes: "Courier lost it"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Nil(t, d.ActualDelivery)
	assert.Equal(t, "Courier lost it", f.logs(t, d)[0].Notes)

	// failed deliveries can be retried
	d, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusRegistered})
	require.NoError(t, err)
	assert.Equal(t, "Status changed from failed to registered", f.logs(t, d)[0].Notes)

	at := clock.Add(-time.Hour)
	d, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusArrived, ActualDelivery: &at})
	require.NoError(t, err)
	assert.Equal(t, at, *d.ActualDelivery)

	_, err = f.wf.UpdateStatus(ctx, f.tenant, d.ID.Hex(), StatusInput{Status: models.StatusCollected})
	assert.Equal(t, fault.ErrForbidden, err)

	d, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusReturned})
	require.NoError(t, err)
	_, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusRegistered})
	assert.True(t, fault.IsErrTransition(err))
}

func TestUpdateStatusRejectsEveryIllegalMove(t *testing.T) {
	paths := map[models.DeliveryStatus][]models.DeliveryStatus{
		models.StatusRegistered: nil,
		models.StatusArrived:    {models.StatusArrived},
		models.StatusCollected:  {models.StatusArrived, models.StatusCollected},
		models.StatusFailed:     {models.StatusFailed},
		models.StatusReturned:   {models.StatusReturned},
	}
	require.Len(t, paths, len(models.AllStatuses))

	for from, path := range paths {
		for _, target := range models.AllStatuses {
			if CanTransition(from, target) {
				continue
			}
			t.Run(string(from)+"->"+string(target), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				d := f.register(t)
				for _, step := range path {
					var err error
					d, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: step})
					require.NoError(t, err)
				}
				require.Equal(t, from, d.Status)
				logs := len(f.logs(t, d))
				queued := len(f.store.Entries())

				_, err := f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: target})
				require.Error(t, err)
				assert.True(t, fault.IsErrTransition(err), err.Error())
				assert.Equal(t, http.StatusUnprocessableEntity, fault.HTTPStatus(err))

				stored, err := f.store.Deliveries().Get(ctx, d.ID)
				require.NoError(t, err)
				assert.Equal(t, from, stored.Status)
				assert.Equal(t, d.Version, stored.Version)
				assert.Equal(t, d.UpdatedAt, stored.UpdatedAt)
				assert.Len(t, f.logs(t, d), logs)
				assert.Len(t, f.store.Entries(), queued)
			})
		}
	}
}

func TestUpdatedAtFollowsClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := clock
	f.wf.now = func() time.Time { return now }

	d := f.register(t)
	assert.Equal(t, clock, d.CreatedAt)
	assert.Equal(t, clock, d.UpdatedAt)

	for _, step := range []models.DeliveryStatus{models.StatusFailed, models.StatusRegistered, models.StatusArrived, models.StatusCollected} {
		now = now.Add(90 * time.Second)
		before := d.UpdatedAt

		var err error
		d, err = f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: step})
		require.NoError(t, err)
		assert.True(t, d.UpdatedAt.After(before), "%s: %s not after %s", step, d.UpdatedAt, before)
		assert.Equal(t, now, d.UpdatedAt)
		assert.Equal(t, clock, d.CreatedAt)
	}

	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, now, stored.UpdatedAt)
	assert.Equal(t, int64(4), stored.Version)
	// arrived stamped actualDelivery; collecting leaves it alone
	require.NotNil(t, stored.ActualDelivery)
	assert.Equal(t, clock.Add(270*time.Second), *stored.ActualDelivery)
}

func TestLedgerEntriesCarryVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	wf := f.workflow(Deps{Store: f.store, Hasher: pii.NewHasher("test-secret"), Ledger: blockchain.NewMirror(mocks.NewMockLedgerClient(ctl))})

	d, err := wf.RegisterMobile(ctx, f.tenant, f.input())
	require.NoError(t, err)
	_, err = wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	require.NoError(t, err)
	_, err = wf.ConfirmReceipt(ctx, f.tenant, d.ID.Hex())
	require.NoError(t, err)

	sequences := map[string]int64{}
	for _, e := range f.outbox(models.OutboxLedger) {
		sequences[e.Ledger.Function] = e.Sequence
	}
	assert.Equal(t, map[string]int64{"registerDelivery": 0, "markArrived": 1, "markCollected": 2}, sequences)
}

func TestReportIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.UnitID = f.unit.ID.Hex()
	d, err := f.wf.Register(ctx, f.manager, in)
	require.NoError(t, err)

	_, err = f.wf.ReportIssue(ctx, f.tenant, d.ID.Hex(), IssueInput{IssueType: "lost"})
	assert.Equal(t, fault.ErrInvalidIssueType, err)
	_, err = f.wf.ReportIssue(ctx, f.tenant, d.ID.Hex(), IssueInput{IssueType: models.IssueDamaged})
	assert.Equal(t, fault.ErrRequiredDescription, err)

	d, err = f.wf.ReportIssue(ctx, f.tenant, d.ID.Hex(), IssueInput{IssueType: models.IssueDamaged, Description: "Box crushed"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, d.Status)

	logs := f.logs(t, d)
	require.Len(t, logs, 2)
	assert.Equal(t, models.StatusFailed, logs[0].Action)
	assert.Equal(t, "Issue reported (damaged): Box crushed", logs[0].Notes)

	issues, err := f.wf.ListIssues(ctx, f.manager, d.ID.Hex())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, f.tenant.ID, *issues[0].ReportedBy)

	// a second report on a failed delivery keeps it failed but still records
	d, err = f.wf.ReportIssue(ctx, f.tenant, d.ID.Hex(), IssueInput{IssueType: models.IssueOther, Description: "Still missing"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Equal(t, int64(2), d.Version)
	assert.Len(t, f.logs(t, d), 3)

	var toManager int
	for _, e := range f.outbox(models.OutboxNotification) {
		if e.Notification.UserID == f.manager.ID {
			toManager++
		}
	}
	assert.Equal(t, 2, toManager)
}

func TestReportIssueOnCollectedKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)
	_, err := f.wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	require.NoError(t, err)
	_, err = f.wf.MarkCollected(ctx, f.technician, d.ID.Hex(), "")
	require.NoError(t, err)

	d, err = f.wf.ReportIssue(ctx, f.tenant, d.ID.Hex(), IssueInput{IssueType: models.IssueWrongRecipient, Description: "Not mine"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCollected, d.Status)

	logs := f.logs(t, d)
	require.Len(t, logs, 4)
	assert.Equal(t, models.StatusFailed, logs[0].Action)
}

func TestTenantAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.UnitID = f.unit.ID.Hex()
	d, err := f.wf.Register(ctx, f.manager, in)
	require.NoError(t, err)

	_, err = f.wf.Get(ctx, f.tenant, d.ID.Hex())
	assert.NoError(t, err)
	_, err = f.wf.Get(ctx, f.neighbour, d.ID.Hex())
	assert.Equal(t, fault.ErrForbidden, err)
	_, err = f.wf.Get(ctx, f.stranger, d.ID.Hex())
	assert.Equal(t, fault.ErrForbidden, err)
	_, err = f.wf.Get(ctx, f.tenant, "not-an-id")
	assert.Equal(t, fault.ErrDeliveryNotFound, err)

	_, err = f.wf.AssignToUnit(ctx, f.neighbour, d.ID.Hex(), f.vacant.ID.Hex())
	assert.Equal(t, fault.ErrForbidden, err)
}

// two writers race on the same delivery: exactly one wins
func TestConcurrentUpdatesOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.wf.UpdateStatus(ctx, f.technician, d.ID.Hex(), StatusInput{Status: models.StatusArrived})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, fault.IsErrConflict(err) || fault.IsErrTransition(err), "unexpected error %v", err)
	}
	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(1), stored.Version)
	assert.Len(t, f.logs(t, d), 2)
}

// staleStore serves deliveries as they were before any write
type staleStore struct {
	*memory.Store
	snapshot map[primitive.ObjectID]models.Delivery
}

type staleDeliveries struct {
	repository.DeliveryStore
	snapshot map[primitive.ObjectID]models.Delivery
}

func (s staleStore) Deliveries() repository.DeliveryStore {
	return staleDeliveries{DeliveryStore: s.Store.Deliveries(), snapshot: s.snapshot}
}

func (s staleDeliveries) Get(_ context.Context, id primitive.ObjectID) (*models.Delivery, error) {
	d, ok := s.snapshot[id]
	if !ok {
		return nil, fault.ErrDeliveryNotFound
	}
	return &d, nil
}

func TestStaleWriteConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	stale := f.workflow(Deps{Store: staleStore{Store: f.store, snapshot: map[primitive.ObjectID]models.Delivery{d.ID: *d}}})

	_, err := f.wf.UpdateStatus(ctx, f.technician, d.ID.Hex(), StatusInput{Status: models.StatusArrived})
	require.NoError(t, err)

	_, err = stale.UpdateStatus(ctx, f.technician, d.ID.Hex(), StatusInput{Status: models.StatusFailed})
	assert.Equal(t, fault.ErrStatusConflict, err)

	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArrived, stored.Status)
	assert.Len(t, f.logs(t, d), 2)
}

// failingOutbox breaks the last write of the transaction
type failingOutbox struct {
	*memory.Store
}

type brokenQueue struct {
	repository.OutboxStore
}

func (s failingOutbox) Outbox() repository.OutboxStore { return brokenQueue{s.Store.Outbox()} }

func (brokenQueue) Enqueue(context.Context, *models.OutboxEntry) error {
	return errors.New("queue unavailable")
}

func TestTransactionIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	broken := f.workflow(Deps{Store: failingOutbox{f.store}})
	_, err := broken.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	require.Error(t, err)

	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, stored.Status)
	assert.Nil(t, stored.UnitID)
	assert.Len(t, f.logs(t, d), 1)
}

func TestRegisterMobileQueuesLedgerWrite(t *testing.T) {
	f := newFixture(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	client := mocks.NewMockLedgerClient(ctl)
	client.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	wf := f.workflow(Deps{Store: f.store, Hasher: pii.NewHasher("test-secret"), Ledger: blockchain.NewMirror(client)})
	d, err := wf.RegisterMobile(context.Background(), f.tenant, f.input())
	require.NoError(t, err)
	require.NotEmpty(t, d.PIIHash)
	assert.Nil(t, d.UnitID)

	writes := f.outbox(models.OutboxLedger)
	require.Len(t, writes, 1)
	assert.Equal(t, "registerDelivery", writes[0].Ledger.Function)
	assert.Equal(t, blockchain.Key(d.PIIHash), writes[0].Ledger.Key)

	found, err := wf.GetByPIIHash(context.Background(), f.manager, d.PIIHash)
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)
}

func TestRegisterMobileRequiresMembership(t *testing.T) {
	f := newFixture(t)
	outsider := &models.User{ID: primitive.NewObjectID(), Role: models.RoleTenant, PropertyID: &f.other.ID}
	_, err := f.wf.RegisterMobile(context.Background(), outsider, f.input())
	assert.Equal(t, fault.ErrForbidden, err)
}

func TestSyncLedgerMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	client := mocks.NewMockLedgerClient(ctl)

	wf := f.workflow(Deps{
		Store:      f.store,
		Hasher:     pii.NewHasher("test-secret"),
		Ledger:     blockchain.NewMirror(client),
		LedgerMode: config.LedgerModeSync,
	})

	client.EXPECT().Submit(gomock.Any(), "registerDelivery", gomock.Any()).Return("tx-reg", uint64(10), nil).Times(1)
	d, err := wf.RegisterMobile(ctx, f.tenant, f.input())
	require.NoError(t, err)
	assert.Equal(t, "tx-reg", d.BlockchainTxHash)
	assert.Equal(t, "tx-reg", f.logs(t, d)[0].BlockchainTxHash)
	assert.Empty(t, f.outbox(models.OutboxLedger))

	// ledger refuses: nothing changes in the database
	client.EXPECT().Submit(gomock.Any(), "markArrived", gomock.Any()).Return("", uint64(0), errors.New("endorsement failed")).Times(1)
	_, err = wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	assert.True(t, fault.IsErrDependency(err))
	stored, err := f.store.Deliveries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, stored.Status)
	assert.Len(t, f.logs(t, d), 1)

	client.EXPECT().Submit(gomock.Any(), "markArrived", gomock.Any()).Return("tx-arr", uint64(11), nil).Times(1)
	d, err = wf.AssignToUnit(ctx, f.technician, d.ID.Hex(), f.unit.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "tx-arr", d.BlockchainTxHash)
}

func TestLedgerTableAppliesToMirroredDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	wf := f.workflow(Deps{Store: f.store, Hasher: pii.NewHasher("test-secret"), Ledger: blockchain.NewMirror(mocks.NewMockLedgerClient(ctl))})

	d, err := wf.RegisterMobile(ctx, f.tenant, f.input())
	require.NoError(t, err)
	_, err = wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusFailed})
	require.NoError(t, err)

	// allowed by the canonical table, but failed is terminal on the ledger
	_, err = wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: models.StatusRegistered})
	assert.True(t, fault.IsErrTransition(err))

	plain := f.register(t)
	_, err = wf.UpdateStatus(ctx, f.manager, plain.ID.Hex(), StatusInput{Status: models.StatusFailed})
	require.NoError(t, err)
	_, err = wf.UpdateStatus(ctx, f.manager, plain.ID.Hex(), StatusInput{Status: models.StatusRegistered})
	assert.NoError(t, err)
}

func TestLedgerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	client := mocks.NewMockLedgerClient(ctl)
	wf := f.workflow(Deps{Store: f.store, Hasher: pii.NewHasher("test-secret"), Ledger: blockchain.NewMirror(client)})

	plain := f.register(t)
	_, err := wf.LedgerStatus(ctx, f.manager, plain.ID.Hex())
	assert.Equal(t, fault.ErrMissingPIIHash, err)

	d, err := wf.RegisterMobile(ctx, f.tenant, f.input())
	require.NoError(t, err)
	client.EXPECT().Evaluate(gomock.Any(), "getDelivery", blockchain.Key(d.PIIHash)).
		Return([]byte(`{"status":"registered","updatedAt":1}`), nil).Times(1)
	record, err := wf.LedgerStatus(ctx, f.manager, d.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, record.Status)

	_, err = f.wf.LedgerStatus(ctx, f.manager, d.ID.Hex())
	assert.Equal(t, fault.ErrLedgerUnavailable, err)
}

func TestSearchAndReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := f.input()
	mine.UnitID = f.unit.ID.Hex()
	d1, err := f.wf.Register(ctx, f.manager, mine)
	require.NoError(t, err)

	theirs := f.input()
	theirs.UnitID = f.vacant.ID.Hex()
	theirs.DeliveryType = models.DeliveryFood
	theirs.TrackingNumber = ""
	_, err = f.wf.Register(ctx, f.manager, theirs)
	require.NoError(t, err)

	lobby := f.input()
	lobby.DeliveryType = models.DeliveryMail
	lobby.TrackingNumber = ""
	common, err := f.wf.Register(ctx, f.manager, lobby)
	require.NoError(t, err)
	require.Nil(t, common.UnitID)

	page, err := f.wf.Search(ctx, f.manager, SearchInput{PropertyID: f.property.ID.Hex()}, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	// a unit filter from staff is exact
	page, err = f.wf.Search(ctx, f.manager, SearchInput{PropertyID: f.property.ID.Hex(), UnitID: f.unit.ID.Hex()}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, d1.ID, page.Items[0].ID)

	page, err = f.wf.Search(ctx, f.manager, SearchInput{PropertyID: f.property.ID.Hex(), Text: "1z999"}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, d1.ID, page.Items[0].ID)

	// tenants see their own unit and the common area, whatever they ask for
	page, err = f.wf.Search(ctx, f.tenant, SearchInput{PropertyID: f.property.ID.Hex(), UnitID: f.vacant.ID.Hex()}, "", 10)
	require.NoError(t, err)
	found := []primitive.ObjectID{}
	for _, d := range page.Items {
		found = append(found, d.ID)
	}
	assert.ElementsMatch(t, []primitive.ObjectID{d1.ID, common.ID}, found)

	for _, d := range page.Items {
		_, err := f.wf.Get(ctx, f.tenant, d.ID.Hex())
		assert.NoError(t, err, "search results must be viewable")
	}

	_, err = f.wf.Search(ctx, f.manager, SearchInput{}, "", 10)
	assert.Equal(t, fault.ErrRequiredProperty, err)
	_, err = f.wf.Search(ctx, f.stranger, SearchInput{PropertyID: f.property.ID.Hex()}, "", 10)
	assert.Equal(t, fault.ErrForbidden, err)

	report, err := f.wf.ExportReport(ctx, f.technician, SearchInput{PropertyID: f.property.ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Total)
	assert.Equal(t, int64(3), report.ByStatus[models.StatusRegistered])
	assert.Equal(t, int64(1), report.ByType[models.DeliveryFood])

	_, err = f.wf.ExportReport(ctx, f.tenant, SearchInput{PropertyID: f.property.ID.Hex()})
	assert.Equal(t, fault.ErrForbidden, err)
}

func TestListLogsPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)
	now := clock
	f.wf.now = func() time.Time { return now }
	for _, s := range []models.DeliveryStatus{models.StatusFailed, models.StatusRegistered, models.StatusArrived} {
		now = now.Add(time.Minute)
		_, err := f.wf.UpdateStatus(ctx, f.manager, d.ID.Hex(), StatusInput{Status: s})
		require.NoError(t, err)
	}

	first, err := f.wf.ListLogs(ctx, f.manager, d.ID.Hex(), "", 3)
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.False(t, first.IsDone)
	assert.Equal(t, models.StatusArrived, first.Items[0].Action)

	second, err := f.wf.ListLogs(ctx, f.manager, d.ID.Hex(), first.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.True(t, second.IsDone)
	assert.Equal(t, models.StatusRegistered, second.Items[0].Action)
}

type memoryPhotos struct {
	uploaded map[string][]byte
}

func (m *memoryPhotos) Upload(_ context.Context, folder string, file io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	url := "https://cdn.example.com/" + folder + "/photo.jpg"
	m.uploaded[url] = data
	return url, nil
}

func TestAddPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.register(t)

	_, err := f.wf.AddPhoto(ctx, f.technician, d.ID.Hex(), bytes.NewReader([]byte("jpg")), "image/jpeg")
	assert.Equal(t, fault.ErrStorageUnavailable, err)

	photos := &memoryPhotos{uploaded: map[string][]byte{}}
	wf := f.workflow(Deps{Store: f.store, Photos: photos})

	_, err = wf.AddPhoto(ctx, f.technician, d.ID.Hex(), bytes.NewReader([]byte("exe")), "application/octet-stream")
	assert.Equal(t, fault.ErrInvalidPhoto, err)
	_, err = wf.AddPhoto(ctx, f.tenant, d.ID.Hex(), bytes.NewReader([]byte("jpg")), "image/jpeg")
	assert.Equal(t, fault.ErrForbidden, err)

	d, err = wf.AddPhoto(ctx, f.technician, d.ID.Hex(), bytes.NewReader([]byte("jpg")), "image/jpeg")
	require.NoError(t, err)
	require.Len(t, d.Photos, 1)
	assert.Equal(t, []byte("jpg"), photos.uploaded[d.Photos[0]])
	assert.Len(t, f.logs(t, d), 1, "photos are not status changes")
}
