// Package memory is an in-process Store. It honours the same compare-and-swap
// and transaction contracts as the Mongo store and backs the tests and the
// `storage.driver: memory` mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

type txKey struct{}

// Store keeps every collection in maps guarded by mu. Writes are serialised
// through txMu, which a transaction holds for its whole duration.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	deliveries map[primitive.ObjectID]models.Delivery
	logs       []models.DeliveryLog
	issues     []models.DeliveryIssue
	properties map[primitive.ObjectID]models.Property
	units      map[primitive.ObjectID]models.Unit
	users      map[primitive.ObjectID]models.User
	outbox     map[string]models.OutboxEntry
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		deliveries: make(map[primitive.ObjectID]models.Delivery),
		properties: make(map[primitive.ObjectID]models.Property),
		units:      make(map[primitive.ObjectID]models.Unit),
		users:      make(map[primitive.ObjectID]models.User),
		outbox:     make(map[string]models.OutboxEntry),
	}
}

func (s *Store) Deliveries() repository.DeliveryStore { return deliveryStore{s} }
func (s *Store) Logs() repository.AuditLog            { return auditLog{s} }
func (s *Store) Directory() repository.Directory      { return directory{s} }
func (s *Store) Issues() repository.IssueStore        { return issueStore{s} }
func (s *Store) Users() repository.UserStore          { return userStore{s} }
func (s *Store) Outbox() repository.OutboxStore       { return outboxStore{s} }

type snapshot struct {
	deliveries map[primitive.ObjectID]models.Delivery
	logs       []models.DeliveryLog
	issues     []models.DeliveryIssue
	properties map[primitive.ObjectID]models.Property
	units      map[primitive.ObjectID]models.Unit
	users      map[primitive.ObjectID]models.User
	outbox     map[string]models.OutboxEntry
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		deliveries: copyMap(s.deliveries),
		logs:       append([]models.DeliveryLog(nil), s.logs...),
		issues:     append([]models.DeliveryIssue(nil), s.issues...),
		properties: copyMap(s.properties),
		units:      copyMap(s.units),
		users:      copyMap(s.users),
		outbox:     copyMap(s.outbox),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = snap.deliveries
	s.logs = snap.logs
	s.issues = snap.issues
	s.properties = snap.properties
	s.units = snap.units
	s.users = snap.users
	s.outbox = snap.outbox
}

// WithTransaction runs fn with exclusive write access and restores the previous
// state when fn fails.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under the write lock, taking txMu first unless ctx already
// belongs to a transaction.
func (s *Store) write(ctx context.Context, fn func()) {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- deliveries ---

type deliveryStore struct{ s *Store }

func (r deliveryStore) Create(ctx context.Context, d *models.Delivery) error {
	r.s.write(ctx, func() {
		if d.ID.IsZero() {
			d.ID = primitive.NewObjectID()
		}
		r.s.deliveries[d.ID] = cloneDelivery(*d)
	})
	return nil
}

func (r deliveryStore) Get(_ context.Context, id primitive.ObjectID) (*models.Delivery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, fault.ErrDeliveryNotFound
	}
	out := cloneDelivery(d)
	return &out, nil
}

func (r deliveryStore) GetByPIIHash(_ context.Context, piiHash string) (*models.Delivery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *models.Delivery
	for _, d := range r.s.deliveries {
		if d.PIIHash != "" && d.PIIHash == piiHash {
			if found == nil || d.CreatedAt.After(found.CreatedAt) {
				c := cloneDelivery(d)
				found = &c
			}
		}
	}
	if found == nil {
		return nil, fault.ErrDeliveryNotFound
	}
	return found, nil
}

func (r deliveryStore) PatchStatus(ctx context.Context, id primitive.ObjectID, p models.StatusPatch) (*models.Delivery, error) {
	var (
		out models.Delivery
		err error
	)
	r.s.write(ctx, func() {
		d, ok := r.s.deliveries[id]
		if !ok {
			err = fault.ErrDeliveryNotFound
			return
		}
		if d.Status != p.ExpectedStatus || d.Version != p.ExpectedVersion {
			err = fault.ErrStatusConflict
			return
		}
		d.Status = p.Status
		d.UpdatedAt = p.UpdatedAt
		d.Version++
		if p.UnitID != nil {
			unitID := *p.UnitID
			d.UnitID = &unitID
		}
		if p.ActualDelivery != nil {
			at := *p.ActualDelivery
			d.ActualDelivery = &at
		}
		if p.TxHash != "" {
			d.BlockchainTxHash = p.TxHash
		}
		r.s.deliveries[id] = d
		out = cloneDelivery(d)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r deliveryStore) AddPhoto(ctx context.Context, id primitive.ObjectID, url string, at time.Time) (*models.Delivery, error) {
	var (
		out models.Delivery
		err error
	)
	r.s.write(ctx, func() {
		d, ok := r.s.deliveries[id]
		if !ok {
			err = fault.ErrDeliveryNotFound
			return
		}
		d.Photos = append(append([]string(nil), d.Photos...), url)
		d.UpdatedAt = at
		r.s.deliveries[id] = d
		out = cloneDelivery(d)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r deliveryStore) SetBlockchainTxHash(ctx context.Context, id primitive.ObjectID, txHash string, at time.Time) error {
	var err error
	r.s.write(ctx, func() {
		d, ok := r.s.deliveries[id]
		if !ok {
			err = fault.ErrDeliveryNotFound
			return
		}
		d.BlockchainTxHash = txHash
		d.UpdatedAt = at
		r.s.deliveries[id] = d
	})
	return err
}

func (r deliveryStore) matching(f models.DeliveryFilter) []models.Delivery {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows := []models.Delivery{}
	for _, d := range r.s.deliveries {
		if matches(d, f) {
			rows = append(rows, cloneDelivery(d))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID.Hex() > rows[j].ID.Hex()
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows
}

func (r deliveryStore) Search(_ context.Context, f models.DeliveryFilter, cursor string, limit int) (models.Page[models.Delivery], error) {
	offset, err := repository.DecodeCursor(cursor)
	if err != nil {
		return models.Page[models.Delivery]{}, err
	}
	limit = repository.NormalizeLimit(limit)
	rows := r.matching(f)
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + limit + 1
	if end > len(rows) {
		end = len(rows)
	}
	items, next, done := repository.PageOf(rows[offset:end], offset, limit)
	return models.Page[models.Delivery]{Items: items, NextCursor: next, IsDone: done}, nil
}

func (r deliveryStore) Report(_ context.Context, f models.DeliveryFilter) (*models.DeliveryReport, error) {
	report := &models.DeliveryReport{
		PropertyID: f.PropertyID,
		ByStatus:   map[models.DeliveryStatus]int64{},
		ByType:     map[models.DeliveryType]int64{},
		From:       f.From,
		To:         f.To,
	}
	for _, d := range r.matching(f) {
		report.Total++
		report.ByStatus[d.Status]++
		report.ByType[d.DeliveryType]++
	}
	return report, nil
}

func matches(d models.Delivery, f models.DeliveryFilter) bool {
	if !f.PropertyID.IsZero() && d.PropertyID != f.PropertyID {
		return false
	}
	if f.UnitID != nil {
		if d.UnitID == nil {
			if !f.CommonArea {
				return false
			}
		} else if *d.UnitID != *f.UnitID {
			return false
		}
	}
	if f.DeliveryType != "" && d.DeliveryType != f.DeliveryType {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.From != nil && d.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && d.CreatedAt.After(*f.To) {
		return false
	}
	if f.TrackingNumber != "" && d.TrackingNumber != f.TrackingNumber {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		haystack := strings.ToLower(strings.Join([]string{d.RecipientName, d.SenderName, d.SenderCompany, d.Description, d.TrackingNumber}, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func cloneDelivery(d models.Delivery) models.Delivery {
	if d.Photos != nil {
		d.Photos = append([]string(nil), d.Photos...)
	}
	return d
}

// --- delivery logs ---

type auditLog struct{ s *Store }

func (r auditLog) Append(ctx context.Context, entry *models.DeliveryLog) error {
	r.s.write(ctx, func() {
		if entry.ID.IsZero() {
			entry.ID = primitive.NewObjectID()
		}
		r.s.logs = append(r.s.logs, *entry)
	})
	return nil
}

func (r auditLog) List(_ context.Context, deliveryID primitive.ObjectID, cursor string, limit int) (models.Page[models.DeliveryLog], error) {
	offset, err := repository.DecodeCursor(cursor)
	if err != nil {
		return models.Page[models.DeliveryLog]{}, err
	}
	limit = repository.NormalizeLimit(limit)

	r.s.mu.RLock()
	rows := []models.DeliveryLog{}
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		if r.s.logs[i].DeliveryID == deliveryID {
			rows = append(rows, r.s.logs[i])
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.After(rows[j].Timestamp) })
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + limit + 1
	if end > len(rows) {
		end = len(rows)
	}
	items, next, done := repository.PageOf(rows[offset:end], offset, limit)
	return models.Page[models.DeliveryLog]{Items: items, NextCursor: next, IsDone: done}, nil
}

// --- properties and units ---

type directory struct{ s *Store }

func (r directory) GetProperty(_ context.Context, id primitive.ObjectID) (*models.Property, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.properties[id]
	if !ok {
		return nil, fault.ErrPropertyNotFound
	}
	return &p, nil
}

func (r directory) GetUnit(_ context.Context, id primitive.ObjectID) (*models.Unit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.units[id]
	if !ok {
		return nil, fault.ErrUnitNotFound
	}
	return &u, nil
}

func (r directory) CreateProperty(ctx context.Context, p *models.Property) error {
	r.s.write(ctx, func() {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		r.s.properties[p.ID] = *p
	})
	return nil
}

func (r directory) CreateUnit(ctx context.Context, u *models.Unit) error {
	r.s.write(ctx, func() {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		r.s.units[u.ID] = *u
	})
	return nil
}

// --- issues ---

type issueStore struct{ s *Store }

func (r issueStore) Create(ctx context.Context, issue *models.DeliveryIssue) error {
	r.s.write(ctx, func() {
		if issue.ID.IsZero() {
			issue.ID = primitive.NewObjectID()
		}
		r.s.issues = append(r.s.issues, *issue)
	})
	return nil
}

func (r issueStore) ListByDelivery(_ context.Context, deliveryID primitive.ObjectID) ([]models.DeliveryIssue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.DeliveryIssue{}
	for _, issue := range r.s.issues {
		if issue.DeliveryID == deliveryID {
			out = append(out, issue)
		}
	}
	return out, nil
}

// --- users ---

type userStore struct{ s *Store }

func (r userStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fault.ErrUserNotFound
	}
	return &u, nil
}

func (r userStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fault.ErrUserNotFound
}

func (r userStore) Create(ctx context.Context, u *models.User) error {
	r.s.write(ctx, func() {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		r.s.users[u.ID] = *u
	})
	return nil
}

func (r userStore) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.users)), nil
}

// --- outbox ---

type outboxStore struct{ s *Store }

func (r outboxStore) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	r.s.write(ctx, func() {
		r.s.outbox[entry.ID] = *entry
	})
	return nil
}

func (r outboxStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	claimed := []models.OutboxEntry{}
	r.s.write(ctx, func() {
		// lowest pending ledger sequence per delivery, due or not
		heads := map[primitive.ObjectID]int64{}
		for _, e := range r.s.outbox {
			if e.Kind != models.OutboxLedger || e.Status != models.OutboxPending {
				continue
			}
			if seq, ok := heads[e.DeliveryID]; !ok || e.Sequence < seq {
				heads[e.DeliveryID] = e.Sequence
			}
		}

		due := []models.OutboxEntry{}
		for _, e := range r.s.outbox {
			if e.Status != models.OutboxPending || e.NextAttemptAt.After(now) {
				continue
			}
			if e.Kind == models.OutboxLedger && e.Sequence != heads[e.DeliveryID] {
				continue
			}
			due = append(due, e)
		}
		sort.Slice(due, func(i, j int) bool {
			if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
				return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
			}
			return due[i].ID < due[j].ID
		})
		for _, e := range due {
			if len(claimed) == limit {
				break
			}
			e.NextAttemptAt = now.Add(lease)
			r.s.outbox[e.ID] = e
			claimed = append(claimed, e)
		}
	})
	return claimed, nil
}

func (r outboxStore) update(ctx context.Context, id string, fn func(e *models.OutboxEntry)) error {
	var err error
	r.s.write(ctx, func() {
		e, ok := r.s.outbox[id]
		if !ok {
			err = fault.NotFoundError("outbox entry not found")
			return
		}
		fn(&e)
		r.s.outbox[id] = e
	})
	return err
}

func (r outboxStore) MarkDone(ctx context.Context, id string) error {
	return r.update(ctx, id, func(e *models.OutboxEntry) {
		e.Status = models.OutboxDone
		e.Attempts++
		e.LastError = ""
	})
}

func (r outboxStore) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return r.update(ctx, id, func(e *models.OutboxEntry) {
		e.Attempts = attempts
		e.NextAttemptAt = next
		e.LastError = lastErr
	})
}

func (r outboxStore) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.update(ctx, id, func(e *models.OutboxEntry) {
		e.Status = models.OutboxDead
		e.Attempts = attempts
		e.LastError = lastErr
	})
}

// Entries returns a copy of every outbox entry, for inspection.
func (s *Store) Entries() []models.OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OutboxEntry, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
