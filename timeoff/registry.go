package timeoff

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// LEAVE TYPE REGISTRY - Read-mostly cached catalog
// =============================================================================

// Registry is the catalog of leave types. Reads are served from an
// in-process cache loaded on first use; writes go to the store first and
// then refresh the cache.
type Registry struct {
	store  TxStore
	clock  generic.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	cache  map[LeaveTypeID]LeaveType
	loaded bool
}

var _ LeaveTypeLookup = (*Registry)(nil)

func NewRegistry(store TxStore, clock generic.Clock, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		clock:  clock,
		logger: logger.Named("registry"),
		cache:  make(map[LeaveTypeID]LeaveType),
	}
}

func (r *Registry) load(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	types, err := r.store.ListLeaveTypes(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[LeaveTypeID]LeaveType, len(types))
	for _, lt := range types {
		r.cache[lt.ID] = lt
	}
	r.loaded = true
	return nil
}

// Invalidate drops the cache; the next read reloads from the store.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
}

// GetLeaveType returns the type or a NotFoundError.
func (r *Registry) GetLeaveType(ctx context.Context, id LeaveTypeID) (LeaveType, error) {
	if err := r.load(ctx); err != nil {
		return LeaveType{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	lt, ok := r.cache[id]
	if !ok {
		return LeaveType{}, notFound("leave type", string(id))
	}
	return lt, nil
}

// List returns all types ordered by name.
func (r *Registry) List(ctx context.Context) ([]LeaveType, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]LeaveType, 0, len(r.cache))
	for _, lt := range r.cache {
		out = append(out, lt)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Create validates and stores a new type. An empty ID gets a generated one.
func (r *Registry) Create(ctx context.Context, lt LeaveType, actorID string) (LeaveType, error) {
	if err := lt.Validate(); err != nil {
		return LeaveType{}, err
	}
	if lt.ID == "" {
		lt.ID = LeaveTypeID(uuid.NewString())
	}
	if _, err := r.GetLeaveType(ctx, lt.ID); err == nil {
		return LeaveType{}, newValidationError("id", "already exists")
	} else if !errors.Is(err, generic.ErrNotFound) {
		return LeaveType{}, err
	}
	if err := r.checkNameFree(ctx, lt); err != nil {
		return LeaveType{}, err
	}

	now := r.clock.Now()
	lt.CreatedAt, lt.UpdatedAt = now, now
	if err := r.save(ctx, lt, actorID, "created"); err != nil {
		return LeaveType{}, err
	}
	return lt, nil
}

// Update replaces the policy flags of an existing type.
func (r *Registry) Update(ctx context.Context, lt LeaveType, actorID string) (LeaveType, error) {
	existing, err := r.GetLeaveType(ctx, lt.ID)
	if err != nil {
		return LeaveType{}, err
	}
	if err := lt.Validate(); err != nil {
		return LeaveType{}, err
	}
	if err := r.checkNameFree(ctx, lt); err != nil {
		return LeaveType{}, err
	}

	lt.CreatedAt = existing.CreatedAt
	lt.UpdatedAt = r.clock.Now()
	if err := r.save(ctx, lt, actorID, "updated"); err != nil {
		return LeaveType{}, err
	}
	return lt, nil
}

// Delete removes a type that no leave or balance references. The check
// and the delete share one transaction; balances are only ever created
// inside a transaction that re-reads the type, so none can appear between
// them.
func (r *Registry) Delete(ctx context.Context, id LeaveTypeID, actorID string) error {
	err := r.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetLeaveType(ctx, id); err != nil {
			return err
		}
		inUse, err := s.LeaveTypeInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return &StateTransitionError{Entity: "leave type", ID: string(id), From: "referenced", Action: "delete"}
		}
		if err := s.DeleteLeaveType(ctx, id); err != nil {
			return err
		}
		return s.AppendAudit(ctx, r.auditEntry(id, actorID, "deleted"))
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()

	r.logger.Info("leave type deleted", zap.String("leave_type_id", string(id)))
	return nil
}

func (r *Registry) checkNameFree(ctx context.Context, lt LeaveType) error {
	types, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, other := range types {
		if other.ID != lt.ID && strings.EqualFold(strings.TrimSpace(other.Name), strings.TrimSpace(lt.Name)) {
			return newValidationError("name", "already used by leave type "+string(other.ID))
		}
	}
	return nil
}

func (r *Registry) save(ctx context.Context, lt LeaveType, actorID, change string) error {
	if err := r.store.SaveLeaveType(ctx, lt); err != nil {
		return err
	}
	r.mu.Lock()
	r.cache[lt.ID] = lt
	r.mu.Unlock()

	r.audit(ctx, lt.ID, actorID, change)
	r.logger.Info("leave type "+change,
		zap.String("leave_type_id", string(lt.ID)),
		zap.String("name", lt.Name))
	return nil
}

// audit failures are logged; the catalog change already happened.
func (r *Registry) audit(ctx context.Context, id LeaveTypeID, actorID, change string) {
	if err := r.store.AppendAudit(ctx, r.auditEntry(id, actorID, change)); err != nil {
		r.logger.Warn("audit append failed", zap.String("leave_type_id", string(id)), zap.Error(err))
	}
}

func (r *Registry) auditEntry(id LeaveTypeID, actorID, change string) generic.AuditEntry {
	return generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: r.clock.Now(),
		ActorID:   actorID,
		Action:    generic.AuditLeaveTypeChanged,
		Subject:   string(id),
		Payload:   map[string]any{"change": change},
	}
}
