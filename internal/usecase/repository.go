// Package usecase contains application business logic.
package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// Repository is the sole writer of the persisted schedule list.
// Every mutation re-reads the full list, applies the change and writes the
// full replacement; concurrent writers in other processes are last-write-wins.
type Repository struct {
	store     domain.KVStore
	requester domain.ResyncRequester
	now       func() time.Time
	logger    *zap.Logger
}

// NewRepository creates a schedule repository over store.
// requester may be nil, in which case mutations don't request a resync.
func NewRepository(store domain.KVStore, requester domain.ResyncRequester, logger *zap.Logger) *Repository {
	return &Repository{
		store:     store,
		requester: requester,
		now:       time.Now,
		logger:    logger,
	}
}

// List returns all well-formed stored schedules in stored order.
func (r *Repository) List(ctx context.Context) ([]domain.Schedule, error) {
	values, err := r.store.Get(ctx, domain.KeySchedules)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return r.decode(values[domain.KeySchedules]), nil
}

// Get returns one schedule by id.
func (r *Repository) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	schedules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(schedules, id); i >= 0 {
		s := schedules[i]
		return &s, nil
	}
	return nil, &domain.NotFoundError{ID: id}
}

// Add validates the draft, assigns a fresh id and persists it.
func (r *Repository) Add(ctx context.Context, draft domain.ScheduleDraft) (*domain.Schedule, error) {
	schedules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	clean, err := policy.ValidateDraft(draft, schedules, 0)
	if err != nil {
		return nil, err
	}

	created := clean.WithID(r.nextID(schedules))
	if err := r.save(ctx, append(schedules, created)); err != nil {
		return nil, err
	}

	r.logger.Info("schedule added",
		zap.Int64("id", created.ID),
		zap.String("website", created.Website))
	r.requestResync(ctx)
	return &created, nil
}

// Update replaces the editable fields of schedule id.
func (r *Repository) Update(ctx context.Context, id int64, draft domain.ScheduleDraft) (*domain.Schedule, error) {
	schedules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(schedules, id)
	if i < 0 {
		return nil, &domain.NotFoundError{ID: id}
	}

	clean, err := policy.ValidateDraft(draft, schedules, id)
	if err != nil {
		return nil, err
	}

	updated := clean.WithID(id)
	next := make([]domain.Schedule, len(schedules))
	copy(next, schedules)
	next[i] = updated

	if err := r.save(ctx, next); err != nil {
		return nil, err
	}

	r.logger.Info("schedule updated",
		zap.Int64("id", id),
		zap.String("website", updated.Website))
	r.requestResync(ctx)
	return &updated, nil
}

// Remove deletes schedule id.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	schedules, err := r.List(ctx)
	if err != nil {
		return err
	}

	i := indexOf(schedules, id)
	if i < 0 {
		return &domain.NotFoundError{ID: id}
	}

	next := make([]domain.Schedule, 0, len(schedules)-1)
	next = append(next, schedules[:i]...)
	next = append(next, schedules[i+1:]...)

	if err := r.save(ctx, next); err != nil {
		return err
	}

	r.logger.Info("schedule removed", zap.Int64("id", id))
	r.requestResync(ctx)
	return nil
}

// Prune deletes every schedule matching drop and returns the removed ones.
// It writes only when something matched and never requests a resync: it is
// called by the engine itself.
func (r *Repository) Prune(ctx context.Context, drop func(domain.Schedule) bool) ([]domain.Schedule, error) {
	schedules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return r.pruneFrom(ctx, schedules, drop)
}

func (r *Repository) pruneFrom(ctx context.Context, schedules []domain.Schedule, drop func(domain.Schedule) bool) ([]domain.Schedule, error) {
	var removed []domain.Schedule
	kept := make([]domain.Schedule, 0, len(schedules))
	for _, s := range schedules {
		if drop(s) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}

	if len(removed) == 0 {
		return nil, nil
	}
	if err := r.save(ctx, kept); err != nil {
		return nil, err
	}
	return removed, nil
}

// LegacyWebsites returns the superseded blockedWebsites list, if present.
func (r *Repository) LegacyWebsites(ctx context.Context) ([]string, error) {
	values, err := r.store.Get(ctx, domain.KeyBlockedWebsites)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	raw, ok := values[domain.KeyBlockedWebsites]
	if !ok {
		return nil, nil
	}
	var websites []string
	if err := json.Unmarshal(raw, &websites); err != nil {
		r.logger.Warn("ignoring malformed legacy website list", zap.Error(err))
		return nil, nil
	}
	return websites, nil
}

// OnChange calls fn with the new list whenever the schedules key changes,
// including writes made by other processes. The returned func unsubscribes.
func (r *Repository) OnChange(fn func([]domain.Schedule)) (cancel func()) {
	return r.store.Subscribe(func(ev domain.ChangeEvent) {
		change, ok := ev.Changes[domain.KeySchedules]
		if !ok {
			return
		}
		fn(r.decode(change.NewValue))
	})
}

func (r *Repository) save(ctx context.Context, schedules []domain.Schedule) error {
	if schedules == nil {
		schedules = []domain.Schedule{}
	}
	data, err := json.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("encode schedules: %w", err)
	}
	if err := r.store.Set(ctx, map[string]json.RawMessage{domain.KeySchedules: data}); err != nil {
		return &domain.PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// decode parses the stored list entry by entry. Entries that are not
// well-formed schedules are dropped and logged.
func (r *Repository) decode(raw json.RawMessage) []domain.Schedule {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Schedule{}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.logger.Warn("stored schedules are not a list, ignoring", zap.Error(err))
		return []domain.Schedule{}
	}

	schedules := make([]domain.Schedule, 0, len(entries))
	for i, entry := range entries {
		s, err := decodeSchedule(entry)
		if err != nil {
			r.logger.Warn("dropping malformed stored schedule",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		schedules = append(schedules, s)
	}
	return schedules
}

func decodeSchedule(entry json.RawMessage) (domain.Schedule, error) {
	var s domain.Schedule
	dec := json.NewDecoder(bytes.NewReader(entry))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return s, err
	}
	if err := policy.CheckStored(s); err != nil {
		return s, err
	}
	if s.Repeat == "" {
		s.Repeat = domain.RepeatNone
	}
	if s.Version == 0 {
		s.Version = domain.ScheduleVersion
	}
	return s, nil
}

// nextID returns a timestamp id that is larger than every existing id.
func (r *Repository) nextID(schedules []domain.Schedule) int64 {
	id := r.now().UnixMilli()
	for _, s := range schedules {
		if s.ID >= id {
			id = s.ID + 1
		}
	}
	return id
}

func (r *Repository) requestResync(ctx context.Context) {
	if r.requester == nil {
		return
	}
	if err := r.requester.RequestResync(ctx); err != nil {
		r.logger.Warn("resync request failed, rules update on next tick", zap.Error(err))
	}
}

func indexOf(schedules []domain.Schedule, id int64) int {
	for i, s := range schedules {
		if s.ID == id {
			return i
		}
	}
	return -1
}
