// Package memory is an in-process implementation of every repository. It backs
// STORE=memory and the service tests. Hooks and events are cloned on the way
// in and out, so callers never share memory with the store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
)

type domainKey struct {
	schema string
	id     string
}

type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	schemas     map[string]models.DomainSchema
	schemaOrder []string

	domains     map[domainKey]models.Domain
	domainOrder []domainKey

	hooks     map[uuid.UUID]models.Hook
	hookOrder []uuid.UUID

	events     map[uuid.UUID]models.DomainEvent
	eventOrder []uuid.UUID
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:   clock,
		schemas: make(map[string]models.DomainSchema),
		domains: make(map[domainKey]models.Domain),
		hooks:   make(map[uuid.UUID]models.Hook),
		events:  make(map[uuid.UUID]models.DomainEvent),
	}
}

// Schemas

func (s *Store) UpsertSchema(_ context.Context, schema models.DomainSchema) (*models.DomainSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schemas[schema.Name]; !exists {
		s.schemaOrder = append(s.schemaOrder, schema.Name)
	}
	s.schemas[schema.Name] = schema
	return &schema, nil
}

func (s *Store) GetSchema(_ context.Context, name string) (*models.DomainSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[name]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	return &schema, nil
}

func (s *Store) FindSchemas(_ context.Context, filter models.SchemaFilter, page models.Page) ([]models.DomainSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DomainSchema
	for _, name := range s.schemaOrder {
		if filter.Name != "" && filter.Name != name {
			continue
		}
		out = append(out, s.schemas[name])
	}
	return paginate(out, page), nil
}

func (s *Store) DeleteSchema(_ context.Context, name string) (*models.DomainSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, ok := s.schemas[name]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	delete(s.schemas, name)
	s.schemaOrder = slices.DeleteFunc(s.schemaOrder, func(n string) bool { return n == name })
	return &schema, nil
}

// Domains

func (s *Store) CreateDomain(_ context.Context, domain models.Domain) (*models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domainKey{schema: domain.SchemaName, id: domain.DomainID}
	if _, exists := s.domains[key]; exists {
		return nil, apperrors.Integrity("domain already exists", nil)
	}
	s.domains[key] = domain
	s.domainOrder = append(s.domainOrder, key)
	return &domain, nil
}

func (s *Store) GetDomain(_ context.Context, schemaName, domainID string) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	domain, ok := s.domains[domainKey{schema: schemaName, id: domainID}]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	return &domain, nil
}

func (s *Store) FindDomains(_ context.Context, filter models.DomainFilter, page models.Page) ([]models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Domain
	for _, key := range s.domainOrder {
		if filter.SchemaName != "" && filter.SchemaName != key.schema {
			continue
		}
		if filter.DomainID != "" && filter.DomainID != key.id {
			continue
		}
		out = append(out, s.domains[key])
	}
	return paginate(out, page), nil
}

func (s *Store) DeleteDomain(_ context.Context, schemaName, domainID string) (*models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domainKey{schema: schemaName, id: domainID}
	domain, ok := s.domains[key]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	delete(s.domains, key)
	s.domainOrder = slices.DeleteFunc(s.domainOrder, func(k domainKey) bool { return k == key })
	return &domain, nil
}

// Hooks

func (s *Store) CreateHook(_ context.Context, hook models.Hook) (*models.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.hooks[hook.ID]; exists {
		return nil, apperrors.Integrity("hook already exists", nil)
	}
	s.hooks[hook.ID] = hook.Clone()
	s.hookOrder = append(s.hookOrder, hook.ID)
	return &hook, nil
}

func (s *Store) GetHook(_ context.Context, id uuid.UUID) (*models.Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hook, ok := s.hooks[id]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	hook = hook.Clone()
	return &hook, nil
}

func (s *Store) FindHooks(_ context.Context, filter models.HookFilter, page models.Page) ([]models.Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Hook
	for _, id := range s.hookOrder {
		hook := s.hooks[id]
		if filter.Type != "" && filter.Type != hook.Type {
			continue
		}
		if filter.SchemaName != "" && filter.SchemaName != hook.SchemaName {
			continue
		}
		if filter.EventName != "" && filter.EventName != hook.EventName {
			continue
		}
		out = append(out, hook.Clone())
	}
	return paginate(out, page), nil
}

// FindEligibleHooks returns hooks for the schema and event whose tags are all in group.
func (s *Store) FindEligibleHooks(_ context.Context, schemaName, eventName string, group []string) ([]models.Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Hook
	for _, id := range s.hookOrder {
		hook := s.hooks[id]
		if hook.SchemaName != schemaName || hook.EventName != eventName {
			continue
		}
		if !subset(hook.Tags, group) {
			continue
		}
		out = append(out, hook.Clone())
	}
	return out, nil
}

func (s *Store) DeleteHook(_ context.Context, id uuid.UUID) (*models.Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hook, ok := s.hooks[id]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	delete(s.hooks, id)
	s.hookOrder = slices.DeleteFunc(s.hookOrder, func(h uuid.UUID) bool { return h == id })
	return &hook, nil
}

// Events

// CreateEvents stores the batch all-or-nothing.
func (s *Store) CreateEvents(_ context.Context, events []models.DomainEvent) ([]models.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, exists := s.events[e.ID]; exists {
			return nil, apperrors.Integrity("event already exists", nil)
		}
	}
	now := s.clock.Now().UTC()
	out := make([]models.DomainEvent, 0, len(events))
	for _, e := range events {
		e.CreatedAt, e.UpdatedAt = now, now
		s.events[e.ID] = e.Clone()
		s.eventOrder = append(s.eventOrder, e.ID)
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return nil, apperrors.ErrNoRecord
	}
	event = event.Clone()
	return &event, nil
}

func (s *Store) FindEvents(_ context.Context, filter models.EventFilter, page models.Page) ([]models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DomainEvent
	for _, id := range s.eventOrder {
		e := s.events[id]
		if filter.SchemaName != "" && filter.SchemaName != e.SchemaName {
			continue
		}
		if filter.ID != nil && *filter.ID != e.ID {
			continue
		}
		if filter.EventName != "" && filter.EventName != e.EventName {
			continue
		}
		if filter.QueueName != "" && filter.QueueName != e.Hook.Queue() {
			continue
		}
		if filter.Status != "" && filter.Status != e.Status {
			continue
		}
		out = append(out, e.Clone())
	}
	return paginate(out, page), nil
}

// FindPendingEvents returns created events due at or before now, oldest eta first.
func (s *Store) FindPendingEvents(_ context.Context, now time.Time, limit int) ([]models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DomainEvent
	for _, id := range s.eventOrder {
		e := s.events[id]
		if e.Status == models.EventStatusCreated && !e.Eta.After(now) {
			out = append(out, e.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Eta.Before(out[j].Eta) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionStatus moves the event to status `to` only if its current status
// is one of from. The check and the write happen under one lock.
func (s *Store) TransitionStatus(_ context.Context, id uuid.UUID, from []models.EventStatus, to models.EventStatus, message *string) (*models.DomainEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok || !slices.Contains(from, event.Status) {
		return nil, false, nil
	}
	event.Status = to
	if message != nil {
		msg := *message
		event.FailureMessage = &msg
	}
	event.UpdatedAt = s.clock.Now().UTC()
	s.events[id] = event
	event = event.Clone()
	return &event, true, nil
}

func subset(tags, group []string) bool {
	for _, t := range tags {
		if !slices.Contains(group, t) {
			return false
		}
	}
	return true
}

func paginate[T any](items []T, page models.Page) []T {
	offset, limit := page.Offset(), page.Limit()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
