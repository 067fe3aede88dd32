// Package memory provides in-memory stores (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store implements timeoff.ProfileStore, timeoff.RequestStore,
// timeoff.HolidayStore and timeoff.Directory. One mutex guards everything,
// which makes TryTransition and UpdateProfile trivially atomic.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]*timeoff.Profile
	requests  map[string]*timeoff.Request
	order     []string // request IDs in insertion order
	holidays  map[string]generic.Holiday
	calendar  *generic.HolidaySet
	directory map[string]timeoff.DirectoryEntry
}

var (
	_ timeoff.ProfileStore = (*Store)(nil)
	_ timeoff.RequestStore = (*Store)(nil)
	_ timeoff.HolidayStore = (*Store)(nil)
	_ timeoff.Directory    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		profiles:  make(map[string]*timeoff.Profile),
		requests:  make(map[string]*timeoff.Request),
		holidays:  make(map[string]generic.Holiday),
		calendar:  generic.NewHolidaySet(),
		directory: make(map[string]timeoff.DirectoryEntry),
	}
}

// =============================================================================
// PROFILES
// =============================================================================

func (m *Store) GetProfile(_ context.Context, employeeID string) (*timeoff.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[employeeID]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "profile", ID: employeeID}
	}
	return p.Clone(), nil
}

func (m *Store) CreateProfile(_ context.Context, p *timeoff.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[p.EmployeeID]; exists {
		return generic.NewValidationError("employee_id", "profile %s already exists", p.EmployeeID)
	}
	stored := p.Clone()
	stored.Version = 1
	p.Version = 1
	m.profiles[p.EmployeeID] = stored
	return nil
}

func (m *Store) UpdateProfile(_ context.Context, employeeID string, fn func(*timeoff.Profile) (*timeoff.Profile, error)) (*timeoff.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[employeeID]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "profile", ID: employeeID}
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	next = next.Clone()
	next.EmployeeID = employeeID
	next.Version = cur.Version + 1
	m.profiles[employeeID] = next
	return next.Clone(), nil
}

func (m *Store) ListProfiles(_ context.Context) ([]*timeoff.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*timeoff.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Store) CreateRequest(_ context.Context, r *timeoff.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[r.ID]; exists {
		return generic.NewValidationError("id", "request %s already exists", r.ID)
	}
	m.requests[r.ID] = r.Clone()
	m.order = append(m.order, r.ID)
	return nil
}

func (m *Store) GetRequest(_ context.Context, id string) (*timeoff.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "request", ID: id}
	}
	return r.Clone(), nil
}

func (m *Store) ListRequests(_ context.Context, f timeoff.RequestFilter) ([]*timeoff.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*timeoff.Request
	for _, id := range m.order {
		if r := m.requests[id]; f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// TryTransition checks the guard and applies mutate under the write lock.
func (m *Store) TryTransition(_ context.Context, id string, g timeoff.Guard, mutate func(*timeoff.Request) error) (*timeoff.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "request", ID: id}
	}
	if err := g.Check(cur); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	m.requests[id] = next
	return next.Clone(), nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Store) IsHoliday(date generic.TimePoint) bool {
	return m.calendar.IsHoliday(date)
}

func (m *Store) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Store) AddHoliday(_ context.Context, h generic.Holiday) error {
	if h.ID == "" || h.Date.IsZero() {
		return generic.NewValidationError("holiday", "id and date are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.holidays[h.ID]; exists {
		return generic.NewValidationError("id", "holiday %s already exists", h.ID)
	}
	m.holidays[h.ID] = h
	m.calendar.Add(h)
	return nil
}

func (m *Store) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.holidays[id]; !exists {
		return &generic.NotFoundError{Kind: "holiday", ID: id}
	}
	delete(m.holidays, id)
	all := make([]generic.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		all = append(all, h)
	}
	m.calendar.Reset(all...)
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

// SaveEmployee adds or replaces a directory entry.
func (m *Store) SaveEmployee(_ context.Context, e timeoff.DirectoryEntry) error {
	if e.EmployeeID == "" || e.Name == "" {
		return generic.NewValidationError("employee", "id and name are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directory[e.EmployeeID] = e
	return nil
}

func (m *Store) Lookup(_ context.Context, employeeID string) (timeoff.DirectoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.directory[employeeID]
	if !ok {
		return timeoff.DirectoryEntry{}, &generic.NotFoundError{Kind: "employee", ID: employeeID}
	}
	return e, nil
}

// Reset clears everything (for testing/demo).
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = make(map[string]*timeoff.Profile)
	m.requests = make(map[string]*timeoff.Request)
	m.order = nil
	m.holidays = make(map[string]generic.Holiday)
	m.calendar.Reset()
	m.directory = make(map[string]timeoff.DirectoryEntry)
	return nil
}
