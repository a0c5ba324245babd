package tenant

import (
	"context"
	"sync"
)

// MemoryStore is an in-process [Store]. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]map[string]Assignment
	settings    map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store seeded with assignments.
func NewMemoryStore(assignments ...Assignment) *MemoryStore {
	s := &MemoryStore{
		assignments: make(map[string]map[string]Assignment),
		settings:    make(map[string]map[string]string),
	}
	for _, a := range assignments {
		_ = s.UpsertAssignment(context.Background(), a)
	}
	return s
}

func (s *MemoryStore) GetAssignment(_ context.Context, userID, tenantID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[userID][tenantID]
	if !ok {
		return nil, assignmentNotFound(userID, tenantID)
	}
	a = a.clone()
	return &a, nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Assignment, 0, len(s.assignments[userID]))
	for _, a := range s.assignments[userID] {
		list = append(list, a.clone())
	}
	sortByTenant(list)
	return list, nil
}

func (s *MemoryStore) UpsertAssignment(_ context.Context, a Assignment) error {
	if err := a.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byTenant, ok := s.assignments[a.UserID]
	if !ok {
		byTenant = make(map[string]Assignment)
		s.assignments[a.UserID] = byTenant
	}
	byTenant[a.TenantID] = a.clone()
	return nil
}

func (s *MemoryStore) DeleteAssignment(_ context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments[userID], tenantID)
	return nil
}

func (s *MemoryStore) GetSetting(_ context.Context, userID, key string) (*Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[userID][key]
	if !ok {
		return nil, settingNotFound(userID, key)
	}
	return &Setting{UserID: userID, Key: key, Value: v}, nil
}

func (s *MemoryStore) UpsertSetting(_ context.Context, st Setting) error {
	if err := st.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.settings[st.UserID]
	if !ok {
		byKey = make(map[string]string)
		s.settings[st.UserID] = byKey
	}
	byKey[st.Key] = st.Value
	return nil
}

func (s *MemoryStore) DeleteSetting(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings[userID], key)
	return nil
}

// SettingCount returns how many settings are stored for userID.
func (s *MemoryStore) SettingCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.settings[userID])
}
