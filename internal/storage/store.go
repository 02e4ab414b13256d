package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/example/scrap-tracking/internal/models"
)

var ErrNotFound = errors.New("assignment not found")

// AssignmentStore defines persistence operations for assignments. It is
// the authoritative source the lifecycle machine writes through.
type AssignmentStore interface {
	Save(a *models.Assignment) error
	Update(a *models.Assignment) error
	Get(id string) (*models.Assignment, error)
	ListActiveByScrapper(scrapperID string) ([]models.Assignment, error)
	CountCompletedByScrapper(scrapperID string) (int, error)
	Archive(id string) error
}

type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]models.Assignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assignments: make(map[string]models.Assignment)}
}

func (m *MemoryStore) Save(a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = *a
	return nil
}

func (m *MemoryStore) Update(a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[a.ID]; !ok {
		return ErrNotFound
	}
	m.assignments[a.ID] = *a
	return nil
}

func (m *MemoryStore) Get(id string) (*models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := a
	return &out, nil
}

func (m *MemoryStore) ListActiveByScrapper(scrapperID string) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Assignment
	for _, a := range m.assignments {
		if a.ScrapperID == scrapperID && a.Status != models.StatusCompleted {
			out = append(out, a)
		}
	}
	return out, nil
}

// Archive stamps a completed assignment so it no longer counts as live
// work. The record stays readable through Get.
func (m *MemoryStore) Archive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.ArchivedAt = &now
	m.assignments[id] = a
	return nil
}

func (m *MemoryStore) CountCompletedByScrapper(scrapperID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.assignments {
		if a.ScrapperID == scrapperID && a.Status == models.StatusCompleted {
			n++
		}
	}
	return n, nil
}
