package items

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemStore is an in-process Store used by the engine tests and by callers
// that do not need persistence.
type MemStore struct {
	mu         sync.Mutex
	nextID     int64
	items      map[int64]*WorkItem
	batchItems int
	batchOpen  bool
	batchStart time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[int64]*WorkItem), nextID: 1}
}

// Add ingests a new item, assigning it an identity and pending status.
func (s *MemStore) Add(item WorkItem) *WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID
	s.nextID++
	if item.Status == "" {
		item.Status = StatusPending
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	stored := item
	s.items[stored.ID] = &stored
	snapshot := stored
	return &snapshot
}

// GetByID returns a copy of the stored item, or nil when absent.
func (s *MemStore) GetByID(_ context.Context, id int64) (*WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	snapshot := *item
	return &snapshot, nil
}

// Update persists changes to an existing item.
func (s *MemStore) Update(_ context.Context, item *WorkItem) error {
	if item == nil {
		return errors.New("item is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return errors.New("item not found")
	}
	item.UpdatedAt = time.Now().UTC()
	stored := *item
	s.items[item.ID] = &stored
	return nil
}

// StartBatch opens a batch or extends the one in flight.
func (s *MemStore) StartBatch(_ context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchOpen {
		s.batchItems += count
		return nil
	}
	s.batchOpen = true
	s.batchItems = count
	s.batchStart = time.Now()
	return nil
}

// EndBatch closes the running batch.
func (s *MemStore) EndBatch(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchOpen = false
	s.batchItems = 0
	return nil
}

// BatchOpen reports whether a batch is currently tracked.
func (s *MemStore) BatchOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchOpen
}

// BatchItems reports the running batch's item count.
func (s *MemStore) BatchItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchItems
}

// List returns copies of all items ordered by identity.
func (s *MemStore) List(context.Context) ([]*WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*WorkItem, 0, len(s.items))
	for id := int64(1); id < s.nextID; id++ {
		if item, ok := s.items[id]; ok {
			snapshot := *item
			out = append(out, &snapshot)
		}
	}
	return out, nil
}
