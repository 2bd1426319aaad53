package database

import (
	"cloudjobs/internal/apperrors"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps handles in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	databases map[string]*Database
	order     []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		databases: make(map[string]*Database),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(ctx context.Context, d Descriptor) (*Database, error) {
	if err := d.Validate(); err != nil {
		return nil, apperrors.Validation("descriptor", err.Error())
	}

	db := &Database{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Descriptor: d,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.databases[db.ID] = db
	r.order = append(r.order, db.ID)

	copied := *db
	return &copied, nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	db, ok := r.databases[id]
	if !ok {
		return nil, apperrors.NotFound("database", id)
	}
	copied := *db
	return &copied, nil
}

// List returns all handles in creation order.
func (r *MemoryRepository) List() []Database {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Database, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.databases[id])
	}
	return result
}

// Ready implements Repository.
func (r *MemoryRepository) Ready(ctx context.Context) error {
	return nil
}

// Verify MemoryRepository implements Repository
var _ Repository = (*MemoryRepository)(nil)
