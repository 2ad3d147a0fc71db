package repository

import (
	"context"
	"sync"
	"time"

	"tableside/internal/models"
)

// MemorySessionRepository is the single-instance session store and the
// fallback when Redis is unreachable. Entries expire lazily and through Sweep.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]*models.GuestSession
	claims     map[int64]*models.TableClaim
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]*models.GuestSession),
		claims:     make(map[int64]*models.TableClaim),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) SaveSession(ctx context.Context, session *models.GuestSession) error {
	cp := *session
	r.mu.Lock()
	r.sessions[session.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, id string) (*models.GuestSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	if s.Expired(r.now()) {
		delete(r.sessions, id)
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepository) ClaimTable(ctx context.Context, claim *models.TableClaim) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.claims[claim.TableID]; ok && !existing.Expired(r.now()) {
		return false, nil
	}
	cp := *claim
	r.claims[claim.TableID] = &cp
	return true, nil
}

func (r *MemorySessionRepository) GetTableClaim(ctx context.Context, tableID int64) (*models.TableClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[tableID]
	if !ok {
		return nil, nil
	}
	if c.Expired(r.now()) {
		delete(r.claims, tableID)
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemorySessionRepository) ExtendTableClaim(ctx context.Context, claim *models.TableClaim) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[claim.TableID]
	if !ok || c.Expired(r.now()) || c.Passcode != claim.Passcode {
		return false, nil
	}
	c.SessionID = claim.SessionID
	c.ExpiresAt = claim.ExpiresAt
	return true, nil
}

func (r *MemorySessionRepository) ReleaseTable(ctx context.Context, tableID int64) error {
	r.mu.Lock()
	delete(r.claims, tableID)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// Sweep drops expired entries and returns how many were removed.
func (r *MemorySessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	for id, c := range r.claims {
		if c.Expired(now) {
			delete(r.claims, id)
			removed++
		}
	}
	for k, e := range r.rateLimits {
		if now.After(e.expiresAt) {
			delete(r.rateLimits, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (r *MemorySessionRepository) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
