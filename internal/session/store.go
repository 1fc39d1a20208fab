// internal/session/store.go
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/user/opswatch/internal/types"
)

// Config controls retention behavior of a Store.
type Config struct {
	// TTL is the maximum idle duration before a session expires.
	TTL time.Duration
	// MaxPerOwner bounds how many live sessions one owner may hold.
	MaxPerOwner int
	// SweepInterval is how often the background sweep physically
	// removes expired sessions.
	SweepInterval time.Duration
}

// DefaultConfig returns the retention settings used when the embedding
// process supplies none.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Minute,
		MaxPerOwner:   5,
		SweepInterval: 5 * time.Minute,
	}
}

// Stats is a point-in-time view of store occupancy. ActiveSessions is
// recomputed against the TTL at call time; expiry between sweeps is
// lazy, so the raw map size alone overstates liveness.
type Stats struct {
	TotalSessions  int
	ActiveSessions int
	TotalOwners    int
	MaxPerOwner    int
}

// UpdateRequest describes one atomic session mutation. Nil fields are
// skipped; both may be set and apply together.
type UpdateRequest struct {
	AppendEntry   *types.Entry
	MetadataPatch map[string]any
}

// Store is an in-memory session store with TTL expiry and per-owner
// capacity eviction. All operations take the store lock; an expired
// session is invisible to every operation whether or not the sweep has
// removed it yet.
type Store struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*types.Session
	byOwner  map[types.OwnerID]map[types.SessionID]struct{}

	cfg Config
	now func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Store with the given retention settings. Zero Config
// fields fall back to DefaultConfig values. The background sweep does
// not run until Start is called.
func New(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = def.MaxPerOwner
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Store{
		sessions: make(map[types.SessionID]*types.Session),
		byOwner:  make(map[types.OwnerID]map[types.SessionID]struct{}),
		cfg:      cfg,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// expired reports whether the session is past its idle TTL at t.
func (s *Store) expired(sess *types.Session, t time.Time) bool {
	return t.Sub(sess.LastAccessedAt) >= s.cfg.TTL
}

// Create allocates a new session for the owner. If the owner is at
// capacity, the owner's least-recently-accessed session is evicted
// first; eviction happens under the same lock as the insertion, so no
// caller can observe the owner above capacity.
func (s *Store) Create(owner types.OwnerID, metadata map[string]any) *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Expired sessions do not count toward capacity; drop them now
	// rather than evicting a live one on their account.
	for id := range s.byOwner[owner] {
		if s.expired(s.sessions[id], now) {
			s.removeLocked(id)
		}
	}

	for len(s.byOwner[owner]) >= s.cfg.MaxPerOwner {
		victim := s.oldestLocked(owner)
		if victim == "" {
			break
		}
		s.removeLocked(victim)
		slog.Debug("evicted session at owner capacity", "owner", string(owner), "session_id", string(victim))
	}

	sess := &types.Session{
		ID:             types.NewSessionID(),
		Owner:          owner,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       cloneMetadata(metadata),
		History:        []types.Entry{},
	}
	s.sessions[sess.ID] = sess
	ids, ok := s.byOwner[owner]
	if !ok {
		ids = make(map[types.SessionID]struct{})
		s.byOwner[owner] = ids
	}
	ids[sess.ID] = struct{}{}

	return cloneSession(sess)
}

// Get returns the session if it exists and has not expired. Reads do
// not refresh LastAccessedAt.
func (s *Store) Get(id types.SessionID) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || s.expired(sess, s.now()) {
		return nil, false
	}
	return cloneSession(sess), true
}

// Update applies the request atomically and refreshes LastAccessedAt.
// Returns false if the session is absent or expired; an expired session
// is removed rather than resurrected.
func (s *Store) Update(id types.SessionID, req UpdateRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if s.expired(sess, s.now()) {
		s.removeLocked(id)
		return false
	}

	if req.AppendEntry != nil {
		sess.History = append(sess.History, *req.AppendEntry)
	}
	if len(req.MetadataPatch) > 0 {
		if sess.Metadata == nil {
			sess.Metadata = make(map[string]any, len(req.MetadataPatch))
		}
		for k, v := range req.MetadataPatch {
			sess.Metadata[k] = v
		}
	}
	sess.LastAccessedAt = s.now()
	return true
}

// Delete removes the session if present. Idempotent.
func (s *Store) Delete(id types.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// ListByOwner returns the owner's live sessions, most recently accessed
// first.
func (s *Store) ListByOwner(owner types.OwnerID) []*types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]*types.Session, 0, len(s.byOwner[owner]))
	for id := range s.byOwner[owner] {
		sess := s.sessions[id]
		if s.expired(sess, now) {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	return out
}

// Stats reports current occupancy.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	active := 0
	for _, sess := range s.sessions {
		if !s.expired(sess, now) {
			active++
		}
	}
	return Stats{
		TotalSessions:  len(s.sessions),
		ActiveSessions: active,
		TotalOwners:    len(s.byOwner),
		MaxPerOwner:    s.cfg.MaxPerOwner,
	}
}

// Start launches the background sweep. The sweep uses the same lock as
// foreground operations; it only bounds physical memory growth, since
// reads already treat expired sessions as absent.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		s.started = true
		go s.sweepLoop()
	})
}

// Stop halts the sweep and blocks until its goroutine has exited, so
// the store can be discarded safely afterwards. Safe to call more than
// once and without a prior Start.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
}

func (s *Store) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("swept expired sessions", "removed", n)
			}
		case <-s.stop:
			return
		}
	}
}

// Sweep removes every expired session and returns how many were
// dropped. Exposed so embedders can force a pass outside the ticker.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// removeLocked deletes a session and its owner-index entry. Caller must
// hold the write lock.
func (s *Store) removeLocked(id types.SessionID) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	ids := s.byOwner[sess.Owner]
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.byOwner, sess.Owner)
	}
}

// oldestLocked returns the owner's session with the earliest
// LastAccessedAt, or "" if the owner has none. Caller must hold the
// write lock.
func (s *Store) oldestLocked(owner types.OwnerID) types.SessionID {
	var oldest types.SessionID
	var oldestAt time.Time
	for id := range s.byOwner[owner] {
		at := s.sessions[id].LastAccessedAt
		if oldest == "" || at.Before(oldestAt) {
			oldest = id
			oldestAt = at
		}
	}
	return oldest
}

// Sessions escape the store as copies so callers can never mutate
// shared state outside the lock.
func cloneSession(sess *types.Session) *types.Session {
	out := *sess
	out.Metadata = cloneMetadata(sess.Metadata)
	out.History = append([]types.Entry(nil), sess.History...)
	return &out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
